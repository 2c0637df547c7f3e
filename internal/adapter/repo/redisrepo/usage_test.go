package redisrepo_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/prompt-evaluator/internal/adapter/repo/redisrepo"
)

func newRepo(t *testing.T) (*redisrepo.UsageRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return redisrepo.NewUsageRepo(rdb, 90), mr
}

var day = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

func get1(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}

func TestIncrement_CountsTemplateAndUser(t *testing.T) {
	repo, mr := newRepo(t)
	ctx := context.Background()

	total, err := repo.Increment(ctx, "software.api", "u-1", day)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	total, err = repo.Increment(ctx, "software.api", "u-2", day)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	assert.Equal(t, "2", get1(t, mr, "usage:software.api:2026-09-01"))
	assert.Equal(t, "1", get1(t, mr, "usage:software.api:u-1:2026-09-01"))
	assert.Equal(t, "1", get1(t, mr, "usage:software.api:u-2:2026-09-01"))
}

func TestIncrement_SetsRetentionTTL(t *testing.T) {
	repo, mr := newRepo(t)
	_, err := repo.Increment(context.Background(), "software.api", "u-1", day)
	require.NoError(t, err)

	ttl := mr.TTL("usage:software.api:2026-09-01")
	assert.Equal(t, 90*24*time.Hour, ttl)
	assert.Equal(t, 90*24*time.Hour, mr.TTL("usage:software.api:u-1:2026-09-01"))
}

func TestIncrement_ConcurrentLosesNoUpdates(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := repo.Increment(ctx, "software.api", "", day)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := repo.Get(ctx, "software.api", day)
	require.NoError(t, err)
	assert.Equal(t, int64(n), got)
}

func TestGet_MissingKeyReadsZero(t *testing.T) {
	repo, _ := newRepo(t)
	got, err := repo.Get(context.Background(), "never.used", day)
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestIncrement_DaysAreIndependent(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	_, err := repo.Increment(ctx, "software.api", "", day)
	require.NoError(t, err)
	next := day.Add(24 * time.Hour)
	_, err = repo.Increment(ctx, "software.api", "", next)
	require.NoError(t, err)

	today, err := repo.Get(ctx, "software.api", day)
	require.NoError(t, err)
	tomorrow, err := repo.Get(ctx, "software.api", next)
	require.NoError(t, err)
	assert.Equal(t, int64(1), today)
	assert.Equal(t, int64(1), tomorrow)
}
