package postgres_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/prompt-evaluator/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/prompt-evaluator/internal/domain"
)

func TestXPRepo_AwardCreditsAndReturnsTotal(t *testing.T) {
	t.Parallel()
	pool := &poolStub{
		execTag: pgconn.NewCommandTag("INSERT 0 1"),
		row: rowStub{scan: func(dest ...any) error {
			*dest[0].(*int64) = 120
			return nil
		}},
	}
	repo := postgres.NewXPRepo(pool)

	total, err := repo.Award(context.Background(), domain.XPAward{
		UserID: "u-1", TraceID: "t-1", Amount: 36, Reason: "prompt evaluation",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(120), total)
	assert.Contains(t, pool.lastSQL, "INSERT INTO xp_awards")
	// the progress upsert carries the full amount
	require.Len(t, pool.rowArgs, 3)
	assert.Equal(t, 36, pool.rowArgs[1])
}

func TestXPRepo_AwardDuplicateTraceDoesNotDoubleCredit(t *testing.T) {
	t.Parallel()
	pool := &poolStub{
		execTag: pgconn.NewCommandTag("INSERT 0 0"),
		row: rowStub{scan: func(dest ...any) error {
			*dest[0].(*int64) = 120
			return nil
		}},
	}
	repo := postgres.NewXPRepo(pool)

	total, err := repo.Award(context.Background(), domain.XPAward{
		UserID: "u-1", TraceID: "t-1", Amount: 36,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(120), total)
	assert.Equal(t, 0, pool.rowArgs[1])
}

func TestXPRepo_AwardInsertError(t *testing.T) {
	t.Parallel()
	pool := &poolStub{execErr: errors.New("db down")}
	repo := postgres.NewXPRepo(pool)
	_, err := repo.Award(context.Background(), domain.XPAward{UserID: "u-1", TraceID: "t-1", Amount: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=xp.award")
}
