// Package redisrepo implements the usage counter repository on Redis.
// Counters are daily INCR keys, so concurrent evaluations of the same
// template never lose updates.
package redisrepo

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/prompt-evaluator/internal/domain"
)

const dayLayout = "2006-01-02"

// UsageRepo counts evaluations per template per day, with an optional
// per-user breakdown. Keys expire after the retention window.
type UsageRepo struct {
	rdb       redis.Cmdable
	retention time.Duration
}

// NewUsageRepo constructs a UsageRepo. retentionDays bounds how long
// counter keys live.
func NewUsageRepo(rdb redis.Cmdable, retentionDays int) *UsageRepo {
	return &UsageRepo{rdb: rdb, retention: time.Duration(retentionDays) * 24 * time.Hour}
}

func templateKey(templateID string, day time.Time) string {
	return fmt.Sprintf("usage:%s:%s", templateID, day.UTC().Format(dayLayout))
}

func userKey(templateID, userID string, day time.Time) string {
	return fmt.Sprintf("usage:%s:%s:%s", templateID, userID, day.UTC().Format(dayLayout))
}

// Increment bumps both the template counter and the per-user counter for
// the day and returns the new template total. INCR is atomic server-side;
// no read-modify-write races.
func (r *UsageRepo) Increment(ctx domain.Context, templateID, userID string, day time.Time) (int64, error) {
	tk := templateKey(templateID, day)
	total, err := r.rdb.Incr(ctx, tk).Result()
	if err != nil {
		return 0, fmt.Errorf("op=usage.increment: %w", err)
	}
	if total == 1 && r.retention > 0 {
		// first hit of the day sets the expiry
		if err := r.rdb.Expire(ctx, tk, r.retention).Err(); err != nil {
			return total, fmt.Errorf("op=usage.increment: expire: %w", err)
		}
	}
	if userID != "" {
		uk := userKey(templateID, userID, day)
		n, err := r.rdb.Incr(ctx, uk).Result()
		if err != nil {
			return total, fmt.Errorf("op=usage.increment: user: %w", err)
		}
		if n == 1 && r.retention > 0 {
			if err := r.rdb.Expire(ctx, uk, r.retention).Err(); err != nil {
				return total, fmt.Errorf("op=usage.increment: user expire: %w", err)
			}
		}
	}
	return total, nil
}

// Get returns the template counter for the day; a missing key reads as 0.
func (r *UsageRepo) Get(ctx domain.Context, templateID string, day time.Time) (int64, error) {
	n, err := r.rdb.Get(ctx, templateKey(templateID, day)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("op=usage.get: %w", err)
	}
	return n, nil
}
