package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	httpserver "github.com/fairyhunter13/prompt-evaluator/internal/adapter/httpserver"
	"github.com/fairyhunter13/prompt-evaluator/internal/config"
)

// Pinger is the minimal interface for a database pool capable of Ping.
type Pinger interface{ Ping(ctx context.Context) error }

// RedisPingResult is the minimal return type of a Redis client's Ping.
type RedisPingResult interface{ Err() error }

// RedisClient is the minimal interface for a Redis client needed for readiness.
type RedisClient interface{ Ping(ctx context.Context) RedisPingResult }

// ScorerPinger reports whether the external scoring service answers at all.
type ScorerPinger interface{ Ping(ctx context.Context) error }

// BuildReadiness returns the probe set for /readyz: db, redis, qdrant and,
// when the ridge backend is selected, the scoring service. A nil dependency
// reports as not configured.
func BuildReadiness(cfg config.Config, pool Pinger, rdb RedisClient, scorer ScorerPinger) httpserver.ReadinessFunc {
	qdrantCheck := func(ctx context.Context) error {
		client := &http.Client{Timeout: 2 * time.Second}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.QdrantURL+"/collections", nil)
		if err != nil {
			return err
		}
		if cfg.QdrantAPIKey != "" {
			req.Header.Set("api-key", cfg.QdrantAPIKey)
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		return fmt.Errorf("qdrant status %d", resp.StatusCode)
	}

	return func(ctx context.Context) []httpserver.ReadinessCheck {
		checks := make([]httpserver.ReadinessCheck, 0, 4)

		checks = append(checks, check("db", func() error {
			if pool == nil {
				return fmt.Errorf("db not configured")
			}
			return pool.Ping(ctx)
		}))
		checks = append(checks, check("redis", func() error {
			if rdb == nil {
				return fmt.Errorf("redis not configured")
			}
			return rdb.Ping(ctx).Err()
		}))
		checks = append(checks, check("qdrant", func() error { return qdrantCheck(ctx) }))
		if scorer != nil {
			checks = append(checks, check("scorer", func() error { return scorer.Ping(ctx) }))
		}
		return checks
	}
}

func check(name string, fn func() error) httpserver.ReadinessCheck {
	if err := fn(); err != nil {
		return httpserver.ReadinessCheck{Name: name, OK: false, Details: err.Error()}
	}
	return httpserver.ReadinessCheck{Name: name, OK: true}
}
