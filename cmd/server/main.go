// Command server starts the prompt evaluation HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/prompt-evaluator/internal/adapter/advisor"
	ai "github.com/fairyhunter13/prompt-evaluator/internal/adapter/ai"
	"github.com/fairyhunter13/prompt-evaluator/internal/adapter/ai/gemini"
	httpserver "github.com/fairyhunter13/prompt-evaluator/internal/adapter/httpserver"
	"github.com/fairyhunter13/prompt-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/prompt-evaluator/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/prompt-evaluator/internal/adapter/repo/redisrepo"
	"github.com/fairyhunter13/prompt-evaluator/internal/adapter/retrieval"
	llmscorer "github.com/fairyhunter13/prompt-evaluator/internal/adapter/scorer/llm"
	"github.com/fairyhunter13/prompt-evaluator/internal/adapter/scorer/ridge"
	qdrantcli "github.com/fairyhunter13/prompt-evaluator/internal/adapter/vector/qdrant"
	"github.com/fairyhunter13/prompt-evaluator/internal/app"
	"github.com/fairyhunter13/prompt-evaluator/internal/config"
	"github.com/fairyhunter13/prompt-evaluator/internal/domain"
	"github.com/fairyhunter13/prompt-evaluator/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer func() { _ = rdb.Close() }()

	evalRepo := postgres.NewEvaluationRepo(pool)
	xpRepo := postgres.NewXPRepo(pool)
	usageRepo := redisrepo.NewUsageRepo(rdb, cfg.UsageCounterTTLDay)

	// AI client: real Gemini when a key is configured, deterministic mock in
	// dev so the pipeline works offline.
	var aicl domain.AIClient
	if cfg.GeminiAPIKey == "" && cfg.IsDev() {
		slog.Warn("no GEMINI_API_KEY, using deterministic mock AI client")
		aicl = ai.NewMockClient()
	} else {
		aicl = gemini.New(cfg)
	}

	qcli := qdrantcli.New(cfg.QdrantURL, cfg.QdrantAPIKey)
	retriever := retrieval.New(aicl, qcli, cfg.QdrantCollection)

	var scorerBackend domain.ScoreBackend
	var scorerPing app.ScorerPinger
	switch cfg.ScorerBackend {
	case "llm":
		scorerBackend = llmscorer.New(aicl, cfg.AdvisorMaxTokens)
	default:
		rc := ridge.New(cfg)
		scorerBackend = rc
		scorerPing = rc
	}

	adv := advisor.New(aicl, cfg.AdvisorMaxTokens, cfg.ContextTokenBudget)

	phrases, err := config.LoadTaskPhrases(cfg.TaskPhrasesPath)
	if err != nil {
		slog.Error("task phrases load failed", slog.Any("error", err))
		os.Exit(1)
	}

	dispatcher := usecase.NewSideEffectDispatcher(usecase.SideEffects{
		History: evalRepo,
		Usage:   usageRepo,
		XP:      xpRepo,
	}, cfg.SideEffectQueueSize, cfg.SideEffectWorkers, 10*time.Second)
	defer dispatcher.Close()

	evalSvc := usecase.NewEvaluateService(
		usecase.NewNormalizer(phrases),
		retriever,
		scorerBackend,
		adv,
		dispatcher,
		usecase.EvaluateConfig{
			RetrieveTopK:      cfg.RetrieveTopK,
			LowScoreThreshold: cfg.LowScoreThreshold,
			ImprovementMargin: cfg.ImprovementMargin,
			PenaltyStrength:   cfg.PenaltyStrength,
			XPMinimum:         cfg.XPMinimum,
			XPPerPoint:        cfg.XPPerPoint,
		},
	)
	histSvc := usecase.NewHistoryService(evalRepo, usageRepo)

	ready := app.BuildReadiness(cfg, pool, redisAdapter{rdb}, scorerPing)
	srv := httpserver.NewServer(cfg, evalSvc, histSvc, ready)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}

// redisAdapter narrows *redis.Client to the readiness interface.
type redisAdapter struct{ rdb *redis.Client }

func (r redisAdapter) Ping(ctx context.Context) app.RedisPingResult { return r.rdb.Ping(ctx) }
