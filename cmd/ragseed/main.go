// Command ragseed embeds the reference-prompt corpus and upserts it into
// Qdrant so the retriever has neighbors to return.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	ai "github.com/fairyhunter13/prompt-evaluator/internal/adapter/ai"
	"github.com/fairyhunter13/prompt-evaluator/internal/adapter/ai/gemini"
	"github.com/fairyhunter13/prompt-evaluator/internal/adapter/observability"
	qdrantcli "github.com/fairyhunter13/prompt-evaluator/internal/adapter/vector/qdrant"
	"github.com/fairyhunter13/prompt-evaluator/internal/config"
	"github.com/fairyhunter13/prompt-evaluator/internal/domain"
	"github.com/fairyhunter13/prompt-evaluator/internal/ragseed"
)

func main() {
	var file string
	flag.StringVar(&file, "file", "", "corpus YAML file (default configs/rag/reference_prompts.yaml)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	slog.SetDefault(observability.SetupLogger(cfg))

	var aicl domain.AIClient
	if cfg.GeminiAPIKey == "" && cfg.IsDev() {
		slog.Warn("no GEMINI_API_KEY, using deterministic mock AI client")
		aicl = ai.NewMockClient()
	} else {
		aicl = gemini.New(cfg)
	}
	qcli := qdrantcli.New(cfg.QdrantURL, cfg.QdrantAPIKey)

	ctx := context.Background()
	if file != "" {
		err = ragseed.SeedFile(ctx, qcli, aicl, file, cfg.QdrantCollection)
	} else {
		err = ragseed.SeedDefault(ctx, qcli, aicl, cfg.QdrantCollection)
	}
	if err != nil {
		slog.Error("seeding failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("seeding complete", slog.String("collection", cfg.QdrantCollection))
}
