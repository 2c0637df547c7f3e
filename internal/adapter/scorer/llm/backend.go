// Package llm implements domain.ScoreBackend on top of a generative model.
// It is the fallback scorer for deployments without the regression service.
package llm

import (
	"encoding/json"
	"fmt"

	"log/slog"

	"github.com/fairyhunter13/prompt-evaluator/internal/adapter/ai"
	"github.com/fairyhunter13/prompt-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/prompt-evaluator/internal/domain"
	"github.com/fairyhunter13/prompt-evaluator/pkg/textx"
)

const systemPrompt = `You are a strict evaluator for programming prompts.

Return ONLY JSON in a single fenced code block like:

` + "```json" + `
{
  "clarity": 7.5,
  "context": 7.0,
  "relevance": 9.0,
  "specificity": 7.5,
  "creativity": 6.0
}
` + "```" + `
Scoring scale: 1-10 (decimals allowed). No prose outside the code block.`

// Backend scores prompts by asking the model for a strict JSON reply.
type Backend struct {
	client    domain.AIClient
	maxTokens int
}

// New constructs an LLM score backend.
func New(client domain.AIClient, maxTokens int) *Backend {
	return &Backend{client: client, maxTokens: maxTokens}
}

// Score asks the model for five dimension scores. A transport failure is an
// error (the evaluator is unavailable); an unparseable reply is NOT an
// error: it yields an all-nil vector with the raw capture attached so the
// pipeline can degrade instead of failing.
func (b *Backend) Score(ctx domain.Context, prompt string) (domain.ScoreResult, error) {
	user := fmt.Sprintf("PROMPT TO EVALUATE:\n\"\"\"%s\"\"\"", prompt)
	reply, err := b.client.ChatJSON(ctx, systemPrompt, user, b.maxTokens)
	if err != nil {
		return domain.ScoreResult{}, fmt.Errorf("op=llm.score: %w: %v", domain.ErrEvaluatorUnavailable, err)
	}

	ex := ai.ExtractJSON(reply)
	if !ex.OK {
		slog.Warn("llm scorer reply unparseable", slog.String("error", ex.Err))
		observability.LLMParseFailuresTotal.WithLabelValues("score").Inc()
		return domain.ScoreResult{
			Raw:      textx.CleanText(ex.Raw),
			ParseErr: ex.Err,
		}, nil
	}

	var fields map[string]any
	if err := json.Unmarshal(ex.Value, &fields); err != nil {
		return domain.ScoreResult{Raw: textx.CleanText(reply), ParseErr: err.Error()}, nil
	}
	return domain.ScoreResult{Scores: domain.ScoreVector{
		Clarity:     ai.Number(fields["clarity"]),
		Context:     ai.Number(fields["context"]),
		Relevance:   ai.Number(fields["relevance"]),
		Specificity: ai.Number(fields["specificity"]),
		Creativity:  ai.Number(fields["creativity"]),
	}}, nil
}
