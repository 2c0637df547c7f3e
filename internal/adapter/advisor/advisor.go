// Package advisor implements domain.Advisor. It asks the model for
// suggestions and rewrite versions of a prompt, feeding it the prior scores
// and a token-budgeted slice of retrieved reference prompts.
package advisor

import (
	"encoding/json"
	"fmt"
	"strings"

	"log/slog"

	"github.com/fairyhunter13/prompt-evaluator/internal/adapter/ai"
	"github.com/fairyhunter13/prompt-evaluator/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/prompt-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/prompt-evaluator/internal/domain"
	"github.com/fairyhunter13/prompt-evaluator/pkg/textx"
)

const systemPrompt = `You are a strict evaluator for programming prompts.

Return ONLY JSON in a single fenced code block like:

` + "```json" + `
{
  "suggestions": [
    { "text": "Add input/output examples." },
    { "text": "Specify language/runtime and constraints." }
  ],
  "rewriteVersions": [
    {
      "title": "Enhanced Version",
      "content": "...",
      "improvements": [{ "text": "..." }]
    },
    {
      "title": "Alternative Version",
      "content": "...",
      "improvements": [{ "text": "..." }]
    },
    {
      "title": "Minimalist Version",
      "content": "...",
      "improvements": [{ "text": "..." }]
    }
  ]
}
` + "```" + `
No prose outside the code block.`

const snippetLimit = 400

// Advisor produces improvement advice via the AI client.
type Advisor struct {
	client    domain.AIClient
	counter   *tokencount.Counter
	maxTokens int
	budget    int
}

// New constructs an Advisor. budget caps the token cost of reference
// snippets included in the instruction.
func New(client domain.AIClient, maxTokens, budget int) *Advisor {
	return &Advisor{
		client:    client,
		counter:   tokencount.NewCounter(),
		maxTokens: maxTokens,
		budget:    budget,
	}
}

// Advise asks the model for suggestions and rewrites. Transport failures
// return an error; unparseable replies return degraded Advice with the raw
// capture attached and no error.
func (a *Advisor) Advise(ctx domain.Context, prompt string, scores domain.ScoreVector, refs []domain.ReferenceMatch) (domain.Advice, error) {
	user := a.buildUserMessage(prompt, scores, refs)
	reply, err := a.client.ChatJSON(ctx, systemPrompt, user, a.maxTokens)
	if err != nil {
		return domain.Advice{}, fmt.Errorf("op=advisor.advise: %w", err)
	}

	ex := ai.ExtractJSON(reply)
	if !ex.OK {
		slog.Warn("advisor reply unparseable", slog.String("error", ex.Err))
		observability.LLMParseFailuresTotal.WithLabelValues("advise").Inc()
		return domain.Advice{Raw: textx.CleanText(ex.Raw), ParseErr: ex.Err}, nil
	}

	var payload struct {
		Suggestions     []domain.Suggestion     `json:"suggestions"`
		RewriteVersions []domain.RewriteVariant `json:"rewriteVersions"`
	}
	if err := json.Unmarshal(ex.Value, &payload); err != nil {
		observability.LLMParseFailuresTotal.WithLabelValues("advise").Inc()
		return domain.Advice{Raw: textx.CleanText(reply), ParseErr: err.Error()}, nil
	}
	return domain.Advice{
		Suggestions: payload.Suggestions,
		Rewrites:    payload.RewriteVersions,
	}, nil
}

// buildUserMessage renders the instruction body: the prompt under
// evaluation, its current scores, and numbered reference examples clipped
// to the token budget.
func (a *Advisor) buildUserMessage(prompt string, scores domain.ScoreVector, refs []domain.ReferenceMatch) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "PROMPT TO EVALUATE:\n\"\"\"%s\"\"\"\n\n", prompt)

	sb.WriteString("Current scores:\n")
	for i, dim := range domain.Dimensions {
		p := scores.Values()[i]
		if p == nil {
			fmt.Fprintf(&sb, "%s: n/a\n", dim)
			continue
		}
		fmt.Fprintf(&sb, "%s: %.1f\n", dim, *p)
	}

	snippets := make([]string, 0, len(refs))
	for i, r := range refs {
		snippets = append(snippets, fmt.Sprintf(
			"%d) parent_row: %s, source_url: %s\nPROMPT_PREVIEW: %s\nCONTENT_SNIPPET: %s\n",
			i+1, r.ParentRow, r.SourceURL, r.PromptPreview, textx.Snippet(r.Content, snippetLimit)))
	}
	snippets = tokencount.ClipToBudget(snippets, a.budget, a.counter.Count)
	if len(snippets) > 0 {
		sb.WriteString("\nSimilar prompt examples:\n")
		for _, s := range snippets {
			sb.WriteString(s)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
