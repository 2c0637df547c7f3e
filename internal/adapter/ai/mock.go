package ai

import (
	"crypto/sha1" // #nosec G505 -- hashing for determinism, not security
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fairyhunter13/prompt-evaluator/internal/domain"
)

// MockClient implements domain.AIClient deterministically for offline/dev
// mode. Scores depend only on the hashed prompt text, so repeated runs of a
// prompt produce identical output.
type MockClient struct{}

// NewMockClient constructs a deterministic mock AI client.
func NewMockClient() domain.AIClient { return &MockClient{} }

// Embed returns a deterministic vector of size 768 for each input text.
func (m *MockClient) Embed(_ domain.Context, texts []string) ([][]float32, error) {
	const dims = 768
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = embedDeterministic(t, dims)
	}
	return out, nil
}

// ChatJSON returns a fenced JSON block shaped like the strict evaluator
// reply: per-dimension scores, suggestions, and three rewrite versions.
func (m *MockClient) ChatJSON(_ domain.Context, _ string, userPrompt string, _ int) (string, error) {
	subject := promptUnderEvaluation(userPrompt)
	payload := map[string]any{
		"clarity":     mockScore(subject, "clarity"),
		"context":     mockScore(subject, "context"),
		"relevance":   mockScore(subject, "relevance"),
		"specificity": mockScore(subject, "specificity"),
		"creativity":  mockScore(subject, "creativity"),
		"suggestions": []map[string]string{
			{"text": "Add input/output examples."},
			{"text": "Specify the language, runtime and constraints."},
		},
		"rewriteVersions": []map[string]any{
			rewrite("Enhanced Version", subject, "Adds explicit requirements and acceptance criteria."),
			rewrite("Alternative Version", subject, "Reframes the task from the consumer's perspective."),
			rewrite("Minimalist Version", subject, "Strips the task to its essential instruction."),
		},
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("mock marshal: %w", err)
	}
	return "```json\n" + string(b) + "\n```", nil
}

// promptUnderEvaluation pulls the quoted prompt out of our instruction
// templates; falls back to the whole text.
func promptUnderEvaluation(s string) string {
	if i := strings.Index(s, `"""`); i >= 0 {
		rest := s[i+3:]
		if j := strings.Index(rest, `"""`); j >= 0 {
			return strings.TrimSpace(rest[:j])
		}
	}
	return strings.TrimSpace(s)
}

func mockScore(subject, dim string) float64 {
	// 4.0..9.5 in 0.5 steps, stable per (subject, dimension)
	h := hashToFloat(subject + "|" + dim)
	return 4.0 + float64(int(h*11))*0.5
}

func rewrite(title, subject, note string) map[string]any {
	snippet := subject
	if len(snippet) > 120 {
		snippet = snippet[:120]
	}
	return map[string]any{
		"title":        title,
		"content":      snippet + " (revised: " + note + ")",
		"improvements": []map[string]string{{"text": note}},
	}
}

func embedDeterministic(s string, dims int) []float32 {
	// Simple LCG seeded by sha1(s)
	h := sha1.Sum([]byte(s)) // #nosec G401
	x := binary.BigEndian.Uint32(h[:4])
	const a = 1664525
	const c = 1013904223
	vec := make([]float32, dims)
	for i := 0; i < dims; i++ {
		x = uint32(uint64(a)*uint64(x) + uint64(c))
		v := float32(x) / float32(^uint32(0))
		vec[i] = 2*v - 1
	}
	return vec
}

func hashToFloat(s string) float64 {
	h := sha1.Sum([]byte(s)) // #nosec G401
	u := binary.BigEndian.Uint32(h[:4])
	return float64(u%1000) / 1000.0
}
