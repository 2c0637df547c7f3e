// Package usecase contains application business logic services.
package usecase

import (
	"fmt"
	"strings"

	"github.com/fairyhunter13/prompt-evaluator/internal/config"
	"github.com/fairyhunter13/prompt-evaluator/internal/domain"
	"github.com/fairyhunter13/prompt-evaluator/pkg/textx"
)

// FormInput is the structured alternative to a free-text prompt. Every
// field is optional; empty fields are omitted from the rendered text.
type FormInput struct {
	Domain             string `json:"domain"`
	Subtype            string `json:"subtype"`
	Title              string `json:"title"`
	Audience           string `json:"audience"`
	Purpose            string `json:"purpose"`
	KeyPoints          string `json:"keyPoints"`
	OutputFormat       string `json:"outputFormat"`
	TargetTech         string `json:"targetTech"`
	LengthTarget       string `json:"lengthTarget"`
	Tone               string `json:"tone"`
	Example            string `json:"example"`
	AcceptanceCriteria string `json:"acceptanceCriteria"`
	Constraints        string `json:"constraints"`
}

// EvaluateInput is one evaluation request. Either Prompt or Form must be
// set; Form wins when both are present.
type EvaluateInput struct {
	Prompt       string
	Form         *FormInput
	TemplateID   string
	UserID       string
	K            int
	ImproveIfLow bool
}

// Normalizer renders request input into one canonical prompt string.
type Normalizer struct {
	phrases *config.TaskPhrases
}

// NewNormalizer constructs a Normalizer over the task phrase table.
func NewNormalizer(phrases *config.TaskPhrases) Normalizer {
	return Normalizer{phrases: phrases}
}

// Normalize returns the trimmed canonical text, or ErrInvalidArgument when
// the result is empty. It is pure: no downstream call happens here.
func (n Normalizer) Normalize(in EvaluateInput) (string, error) {
	raw := in.Prompt
	if in.Form != nil {
		raw = n.renderForm(*in.Form)
	}
	canonical := textx.CleanText(strings.TrimSpace(raw))
	if strings.TrimSpace(canonical) == "" {
		return "", fmt.Errorf("op=normalize: %w: empty prompt", domain.ErrInvalidArgument)
	}
	return canonical, nil
}

// renderForm builds the instruction paragraph field by field in a fixed
// order so the same form always yields the same canonical text.
func (n Normalizer) renderForm(f FormInput) string {
	var lines []string
	task := n.phrases.Resolve(f.Domain, f.Subtype)
	if task != "" {
		lines = append(lines, task)
	}
	for _, field := range []struct {
		label string
		value string
	}{
		{"Title", f.Title},
		{"Purpose", f.Purpose},
		{"Audience", f.Audience},
		{"Domain", f.Domain},
		{"Target technology", f.TargetTech},
		{"Desired output format", f.OutputFormat},
		{"Length target", f.LengthTarget},
		{"Tone", f.Tone},
		{"Key points", f.KeyPoints},
		{"Example", f.Example},
		{"Acceptance criteria", f.AcceptanceCriteria},
		{"Constraints", f.Constraints},
	} {
		v := strings.TrimSpace(field.value)
		if v == "" {
			continue
		}
		lines = append(lines, field.label+": "+v)
	}
	return strings.Join(lines, "\n")
}
