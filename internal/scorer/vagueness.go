// Package scorer implements the lexical vagueness heuristic and the score
// penalty it drives. Raw model or regressor scores are treated as base
// scores; the penalty pulls every dimension down in proportion to how vague
// the prompt text reads.
package scorer

import (
	"math"
	"regexp"
	"strings"

	"github.com/fairyhunter13/prompt-evaluator/internal/domain"
)

// DefaultPenaltyStrength scales the vagueness score before subtraction.
const DefaultPenaltyStrength = 4.5

var genericVerbs = map[string]struct{}{
	"make": {}, "do": {}, "write": {}, "create": {}, "build": {}, "explain": {},
	"describe": {}, "talk": {}, "summarize": {}, "implement": {}, "design": {}, "draft": {},
}

// detailCues are matched as substrings of the lowercased text, not as whole
// words.
var detailCues = []string{
	"with", "including", "using", "for", "against", "step", "steps",
	"feature", "features", "requirements", "constraints", "kpi", "kpis",
	"diagram", "architecture", "lesson", "objectives", "assessment",
	"example", "template", "criteria", "strategy", "plan", "code", "review",
	"bug", "fix", "debug", "deployment", "performance", "security",
}

var (
	wordRE  = regexp.MustCompile(`[a-z]+`)
	digitRE = regexp.MustCompile(`\d`)
)

// Vagueness scores how underspecified a prompt reads, in [0,1]. Higher is
// vaguer. Empty text is maximally vague.
func Vagueness(text string) float64 {
	t := strings.ToLower(strings.TrimSpace(text))
	words := wordRE.FindAllString(t, -1)
	wc := len(words)
	if wc == 0 {
		return 1.0
	}
	uniq := map[string]struct{}{}
	generic := 0
	for _, w := range words {
		uniq[w] = struct{}{}
		if _, ok := genericVerbs[w]; ok {
			generic++
		}
	}
	uniqueRatio := float64(len(uniq)) / float64(wc)
	genRatio := float64(generic) / float64(wc)

	hasDetail := false
	for _, c := range detailCues {
		if strings.Contains(t, c) {
			hasDetail = true
			break
		}
	}
	hasDigits := digitRE.MatchString(t)

	base := 0.4 * genRatio
	if !hasDetail {
		base += 0.3
	}
	if !hasDigits {
		base += 0.2
	}
	if wc <= 4 {
		base += 0.3
	}
	if uniqueRatio < 0.6 {
		base += 0.2
	}
	return math.Max(0, math.Min(1, base))
}

// ApplyPenalty subtracts strength*Vagueness(text) from every present
// dimension, clips to [1,10], and rounds to one decimal. Absent dimensions
// stay absent.
func ApplyPenalty(base domain.ScoreVector, text string, strength float64) domain.ScoreVector {
	v := Vagueness(text)
	adjust := func(p *float64) *float64 {
		if p == nil {
			return nil
		}
		x := *p - strength*v
		x = math.Max(1, math.Min(10, x))
		x = math.Round(x*10) / 10
		return &x
	}
	return domain.ScoreVector{
		Clarity:     adjust(base.Clarity),
		Context:     adjust(base.Context),
		Relevance:   adjust(base.Relevance),
		Specificity: adjust(base.Specificity),
		Creativity:  adjust(base.Creativity),
	}
}
