// Package tokencount provides token counting and context budgeting for LLM
// instructions.
//
// It uses tiktoken-go, a Go port of OpenAI's tiktoken library. Gemini does
// not publish its tokenizer, so cl100k_base is used as an approximation;
// when the encoding cannot be loaded a rough 4-chars-per-token estimate
// keeps budgeting functional offline.
package tokencount

import (
	"sync"

	"log/slog"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// CountFunc reports the token cost of a text.
type CountFunc func(text string) int

// Counter provides thread-safe approximate token counting.
type Counter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewCounter creates a token counter instance.
func NewCounter() *Counter { return &Counter{} }

// Count returns the approximate token count of text. It never fails; if the
// encoding is unavailable it falls back to an estimate.
func (c *Counter) Count(text string) int {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			slog.Warn("tiktoken encoding unavailable, estimating tokens", slog.Any("error", err))
			return
		}
		c.enc = enc
	})
	if c.enc == nil {
		return estimate(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

// estimate approximates ~4 characters per token.
func estimate(text string) int {
	n := (len(text) + 3) / 4
	if n == 0 && len(text) > 0 {
		n = 1
	}
	return n
}

// ClipToBudget keeps snippets, in order, while the running token cost stays
// within budget. The first snippet is always kept even when it alone
// exceeds the budget so that context never silently vanishes.
func ClipToBudget(snippets []string, budget int, count CountFunc) []string {
	if len(snippets) == 0 || budget <= 0 {
		return nil
	}
	out := make([]string, 0, len(snippets))
	used := 0
	for i, s := range snippets {
		cost := count(s)
		if i > 0 && used+cost > budget {
			break
		}
		out = append(out, s)
		used += cost
	}
	return out
}
