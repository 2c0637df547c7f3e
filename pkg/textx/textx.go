// Package textx provides small text utilities used across the project.
package textx

import (
	"regexp"
	"strings"
)

var apiKeyRE = regexp.MustCompile(`sk-[A-Za-z0-9\-_]{8,}`)

// SanitizeText removes control characters except tab/newline/CR and trims spaces.
func SanitizeText(s string) string {
	// strip control chars outside tab/newline/carriage return
	var b strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// CleanText normalizes line endings, scrubs obvious API keys and trims the
// result. Applied to every canonical prompt before it reaches a model.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = apiKeyRE.ReplaceAllString(s, "[REDACTED_KEY]")
	return SanitizeText(s)
}

// Snippet returns at most n bytes of s, cutting on a rune boundary.
func Snippet(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
