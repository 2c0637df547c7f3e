// Package ai provides shared utilities for working with generative model
// output, most importantly the JSON block extractor used by every consumer
// of LLM text.
package ai

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Extraction is the tagged outcome of pulling a JSON object out of model
// text. Either OK is true and Value holds the object, or OK is false and
// Raw/Err carry the capture. There is no middle ground; consumers must
// handle the failure branch explicitly.
type Extraction struct {
	OK    bool
	Value json.RawMessage
	Raw   string
	Err   string
}

var fencedBlockRE = regexp.MustCompile("(?i)```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// ExtractJSON locates a JSON object in raw model text. A fenced ```json
// block is preferred; failing that, the greedy substring from the first '{'
// to the last '}' is tried. Malformed input never produces an error value,
// only a failed Extraction.
func ExtractJSON(raw string) Extraction {
	candidate := strings.TrimSpace(raw)
	if m := fencedBlockRE.FindStringSubmatch(raw); m != nil {
		candidate = strings.TrimSpace(m[1])
	}
	if out, ok := tryObject(candidate); ok {
		return Extraction{OK: true, Value: out}
	}
	// Fallback: greedy brace match over the whole reply.
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			if out, ok := tryObject(raw[start : end+1]); ok {
				return Extraction{OK: true, Value: out}
			}
		}
	}
	return Extraction{Raw: raw, Err: "no parseable JSON object found"}
}

func tryObject(s string) (json.RawMessage, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &probe); err != nil {
		return nil, false
	}
	return json.RawMessage(s), true
}

// Number coerces a loosely typed JSON value into a float pointer. Models
// occasionally return scores as strings; absent or non-numeric values map
// to nil rather than zero.
func Number(v any) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return &f
		}
	case string:
		var f float64
		if _, err := jsonNumberScan(n, &f); err == nil {
			return &f
		}
	}
	return nil
}

func jsonNumberScan(s string, f *float64) (int, error) {
	err := json.Unmarshal([]byte(strings.TrimSpace(s)), f)
	if err != nil {
		return 0, err
	}
	return 1, nil
}
