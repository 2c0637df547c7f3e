// Package config provides configuration loading utilities, including the
// domain/subtype phrase table used by the prompt normalizer.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// TaskPhrases maps "domain.subtype" keys to the friendly task statement
// rendered at the top of an assembled prompt.
type TaskPhrases struct {
	phrases map[string]string
}

type taskYAML struct {
	Tasks map[string]string `yaml:"tasks"`
}

// defaultTaskPhrases mirrors the form builder's built-in lookup table.
var defaultTaskPhrases = map[string]string{
	"software.api":        "Design a web API",
	"software.feature":    "Implement a software feature",
	"software.bugfix":     "Diagnose and fix a software bug",
	"software.review":     "Review code for quality and correctness",
	"software.tests":      "Write automated tests",
	"data.analysis":       "Analyze a dataset and report findings",
	"data.pipeline":       "Build a data processing pipeline",
	"data.visualization":  "Create a data visualization",
	"writing.article":     "Write an article",
	"writing.summary":     "Summarize a document",
	"writing.email":       "Draft a professional email",
	"education.lesson":    "Prepare a lesson plan",
	"education.quiz":      "Create an assessment quiz",
	"business.strategy":   "Develop a business strategy",
	"business.plan":       "Write a project plan",
	"creative.story":      "Write a creative story",
	"creative.brainstorm": "Brainstorm ideas",
}

// LoadTaskPhrases reads the phrase table from path, merging entries over the
// built-in defaults. A missing file is not an error; the defaults apply.
func LoadTaskPhrases(path string) (*TaskPhrases, error) {
	merged := make(map[string]string, len(defaultTaskPhrases))
	for k, v := range defaultTaskPhrases {
		merged[k] = v
	}
	if path != "" {
		b, err := os.ReadFile(path) // #nosec G304 -- operator-provided config path
		if err == nil {
			var doc taskYAML
			if err := yaml.Unmarshal(b, &doc); err != nil {
				return nil, fmt.Errorf("op=config.LoadTaskPhrases: %w", err)
			}
			for k, v := range doc.Tasks {
				k = strings.TrimSpace(strings.ToLower(k))
				v = strings.TrimSpace(v)
				if k != "" && v != "" {
					merged[k] = v
				}
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("op=config.LoadTaskPhrases: %w", err)
		}
	}
	return &TaskPhrases{phrases: merged}, nil
}

// DefaultTaskPhrases returns the built-in table without touching disk.
func DefaultTaskPhrases() *TaskPhrases {
	merged := make(map[string]string, len(defaultTaskPhrases))
	for k, v := range defaultTaskPhrases {
		merged[k] = v
	}
	return &TaskPhrases{phrases: merged}
}

// Resolve returns the friendly phrase for a domain/subtype pair. Unknown
// keys fall back to the raw key parts so the form never fails to render.
func (t *TaskPhrases) Resolve(domainKey, subtype string) string {
	key := strings.ToLower(strings.TrimSpace(domainKey)) + "." + strings.ToLower(strings.TrimSpace(subtype))
	if p, ok := t.phrases[key]; ok {
		return p
	}
	if subtype != "" {
		return strings.TrimSpace(domainKey + " " + subtype)
	}
	return strings.TrimSpace(domainKey)
}
