// Package ragseed loads the reference-prompt corpus from YAML files,
// embeds it and upserts the chunks into Qdrant.
package ragseed

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	qdrantcli "github.com/fairyhunter13/prompt-evaluator/internal/adapter/vector/qdrant"
	"github.com/fairyhunter13/prompt-evaluator/internal/domain"
	"github.com/fairyhunter13/prompt-evaluator/pkg/textx"
)

// corpusYAML is the seed file shape: either a bare list of prompt strings
// or entries with source metadata.
type corpusYAML struct {
	Prompts []corpusEntry `yaml:"prompts"`
}

type corpusEntry struct {
	Content   string `yaml:"content"`
	SourceURL string `yaml:"source_url"`
	PageTitle string `yaml:"page_title"`
}

// chunkSize is the approximate chunk length in runes. Long corpus entries
// are split so one overlong prompt cannot dominate the advisor context.
const chunkSize = 800

const previewLen = 160

// VectorSize is the embedding dimensionality of text-embedding-004.
const VectorSize = 768

// SeedFile ingests one YAML corpus file into the given collection.
func SeedFile(ctx domain.Context, q *qdrantcli.Client, ai domain.AIClient, path, collection string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	wd = filepath.Clean(wd)
	if os.Getenv("RAGSEED_ALLOW_ABSPATHS") != "1" {
		if !strings.HasPrefix(abs, wd+string(os.PathSeparator)) && abs != wd {
			return fmt.Errorf("disallowed path: %s", abs)
		}
	}
	b, err := os.ReadFile(abs) // #nosec G304 -- path constrained above
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("seed file not found: %s", path)
		}
		return err
	}

	entries, err := parseCorpus(b)
	if err != nil {
		return fmt.Errorf("yaml parse %s: %w", path, err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("no prompts to seed in %s", path)
	}

	if err := q.EnsureCollection(ctx, collection, VectorSize, "Cosine"); err != nil {
		return fmt.Errorf("qdrant ensure collection: %w", err)
	}
	return upsertAll(ctx, q, ai, collection, entries)
}

// SeedDefault seeds the reference-prompt collection from the default path.
func SeedDefault(ctx domain.Context, q *qdrantcli.Client, ai domain.AIClient, collection string) error {
	return SeedFile(ctx, q, ai, "configs/rag/reference_prompts.yaml", collection)
}

func parseCorpus(b []byte) ([]corpusEntry, error) {
	var doc corpusYAML
	if err := yaml.Unmarshal(b, &doc); err == nil && len(doc.Prompts) > 0 {
		out := make([]corpusEntry, 0, len(doc.Prompts))
		for _, e := range doc.Prompts {
			e.Content = strings.TrimSpace(e.Content)
			if e.Content != "" {
				out = append(out, e)
			}
		}
		return out, nil
	}
	// Fallback: bare list of strings.
	var ls []string
	if err := yaml.Unmarshal(b, &ls); err != nil {
		return nil, err
	}
	out := make([]corpusEntry, 0, len(ls))
	for _, s := range ls {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, corpusEntry{Content: s})
		}
	}
	return out, nil
}

// Chunks splits text into pieces of roughly chunkSize runes on word
// boundaries. Short texts yield a single chunk.
func Chunks(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len([]rune(text)) <= chunkSize {
		return []string{text}
	}
	words := strings.Fields(text)
	var chunks []string
	var cur strings.Builder
	for _, w := range words {
		if cur.Len() > 0 && cur.Len()+1+len(w) > chunkSize {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(w)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

func upsertAll(ctx domain.Context, q *qdrantcli.Client, ai domain.AIClient, collection string, entries []corpusEntry) error {
	const batch = 16
	var points []qdrantcli.Point
	var texts []string

	for row, e := range entries {
		preview := textx.Snippet(e.Content, previewLen)
		for ci, chunk := range Chunks(e.Content) {
			texts = append(texts, chunk)
			points = append(points, qdrantcli.Point{
				ID: pointID(collection, row, ci),
				Payload: map[string]any{
					"content":        chunk,
					"source_url":     e.SourceURL,
					"page_title":     e.PageTitle,
					"prompt_preview": preview,
					"parent_row":     row,
					"chunk_index":    ci,
				},
			})
		}
	}

	for i := 0; i < len(points); i += batch {
		end := i + batch
		if end > len(points) {
			end = len(points)
		}
		vecs, err := ai.Embed(ctx, texts[i:end])
		if err != nil {
			return fmt.Errorf("embed: %w", err)
		}
		if len(vecs) != end-i {
			return fmt.Errorf("embed returned %d vectors for %d chunks", len(vecs), end-i)
		}
		chunk := make([]qdrantcli.Point, end-i)
		copy(chunk, points[i:end])
		for j := range chunk {
			chunk[j].Vector = vecs[j]
		}
		if err := q.UpsertPoints(ctx, collection, chunk); err != nil {
			return fmt.Errorf("qdrant upsert: %w", err)
		}
	}
	return nil
}

// pointID derives a stable UUID per collection/row/chunk so re-seeding
// overwrites instead of duplicating points.
func pointID(collection string, row, chunkIndex int) string {
	key := fmt.Sprintf("%s:%d:%d", collection, row, chunkIndex)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}
