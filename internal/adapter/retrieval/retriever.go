// Package retrieval implements domain.ReferenceRetriever over the embedding
// client and the Qdrant corpus. Retrieval is advisory: every upstream
// failure is swallowed into an empty result so scoring never blocks on the
// reference corpus.
package retrieval

import (
	"strconv"

	"log/slog"

	"github.com/fairyhunter13/prompt-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/prompt-evaluator/internal/adapter/vector/qdrant"
	"github.com/fairyhunter13/prompt-evaluator/internal/domain"
)

// Searcher is the slice of the vector client the retriever needs.
type Searcher interface {
	Search(ctx domain.Context, collection string, vector []float32, topK int) ([]qdrant.ScoredPoint, error)
}

// Retriever embeds the prompt and queries the reference collection.
type Retriever struct {
	ai         domain.AIClient
	search     Searcher
	collection string
}

// New constructs a Retriever.
func New(ai domain.AIClient, search Searcher, collection string) *Retriever {
	return &Retriever{ai: ai, search: search, collection: collection}
}

// Retrieve returns up to k reference matches for the prompt. It never
// returns an error: embedding or search failures are logged, counted, and
// collapsed to an empty slice.
func (r *Retriever) Retrieve(ctx domain.Context, prompt string, k int) ([]domain.ReferenceMatch, error) {
	if k <= 0 {
		return nil, nil
	}
	vecs, err := r.ai.Embed(ctx, []string{prompt})
	if err != nil || len(vecs) == 0 {
		slog.Warn("reference embedding failed, continuing without references", slog.Any("error", err))
		observability.RetrievalFailuresTotal.Inc()
		return nil, nil
	}
	hits, err := r.search.Search(ctx, r.collection, vecs[0], k)
	if err != nil {
		slog.Warn("reference search failed, continuing without references", slog.Any("error", err))
		observability.RetrievalFailuresTotal.Inc()
		return nil, nil
	}
	out := make([]domain.ReferenceMatch, 0, len(hits))
	for _, h := range hits {
		out = append(out, matchFromPayload(h))
	}
	return out, nil
}

func matchFromPayload(p qdrant.ScoredPoint) domain.ReferenceMatch {
	str := func(k string) string {
		if v, ok := p.Payload[k].(string); ok {
			return v
		}
		return ""
	}
	chunk := 0
	if v, ok := p.Payload["chunk_index"].(float64); ok {
		chunk = int(v)
	}
	// parent_row was written as an integer by older seeders
	parentRow := str("parent_row")
	if v, ok := p.Payload["parent_row"].(float64); ok {
		parentRow = strconv.Itoa(int(v))
	}
	return domain.ReferenceMatch{
		Content:       str("content"),
		SourceURL:     str("source_url"),
		PageTitle:     str("page_title"),
		PromptPreview: str("prompt_preview"),
		ParentRow:     parentRow,
		ChunkIndex:    chunk,
		Similarity:    p.Score,
	}
}
