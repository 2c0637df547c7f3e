package ai_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/prompt-evaluator/internal/adapter/ai"
)

func TestMockClient_EmbedDeterministic(t *testing.T) {
	t.Parallel()
	c := ai.NewMockClient()
	a, err := c.Embed(context.Background(), []string{"write a function"})
	require.NoError(t, err)
	b, err := c.Embed(context.Background(), []string{"write a function"})
	require.NoError(t, err)
	require.Len(t, a, 1)
	assert.Equal(t, a[0], b[0])
	assert.Len(t, a[0], 768)
}

func TestMockClient_ChatJSONParsesThroughExtractor(t *testing.T) {
	t.Parallel()
	c := ai.NewMockClient()
	out, err := c.ChatJSON(context.Background(), "system", "PROMPT TO EVALUATE:\n\"\"\"write a function\"\"\"", 1024)
	require.NoError(t, err)

	ex := ai.ExtractJSON(out)
	require.True(t, ex.OK)
	var payload struct {
		Clarity         float64 `json:"clarity"`
		RewriteVersions []struct {
			Title string `json:"title"`
		} `json:"rewriteVersions"`
	}
	require.NoError(t, json.Unmarshal(ex.Value, &payload))
	assert.GreaterOrEqual(t, payload.Clarity, 4.0)
	assert.LessOrEqual(t, payload.Clarity, 9.5)
	require.Len(t, payload.RewriteVersions, 3)
	assert.Equal(t, "Enhanced Version", payload.RewriteVersions[0].Title)
}
