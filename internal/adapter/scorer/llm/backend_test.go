package llm_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/prompt-evaluator/internal/adapter/scorer/llm"
	"github.com/fairyhunter13/prompt-evaluator/internal/domain"
)

type chatStub struct {
	reply string
	err   error
	seen  string
}

func (s *chatStub) Embed(_ domain.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

func (s *chatStub) ChatJSON(_ domain.Context, _ string, userPrompt string, _ int) (string, error) {
	s.seen = userPrompt
	return s.reply, s.err
}

func TestScore_ParsesFencedReply(t *testing.T) {
	t.Parallel()
	stub := &chatStub{reply: "```json\n{\"clarity\": 7.5, \"context\": 6, \"relevance\": 8, \"specificity\": 5.5, \"creativity\": 4}\n```"}
	b := llm.New(stub, 1024)

	res, err := b.Score(context.Background(), "write a parser")
	require.NoError(t, err)
	require.NotNil(t, res.Scores.Clarity)
	assert.Equal(t, 7.5, *res.Scores.Clarity)
	assert.Empty(t, res.ParseErr)
	assert.True(t, strings.Contains(stub.seen, `"""write a parser"""`))
}

func TestScore_StringScoreCoerced(t *testing.T) {
	t.Parallel()
	stub := &chatStub{reply: `{"clarity": "7.5"}`}
	res, err := llm.New(stub, 0).Score(context.Background(), "x")
	require.NoError(t, err)
	require.NotNil(t, res.Scores.Clarity)
	assert.Equal(t, 7.5, *res.Scores.Clarity)
	assert.Nil(t, res.Scores.Context)
}

func TestScore_UnparseableReplyDegradesNotFails(t *testing.T) {
	t.Parallel()
	stub := &chatStub{reply: "I cannot produce JSON today, sorry."}
	res, err := llm.New(stub, 0).Score(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, res.Scores.IsEmpty())
	assert.NotEmpty(t, res.ParseErr)
	assert.Contains(t, res.Raw, "cannot produce JSON")
}

func TestScore_TransportErrorIsEvaluatorUnavailable(t *testing.T) {
	t.Parallel()
	stub := &chatStub{err: errors.New("upstream boom")}
	_, err := llm.New(stub, 0).Score(context.Background(), "x")
	require.ErrorIs(t, err, domain.ErrEvaluatorUnavailable)
}
