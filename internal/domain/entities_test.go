package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/prompt-evaluator/internal/domain"
)

func f(v float64) *float64 { return &v }

func TestScoreVector_Overall_AllPresent(t *testing.T) {
	t.Parallel()
	v := domain.ScoreVector{Clarity: f(6), Context: f(5), Relevance: f(7), Specificity: f(4), Creativity: f(5)}
	o := v.Overall()
	require.NotNil(t, o)
	assert.InDelta(t, 5.4, *o, 1e-9)
}

func TestScoreVector_Overall_IgnoresMissing(t *testing.T) {
	t.Parallel()
	// clarity=8, context=7, relevance=9, specificity absent, creativity=6
	v := domain.ScoreVector{Clarity: f(8), Context: f(7), Relevance: f(9), Creativity: f(6)}
	o := v.Overall()
	require.NotNil(t, o)
	assert.InDelta(t, 7.5, *o, 1e-9)
}

func TestScoreVector_Overall_AllMissingIsNil(t *testing.T) {
	t.Parallel()
	var v domain.ScoreVector
	assert.Nil(t, v.Overall())
	assert.True(t, v.IsEmpty())
}

func TestScoreVector_Overall_RoundsToOneDecimal(t *testing.T) {
	t.Parallel()
	v := domain.ScoreVector{Clarity: f(7), Context: f(7), Relevance: f(8)}
	o := v.Overall()
	require.NotNil(t, o)
	// (7+7+8)/3 = 7.333... -> 7.3
	assert.InDelta(t, 7.3, *o, 1e-9)
}

func TestScoreVector_Values_CanonicalOrder(t *testing.T) {
	t.Parallel()
	v := domain.ScoreVector{Clarity: f(1), Context: f(2), Relevance: f(3), Specificity: f(4), Creativity: f(5)}
	vals := v.Values()
	require.Len(t, vals, len(domain.Dimensions))
	for i, p := range vals {
		require.NotNil(t, p)
		assert.Equal(t, float64(i+1), *p)
	}
}

func TestAdvice_Degraded(t *testing.T) {
	t.Parallel()
	assert.False(t, domain.Advice{}.Degraded())
	assert.True(t, domain.Advice{ParseErr: "no json found"}.Degraded())
}
