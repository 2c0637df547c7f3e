package domain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrNotFound             = errors.New("not found")
	ErrRateLimited          = errors.New("rate limited")
	ErrUpstreamTimeout      = errors.New("upstream timeout")
	ErrEvaluatorUnavailable = errors.New("evaluator unavailable")
	ErrInternal             = errors.New("internal error")
)

// UpstreamError records a failed HTTP exchange with a scoring backend,
// keeping the (truncated) response body so API error payloads can surface
// it. Unwraps to ErrEvaluatorUnavailable.
type UpstreamError struct {
	Op     string
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("op=%s: %v: status %d", e.Op, ErrEvaluatorUnavailable, e.Status)
}

func (e *UpstreamError) Unwrap() error { return ErrEvaluatorUnavailable }

// Dimensions lists the five score axes in canonical order.
var Dimensions = []string{"clarity", "context", "relevance", "specificity", "creativity"}

// ScoreVector holds the five-dimension score set. Nil means the dimension
// is absent (e.g. the model reply could not be parsed); consumers must
// tolerate nil and out-of-range values.
type ScoreVector struct {
	Clarity     *float64 `json:"clarity"`
	Context     *float64 `json:"context"`
	Relevance   *float64 `json:"relevance"`
	Specificity *float64 `json:"specificity"`
	Creativity  *float64 `json:"creativity"`
}

// Values returns pointers to the dimensions in canonical order.
func (v ScoreVector) Values() []*float64 {
	return []*float64{v.Clarity, v.Context, v.Relevance, v.Specificity, v.Creativity}
}

// IsEmpty reports whether every dimension is absent.
func (v ScoreVector) IsEmpty() bool {
	for _, p := range v.Values() {
		if p != nil {
			return false
		}
	}
	return true
}

// Overall returns the arithmetic mean of the present dimensions rounded to
// one decimal, or nil when every dimension is absent. Missing dimensions
// are excluded from the average, never counted as zero.
func (v ScoreVector) Overall() *float64 {
	var sum float64
	var n int
	for _, p := range v.Values() {
		if p != nil {
			sum += *p
			n++
		}
	}
	if n == 0 {
		return nil
	}
	o := math.Round(sum/float64(n)*10) / 10
	return &o
}

// ReferenceMatch is one retrieved neighbor from the reference corpus.
// Advisory context only; absent metadata fields stay empty strings.
type ReferenceMatch struct {
	Content       string  `json:"content"`
	SourceURL     string  `json:"source_url"`
	PageTitle     string  `json:"page_title"`
	PromptPreview string  `json:"prompt_preview"`
	ParentRow     string  `json:"parent_row"`
	ChunkIndex    int     `json:"chunk_index"`
	Similarity    float64 `json:"similarity"`
}

// Suggestion is a free-text improvement note.
type Suggestion struct {
	Text string `json:"text"`
}

// RewriteVariant is one rewritten version of the prompt. The advisor asks
// for three (Enhanced/Alternative/Minimalist) but callers tolerate 0..N.
type RewriteVariant struct {
	Title        string       `json:"title"`
	Content      string       `json:"content"`
	Improvements []Suggestion `json:"improvements"`
}

// Advice is the advisor output. When the model reply could not be parsed,
// Suggestions and Rewrites are empty and Raw/ParseErr carry the capture.
type Advice struct {
	Suggestions []Suggestion
	Rewrites    []RewriteVariant
	Raw         string
	ParseErr    string
}

// Degraded reports whether this advice came from an unparseable reply.
func (a Advice) Degraded() bool { return a.ParseErr != "" }

// ScoreResult is a score backend output. Raw/ParseErr are set when an
// LLM-backed scorer replied with text that did not contain parseable JSON;
// the vector is then all-nil rather than an error.
type ScoreResult struct {
	Scores   ScoreVector
	Raw      string
	ParseErr string
}

// Evaluation is the durable unit of work. TraceID is assigned exactly once
// per evaluation, before any side effect fires, and correlates the response
// with the history row, usage counters and XP award.
type Evaluation struct {
	TraceID     string
	UserID      string
	TemplateID  string
	Prompt      string
	BaseScores  ScoreVector
	FinalScores ScoreVector
	Overall     *float64
	Suggestions []Suggestion
	Rewrites    []RewriteVariant
	References  []ReferenceMatch
	RawOutput   string
	ParseError  string
	CreatedAt   time.Time
}

// XPAward credits experience points to a user's progress ledger.
type XPAward struct {
	UserID  string
	TraceID string
	Amount  int
	Reason  string
}

// Ports

// AIClient talks to the generative model provider.
type AIClient interface {
	// Embed returns embedding vectors for texts.
	Embed(ctx Context, texts []string) ([][]float32, error)
	// ChatJSON sends an instruction expecting a JSON reply and returns the
	// raw message content (which may or may not contain valid JSON).
	ChatJSON(ctx Context, systemPrompt, userPrompt string, maxTokens int) (string, error)
}

// ReferenceRetriever returns the top-k reference prompts most similar to
// the canonical text. Implementations swallow upstream failures and return
// an empty slice; retrieval augments but never gates scoring.
type ReferenceRetriever interface {
	Retrieve(ctx Context, prompt string, k int) ([]ReferenceMatch, error)
}

// ScoreBackend produces base scores for a canonical prompt.
type ScoreBackend interface {
	Score(ctx Context, prompt string) (ScoreResult, error)
}

// Advisor produces suggestions and rewrite variants for a prompt given its
// score context and retrieved references.
type Advisor interface {
	Advise(ctx Context, prompt string, scores ScoreVector, refs []ReferenceMatch) (Advice, error)
}

// EvaluationRepository persists evaluation history.
type EvaluationRepository interface {
	Save(ctx Context, e Evaluation) error
	GetByTraceID(ctx Context, traceID string) (Evaluation, error)
	ListByUser(ctx Context, userID string, limit int) ([]Evaluation, error)
}

// UsageCounterRepository tracks per-template usage. Increment must be
// atomic: concurrent evaluations of the same template/day may not lose
// updates. Counters are never decremented by this pipeline.
type UsageCounterRepository interface {
	Increment(ctx Context, templateID, userID string, day time.Time) (int64, error)
	Get(ctx Context, templateID string, day time.Time) (int64, error)
}

// XPLedger awards experience points and returns the new total.
type XPLedger interface {
	Award(ctx Context, a XPAward) (int64, error)
}

// Context aliases context.Context so adapters and usecases share one name.
type Context = context.Context
