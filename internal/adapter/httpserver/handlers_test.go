package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/prompt-evaluator/internal/config"
	"github.com/fairyhunter13/prompt-evaluator/internal/domain"
	"github.com/fairyhunter13/prompt-evaluator/internal/usecase"
)

func fptr(v float64) *float64 { return &v }

type retrieverStub struct {
	refs []domain.ReferenceMatch
}

func (r *retrieverStub) Retrieve(_ domain.Context, _ string, _ int) ([]domain.ReferenceMatch, error) {
	return r.refs, nil
}

type scorerStub struct {
	res domain.ScoreResult
	err error
}

func (s *scorerStub) Score(_ domain.Context, _ string) (domain.ScoreResult, error) {
	return s.res, s.err
}

type advisorStub struct {
	advice domain.Advice
	err    error
}

func (a *advisorStub) Advise(_ domain.Context, _ string, _ domain.ScoreVector, _ []domain.ReferenceMatch) (domain.Advice, error) {
	return a.advice, a.err
}

type evalRepoStub struct {
	byTrace map[string]domain.Evaluation
}

func (r *evalRepoStub) Save(_ domain.Context, e domain.Evaluation) error {
	if r.byTrace == nil {
		r.byTrace = map[string]domain.Evaluation{}
	}
	r.byTrace[e.TraceID] = e
	return nil
}

func (r *evalRepoStub) GetByTraceID(_ domain.Context, traceID string) (domain.Evaluation, error) {
	e, ok := r.byTrace[traceID]
	if !ok {
		return domain.Evaluation{}, fmt.Errorf("op=get: %w", domain.ErrNotFound)
	}
	return e, nil
}

func (r *evalRepoStub) ListByUser(_ domain.Context, userID string, _ int) ([]domain.Evaluation, error) {
	var out []domain.Evaluation
	for _, e := range r.byTrace {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

type usageRepoStub struct {
	counts map[string]int64
}

func (u *usageRepoStub) Increment(_ domain.Context, templateID, _ string, day time.Time) (int64, error) {
	if u.counts == nil {
		u.counts = map[string]int64{}
	}
	key := templateID + ":" + day.UTC().Format("2006-01-02")
	u.counts[key]++
	return u.counts[key], nil
}

func (u *usageRepoStub) Get(_ domain.Context, templateID string, day time.Time) (int64, error) {
	return u.counts[templateID+":"+day.UTC().Format("2006-01-02")], nil
}

func newTestServer(t *testing.T, scorer *scorerStub, advisor *advisorStub) (*Server, *evalRepoStub) {
	t.Helper()
	repo := &evalRepoStub{}
	usage := &usageRepoStub{}
	svc := usecase.NewEvaluateService(
		usecase.NewNormalizer(config.DefaultTaskPhrases()),
		&retrieverStub{},
		scorer,
		advisor,
		nil,
		usecase.EvaluateConfig{RetrieveTopK: 5, LowScoreThreshold: 5.5, ImprovementMargin: 0.25, XPMinimum: 10, XPPerPoint: 10},
	)
	hist := usecase.NewHistoryService(repo, usage)
	return NewServer(config.Config{}, svc, hist, nil), repo
}

func TestEvaluateHandler_EmptyPromptRejected(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, &scorerStub{}, &advisorStub{})

	req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", strings.NewReader(`{"prompt":"   "}`))
	rec := httptest.NewRecorder()
	srv.EvaluateHandler()(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Missing or invalid 'prompt'", body["error"])
}

func TestEvaluateHandler_InvalidJSONRejected(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, &scorerStub{}, &advisorStub{})

	req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", strings.NewReader(`{"prompt":`))
	rec := httptest.NewRecorder()
	srv.EvaluateHandler()(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEvaluateHandler_Envelope(t *testing.T) {
	t.Parallel()
	scorer := &scorerStub{res: domain.ScoreResult{Scores: domain.ScoreVector{
		Clarity: fptr(6), Context: fptr(5), Relevance: fptr(7), Specificity: fptr(4), Creativity: fptr(5),
	}}}
	advisor := &advisorStub{advice: domain.Advice{
		Suggestions: []domain.Suggestion{{Text: "state the output format"}},
		Rewrites:    []domain.RewriteVariant{{Title: "Enhanced", Content: "Write a REST API in Go with 3 endpoints"}},
	}}
	srv, _ := newTestServer(t, scorer, advisor)

	body := `{"prompt":"Design a REST API with 3 endpoints for managing users, with validation criteria listed"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.EvaluateHandler()(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.NotEmpty(t, resp["trace_id"])
	assert.NotNil(t, resp["overall_score"])
	assert.NotContains(t, resp, "_error")
	assert.NotContains(t, resp, "_raw")

	scores, ok := resp["scores"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, scores, "base_scores")
	assert.Contains(t, scores, "final_scores")

	// arrays are present even when empty
	refs, ok := resp["top_rag_prompts"].([]any)
	require.True(t, ok)
	assert.Empty(t, refs)
	sugg, ok := resp["suggestions"].([]any)
	require.True(t, ok)
	assert.Len(t, sugg, 1)
}

func TestEvaluateHandler_DegradedAdviceSurfacesError(t *testing.T) {
	t.Parallel()
	scorer := &scorerStub{res: domain.ScoreResult{Scores: domain.ScoreVector{Clarity: fptr(8)}}}
	advisor := &advisorStub{advice: domain.Advice{Raw: "not json at all", ParseErr: "no JSON object found"}}
	srv, _ := newTestServer(t, scorer, advisor)

	req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", strings.NewReader(`{"prompt":"Summarize the 2024 report in 5 bullet points"}`))
	rec := httptest.NewRecorder()
	srv.EvaluateHandler()(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "no JSON object found", resp["_error"])
	assert.Equal(t, "not json at all", resp["_raw"])
	assert.NotNil(t, resp["overall_score"])
	assert.Empty(t, resp["suggestions"])
}

func TestEvaluateHandler_ScorerDownIsBadGateway(t *testing.T) {
	t.Parallel()
	scorer := &scorerStub{err: fmt.Errorf("op=score: %w", domain.ErrEvaluatorUnavailable)}
	srv, _ := newTestServer(t, scorer, &advisorStub{})

	req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", strings.NewReader(`{"prompt":"Summarize the 2024 report"}`))
	rec := httptest.NewRecorder()
	srv.EvaluateHandler()(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "evaluator unavailable")
}

func TestEvaluateHandler_ScorerDownDetailCarriesUpstreamBody(t *testing.T) {
	t.Parallel()
	scorer := &scorerStub{err: &domain.UpstreamError{
		Op:     "ridge.score",
		Status: http.StatusServiceUnavailable,
		Body:   `{"error":"model not loaded"}`,
	}}
	srv, _ := newTestServer(t, scorer, &advisorStub{})

	req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", strings.NewReader(`{"prompt":"Summarize the 2024 report"}`))
	rec := httptest.NewRecorder()
	srv.EvaluateHandler()(rec, req)

	require.Equal(t, http.StatusBadGateway, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "evaluator unavailable")
	assert.Equal(t, `{"error":"model not loaded"}`, body["detail"])
}

func TestEvaluateHandler_KOutOfRangeRejected(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, &scorerStub{}, &advisorStub{})

	req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", strings.NewReader(`{"prompt":"hello","k":50}`))
	rec := httptest.NewRecorder()
	srv.EvaluateHandler()(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func withRouteParam(req *http.Request, key, value string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func traceRequest(traceID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/v1/evaluations/"+traceID, nil)
	return withRouteParam(req, "trace_id", traceID)
}

func TestTraceHandler_NotFound(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, &scorerStub{}, &advisorStub{})

	rec := httptest.NewRecorder()
	srv.TraceHandler()(rec, traceRequest("01XYZ"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTraceHandler_ReturnsStoredEvaluation(t *testing.T) {
	t.Parallel()
	srv, repo := newTestServer(t, &scorerStub{}, &advisorStub{})
	require.NoError(t, repo.Save(context.Background(), domain.Evaluation{
		TraceID:     "01TRACE",
		UserID:      "u-1",
		Prompt:      "Write docs",
		FinalScores: domain.ScoreVector{Clarity: fptr(7.5)},
		Overall:     fptr(7.5),
		CreatedAt:   time.Now().UTC(),
	}))

	rec := httptest.NewRecorder()
	srv.TraceHandler()(rec, traceRequest("01TRACE"))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "01TRACE", resp["trace_id"])
	assert.Equal(t, 7.5, resp["overall_score"])
	// empty arrays, never null
	assert.NotNil(t, resp["suggestions"])
	assert.NotNil(t, resp["rewriteVersions"])
}

func TestHistoryHandler_RequiresUserID(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, &scorerStub{}, &advisorStub{})

	req := httptest.NewRequest(http.MethodGet, "/v1/history", nil)
	rec := httptest.NewRecorder()
	srv.HistoryHandler()(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryHandler_ListsUserEvaluations(t *testing.T) {
	t.Parallel()
	srv, repo := newTestServer(t, &scorerStub{}, &advisorStub{})
	require.NoError(t, repo.Save(context.Background(), domain.Evaluation{TraceID: "t-1", UserID: "u-1", Prompt: "a"}))
	require.NoError(t, repo.Save(context.Background(), domain.Evaluation{TraceID: "t-2", UserID: "u-2", Prompt: "b"}))

	req := httptest.NewRequest(http.MethodGet, "/v1/history?user_id=u-1", nil)
	rec := httptest.NewRecorder()
	srv.HistoryHandler()(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Items []map[string]any `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "t-1", resp.Items[0]["trace_id"])
}

func TestHistoryHandler_LimitValidated(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, &scorerStub{}, &advisorStub{})

	req := httptest.NewRequest(http.MethodGet, "/v1/history?user_id=u-1&limit=9999", nil)
	rec := httptest.NewRecorder()
	srv.HistoryHandler()(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUsageHandler_ReturnsCount(t *testing.T) {
	t.Parallel()
	repo := &evalRepoStub{}
	usage := &usageRepoStub{}
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	_, err := usage.Increment(context.Background(), "software.api", "u-1", day)
	require.NoError(t, err)
	_, err = usage.Increment(context.Background(), "software.api", "u-2", day)
	require.NoError(t, err)

	srv := NewServer(config.Config{}, usecase.EvaluateService{}, usecase.NewHistoryService(repo, usage), nil)

	req := withRouteParam(httptest.NewRequest(http.MethodGet, "/v1/usage/software.api?day=2026-03-14", nil), "template_id", "software.api")
	rec := httptest.NewRecorder()
	srv.UsageHandler()(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(2), resp["count"])
	assert.Equal(t, "2026-03-14", resp["day"])
}

func TestUsageHandler_BadDayRejected(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, &scorerStub{}, &advisorStub{})

	req := withRouteParam(httptest.NewRequest(http.MethodGet, "/v1/usage/software.api?day=14-03-2026", nil), "template_id", "software.api")
	rec := httptest.NewRecorder()
	srv.UsageHandler()(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthzHandler(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, &scorerStub{}, &advisorStub{})

	rec := httptest.NewRecorder()
	srv.HealthzHandler()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzHandler_FailingCheckIs503(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, &scorerStub{}, &advisorStub{})
	srv.Readiness = func(_ domain.Context) []ReadinessCheck {
		return []ReadinessCheck{
			{Name: "db", OK: true},
			{Name: "redis", OK: false, Details: "connection refused"},
		}
	}

	rec := httptest.NewRecorder()
	srv.ReadyzHandler()(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
