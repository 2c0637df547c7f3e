package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/prompt-evaluator/internal/config"
	"github.com/fairyhunter13/prompt-evaluator/internal/domain"
	"github.com/fairyhunter13/prompt-evaluator/internal/usecase"
)

// ReadinessCheck is one readiness probe result.
type ReadinessCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Details string `json:"details,omitempty"`
}

// ReadinessFunc runs all configured readiness probes.
type ReadinessFunc func(ctx domain.Context) []ReadinessCheck

// Server bundles handler dependencies.
type Server struct {
	Cfg       config.Config
	Evaluate  usecase.EvaluateService
	History   usecase.HistoryService
	Readiness ReadinessFunc
}

// NewServer constructs a Server.
func NewServer(cfg config.Config, ev usecase.EvaluateService, hist usecase.HistoryService, ready ReadinessFunc) *Server {
	return &Server{Cfg: cfg, Evaluate: ev, History: hist, Readiness: ready}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

type evaluateRequest struct {
	Prompt       string             `json:"prompt" validate:"max=20000"`
	Form         *usecase.FormInput `json:"form"`
	K            int                `json:"k" validate:"min=0,max=20"`
	ImproveIfLow bool               `json:"improve_if_low"`
	TemplateID   string             `json:"template_id" validate:"max=200"`
	UserID       string             `json:"user_id" validate:"max=200"`
}

type scoresBlock struct {
	BaseScores  domain.ScoreVector `json:"base_scores"`
	FinalScores domain.ScoreVector `json:"final_scores"`
}

type improvedBlock struct {
	Prompt       string             `json:"prompt"`
	Scores       scoresBlock        `json:"scores"`
	OverallScore *float64           `json:"overall_score"`
}

type evaluateResponse struct {
	Scores          scoresBlock              `json:"scores"`
	OverallScore    *float64                 `json:"overall_score"`
	Suggestions     []domain.Suggestion      `json:"suggestions"`
	RewriteVersions []domain.RewriteVariant  `json:"rewriteVersions"`
	TopRagPrompts   []domain.ReferenceMatch  `json:"top_rag_prompts"`
	TraceID         string                   `json:"trace_id"`
	Raw             string                   `json:"_raw,omitempty"`
	ParseError      string                   `json:"_error,omitempty"`
	Improved        *improvedBlock           `json:"improved,omitempty"`
}

func envelopeFrom(out usecase.EvaluateOutput) evaluateResponse {
	resp := evaluateResponse{
		Scores:          scoresBlock{BaseScores: out.BaseScores, FinalScores: out.FinalScores},
		OverallScore:    out.Overall,
		Suggestions:     out.Suggestions,
		RewriteVersions: out.Rewrites,
		TopRagPrompts:   out.References,
		TraceID:         out.TraceID,
		Raw:             out.Raw,
		ParseError:      out.ParseErr,
	}
	// empty arrays, never null, in the envelope
	if resp.Suggestions == nil {
		resp.Suggestions = []domain.Suggestion{}
	}
	if resp.RewriteVersions == nil {
		resp.RewriteVersions = []domain.RewriteVariant{}
	}
	if resp.TopRagPrompts == nil {
		resp.TopRagPrompts = []domain.ReferenceMatch{}
	}
	if out.Improved != nil {
		resp.Improved = &improvedBlock{
			Prompt:       out.Improved.Prompt,
			Scores:       scoresBlock{BaseScores: out.Improved.BaseScores, FinalScores: out.Improved.FinalScores},
			OverallScore: out.Improved.Overall,
		}
	}
	return resp
}

// EvaluateHandler runs the evaluation pipeline for one prompt.
func (s *Server) EvaluateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req evaluateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			var verrs []map[string]string
			if ve, ok := err.(validator.ValidationErrors); ok {
				for _, fe := range ve {
					verrs = append(verrs, map[string]string{"field": fe.Field(), "rule": fe.Tag()})
				}
			}
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), verrs)
			return
		}

		out, err := s.Evaluate.Evaluate(r.Context(), usecase.EvaluateInput{
			Prompt:       req.Prompt,
			Form:         req.Form,
			TemplateID:   req.TemplateID,
			UserID:       req.UserID,
			K:            req.K,
			ImproveIfLow: req.ImproveIfLow,
		})
		if err != nil {
			if errors.Is(err, domain.ErrInvalidArgument) {
				writeJSON(w, http.StatusBadRequest, errorEnvelope{Error: "Missing or invalid 'prompt'"})
				return
			}
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, envelopeFrom(out))
	}
}

// TraceHandler loads a persisted evaluation by its trace id.
func (s *Server) TraceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		traceID := chi.URLParam(r, "trace_id")
		if traceID == "" {
			writeError(w, r, fmt.Errorf("%w: trace_id missing", domain.ErrInvalidArgument), nil)
			return
		}
		e, err := s.History.GetByTraceID(r.Context(), traceID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, historyItemFrom(e))
	}
}

type historyItem struct {
	TraceID      string                  `json:"trace_id"`
	UserID       string                  `json:"user_id"`
	TemplateID   string                  `json:"template_id,omitempty"`
	Prompt       string                  `json:"prompt"`
	Scores       scoresBlock             `json:"scores"`
	OverallScore *float64                `json:"overall_score"`
	Suggestions  []domain.Suggestion     `json:"suggestions"`
	Rewrites     []domain.RewriteVariant `json:"rewriteVersions"`
	References   []domain.ReferenceMatch `json:"top_rag_prompts"`
	ParseError   string                  `json:"_error,omitempty"`
	CreatedAt    time.Time               `json:"created_at"`
}

func historyItemFrom(e domain.Evaluation) historyItem {
	item := historyItem{
		TraceID:      e.TraceID,
		UserID:       e.UserID,
		TemplateID:   e.TemplateID,
		Prompt:       e.Prompt,
		Scores:       scoresBlock{BaseScores: e.BaseScores, FinalScores: e.FinalScores},
		OverallScore: e.Overall,
		Suggestions:  e.Suggestions,
		Rewrites:     e.Rewrites,
		References:   e.References,
		ParseError:   e.ParseError,
		CreatedAt:    e.CreatedAt,
	}
	if item.Suggestions == nil {
		item.Suggestions = []domain.Suggestion{}
	}
	if item.Rewrites == nil {
		item.Rewrites = []domain.RewriteVariant{}
	}
	if item.References == nil {
		item.References = []domain.ReferenceMatch{}
	}
	return item
}

// HistoryHandler lists a user's recent evaluations.
func (s *Server) HistoryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			writeError(w, r, fmt.Errorf("%w: user_id required", domain.ErrInvalidArgument), nil)
			return
		}
		limit := 20
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 100 {
				writeError(w, r, fmt.Errorf("%w: limit must be 1..100", domain.ErrInvalidArgument), nil)
				return
			}
			limit = n
		}
		items, err := s.History.ListByUser(r.Context(), userID, limit)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		out := make([]historyItem, 0, len(items))
		for _, e := range items {
			out = append(out, historyItemFrom(e))
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": out})
	}
}

// UsageHandler reports the usage counter for a template on a given day
// (default today, UTC).
func (s *Server) UsageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		templateID := chi.URLParam(r, "template_id")
		if templateID == "" {
			writeError(w, r, fmt.Errorf("%w: template_id missing", domain.ErrInvalidArgument), nil)
			return
		}
		day := time.Now().UTC()
		if v := r.URL.Query().Get("day"); v != "" {
			d, err := time.Parse("2006-01-02", v)
			if err != nil {
				writeError(w, r, fmt.Errorf("%w: day must be YYYY-MM-DD", domain.ErrInvalidArgument), nil)
				return
			}
			day = d
		}
		count, err := s.History.UsageOn(r.Context(), templateID, day)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"template_id": templateID,
			"day":         day.Format("2006-01-02"),
			"count":       count,
		})
	}
}

// HealthzHandler reports liveness.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler runs the configured readiness probes; any failure is a 503.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := []ReadinessCheck{}
		if s.Readiness != nil {
			checks = s.Readiness(r.Context())
		}
		status := http.StatusOK
		for _, c := range checks {
			if !c.OK {
				status = http.StatusServiceUnavailable
				break
			}
		}
		writeJSON(w, status, map[string]any{"checks": checks})
	}
}
