// Package ridge implements domain.ScoreBackend against the external
// regression scorer service. The service owns the embedding model and the
// ridge regressor; this client only speaks its small HTTP contract.
package ridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"log/slog"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/prompt-evaluator/internal/config"
	"github.com/fairyhunter13/prompt-evaluator/internal/domain"
)

// Client calls the scorer service. Any failure to obtain scores maps to
// domain.ErrEvaluatorUnavailable; the pipeline treats the regressor as a
// hard dependency.
type Client struct {
	baseURL string
	hc      *http.Client
}

// New constructs a scorer client from config.
func New(cfg config.Config) *Client {
	return &Client{
		baseURL: cfg.ScorerURL,
		hc: &http.Client{
			Timeout:   cfg.ScorerTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// errBodyLimit caps how much of an error response body is retained.
const errBodyLimit = 2048

type scoreRequest struct {
	Prompt string `json:"prompt"`
}

type scoreResponse struct {
	Prompt        string             `json:"prompt"`
	BaseScores    map[string]float64 `json:"base_scores"`
	FinalScores   map[string]float64 `json:"final_scores"`
	ScorerVersion string             `json:"scorer_version"`
}

// Score posts the prompt to /score and returns the regressor's base scores.
// The penalty is applied by the pipeline, not read back from the service.
func (c *Client) Score(ctx domain.Context, prompt string) (domain.ScoreResult, error) {
	body, _ := json.Marshal(scoreRequest{Prompt: prompt})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/score", bytes.NewReader(body))
	if err != nil {
		return domain.ScoreResult{}, fmt.Errorf("op=ridge.score: %w: %v", domain.ErrEvaluatorUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return domain.ScoreResult{}, fmt.Errorf("op=ridge.score: %w: %v", domain.ErrEvaluatorUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		// keep a bounded slice of the body so the API can return it as detail
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyLimit))
		return domain.ScoreResult{}, &domain.UpstreamError{
			Op:     "ridge.score",
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(raw)),
		}
	}

	var out scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.ScoreResult{}, fmt.Errorf("op=ridge.score: %w: decode: %v", domain.ErrEvaluatorUnavailable, err)
	}
	if len(out.BaseScores) == 0 {
		return domain.ScoreResult{}, fmt.Errorf("op=ridge.score: %w: empty base_scores", domain.ErrEvaluatorUnavailable)
	}
	slog.Debug("ridge scored prompt", slog.String("scorer_version", out.ScorerVersion))
	return domain.ScoreResult{Scores: vectorFromMap(out.BaseScores)}, nil
}

// Ping reports whether the scorer service is reachable. Used by readiness.
func (c *Client) Ping(ctx domain.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("op=ridge.ping: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	// Any HTTP answer means the process is up; older deployments 404 here.
	return nil
}

func vectorFromMap(m map[string]float64) domain.ScoreVector {
	pick := func(k string) *float64 {
		if v, ok := m[k]; ok {
			return &v
		}
		return nil
	}
	return domain.ScoreVector{
		Clarity:     pick("clarity"),
		Context:     pick("context"),
		Relevance:   pick("relevance"),
		Specificity: pick("specificity"),
		Creativity:  pick("creativity"),
	}
}
