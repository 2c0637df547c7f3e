// Package gemini implements domain.AIClient against the Gemini REST API
// (generateContent for chat, batchEmbedContents for embeddings).
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"log/slog"

	"github.com/fairyhunter13/prompt-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/prompt-evaluator/internal/config"
	"github.com/fairyhunter13/prompt-evaluator/internal/domain"
)

// Client implements domain.AIClient using the Gemini REST API.
type Client struct {
	cfg     config.Config
	chatHC  *http.Client
	embedHC *http.Client
}

// New constructs a Gemini client with instrumented transports and sensible
// timeouts.
func New(cfg config.Config) *Client {
	transport := otelhttp.NewTransport(http.DefaultTransport)
	return &Client{
		cfg:     cfg,
		chatHC:  &http.Client{Timeout: cfg.AIChatTimeout, Transport: transport},
		embedHC: &http.Client{Timeout: cfg.AIEmbedTimeout, Transport: transport},
	}
}

func (c *Client) newBackoff(ctx context.Context) backoff.BackOff {
	expo := backoff.NewExponentialBackOff()
	maxElapsed, initial, maxIvl, mult := c.cfg.GetAIBackoffConfig()
	expo.MaxElapsedTime = maxElapsed
	expo.InitialInterval = initial
	expo.MaxInterval = maxIvl
	expo.Multiplier = mult
	return backoff.WithContext(expo, ctx)
}

type genRequest struct {
	SystemInstruction *content   `json:"system_instruction,omitempty"`
	Contents          []content  `json:"contents"`
	GenerationConfig  *genConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type genConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type genResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// ChatJSON calls generateContent and returns the concatenated text parts of
// the first candidate. Rate limits and 5xx replies are retried with bounded
// exponential backoff; other client errors are permanent.
func (c *Client) ChatJSON(ctx domain.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	if c.cfg.GeminiAPIKey == "" {
		return "", fmt.Errorf("%w: GEMINI_API_KEY missing", domain.ErrInvalidArgument)
	}
	reqBody := genRequest{
		SystemInstruction: &content{Parts: []part{{Text: systemPrompt}}},
		Contents:          []content{{Role: "user", Parts: []part{{Text: userPrompt}}}},
		GenerationConfig:  &genConfig{Temperature: 0, MaxOutputTokens: maxTokens},
	}
	b, _ := json.Marshal(reqBody)
	url := fmt.Sprintf("%s/models/%s:generateContent", c.cfg.GeminiBaseURL, c.cfg.GeminiModel)

	var out genResponse
	op := func() error {
		return c.do(ctx, c.chatHC, "chat", url, b, &out)
	}
	if err := backoff.Retry(op, c.newBackoff(ctx)); err != nil {
		return "", fmt.Errorf("op=gemini.chat: %w", err)
	}
	if len(out.Candidates) == 0 {
		return "", fmt.Errorf("op=gemini.chat: %w: empty candidates", domain.ErrInternal)
	}
	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

type embedRequest struct {
	Requests []embedItem `json:"requests"`
}

type embedItem struct {
	Model   string  `json:"model"`
	Content content `json:"content"`
}

type embedResponse struct {
	Embeddings []struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
}

// Embed calls batchEmbedContents and returns one vector per input text.
func (c *Client) Embed(ctx domain.Context, texts []string) ([][]float32, error) {
	if c.cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY missing", domain.ErrInvalidArgument)
	}
	reqBody := embedRequest{Requests: make([]embedItem, 0, len(texts))}
	model := "models/" + c.cfg.GeminiEmbedModel
	for _, t := range texts {
		reqBody.Requests = append(reqBody.Requests, embedItem{Model: model, Content: content{Parts: []part{{Text: t}}}})
	}
	b, _ := json.Marshal(reqBody)
	url := fmt.Sprintf("%s/models/%s:batchEmbedContents", c.cfg.GeminiBaseURL, c.cfg.GeminiEmbedModel)

	var out embedResponse
	op := func() error {
		return c.do(ctx, c.embedHC, "embed", url, b, &out)
	}
	if err := backoff.Retry(op, c.newBackoff(ctx)); err != nil {
		return nil, fmt.Errorf("op=gemini.embed: %w", err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("op=gemini.embed: %w: got %d embeddings for %d texts", domain.ErrInternal, len(out.Embeddings), len(texts))
	}
	vecs := make([][]float32, len(out.Embeddings))
	for i, e := range out.Embeddings {
		vecs[i] = e.Values
	}
	return vecs, nil
}

// do performs one attempt. A retryable condition returns a plain error so
// the backoff loop keeps going; everything else is wrapped as permanent.
func (c *Client) do(ctx context.Context, hc *http.Client, opName, url string, body []byte, out any) error {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.GeminiAPIKey)

	resp, err := hc.Do(req)
	observability.AIRequestsTotal.WithLabelValues("gemini", opName).Inc()
	observability.AIRequestDuration.WithLabelValues("gemini", opName).Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return backoff.Permanent(fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err))
		}
		// transport errors are retryable
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		slog.Warn("gemini rate limited", slog.String("op", opName), slog.Int("status", resp.StatusCode))
		return fmt.Errorf("%w: 429", domain.ErrRateLimited)
	case resp.StatusCode >= 500:
		slog.Warn("gemini server error", slog.String("op", opName), slog.Int("status", resp.StatusCode))
		return fmt.Errorf("gemini status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return backoff.Permanent(fmt.Errorf("gemini status %d: %s", resp.StatusCode, truncate(respBody, 512)))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return backoff.Permanent(fmt.Errorf("gemini decode: %w", err))
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
