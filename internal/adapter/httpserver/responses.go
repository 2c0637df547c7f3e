// Package httpserver contains HTTP handlers and middleware.
//
// It exposes the evaluation pipeline over REST and keeps a clear
// separation between HTTP concerns and business logic.
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fairyhunter13/prompt-evaluator/internal/domain"
)

type errorEnvelope struct {
	Error  string      `json:"error"`
	Detail interface{} `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps sentinel errors to HTTP statuses. Scoring-backend
// unavailability is a gateway failure: no score is better than a fabricated
// one.
func writeError(w http.ResponseWriter, _ *http.Request, err error, detail interface{}) {
	code := http.StatusInternalServerError
	msg := err.Error()
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		code = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, domain.ErrRateLimited):
		code = http.StatusTooManyRequests
	case errors.Is(err, domain.ErrEvaluatorUnavailable):
		code = http.StatusBadGateway
	case errors.Is(err, domain.ErrUpstreamTimeout):
		code = http.StatusBadGateway
	}
	if detail == nil {
		var ue *domain.UpstreamError
		if errors.As(err, &ue) && ue.Body != "" {
			detail = ue.Body
		}
	}
	writeJSON(w, code, errorEnvelope{Error: msg, Detail: detail})
}
