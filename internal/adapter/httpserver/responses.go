// Package httpserver contains HTTP handlers and middleware.
//
// It exposes uploads, session creation, session status and report
// rendering, and the health endpoints.
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fairyhunter13/ai-interview-auditor/internal/domain"
	"github.com/fairyhunter13/ai-interview-auditor/internal/usecase"
)

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps a sentinel error to an HTTP status and a stable code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, usecase.ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA"
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, "INVALID_ARGUMENT"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMITED"
	case errors.Is(err, domain.ErrUpstreamTimeout):
		return http.StatusServiceUnavailable, "UPSTREAM_TIMEOUT"
	case errors.Is(err, domain.ErrUpstreamRateLimit):
		return http.StatusServiceUnavailable, "UPSTREAM_RATE_LIMIT"
	case errors.Is(err, domain.ErrRetriesExhausted):
		return http.StatusServiceUnavailable, "RETRIES_EXHAUSTED"
	case errors.Is(err, domain.ErrSchemaInvalid), errors.Is(err, domain.ErrEmptyResult):
		return http.StatusServiceUnavailable, "SCHEMA_INVALID"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

func writeError(w http.ResponseWriter, r *http.Request, err error, details any) {
	code, codeStr := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		LoggerFrom(r).Error("request failed", "error", err)
		msg = http.StatusText(code)
	}
	writeJSON(w, code, errorEnvelope{Error: apiError{Code: codeStr, Message: msg, Details: details}})
}
