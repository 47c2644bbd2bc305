package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/marcus/agencysync/internal/gateway"
	"github.com/marcus/agencysync/internal/orchestrator"
	"github.com/marcus/agencysync/internal/queue"
	"github.com/marcus/agencysync/internal/state"
)

// Error codes for structured API error responses.
const (
	ErrCodeBadRequest        = "bad_request"
	ErrCodeNotFound          = "not_found"
	ErrCodeInternal          = "internal"
	ErrCodeUnknownAction     = "unknown_action"
	ErrCodeRemoteUnavailable = "remote_unavailable"
	ErrCodeNotRunning        = "not_running"
	ErrCodeReplayIncomplete  = "replay_incomplete"
	ErrCodeQueueLocked       = "queue_locked"
)

// APIError represents a structured error returned by the API.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError for JSON serialization.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error: APIError{Code: code, Message: message},
	}); err != nil {
		slog.Error("write error response", "err", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("write json response", "err", err)
	}
}

// writeServiceError maps errors from the instance to a status and code.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, state.ErrMalformedAction):
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, gateway.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, ErrCodeRemoteUnavailable, err.Error())
	case errors.Is(err, orchestrator.ErrClosed), errors.Is(err, orchestrator.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, ErrCodeNotRunning, err.Error())
	case errors.Is(err, queue.ErrLocked):
		writeError(w, http.StatusConflict, ErrCodeQueueLocked, err.Error())
	default:
		logFor(r.Context()).Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "internal error")
	}
}
