package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jwebster45206/scene-engine/pkg/state"
)

// maxBodyBytes bounds request bodies; player input itself is far smaller.
const maxBodyBytes = 64 << 10

// statusClientClosedRequest is the nginx convention for a caller that
// hung up before the response.
const statusClientClosedRequest = 499

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

func writeErrorMessage(w http.ResponseWriter, logger *slog.Logger, status int, msg string) {
	writeJSON(w, logger, status, ErrorResponse{Error: msg})
}

// statusFor maps an engine error to its HTTP status and a stable code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, state.ErrValidation):
		return http.StatusUnprocessableEntity, "validation"
	case errors.Is(err, state.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, state.ErrConcurrency):
		return http.StatusConflict, "turn_in_progress"
	case errors.Is(err, state.ErrState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest, "canceled"
	case errors.Is(err, state.ErrUpstream):
		return http.StatusServiceUnavailable, "upstream"
	}
	return http.StatusInternalServerError, "internal"
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		logger.Error("Request failed", "error", err)
		msg = "Internal server error"
	case http.StatusServiceUnavailable:
		logger.Warn("Upstream failure", "error", err)
		w.Header().Set("Retry-After", "5")
	case http.StatusConflict:
		if code == "turn_in_progress" {
			w.Header().Set("Retry-After", "2")
		}
	}
	writeJSON(w, logger, status, ErrorResponse{Error: msg, Code: code})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return state.Validationf("invalid request body: %v", err)
	}
	return nil
}
