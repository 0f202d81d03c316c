// Package handlers implements the HTTP request handlers for the riskscan
// API: scan lifecycle operations, target validation, risk assessment,
// schedules, readiness, and live progress streaming.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/redforge/riskscan/internal/api/middleware"
	scanerrors "github.com/redforge/riskscan/internal/errors"
	"github.com/redforge/riskscan/internal/identity"
	"github.com/redforge/riskscan/internal/logging"
)

// maxRequestBody bounds request payloads.
const maxRequestBody = 1 << 20

// validate is the shared request validator.
var validate = validator.New()

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error     string    `json:"error"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, logger *logging.Logger, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("could not encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, logger *logging.Logger, status int, err error) {
	logger.Warn("request failed",
		"request_id", middleware.RequestID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"error", err)

	writeJSON(w, logger, status, ErrorResponse{
		Error:     err.Error(),
		RequestID: middleware.RequestID(r.Context()),
		Timestamp: time.Now().UTC(),
	})
}

// writeServiceError maps domain errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *logging.Logger, err error) {
	switch {
	case scanerrors.IsValidation(err):
		writeError(w, r, logger, http.StatusBadRequest, err)
	case scanerrors.IsNotFound(err):
		writeError(w, r, logger, http.StatusNotFound, err)
	default:
		writeError(w, r, logger, http.StatusInternalServerError, err)
	}
}

// parseJSON decodes a bounded, strict JSON body into v and applies
// struct-tag validation.
func parseJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if r.Body == nil {
		return fmt.Errorf("empty request body")
	}

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}

	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

// requester returns the authenticated principal id. The authentication
// middleware guarantees its presence on protected routes.
func requester(r *http.Request) (string, error) {
	principal, ok := identity.FromContext(r.Context())
	if !ok || principal == nil {
		return "", scanerrors.ErrUnauthenticated("no principal on request")
	}
	return principal.ID, nil
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
