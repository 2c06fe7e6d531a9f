package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/longregen/promptforge/internal/adapters/http/dto"
	"github.com/longregen/promptforge/internal/domain"
)

// respondJSON writes a JSON response with the given status code
func respondJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError writes an error JSON response
func respondError(w http.ResponseWriter, errorType string, message string, status int) {
	respondJSON(w, dto.NewErrorResponse(errorType, message, status), status)
}

// respondServiceError maps a service error onto an HTTP status.
// Unclassified errors are logged and reported without their detail.
func respondServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		respondError(w, dto.ErrorValidation, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, dto.ErrorNotFound, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrAlreadyRunning),
		errors.Is(err, domain.ErrNoRollbackTarget),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrTickInProgress):
		respondError(w, dto.ErrorConflict, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrTimeout):
		respondError(w, dto.ErrorTimeout, err.Error(), http.StatusGatewayTimeout)
	default:
		logger.Error("request failed", zap.Error(err))
		respondError(w, dto.ErrorInternal, "internal server error", http.StatusInternalServerError)
	}
}

// parseIntQuery parses an integer query parameter with a default value
func parseIntQuery(r *http.Request, name string, defaultValue int) int {
	value := r.URL.Query().Get(name)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

// parseDurationQuery parses a Go duration query parameter such as "72h"
func parseDurationQuery(r *http.Request, name string, defaultValue time.Duration) (time.Duration, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return 0, domain.Validation(name + " must be a positive duration")
	}
	return d, nil
}

// validateURLParam validates and returns a URL parameter
func validateURLParam(r *http.Request, w http.ResponseWriter, paramName, errorField string) (string, bool) {
	value := chi.URLParam(r, paramName)
	if value == "" {
		respondError(w, dto.ErrorInvalidRequest, errorField+" is required", http.StatusBadRequest)
		return "", false
	}
	return value, true
}

// decodeJSON decodes JSON request body with error handling
func decodeJSON[T any](r *http.Request, w http.ResponseWriter) (*T, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 1024*1024) // 1MB limit

	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, dto.ErrorInvalidRequest, "Invalid request body", http.StatusBadRequest)
		return nil, false
	}
	return &req, true
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be empty
func decodeOptionalJSON[T any](r *http.Request, w http.ResponseWriter) (*T, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 1024*1024)

	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, dto.ErrorInvalidRequest, "Invalid request body", http.StatusBadRequest)
		return nil, false
	}
	return &req, true
}
