// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/intelstream/internal/logging"
	"github.com/tomtom215/intelstream/internal/validation"
)

// APIError represents an error response.
type APIError struct {
	// Code is a machine-readable error code
	Code string `json:"code"`

	// Message is a human-readable error message
	Message string `json:"message"`

	// Details contains additional error details (optional)
	Details interface{} `json:"details,omitempty"`

	// RequestID is the request ID for tracing
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// FieldError is one entry of a validation failure's details.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error codes for API responses
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeTooManyRequests    = "TOO_MANY_REQUESTS"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeDatabaseError      = "DATABASE_ERROR"
)

// respondJSON writes data as JSON with the given status code.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// respondError writes an error envelope carrying the request id.
func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	respondErrorWithDetails(w, r, status, code, message, nil)
}

func respondErrorWithDetails(w http.ResponseWriter, r *http.Request, status int, code, message string, details interface{}) {
	respondJSON(w, status, ErrorResponse{
		Error: &APIError{
			Code:      code,
			Message:   message,
			Details:   details,
			RequestID: logging.RequestIDFromContext(r.Context()),
		},
	})
}

// respondValidationError writes a 400 listing every failed field.
func respondValidationError(w http.ResponseWriter, r *http.Request, verr *validation.RequestValidationError) {
	errs := verr.Errors()
	details := make([]FieldError, 0, len(errs))
	for i := range errs {
		details = append(details, FieldError{Field: errs[i].Field(), Message: errs[i].Error()})
	}
	respondErrorWithDetails(w, r, http.StatusBadRequest, ErrCodeValidationFailed, "invalid request parameters", details)
}

// respondDatabaseError logs err and writes a generic 500.
func respondDatabaseError(w http.ResponseWriter, r *http.Request, err error) {
	logging.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Database error")
	respondError(w, r, http.StatusInternalServerError, ErrCodeDatabaseError, "a database error occurred")
}
