package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/p-arndt/werkbank/internal/session"
	"github.com/p-arndt/werkbank/internal/store"
	"github.com/p-arndt/werkbank/internal/workspace"
)

// Error codes returned in API responses
const (
	ErrCodeSandboxUnavailable = "SANDBOX_UNAVAILABLE"
	ErrCodeFileNotFound       = "FILE_NOT_FOUND"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
)

// APIError represents a structured API error response
type APIError struct {
	Code    string         `json:"error_code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// writeAPIError writes a structured error response with appropriate HTTP status
func writeAPIError(w http.ResponseWriter, err error) {
	apiErr := APIError{Code: ErrCodeInternalError, Message: err.Error()}
	statusCode := http.StatusInternalServerError

	switch {
	case errors.Is(err, session.ErrUnavailable):
		apiErr.Code = ErrCodeSandboxUnavailable
		statusCode = http.StatusServiceUnavailable

	case errors.Is(err, workspace.ErrNotFound), errors.Is(err, store.ErrNotFound):
		apiErr.Code = ErrCodeFileNotFound
		statusCode = http.StatusNotFound

	case errors.Is(err, workspace.ErrInvalidPath), errors.Is(err, session.ErrInvalidChatID):
		apiErr.Code = ErrCodeInvalidRequest
		statusCode = http.StatusBadRequest
	}

	writeJSON(w, statusCode, apiErr)
}

// writeValidationError writes a 400 Bad Request with validation details
func writeValidationError(w http.ResponseWriter, message string, details map[string]any) {
	writeJSON(w, http.StatusBadRequest, APIError{
		Code:    ErrCodeInvalidRequest,
		Message: message,
		Details: details,
	})
}

func writeNotFoundError(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusNotFound, APIError{
		Code:    ErrCodeFileNotFound,
		Message: message,
	})
}

// writeUnauthorizedError writes a 401 Unauthorized error
func writeUnauthorizedError(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusUnauthorized, APIError{
		Code:    ErrCodeUnauthorized,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
