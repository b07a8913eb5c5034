package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
)

// ApiResponse wraps successful payloads.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// classifyError maps a service error to a status, an error code and a message safe to show.
// Query errors carry their own user-facing message; anything unrecognized is internal.
func classifyError(err error) (int, string, string) {
	var qe *apperrors.QueryExecutionError
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "not_found", "Resource not found"
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict, "duplicate_name", "A resource with this name already exists"
	case errors.Is(err, apperrors.ErrCredentialsKeyMismatch):
		return http.StatusConflict, "credentials_unreadable",
			"Stored credentials cannot be decrypted, re-enter the data source credentials"
	case errors.As(err, &qe):
		return http.StatusBadRequest, "query_error", qe.Message
	case errors.Is(err, apperrors.ErrInvalidSourceConfig):
		return http.StatusBadRequest, "invalid_config", err.Error()
	case errors.Is(err, apperrors.ErrInvalidFile):
		return http.StatusBadRequest, "invalid_file", err.Error()
	case errors.Is(err, apperrors.ErrUnsupportedSourceKind):
		return http.StatusBadRequest, "unsupported_source", err.Error()
	}
	return http.StatusInternalServerError, "internal_error", "Internal server error"
}

// WriteServiceError writes the response for err. Internal errors are logged, never echoed.
func WriteServiceError(w http.ResponseWriter, err error, logger *zap.Logger, msg string, fields ...zap.Field) {
	status, code, message := classifyError(err)
	if status == http.StatusInternalServerError {
		logger.Error(msg, append(fields, zap.Error(err))...)
	} else {
		logger.Debug(msg, append(fields, zap.String("error", err.Error()))...)
	}
	if err := ErrorResponse(w, status, code, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}
