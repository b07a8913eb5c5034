package tools

import (
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
)

// ErrorResponse represents a structured error in tool results.
// Actionable errors are returned as tool results so the client sees them
// instead of a protocol failure.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Do NOT use this for system failures; those return Go errors.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// ServiceErrorResult converts a service error into a tool result when the caller can act on it.
// ok is false for internal failures, which the caller should return as a Go error.
func ServiceErrorResult(err error) (result *mcp.CallToolResult, ok bool) {
	var qe *apperrors.QueryExecutionError
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return NewErrorResult("not_found", "datasource not found"), true
	case errors.Is(err, apperrors.ErrCredentialsKeyMismatch):
		return NewErrorResult("credentials_unreadable",
			"stored credentials cannot be decrypted, re-enter the data source credentials"), true
	case errors.As(err, &qe):
		if code := SQLStateCode(err); code != "" {
			return NewErrorResultWithDetails("query_error", qe.Message, map[string]any{"sqlstate": code}), true
		}
		return NewErrorResult("query_error", qe.Message), true
	case errors.Is(err, apperrors.ErrUnsupportedSourceKind), errors.Is(err, apperrors.ErrInvalidSourceConfig):
		return NewErrorResult("invalid_datasource", err.Error()), true
	}
	return nil, false
}

// SQLStateCode returns the SQLSTATE of a wrapped PostgreSQL error, or "".
func SQLStateCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
