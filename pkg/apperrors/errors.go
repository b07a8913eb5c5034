package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("conflict")
	ErrCredentialsKeyMismatch = errors.New("datasource credentials were encrypted with a different key")
	ErrUnsupportedSourceKind  = errors.New("unsupported source kind")
	ErrInvalidSourceConfig    = errors.New("invalid source configuration")
	ErrInvalidFile            = errors.New("invalid file")

	ErrEmptySQL            = errors.New("sql statement is empty")
	ErrStatementNotAllowed = errors.New("statement not allowed for read-only source")
	ErrTenantScopeRequired = errors.New("tenant scoping required")
	ErrMissingParameter    = errors.New("missing bind parameter")
	ErrSuspiciousParameter = errors.New("parameter rejected")
	ErrQueryFailed         = errors.New("query failed")
)

// DecryptionError reports a config blob that cannot be opened with the current key.
// It is never retryable: the credentials have to be entered again.
type DecryptionError struct {
	Err error
}

func (e *DecryptionError) Error() string {
	if e.Err == nil {
		return ErrCredentialsKeyMismatch.Error()
	}
	return fmt.Sprintf("%s: %v", ErrCredentialsKeyMismatch.Error(), e.Err)
}

// Is lets callers match with errors.Is(err, ErrCredentialsKeyMismatch).
func (e *DecryptionError) Is(target error) bool {
	return target == ErrCredentialsKeyMismatch
}

func (e *DecryptionError) Unwrap() error {
	return e.Err
}

// QueryExecutionError is the single error kind surfaced to callers of query execution.
// Message is safe to show to end users; it never contains connection strings.
type QueryExecutionError struct {
	Message string
	Err     error
}

func (e *QueryExecutionError) Error() string {
	return e.Message
}

func (e *QueryExecutionError) Unwrap() error {
	return e.Err
}

// NewQueryError builds a QueryExecutionError around a sentinel with a formatted message.
func NewQueryError(sentinel error, format string, args ...any) *QueryExecutionError {
	return &QueryExecutionError{
		Message: fmt.Sprintf(format, args...),
		Err:     sentinel,
	}
}

// QueryFailed wraps an already-sanitized driver or engine message.
func QueryFailed(message string) *QueryExecutionError {
	return &QueryExecutionError{Message: message, Err: ErrQueryFailed}
}

// AsQueryError returns err as a QueryExecutionError, wrapping it when needed.
// Only use it for errors whose message is safe to show to users.
func AsQueryError(err error) *QueryExecutionError {
	var qe *QueryExecutionError
	if errors.As(err, &qe) {
		return qe
	}
	return &QueryExecutionError{Message: err.Error(), Err: err}
}

// IsQueryError reports whether err is (or wraps) a QueryExecutionError.
func IsQueryError(err error) bool {
	var qe *QueryExecutionError
	return errors.As(err, &qe)
}
