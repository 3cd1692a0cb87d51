package llm

import (
	"errors"
	"fmt"
)

// ErrorType classifies backend failures so callers can decide between
// retrying at the transport level and surfacing to the caller.
type ErrorType string

const (
	ErrTypeRateLimit     ErrorType = "rate_limit"     // 429, retryable after backoff
	ErrTypeTransient     ErrorType = "transient"      // 5xx, timeouts, retryable
	ErrTypeAuth          ErrorType = "auth"           // 401/403, not retryable
	ErrTypeBadRequest    ErrorType = "bad_request"    // malformed input, not retryable
	ErrTypeEmptyResponse ErrorType = "empty_response" // model returned nothing
	ErrTypeUnknown       ErrorType = "unknown"
)

// Error is a classified backend error.
type Error struct {
	Type       ErrorType
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (HTTP %d): %s", e.Provider, e.Type, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Type, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether a bounded transport-level retry is worthwhile.
func (e *Error) Retryable() bool {
	switch e.Type {
	case ErrTypeRateLimit, ErrTypeTransient, ErrTypeEmptyResponse:
		return true
	default:
		return false
	}
}

// NewError builds a classified error.
func NewError(provider string, t ErrorType, statusCode int, msg string, cause error) *Error {
	return &Error{Type: t, Provider: provider, StatusCode: statusCode, Message: msg, Err: cause}
}

// ClassifyHTTP maps an HTTP status code to an error class.
func ClassifyHTTP(statusCode int) ErrorType {
	switch {
	case statusCode == 429:
		return ErrTypeRateLimit
	case statusCode == 401 || statusCode == 403:
		return ErrTypeAuth
	case statusCode == 400 || statusCode == 404 || statusCode == 422:
		return ErrTypeBadRequest
	case statusCode >= 500:
		return ErrTypeTransient
	default:
		return ErrTypeUnknown
	}
}

// As extracts a classified error from an error chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// IsType reports whether err carries the given classification.
func IsType(err error, t ErrorType) bool {
	e, ok := As(err)
	return ok && e.Type == t
}
