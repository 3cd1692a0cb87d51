package llm

import (
	"context"
	"errors"
	"strings"
)

// classify maps an SDK error to a structured Error. The official SDKs
// surface HTTP failures as formatted strings, so status extraction falls
// back to text patterns when no code is present.
func classify(provider string, err error) *Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(provider, ErrTypeTransient, 0, "request timeout", err)
	}
	if errors.Is(err, context.Canceled) {
		return NewError(provider, ErrTypeTransient, 0, "request canceled", err)
	}

	errStr := err.Error()
	if code := extractStatusCode(errStr); code != 0 {
		return NewError(provider, ClassifyHTTP(code), code, errStr, err)
	}

	lower := strings.ToLower(errStr)
	switch {
	case strings.Contains(lower, "timeout"),
		strings.Contains(lower, "connection"),
		strings.Contains(lower, "network"),
		strings.Contains(lower, "temporary"),
		strings.Contains(lower, "eof"),
		strings.Contains(lower, "reset"):
		return NewError(provider, ErrTypeTransient, 0, "network or connection error", err)
	case strings.Contains(lower, "rate"),
		strings.Contains(lower, "quota"),
		strings.Contains(lower, "overloaded"):
		return NewError(provider, ErrTypeRateLimit, 0, "rate limiting detected", err)
	case strings.Contains(lower, "auth"),
		strings.Contains(lower, "api key"),
		strings.Contains(lower, "unauthorized"):
		return NewError(provider, ErrTypeAuth, 0, "authentication error", err)
	case strings.Contains(lower, "invalid"),
		strings.Contains(lower, "malformed"),
		strings.Contains(lower, "too large"):
		return NewError(provider, ErrTypeBadRequest, 0, "request error", err)
	}

	return NewError(provider, ErrTypeUnknown, 0, "unclassified error", err)
}

// extractStatusCode pulls an HTTP status code out of an SDK error string.
func extractStatusCode(errStr string) int {
	lower := strings.ToLower(errStr)
	patterns := []string{"status code: ", "status: ", "http ", "code "}

	codes := map[string]int{
		"400": 400, "401": 401, "403": 403, "404": 404,
		"422": 422, "429": 429, "500": 500, "502": 502,
		"503": 503, "504": 504,
	}

	for _, pattern := range patterns {
		idx := strings.Index(lower, pattern)
		if idx == -1 {
			continue
		}
		start := idx + len(pattern)
		if start+3 > len(errStr) {
			continue
		}
		if code, ok := codes[errStr[start:start+3]]; ok {
			return code
		}
	}
	return 0
}
