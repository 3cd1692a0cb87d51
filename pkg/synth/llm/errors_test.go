package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyHTTP(t *testing.T) {
	tests := []struct {
		code int
		want ErrorType
	}{
		{429, ErrTypeRateLimit},
		{401, ErrTypeAuth},
		{403, ErrTypeAuth},
		{400, ErrTypeBadRequest},
		{422, ErrTypeBadRequest},
		{500, ErrTypeTransient},
		{503, ErrTypeTransient},
		{302, ErrTypeUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyHTTP(tt.code), "code %d", tt.code)
	}
}

func TestErrorRetryable(t *testing.T) {
	assert.True(t, NewError("x", ErrTypeRateLimit, 429, "", nil).Retryable())
	assert.True(t, NewError("x", ErrTypeTransient, 503, "", nil).Retryable())
	assert.True(t, NewError("x", ErrTypeEmptyResponse, 0, "", nil).Retryable())
	assert.False(t, NewError("x", ErrTypeAuth, 401, "", nil).Retryable())
	assert.False(t, NewError("x", ErrTypeBadRequest, 400, "", nil).Retryable())
	assert.False(t, NewError("x", ErrTypeUnknown, 0, "", nil).Retryable())
}

func TestClassifyFromErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"status code extracted", fmt.Errorf("request failed, status code: 429, retry later"), ErrTypeRateLimit},
		{"server error code", fmt.Errorf("HTTP 503 service unavailable"), ErrTypeTransient},
		{"network pattern", fmt.Errorf("dial tcp: connection refused"), ErrTypeTransient},
		{"quota pattern", fmt.Errorf("monthly quota exceeded"), ErrTypeRateLimit},
		{"auth pattern", fmt.Errorf("invalid api key provided"), ErrTypeAuth},
		{"unknown", fmt.Errorf("something odd"), ErrTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("test", tt.err)
			assert.Equal(t, tt.want, got.Type)
		})
	}
}

func TestErrorUnwrapAndAs(t *testing.T) {
	cause := errors.New("root cause")
	err := NewError("anthropic", ErrTypeTransient, 502, "server error", cause)

	wrapped := fmt.Errorf("completing batch: %w", err)
	got, ok := As(wrapped)
	assert.True(t, ok)
	assert.Equal(t, ErrTypeTransient, got.Type)
	assert.True(t, errors.Is(wrapped, cause))
	assert.True(t, IsType(wrapped, ErrTypeTransient))
	assert.False(t, IsType(wrapped, ErrTypeAuth))
}
