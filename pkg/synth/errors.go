package synth

import (
	"errors"
	"fmt"
)

// TokenBudgetError means a single file's required context exceeds the
// model's capacity. The round aborts entirely; no partial commit happens.
type TokenBudgetError struct {
	Filename string
	Tokens   int
	Limit    int
}

func (e *TokenBudgetError) Error() string {
	return fmt.Sprintf("token budget exceeded for %s: %d tokens (limit %d)", e.Filename, e.Tokens, e.Limit)
}

// InvalidRequestError means the synthesis backend rejected the request
// itself (malformed prompt, context-length violation). Not retryable.
type InvalidRequestError struct {
	Reason string
	Err    error
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid synthesis request: %s", e.Reason)
}

func (e *InvalidRequestError) Unwrap() error { return e.Err }

// SynthesisError is the generic synthesis failure. Propagated to the
// caller; the retry discipline lives in the verification loop, not here.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed: %v", e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// IsTokenBudget reports whether err is a token budget failure.
func IsTokenBudget(err error) bool {
	var e *TokenBudgetError
	return errors.As(err, &e)
}

// IsInvalidRequest reports whether err is a rejected synthesis request.
func IsInvalidRequest(err error) bool {
	var e *InvalidRequestError
	return errors.As(err, &e)
}
