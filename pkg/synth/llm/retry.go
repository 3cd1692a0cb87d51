package llm

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig bounds the transport-level retry applied to every backend.
// Only transport failures (rate limits, 5xx, empty responses) are retried
// here; content-level failures are handled by the verification loop.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxElapsed      time.Duration
}

// DefaultRetryConfig is used by the factory. The initial interval is long
// enough that a rate-limited request has a chance on its first retry.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:      3,
	InitialInterval: 5 * time.Second,
	MaxElapsed:      2 * time.Minute,
}

// RetryableClient wraps a Client with bounded exponential backoff.
type RetryableClient struct {
	client Client
	config RetryConfig
}

// NewRetryableClient wraps client with retry behavior.
func NewRetryableClient(client Client, config RetryConfig) *RetryableClient {
	return &RetryableClient{client: client, config: config}
}

// Complete implements Client.
func (r *RetryableClient) Complete(ctx context.Context, in Request) (Response, error) {
	// BackOff implementations are stateful; always build a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.config.InitialInterval
	bo.MaxElapsedTime = r.config.MaxElapsed

	var resp Response
	op := func() error {
		var err error
		resp, err = r.client.Complete(ctx, in)
		if err == nil {
			return nil
		}
		if classified, ok := As(err); ok && classified.Retryable() {
			return err
		}
		return backoff.Permanent(err)
	}

	wrapped := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(r.config.MaxRetries)), ctx)
	if err := backoff.Retry(op, wrapped); err != nil {
		return Response{}, err
	}
	return resp, nil
}

// ModelName implements Client.
func (r *RetryableClient) ModelName() string {
	return r.client.ModelName()
}
