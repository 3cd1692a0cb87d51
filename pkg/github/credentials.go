package github

import (
	"context"
	"strings"
	"sync"

	"autopatch/pkg/config"
	"autopatch/pkg/logx"
)

// CredentialProvider resolves the token used for GitHub operations. Long
// verification windows can outlive a token's lifetime, so callers re-resolve
// per repair round and refresh on auth failures.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) error
}

// SecretsProvider reads the token from the config secrets layer and caches
// it until Refresh drops the cache.
type SecretsProvider struct {
	mu     sync.Mutex
	cached string
}

// NewSecretsProvider creates a provider backed by the secrets store.
func NewSecretsProvider() *SecretsProvider {
	return &SecretsProvider{}
}

// Token implements CredentialProvider.
func (p *SecretsProvider) Token(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached != "" {
		return p.cached, nil
	}
	token, err := config.GetSecret(config.SecretGitHubToken)
	if err != nil {
		return "", err
	}
	p.cached = token
	return token, nil
}

// Refresh implements CredentialProvider. The cache is dropped so the next
// Token call re-reads the secrets store, which the operator may have
// rotated underneath us.
func (p *SecretsProvider) Refresh(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cached = ""
	return nil
}

// IsAuthError reports whether err looks like a credential failure.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "401") ||
		strings.Contains(msg, "bad credentials") ||
		strings.Contains(msg, "authentication") ||
		strings.Contains(msg, "must be logged in")
}

// WithCredentialRetry runs op; if it fails with an auth error the
// credentials are refreshed and op retried exactly once. Anything else
// propagates unchanged. Status and comment updates go through this wrapper
// so a stale token never aborts a verification loop.
func WithCredentialRetry(ctx context.Context, creds CredentialProvider, logger *logx.Logger, op func(ctx context.Context) error) error {
	err := op(ctx)
	if err == nil || !IsAuthError(err) {
		return err
	}
	if creds == nil {
		return err
	}

	logger.Warn("credential failure, refreshing and retrying once: %v", err)
	if refreshErr := creds.Refresh(ctx); refreshErr != nil {
		return refreshErr
	}
	return op(ctx)
}
