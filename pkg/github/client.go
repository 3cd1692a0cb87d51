// Package github provides GitHub operations via the gh CLI. All operations
// are pure API calls against the hosted repository; nothing here touches a
// local checkout.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"autopatch/pkg/logx"
)

// DefaultBranch is the fallback target branch when neither config nor repo
// policy names one.
const DefaultBranch = "main"

const defaultTimeout = 30 * time.Second

// Client runs GitHub operations for one repository through the gh CLI.
//
//nolint:govet // Logical grouping preferred over memory optimization
type Client struct {
	owner   string
	repo    string
	creds   CredentialProvider
	logger  *logx.Logger
	timeout time.Duration
}

// NewClient creates a client for owner/repo. creds may be nil, in which
// case gh falls back to its own stored authentication.
func NewClient(owner, repo string, creds CredentialProvider) *Client {
	return &Client{
		owner:   owner,
		repo:    repo,
		creds:   creds,
		logger:  logx.NewLogger("github"),
		timeout: defaultTimeout,
	}
}

// NewClientFromRemote creates a client by parsing a git remote URL.
func NewClientFromRemote(remoteURL string, creds CredentialProvider) (*Client, error) {
	owner, repo, err := ParseGitHubURL(remoteURL)
	if err != nil {
		return nil, err
	}
	return NewClient(owner, repo, creds), nil
}

// WithTimeout returns a copy of the client with the given per-command timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	clone := *c
	clone.timeout = timeout
	return &clone
}

// Owner returns the repository owner.
func (c *Client) Owner() string { return c.owner }

// Repo returns the repository name.
func (c *Client) Repo() string { return c.repo }

// RepoPath returns the owner/repo path.
func (c *Client) RepoPath() string {
	return fmt.Sprintf("%s/%s", c.owner, c.repo)
}

// APIGet executes a GET request against the GitHub REST API.
func (c *Client) APIGet(ctx context.Context, endpoint string) ([]byte, error) {
	return c.run(ctx, nil, "api", "-X", "GET", endpoint)
}

// APIDelete executes a DELETE request against the GitHub REST API.
func (c *Client) APIDelete(ctx context.Context, endpoint string) ([]byte, error) {
	return c.run(ctx, nil, "api", "-X", "DELETE", endpoint)
}

// APISend executes a mutating request with a JSON body, passed to gh on
// stdin. The git data API needs nested payloads that -f fields cannot
// express.
func (c *Client) APISend(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s %s body: %w", method, endpoint, err)
	}
	return c.run(ctx, payload, "api", "-X", method, endpoint, "--input", "-")
}

// run executes a gh command, attaching credentials via the environment.
func (c *Client) run(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.logger.Debug("executing: gh %s", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, "gh", args...)
	if c.creds != nil {
		token, err := c.creds.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolving credentials: %w", err)
		}
		cmd.Env = append(cmd.Environ(), "GH_TOKEN="+token)
	}
	if stdin != nil {
		cmd.Stdin = strings.NewReader(string(stdin))
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		c.logger.Debug("command failed: %v, output: %s", err, string(output))
		return nil, fmt.Errorf("gh %s failed: %w\nOutput: %s", args[0], err, string(output))
	}
	return output, nil
}

// runJSON executes a gh command and unmarshals its JSON output into result.
func (c *Client) runJSON(ctx context.Context, result any, args ...string) error {
	output, err := c.run(ctx, nil, args...)
	if err != nil {
		return err
	}
	if len(output) == 0 {
		return nil // Empty output is valid for some operations.
	}
	if err := json.Unmarshal(output, result); err != nil {
		return fmt.Errorf("failed to parse JSON response: %w\nOutput: %s", err, string(output))
	}
	return nil
}

// ParseGitHubURL extracts owner and repo from SSH and HTTPS remote URLs.
func ParseGitHubURL(url string) (owner, repo string, err error) {
	var path string
	switch {
	case strings.HasPrefix(url, "git@github.com:"):
		path = strings.TrimPrefix(url, "git@github.com:")
	case strings.HasPrefix(url, "https://github.com/"):
		path = strings.TrimPrefix(url, "https://github.com/")
	default:
		return "", "", fmt.Errorf("unsupported Git URL format: %s", url)
	}

	path = strings.TrimSuffix(path, ".git")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GitHub URL format: %s", url)
	}
	return parts[0], parts[1], nil
}

// CheckAuth verifies that the gh CLI is authenticated.
func CheckAuth(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "gh", "auth", "status")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("gh auth check failed: %w\nOutput: %s", err, string(output))
	}
	return nil
}

// isNotFound reports whether a gh error looks like a 404.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "404") || strings.Contains(err.Error(), "Not Found")
}
