package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Repository holds the repository metadata autopatch cares about.
type Repository struct {
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
	Private       bool   `json:"private"`
	Archived      bool   `json:"archived"`
}

// GetRepository retrieves repository information.
func (c *Client) GetRepository(ctx context.Context) (*Repository, error) {
	endpoint := fmt.Sprintf("/repos/%s", c.RepoPath())
	output, err := c.APIGet(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to get repository: %w", err)
	}

	var repo Repository
	if err := json.Unmarshal(output, &repo); err != nil {
		return nil, fmt.Errorf("failed to parse repository: %w", err)
	}
	return &repo, nil
}

// GetDefaultBranch returns the repository's default branch.
func (c *Client) GetDefaultBranch(ctx context.Context) (string, error) {
	repo, err := c.GetRepository(ctx)
	if err != nil {
		return "", err
	}
	return repo.DefaultBranch, nil
}

// GetFileContents fetches a file from a branch via the contents API, used
// to read the repository policy without a local checkout.
func (c *Client) GetFileContents(ctx context.Context, path, ref string) ([]byte, error) {
	endpoint := fmt.Sprintf("/repos/%s/contents/%s", c.RepoPath(), path)
	if ref != "" {
		endpoint += "?ref=" + ref
	}

	// The Accept header variant that returns raw bytes needs -H; simpler to
	// take the JSON envelope and decode it.
	output, err := c.APIGet(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to get contents of %s: %w", path, err)
	}

	var envelope struct {
		Encoding string `json:"encoding"`
		Content  string `json:"content"`
	}
	if err := json.Unmarshal(output, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse contents of %s: %w", path, err)
	}
	if envelope.Encoding != "base64" {
		return nil, fmt.Errorf("unexpected encoding %q for %s", envelope.Encoding, path)
	}
	return decodeBase64(envelope.Content)
}

// decodeBase64 decodes the contents API payload, which wraps base64 lines
// with newlines.
func decodeBase64(content string) ([]byte, error) {
	cleaned := strings.ReplaceAll(content, "\n", "")
	data, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 contents: %w", err)
	}
	return data, nil
}
