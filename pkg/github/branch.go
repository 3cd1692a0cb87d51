package github

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BranchInfo represents a GitHub branch.
type BranchInfo struct {
	Name      string `json:"name"`
	Protected bool   `json:"protected"`
	Commit    struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

const branchCreateMaxElapsed = 30 * time.Second

func newBranchBackoff() backoff.BackOff {
	// BackOff implementations are stateful; always return a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = branchCreateMaxElapsed
	return bo
}

// GetBranch retrieves information about a branch.
func (c *Client) GetBranch(ctx context.Context, branch string) (*BranchInfo, error) {
	endpoint := fmt.Sprintf("/repos/%s/branches/%s", c.RepoPath(), branch)
	output, err := c.APIGet(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to get branch %s: %w", branch, err)
	}

	var info BranchInfo
	if err := json.Unmarshal(output, &info); err != nil {
		return nil, fmt.Errorf("failed to parse branch: %w", err)
	}
	return &info, nil
}

// BranchExists checks whether a branch exists.
func (c *Client) BranchExists(ctx context.Context, branch string) (bool, error) {
	_, err := c.GetBranch(ctx, branch)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CreateBranch creates branch pointing at the head of base. Concurrent ref
// updates surface as reference conflicts, which are retried with backoff;
// a branch that already exists is returned as-is.
func (c *Client) CreateBranch(ctx context.Context, branch, base string) (*BranchInfo, error) {
	if base == "" {
		base = DefaultBranch
	}

	baseInfo, err := c.GetBranch(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base branch %s: %w", base, err)
	}

	endpoint := fmt.Sprintf("/repos/%s/git/refs", c.RepoPath())
	body := map[string]any{
		"ref": "refs/heads/" + branch,
		"sha": baseInfo.Commit.SHA,
	}

	op := func() error {
		_, err := c.APISend(ctx, "POST", endpoint, body)
		if err == nil {
			return nil
		}
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "already exists") {
			return nil
		}
		if strings.Contains(msg, "409") || strings.Contains(msg, "conflict") {
			return err // Retryable ref conflict.
		}
		return backoff.Permanent(err)
	}
	if err := backoff.Retry(op, backoff.WithContext(newBranchBackoff(), ctx)); err != nil {
		return nil, fmt.Errorf("failed to create branch %s: %w", branch, err)
	}

	c.logger.Info("branch %s created from %s (%s)", branch, base, baseInfo.Commit.SHA)
	return c.GetBranch(ctx, branch)
}

// DeleteBranch deletes a remote branch.
func (c *Client) DeleteBranch(ctx context.Context, branch string) error {
	endpoint := fmt.Sprintf("/repos/%s/git/refs/heads/%s", c.RepoPath(), branch)
	if _, err := c.APIDelete(ctx, endpoint); err != nil {
		return fmt.Errorf("failed to delete branch %s: %w", branch, err)
	}
	c.logger.Info("deleted branch %s from %s", branch, c.RepoPath())
	return nil
}
