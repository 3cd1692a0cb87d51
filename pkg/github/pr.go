package github

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PullRequest represents a GitHub pull request. Field names match gh CLI
// --json output (GraphQL field names).
//
//nolint:govet // Logical grouping preferred over memory optimization
type PullRequest struct {
	Number      int    `json:"number"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	State       string `json:"state"`       // OPEN, CLOSED, MERGED
	HeadRefName string `json:"headRefName"` // Branch name
	HeadRefOid  string `json:"headRefOid"`  // Head commit SHA
	BaseRefName string `json:"baseRefName"` // Target branch name
	Closed      bool   `json:"closed"`
	MergedAt    string `json:"mergedAt"` // Non-empty if merged
}

// IsMerged returns true if the PR has been merged.
func (pr *PullRequest) IsMerged() bool {
	return pr.MergedAt != ""
}

// PRCreateOptions contains options for creating a pull request.
type PRCreateOptions struct {
	Title string
	Body  string
	Head  string // Source branch
	Base  string // Target branch (default: main)
	Draft bool
}

const prJSONFields = "number,url,title,state,headRefName,headRefOid,baseRefName,closed,mergedAt"

// ListPRsForBranch lists pull requests with the given head branch.
func (c *Client) ListPRsForBranch(ctx context.Context, branch string) ([]PullRequest, error) {
	args := []string{
		"pr", "list",
		"--repo", c.RepoPath(),
		"--head", branch,
		"--json", prJSONFields,
	}

	var prs []PullRequest
	if err := c.runJSON(ctx, &prs, args...); err != nil {
		return nil, fmt.Errorf("failed to list PRs for branch %s: %w", branch, err)
	}
	return prs, nil
}

// GetPR retrieves a pull request by number, branch name, or URL.
func (c *Client) GetPR(ctx context.Context, ref string) (*PullRequest, error) {
	args := []string{
		"pr", "view", ref,
		"--repo", c.RepoPath(),
		"--json", prJSONFields,
	}

	var pr PullRequest
	if err := c.runJSON(ctx, &pr, args...); err != nil {
		return nil, fmt.Errorf("failed to get PR %s: %w", ref, err)
	}
	return &pr, nil
}

// CreatePR creates a new pull request.
func (c *Client) CreatePR(ctx context.Context, opts PRCreateOptions) (*PullRequest, error) {
	if opts.Head == "" {
		return nil, fmt.Errorf("head branch is required")
	}
	if opts.Title == "" {
		return nil, fmt.Errorf("title is required")
	}

	base := opts.Base
	if base == "" {
		base = DefaultBranch
	}

	args := []string{
		"pr", "create",
		"--repo", c.RepoPath(),
		"--title", opts.Title,
		"--head", opts.Head,
		"--base", base,
	}
	if opts.Body != "" {
		args = append(args, "--body", opts.Body)
	}
	if opts.Draft {
		args = append(args, "--draft")
	}

	client := c.WithTimeout(2 * time.Minute)
	output, err := client.run(ctx, nil, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to create PR: %w", err)
	}

	prURL := strings.TrimSpace(string(output))
	if prURL == "" {
		return nil, fmt.Errorf("PR created but no URL returned")
	}
	return c.GetPR(ctx, prURL)
}

// GetOrCreatePR returns an existing open PR for the head branch or creates one.
func (c *Client) GetOrCreatePR(ctx context.Context, opts PRCreateOptions) (*PullRequest, error) {
	prs, err := c.ListPRsForBranch(ctx, opts.Head)
	if err != nil {
		c.logger.Debug("failed to check for existing PR, will try to create: %v", err)
	} else if len(prs) > 0 {
		c.logger.Debug("found existing PR #%d for branch %s", prs[0].Number, opts.Head)
		return &prs[0], nil
	}
	return c.CreatePR(ctx, opts)
}

// IssueComment is a comment on an issue or pull request.
type IssueComment struct {
	ID   int64  `json:"id"`
	Body string `json:"body"`
	User struct {
		Login string `json:"login"`
	} `json:"user"`
}

// CommentOnIssue adds a comment to an issue or pull request and returns its
// ID so the caller can edit it in place later.
func (c *Client) CommentOnIssue(ctx context.Context, number int, body string) (int64, error) {
	endpoint := fmt.Sprintf("/repos/%s/issues/%d/comments", c.RepoPath(), number)
	output, err := c.APISend(ctx, "POST", endpoint, map[string]any{"body": body})
	if err != nil {
		return 0, fmt.Errorf("failed to comment on #%d: %w", number, err)
	}

	var comment IssueComment
	if err := json.Unmarshal(output, &comment); err != nil {
		return 0, fmt.Errorf("failed to parse comment response: %w", err)
	}
	return comment.ID, nil
}

// UpdateComment replaces the body of an existing comment.
func (c *Client) UpdateComment(ctx context.Context, commentID int64, body string) error {
	endpoint := fmt.Sprintf("/repos/%s/issues/comments/%d", c.RepoPath(), commentID)
	if _, err := c.APISend(ctx, "PATCH", endpoint, map[string]any{"body": body}); err != nil {
		return fmt.Errorf("failed to update comment %d: %w", commentID, err)
	}
	return nil
}

// ListIssueComments retrieves comments on an issue or pull request.
func (c *Client) ListIssueComments(ctx context.Context, number int) ([]IssueComment, error) {
	endpoint := fmt.Sprintf("/repos/%s/issues/%d/comments", c.RepoPath(), number)
	output, err := c.APIGet(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to get comments for #%d: %w", number, err)
	}

	var comments []IssueComment
	if err := json.Unmarshal(output, &comments); err != nil {
		return nil, fmt.Errorf("failed to parse comments: %w", err)
	}
	return comments, nil
}
