package github

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"autopatch/pkg/change"
)

// Committer writes a snapshot to a branch as one commit through the git
// data API (blobs → tree → commit → ref update). The branch only moves at
// the final ref update, so a failure anywhere leaves no partial state.
type Committer struct {
	client *Client
}

// NewCommitter creates a committer on client.
func NewCommitter(client *Client) *Committer {
	return &Committer{client: client}
}

const (
	blobMode         = "100644"
	commitMaxElapsed = 45 * time.Second
	committerTimeout = 2 * time.Minute
)

type treeEntry struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"`
	// SHA nil marshals to null, which the tree API reads as a deletion.
	SHA *string `json:"sha"`
}

// Commit applies snapshot to branch with the given message and returns the
// new commit SHA. Requests of type delete map to tree deletions; everything
// else becomes a blob. An empty snapshot is rejected: the orchestrator
// never calls commit without changes.
func (c *Committer) Commit(ctx context.Context, branch string, snapshot change.Snapshot, batch change.Batch, message string) (string, error) {
	if len(snapshot) == 0 {
		return "", fmt.Errorf("refusing to commit an empty snapshot to %s", branch)
	}

	client := c.client.WithTimeout(committerTimeout)

	var sha string
	op := func() error {
		var err error
		sha, err = c.commitOnce(ctx, client, branch, snapshot, batch, message)
		if err == nil {
			return nil
		}
		// A concurrent push moves the ref between head resolution and the
		// final update; re-resolving and rebuilding is safe.
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "fast forward") || strings.Contains(msg, "409") || strings.Contains(msg, "conflict") {
			return err
		}
		return backoff.Permanent(err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = commitMaxElapsed
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return "", fmt.Errorf("failed to commit %d files to %s: %w", len(snapshot), branch, err)
	}

	client.logger.Info("committed %d files to %s (%s)", len(snapshot), branch, sha)
	return sha, nil
}

func (c *Committer) commitOnce(ctx context.Context, client *Client, branch string, snapshot change.Snapshot, batch change.Batch, message string) (string, error) {
	head, err := client.GetBranch(ctx, branch)
	if err != nil {
		return "", err
	}
	headSHA := head.Commit.SHA

	baseTree, err := c.treeSHAForCommit(ctx, client, headSHA)
	if err != nil {
		return "", err
	}

	entries, err := c.buildTreeEntries(ctx, client, snapshot, batch)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("snapshot produced no tree entries for %s", branch)
	}

	treeSHA, err := c.createTree(ctx, client, baseTree, entries)
	if err != nil {
		return "", err
	}

	commitSHA, err := c.createCommit(ctx, client, message, treeSHA, headSHA)
	if err != nil {
		return "", err
	}

	if err := c.updateRef(ctx, client, branch, commitSHA); err != nil {
		return "", err
	}
	return commitSHA, nil
}

func (c *Committer) treeSHAForCommit(ctx context.Context, client *Client, commitSHA string) (string, error) {
	endpoint := fmt.Sprintf("/repos/%s/git/commits/%s", client.RepoPath(), commitSHA)
	output, err := client.APIGet(ctx, endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to get commit %s: %w", commitSHA, err)
	}

	var commit struct {
		Tree struct {
			SHA string `json:"sha"`
		} `json:"tree"`
	}
	if err := json.Unmarshal(output, &commit); err != nil {
		return "", fmt.Errorf("failed to parse commit %s: %w", commitSHA, err)
	}
	return commit.Tree.SHA, nil
}

// buildTreeEntries uploads a blob per changed file and emits deletion
// entries for delete requests. Paths are processed in sorted order so
// retries issue identical API sequences.
func (c *Committer) buildTreeEntries(ctx context.Context, client *Client, snapshot change.Snapshot, batch change.Batch) ([]treeEntry, error) {
	entries := make([]treeEntry, 0, len(snapshot))
	for _, path := range snapshot.Paths() {
		fc := snapshot[path]

		if req := batch.ByFilename(path); req != nil && req.Type == change.TypeDelete {
			if fc.OriginalContents == "" {
				// Deleting a file that never existed is a no-op.
				continue
			}
			entries = append(entries, treeEntry{Path: path, Mode: blobMode, Type: "blob", SHA: nil})
			continue
		}

		blobSHA, err := c.createBlob(ctx, client, fc.Contents)
		if err != nil {
			return nil, fmt.Errorf("failed to create blob for %s: %w", path, err)
		}
		sha := blobSHA
		entries = append(entries, treeEntry{Path: path, Mode: blobMode, Type: "blob", SHA: &sha})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func (c *Committer) createBlob(ctx context.Context, client *Client, contents string) (string, error) {
	endpoint := fmt.Sprintf("/repos/%s/git/blobs", client.RepoPath())
	output, err := client.APISend(ctx, "POST", endpoint, map[string]any{
		"content":  contents,
		"encoding": "utf-8",
	})
	if err != nil {
		return "", err
	}

	var blob struct {
		SHA string `json:"sha"`
	}
	if err := json.Unmarshal(output, &blob); err != nil {
		return "", fmt.Errorf("failed to parse blob response: %w", err)
	}
	return blob.SHA, nil
}

func (c *Committer) createTree(ctx context.Context, client *Client, baseTree string, entries []treeEntry) (string, error) {
	endpoint := fmt.Sprintf("/repos/%s/git/trees", client.RepoPath())
	output, err := client.APISend(ctx, "POST", endpoint, map[string]any{
		"base_tree": baseTree,
		"tree":      entries,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create tree: %w", err)
	}

	var tree struct {
		SHA string `json:"sha"`
	}
	if err := json.Unmarshal(output, &tree); err != nil {
		return "", fmt.Errorf("failed to parse tree response: %w", err)
	}
	return tree.SHA, nil
}

func (c *Committer) createCommit(ctx context.Context, client *Client, message, treeSHA, parentSHA string) (string, error) {
	endpoint := fmt.Sprintf("/repos/%s/git/commits", client.RepoPath())
	output, err := client.APISend(ctx, "POST", endpoint, map[string]any{
		"message": message,
		"tree":    treeSHA,
		"parents": []string{parentSHA},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create commit: %w", err)
	}

	var commit struct {
		SHA string `json:"sha"`
	}
	if err := json.Unmarshal(output, &commit); err != nil {
		return "", fmt.Errorf("failed to parse commit response: %w", err)
	}
	return commit.SHA, nil
}

func (c *Committer) updateRef(ctx context.Context, client *Client, branch, commitSHA string) error {
	endpoint := fmt.Sprintf("/repos/%s/git/refs/heads/%s", client.RepoPath(), branch)
	_, err := client.APISend(ctx, "PATCH", endpoint, map[string]any{
		"sha":   commitSHA,
		"force": false,
	})
	if err != nil {
		return fmt.Errorf("failed to update ref for %s: %w", branch, err)
	}
	return nil
}
