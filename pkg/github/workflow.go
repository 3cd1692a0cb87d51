package github

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	// WorkflowStateSuccess means every concluded run passed.
	WorkflowStateSuccess = "success"
	// WorkflowStateFailure means at least one run concluded in failure.
	WorkflowStateFailure = "failure"
	// WorkflowStatePending means runs are still queued or in progress.
	WorkflowStatePending = "pending"
)

// WorkflowRun represents a GitHub Actions workflow run.
//
//nolint:govet // Logical grouping preferred over memory optimization
type WorkflowRun struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	HeadBranch string `json:"head_branch"`
	HeadSHA    string `json:"head_sha"`
	Status     string `json:"status"`     // queued, in_progress, completed
	Conclusion string `json:"conclusion"` // success, failure, cancelled, skipped, ...
	URL        string `json:"html_url"`
	RunNumber  int    `json:"run_number"`
	RunAttempt int    `json:"run_attempt"`
}

type workflowRunsResponse struct {
	TotalCount   int           `json:"total_count"`
	WorkflowRuns []WorkflowRun `json:"workflow_runs"`
}

// WorkflowStatus is the rollup across all runs for one commit.
//
//nolint:govet // Logical grouping preferred over memory optimization
type WorkflowStatus struct {
	State      string // pending, success, failure
	TotalRuns  int
	Successful int
	Failed     int
	Pending    int
	FailedRuns []WorkflowRun
}

// GetWorkflowRunsForRef retrieves workflow runs for a branch or commit SHA.
func (c *Client) GetWorkflowRunsForRef(ctx context.Context, ref string) ([]WorkflowRun, error) {
	endpoint := fmt.Sprintf("/repos/%s/actions/runs?head_sha=%s", c.RepoPath(), ref)
	output, err := c.APIGet(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow runs for ref %s: %w", ref, err)
	}

	var response workflowRunsResponse
	if err := json.Unmarshal(output, &response); err != nil {
		return nil, fmt.Errorf("failed to parse workflow runs: %w", err)
	}
	return response.WorkflowRuns, nil
}

// GetWorkflowStatus returns the rollup status for a commit.
func (c *Client) GetWorkflowStatus(ctx context.Context, commitSHA string) (*WorkflowStatus, error) {
	runs, err := c.GetWorkflowRunsForRef(ctx, commitSHA)
	if err != nil {
		return nil, err
	}
	return RollupWorkflowRuns(runs), nil
}

// RollupWorkflowRuns folds individual runs into an overall state. No runs
// at all counts as success: a repo without required checks has nothing to
// verify.
func RollupWorkflowRuns(runs []WorkflowRun) *WorkflowStatus {
	status := &WorkflowStatus{TotalRuns: len(runs)}
	if len(runs) == 0 {
		status.State = WorkflowStateSuccess
		return status
	}

	for i := range runs {
		run := runs[i]
		switch run.Status {
		case "completed":
			switch run.Conclusion {
			case "success":
				status.Successful++
			case "failure", "timed_out", "startup_failure":
				status.Failed++
				status.FailedRuns = append(status.FailedRuns, run)
			case "cancelled", "skipped":
				// Neither success nor failure.
			}
		case "queued", "in_progress", "waiting":
			status.Pending++
		}
	}

	switch {
	case status.Pending > 0:
		status.State = WorkflowStatePending
	case status.Failed > 0:
		status.State = WorkflowStateFailure
	default:
		status.State = WorkflowStateSuccess
	}
	return status
}

// FailureLogs fetches the logs of the failed steps of a run, the raw
// material for a repair round.
func (c *Client) FailureLogs(ctx context.Context, runID int64) (string, error) {
	client := c.WithTimeout(2 * time.Minute)
	output, err := client.run(ctx, nil,
		"run", "view", fmt.Sprintf("%d", runID),
		"--repo", c.RepoPath(),
		"--log-failed",
	)
	if err != nil {
		return "", fmt.Errorf("failed to fetch logs for run %d: %w", runID, err)
	}
	return string(output), nil
}
