package persistence

import "time"

// Run represents one ticket run: the whole lifecycle from planning through
// the verification loop's terminal outcome.
type Run struct {
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ID          string     `json:"id"`
	Repo        string     `json:"repo"`
	Branch      string     `json:"branch"`
	TicketTitle string     `json:"ticket_title"`
	Actor       string     `json:"actor,omitempty"`
	Status      string     `json:"status"`
	PRNumber    int        `json:"pr_number,omitempty"`
	TokensUsed  int64      `json:"tokens_used"`
	CostUSD     float64    `json:"cost_usd"`
}

// Round represents one synthesis round within a run. Round 0 is the initial
// round; repair rounds count from 1.
type Round struct {
	CreatedAt    time.Time `json:"created_at"`
	RunID        string    `json:"run_id"`
	CommitSHA    string    `json:"commit_sha,omitempty"`
	Verification string    `json:"verification"`
	Number       int       `json:"number"`
	FilesChanged int       `json:"files_changed"`
	FilesRemoved int       `json:"files_removed"`
}

// Run status constants.
const (
	RunStatusRunning      = "running"
	RunStatusSucceeded    = "succeeded"
	RunStatusFailed       = "failed"
	RunStatusInconclusive = "inconclusive"
)

// Round verification constants.
const (
	VerificationPending      = "pending"
	VerificationSuccess      = "success"
	VerificationFailure      = "failure"
	VerificationInconclusive = "inconclusive"
)

// ValidRunStatuses returns all valid run statuses.
func ValidRunStatuses() []string {
	return []string{
		RunStatusRunning,
		RunStatusSucceeded,
		RunStatusFailed,
		RunStatusInconclusive,
	}
}

// IsValidRunStatus checks if a status string is valid.
func IsValidRunStatus(status string) bool {
	for _, valid := range ValidRunStatuses() {
		if status == valid {
			return true
		}
	}
	return false
}

// RunFilter represents criteria for querying runs.
type RunFilter struct {
	Repo   *string `json:"repo,omitempty"`
	Status *string `json:"status,omitempty"`
	Limit  int     `json:"limit,omitempty"`
}

// RepoSummary represents aggregated run metrics for a repository.
type RepoSummary struct {
	LastCompleted *time.Time `json:"last_completed,omitempty"`
	Repo          string     `json:"repo"`
	TotalTokens   int64      `json:"total_tokens"`
	TotalCost     float64    `json:"total_cost"`
	TotalRuns     int        `json:"total_runs"`
	SucceededRuns int        `json:"succeeded_runs"`
}
