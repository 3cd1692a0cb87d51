package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"autopatch/pkg/events"
)

// ErrRunNotFound is returned when a requested run does not exist.
var ErrRunNotFound = errors.New("run not found")

// UpdateRunStatusRequest represents a run status update. Optional fields are
// applied only when non-nil, so callers can attach token/cost totals and the
// PR number as they become known.
type UpdateRunStatusRequest struct {
	Timestamp  time.Time `json:"timestamp,omitempty"`
	TokensUsed *int64    `json:"tokens_used,omitempty"`
	CostUSD    *float64  `json:"cost_usd,omitempty"`
	PRNumber   *int      `json:"pr_number,omitempty"`
	RunID      string    `json:"run_id"`
	Status     string    `json:"status"`
}

// DatabaseOperations provides methods for database operations.
type DatabaseOperations struct {
	db *sql.DB
}

// NewDatabaseOperations creates a new DatabaseOperations instance.
func NewDatabaseOperations(db *sql.DB) *DatabaseOperations {
	return &DatabaseOperations{db: db}
}

// UpsertRun inserts or updates a run record.
func (ops *DatabaseOperations) UpsertRun(run *Run) error {
	if run.Status == "" {
		run.Status = RunStatusRunning
	}
	if !IsValidRunStatus(run.Status) {
		return fmt.Errorf("invalid run status %q for run %s", run.Status, run.ID)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO runs (id, repo, branch, ticket_title, actor, status, pr_number, tokens_used, cost_usd, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			repo = excluded.repo,
			branch = excluded.branch,
			ticket_title = excluded.ticket_title,
			actor = excluded.actor,
			status = excluded.status,
			pr_number = excluded.pr_number,
			tokens_used = excluded.tokens_used,
			cost_usd = excluded.cost_usd,
			completed_at = excluded.completed_at
	`

	_, err := ops.db.Exec(query,
		run.ID, run.Repo, run.Branch, run.TicketTitle, run.Actor, run.Status,
		run.PRNumber, run.TokensUsed, run.CostUSD, run.CreatedAt, run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert run %s: %w", run.ID, err)
	}
	return nil
}

// UpdateRunStatus updates the status of a run, stamping completed_at for
// terminal statuses and applying any token/cost/PR fields provided.
func (ops *DatabaseOperations) UpdateRunStatus(req *UpdateRunStatusRequest) error {
	if !IsValidRunStatus(req.Status) {
		return fmt.Errorf("invalid run status %q for run %s", req.Status, req.RunID)
	}

	setParts := []string{"status = ?"}
	args := []interface{}{req.Status}

	if req.Status != RunStatusRunning {
		timestamp := req.Timestamp
		if timestamp.IsZero() {
			timestamp = time.Now().UTC()
		}
		setParts = append(setParts, "completed_at = ?")
		args = append(args, timestamp)
	}

	if req.TokensUsed != nil {
		setParts = append(setParts, "tokens_used = ?")
		args = append(args, *req.TokensUsed)
	}

	if req.CostUSD != nil {
		setParts = append(setParts, "cost_usd = ?")
		args = append(args, *req.CostUSD)
	}

	if req.PRNumber != nil {
		setParts = append(setParts, "pr_number = ?")
		args = append(args, *req.PRNumber)
	}

	args = append(args, req.RunID)

	query := `UPDATE runs SET ` + strings.Join(setParts, ", ") + ` WHERE id = ?`

	result, err := ops.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update run status for %s: %w", req.RunID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("update run %s: %w", req.RunID, ErrRunNotFound)
	}
	return nil
}

// GetRunByID retrieves a single run.
func (ops *DatabaseOperations) GetRunByID(runID string) (*Run, error) {
	query := `
		SELECT id, repo, branch, ticket_title, actor, status, pr_number, tokens_used, cost_usd, created_at, completed_at
		FROM runs WHERE id = ?
	`

	run := &Run{}
	err := ops.db.QueryRow(query, runID).Scan(
		&run.ID, &run.Repo, &run.Branch, &run.TicketTitle, &run.Actor,
		&run.Status, &run.PRNumber, &run.TokensUsed, &run.CostUSD,
		&run.CreatedAt, &run.CompletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	return run, nil
}

// QueryRuns returns runs matching the filter, newest first.
func (ops *DatabaseOperations) QueryRuns(filter *RunFilter) ([]*Run, error) {
	query := `
		SELECT id, repo, branch, ticket_title, actor, status, pr_number, tokens_used, cost_usd, created_at, completed_at
		FROM runs
	`
	var conditions []string
	var args []interface{}

	if filter != nil {
		if filter.Repo != nil {
			conditions = append(conditions, "repo = ?")
			args = append(args, *filter.Repo)
		}
		if filter.Status != nil {
			conditions = append(conditions, "status = ?")
			args = append(args, *filter.Status)
		}
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := ops.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run := &Run{}
		if err := rows.Scan(
			&run.ID, &run.Repo, &run.Branch, &run.TicketTitle, &run.Actor,
			&run.Status, &run.PRNumber, &run.TokensUsed, &run.CostUSD,
			&run.CreatedAt, &run.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("run rows error: %w", err)
	}
	return runs, nil
}

// UpsertRound inserts or updates a round record for a run.
func (ops *DatabaseOperations) UpsertRound(round *Round) error {
	if round.Verification == "" {
		round.Verification = VerificationPending
	}
	if round.CreatedAt.IsZero() {
		round.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO rounds (run_id, number, files_changed, files_removed, commit_sha, verification, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, number) DO UPDATE SET
			files_changed = excluded.files_changed,
			files_removed = excluded.files_removed,
			commit_sha = excluded.commit_sha,
			verification = excluded.verification
	`

	_, err := ops.db.Exec(query,
		round.RunID, round.Number, round.FilesChanged, round.FilesRemoved,
		round.CommitSHA, round.Verification, round.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert round %d of run %s: %w", round.Number, round.RunID, err)
	}
	return nil
}

// GetRoundsForRun returns all rounds of a run in round order.
func (ops *DatabaseOperations) GetRoundsForRun(runID string) ([]*Round, error) {
	query := `
		SELECT run_id, number, files_changed, files_removed, commit_sha, verification, created_at
		FROM rounds WHERE run_id = ? ORDER BY number
	`

	rows, err := ops.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rounds for run %s: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()

	var rounds []*Round
	for rows.Next() {
		round := &Round{}
		if err := rows.Scan(
			&round.RunID, &round.Number, &round.FilesChanged, &round.FilesRemoved,
			&round.CommitSHA, &round.Verification, &round.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}
		rounds = append(rounds, round)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("round rows error: %w", err)
	}
	return rounds, nil
}

// InsertEvent stores an event record with its full JSON payload.
func (ops *DatabaseOperations) InsertEvent(event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.ID, err)
	}

	query := `
		INSERT OR REPLACE INTO events (id, run_id, type, round, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = ops.db.Exec(query,
		event.ID, event.RunID, string(event.Type), event.Round,
		string(payload), event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event %s: %w", event.ID, err)
	}
	return nil
}

// GetEventsForRun returns all events of a run in emission order, decoded
// from their stored payloads.
func (ops *DatabaseOperations) GetEventsForRun(runID string) ([]events.Event, error) {
	query := `SELECT payload FROM events WHERE run_id = ? ORDER BY created_at`

	rows, err := ops.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events for run %s: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []events.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan event payload: %w", err)
		}
		var event events.Event
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return nil, fmt.Errorf("failed to decode event payload: %w", err)
		}
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("event rows error: %w", err)
	}
	return out, nil
}

// GetRepoSummary returns aggregated run metrics for a repository.
func (ops *DatabaseOperations) GetRepoSummary(repo string) (*RepoSummary, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'succeeded' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(tokens_used), 0),
			COALESCE(SUM(cost_usd), 0.0)
		FROM runs WHERE repo = ?
	`

	summary := &RepoSummary{Repo: repo}
	err := ops.db.QueryRow(query, repo).Scan(
		&summary.TotalRuns, &summary.SucceededRuns,
		&summary.TotalTokens, &summary.TotalCost,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get summary for repo %s: %w", repo, err)
	}

	// MAX() strips the column's declared type and the driver hands back a
	// raw string, so the newest completion is read as a plain column.
	var last sql.NullTime
	err = ops.db.QueryRow(
		`SELECT completed_at FROM runs WHERE repo = ? AND completed_at IS NOT NULL ORDER BY completed_at DESC LIMIT 1`,
		repo,
	).Scan(&last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get last completion for repo %s: %w", repo, err)
	}
	if last.Valid {
		t := last.Time
		summary.LastCompleted = &t
	}
	return summary, nil
}
