package orch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"autopatch/pkg/change"
	"autopatch/pkg/config"
	"autopatch/pkg/events"
	"autopatch/pkg/github"
	"autopatch/pkg/synth"
	"autopatch/pkg/utils"
)

// maxFailureLogLines bounds how much of each failing run's log is folded
// into the repair prompt.
const maxFailureLogLines = 120

// Outcome is the terminal state of the verification loop.
type Outcome string

const (
	// OutcomeSuccess means every CI run for the final commit passed.
	OutcomeSuccess Outcome = "success"
	// OutcomeFailed means CI failed and a repair round could not produce
	// further changes.
	OutcomeFailed Outcome = "failed"
	// OutcomeInconclusive means the poll budget ran out before CI
	// concluded. Not a failure: the last committed state stands.
	OutcomeInconclusive Outcome = "inconclusive"
	// OutcomeExhausted means the repair-round ceiling was reached while CI
	// still failed. The last committed state stands.
	OutcomeExhausted Outcome = "exhausted"
)

// Verifier is the CI-facing surface the loop polls. *github.Client
// satisfies it.
type Verifier interface {
	GetWorkflowStatus(ctx context.Context, commitSHA string) (*github.WorkflowStatus, error)
	FailureLogs(ctx context.Context, runID int64) (string, error)
	GetBranchDiff(ctx context.Context, prNumber int) (*github.BranchDiff, error)
}

// VerifyResult reports where the loop ended.
type VerifyResult struct {
	Snapshot     change.Snapshot
	CommitSHA    string
	Outcome      Outcome
	RepairRounds int
}

// VerifyLoop polls CI for a commit and drives bounded repair rounds when
// runs fail. One instance per ticket run.
type VerifyLoop struct {
	orch     *Orchestrator
	verifier Verifier
	creds    github.CredentialProvider
	cfg      config.VerifyConfig
	sink     events.Sink
}

// NewVerifyLoop wires a verification loop over an orchestrator.
func NewVerifyLoop(o *Orchestrator, verifier Verifier, creds github.CredentialProvider, cfg config.VerifyConfig) *VerifyLoop {
	return &VerifyLoop{
		orch:     o,
		verifier: verifier,
		creds:    creds,
		cfg:      cfg,
		sink:     o.sink,
	}
}

// Run polls CI for commitSHA on a fixed interval until it concludes, the
// wall-clock budget runs out, or the repair ceiling is hit. On failure it
// seeds a repair batch from the failure logs and branch diff and executes
// another full round with the cumulative snapshot as baseline, so earlier
// edits are extended rather than restarted.
//
// The wait is cancellable: ctx cancellation takes effect at the next poll
// boundary and returns ctx.Err().
func (v *VerifyLoop) Run(ctx context.Context, repo synth.RepoReader, branch string, prNumber int, commitSHA string, snapshot change.Snapshot) (*VerifyResult, error) {
	interval := time.Duration(v.cfg.PollIntervalSeconds) * time.Second
	deadline := time.Now().Add(time.Duration(v.cfg.PollBudgetMinutes) * time.Minute)
	repairs := 0

	result := func(outcome Outcome) *VerifyResult {
		return &VerifyResult{
			Snapshot:     snapshot,
			CommitSHA:    commitSHA,
			Outcome:      outcome,
			RepairRounds: repairs,
		}
	}

	for {
		status, err := v.verifier.GetWorkflowStatus(ctx, commitSHA)
		if err != nil {
			return nil, fmt.Errorf("failed to poll workflow status: %w", err)
		}

		switch status.State {
		case github.WorkflowStateSuccess:
			// A repo that failed runs before has CI, so an empty run list
			// right after a repair commit means runs are not queued yet.
			if repairs > 0 && status.TotalRuns == 0 {
				break
			}
			v.emitTerminal(events.TypeSucceeded, branch, prNumber, repairs, len(snapshot))
			return result(OutcomeSuccess), nil

		case github.WorkflowStateFailure:
			if repairs >= v.cfg.MaxRepairRounds {
				v.orch.logger.Warn("repair budget exhausted after %d rounds, leaving last commit in place", repairs)
				v.emitTerminal(events.TypeExhaustedRetries, branch, prNumber, repairs, len(snapshot))
				return result(OutcomeExhausted), nil
			}
			repairs++
			v.emitTerminal(events.TypeRepairRound, branch, prNumber, repairs, len(snapshot))

			// Long polling windows can outlive credential lifetimes, so
			// each repair round re-resolves the token before use.
			if err := v.creds.Refresh(ctx); err != nil {
				return nil, fmt.Errorf("failed to refresh credentials for repair round: %w", err)
			}

			round, err := v.repairRound(ctx, repo, branch, prNumber, status, snapshot)
			if err != nil {
				return nil, err
			}
			if !round.Success {
				// Nothing new to commit, so CI cannot change its mind.
				v.orch.logger.Warn("repair round %d produced no changes, stopping", repairs)
				v.emitTerminal(events.TypeFailed, branch, prNumber, repairs, len(snapshot))
				return result(OutcomeFailed), nil
			}
			snapshot = round.Snapshot
			commitSHA = round.CommitSHA

		case github.WorkflowStatePending:
			// Keep waiting below.
		}

		if time.Now().After(deadline) {
			v.orch.logger.Info("verification budget exhausted, treating run as inconclusive")
			return result(OutcomeInconclusive), nil
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// repairRound builds a fix-these-errors batch from the failure logs and the
// branch diff, then executes one full round on top of the cumulative
// snapshot.
func (v *VerifyLoop) repairRound(ctx context.Context, repo synth.RepoReader, branch string, prNumber int, status *github.WorkflowStatus, snapshot change.Snapshot) (*RoundResult, error) {
	logs := v.collectFailureLogs(ctx, status)

	diff, err := v.verifier.GetBranchDiff(ctx, prNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch branch diff for repair: %w", err)
	}

	batch := repairBatch(diff.Paths())
	if len(batch) == 0 {
		// Diff unavailable; fall back to the files changed so far.
		batch = repairBatch(snapshot.Paths())
	}

	description := repairDescription(logs, diff.Render())
	return v.orch.Run(ctx, batch, description, repo, branch, snapshot)
}

// collectFailureLogs gathers a bounded tail of each failing run's log.
// Log fetch failures degrade to the run name; the repair still proceeds.
func (v *VerifyLoop) collectFailureLogs(ctx context.Context, status *github.WorkflowStatus) string {
	var parts []string
	for _, run := range status.FailedRuns {
		logs, err := v.verifier.FailureLogs(ctx, run.ID)
		if err != nil {
			v.orch.logger.Warn("failed to fetch logs for run %d (%s): %v", run.ID, run.Name, err)
			parts = append(parts, fmt.Sprintf("%s: failed (logs unavailable)", run.Name))
			continue
		}
		parts = append(parts, fmt.Sprintf("=== %s ===\n%s", run.Name, utils.LastLines(logs, maxFailureLogLines)))
	}
	return strings.Join(parts, "\n\n")
}

// repairBatch turns the paths changed so far into modify requests that
// share the full path set as context.
func repairBatch(paths []string) change.Batch {
	batch := make(change.Batch, 0, len(paths))
	for _, path := range paths {
		req := change.NewRequest(path, "Apply the fixes needed to make the failing checks pass.", change.TypeModify)
		req.RelevantFiles = paths
		batch = append(batch, req)
	}
	return batch
}

func repairDescription(logs, diffText string) string {
	var b strings.Builder
	b.WriteString("CI checks failed for the changes on this branch. Fix the errors below without discarding the edits already made.\n\n")
	b.WriteString("Failing check output:\n")
	b.WriteString(logs)
	b.WriteString("\n\nChanges on the branch so far:\n")
	b.WriteString(diffText)
	return b.String()
}

func (v *VerifyLoop) emitTerminal(t events.Type, branch string, prNumber, round, files int) {
	v.orch.emit(t, branch, func(e *events.Event) {
		e.PRNumber = prNumber
		e.Round = round
		e.Files = files
	})
}
