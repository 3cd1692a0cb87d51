package ticket

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"autopatch/pkg/change"
	"autopatch/pkg/events"
	"autopatch/pkg/github"
	"autopatch/pkg/orch"
	"autopatch/pkg/persistence"
	"autopatch/pkg/synth"
)

// Comment is a reviewer follow-up on an open pull request.
type Comment struct {
	PRNumber int
	Body     string
	Actor    string
}

// HandleComment runs a revision round against an existing PR branch. The
// branch's cumulative changes become the prior snapshot, so earlier edits
// carry forward and the new round extends them instead of starting over.
func (h *Handler) HandleComment(ctx context.Context, c Comment, repo synth.RepoReader) (*Result, error) {
	pr, err := h.deps.Host.GetPR(ctx, strconv.Itoa(c.PRNumber))
	if err != nil {
		return nil, fmt.Errorf("failed to look up PR #%d: %w", c.PRNumber, err)
	}
	if pr.Closed || pr.IsMerged() {
		return nil, fmt.Errorf("PR #%d is no longer open", c.PRNumber)
	}
	branch := pr.HeadRefName

	t := Ticket{Number: c.PRNumber, Title: pr.Title, Body: c.Body, Actor: c.Actor}
	h.emit(events.TypeStarted, t, branch, pr.Number)
	h.persistRun(t, branch)
	h.persistPR(pr.Number)

	prior, err := h.branchSnapshot(ctx, pr)
	if err != nil {
		h.finishRun(persistence.RunStatusFailed, pr.Number)
		return nil, err
	}

	batch, err := h.deps.Planner.Plan(ctx, pr.Title, c.Body, repo)
	if err != nil {
		h.finishRun(persistence.RunStatusFailed, pr.Number)
		return nil, fmt.Errorf("planning failed: %w", err)
	}
	if len(batch) == 0 {
		// The comment named no plannable files; revise what the branch
		// already touches.
		batch = revisionBatch(prior.Paths(), c.Body)
	}
	h.logger.Info("planned %d revision requests for PR #%d", len(batch), pr.Number)

	progress := &orch.Progress{Title: pr.Title, Batch: batch, Branch: branch, PRNumber: pr.Number}
	reporter := NewStatusReporter(h.deps.Host, h.deps.Creds, pr.Number)
	reporter.Publish(ctx, progress)

	round, err := h.deps.Orchestrator.Run(ctx, batch, commentDescription(pr.Title, c.Body), repo, branch, prior)
	if err != nil {
		h.emit(events.TypeFailed, t, branch, pr.Number)
		h.finishRun(persistence.RunStatusFailed, pr.Number)
		reporter.Publish(ctx, progress)
		return nil, err
	}
	h.persistRound(0, round, persistence.VerificationPending)

	if !round.Success {
		h.emit(events.TypeFailed, t, branch, pr.Number)
		h.finishRun(persistence.RunStatusFailed, pr.Number)
		progress.Outcome = orch.OutcomeFailed
		reporter.Publish(ctx, progress)
		return &Result{Batch: batch, Branch: branch, PRNumber: pr.Number, Outcome: orch.OutcomeFailed}, nil
	}
	progress.RemovedPaths = round.Removed

	result := &Result{
		Batch:     batch,
		Branch:    branch,
		CommitSHA: round.CommitSHA,
		PRNumber:  pr.Number,
		Success:   true,
		Outcome:   orch.OutcomeSuccess,
	}

	if h.verificationEnabled() {
		verified, err := h.deps.Loop.Run(ctx, repo, branch, pr.Number, round.CommitSHA, round.Snapshot)
		if err != nil {
			h.finishRun(persistence.RunStatusFailed, pr.Number)
			reporter.Publish(ctx, progress)
			return nil, fmt.Errorf("verification loop failed: %w", err)
		}
		result.Outcome = verified.Outcome
		result.CommitSHA = verified.CommitSHA
		result.Success = verified.Outcome == orch.OutcomeSuccess || verified.Outcome == orch.OutcomeInconclusive
		progress.Round = verified.RepairRounds
		progress.Outcome = verified.Outcome
		h.persistRound(verified.RepairRounds, &orch.RoundResult{
			Snapshot:  verified.Snapshot,
			CommitSHA: verified.CommitSHA,
			Success:   true,
		}, verificationForOutcome(verified.Outcome))
	} else {
		progress.Outcome = orch.OutcomeSuccess
		h.emit(events.TypeSucceeded, t, branch, pr.Number)
	}

	reporter.Publish(ctx, progress)
	h.finishRun(runStatusForOutcome(result.Outcome), pr.Number)
	return result, nil
}

// branchSnapshot reconstructs the cumulative snapshot from the files the
// branch has changed. Files the branch deleted are skipped; a file absent
// from the base branch gets empty original contents.
func (h *Handler) branchSnapshot(ctx context.Context, pr *github.PullRequest) (change.Snapshot, error) {
	diff, err := h.deps.Host.GetBranchDiff(ctx, pr.Number)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch branch diff for PR #%d: %w", pr.Number, err)
	}

	snapshot := change.Snapshot{}
	for _, path := range diff.Paths() {
		contents, err := h.deps.Host.GetFileContents(ctx, path, pr.HeadRefName)
		if err != nil {
			h.logger.Debug("skipping %s: not readable on %s: %v", path, pr.HeadRefName, err)
			continue
		}
		original := ""
		if base, err := h.deps.Host.GetFileContents(ctx, path, pr.BaseRefName); err == nil {
			original = string(base)
		}
		snapshot[path] = change.FileChange{Contents: string(contents), OriginalContents: original}
	}
	return snapshot, nil
}

// revisionBatch turns the branch's changed paths into modify requests
// carrying the comment as instructions.
func revisionBatch(paths []string, instructions string) change.Batch {
	batch := make(change.Batch, 0, len(paths))
	for _, path := range paths {
		req := change.NewRequest(path, instructions, change.TypeModify)
		req.RelevantFiles = paths
		batch = append(batch, req)
	}
	return batch
}

func commentDescription(prTitle, body string) string {
	var b strings.Builder
	b.WriteString("Revise the changes on this pull request per the reviewer comment below. Keep the edits already made unless the comment asks otherwise.\n\n")
	b.WriteString("Pull request: ")
	b.WriteString(prTitle)
	b.WriteString("\n\nComment:\n")
	b.WriteString(body)
	return b.String()
}
