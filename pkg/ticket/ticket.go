// Package ticket handles one natural-language change request end to end:
// plan the file edits, create a working branch, run the synthesis round,
// open a PR, drive the CI verification loop, and keep the status comment
// current throughout.
package ticket

import (
	"context"
	"fmt"
	"strings"
	"time"

	"autopatch/pkg/change"
	"autopatch/pkg/config"
	"autopatch/pkg/events"
	"autopatch/pkg/github"
	"autopatch/pkg/logx"
	"autopatch/pkg/orch"
	"autopatch/pkg/persistence"
	"autopatch/pkg/synth"
	"autopatch/pkg/utils"
)

// Ticket is the natural-language request being processed.
type Ticket struct {
	Number int
	Title  string
	Body   string
	Actor  string
}

// Planner derives the change-request batch from the ticket text.
type Planner interface {
	Plan(ctx context.Context, title, body string, repo synth.RepoReader) (change.Batch, error)
}

// Host is the source-control surface the handler needs. *github.Client
// satisfies it.
type Host interface {
	CreateBranch(ctx context.Context, branch, base string) (*github.BranchInfo, error)
	GetOrCreatePR(ctx context.Context, opts github.PRCreateOptions) (*github.PullRequest, error)
	GetPR(ctx context.Context, ref string) (*github.PullRequest, error)
	GetBranchDiff(ctx context.Context, prNumber int) (*github.BranchDiff, error)
	GetFileContents(ctx context.Context, path, ref string) ([]byte, error)
	CommentOnIssue(ctx context.Context, number int, body string) (int64, error)
	UpdateComment(ctx context.Context, commentID int64, body string) error
}

// Result is the terminal state of one ticket run.
type Result struct {
	Batch     change.Batch
	Branch    string
	CommitSHA string
	Outcome   orch.Outcome
	PRNumber  int
	Success   bool
}

// Deps bundles the collaborators of a handler. Store is optional; the
// handler runs without history when it is nil.
type Deps struct {
	Planner      Planner
	Host         Host
	Orchestrator *orch.Orchestrator
	Loop         *orch.VerifyLoop
	Creds        github.CredentialProvider
	Policy       *config.RepoPolicy
	Git          config.GitConfig
	Sink         events.Sink
	Store        *persistence.DatabaseOperations
	RunID        string
	Repo         string
}

// Handler processes one ticket. Not safe for concurrent use; concurrent
// tickets get independent handlers.
type Handler struct {
	deps   Deps
	logger *logx.Logger
}

// NewHandler wires a ticket handler.
func NewHandler(deps Deps) *Handler {
	if deps.Sink == nil {
		deps.Sink = events.NopSink{}
	}
	return &Handler{
		deps:   deps,
		logger: logx.NewLogger("ticket"),
	}
}

// Handle runs the full flow for one ticket. A run that produces no changes
// is not an error: the result reports Success=false and the status comment
// says so.
func (h *Handler) Handle(ctx context.Context, t Ticket, repo synth.RepoReader) (*Result, error) {
	h.emit(events.TypeStarted, t, "", 0)
	h.persistRun(t, "")

	batch, err := h.deps.Planner.Plan(ctx, t.Title, t.Body, repo)
	if err != nil {
		h.finishRun(persistence.RunStatusFailed, 0)
		return nil, fmt.Errorf("planning failed: %w", err)
	}
	h.logger.Info("planned %d change requests for ticket #%d", len(batch), t.Number)

	branch := h.deps.Git.BranchPrefix + utils.ToBranchSlug(t.Title)
	base := h.deps.Git.TargetBranch
	if h.deps.Policy != nil && h.deps.Policy.Branch != "" {
		base = h.deps.Policy.Branch
	}
	if _, err := h.deps.Host.CreateBranch(ctx, branch, base); err != nil {
		h.finishRun(persistence.RunStatusFailed, 0)
		return nil, fmt.Errorf("failed to create working branch %s: %w", branch, err)
	}
	h.persistRun(t, branch)

	progress := &orch.Progress{Title: t.Title, Batch: batch, Branch: branch}
	reporter := NewStatusReporter(h.deps.Host, h.deps.Creds, t.Number)
	reporter.Publish(ctx, progress)

	round, err := h.deps.Orchestrator.Run(ctx, batch, h.description(t), repo, branch, nil)
	if err != nil {
		h.emit(events.TypeFailed, t, branch, 0)
		h.finishRun(persistence.RunStatusFailed, 0)
		reporter.Publish(ctx, progress)
		return nil, err
	}
	h.persistRound(0, round, persistence.VerificationPending)

	if !round.Success {
		h.emit(events.TypeFailed, t, branch, 0)
		h.finishRun(persistence.RunStatusFailed, 0)
		progress.Outcome = orch.OutcomeFailed
		reporter.Publish(ctx, progress)
		return &Result{Batch: batch, Branch: branch, Success: false, Outcome: orch.OutcomeFailed}, nil
	}
	progress.RemovedPaths = round.Removed
	reporter.Publish(ctx, progress)

	pr, err := h.deps.Host.GetOrCreatePR(ctx, github.PRCreateOptions{
		Title: t.Title,
		Body:  h.prBody(t),
		Head:  branch,
		Base:  base,
	})
	if err != nil {
		h.finishRun(persistence.RunStatusFailed, 0)
		return nil, fmt.Errorf("failed to open pull request: %w", err)
	}
	progress.PRNumber = pr.Number
	h.persistPR(pr.Number)

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

func (h *Handler) verificationEnabled() bool {
	return h.deps.Loop != nil && h.deps.Policy != nil && h.deps.Policy.VerifyCI
}

// description is the free text handed to the synthesizer.
func (h *Handler) description(t Ticket) string {
	var b strings.Builder
	b.WriteString(t.Title)
	if strings.TrimSpace(t.Body) != "" {
		b.WriteString("\n\n")
		b.WriteString(t.Body)
	}
	return b.String()
}

func (h *Handler) prBody(t Ticket) string {
	return fmt.Sprintf("Automated changes for #%d.\n\n%s", t.Number, t.Body)
}

func (h *Handler) emit(eventType events.Type, t Ticket, branch string, prNumber int) {
	event := events.New(h.deps.RunID, eventType)
	event.Actor = t.Actor
	event.Repo = h.deps.Repo
	event.Branch = branch
	event.PRNumber = prNumber
	h.deps.Sink.Emit(event)
}

// persistRun records or updates the run row; history is best effort.
func (h *Handler) persistRun(t Ticket, branch string) {
	if h.deps.Store == nil {
		return
	}
	err := h.deps.Store.UpsertRun(&persistence.Run{
		ID:          h.deps.RunID,
		Repo:        h.deps.Repo,
		Branch:      branch,
		TicketTitle: t.Title,
		Actor:       t.Actor,
		Status:      persistence.RunStatusRunning,
	})
	if err != nil {
		h.logger.Warn("failed to persist run: %v", err)
	}
}

func (h *Handler) persistRound(number int, round *orch.RoundResult, verification string) {
	if h.deps.Store == nil {
		return
	}
	if !round.Success {
		verification = persistence.VerificationFailure
	}
	err := h.deps.Store.UpsertRound(&persistence.Round{
		RunID:        h.deps.RunID,
		Number:       number,
		FilesChanged: len(round.Snapshot),
		FilesRemoved: len(round.Removed),
		CommitSHA:    round.CommitSHA,
		Verification: verification,
	})
	if err != nil {
		h.logger.Warn("failed to persist round %d: %v", number, err)
	}
}

func (h *Handler) persistPR(prNumber int) {
	if h.deps.Store == nil {
		return
	}
	err := h.deps.Store.UpdateRunStatus(&persistence.UpdateRunStatusRequest{
		RunID:    h.deps.RunID,
		Status:   persistence.RunStatusRunning,
		PRNumber: &prNumber,
	})
	if err != nil {
		h.logger.Warn("failed to persist PR number: %v", err)
	}
}

func (h *Handler) finishRun(status string, prNumber int) {
	if h.deps.Store == nil {
		return
	}
	req := &persistence.UpdateRunStatusRequest{
		RunID:     h.deps.RunID,
		Status:    status,
		Timestamp: time.Now().UTC(),
	}
	if prNumber > 0 {
		req.PRNumber = &prNumber
	}
	if err := h.deps.Store.UpdateRunStatus(req); err != nil {
		h.logger.Warn("failed to persist run status: %v", err)
	}
}

func verificationForOutcome(outcome orch.Outcome) string {
	switch outcome {
	case orch.OutcomeSuccess:
		return persistence.VerificationSuccess
	case orch.OutcomeInconclusive:
		return persistence.VerificationInconclusive
	default:
		return persistence.VerificationFailure
	}
}

func runStatusForOutcome(outcome orch.Outcome) string {
	switch outcome {
	case orch.OutcomeSuccess:
		return persistence.RunStatusSucceeded
	case orch.OutcomeInconclusive:
		return persistence.RunStatusInconclusive
	default:
		return persistence.RunStatusFailed
	}
}
