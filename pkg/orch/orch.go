// Package orch sequences synthesis, sanitization, and atomic commits into
// rounds, and drives the bounded CI verification/repair loop on top of them.
package orch

import (
	"context"
	"fmt"

	"autopatch/pkg/change"
	"autopatch/pkg/config"
	"autopatch/pkg/events"
	"autopatch/pkg/logx"
	"autopatch/pkg/sanitize"
	"autopatch/pkg/synth"
	"autopatch/pkg/utils"
)

// maxCommitMessageLen bounds the deterministic commit message.
const maxCommitMessageLen = 50

// Committer applies an atomic multi-file write to a named branch. All-or-
// nothing: a failed commit leaves no partial state on the branch.
type Committer interface {
	Commit(ctx context.Context, branch string, snapshot change.Snapshot, batch change.Batch, message string) (string, error)
}

// RoundResult is the outcome of one synthesize-sanitize-commit round.
type RoundResult struct {
	// Snapshot is the cumulative file state after this round, including
	// entries carried forward from prior rounds.
	Snapshot change.Snapshot
	// Removed lists paths the sanitizer dropped before commit.
	Removed []string
	// CommitSHA is set when the round committed.
	CommitSHA string
	// Success is true when at least one file changed and was committed.
	Success bool
}

// Orchestrator owns the change-request batch and the cumulative snapshot
// for the duration of one ticket run. It is not safe for concurrent use;
// concurrent tickets get independent instances.
type Orchestrator struct {
	synthesizer synth.Synthesizer
	committer   Committer
	policy      *config.RepoPolicy
	sink        events.Sink
	logger      *logx.Logger
	runID       string
	repo        string
	actor       string
}

// NewOrchestrator creates an orchestrator for one ticket run.
func NewOrchestrator(synthesizer synth.Synthesizer, committer Committer, policy *config.RepoPolicy, sink events.Sink, runID, repo, actor string) *Orchestrator {
	if sink == nil {
		sink = events.NopSink{}
	}
	return &Orchestrator{
		synthesizer: synthesizer,
		committer:   committer,
		policy:      policy,
		sink:        sink,
		logger:      logx.NewLogger("orch"),
		runID:       runID,
		repo:        repo,
		actor:       actor,
	}
}

// CommitMessage derives the deterministic commit message for n files.
func CommitMessage(n int) string {
	return utils.Truncate(fmt.Sprintf("feat: Updated %d files", n), maxCommitMessageLen)
}

// Run executes one round over the whole batch: synthesize new contents,
// merge them onto the prior snapshot, sanitize, and commit atomically.
//
// An empty synthesis result is not an error: the round reports
// Success=false, every non-terminal request is marked failed, and no
// commit happens. Synthesizer and committer errors abort the round and
// propagate; this layer never retries them.
func (o *Orchestrator) Run(ctx context.Context, batch change.Batch, description string, repo synth.RepoReader, branch string, prior change.Snapshot) (*RoundResult, error) {
	o.markRunning(batch)

	produced, err := o.synthesizer.Synthesize(ctx, batch, description, repo, prior)
	if err != nil {
		return nil, err
	}

	if len(produced) == 0 {
		o.logger.Info("synthesis produced no changes for %d requests", len(batch))
		o.failRemaining(batch)
		o.emit(events.TypeNoChanges, branch, func(e *events.Event) {
			e.Files = 0
		})
		return &RoundResult{Snapshot: prior, Success: false}, nil
	}

	merged := prior.Merge(produced)
	o.markStatuses(batch, produced)

	result := sanitize.Sanitize(merged, batch, o.policy)
	if len(result.Removed) > 0 {
		o.logger.Warn("sanitizer removed %d polluted paths: %v", len(result.Removed), result.Removed)
		o.emit(events.TypePollutionDetected, branch, func(e *events.Event) {
			e.Removed = result.Removed
		})
	}

	if len(result.Snapshot) == 0 {
		o.failRemaining(batch)
		o.emit(events.TypeNoChanges, branch, func(e *events.Event) {
			e.Detail = "sanitizer removed every proposed file"
		})
		return &RoundResult{Snapshot: prior, Removed: result.Removed, Success: false}, nil
	}

	message := CommitMessage(len(result.Snapshot))
	sha, err := o.committer.Commit(ctx, branch, result.Snapshot, batch, message)
	if err != nil {
		return nil, fmt.Errorf("commit failed: %w", err)
	}
	o.logger.Info("committed %d files to %s as %s", len(result.Snapshot), branch, utils.ShortHash(sha))

	for _, req := range batch {
		if _, ok := produced[req.Filename]; ok {
			req.CommitRef = sha
		}
	}

	return &RoundResult{
		Snapshot:  result.Snapshot,
		Removed:   result.Removed,
		CommitSHA: sha,
		Success:   true,
	}, nil
}

// markRunning moves every pending request to running at round start.
func (o *Orchestrator) markRunning(batch change.Batch) {
	for _, req := range batch {
		if req.Status == change.StatusPending {
			_ = req.Transition(change.StatusRunning)
		}
	}
}

// markStatuses applies the post-synthesis rule: requests whose filename is
// a key of the produced snapshot succeed, all other non-terminal requests
// fail. Requests already terminal from an earlier round are left alone so
// a later round touching the same file never regresses them.
func (o *Orchestrator) markStatuses(batch change.Batch, produced change.Snapshot) {
	for _, req := range batch {
		if req.Terminal() {
			continue
		}
		if _, ok := produced[req.Filename]; ok {
			_ = req.Transition(change.StatusSucceeded)
		} else {
			_ = req.Transition(change.StatusFailed)
		}
	}
}

// failRemaining marks every non-terminal request failed.
func (o *Orchestrator) failRemaining(batch change.Batch) {
	for _, req := range batch {
		if !req.Terminal() {
			_ = req.Transition(change.StatusFailed)
		}
	}
}

func (o *Orchestrator) emit(t events.Type, branch string, fill func(*events.Event)) {
	event := events.New(o.runID, t)
	event.Actor = o.actor
	event.Repo = o.repo
	event.Branch = branch
	if fill != nil {
		fill(&event)
	}
	o.sink.Emit(event)
}
