package ticket

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autopatch/pkg/change"
	"autopatch/pkg/config"
	"autopatch/pkg/events"
	"autopatch/pkg/github"
	"autopatch/pkg/orch"
	"autopatch/pkg/persistence"
	"autopatch/pkg/synth"
)

// fakePlanner returns a scripted batch.
type fakePlanner struct {
	batch change.Batch
	err   error
}

func (f *fakePlanner) Plan(_ context.Context, _, _ string, _ synth.RepoReader) (change.Batch, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.batch, nil
}

// fakeHost records branch, PR, and comment traffic. pr, diff, and files
// script the read side for comment-driven revisions; files is keyed
// "ref:path".
type fakeHost struct {
	branches    []string
	branchBases []string
	prOpts      *github.PRCreateOptions
	pr          *github.PullRequest
	diff        *github.BranchDiff
	files       map[string]string
	comments    []string
	updates     []string
	commentErrs []error
	nextComment int64
}

func (f *fakeHost) CreateBranch(_ context.Context, branch, base string) (*github.BranchInfo, error) {
	f.branches = append(f.branches, branch)
	f.branchBases = append(f.branchBases, base)
	return &github.BranchInfo{Name: branch}, nil
}

func (f *fakeHost) GetOrCreatePR(_ context.Context, opts github.PRCreateOptions) (*github.PullRequest, error) {
	f.prOpts = &opts
	return &github.PullRequest{Number: 42, HeadRefName: opts.Head}, nil
}

func (f *fakeHost) GetPR(_ context.Context, ref string) (*github.PullRequest, error) {
	if f.pr == nil {
		return nil, fmt.Errorf("no pull request found for %s", ref)
	}
	return f.pr, nil
}

func (f *fakeHost) GetBranchDiff(_ context.Context, _ int) (*github.BranchDiff, error) {
	if f.diff == nil {
		return &github.BranchDiff{}, nil
	}
	return f.diff, nil
}

func (f *fakeHost) GetFileContents(_ context.Context, path, ref string) ([]byte, error) {
	if contents, ok := f.files[ref+":"+path]; ok {
		return []byte(contents), nil
	}
	return nil, fmt.Errorf("404: %s not found at %s", path, ref)
}

func (f *fakeHost) CommentOnIssue(_ context.Context, _ int, body string) (int64, error) {
	if len(f.commentErrs) > 0 {
		err := f.commentErrs[0]
		f.commentErrs = f.commentErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	f.comments = append(f.comments, body)
	f.nextComment++
	return f.nextComment, nil
}

func (f *fakeHost) UpdateComment(_ context.Context, _ int64, body string) error {
	f.updates = append(f.updates, body)
	return nil
}

// fakeSynth returns one scripted snapshot and records its inputs.
type fakeSynth struct {
	snapshot  change.Snapshot
	lastBatch change.Batch
	lastPrior change.Snapshot
}

func (f *fakeSynth) Synthesize(_ context.Context, batch change.Batch, _ string, _ synth.RepoReader, prior change.Snapshot) (change.Snapshot, error) {
	f.lastBatch = batch
	f.lastPrior = prior
	return f.snapshot, nil
}

// fakeCommitter mints sequential SHAs.
type fakeCommitter struct {
	calls       int
	lastMessage string
}

func (f *fakeCommitter) Commit(_ context.Context, _ string, _ change.Snapshot, _ change.Batch, message string) (string, error) {
	f.calls++
	f.lastMessage = message
	return fmt.Sprintf("sha-%d", f.calls), nil
}

type fakeCreds struct {
	refreshes int
}

func (f *fakeCreds) Token(_ context.Context) (string, error) { return "tok", nil }
func (f *fakeCreds) Refresh(_ context.Context) error         { f.refreshes++; return nil }

type emptyRepo struct{}

func (emptyRepo) ReadFile(_ context.Context, path string) (string, error) {
	return "", fmt.Errorf("no such file: %s", path)
}

func (emptyRepo) ListFiles(_ context.Context) ([]string, error) { return nil, nil }

func testStore(t *testing.T) *persistence.DatabaseOperations {
	t.Helper()
	db, err := persistence.InitializeDatabase(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return persistence.NewDatabaseOperations(db)
}

func testDeps(t *testing.T, planner Planner, host Host, snapshot change.Snapshot, verifyCI bool) (Deps, *fakeCommitter) {
	deps, committer, _ := testDepsWithSynth(t, planner, host, snapshot, verifyCI)
	return deps, committer
}

func testDepsWithSynth(t *testing.T, planner Planner, host Host, snapshot change.Snapshot, verifyCI bool) (Deps, *fakeCommitter, *fakeSynth) {
	t.Helper()

	policy := config.DefaultRepoPolicy()
	policy.VerifyCI = verifyCI
	committer := &fakeCommitter{}
	synthesizer := &fakeSynth{snapshot: snapshot}
	runID := events.NewRunID()
	orchestrator := orch.NewOrchestrator(synthesizer, committer, &policy, events.NopSink{}, runID, "acme/widgets", "octocat")

	return Deps{
		Planner:      planner,
		Host:         host,
		Orchestrator: orchestrator,
		Creds:        &fakeCreds{},
		Policy:       &policy,
		Git: config.GitConfig{
			BranchPrefix: "autopatch/",
			BotUsername:  "autopatch-bot",
			TargetBranch: "main",
		},
		Sink:  events.NopSink{},
		Store: testStore(t),
		RunID: runID,
		Repo:  "acme/widgets",
	}, committer, synthesizer
}

func sampleTicket() Ticket {
	return Ticket{
		Number: 12,
		Title:  "Fix login redirect",
		Body:   "Users land on a 404 after logging in.",
		Actor:  "octocat",
	}
}

func TestHandleHappyPathWithoutVerification(t *testing.T) {
	planner := &fakePlanner{batch: change.Batch{
		change.NewRequest("auth/login.py", "fix the redirect target", change.TypeModify),
	}}
	host := &fakeHost{}
	snapshot := change.Snapshot{"auth/login.py": {Contents: "v2", OriginalContents: "v1"}}
	deps, committer := testDeps(t, planner, host, snapshot, false)

	handler := NewHandler(deps)
	result, err := handler.Handle(context.Background(), sampleTicket(), emptyRepo{})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, orch.OutcomeSuccess, result.Outcome)
	assert.Equal(t, 42, result.PRNumber)
	assert.Equal(t, "sha-1", result.CommitSHA)

	require.Len(t, host.branches, 1)
	assert.Equal(t, "autopatch/fix-login-redirect", host.branches[0])
	assert.Equal(t, "main", host.branchBases[0])

	require.NotNil(t, host.prOpts)
	assert.Equal(t, "Fix login redirect", host.prOpts.Title)
	assert.Equal(t, "autopatch/fix-login-redirect", host.prOpts.Head)

	assert.Equal(t, "feat: Updated 1 files", committer.lastMessage)

	// First publish creates the comment, later ones edit it in place.
	require.Len(t, host.comments, 1)
	assert.NotEmpty(t, host.updates)
	assert.Contains(t, host.updates[len(host.updates)-1], "All checks passed.")

	// Run history landed in the store.
	run, err := deps.Store.GetRunByID(deps.RunID)
	require.NoError(t, err)
	assert.Equal(t, persistence.RunStatusSucceeded, run.Status)
	assert.Equal(t, 42, run.PRNumber)

	rounds, err := deps.Store.GetRoundsForRun(deps.RunID)
	require.NoError(t, err)
	require.Len(t, rounds, 1)
	assert.Equal(t, 1, rounds[0].FilesChanged)
	assert.Equal(t, "sha-1", rounds[0].CommitSHA)
}

func TestHandlePlanningFailure(t *testing.T) {
	planner := &fakePlanner{err: errors.New("model unavailable")}
	host := &fakeHost{}
	deps, committer := testDeps(t, planner, host, nil, false)

	handler := NewHandler(deps)
	_, err := handler.Handle(context.Background(), sampleTicket(), emptyRepo{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "planning failed")
	assert.Empty(t, host.branches)
	assert.Equal(t, 0, committer.calls)

	run, err := deps.Store.GetRunByID(deps.RunID)
	require.NoError(t, err)
	assert.Equal(t, persistence.RunStatusFailed, run.Status)
}

func TestHandleNoChangesIsNotAnError(t *testing.T) {
	planner := &fakePlanner{batch: change.Batch{
		change.NewRequest("auth/login.py", "fix the redirect target", change.TypeModify),
	}}
	host := &fakeHost{}
	deps, committer := testDeps(t, planner, host, change.Snapshot{}, false)

	handler := NewHandler(deps)
	result, err := handler.Handle(context.Background(), sampleTicket(), emptyRepo{})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, orch.OutcomeFailed, result.Outcome)
	assert.Equal(t, 0, committer.calls)
	assert.Nil(t, host.prOpts)

	run, err := deps.Store.GetRunByID(deps.RunID)
	require.NoError(t, err)
	assert.Equal(t, persistence.RunStatusFailed, run.Status)
}

func TestHandlePolicyBranchOverride(t *testing.T) {
	planner := &fakePlanner{batch: change.Batch{
		change.NewRequest("auth/login.py", "fix", change.TypeModify),
	}}
	host := &fakeHost{}
	snapshot := change.Snapshot{"auth/login.py": {Contents: "v2", OriginalContents: "v1"}}
	deps, _ := testDeps(t, planner, host, snapshot, false)
	deps.Policy.Branch = "develop"

	handler := NewHandler(deps)
	_, err := handler.Handle(context.Background(), sampleTicket(), emptyRepo{})
	require.NoError(t, err)

	assert.Equal(t, "develop", host.branchBases[0])
	assert.Equal(t, "develop", host.prOpts.Base)
}

func revisionHost() *fakeHost {
	return &fakeHost{
		pr: &github.PullRequest{
			Number:      42,
			Title:       "Fix login redirect",
			State:       "OPEN",
			HeadRefName: "autopatch/fix-login-redirect",
			BaseRefName: "main",
		},
		diff: &github.BranchDiff{Files: []github.FileDiffSummary{
			{Path: "auth/login.py", Added: 3, Deleted: 1},
		}},
		files: map[string]string{
			"autopatch/fix-login-redirect:auth/login.py": "v2",
			"main:auth/login.py":                          "v1",
		},
	}
}

func sampleComment() Comment {
	return Comment{
		PRNumber: 42,
		Body:     "Please also handle the trailing-slash case.",
		Actor:    "reviewer",
	}
}

func TestHandleCommentRevisesExistingBranch(t *testing.T) {
	planner := &fakePlanner{batch: change.Batch{
		change.NewRequest("auth/login.py", "handle trailing slashes", change.TypeModify),
	}}
	host := revisionHost()
	snapshot := change.Snapshot{"auth/login.py": {Contents: "v3", OriginalContents: "v2"}}
	deps, committer, synthesizer := testDepsWithSynth(t, planner, host, snapshot, false)

	handler := NewHandler(deps)
	result, err := handler.HandleComment(context.Background(), sampleComment(), emptyRepo{})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 42, result.PRNumber)
	assert.Equal(t, "autopatch/fix-login-redirect", result.Branch)
	assert.Equal(t, "sha-1", result.CommitSHA)
	assert.Equal(t, 1, committer.calls)

	// The branch's existing changes seeded the round as prior state.
	require.Contains(t, synthesizer.lastPrior, "auth/login.py")
	assert.Equal(t, "v2", synthesizer.lastPrior["auth/login.py"].Contents)
	assert.Equal(t, "v1", synthesizer.lastPrior["auth/login.py"].OriginalContents)

	// No new branch or PR; status goes to the PR conversation.
	assert.Empty(t, host.branches)
	assert.Nil(t, host.prOpts)
	require.Len(t, host.comments, 1)

	run, err := deps.Store.GetRunByID(deps.RunID)
	require.NoError(t, err)
	assert.Equal(t, persistence.RunStatusSucceeded, run.Status)
	assert.Equal(t, 42, run.PRNumber)
	assert.Equal(t, "autopatch/fix-login-redirect", run.Branch)
}

func TestHandleCommentRejectsClosedPR(t *testing.T) {
	host := revisionHost()
	host.pr.Closed = true
	deps, committer := testDeps(t, &fakePlanner{}, host, nil, false)

	handler := NewHandler(deps)
	_, err := handler.HandleComment(context.Background(), sampleComment(), emptyRepo{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no longer open")
	assert.Equal(t, 0, committer.calls)
}

func TestHandleCommentFallsBackToBranchPaths(t *testing.T) {
	// A comment that plans no files still revises what the branch touches.
	planner := &fakePlanner{}
	host := revisionHost()
	snapshot := change.Snapshot{"auth/login.py": {Contents: "v3", OriginalContents: "v2"}}
	deps, committer, synthesizer := testDepsWithSynth(t, planner, host, snapshot, false)

	handler := NewHandler(deps)
	result, err := handler.HandleComment(context.Background(), sampleComment(), emptyRepo{})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 1, committer.calls)
	require.Len(t, synthesizer.lastBatch, 1)
	assert.Equal(t, "auth/login.py", synthesizer.lastBatch[0].Filename)
	assert.Contains(t, synthesizer.lastBatch[0].Instructions, "trailing-slash")
}

func TestReporterRetriesOnceOnAuthFailure(t *testing.T) {
	host := &fakeHost{commentErrs: []error{errors.New("HTTP 401: bad credentials")}}
	creds := &fakeCreds{}
	reporter := NewStatusReporter(host, creds, 12)

	progress := &orch.Progress{Title: "Fix login redirect"}
	reporter.Publish(context.Background(), progress)

	assert.Equal(t, 1, creds.refreshes)
	require.Len(t, host.comments, 1)
	assert.NotZero(t, reporter.commentID)

	// Later publishes edit the existing comment.
	reporter.Publish(context.Background(), progress)
	assert.Len(t, host.updates, 1)
}

func TestReporterSwallowsPersistentFailure(t *testing.T) {
	host := &fakeHost{commentErrs: []error{
		errors.New("HTTP 401: bad credentials"),
		errors.New("HTTP 401: bad credentials"),
	}}
	creds := &fakeCreds{}
	reporter := NewStatusReporter(host, creds, 12)

	reporter.Publish(context.Background(), &orch.Progress{Title: "x"})
	assert.Equal(t, 1, creds.refreshes)
	assert.Empty(t, host.comments)
	assert.Zero(t, reporter.commentID)
}
