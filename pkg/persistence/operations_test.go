package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autopatch/pkg/events"
)

// createTestDB opens a fresh database in a per-test temp dir.
func createTestDB(t *testing.T) *DatabaseOperations {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := InitializeDatabase(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewDatabaseOperations(db)
}

func testRun(id string) *Run {
	return &Run{
		ID:          id,
		Repo:        "acme/widgets",
		Branch:      "autopatch/fix-login",
		TicketTitle: "Fix login redirect",
		Actor:       "octocat",
	}
}

func TestRunOperations(t *testing.T) {
	t.Run("UpsertAndGet", func(t *testing.T) {
		ops := createTestDB(t)

		runID := events.NewRunID()
		require.NoError(t, ops.UpsertRun(testRun(runID)))

		got, err := ops.GetRunByID(runID)
		require.NoError(t, err)
		assert.Equal(t, "acme/widgets", got.Repo)
		assert.Equal(t, RunStatusRunning, got.Status)
		assert.Nil(t, got.CompletedAt)
	})

	t.Run("GetMissing", func(t *testing.T) {
		ops := createTestDB(t)

		_, err := ops.GetRunByID("nope")
		assert.ErrorIs(t, err, ErrRunNotFound)
	})

	t.Run("UpdateStatusStampsCompletion", func(t *testing.T) {
		ops := createTestDB(t)

		runID := events.NewRunID()
		require.NoError(t, ops.UpsertRun(testRun(runID)))

		tokens := int64(12345)
		cost := 0.42
		prNumber := 7
		err := ops.UpdateRunStatus(&UpdateRunStatusRequest{
			RunID:      runID,
			Status:     RunStatusSucceeded,
			TokensUsed: &tokens,
			CostUSD:    &cost,
			PRNumber:   &prNumber,
		})
		require.NoError(t, err)

		got, err := ops.GetRunByID(runID)
		require.NoError(t, err)
		assert.Equal(t, RunStatusSucceeded, got.Status)
		assert.NotNil(t, got.CompletedAt)
		assert.Equal(t, int64(12345), got.TokensUsed)
		assert.InDelta(t, 0.42, got.CostUSD, 0.0001)
		assert.Equal(t, 7, got.PRNumber)
	})

	t.Run("UpdateStatusRejectsUnknownStatus", func(t *testing.T) {
		ops := createTestDB(t)

		err := ops.UpdateRunStatus(&UpdateRunStatusRequest{RunID: "x", Status: "exploded"})
		assert.Error(t, err)
	})

	t.Run("UpdateStatusMissingRun", func(t *testing.T) {
		ops := createTestDB(t)

		err := ops.UpdateRunStatus(&UpdateRunStatusRequest{RunID: "nope", Status: RunStatusFailed})
		assert.ErrorIs(t, err, ErrRunNotFound)
	})

	t.Run("QueryWithFilter", func(t *testing.T) {
		ops := createTestDB(t)

		first := testRun(events.NewRunID())
		second := testRun(events.NewRunID())
		second.Repo = "acme/gadgets"
		require.NoError(t, ops.UpsertRun(first))
		require.NoError(t, ops.UpsertRun(second))

		repo := "acme/widgets"
		runs, err := ops.QueryRuns(&RunFilter{Repo: &repo})
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, first.ID, runs[0].ID)

		all, err := ops.QueryRuns(nil)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})
}

func TestRoundOperations(t *testing.T) {
	ops := createTestDB(t)

	runID := events.NewRunID()
	require.NoError(t, ops.UpsertRun(testRun(runID)))

	require.NoError(t, ops.UpsertRound(&Round{
		RunID:        runID,
		Number:       0,
		FilesChanged: 3,
		CommitSHA:    "abc123",
	}))
	require.NoError(t, ops.UpsertRound(&Round{
		RunID:        runID,
		Number:       1,
		FilesChanged: 1,
		Verification: VerificationFailure,
	}))

	// Re-upserting a round updates it in place.
	require.NoError(t, ops.UpsertRound(&Round{
		RunID:        runID,
		Number:       1,
		FilesChanged: 1,
		CommitSHA:    "def456",
		Verification: VerificationSuccess,
	}))

	rounds, err := ops.GetRoundsForRun(runID)
	require.NoError(t, err)
	require.Len(t, rounds, 2)
	assert.Equal(t, VerificationPending, rounds[0].Verification)
	assert.Equal(t, "abc123", rounds[0].CommitSHA)
	assert.Equal(t, VerificationSuccess, rounds[1].Verification)
	assert.Equal(t, "def456", rounds[1].CommitSHA)
}

func TestEventStorage(t *testing.T) {
	ops := createTestDB(t)

	runID := events.NewRunID()
	require.NoError(t, ops.UpsertRun(testRun(runID)))

	started := events.New(runID, events.TypeStarted)
	started.Repo = "acme/widgets"
	repair := events.New(runID, events.TypeRepairRound)
	repair.Round = 2
	repair.Detail = "lint failure"

	sink := NewSink(ops)
	sink.Emit(started)
	sink.Emit(repair)

	stored, err := ops.GetEventsForRun(runID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, started.ID, stored[0].ID)
	assert.Equal(t, events.TypeStarted, stored[0].Type)
	assert.Equal(t, 2, stored[1].Round)
	assert.Equal(t, "lint failure", stored[1].Detail)
}

func TestRepoSummary(t *testing.T) {
	ops := createTestDB(t)

	base := time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC)
	for i, status := range []string{RunStatusSucceeded, RunStatusFailed, RunStatusSucceeded} {
		run := testRun(events.NewRunID())
		run.TokensUsed = int64(1000 * (i + 1))
		run.CostUSD = 0.1
		require.NoError(t, ops.UpsertRun(run))
		require.NoError(t, ops.UpdateRunStatus(&UpdateRunStatusRequest{
			RunID:      run.ID,
			Status:     status,
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
			TokensUsed: &run.TokensUsed,
			CostUSD:    &run.CostUSD,
		}))
	}

	summary, err := ops.GetRepoSummary("acme/widgets")
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalRuns)
	assert.Equal(t, 2, summary.SucceededRuns)
	assert.Equal(t, int64(6000), summary.TotalTokens)
	assert.InDelta(t, 0.3, summary.TotalCost, 0.0001)
	require.NotNil(t, summary.LastCompleted)
	assert.True(t, summary.LastCompleted.Equal(base.Add(2*time.Minute)))
}

func TestRepoSummaryWithoutCompletedRuns(t *testing.T) {
	ops := createTestDB(t)
	require.NoError(t, ops.UpsertRun(testRun(events.NewRunID())))

	summary, err := ops.GetRepoSummary("acme/widgets")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalRuns)
	assert.Equal(t, 0, summary.SucceededRuns)
	assert.Nil(t, summary.LastCompleted)
}

func TestSchemaVersion(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "fresh.db")
	db, err := InitializeDatabase(dbPath)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}
