package github

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRollupWorkflowRuns(t *testing.T) {
	tests := []struct {
		name       string
		runs       []WorkflowRun
		wantState  string
		wantFailed int
	}{
		{
			name:      "no runs means nothing to verify",
			runs:      nil,
			wantState: WorkflowStateSuccess,
		},
		{
			name: "all passing",
			runs: []WorkflowRun{
				{Name: "build", Status: "completed", Conclusion: "success"},
				{Name: "test", Status: "completed", Conclusion: "success"},
			},
			wantState: WorkflowStateSuccess,
		},
		{
			name: "one failure",
			runs: []WorkflowRun{
				{Name: "build", Status: "completed", Conclusion: "success"},
				{Name: "test", Status: "completed", Conclusion: "failure"},
			},
			wantState:  WorkflowStateFailure,
			wantFailed: 1,
		},
		{
			name: "pending wins over failure",
			runs: []WorkflowRun{
				{Name: "build", Status: "completed", Conclusion: "failure"},
				{Name: "test", Status: "in_progress"},
			},
			wantState:  WorkflowStatePending,
			wantFailed: 1,
		},
		{
			name: "cancelled and skipped are neutral",
			runs: []WorkflowRun{
				{Name: "build", Status: "completed", Conclusion: "cancelled"},
				{Name: "lint", Status: "completed", Conclusion: "skipped"},
				{Name: "test", Status: "completed", Conclusion: "success"},
			},
			wantState: WorkflowStateSuccess,
		},
		{
			name: "timed out counts as failure",
			runs: []WorkflowRun{
				{Name: "e2e", Status: "completed", Conclusion: "timed_out"},
			},
			wantState:  WorkflowStateFailure,
			wantFailed: 1,
		},
		{
			name: "queued counts as pending",
			runs: []WorkflowRun{
				{Name: "build", Status: "queued"},
			},
			wantState: WorkflowStatePending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := RollupWorkflowRuns(tt.runs)
			assert.Equal(t, tt.wantState, status.State)
			assert.Equal(t, tt.wantFailed, status.Failed)
			assert.Len(t, status.FailedRuns, tt.wantFailed)
			assert.Equal(t, len(tt.runs), status.TotalRuns)
		})
	}
}
