package synth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autopatch/pkg/change"
	"autopatch/pkg/synth/llm"
	"autopatch/pkg/utils"
)

func newTestPlanner(t *testing.T, client llm.Client) *Planner {
	t.Helper()
	counter, err := utils.NewTokenCounter("gpt-4")
	require.NoError(t, err)
	return NewPlanner(client, counter, testModelConfig())
}

func TestPlannerBuildsBatch(t *testing.T) {
	client := &fakeClient{response: llm.Response{Content: `
<change file="pkg/server.go" type="modify" relevant="pkg/config.go">
Add a /healthz endpoint.
</change>
<change file="docs/health.md" type="create">
Document it.
</change>`}}
	planner := newTestPlanner(t, client)

	repo := mapRepo{"pkg/server.go": "package server", "pkg/config.go": "package config"}
	batch, err := planner.Plan(context.Background(), "Add health check", "We need /healthz.", repo)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	assert.Equal(t, "pkg/server.go", batch[0].Filename)
	assert.Equal(t, change.TypeModify, batch[0].Type)
	assert.Equal(t, []string{"pkg/config.go"}, batch[0].RelevantFiles)
	assert.Equal(t, change.StatusPending, batch[0].Status)

	assert.Equal(t, "docs/health.md", batch[1].Filename)
	assert.Equal(t, change.TypeCreate, batch[1].Type)
}

func TestPlannerDropsUnknownFiles(t *testing.T) {
	client := &fakeClient{response: llm.Response{Content: `
<change file="made/up.go" type="modify">
Edit a file that does not exist.
</change>
<change file="real.go" type="modify" relevant="also/fake.go">
Real edit with a hallucinated context file.
</change>`}}
	planner := newTestPlanner(t, client)

	repo := mapRepo{"real.go": "package main"}
	batch, err := planner.Plan(context.Background(), "t", "b", repo)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "real.go", batch[0].Filename)
	assert.Empty(t, batch[0].RelevantFiles)
}

func TestPlannerUnknownTypeDefaultsToModify(t *testing.T) {
	client := &fakeClient{response: llm.Response{Content: `
<change file="a.go" type="rewrite">
Do something.
</change>`}}
	planner := newTestPlanner(t, client)

	batch, err := planner.Plan(context.Background(), "t", "b", mapRepo{"a.go": "x"})
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, change.TypeModify, batch[0].Type)
}

func TestPlannerEmptyPlanIsAnError(t *testing.T) {
	client := &fakeClient{response: llm.Response{Content: "nothing to do"}}
	planner := newTestPlanner(t, client)

	_, err := planner.Plan(context.Background(), "t", "b", mapRepo{"a.go": "x"})
	require.Error(t, err)
	var synthErr *SynthesisError
	assert.ErrorAs(t, err, &synthErr)
}

func TestPlannerMapsClientErrors(t *testing.T) {
	client := &fakeClient{err: llm.NewError("test", llm.ErrTypeBadRequest, 400, "too long", nil)}
	planner := newTestPlanner(t, client)

	_, err := planner.Plan(context.Background(), "t", "b", mapRepo{"a.go": "x"})
	assert.True(t, IsInvalidRequest(err))
}
