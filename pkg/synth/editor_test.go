package synth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autopatch/pkg/change"
	"autopatch/pkg/config"
	"autopatch/pkg/synth/llm"
	"autopatch/pkg/utils"
)

type fakeClient struct {
	response llm.Response
	err      error
	lastReq  llm.Request
}

func (f *fakeClient) Complete(_ context.Context, in llm.Request) (llm.Response, error) {
	f.lastReq = in
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return f.response, nil
}

func (f *fakeClient) ModelName() string { return "fake" }

type mapRepo map[string]string

func (m mapRepo) ReadFile(_ context.Context, path string) (string, error) {
	contents, ok := m[path]
	if !ok {
		return "", fmt.Errorf("no such file: %s", path)
	}
	return contents, nil
}

func (m mapRepo) ListFiles(_ context.Context) ([]string, error) {
	var files []string
	for path := range m {
		files = append(files, path)
	}
	return files, nil
}

func testModelConfig() config.ModelConfig {
	return config.ModelConfig{
		Provider:         config.ProviderAnthropic,
		Name:             "test-model",
		MaxContextTokens: 4000,
		MaxOutputTokens:  1000,
	}
}

func newTestEditor(t *testing.T, client llm.Client) *Editor {
	t.Helper()
	counter, err := utils.NewTokenCounter("gpt-4")
	require.NoError(t, err)
	return NewEditor(client, counter, testModelConfig())
}

func TestEditorSynthesizesBatch(t *testing.T) {
	client := &fakeClient{response: llm.Response{
		Content: `<file path="x.py">
v2
</file>`,
		StopReason: "end_turn",
	}}
	editor := newTestEditor(t, client)

	batch := change.Batch{change.NewRequest("x.py", "bump the version", change.TypeModify)}
	repo := mapRepo{"x.py": "v1"}

	snapshot, err := editor.Synthesize(context.Background(), batch, "bump version", repo, change.Snapshot{})
	require.NoError(t, err)
	require.Len(t, snapshot, 1)
	assert.Equal(t, "v2", snapshot["x.py"].Contents)
	assert.Equal(t, "v1", snapshot["x.py"].OriginalContents)
}

func TestEditorPriorSnapshotIsBaseline(t *testing.T) {
	client := &fakeClient{response: llm.Response{Content: `<file path="x.py">
v3
</file>`}}
	editor := newTestEditor(t, client)

	batch := change.Batch{change.NewRequest("x.py", "again", change.TypeModify)}
	repo := mapRepo{"x.py": "v0-on-disk"}
	prior := change.Snapshot{
		"x.py": {Contents: "v2", OriginalContents: "v1"},
	}

	snapshot, err := editor.Synthesize(context.Background(), batch, "repair", repo, prior)
	require.NoError(t, err)

	// The prompt sees the prior round's contents, not the working tree.
	assert.Contains(t, client.lastReq.Messages[1].Content, "v2")
	assert.NotContains(t, client.lastReq.Messages[1].Content, "v0-on-disk")
	// Original contents still diff against the branch base.
	assert.Equal(t, "v1", snapshot["x.py"].OriginalContents)
}

func TestEditorEmptyResponseIsNotAnError(t *testing.T) {
	client := &fakeClient{response: llm.Response{Content: "no changes needed"}}
	editor := newTestEditor(t, client)

	batch := change.Batch{change.NewRequest("x.py", "noop", change.TypeModify)}
	snapshot, err := editor.Synthesize(context.Background(), batch, "noop", mapRepo{"x.py": "v1"}, change.Snapshot{})
	require.NoError(t, err)
	assert.Empty(t, snapshot)
}

func TestEditorDeleteNeedsNoModelOutput(t *testing.T) {
	client := &fakeClient{response: llm.Response{Content: ""}}
	editor := newTestEditor(t, client)

	batch := change.Batch{change.NewRequest("old.txt", "remove it", change.TypeDelete)}
	repo := mapRepo{"old.txt": "stale"}

	snapshot, err := editor.Synthesize(context.Background(), batch, "cleanup", repo, change.Snapshot{})
	require.NoError(t, err)
	require.Contains(t, snapshot, "old.txt")
	assert.Equal(t, "", snapshot["old.txt"].Contents)
	assert.Equal(t, "stale", snapshot["old.txt"].OriginalContents)
	// No prompt was needed for a pure delete batch.
	assert.Empty(t, client.lastReq.Messages)
}

func TestEditorTokenBudgetAbortsRound(t *testing.T) {
	client := &fakeClient{response: llm.Response{Content: "unused"}}
	editor := newTestEditor(t, client)
	editor.maxContextTokens = 10

	batch := change.Batch{
		change.NewRequest("huge.py", "rewrite", change.TypeModify),
		change.NewRequest("small.py", "tweak", change.TypeModify),
	}
	repo := mapRepo{
		"huge.py":  strings.Repeat("data ", 500),
		"small.py": "ok",
	}

	_, err := editor.Synthesize(context.Background(), batch, "big change", repo, change.Snapshot{})
	require.Error(t, err)

	var budgetErr *TokenBudgetError
	require.ErrorAs(t, err, &budgetErr)
	assert.Equal(t, "huge.py", budgetErr.Filename)
	// Round aborted entirely; the client was never called.
	assert.Empty(t, client.lastReq.Messages)
}

func TestEditorMapsClientErrors(t *testing.T) {
	batch := change.Batch{change.NewRequest("x.py", "edit", change.TypeModify)}
	repo := mapRepo{"x.py": "v1"}

	badReq := &fakeClient{err: llm.NewError("test", llm.ErrTypeBadRequest, 400, "context too long", nil)}
	_, err := newTestEditor(t, badReq).Synthesize(context.Background(), batch, "d", repo, change.Snapshot{})
	assert.True(t, IsInvalidRequest(err))

	transient := &fakeClient{err: llm.NewError("test", llm.ErrTypeTransient, 503, "down", nil)}
	_, err = newTestEditor(t, transient).Synthesize(context.Background(), batch, "d", repo, change.Snapshot{})
	var synthErr *SynthesisError
	assert.ErrorAs(t, err, &synthErr)
}

func TestEditorSkipsCheckRequests(t *testing.T) {
	client := &fakeClient{response: llm.Response{Content: `<file path="x.py">
v2
</file>`}}
	editor := newTestEditor(t, client)

	batch := change.Batch{
		change.NewRequest("x.py", "edit", change.TypeModify),
		change.NewRequest("ci.yml", "make sure tests still pass", change.TypeCheck),
	}
	repo := mapRepo{"x.py": "v1", "ci.yml": "jobs: {}"}

	snapshot, err := editor.Synthesize(context.Background(), batch, "d", repo, change.Snapshot{})
	require.NoError(t, err)
	assert.NotContains(t, snapshot, "ci.yml")
	// Check instructions still reach the prompt as guidance.
	assert.Contains(t, client.lastReq.Messages[1].Content, "make sure tests still pass")
}

func TestDirReader(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pkg"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "HEAD"), []byte("ref"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pkg", "a.go"), []byte("package pkg"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# readme"), 0644))

	reader := NewDirReader(dir)

	files, err := reader.ListFiles(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"pkg/a.go", "README.md"}, files)

	contents, err := reader.ReadFile(context.Background(), "pkg/a.go")
	require.NoError(t, err)
	assert.Equal(t, "package pkg", contents)

	_, err = reader.ReadFile(context.Background(), "missing.go")
	assert.Error(t, err)
}
