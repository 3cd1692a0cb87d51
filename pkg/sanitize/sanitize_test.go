package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autopatch/pkg/change"
	"autopatch/pkg/config"
)

func defaultPolicy() *config.RepoPolicy {
	policy := config.DefaultRepoPolicy()
	return &policy
}

func TestSanitizeDropsUnrequestedPaths(t *testing.T) {
	batch := change.Batch{change.NewRequest("a.py", "edit", change.TypeModify)}
	snapshot := change.Snapshot{
		"a.py":            {Contents: "v2", OriginalContents: "v1"},
		"unexpected.file": {Contents: "junk"},
	}

	result := Sanitize(snapshot, batch, defaultPolicy())

	require.Len(t, result.Snapshot, 1)
	assert.Contains(t, result.Snapshot, "a.py")
	assert.Equal(t, []string{"unexpected.file"}, result.Removed)
}

func TestSanitizeKeepsAllowedByproducts(t *testing.T) {
	batch := change.Batch{change.NewRequest("go.mod", "bump dep", change.TypeModify)}
	snapshot := change.Snapshot{
		"go.mod": {Contents: "module x"},
		"go.sum": {Contents: "checksums"},
	}

	result := Sanitize(snapshot, batch, defaultPolicy())

	assert.Len(t, result.Snapshot, 2)
	assert.Empty(t, result.Removed)
}

func TestSanitizeKeepsDeclaredRelevantFiles(t *testing.T) {
	batch := change.Batch{
		&change.Request{Filename: "a.go", Type: change.TypeModify, RelevantFiles: []string{"b.go"}},
	}
	snapshot := change.Snapshot{
		"a.go": {Contents: "x"},
		"b.go": {Contents: "y"},
	}

	result := Sanitize(snapshot, batch, defaultPolicy())
	assert.Len(t, result.Snapshot, 2)
	assert.Empty(t, result.Removed)
}

func TestSanitizeBlockedDirsWin(t *testing.T) {
	policy := defaultPolicy()
	policy.BlockedDirs = []string{"vendor/"}

	// Even a named path is dropped when it sits in a blocked directory.
	batch := change.Batch{change.NewRequest("vendor/lib.go", "edit", change.TypeModify)}
	snapshot := change.Snapshot{"vendor/lib.go": {Contents: "x"}}

	result := Sanitize(snapshot, batch, policy)
	assert.Empty(t, result.Snapshot)
	assert.Equal(t, []string{"vendor/lib.go"}, result.Removed)
}

func TestSanitizeIdempotent(t *testing.T) {
	batch := change.Batch{change.NewRequest("a.py", "edit", change.TypeModify)}
	snapshot := change.Snapshot{
		"a.py":            {Contents: "v2"},
		"unexpected.lock": {Contents: "junk"},
	}
	// Note: "unexpected.lock" matches the default "*.lock" allow pattern, so
	// use a policy without allow patterns to exercise the drop.
	policy := defaultPolicy()
	policy.AllowedPatterns = nil

	first := Sanitize(snapshot, batch, policy)
	assert.Equal(t, []string{"unexpected.lock"}, first.Removed)

	second := Sanitize(first.Snapshot, batch, policy)
	assert.Equal(t, first.Snapshot, second.Snapshot)
	assert.Empty(t, second.Removed)
}

func TestSanitizeNilPolicy(t *testing.T) {
	batch := change.Batch{change.NewRequest("a.py", "edit", change.TypeModify)}
	snapshot := change.Snapshot{
		"a.py":   {Contents: "v2"},
		"b.lock": {Contents: "junk"},
	}

	result := Sanitize(snapshot, batch, nil)
	assert.Len(t, result.Snapshot, 1)
	assert.Equal(t, []string{"b.lock"}, result.Removed)
}

func TestSanitizeEmptySnapshot(t *testing.T) {
	result := Sanitize(change.Snapshot{}, change.Batch{}, defaultPolicy())
	assert.Empty(t, result.Snapshot)
	assert.Empty(t, result.Removed)
}
