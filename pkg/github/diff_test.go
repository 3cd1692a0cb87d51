package github

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDiff = `diff --git a/pkg/server.go b/pkg/server.go
--- a/pkg/server.go
+++ b/pkg/server.go
@@ -10,3 +10,4 @@ func routes() {
 	mux.Handle("/", index)
+	mux.Handle("/healthz", health)
 	mux.Handle("/metrics", metrics)
 }
diff --git a/docs/health.md b/docs/health.md
new file mode 100644
--- /dev/null
+++ b/docs/health.md
@@ -0,0 +1,2 @@
+# Health endpoint
+Returns 200 when the server is up.
`

func TestParseBranchDiff(t *testing.T) {
	parsed, err := ParseBranchDiff(sampleDiff)
	require.NoError(t, err)
	require.Len(t, parsed.Files, 2)

	assert.Equal(t, []string{"pkg/server.go", "docs/health.md"}, parsed.Paths())

	server := parsed.Files[0]
	assert.Equal(t, 1, server.Added)
	assert.Equal(t, 0, server.Deleted)
	assert.False(t, server.Elided)
	assert.Contains(t, server.Patch, "/healthz")

	doc := parsed.Files[1]
	assert.Equal(t, 2, doc.Added)
}

func TestParseBranchDiffElidesOversizedFiles(t *testing.T) {
	var b strings.Builder
	b.WriteString("diff --git a/big.txt b/big.txt\n--- a/big.txt\n+++ b/big.txt\n@@ -0,0 +1,300 @@\n")
	for i := 0; i < 300; i++ {
		b.WriteString("+line\n")
	}

	parsed, err := ParseBranchDiff(b.String())
	require.NoError(t, err)
	require.Len(t, parsed.Files, 1)
	assert.True(t, parsed.Files[0].Elided)
	assert.Contains(t, parsed.Files[0].Patch, "diff elided")
	assert.Equal(t, 300, parsed.Files[0].Added)
}

func TestBranchDiffRender(t *testing.T) {
	parsed, err := ParseBranchDiff(sampleDiff)
	require.NoError(t, err)

	text := parsed.Render()
	assert.Contains(t, text, "--- pkg/server.go (+1/-0)")
	assert.Contains(t, text, "--- docs/health.md (+2/-0)")

	var empty *BranchDiff
	assert.Equal(t, "(no changes on branch)", empty.Render())
}

func TestTreeEntryDeletionMarshalsNullSHA(t *testing.T) {
	data, err := json.Marshal(treeEntry{Path: "old.txt", Mode: blobMode, Type: "blob", SHA: nil})
	require.NoError(t, err)
	assert.JSONEq(t, `{"path":"old.txt","mode":"100644","type":"blob","sha":null}`, string(data))

	sha := "abc123"
	data, err = json.Marshal(treeEntry{Path: "new.txt", Mode: blobMode, Type: "blob", SHA: &sha})
	require.NoError(t, err)
	assert.JSONEq(t, `{"path":"new.txt","mode":"100644","type":"blob","sha":"abc123"}`, string(data))
}
