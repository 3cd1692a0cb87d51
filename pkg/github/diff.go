package github

import (
	"context"
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// maxDiffLinesPerFile bounds how much of one file's diff is rendered for a
// repair prompt. Generated or vendored files can carry enormous hunks that
// would crowd out the failure logs.
const maxDiffLinesPerFile = 200

// BranchDiff is the parsed diff between the working branch and its base.
type BranchDiff struct {
	Files []FileDiffSummary
}

// FileDiffSummary is one file's slice of a branch diff.
//
//nolint:govet // Logical grouping preferred over memory optimization
type FileDiffSummary struct {
	Path    string
	Added   int
	Deleted int
	Patch   string // unified hunks, elided when oversized
	Elided  bool
}

// GetBranchDiff fetches and parses the diff of a pull request.
func (c *Client) GetBranchDiff(ctx context.Context, prNumber int) (*BranchDiff, error) {
	output, err := c.WithTimeout(committerTimeout).run(ctx, nil,
		"pr", "diff", fmt.Sprintf("%d", prNumber),
		"--repo", c.RepoPath(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch diff for PR #%d: %w", prNumber, err)
	}
	return ParseBranchDiff(string(output))
}

// ParseBranchDiff parses unified diff text into per-file summaries.
func ParseBranchDiff(raw string) (*BranchDiff, error) {
	fileDiffs, err := diff.NewMultiFileDiffReader(strings.NewReader(raw)).ReadAllFiles()
	if err != nil {
		return nil, fmt.Errorf("failed to parse diff: %w", err)
	}

	out := &BranchDiff{}
	for _, fd := range fileDiffs {
		summary := FileDiffSummary{Path: diffPath(fd)}

		var patch strings.Builder
		lines := 0
		for _, hunk := range fd.Hunks {
			body := string(hunk.Body)
			for _, line := range strings.Split(body, "\n") {
				switch {
				case strings.HasPrefix(line, "+"):
					summary.Added++
				case strings.HasPrefix(line, "-"):
					summary.Deleted++
				}
			}
			lines += strings.Count(body, "\n") + 1
			fmt.Fprintf(&patch, "@@ -%d,%d +%d,%d @@\n%s", hunk.OrigStartLine, hunk.OrigLines, hunk.NewStartLine, hunk.NewLines, body)
		}

		if lines > maxDiffLinesPerFile {
			summary.Elided = true
			summary.Patch = fmt.Sprintf("(diff elided: %d lines changed)", summary.Added+summary.Deleted)
		} else {
			summary.Patch = patch.String()
		}
		out.Files = append(out.Files, summary)
	}
	return out, nil
}

// Render produces the diff text fed into repair prompts.
func (d *BranchDiff) Render() string {
	if d == nil || len(d.Files) == 0 {
		return "(no changes on branch)"
	}

	var b strings.Builder
	for i := range d.Files {
		f := &d.Files[i]
		fmt.Fprintf(&b, "--- %s (+%d/-%d)\n%s\n", f.Path, f.Added, f.Deleted, f.Patch)
	}
	return b.String()
}

// Paths returns the changed file paths in diff order.
func (d *BranchDiff) Paths() []string {
	paths := make([]string, 0, len(d.Files))
	for i := range d.Files {
		paths = append(paths, d.Files[i].Path)
	}
	return paths
}

// diffPath picks the repository-relative path of a file diff, preferring
// the new name and stripping the a/ b/ prefixes git adds.
func diffPath(fd *diff.FileDiff) string {
	name := fd.NewName
	if name == "" || name == "/dev/null" {
		name = fd.OrigName
	}
	name = strings.TrimPrefix(name, "a/")
	name = strings.TrimPrefix(name, "b/")
	return name
}
