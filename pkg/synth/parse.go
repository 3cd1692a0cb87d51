package synth

import (
	"strings"
)

// Model responses carry file contents and change plans in XML-ish blocks.
// Blocks are matched line-wise so that fences or tag-like text inside file
// contents cannot break parsing: an opening tag starts a block and the
// next closing tag alone on a line ends it.

const (
	fileOpenPrefix  = `<file path="`
	fileCloseTag    = `</file>`
	planOpenPrefix  = `<change file="`
	planCloseTag    = `</change>`
)

// ParseFileBlocks extracts path → contents pairs from a synthesis
// response. Later blocks for the same path win. Blocks without a path and
// unterminated blocks are dropped.
func ParseFileBlocks(response string) map[string]string {
	files := make(map[string]string)
	lines := strings.Split(response, "\n")

	for i := 0; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(trimmed, fileOpenPrefix) || !strings.HasSuffix(trimmed, ">") {
			continue
		}
		path := attribute(trimmed, "path")
		if path == "" {
			continue
		}

		var body []string
		closed := false
		for j := i + 1; j < len(lines); j++ {
			if strings.TrimSpace(lines[j]) == fileCloseTag {
				files[path] = strings.Join(body, "\n")
				i = j
				closed = true
				break
			}
			body = append(body, lines[j])
		}
		if !closed {
			break
		}
	}
	return files
}

// PlannedChange is one parsed entry of a change plan response.
type PlannedChange struct {
	File          string
	Type          string
	RelevantFiles []string
	Instructions  string
}

// ParsePlanBlocks extracts planned changes from a planning response.
func ParsePlanBlocks(response string) []PlannedChange {
	var plans []PlannedChange
	lines := strings.Split(response, "\n")

	for i := 0; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(trimmed, planOpenPrefix) || !strings.HasSuffix(trimmed, ">") {
			continue
		}
		plan := PlannedChange{
			File: attribute(trimmed, "file"),
			Type: attribute(trimmed, "type"),
		}
		if rel := attribute(trimmed, "relevant"); rel != "" {
			for _, p := range strings.Split(rel, ",") {
				if p = strings.TrimSpace(p); p != "" {
					plan.RelevantFiles = append(plan.RelevantFiles, p)
				}
			}
		}
		if plan.File == "" {
			continue
		}

		var body []string
		for j := i + 1; j < len(lines); j++ {
			if strings.TrimSpace(lines[j]) == planCloseTag {
				plan.Instructions = strings.TrimSpace(strings.Join(body, "\n"))
				plans = append(plans, plan)
				i = j
				break
			}
			body = append(body, lines[j])
		}
	}
	return plans
}

// attribute pulls a double-quoted attribute value out of an opening tag.
func attribute(tag, name string) string {
	marker := name + `="`
	start := strings.Index(tag, marker)
	if start == -1 {
		return ""
	}
	start += len(marker)
	end := strings.Index(tag[start:], `"`)
	if end == -1 {
		return ""
	}
	return tag[start : start+end]
}
