package orch

import (
	"fmt"
	"strings"

	"autopatch/pkg/change"
)

// Progress is the mutable per-run context rendered into the status comment.
// It is owned by the ticket handler and updated between rounds; Render is
// the single place its state becomes text.
type Progress struct {
	Title        string
	Batch        change.Batch
	Branch       string
	PRNumber     int
	Round        int
	Outcome      Outcome
	RemovedPaths []string
}

// Render produces the markdown checklist for the status comment.
func (p *Progress) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "### %s\n\n", p.Title)

	for _, req := range p.Batch {
		fmt.Fprintf(&b, "- %s `%s` (%s)\n", checkbox(req.Status), req.Filename, req.Type)
	}

	if p.Round > 0 {
		fmt.Fprintf(&b, "\nRepair rounds: %d\n", p.Round)
	}
	if len(p.RemovedPaths) > 0 {
		fmt.Fprintf(&b, "\nRemoved unexpected changes: %s\n", strings.Join(p.RemovedPaths, ", "))
	}

	switch p.Outcome {
	case OutcomeSuccess:
		b.WriteString("\nAll checks passed.\n")
	case OutcomeFailed:
		b.WriteString("\nChecks are failing and no further fix could be produced.\n")
	case OutcomeExhausted:
		b.WriteString("\nRepair budget exhausted; the last commit is left in place.\n")
	case OutcomeInconclusive:
		b.WriteString("\nChecks did not conclude within the polling budget.\n")
	}

	return b.String()
}

func checkbox(status change.Status) string {
	switch status {
	case change.StatusSucceeded:
		return "[x]"
	case change.StatusFailed:
		return "[ ] ❌"
	case change.StatusRunning:
		return "[ ] ⏳"
	default:
		return "[ ]"
	}
}
