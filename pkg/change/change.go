// Package change defines the change-request entity, its lifecycle state
// machine, and the cumulative file snapshot carried across synthesis rounds.
package change

import (
	"fmt"
	"strings"
)

// Type classifies what a request does to its target file.
type Type string

const (
	TypeModify Type = "modify"
	TypeCreate Type = "create"
	TypeDelete Type = "delete"
	// TypeCheck carries verification guidance instead of an edit. Check
	// requests never produce file content and are excluded from commit
	// payloads, but they still participate in status reporting.
	TypeCheck Type = "check"
)

// Status is the lifecycle state of a request within a round.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// StatusTransitions is the canonical transition map for request statuses.
// Transitions are monotonic within a round: succeeded and failed are
// terminal, and there is no back-transition to pending.
var StatusTransitions = map[Status][]Status{
	StatusPending:   {StatusRunning, StatusSucceeded, StatusFailed},
	StatusRunning:   {StatusSucceeded, StatusFailed},
	StatusSucceeded: {},
	StatusFailed:    {},
}

// IsValidTransition reports whether from→to is allowed by the state machine.
func IsValidTransition(from, to Status) bool {
	for _, allowed := range StatusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidStatuses returns every status the state machine knows about.
func ValidStatuses() []Status {
	return []Status{StatusPending, StatusRunning, StatusSucceeded, StatusFailed}
}

// Request is one intended edit to one file, with lifecycle status.
type Request struct {
	// Filename is the repository-relative path the request targets.
	Filename string
	// Instructions describe the intended edit in natural language. The
	// orchestrator passes them through opaquely.
	Instructions string
	Type         Type
	// RelevantFiles are paths whose content may be needed as synthesis
	// context. The union across a batch forms the synthesizer's scope.
	RelevantFiles []string
	Status        Status
	// CommitRef is set once a commit incorporating this request's file
	// exists; empty until then.
	CommitRef string
}

// NewRequest creates a pending request.
func NewRequest(filename, instructions string, t Type) *Request {
	return &Request{
		Filename:     filename,
		Instructions: instructions,
		Type:         t,
		Status:       StatusPending,
	}
}

// Transition moves the request to a new status, enforcing the state machine.
func (r *Request) Transition(to Status) error {
	if !IsValidTransition(r.Status, to) {
		return fmt.Errorf("invalid status transition for %s: %s -> %s", r.Filename, r.Status, to)
	}
	r.Status = to
	return nil
}

// Terminal reports whether the request has reached a terminal status.
func (r *Request) Terminal() bool {
	return r.Status == StatusSucceeded || r.Status == StatusFailed
}

// String renders a short summary for logs.
func (r *Request) String() string {
	return fmt.Sprintf("%s %s [%s]", r.Type, r.Filename, r.Status)
}

// Batch is the set of requests processed together in one round.
type Batch []*Request

// RelevantPaths returns the union of every request's relevant files plus
// the target filenames themselves, deduplicated, order-preserving.
func (b Batch) RelevantPaths() []string {
	seen := make(map[string]bool)
	var paths []string
	add := func(p string) {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		paths = append(paths, p)
	}
	for _, req := range b {
		add(req.Filename)
		for _, p := range req.RelevantFiles {
			add(p)
		}
	}
	return paths
}

// Names reports whether any request in the batch targets or declares path
// as relevant. The sanitizer uses this as the keep test.
func (b Batch) Names(path string) bool {
	for _, req := range b {
		if req.Filename == path {
			return true
		}
		for _, p := range req.RelevantFiles {
			if p == path {
				return true
			}
		}
	}
	return false
}

// ByFilename returns the first request targeting path, or nil.
func (b Batch) ByFilename(path string) *Request {
	for _, req := range b {
		if req.Filename == path {
			return req
		}
	}
	return nil
}

// Editable returns the requests that produce file content (everything but
// check requests).
func (b Batch) Editable() Batch {
	out := make(Batch, 0, len(b))
	for _, req := range b {
		if req.Type != TypeCheck {
			out = append(out, req)
		}
	}
	return out
}
