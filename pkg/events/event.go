// Package events defines the telemetry events emitted by the orchestration
// loop and the sinks that record them.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Type names one observable moment of a ticket run.
type Type string

const (
	// TypeStarted fires when a ticket run begins.
	TypeStarted Type = "started"
	// TypeNoChanges fires when a synthesis round produces an empty snapshot.
	TypeNoChanges Type = "no_changes"
	// TypePollutionDetected fires when the sanitizer removes paths.
	TypePollutionDetected Type = "pollution_detected"
	// TypeRepairRound fires at the start of each CI repair round.
	TypeRepairRound Type = "repair_round"
	// TypeExhaustedRetries fires when the repair budget runs out.
	TypeExhaustedRetries Type = "exhausted_retries"
	// TypeSucceeded fires when a run ends with CI green.
	TypeSucceeded Type = "succeeded"
	// TypeFailed fires when a run ends in failure.
	TypeFailed Type = "failed"
)

// Event is one telemetry record. RunID ties all events of a ticket run
// together. Actor is who asked for the change, Round is 0 for the initial
// round and counts repair rounds from 1, and Removed lists the paths the
// sanitizer dropped.
//
//nolint:govet // Logical grouping preferred over memory optimization
type Event struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Type      Type      `json:"type"`
	Actor     string    `json:"actor,omitempty"`
	Repo      string    `json:"repo,omitempty"`
	Branch    string    `json:"branch,omitempty"`
	PRNumber  int       `json:"pr_number,omitempty"`
	Round     int       `json:"round,omitempty"`
	Files     int       `json:"files,omitempty"`
	Removed   []string  `json:"removed,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// New creates an event with a fresh ID and the current time.
func New(runID string, t Type) Event {
	return Event{
		ID:        uuid.NewString(),
		RunID:     runID,
		Type:      t,
		Timestamp: time.Now().UTC(),
	}
}

// NewRunID mints the tracking ID shared by all events of one ticket run.
func NewRunID() string {
	return uuid.NewString()
}

// Sink receives events. Implementations must be safe for concurrent use
// and must not block the orchestration loop on failure.
type Sink interface {
	Emit(event Event)
}

// MultiSink fans events out to several sinks.
type MultiSink []Sink

// Emit implements Sink.
func (m MultiSink) Emit(event Event) {
	for _, sink := range m {
		sink.Emit(event)
	}
}

// NopSink discards events.
type NopSink struct{}

// Emit implements Sink.
func (NopSink) Emit(Event) {}
