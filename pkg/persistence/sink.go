package persistence

import (
	"autopatch/pkg/events"
	"autopatch/pkg/logx"
)

// Sink mirrors emitted events into the events table so run history can be
// reconstructed from the database alone. Storage failures are logged, never
// propagated; telemetry must not break a run.
type Sink struct {
	ops    *DatabaseOperations
	logger *logx.Logger
}

// NewSink creates a persistence-backed event sink.
func NewSink(ops *DatabaseOperations) *Sink {
	return &Sink{
		ops:    ops,
		logger: logx.NewLogger("persistence"),
	}
}

// Emit implements events.Sink.
func (s *Sink) Emit(event events.Event) {
	if err := s.ops.InsertEvent(event); err != nil {
		s.logger.Error("failed to store event %s: %v", event.Type, err)
	}
}
