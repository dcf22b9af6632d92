// Package audit records who changed what on a claim.
package audit

import (
	"context"
	"log/slog"
	"time"

	"claims_backend/platform/logger"

	"github.com/google/uuid"
)

// Entry is one audited state change.
type Entry struct {
	ActorID      uuid.UUID
	Action       string
	ResourceType string
	ResourceID   uuid.UUID
	Details      map[string]any
	Before       any
	After        any
	At           time.Time
}

// Sink receives audit entries. Record must not fail the caller's operation,
// so implementations report their own errors.
type Sink interface {
	Record(ctx context.Context, entry Entry)
}

// LogSink writes entries as structured log lines for an external collector.
type LogSink struct {
	log *logger.Logger
}

// NewLogSink creates a log-backed sink.
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Record(ctx context.Context, e Entry) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	attrs := []any{
		slog.String("actor_id", e.ActorID.String()),
		slog.String("action", e.Action),
		slog.String("resource_type", e.ResourceType),
		slog.String("resource_id", e.ResourceID.String()),
		slog.Time("at", e.At),
	}
	if len(e.Details) > 0 {
		attrs = append(attrs, slog.Any("details", e.Details))
	}
	if e.Before != nil {
		attrs = append(attrs, slog.Any("before", e.Before))
	}
	if e.After != nil {
		attrs = append(attrs, slog.Any("after", e.After))
	}
	s.log.WithContext(ctx).Info("audit", attrs...)
}

var _ Sink = (*LogSink)(nil)
