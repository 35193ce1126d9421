// Package audit provides the append-only audit sink the verification engine
// records every action to. Sinks never fail the caller: the audit trail is
// best-effort durable, the verification itself must not break on a sink
// error.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/dentaflow/verify-engine/internal/db"
	enats "github.com/dentaflow/verify-engine/internal/nats"
)

// Sink accepts structured audit events.
type Sink interface {
	Record(ctx context.Context, event db.AuditEvent)
}

// LogSink writes audit events to the process logger. Used standalone in
// tests and alongside the stream sink in deployments.
type LogSink struct{}

func (LogSink) Record(_ context.Context, event db.AuditEvent) {
	attrs := []any{
		"event", event.Event,
		"verificationId", event.VerificationID,
	}
	for k, v := range event.Metadata {
		attrs = append(attrs, k, v)
	}

	switch event.Level {
	case db.LevelError:
		slog.Error("Audit event", attrs...)
	case db.LevelWarn:
		slog.Warn("Audit event", attrs...)
	default:
		slog.Info("Audit event", attrs...)
	}
}

// StreamSink publishes audit events to the VERIFY_AUDIT JetStream stream
// on verify.audit.<event> subjects.
type StreamSink struct {
	js jetstream.JetStream
}

func NewStreamSink(js jetstream.JetStream) *StreamSink {
	return &StreamSink{js: js}
}

func (s *StreamSink) Record(ctx context.Context, event db.AuditEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal audit event", "event", event.Event, "error", err)
		return
	}

	subject := enats.AuditSubjectPrefix + event.Event
	if _, err := s.js.Publish(ctx, subject, data); err != nil {
		slog.Error("Failed to publish audit event",
			"subject", subject,
			"event", event.Event,
			"error", err)
	}
}

// MultiSink fans one event out to several sinks.
type MultiSink []Sink

func (m MultiSink) Record(ctx context.Context, event db.AuditEvent) {
	for _, sink := range m {
		sink.Record(ctx, event)
	}
}
