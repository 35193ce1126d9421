// Package consumers hosts the JetStream consumers of the verification
// service.
package consumers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/dentaflow/verify-engine/internal/db"
	enats "github.com/dentaflow/verify-engine/internal/nats"
)

// AuditMirror consumes the VERIFY_AUDIT stream and mirrors each event into
// the AUDIT_VIEW KV bucket, giving the web layer a cheap bounded read view
// while the stream itself stays the durable append-only record.
type AuditMirror struct {
	js jetstream.JetStream
}

func NewAuditMirror(js jetstream.JetStream) *AuditMirror {
	return &AuditMirror{js: js}
}

func (m *AuditMirror) Start(ctx context.Context) error {
	consumer, err := m.js.CreateOrUpdateConsumer(ctx, enats.AuditStream, jetstream.ConsumerConfig{
		Name:          "audit-mirror",
		Description:   "Mirrors audit events into the AUDIT_VIEW KV bucket",
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
		MaxAckPending: 100,
	})
	if err != nil {
		return fmt.Errorf("failed to create audit mirror consumer: %w", err)
	}

	view, err := m.js.KeyValue(ctx, enats.AuditViewBucket)
	if err != nil {
		return fmt.Errorf("failed to open audit view bucket: %w", err)
	}

	go func() {
		slog.Info("Audit mirror started", "stream", enats.AuditStream, "bucket", enats.AuditViewBucket)

		cons, err := consumer.Consume(func(msg jetstream.Msg) {
			m.processEvent(msg, view)
		})
		if err != nil {
			slog.Error("Audit mirror consumer error", "error", err)
			return
		}

		<-ctx.Done()
		cons.Stop()
	}()

	return nil
}

func (m *AuditMirror) processEvent(msg jetstream.Msg, view jetstream.KeyValue) {
	var event db.AuditEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		slog.Error("Failed to parse audit event", "error", err)
		// Unparseable events are dropped, not redelivered forever.
		msg.Ack()
		return
	}

	if _, err := view.Put(context.Background(), event.ID, msg.Data()); err != nil {
		slog.Error("Failed to mirror audit event",
			"eventId", event.ID,
			"event", event.Event,
			"error", err)
		msg.Nak()
		return
	}

	msg.Ack()
}
