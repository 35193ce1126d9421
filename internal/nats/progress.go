package nats

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/dentaflow/verify-engine/internal/db"
)

// ProgressPublisher streams batch progress snapshots over core NATS on
// verify.batch.progress.<batchID>. Fire-and-forget: progress is advisory
// and must never slow the batch down.
type ProgressPublisher struct {
	nc *nats.Conn
}

func NewProgressPublisher(nc *nats.Conn) *ProgressPublisher {
	return &ProgressPublisher{nc: nc}
}

func (p *ProgressPublisher) Publish(_ context.Context, batchID string, progress db.BatchProgress) {
	data, err := json.Marshal(progress)
	if err != nil {
		slog.Error("Failed to marshal batch progress", "batchId", batchID, "error", err)
		return
	}

	subject := ProgressSubjectPrefix + batchID
	if err := p.nc.Publish(subject, data); err != nil {
		slog.Error("Failed to publish batch progress", "subject", subject, "error", err)
	}
}
