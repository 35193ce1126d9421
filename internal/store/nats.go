package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/dentaflow/verify-engine/internal/db"
	enats "github.com/dentaflow/verify-engine/internal/nats"
)

// NATS is a Store backed by JetStream KV buckets: VERIFY_QUEUE holds live
// requests, VERIFY_HISTORY holds results, both keyed by verification id.
type NATS struct {
	queue   jetstream.KeyValue
	history jetstream.KeyValue
}

func NewNATS(ctx context.Context, js jetstream.JetStream) (*NATS, error) {
	queue, err := js.KeyValue(ctx, enats.QueueBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue bucket: %w", err)
	}
	history, err := js.KeyValue(ctx, enats.HistoryBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to open history bucket: %w", err)
	}
	return &NATS{queue: queue, history: history}, nil
}

func (n *NATS) PutRequest(ctx context.Context, req *db.VerificationRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request %s: %w", req.ID, err)
	}
	if _, err := n.queue.Put(ctx, req.ID, data); err != nil {
		return fmt.Errorf("failed to store request %s: %w", req.ID, err)
	}
	return nil
}

func (n *NATS) GetRequest(ctx context.Context, id string) (*db.VerificationRequest, error) {
	entry, err := n.queue.Get(ctx, id)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read request %s: %w", id, err)
	}

	var req db.VerificationRequest
	if err := json.Unmarshal(entry.Value(), &req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal request %s: %w", id, err)
	}
	return &req, nil
}

func (n *NATS) ListRequests(ctx context.Context) ([]db.VerificationRequest, error) {
	keys, err := n.queue.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list queue keys: %w", err)
	}

	requests := make([]db.VerificationRequest, 0, len(keys))
	for _, key := range keys {
		entry, err := n.queue.Get(ctx, key)
		if err != nil {
			continue
		}
		var req db.VerificationRequest
		if err := json.Unmarshal(entry.Value(), &req); err != nil {
			continue
		}
		requests = append(requests, req)
	}
	return requests, nil
}

func (n *NATS) DeleteRequest(ctx context.Context, id string) error {
	if _, err := n.queue.Get(ctx, id); err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read request %s: %w", id, err)
	}
	if err := n.queue.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete request %s: %w", id, err)
	}
	return nil
}

func (n *NATS) AppendResult(ctx context.Context, res *db.VerificationResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal result %s: %w", res.ID, err)
	}
	if _, err := n.history.Put(ctx, res.ID, data); err != nil {
		return fmt.Errorf("failed to store result %s: %w", res.ID, err)
	}
	return nil
}

func (n *NATS) ListResults(ctx context.Context) ([]db.VerificationResult, error) {
	keys, err := n.history.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list history keys: %w", err)
	}

	results := make([]db.VerificationResult, 0, len(keys))
	for _, key := range keys {
		entry, err := n.history.Get(ctx, key)
		if err != nil {
			continue
		}
		var res db.VerificationResult
		if err := json.Unmarshal(entry.Value(), &res); err != nil {
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

func (n *NATS) MoveToHistory(ctx context.Context, id string, res *db.VerificationResult) error {
	// History first so the id is never absent from both stores; the engine
	// serializes the move so readers never see it in both either.
	if err := n.AppendResult(ctx, res); err != nil {
		return err
	}
	if err := n.queue.Delete(ctx, id); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("failed to remove request %s from queue: %w", id, err)
	}
	return nil
}
