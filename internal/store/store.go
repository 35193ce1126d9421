package store

import (
	"context"
	"errors"

	"github.com/dentaflow/verify-engine/internal/db"
)

// ErrNotFound is returned when an id has no entry in the store.
var ErrNotFound = errors.New("not found")

// Store is the persistence boundary of the verification engine. The engine
// owns queue, history and their move semantics; implementations only need
// per-operation consistency — the engine serializes mutations, so a
// MoveToHistory is never observed half-done by engine readers.
//
// Interface-driven so the in-memory implementation backs tests and the
// JetStream KV implementation backs deployments without rewiring the engine.
type Store interface {
	// Queue of pending / in-progress requests.
	PutRequest(ctx context.Context, req *db.VerificationRequest) error
	GetRequest(ctx context.Context, id string) (*db.VerificationRequest, error)
	ListRequests(ctx context.Context) ([]db.VerificationRequest, error)
	DeleteRequest(ctx context.Context, id string) error

	// Append-only history of results.
	AppendResult(ctx context.Context, res *db.VerificationResult) error
	ListResults(ctx context.Context) ([]db.VerificationResult, error)

	// MoveToHistory appends the result and removes the originating request
	// from the queue. The result is written first so the id is never in
	// neither store.
	MoveToHistory(ctx context.Context, id string, res *db.VerificationResult) error
}
