package store

import (
	"context"
	"sync"

	"github.com/dentaflow/verify-engine/internal/db"
)

// Memory is an in-memory Store. It is the default for tests and works as a
// single-process deployment store when durability is not required.
type Memory struct {
	mu       sync.RWMutex
	requests map[string]db.VerificationRequest
	results  []db.VerificationResult
}

func NewMemory() *Memory {
	return &Memory{
		requests: make(map[string]db.VerificationRequest),
	}
}

func (m *Memory) PutRequest(_ context.Context, req *db.VerificationRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[req.ID] = *req
	return nil
}

func (m *Memory) GetRequest(_ context.Context, id string) (*db.VerificationRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &req, nil
}

func (m *Memory) ListRequests(_ context.Context) ([]db.VerificationRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]db.VerificationRequest, 0, len(m.requests))
	for _, req := range m.requests {
		out = append(out, req)
	}
	return out, nil
}

func (m *Memory) DeleteRequest(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[id]; !ok {
		return ErrNotFound
	}
	delete(m.requests, id)
	return nil
}

func (m *Memory) AppendResult(_ context.Context, res *db.VerificationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, *res)
	return nil
}

func (m *Memory) ListResults(_ context.Context) ([]db.VerificationResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]db.VerificationResult, len(m.results))
	copy(out, m.results)
	return out, nil
}

func (m *Memory) MoveToHistory(_ context.Context, id string, res *db.VerificationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, *res)
	delete(m.requests, id)
	return nil
}
