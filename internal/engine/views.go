package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dentaflow/verify-engine/internal/db"
)

// ListQueue returns the live requests ordered by priority (high before
// normal before low) and by creation time within a priority.
func (e *Engine) ListQueue(ctx context.Context) ([]db.VerificationRequest, error) {
	e.mu.Lock()
	requests, err := e.store.ListRequests(ctx)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}

	sort.SliceStable(requests, func(i, j int) bool {
		ri, rj := db.PriorityRank(requests[i].Priority), db.PriorityRank(requests[j].Priority)
		if ri != rj {
			return ri < rj
		}
		return requests[i].CreatedAt.Before(requests[j].CreatedAt)
	})

	return requests, nil
}

// ListHistory returns up to limit results, most recently verified first.
// A non-positive limit returns everything.
func (e *Engine) ListHistory(ctx context.Context, limit int) ([]db.VerificationResult, error) {
	e.mu.Lock()
	results, err := e.store.ListResults(ctx)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].VerifiedAt.After(results[j].VerifiedAt)
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// SearchFilters narrow a search. Zero values mean "no constraint"; set
// filters compose with the term and each other (AND semantics).
type SearchFilters struct {
	Type      db.VerificationType
	Status    string
	Priority  string
	RiskLevel string
	From      time.Time
	To        time.Time
}

// SearchHit is one match from either store.
type SearchHit struct {
	Source  string                  `json:"source"` // "queue" or "history"
	Request *db.VerificationRequest `json:"request,omitempty"`
	Result  *db.VerificationResult  `json:"result,omitempty"`
}

// Search matches term case-insensitively against subject id, subject name,
// type, provider, and verification id across both the queue and history,
// then applies the filters.
func (e *Engine) Search(ctx context.Context, term string, filters SearchFilters) ([]SearchHit, error) {
	term = strings.ToLower(strings.TrimSpace(term))

	// One critical section for both reads, so a queue-to-history move in
	// flight is seen on exactly one side.
	e.mu.Lock()
	requests, err := e.store.ListRequests(ctx)
	if err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("failed to search queue: %w", err)
	}
	results, err := e.store.ListResults(ctx)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to search history: %w", err)
	}

	hits := []SearchHit{}

	for i := range requests {
		req := requests[i]
		if !matchesTerm(term, req.SubjectID, req.Payload.SubjectName, string(req.Type), req.Payload.Provider, req.ID) {
			continue
		}
		if filters.Type != "" && req.Type != filters.Type {
			continue
		}
		if filters.Status != "" && req.Status != filters.Status {
			continue
		}
		if filters.Priority != "" && req.Priority != filters.Priority {
			continue
		}
		if filters.RiskLevel != "" {
			// Queue entries carry no risk level yet.
			continue
		}
		if !inRange(req.CreatedAt, filters.From, filters.To) {
			continue
		}
		hits = append(hits, SearchHit{Source: "queue", Request: &req})
	}

	for i := range results {
		res := results[i]
		if !matchesTerm(term, res.SubjectID, res.SubjectName, string(res.Type), res.Provider, res.ID) {
			continue
		}
		if filters.Type != "" && res.Type != filters.Type {
			continue
		}
		if filters.Status != "" && res.Status != filters.Status {
			continue
		}
		if filters.Priority != "" {
			// History entries carry no priority.
			continue
		}
		if filters.RiskLevel != "" && res.RiskLevel != filters.RiskLevel {
			continue
		}
		if !inRange(res.VerifiedAt, filters.From, filters.To) {
			continue
		}
		hits = append(hits, SearchHit{Source: "history", Result: &res})
	}

	return hits, nil
}

func matchesTerm(term string, fields ...string) bool {
	if term == "" {
		return true
	}
	for _, field := range fields {
		if field != "" && strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && t.After(to) {
		return false
	}
	return true
}

// Stats aggregates queue and history counts for the dashboard.
func (e *Engine) Stats(ctx context.Context) (*db.Stats, error) {
	e.mu.Lock()
	requests, err := e.store.ListRequests(ctx)
	if err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("failed to read queue for stats: %w", err)
	}
	results, err := e.store.ListResults(ctx)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to read history for stats: %w", err)
	}

	stats := &db.Stats{
		QueueTotal:   len(requests),
		HistoryTotal: len(results),
		ByStatus:     map[string]int{},
		ByType:       map[string]int{},
		ByRiskLevel:  map[string]int{},
	}

	for _, req := range requests {
		stats.ByStatus[req.Status]++
		stats.ByType[string(req.Type)]++
	}
	for _, res := range results {
		stats.ByStatus[res.Status]++
		stats.ByType[string(res.Type)]++
		if res.RiskLevel != "" {
			stats.ByRiskLevel[res.RiskLevel]++
		}
	}

	return stats, nil
}
