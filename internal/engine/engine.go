// Package engine implements the verification workflow engine: request
// validation, a TTL result cache, bounded retries with exponential backoff,
// queue and history views, and sequential batch execution with progress
// reporting. Every action is recorded to an append-only audit sink.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dentaflow/verify-engine/internal/audit"
	"github.com/dentaflow/verify-engine/internal/db"
	"github.com/dentaflow/verify-engine/internal/store"
)

// ProgressPublisher streams batch progress to external consumers. Optional;
// a nil publisher disables streaming without affecting the callback path.
type ProgressPublisher interface {
	Publish(ctx context.Context, batchID string, progress db.BatchProgress)
}

// Options tune the engine. Zero values fall back to production defaults.
type Options struct {
	Clock         Clock
	Policy        RetryPolicy
	InsuranceTTL  time.Duration
	IdentityTTL   time.Duration
	DocumentTTL   time.Duration
	SweepInterval time.Duration
	Progress      ProgressPublisher
}

// Engine is the single owner of the verification queue, history, and result
// cache. Callers submit requests and read copies of state; nothing outside
// the engine mutates stored entities.
type Engine struct {
	// mu serializes store access so a queue-to-history move is never
	// observed half-done. The engine sits behind concurrent HTTP handlers.
	// Never held across checker calls or backoff sleeps.
	mu sync.Mutex

	store    store.Store
	checker  Checker
	audit    audit.Sink
	cache    *resultCache
	clock    Clock
	policy   RetryPolicy
	ttls     map[db.VerificationType]time.Duration
	progress ProgressPublisher
}

func New(st store.Store, checker Checker, sink audit.Sink, opts Options) *Engine {
	clock := opts.Clock
	if clock == nil {
		clock = RealClock()
	}
	policy := opts.Policy
	if policy.MaxRetries <= 0 {
		policy = DefaultRetryPolicy()
	}
	sweep := opts.SweepInterval
	if sweep <= 0 {
		sweep = 30 * time.Minute
	}

	ttls := map[db.VerificationType]time.Duration{
		db.TypeInsurance: 24 * time.Hour,
		db.TypeIdentity:  12 * time.Hour,
		db.TypeDocument:  6 * time.Hour,
	}
	if opts.InsuranceTTL > 0 {
		ttls[db.TypeInsurance] = opts.InsuranceTTL
	}
	if opts.IdentityTTL > 0 {
		ttls[db.TypeIdentity] = opts.IdentityTTL
	}
	if opts.DocumentTTL > 0 {
		ttls[db.TypeDocument] = opts.DocumentTTL
	}

	return &Engine{
		store:    st,
		checker:  checker,
		audit:    sink,
		cache:    newResultCache(clock, sweep),
		clock:    clock,
		policy:   policy,
		ttls:     ttls,
		progress: opts.Progress,
	}
}

// SubmitVerification validates the request, consults the result cache, and
// on a miss runs the check through the retry policy. Successful results are
// cached, appended to history, and any matching live queue entry is
// retired. Failures come back as categorized errors, never raw internals.
func (e *Engine) SubmitVerification(ctx context.Context, typ db.VerificationType, subjectID string, payload db.Payload) (*db.VerificationResult, error) {
	if violations := validateRequest(typ, subjectID, payload); len(violations) > 0 {
		e.record(ctx, db.EventValidationFailed, "", db.LevelWarn, map[string]any{
			"type":       string(typ),
			"subjectId":  subjectID,
			"violations": violations,
		})
		return nil, NewValidationError(violations)
	}

	key := cacheKey(typ, subjectID, payload)
	if cached, ok := e.cache.Get(key); ok {
		e.record(ctx, db.EventCacheHit, cached.ID, db.LevelInfo, map[string]any{
			"type":      string(typ),
			"subjectId": subjectID,
		})
		hit := *cached
		hit.FromCache = true
		return &hit, nil
	}

	now := e.clock.Now()
	req := &db.VerificationRequest{
		ID:        e.newID(),
		Type:      typ,
		Status:    db.StatusInProgress,
		Priority:  db.PriorityNormal,
		SubjectID: subjectID,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}

	e.record(ctx, db.EventStarted, req.ID, db.LevelInfo, map[string]any{
		"type":      string(typ),
		"subjectId": subjectID,
	})

	return e.execute(ctx, req, false)
}

// execute runs the check with retries and finalizes the outcome. When
// fromQueue is set the request lives in the queue store and its terminal
// state moves it into history atomically; otherwise any queue entry for the
// same (type, subject) pair is retired on success.
func (e *Engine) execute(ctx context.Context, req *db.VerificationRequest, fromQueue bool) (*db.VerificationResult, error) {
	res, err := e.withRetry(ctx, req.ID, func(ctx context.Context) (*db.VerificationResult, error) {
		return e.checker.Check(ctx, req)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		engErr := Categorize(err)
		e.record(ctx, db.EventFailed, req.ID, db.LevelError, map[string]any{
			"type":      string(req.Type),
			"subjectId": req.SubjectID,
			"errorCode": engErr.Code,
			"retryable": engErr.Retryable(),
		})

		if fromQueue {
			if ferr := e.failQueued(ctx, req); ferr != nil {
				return nil, fmt.Errorf("failed to finalize %s: %w", req.ID, ferr)
			}
		}
		return nil, engErr
	}

	// The engine owns the result's identity and searchable fields; the
	// checker only owes the verdict.
	res.ID = req.ID
	res.SubjectID = req.SubjectID
	res.Type = req.Type
	res.SubjectName = req.Payload.SubjectName
	res.Provider = req.Payload.Provider
	res.VerifiedAt = e.clock.Now()

	e.cache.Set(cacheKey(req.Type, req.SubjectID, req.Payload), res, e.ttls[req.Type])

	e.mu.Lock()
	defer e.mu.Unlock()

	if fromQueue {
		if err := e.store.MoveToHistory(ctx, req.ID, res); err != nil {
			return nil, fmt.Errorf("failed to finalize %s: %w", req.ID, err)
		}
	} else {
		if err := e.store.AppendResult(ctx, res); err != nil {
			return nil, fmt.Errorf("failed to record result %s: %w", req.ID, err)
		}
		e.retireMatching(ctx, req.Type, req.SubjectID)
	}

	e.record(ctx, db.EventCompleted, req.ID, db.LevelInfo, map[string]any{
		"type":      string(req.Type),
		"subjectId": req.SubjectID,
		"score":     res.Score,
		"riskLevel": res.RiskLevel,
	})

	return res, nil
}

// failQueued moves a queued request that exhausted its retries into history
// as a failed result, keeping the queue/history exclusivity invariant. The
// error classification was already audited by the caller.
func (e *Engine) failQueued(ctx context.Context, req *db.VerificationRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := &db.VerificationResult{
		ID:          req.ID,
		SubjectID:   req.SubjectID,
		Type:        req.Type,
		Status:      db.StatusFailed,
		RiskLevel:   db.RiskHigh,
		SubjectName: req.Payload.SubjectName,
		Provider:    req.Payload.Provider,
		VerifiedAt:  e.clock.Now(),
	}

	return e.store.MoveToHistory(ctx, req.ID, res)
}

// retireMatching removes live queue entries satisfied by a direct
// submission for the same subject and type. Caller holds e.mu.
func (e *Engine) retireMatching(ctx context.Context, typ db.VerificationType, subjectID string) {
	requests, err := e.store.ListRequests(ctx)
	if err != nil {
		return
	}
	for _, req := range requests {
		if req.Type == typ && req.SubjectID == subjectID {
			_ = e.store.DeleteRequest(ctx, req.ID)
		}
	}
}

// AddToQueue validates and enqueues a request for later (typically batch)
// processing.
func (e *Engine) AddToQueue(ctx context.Context, typ db.VerificationType, subjectID string, payload db.Payload, priority, requestedBy, notes string) (*db.VerificationRequest, error) {
	if violations := validateRequest(typ, subjectID, payload); len(violations) > 0 {
		e.record(ctx, db.EventValidationFailed, "", db.LevelWarn, map[string]any{
			"type":       string(typ),
			"subjectId":  subjectID,
			"violations": violations,
		})
		return nil, NewValidationError(violations)
	}

	if priority != db.PriorityHigh && priority != db.PriorityLow {
		priority = db.PriorityNormal
	}

	now := e.clock.Now()
	req := &db.VerificationRequest{
		ID:          e.newID(),
		Type:        typ,
		Status:      db.StatusPending,
		Priority:    priority,
		SubjectID:   subjectID,
		Payload:     payload,
		RequestedBy: requestedBy,
		Notes:       notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	e.mu.Lock()
	err := e.store.PutRequest(ctx, req)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue request: %w", err)
	}

	e.record(ctx, db.EventQueued, req.ID, db.LevelInfo, map[string]any{
		"type":      string(typ),
		"subjectId": subjectID,
		"priority":  req.Priority,
	})

	return req, nil
}

// UpdateStatus is the only status mutator. Transitioning to a terminal
// status moves the entry from the queue into history in the same critical
// section, so no reader sees the id in neither or both stores.
func (e *Engine) UpdateStatus(ctx context.Context, id, status, notes string) (*db.VerificationRequest, error) {
	switch status {
	case db.StatusPending, db.StatusInProgress, db.StatusVerified, db.StatusFailed, db.StatusCompleted:
	default:
		return nil, NewValidationError([]string{fmt.Sprintf("unknown status %q", status)})
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	req, err := e.store.GetRequest(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NewNotFoundError(id)
		}
		return nil, fmt.Errorf("failed to read request %s: %w", id, err)
	}

	previous := req.Status
	req.Status = status
	req.UpdatedAt = e.clock.Now()
	if notes != "" {
		req.Notes = notes
	}

	if db.IsTerminalStatus(status) {
		res := &db.VerificationResult{
			ID:          req.ID,
			SubjectID:   req.SubjectID,
			Type:        req.Type,
			Status:      status,
			RiskLevel:   db.RiskLow,
			SubjectName: req.Payload.SubjectName,
			Provider:    req.Payload.Provider,
			VerifiedAt:  req.UpdatedAt,
		}
		if status == db.StatusFailed {
			res.RiskLevel = db.RiskHigh
		}
		if err := e.store.MoveToHistory(ctx, req.ID, res); err != nil {
			return nil, fmt.Errorf("failed to finalize %s: %w", req.ID, err)
		}
	} else {
		if err := e.store.PutRequest(ctx, req); err != nil {
			return nil, fmt.Errorf("failed to update request %s: %w", req.ID, err)
		}
	}

	e.record(ctx, db.EventStatusChanged, req.ID, db.LevelInfo, map[string]any{
		"from": previous,
		"to":   status,
	})

	return req, nil
}

// FlushCache drops every cached result. Exposed for admin use.
func (e *Engine) FlushCache() {
	e.cache.Flush()
}

func (e *Engine) newID() string {
	return fmt.Sprintf("VER-%d-%s", e.clock.Now().UnixMilli(), uuid.NewString()[:8])
}

func (e *Engine) record(ctx context.Context, event, verificationID, level string, metadata map[string]any) {
	e.audit.Record(ctx, db.AuditEvent{
		ID:             uuid.NewString(),
		Timestamp:      e.clock.Now(),
		Event:          event,
		VerificationID: verificationID,
		Level:          level,
		Metadata:       metadata,
	})
}
