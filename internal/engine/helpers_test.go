package engine

import (
	"context"
	"sync"
	"time"

	"github.com/dentaflow/verify-engine/internal/db"
)

// fakeClock is a manually advanced clock. Sleep advances it immediately and
// records the requested duration, so backoff schedules are observable
// without real waiting.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}

// scriptedChecker returns its scripted outcomes in order. Once the script
// runs out it keeps succeeding with a generic verified result.
type scriptedChecker struct {
	mu       sync.Mutex
	script   []error // nil entry = success
	attempts int
}

func (s *scriptedChecker) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *scriptedChecker) Check(_ context.Context, req *db.VerificationRequest) (*db.VerificationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.attempts < len(s.script) {
		err = s.script[s.attempts]
	}
	s.attempts++

	if err != nil {
		return nil, err
	}

	res := &db.VerificationResult{
		SubjectID:   req.SubjectID,
		Type:        req.Type,
		Status:      db.StatusVerified,
		Score:       90,
		RiskLevel:   db.RiskLow,
		SubjectName: req.Payload.SubjectName,
	}
	if req.Type == db.TypeInsurance {
		res.Insurance = &db.InsuranceDetails{
			Provider:        req.Payload.Provider,
			PolicyNumber:    req.Payload.PolicyNumber,
			CoveragePercent: 80,
			PlanActive:      true,
		}
	}
	return res, nil
}

// verdictChecker reports only the verdict, leaving every request-derived
// field for the engine to fill in.
type verdictChecker struct{}

func (verdictChecker) Check(_ context.Context, _ *db.VerificationRequest) (*db.VerificationResult, error) {
	return &db.VerificationResult{
		Status:    db.StatusVerified,
		Score:     88,
		RiskLevel: db.RiskLow,
	}, nil
}

// recordingSink captures every audit event it sees, along with whether the
// context it arrived on was still live.
type recordingSink struct {
	mu      sync.Mutex
	events  []db.AuditEvent
	ctxErrs []error
}

func (r *recordingSink) Record(ctx context.Context, event db.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
}

// ContextErr returns the context error seen with the first event of the
// given name.
func (r *recordingSink) ContextErr(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, event := range r.events {
		if event.Event == name {
			return r.ctxErrs[i]
		}
	}
	return nil
}

func (r *recordingSink) ByEvent(name string) []db.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []db.AuditEvent
	for _, event := range r.events {
		if event.Event == name {
			out = append(out, event)
		}
	}
	return out
}

func insurancePayload() db.Payload {
	return db.Payload{
		Provider:     "Acme Dental",
		PolicyNumber: "AC123456",
		SubjectName:  "Jane Doe",
	}
}
