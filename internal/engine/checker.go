package engine

import (
	"context"
	"time"

	"github.com/dentaflow/verify-engine/internal/db"
)

// Checker performs the actual verification against the backend. It is the
// engine's only suspension point besides backoff sleeps. Deployments swap
// in a real client for the insurance/identity/document backends; the
// simulated checker below stands in until then.
type Checker interface {
	Check(ctx context.Context, req *db.VerificationRequest) (*db.VerificationResult, error)
}

// SimulatedChecker fabricates verification outcomes: injected latency in
// place of a network round trip and an injected random source deciding
// failures and scores, so tests can pin the seed.
type SimulatedChecker struct {
	clock       Clock
	rand        Rand
	latency     time.Duration
	failureRate float64
}

func NewSimulatedChecker(clock Clock, rand Rand, latency time.Duration, failureRate float64) *SimulatedChecker {
	return &SimulatedChecker{
		clock:       clock,
		rand:        rand,
		latency:     latency,
		failureRate: failureRate,
	}
}

// transientCodes the simulator fails with, in roughly the proportions a
// flaky upstream shows them.
var transientCodes = []string{
	CodeNetworkTimeout,
	CodeNetworkTimeout,
	CodeServiceUnavailable,
	CodeRateLimitExceeded,
}

func (s *SimulatedChecker) Check(ctx context.Context, req *db.VerificationRequest) (*db.VerificationResult, error) {
	if err := s.clock.Sleep(ctx, s.latency); err != nil {
		return nil, err
	}

	if s.rand.Float64() < s.failureRate {
		code := transientCodes[s.rand.Intn(len(transientCodes))]
		return nil, NewError(code, "verification backend call failed")
	}

	switch req.Type {
	case db.TypeInsurance:
		return s.checkInsurance(req), nil
	case db.TypeIdentity:
		return s.checkIdentity(req), nil
	case db.TypeDocument:
		return s.checkDocument(req)
	default:
		return nil, NewError(CodeUnknown, "unsupported verification type")
	}
}

func (s *SimulatedChecker) checkInsurance(req *db.VerificationRequest) *db.VerificationResult {
	score := 70 + s.rand.Intn(31)
	return &db.VerificationResult{
		SubjectID:   req.SubjectID,
		Type:        req.Type,
		Status:      db.StatusVerified,
		Score:       score,
		RiskLevel:   riskFromScore(score),
		SubjectName: req.Payload.SubjectName,
		Insurance: &db.InsuranceDetails{
			Provider:        req.Payload.Provider,
			PolicyNumber:    req.Payload.PolicyNumber,
			CoveragePercent: 50 + s.rand.Intn(51),
			PlanActive:      true,
		},
	}
}

func (s *SimulatedChecker) checkIdentity(req *db.VerificationRequest) *db.VerificationResult {
	match := 60 + s.rand.Intn(41)
	return &db.VerificationResult{
		SubjectID:   req.SubjectID,
		Type:        req.Type,
		Status:      db.StatusVerified,
		Score:       match,
		RiskLevel:   riskFromScore(match),
		SubjectName: req.Payload.SubjectName,
		Identity: &db.IdentityDetails{
			DocumentType: req.Payload.DocumentType,
			MatchScore:   match,
		},
	}
}

func (s *SimulatedChecker) checkDocument(req *db.VerificationRequest) (*db.VerificationResult, error) {
	// A present but tiny content blob reads as a truncated upload.
	if content := req.Payload.Content; content != "" && len(content) < 16 {
		return nil, NewError(CodeDocumentProcessing, "document content is unreadable")
	}

	score := 65 + s.rand.Intn(36)
	return &db.VerificationResult{
		SubjectID:   req.SubjectID,
		Type:        req.Type,
		Status:      db.StatusVerified,
		Score:       score,
		RiskLevel:   riskFromScore(score),
		SubjectName: req.Payload.SubjectName,
		Document: &db.DocumentDetails{
			DocumentType: req.Payload.DocumentType,
			Authentic:    score >= 70,
			Legible:      true,
			Complete:     score >= 75,
		},
	}, nil
}

func riskFromScore(score int) string {
	switch {
	case score >= 85:
		return db.RiskLow
	case score >= 70:
		return db.RiskMedium
	default:
		return db.RiskHigh
	}
}
