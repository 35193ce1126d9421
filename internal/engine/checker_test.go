package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentaflow/verify-engine/internal/db"
)

func TestSimulatedChecker_AlwaysFailingRateReturnsTransientCodes(t *testing.T) {
	clock := newFakeClock()
	checker := NewSimulatedChecker(clock, SeededRand(1), 0, 1.0)

	req := &db.VerificationRequest{
		Type:      db.TypeInsurance,
		SubjectID: "P100",
		Payload:   insurancePayload(),
	}

	for i := 0; i < 10; i++ {
		_, err := checker.Check(context.Background(), req)
		require.Error(t, err)
		assert.True(t, Categorize(err).Retryable(), "simulated outages are transient codes")
	}
}

func TestSimulatedChecker_ZeroFailureRateVerifies(t *testing.T) {
	clock := newFakeClock()
	checker := NewSimulatedChecker(clock, SeededRand(1), 0, 0)

	tests := map[string]*db.VerificationRequest{
		"insurance": {
			Type:      db.TypeInsurance,
			SubjectID: "P100",
			Payload:   insurancePayload(),
		},
		"identity": {
			Type:      db.TypeIdentity,
			SubjectID: "P200",
			Payload:   db.Payload{DocumentType: "Passport"},
		},
		"document": {
			Type:      db.TypeDocument,
			SubjectID: "DOC-1",
			Payload:   db.Payload{DocumentType: "treatment_plan", Content: "scanned treatment plan, 3 pages"},
		},
	}

	for name, req := range tests {
		req := req
		t.Run(name, func(t *testing.T) {
			res, err := checker.Check(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, db.StatusVerified, res.Status)
			assert.GreaterOrEqual(t, res.Score, 0)
			assert.LessOrEqual(t, res.Score, 100)
			assert.NotEmpty(t, res.RiskLevel)
		})
	}
}

func TestSimulatedChecker_UnreadableDocument(t *testing.T) {
	clock := newFakeClock()
	checker := NewSimulatedChecker(clock, SeededRand(1), 0, 0)

	_, err := checker.Check(context.Background(), &db.VerificationRequest{
		Type:      db.TypeDocument,
		SubjectID: "DOC-1",
		Payload:   db.Payload{DocumentType: "medical_record", Content: "x"},
	})
	require.Error(t, err)

	engErr := Categorize(err)
	assert.Equal(t, CodeDocumentProcessing, engErr.Code)
	assert.False(t, engErr.Retryable())
}

func TestRiskFromScore(t *testing.T) {
	assert.Equal(t, db.RiskLow, riskFromScore(90))
	assert.Equal(t, db.RiskMedium, riskFromScore(75))
	assert.Equal(t, db.RiskHigh, riskFromScore(60))
}
