package db

import (
	"time"
)

// VerificationType identifies what kind of check a request asks for.
type VerificationType string

const (
	TypeInsurance VerificationType = "insurance"
	TypeIdentity  VerificationType = "patient_identity"
	TypeDocument  VerificationType = "document"
)

// Status values for a verification request.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusVerified   = "verified"
	StatusFailed     = "failed"
	StatusCompleted  = "completed"
)

// Priority values, ordered high > normal > low for queue listing.
const (
	PriorityHigh   = "high"
	PriorityNormal = "normal"
	PriorityLow    = "low"
)

// Risk levels attached to verification results.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// PriorityRank maps a priority to its sort rank (lower sorts first).
func PriorityRank(priority string) int {
	switch priority {
	case PriorityHigh:
		return 0
	case PriorityNormal:
		return 1
	case PriorityLow:
		return 2
	default:
		return 3
	}
}

// IsTerminalStatus reports whether a status ends the request lifecycle and
// moves the entry from the queue into history.
func IsTerminalStatus(status string) bool {
	return status == StatusVerified || status == StatusFailed || status == StatusCompleted
}

// Payload carries the type-specific fields of a verification request. Only
// the fields relevant to the request's type are set.
type Payload struct {
	// Insurance
	Provider     string `json:"provider,omitempty"`
	PolicyNumber string `json:"policy_number,omitempty"`

	// Identity and document
	DocumentType   string `json:"document_type,omitempty"`
	DocumentNumber string `json:"document_number,omitempty"`
	DateOfBirth    string `json:"date_of_birth,omitempty"`
	Content        string `json:"content,omitempty"`

	// Optional display name of the subject, used only for search.
	SubjectName string `json:"subject_name,omitempty"`
}

type VerificationRequest struct {
	ID          string           `json:"id"`
	Type        VerificationType `json:"type"`
	Status      string           `json:"status"` // "pending", "in_progress", "verified", "failed"
	Priority    string           `json:"priority"`
	SubjectID   string           `json:"subject_id"`
	Payload     Payload          `json:"payload"`
	RequestedBy string           `json:"requested_by,omitempty"`
	Notes       string           `json:"notes,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// VerificationResult is the immutable outcome of a completed check. Once
// appended to history it is never edited; re-verification produces a new
// entry.
type VerificationResult struct {
	ID         string           `json:"id"`
	SubjectID  string           `json:"subject_id"`
	Type       VerificationType `json:"type"`
	Status     string           `json:"status"`
	Score      int              `json:"verification_score"` // 0-100
	RiskLevel  string           `json:"risk_level"`
	FromCache  bool             `json:"from_cache,omitempty"`
	VerifiedAt time.Time        `json:"verified_at"`

	// Searchable copies of request fields. The engine stamps these when it
	// finalizes a result; checkers do not have to echo them back.
	SubjectName string `json:"subject_name,omitempty"`
	Provider    string `json:"provider,omitempty"`

	Insurance *InsuranceDetails `json:"insurance,omitempty"`
	Identity  *IdentityDetails  `json:"identity,omitempty"`
	Document  *DocumentDetails  `json:"document,omitempty"`
}

type InsuranceDetails struct {
	Provider        string `json:"provider"`
	PolicyNumber    string `json:"policy_number"`
	CoveragePercent int    `json:"coverage_percent"`
	PlanActive      bool   `json:"plan_active"`
}

type IdentityDetails struct {
	DocumentType string `json:"document_type"`
	MatchScore   int    `json:"match_score"`
}

type DocumentDetails struct {
	DocumentType string `json:"document_type"`
	Authentic    bool   `json:"authentic"`
	Legible      bool   `json:"legible"`
	Complete     bool   `json:"complete"`
}

// Audit event names emitted by the engine.
const (
	EventValidationFailed = "validation_failed"
	EventCacheHit         = "cache_hit"
	EventStarted          = "verification_started"
	EventRetry            = "verification_retry"
	EventCompleted        = "verification_completed"
	EventFailed           = "verification_failed"
	EventBatchStarted     = "batch_verification_started"
	EventBatchCompleted   = "batch_verification_completed"
	EventBatchFailed      = "batch_verification_failed"
	EventStatusChanged    = "status_changed"
	EventQueued           = "verification_queued"
)

// Audit levels.
const (
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// AuditEvent is one entry in the append-only audit log.
type AuditEvent struct {
	ID             string         `json:"id"`
	Timestamp      time.Time      `json:"timestamp"`
	Event          string         `json:"event"`
	VerificationID string         `json:"verification_id,omitempty"` // empty for pre-validation failures
	Level          string         `json:"level"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// BatchProgress is reported after each item of a batch, before the next
// item starts.
type BatchProgress struct {
	Current     int    `json:"current"`
	Total       int    `json:"total"`
	Percentage  int    `json:"percentage"`
	CurrentItem string `json:"current_item"`
}

// BatchItem records the outcome of a single id within a batch.
type BatchItem struct {
	ID      string              `json:"id"`
	Success bool                `json:"success"`
	Result  *VerificationResult `json:"result,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// BatchSummary aggregates item outcomes.
type BatchSummary struct {
	Total      int      `json:"total"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors,omitempty"`
}

// BatchResult is the outcome of a batch run. Success reflects whether the
// batch orchestration itself ran to completion; item failures only show up
// in the summary.
type BatchResult struct {
	BatchID string       `json:"batch_id"`
	Success bool         `json:"success"`
	Results []BatchItem  `json:"results"`
	Summary BatchSummary `json:"summary"`
}

// Stats is the aggregate view served by the web layer.
type Stats struct {
	QueueTotal   int            `json:"queue_total"`
	HistoryTotal int            `json:"history_total"`
	ByStatus     map[string]int `json:"by_status"`
	ByType       map[string]int `json:"by_type"`
	ByRiskLevel  map[string]int `json:"by_risk_level"`
}
