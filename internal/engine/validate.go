package engine

import (
	"fmt"
	"strings"

	"github.com/dentaflow/verify-engine/internal/db"
)

// Accepted identity document types.
var identityDocumentTypes = map[string]bool{
	"Driver License": true,
	"Passport":       true,
	"State ID":       true,
	"Military ID":    true,
}

// Accepted clinical document types.
var clinicalDocumentTypes = map[string]bool{
	"medical_record": true,
	"insurance_card": true,
	"id_document":    true,
	"treatment_plan": true,
}

const minPolicyNumberLength = 6

// validateRequest checks the request synchronously and returns every
// violated rule, not just the first. An empty slice means valid.
func validateRequest(typ db.VerificationType, subjectID string, payload db.Payload) []string {
	var violations []string

	if strings.TrimSpace(subjectID) == "" {
		violations = append(violations, "subject id is required")
	}

	switch typ {
	case db.TypeInsurance:
		if strings.TrimSpace(payload.Provider) == "" {
			violations = append(violations, "insurance provider is required")
		}
		if len(payload.PolicyNumber) < minPolicyNumberLength {
			violations = append(violations,
				fmt.Sprintf("policy number must be at least %d characters", minPolicyNumberLength))
		}
	case db.TypeIdentity:
		if !identityDocumentTypes[payload.DocumentType] {
			violations = append(violations,
				fmt.Sprintf("document type %q is not accepted for identity verification", payload.DocumentType))
		}
	case db.TypeDocument:
		if !clinicalDocumentTypes[payload.DocumentType] {
			violations = append(violations,
				fmt.Sprintf("document type %q is not a known clinical document type", payload.DocumentType))
		}
	default:
		violations = append(violations, fmt.Sprintf("unknown verification type %q", typ))
	}

	return violations
}
