package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes crossing the engine boundary. Raw internal errors never do.
const (
	CodeNetworkTimeout     = "NETWORK_TIMEOUT"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeDocumentProcessing = "DOCUMENT_PROCESSING_ERROR"
	CodeValidation         = "VALIDATION_ERROR"
	CodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	CodeNotFound           = "NOT_FOUND"
	CodeUnknown            = "UNKNOWN_ERROR"
)

// retryableCodes marks which codes a refined design would retry. The retry
// helper deliberately does not consult this; see retry.go.
var retryableCodes = map[string]bool{
	CodeNetworkTimeout:     true,
	CodeServiceUnavailable: true,
	CodeRateLimitExceeded:  true,
}

// Error is a categorized engine error: a stable code, a human-readable
// message, and for validation failures the full list of violated rules.
type Error struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(e.Details, "; "))
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Retryable reports whether the code names a transient condition.
func (e *Error) Retryable() bool {
	return retryableCodes[e.Code]
}

// NewError creates a categorized error with the given code.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewValidationError carries every violated rule, not just the first.
func NewValidationError(violations []string) *Error {
	return &Error{
		Code:    CodeValidation,
		Message: "verification request failed validation",
		Details: violations,
	}
}

// NewNotFoundError reports an unknown verification id.
func NewNotFoundError(id string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("verification %s not found", id),
	}
}

// Categorize maps any error to an *Error. Errors produced inside the engine
// pass through; anything else becomes UNKNOWN_ERROR so internals never leak
// to callers.
func Categorize(err error) *Error {
	var engErr *Error
	if errors.As(err, &engErr) {
		return engErr
	}
	return &Error{
		Code:    CodeUnknown,
		Message: "verification failed for an unknown reason",
	}
}
