package types

import (
	"fmt"
)

// AuditErrorType classifies audit and access engine errors
type AuditErrorType string

const (
	ErrorTypeConfiguration    AuditErrorType = "configuration"
	ErrorTypeStoreUnavailable AuditErrorType = "store_unavailable"
	ErrorTypeChainCorruption  AuditErrorType = "chain_corruption"
	ErrorTypeSystemError      AuditErrorType = "system_error"
)

// Error codes for audit and access errors
const (
	ErrorCodeConfiguration    = "AUD-001"
	ErrorCodeStoreUnavailable = "AUD-002"
	ErrorCodeChainCorruption  = "AUD-003"
	ErrorCodeSystemError      = "AUD-004"
)

// AuditError represents an audit infrastructure error with context.
// Business outcomes (denied access, failed verification) are never
// represented as AuditError; only true infrastructure failures are.
type AuditError struct {
	Type    AuditErrorType `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Cause   error          `json:"cause,omitempty"`
}

// Error implements the error interface
func (e *AuditError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (caused by: %v)", e.Code, e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Type, e.Message)
}

// Unwrap returns the underlying cause of the error
func (e *AuditError) Unwrap() error {
	return e.Cause
}

// NewAuditError creates a new audit error
func NewAuditError(errorType AuditErrorType, code, message string) *AuditError {
	return &AuditError{
		Type:    errorType,
		Code:    code,
		Message: message,
	}
}

// NewAuditErrorWithCause creates a new audit error with an underlying cause
func NewAuditErrorWithCause(errorType AuditErrorType, code, message string, cause error) *AuditError {
	return &AuditError{
		Type:    errorType,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Predefined audit errors
var (
	ErrStoreUnavailable = NewAuditError(
		ErrorTypeStoreUnavailable,
		ErrorCodeStoreUnavailable,
		"Audit log store is unreachable",
	)

	// ErrChainStateCorrupt signals that the cached chain state no longer
	// matches the persisted chain. It must never be swallowed: continuing
	// to append would silently break chain continuity.
	ErrChainStateCorrupt = NewAuditError(
		ErrorTypeChainCorruption,
		ErrorCodeChainCorruption,
		"Cached chain state is inconsistent with the audit log store",
	)
)

// IsAuditError checks if an error is an audit infrastructure error
func IsAuditError(err error) bool {
	_, ok := err.(*AuditError)
	return ok
}
