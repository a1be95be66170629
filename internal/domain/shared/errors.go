package shared

import (
	"errors"
	"fmt"
)

// Error codes for the receivables domain. Every precondition violation in the
// ledger surfaces as exactly one of these kinds.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeOverpayment         = "OVERPAYMENT_ERROR"
	CodeInvalidState        = "INVALID_STATE"
	CodeDuplicate           = "DUPLICATE_ERROR"
	CodeNotFound            = "NOT_FOUND"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
)

// DomainError represents a domain-level error: a kind, the identifier of the
// offending record (when known) and a human-readable detail.
type DomainError struct {
	Code     string `json:"code"`
	EntityID string `json:"entity_id,omitempty"`
	Message  string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.EntityID != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Code, e.EntityID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target is a DomainError with the same code, so callers
// can match against the sentinel errors below with errors.Is.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// NewValidationError reports malformed input: negative amounts, mismatched
// net+vat+gross, credit exceeding the creditable balance.
func NewValidationError(entityID, message string) *DomainError {
	return &DomainError{Code: CodeValidation, EntityID: entityID, Message: message}
}

// NewOverpaymentError reports an allocation exceeding the open balance.
func NewOverpaymentError(entityID, message string) *DomainError {
	return &DomainError{Code: CodeOverpayment, EntityID: entityID, Message: message}
}

// NewInvalidStateError reports an operation on a cancelled or otherwise
// terminal record.
func NewInvalidStateError(entityID, message string) *DomainError {
	return &DomainError{Code: CodeInvalidState, EntityID: entityID, Message: message}
}

// NewDuplicateError reports a same-day duplicate, e.g. a second dunning
// escalation for the same invoice on one date.
func NewDuplicateError(entityID, message string) *DomainError {
	return &DomainError{Code: CodeDuplicate, EntityID: entityID, Message: message}
}

// NewNotFoundError reports an unknown identifier.
func NewNotFoundError(entityID, message string) *DomainError {
	return &DomainError{Code: CodeNotFound, EntityID: entityID, Message: message}
}

// NewConcurrencyError reports a lost optimistic-lock race.
func NewConcurrencyError(entityID, message string) *DomainError {
	return &DomainError{Code: CodeConcurrencyConflict, EntityID: entityID, Message: message}
}

// Common domain errors, usable as errors.Is targets.
var (
	ErrNotFound            = NewDomainError(CodeNotFound, "Resource not found")
	ErrValidation          = NewDomainError(CodeValidation, "Invalid input provided")
	ErrOverpayment         = NewDomainError(CodeOverpayment, "Amount exceeds open balance")
	ErrInvalidState        = NewDomainError(CodeInvalidState, "Operation not allowed in current state")
	ErrDuplicate           = NewDomainError(CodeDuplicate, "Resource already exists")
	ErrConcurrencyConflict = NewDomainError(CodeConcurrencyConflict, "Resource was modified by another process")
)

// IsValidationError reports whether err is a validation error
func IsValidationError(err error) bool { return errors.Is(err, ErrValidation) }

// IsOverpaymentError reports whether err is an overpayment error
func IsOverpaymentError(err error) bool { return errors.Is(err, ErrOverpayment) }

// IsInvalidStateError reports whether err is an invalid state error
func IsInvalidStateError(err error) bool { return errors.Is(err, ErrInvalidState) }

// IsDuplicateError reports whether err is a duplicate error
func IsDuplicateError(err error) bool { return errors.Is(err, ErrDuplicate) }

// IsNotFoundError reports whether err is a not found error
func IsNotFoundError(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConcurrencyError reports whether err is an optimistic lock conflict
func IsConcurrencyError(err error) bool { return errors.Is(err, ErrConcurrencyConflict) }
