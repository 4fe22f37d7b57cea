package shared

import "errors"

// DomainError represents a domain-level error. All business failures are
// reported as DomainError values; callers branch on Code, never on message
// text.
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target is a DomainError with the same code, so
// errors.Is matches sentinel errors against copies carrying a custom
// message.
func (e *DomainError) Is(target error) bool {
	var de *DomainError
	if !errors.As(target, &de) {
		return false
	}
	return e.Code == de.Code
}

// WithMessage returns a copy of the error with a more specific message
func (e *DomainError) WithMessage(message string) *DomainError {
	return &DomainError{Code: e.Code, Message: message}
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrInvalidArgument      = NewDomainError("INVALID_ARGUMENT", "Invalid argument provided")
	ErrNotFound             = NewDomainError("RECORD_NOT_FOUND", "Record not found")
	ErrAlreadyExists        = NewDomainError("ALREADY_EXISTS", "Record already exists")
	ErrInvalidState         = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
	ErrInsufficientStock    = NewDomainError("INSUFFICIENT_STOCK", "Insufficient stock available")
	ErrLockTimeout          = NewDomainError("LOCK_TIMEOUT", "Could not acquire lock within the wait window")
	ErrConcurrencyConflict  = NewDomainError("CONCURRENCY_CONFLICT", "Record was modified by another process")
	ErrConcurrencyExhausted = NewDomainError("CONCURRENCY_EXHAUSTED", "Retries exhausted due to concurrent modifications")
	ErrPersistence          = NewDomainError("PERSISTENCE_ERROR", "Storage operation failed")
)
