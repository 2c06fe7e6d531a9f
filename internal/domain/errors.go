package domain

import "errors"

// Common domain errors
var (
	// Input errors
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("resource not found")

	// Training errors
	ErrAlreadyRunning = errors.New("training already running for prompt")
	ErrSynthesis      = errors.New("synthesis failed")
	ErrEvaluation     = errors.New("evaluation failed")
	ErrTimeout        = errors.New("collaborator call timed out")
	ErrTickInProgress = errors.New("monitor tick already in progress")

	// Version errors
	ErrNoRollbackTarget = errors.New("no rollback target")
	ErrInvalidState     = errors.New("invalid state transition")
)

// DomainError wraps a domain error with additional context
type DomainError struct {
	Err     error
	Message string
	Code    string
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func NewDomainError(err error, message string) *DomainError {
	return &DomainError{
		Err:     err,
		Message: message,
	}
}

func NewDomainErrorWithCode(err error, message, code string) *DomainError {
	return &DomainError{
		Err:     err,
		Message: message,
		Code:    code,
	}
}

// Validation is shorthand for a DomainError wrapping ErrValidation
func Validation(message string) *DomainError {
	return NewDomainErrorWithCode(ErrValidation, message, "validation_error")
}

// NotFound is shorthand for a DomainError wrapping ErrNotFound
func NotFound(message string) *DomainError {
	return NewDomainErrorWithCode(ErrNotFound, message, "not_found")
}
