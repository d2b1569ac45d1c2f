package model

import "fmt"

// Standard error codes.
const (
	ErrValidation        = "VALIDATION_ERROR"
	ErrIllegalTransition = "ILLEGAL_TRANSITION"
	ErrDuplicateCorrelID = "DUPLICATE_CORRELATION_ID"
	ErrNotFound          = "NOT_FOUND"
	ErrConflict          = "CONFLICT"
	ErrRetentionSweep    = "RETENTION_SWEEP_FAILED"
	ErrInternalError     = "INTERNAL_ERROR"
)

// ErrorEnvelope is the standard error value returned by the core. It
// implements the error interface.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewValidationError returns a VALIDATION_ERROR with field-level details.
func NewValidationError(details ...FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidation,
		Message: "One or more fields are invalid",
		Details: details,
	}
}

// NewIllegalTransitionError returns an ILLEGAL_TRANSITION error.
func NewIllegalTransitionError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrIllegalTransition, Message: msg}
}

// NewDuplicateCorrelationIDError returns a DUPLICATE_CORRELATION_ID error.
// Callers should treat this as "already accepted", not a hard failure.
func NewDuplicateCorrelationIDError(correlationID string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrDuplicateCorrelID,
		Message: fmt.Sprintf("an event with correlation id %q already exists", correlationID),
	}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error. Status-transition conflicts
// should be retried by the caller with freshly loaded state.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewRetentionSweepError returns a RETENTION_SWEEP_FAILED error wrapping the
// underlying cause. The reaper logs these and retries on the next cycle.
func NewRetentionSweepError(cause error) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrRetentionSweep,
		Message: fmt.Sprintf("retention sweep failed: %v", cause),
	}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}

// CodeOf returns the error code carried by err, or ErrInternalError when err
// is not an ErrorEnvelope.
func CodeOf(err error) string {
	if env, ok := err.(*ErrorEnvelope); ok {
		return env.Code
	}
	return ErrInternalError
}

// IsCode reports whether err is an ErrorEnvelope with the given code.
func IsCode(err error, code string) bool {
	env, ok := err.(*ErrorEnvelope)
	return ok && env.Code == code
}
