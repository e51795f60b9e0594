package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds returned by the core. Callers match them with errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrDuplicateKey        = errors.New("duplicate key")
	ErrValidation          = errors.New("validation failed")
	ErrBookUnavailable     = errors.New("book unavailable")
	ErrPatronIneligible    = errors.New("patron ineligible")
	ErrAlreadyReturned     = errors.New("already returned")
	ErrHasBorrowingHistory = errors.New("has borrowing history")
	ErrCopiesExceeded      = errors.New("available copies would exceed total copies")
	ErrTransient           = errors.New("transient storage failure")
)

// IsRetryable reports whether err may succeed when the caller repeats the operation.
// Only ErrTransient qualifies.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// FieldError describes a validation problem for a single field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates every field-level and reference-existence problem found
// in one request.
type ValidationError struct {
	Errors []FieldError

	// duplicate marks that at least one problem is a natural-key collision, so the
	// error also matches ErrDuplicateKey.
	duplicate bool
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation: %s: %s", e.Errors[0].Field, e.Errors[0].Message)
	}
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return fmt.Sprintf("validation: %d errors (%s)", len(e.Errors), strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() []error {
	if e.duplicate {
		return []error{ErrValidation, ErrDuplicateKey}
	}
	return []error{ErrValidation}
}

// Fields returns the problems grouped by field, in the shape of a validation problem body.
func (e *ValidationError) Fields() map[string][]string {
	out := make(map[string][]string, len(e.Errors))
	for _, fe := range e.Errors {
		out[fe.Field] = append(out[fe.Field], fe.Message)
	}
	return out
}

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Errors: []FieldError{{Field: field, Message: message}}}
}

// Problems collects field errors without failing on the first one.
type Problems struct {
	errs      []FieldError
	duplicate bool
}

// Add records a problem for field.
func (p *Problems) Add(field, format string, args ...any) {
	p.errs = append(p.errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// AddDuplicate records a natural-key collision for field.
func (p *Problems) AddDuplicate(field, format string, args ...any) {
	p.Add(field, format, args...)
	p.duplicate = true
}

// Empty reports whether no problem has been recorded.
func (p *Problems) Empty() bool { return len(p.errs) == 0 }

// Err returns nil when no problems were recorded, otherwise a *ValidationError.
func (p *Problems) Err() error {
	if len(p.errs) == 0 {
		return nil
	}
	return &ValidationError{Errors: append([]FieldError(nil), p.errs...), duplicate: p.duplicate}
}
