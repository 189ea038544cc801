package errors

import (
	"fmt"
	"strings"
	"time"
)

var (
	ErrValidation         = fmt.Errorf("validation failed")
	ErrDuplicateEvent     = fmt.Errorf("an event with the same name and date already exists")
	ErrNotFound           = fmt.Errorf("not found")
	ErrAlreadyExists      = fmt.Errorf("already exists")
	ErrStorageRead        = fmt.Errorf("storage read failed")
	ErrStorageWrite       = fmt.Errorf("storage write failed")
	ErrConflictUnresolved = fmt.Errorf("conflict unresolved")
	ErrWorkerPanic        = fmt.Errorf("worker panic")
	ErrInvalidToken       = fmt.Errorf("invalid session token")
	ErrNoRemote           = fmt.Errorf("no sync remote configured")
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationError carries field-level detail so a caller can render every problem at once.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func NewValidationError(fields ...FieldError) *ValidationError {
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Field returns the first error reported for the given field.
func (e *ValidationError) Field(name string) (FieldError, bool) {
	for _, f := range e.Fields {
		if f.Field == name {
			return f, true
		}
	}
	return FieldError{}, false
}

// ConflictError reports a record changed both locally and remotely
// that the configured policy did not resolve.
type ConflictError struct {
	Namespace       string
	ID              int64
	LocalVersion    int64
	RemoteVersion   int64
	LocalUpdatedAt  time.Time
	RemoteUpdatedAt time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: record %d in %s (local v%d, remote v%d)",
		ErrConflictUnresolved, e.ID, e.Namespace, e.LocalVersion, e.RemoteVersion)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflictUnresolved
}
