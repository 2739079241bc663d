package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned by single-record lookups that find nothing.
	ErrNotFound = errors.New("question not found")

	// ErrImportFormat is matched by every *ImportFormatError.
	ErrImportFormat = errors.New("invalid import format")

	// ErrNoQuestions is returned by review operations on an empty working list.
	ErrNoQuestions = errors.New("no questions available for review")

	// ErrNotEditing is returned when an edit is saved without one being started.
	ErrNotEditing = errors.New("no edit in progress")
)

// FieldError describes one schema violation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when a record fails the schema before a write.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return fmt.Sprintf("invalid question data: %s", strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ImportFormatError is returned when an import payload cannot be read or has
// an unrecognised top-level shape. Nothing is written when it occurs.
type ImportFormatError struct {
	Reason string
}

func (e *ImportFormatError) Error() string {
	return fmt.Sprintf("invalid file format: %s", e.Reason)
}

func (e *ImportFormatError) Is(target error) bool {
	return target == ErrImportFormat
}
