package common

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the reading pipeline. Match them with errors.Is.
var (
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrNoStructuredResult = errors.New("no structured result")
	ErrParse              = errors.New("parse error")
	ErrMapping            = errors.New("mapping error")
)

// AppError carries one of the error kinds above together with a message and cause
type AppError struct {
	Kind    error
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the kind of this error
func (e *AppError) Is(target error) bool {
	return target == e.Kind
}

// NewAppError creates an AppError of the given kind
func NewAppError(kind error, message string, cause error) *AppError {
	return &AppError{
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

// BackendUnavailable wraps an I/O failure of the vision or storage backend
func BackendUnavailable(message string, cause error) error {
	return NewAppError(ErrBackendUnavailable, message, cause)
}

// NoStructuredResult reports a backend response without a usable JSON object
func NoStructuredResult(message string, cause error) error {
	return NewAppError(ErrNoStructuredResult, message, cause)
}
