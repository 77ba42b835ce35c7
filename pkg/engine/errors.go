package engine

import (
	"errors"
	"fmt"

	"github.com/mangasync/mangasync/pkg/stores"
)

// ErrorClass represents the classification of an error for retry and propagation logic.
type ErrorClass string

const (
	// ErrorClassNotFound indicates the requested entity does not exist.
	// Delete treats it as success; get-or-create treats it as a miss.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassConflict indicates a duplicate-key race on create.
	// Retried once by get-or-create, then surfaced.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassTransport indicates a remote source failure.
	// Only ever surfaced on side-effect paths.
	ErrorClassTransport ErrorClass = "transport"

	// ErrorClassStorage indicates a generic persistence failure.
	ErrorClassStorage ErrorClass = "storage"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Entity identifies the record involved, e.g. "manga 7/m1" or "category 3".
	Entity string `json:"entity,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Entity != "" && e.Operation != "" {
		return fmt.Sprintf("[%s] %s (entity=%s, operation=%s): %s",
			e.Class, e.Message, e.Entity, e.Operation, e.unwrapMessage())
	}
	if e.Entity != "" {
		return fmt.Sprintf("[%s] %s (entity=%s): %s",
			e.Class, e.Message, e.Entity, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// unwrapMessage returns the error message from the underlying error chain.
func (e *EngineError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class
}

// NewNotFoundError creates a new not-found error.
func NewNotFoundError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassNotFound,
		Message: message,
		Err:     err,
	}
}

// NewConflictError creates a new conflict error.
func NewConflictError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassConflict,
		Message: message,
		Err:     err,
	}
}

// NewTransportError creates a new transport error.
func NewTransportError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassTransport,
		Message: message,
		Err:     err,
	}
}

// NewStorageError creates a new storage error.
func NewStorageError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassStorage,
		Message: message,
		Err:     err,
	}
}

// WithEntity adds entity context to an error.
func (e *EngineError) WithEntity(entity string) *EngineError {
	e.Entity = entity
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

func hasClass(err error, class ErrorClass) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}

// IsNotFound returns true if the error is classified as not found or wraps
// stores.ErrNotFound.
func IsNotFound(err error) bool {
	return hasClass(err, ErrorClassNotFound) || errors.Is(err, stores.ErrNotFound)
}

// IsConflict returns true if the error is classified as a conflict or wraps
// stores.ErrConflict.
func IsConflict(err error) bool {
	return hasClass(err, ErrorClassConflict) || errors.Is(err, stores.ErrConflict)
}

// IsTransport returns true if the error is classified as a transport failure.
func IsTransport(err error) bool {
	return hasClass(err, ErrorClassTransport)
}

// IsStorage returns true if the error is classified as a storage failure.
func IsStorage(err error) bool {
	return hasClass(err, ErrorClassStorage)
}

// Classify wraps a raw store error in the matching EngineError. Errors that
// are already classified, and nil, are returned unchanged.
func Classify(message string, err error) error {
	if err == nil {
		return nil
	}
	var e *EngineError
	if errors.As(err, &e) {
		return err
	}
	switch {
	case errors.Is(err, stores.ErrNotFound):
		return NewNotFoundError(message, err)
	case errors.Is(err, stores.ErrConflict):
		return NewConflictError(message, err)
	default:
		return NewStorageError(message, err)
	}
}

// ClassOf returns the class of err, or "" when err is not classified.
func ClassOf(err error) ErrorClass {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}
