package steps

import (
	"errors"
	"fmt"
)

// ErrTerminal is returned when a tracker that already reached Installed or
// Error is asked to move again.
var ErrTerminal = errors.New("install step is terminal")

// TransitionError describes a rejected step transition.
type TransitionError struct {
	OperationID string
	From        InstallStep
	To          InstallStep
	Err         error
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("operation %s: illegal transition %s -> %s: %v", e.OperationID, e.From, e.To, e.Err)
	}
	return fmt.Sprintf("operation %s: illegal transition %s -> %s", e.OperationID, e.From, e.To)
}

// Unwrap returns the underlying error.
func (e *TransitionError) Unwrap() error {
	return e.Err
}
