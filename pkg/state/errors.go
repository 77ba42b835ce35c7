package state

import (
	"errors"
	"fmt"
)

var (
	// ErrDisposed is reported by subscriptions of an engine that was disposed.
	ErrDisposed = errors.New("state engine disposed")

	// ErrClosed is reported by a subscription its owner closed.
	ErrClosed = errors.New("subscription closed")

	// ErrAlreadyStarted is returned when configuring or starting an engine twice.
	ErrAlreadyStarted = errors.New("state engine already started")
)

// SourceError reports a must-succeed intent source that failed. It is fatal
// to the engine.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return "intent source " + e.Source + ": " + e.Err.Error()
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// ReduceError reports a reducer panic. It is fatal to the engine.
type ReduceError struct {
	Seq   uint64
	Cause any
}

func (e *ReduceError) Error() string {
	return fmt.Sprintf("reduce panicked at seq %d: %v", e.Seq, e.Cause)
}
