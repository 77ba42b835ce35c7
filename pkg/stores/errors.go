package stores

import "errors"

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write violates a uniqueness constraint,
	// e.g. a second manga for the same (source id, key).
	ErrConflict = errors.New("conflict")
)
