package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mangasync/mangasync/pkg/stores"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		class ErrorClass
	}{
		{"not found", fmt.Errorf("manga 1: %w", stores.ErrNotFound), ErrorClassNotFound},
		{"conflict", fmt.Errorf("insert: %w", stores.ErrConflict), ErrorClassConflict},
		{"other", errors.New("disk I/O error"), ErrorClassStorage},
		{"canceled", context.Canceled, ErrorClassStorage},
		{"already classified", NewTransportError("fetch", nil), ErrorClassTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify("op", tt.err)
			assert.Equal(t, tt.class, ClassOf(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}

	assert.NoError(t, Classify("op", nil))
}

func TestClassHelpers(t *testing.T) {
	conflict := NewConflictError("dup", stores.ErrConflict)
	assert.True(t, IsConflict(conflict))
	assert.False(t, IsNotFound(conflict))

	// Raw store sentinels count too.
	assert.True(t, IsNotFound(fmt.Errorf("wrapped: %w", stores.ErrNotFound)))
	assert.True(t, IsConflict(stores.ErrConflict))

	assert.True(t, IsTransport(fmt.Errorf("side effect: %w", NewTransportError("fetch", nil))))
	assert.True(t, IsStorage(NewStorageError("write", nil)))
	assert.False(t, IsStorage(errors.New("plain")))
	assert.Equal(t, ErrorClass(""), ClassOf(errors.New("plain")))
}

func TestEngineError_Format(t *testing.T) {
	err := NewStorageError("failed to create manga", errors.New("disk full")).
		WithEntity("manga 7/m1").
		WithOperation("create")
	assert.Equal(t,
		"[storage] failed to create manga (entity=manga 7/m1, operation=create): disk full",
		err.Error())

	bare := NewTransportError("source down", nil)
	assert.Equal(t, "[transport] source down: ", bare.Error())
}

func TestEngineError_IsMatchesClass(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewConflictError("a", nil))
	assert.True(t, errors.Is(err, &EngineError{Class: ErrorClassConflict}))
	assert.False(t, errors.Is(err, &EngineError{Class: ErrorClassStorage}))
}
