package store

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the store.
var (
	// ErrUninitialized indicates the data directory has never been created.
	ErrUninitialized = errors.New("store: not initialized")

	// ErrUnknownJob matches every *UnknownJobError.
	ErrUnknownJob = errors.New("store: unknown job")
)

// UnknownJobError reports a lookup of an id that is not in the store.
type UnknownJobError struct {
	ID uint64
}

// Error implements the error interface.
func (e *UnknownJobError) Error() string {
	return fmt.Sprintf("store: unknown job id %d", e.ID)
}

// Is makes errors.Is(err, ErrUnknownJob) succeed.
func (e *UnknownJobError) Is(target error) bool {
	return target == ErrUnknownJob
}
