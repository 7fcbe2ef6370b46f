package storage

import "errors"

// Storage errors shared by all store implementations.
var (
	// ErrNotFound is returned when a requested record does not exist,
	// including Close on a mint with no open position.
	ErrNotFound = errors.New("not found")

	// ErrDuplicatePosition is returned when opening a position for a mint
	// that already has an open record. Callers must close it first.
	ErrDuplicatePosition = errors.New("duplicate open position")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
