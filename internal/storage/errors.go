package storage

import "errors"

// Storage errors shared by all backends.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when an insert violates a unique key:
	// a second open position for a ticker, or a reused trade request key.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict is returned when a conditional update matched no rows,
	// e.g. consuming a credit from a user with none left.
	ErrConflict = errors.New("conditional update failed")
)
