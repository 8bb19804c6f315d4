package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when a repair does not exist or has been deleted.
	ErrNotFound = errors.New("repair not found")

	// ErrConflict is returned when a repair with the given ID already exists.
	ErrConflict = errors.New("repair already exists")
)
