package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a record with the same identity already exists.
	ErrDuplicate = errors.New("persistence: duplicate")
	// ErrConflict is returned when a conditional write observed a different
	// state than the caller expected (stale version or slot already taken).
	ErrConflict = errors.New("persistence: conflict")
)
