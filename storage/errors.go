package storage

import "errors"

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("duplicate record")
	// ErrConflict is returned when a transaction lost a serialization race
	// or a conditional update matched no row. Callers may retry.
	ErrConflict = errors.New("concurrent modification")
)
