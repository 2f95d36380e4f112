package repository

import (
	"errors"
	"time"
)

var (
	// ErrRoomTaken means the overlap exclusion constraint rejected the write.
	ErrRoomTaken = errors.New("room already reserved for overlapping dates")
	// ErrDuplicate wraps a unique violation; Constraint names the index.
	ErrDuplicate = errors.New("duplicate record")
	// ErrStateChanged means a guarded update matched no row.
	ErrStateChanged = errors.New("record state changed concurrently")
)

const queryTimeout = 3 * time.Second

type scanner interface {
	Scan(dest ...any) error
}

// DuplicateError carries the violated unique constraint.
type DuplicateError struct {
	Constraint string
}

func (e *DuplicateError) Error() string { return "duplicate record (" + e.Constraint + ")" }
func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }
