package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a referenced pattern id does not exist.
// Surfaced to the caller, never retried internally.
var ErrNotFound = errors.New("pattern not found")

// StorageError wraps an I/O or schema failure in the underlying database.
// Fatal to the current operation; never silently swallowed for writes.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error in %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// storageErr wraps err as a StorageError unless it already carries a
// domain meaning (ErrNotFound, ValidationError).
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var ve *ValidationError
	if errors.Is(err, ErrNotFound) || errors.As(err, &ve) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// ValidationError reports a caller-supplied pattern failing shape
// invariants. Rejected before any write.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid pattern: %s", e.Reason)
}
