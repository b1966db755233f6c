package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrLockConflict indicates a compare-and-set lock write found entries
	// already locked by a concurrent operation.
	ErrLockConflict = errors.New("lock conflict: entries changed by a concurrent operation")
	// ErrBusy indicates another session holds the critical section for the
	// same business key. Safe to retry.
	ErrBusy = errors.New("operation already in progress")
)

// PartialError reports a multi-step operation that completed some but not
// all of its writes. Step names the last step that succeeded so a retry,
// keyed by Key, can resume instead of duplicating effects.
type PartialError struct {
	Op   string
	Step string
	Key  string
	Err  error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("%s: partial failure after %q (retry key %s): %v", e.Op, e.Step, e.Key, e.Err)
}

func (e *PartialError) Unwrap() error {
	return e.Err
}
