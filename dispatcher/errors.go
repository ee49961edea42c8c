package dispatcher

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueOverflow is returned when the dispatch queue is full
	ErrQueueOverflow = errors.New("dispatch queue is full")

	// ErrBackendFailure is wrapped by every error the worker routes back to callers
	ErrBackendFailure = errors.New("scoring backend failed")

	// ErrRequestTimeout is returned when a caller's deadline passes before all results arrive
	ErrRequestTimeout = errors.New("timed out waiting for scoring results")
)

// BackendError describes a failed backend call for one work item
type BackendError struct {
	ItemID string
	Cause  error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("work item %s: %v: %v", e.ItemID, ErrBackendFailure, e.Cause)
}

// Unwrap exposes both ErrBackendFailure and the underlying cause
func (e *BackendError) Unwrap() []error {
	return []error{ErrBackendFailure, e.Cause}
}
