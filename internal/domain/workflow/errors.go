package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrPreconditionFailed is returned when the acting role or current state does not permit the transition
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrInactiveResource is returned when the RFQ is paused
	ErrInactiveResource = errors.New("rfq is inactive")

	// ErrValidation is returned when a required comment or target is missing or invalid
	ErrValidation = errors.New("validation error")

	// ErrConcurrencyConflict is returned when another transition committed first
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrDependencyFailure is returned when a repository write or cost recalculation failed
	ErrDependencyFailure = errors.New("dependency failure")

	// ErrNotificationFailure marks notifications that could not be delivered
	ErrNotificationFailure = errors.New("notification failure")

	// ErrTimeout is returned when the store or a mandatory collaborator timed out
	ErrTimeout = errors.New("timeout")

	// ErrNotFound is returned when the RFQ does not exist
	ErrNotFound = errors.New("not found")

	// ErrUnknownState is returned when a stored state is missing from the lookup table
	ErrUnknownState = errors.New("unknown state")

	// ErrUnknownTrigger is returned for a trigger with no rule
	ErrUnknownTrigger = errors.New("unknown trigger")

	// ErrGuardFailed is returned when no guarded target matches the selection
	ErrGuardFailed = errors.New("guard condition failed")
)

// TransitionError describes a rejected transition request
type TransitionError struct {
	Trigger Trigger
	RFQID   int64
	Err     error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition %s on rfq %d: %v", e.Trigger, e.RFQID, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the caller may refetch and retry
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}
