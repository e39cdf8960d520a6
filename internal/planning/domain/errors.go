package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConflictUnresolved is returned when the planner cannot satisfy a
	// hard constraint; no plan is emitted.
	ErrConflictUnresolved = errors.New("scheduling conflict could not be resolved")

	// ErrConcurrencyViolation is returned when a pipeline run is triggered
	// while another run is still in flight.
	ErrConcurrencyViolation = errors.New("another pipeline run is already in flight")

	// ErrReviewInProgress is returned when a review is triggered while a
	// prior review has not completed.
	ErrReviewInProgress = errors.New("a review cycle is already in flight")

	// ErrPlanOverlap signals two assignments with overlapping exclusive
	// slots and no recorded conflict resolution.
	ErrPlanOverlap = errors.New("plan contains unresolved overlapping assignments")
)

// SourceUnavailableError indicates an external source could not be reached.
// The snapshot proceeds with that source's data marked stale.
type SourceUnavailableError struct {
	Source Source
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source %s unavailable: %v", e.Source, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// AuthError indicates an external source rejected the configured credentials.
// The cycle aborts for that source only.
type AuthError struct {
	Source Source
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("source %s rejected credentials: %v", e.Source, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ActionFailedError indicates an executor action failed after exhausting
// its retries. Remaining actions continue.
type ActionFailedError struct {
	Operation string
	TaskID    string
	Attempts  int
	Err       error
}

func (e *ActionFailedError) Error() string {
	return fmt.Sprintf("action %s for task %s failed after %d attempts: %v",
		e.Operation, e.TaskID, e.Attempts, e.Err)
}

func (e *ActionFailedError) Unwrap() error { return e.Err }

// IsSourceUnavailable reports whether err is a SourceUnavailableError.
func IsSourceUnavailable(err error) bool {
	var target *SourceUnavailableError
	return errors.As(err, &target)
}

// IsAuthError reports whether err is an AuthError.
func IsAuthError(err error) bool {
	var target *AuthError
	return errors.As(err, &target)
}
