package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrSystemClosed is returned when the scheduling window is not open.
	ErrSystemClosed = errors.New("scheduling window is closed")

	// ErrBusy is returned when another employee holds the editing session.
	ErrBusy = errors.New("scheduling session held by another employee")

	// ErrAlreadySubmitted is returned when the employee already has a
	// submitted schedule for the month.
	ErrAlreadySubmitted = errors.New("schedule already submitted for this month")

	// ErrSessionNotHeld is returned when submit/exit is attempted without a
	// valid, owned, unexpired session.
	ErrSessionNotHeld = errors.New("session expired or not held")

	// ErrValidationFailed is returned when one or more hard rules are violated.
	ErrValidationFailed = errors.New("leave validation failed")

	// ErrStorageUnavailable wraps collaborator I/O failures. Retryable.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrNoSettings is returned when no month has been configured yet.
	ErrNoSettings = errors.New("no schedule settings configured")

	// ErrInvalidSettings is returned when administrator input is malformed.
	ErrInvalidSettings = errors.New("invalid schedule settings")

	// ErrEmployeeNotFound is returned when an employee is not in the directory.
	ErrEmployeeNotFound = errors.New("employee not found")

	// ErrScheduleNotFound is returned when no submitted schedule exists to void.
	ErrScheduleNotFound = errors.New("schedule not found")

	// ErrDuplicateSubmission is returned by stores when a write would leave two
	// submitted records for the same employee and month.
	ErrDuplicateSubmission = errors.New("duplicate submitted schedule for employee and month")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// BusyError names the current holder so a UI can show
// "X is scheduling, Y seconds left".
type BusyError struct {
	HolderID         string
	HolderName       string
	RemainingSeconds int
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("%s is scheduling, %d seconds left", e.HolderName, e.RemainingSeconds)
}

func (e *BusyError) Unwrap() error { return ErrBusy }

// ValidationFailedError carries every hard violation found.
type ValidationFailedError struct {
	Violations []Violation
}

func (e *ValidationFailedError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Message
	}
	return fmt.Sprintf("%v: %s", ErrValidationFailed, strings.Join(msgs, "; "))
}

func (e *ValidationFailedError) Unwrap() error { return ErrValidationFailed }

// SystemClosedError reports when the window opens next, if it has not
// opened yet this month.
type SystemClosedError struct {
	NextOpen time.Time
}

func (e *SystemClosedError) Error() string {
	if e.NextOpen.IsZero() {
		return ErrSystemClosed.Error()
	}
	return fmt.Sprintf("%v: opens at %s", ErrSystemClosed, e.NextOpen.Format(time.RFC3339))
}

func (e *SystemClosedError) Unwrap() error { return ErrSystemClosed }

func storageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

// IsClientError returns true if the error is an expected business outcome
// or invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrSystemClosed) ||
		errors.Is(err, ErrBusy) ||
		errors.Is(err, ErrAlreadySubmitted) ||
		errors.Is(err, ErrSessionNotHeld) ||
		errors.Is(err, ErrValidationFailed) ||
		errors.Is(err, ErrInvalidSettings)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNoSettings) ||
		errors.Is(err, ErrEmployeeNotFound) ||
		errors.Is(err, ErrScheduleNotFound)
}
