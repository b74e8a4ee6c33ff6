/*
errors.go - Centralized error types for the attendance core

ERROR CATEGORIES:
  1. NotFound      - referenced member/record/exception absent
  2. InvalidState  - writes against frozen or already-sealed state
  3. Data quality  - NOT errors here: derivation recovers them locally
                     into PENDING_EXCEPTION records and always returns
                     a classification

USAGE:
  Callers branch with errors.Is, or use the taxonomy helpers:

    if attendance.IsInvalidState(err) { ... reject, do not retry ... }
*/
package attendance

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrMemberNotFound is returned when the member identity itself does
	// not exist. This is the only error derivation ever surfaces.
	ErrMemberNotFound = errors.New("member not found")

	// ErrRecordNotFound is returned when no attendance record exists for
	// a (member, date) key.
	ErrRecordNotFound = errors.New("attendance record not found")

	// ErrExceptionNotFound is returned when a referenced exception doesn't exist.
	ErrExceptionNotFound = errors.New("exception not found")

	// ErrRecordFrozen is returned when a write targets a record in a
	// frozen month. Frozen records cannot change through any path.
	ErrRecordFrozen = errors.New("attendance record is frozen")

	// ErrAlreadyFrozen is returned on a duplicate freeze for the same
	// member-month. Freezing is one-way and happens exactly once.
	ErrAlreadyFrozen = errors.New("month already frozen")

	// ErrNotFrozen is returned when payroll is attempted on a month that
	// has not been sealed yet.
	ErrNotFrozen = errors.New("attendance not frozen")

	// ErrPendingExceptions is returned when a freeze is attempted while
	// unresolved exceptions remain in the month range.
	ErrPendingExceptions = errors.New("unresolved exceptions in range")

	// ErrExceptionResolved is returned when resolving an exception that
	// has already been signed off.
	ErrExceptionResolved = errors.New("exception already resolved")

	// ErrReasonRequired is returned when a manual correction carries no reason.
	ErrReasonRequired = errors.New("manual correction requires a reason")

	// ErrInvalidStatus is returned when a correction supplies a status the
	// operation does not accept.
	ErrInvalidStatus = errors.New("invalid status for this operation")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// FrozenWriteError reports which record rejected a write because the
// month had already been sealed.
type FrozenWriteError struct {
	MemberID string
	Date     Date
}

func (e *FrozenWriteError) Error() string {
	return fmt.Sprintf("attendance record is frozen: %s on %s", e.MemberID, e.Date)
}

func (e *FrozenWriteError) Unwrap() error { return ErrRecordFrozen }

// PendingExceptionsError reports how many exceptions block a freeze.
type PendingExceptionsError struct {
	MemberID string
	Count    int
}

func (e *PendingExceptionsError) Error() string {
	return fmt.Sprintf("cannot freeze: %d unresolved exception(s) for %s", e.Count, e.MemberID)
}

func (e *PendingExceptionsError) Unwrap() error { return ErrPendingExceptions }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrMemberNotFound) ||
		errors.Is(err, ErrRecordNotFound) ||
		errors.Is(err, ErrExceptionNotFound)
}

// IsInvalidState returns true for state-invariant violations. These are
// rejected operations with a descriptive reason, never retried.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrRecordFrozen) ||
		errors.Is(err, ErrAlreadyFrozen) ||
		errors.Is(err, ErrNotFrozen) ||
		errors.Is(err, ErrPendingExceptions) ||
		errors.Is(err, ErrExceptionResolved)
}
