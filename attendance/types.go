/*
Package attendance turns raw biometric clock-in/out events into
authoritative daily attendance records and seals them month by month.

PURPOSE:
  This package contains the first two stages of the payroll pipeline:

    Event Store -> Derivation Engine -> Attendance Record (+ Exception)
                -> Exception Resolver -> Freeze Controller

  Raw swipe events are noisy: people forget to clock out, devices send
  duplicates, clocks drift. The Derivation Engine reduces a day's events
  into exactly one classified record, routing everything it cannot
  classify into a PENDING_EXCEPTION for human sign-off. The Freeze
  Controller then converts a member-month of mutable derived data into
  append-only historical fact.

KEY CONCEPTS IN THIS FILE (types.go):
  - BiometricEvent: an immutable swipe, never updated or deleted
  - Record: one member, one day, one status
  - Exception: an unresolved ambiguity blocking the month freeze
  - Freeze: the one-way seal on a member-month
  - Member: the minimal identity the engine needs (device mapping)

DESIGN PRINCIPLES:
  1. Derivation never fails on bad data - it classifies it as pending
  2. Frozen records cannot change through any code path
  3. Everything downstream of a freeze reads, never writes

SEE ALSO:
  - derive.go: event pairing and classification
  - freeze.go: the month-level state machine
  - store.go: persistence interfaces
*/
package attendance

import "time"

// =============================================================================
// BIOMETRIC EVENTS - Append-only input ledger
// =============================================================================

type EventType string

const (
	EventIn      EventType = "IN"
	EventOut     EventType = "OUT"
	EventUnknown EventType = "UNKNOWN"
)

// ParseEventType maps raw device strings onto the known event types.
// Anything unrecognized becomes UNKNOWN; derivation ignores those.
func ParseEventType(s string) EventType {
	switch EventType(s) {
	case EventIn, EventOut:
		return EventType(s)
	default:
		return EventUnknown
	}
}

// BiometricEvent is a single device swipe. Immutable once created:
// the event store exposes no update or delete, corrections happen by
// re-deriving the day from the full event history.
type BiometricEvent struct {
	ID               string
	DeviceID         string
	SubjectID        string // identity on the device, maps to Member.BiometricID
	DeviceTimestamp  time.Time
	ServerReceivedAt time.Time
	Type             EventType
	RawPayload       string
}

// =============================================================================
// ATTENDANCE RECORD - One member, one day
// =============================================================================

type Status string

const (
	StatusFullDay          Status = "FULL_DAY"
	StatusHalfDay          Status = "HALF_DAY"
	StatusLOP              Status = "LOP" // loss of pay
	StatusHoliday          Status = "HOLIDAY"
	StatusCasualLeaveFull  Status = "CASUAL_LEAVE_FULL"
	StatusCasualLeaveHalf  Status = "CASUAL_LEAVE_HALF"
	StatusPendingException Status = "PENDING_EXCEPTION"
)

type Source string

const (
	SourceBiometric     Source = "BIOMETRIC"
	SourceManual        Source = "MANUAL"
	SourceHoliday       Source = "HOLIDAY"
	SourceLeaveOverride Source = "LEAVE_OVERRIDE"
)

// Record is the authoritative classification of one member's day.
// Keyed by (MemberID, Date). Mutable via derivation or manual
// correction until IsFrozen is set; immutable afterwards.
type Record struct {
	ID           string
	MemberID     string
	Date         Date
	Status       Status
	Source       Source
	HoursWorked  float64 // rounded to 2 decimal places
	FirstIn      *time.Time
	LastOut      *time.Time
	IsFrozen     bool
	FrozenAt     *time.Time
	ManualReason string // required when Source is MANUAL
	UpdatedAt    time.Time
}

// =============================================================================
// EXCEPTION - A day that needs a human
// =============================================================================

type ExceptionType string

const (
	ExceptionMissingData      ExceptionType = "MISSING_DATA"
	ExceptionInconsistentLogs ExceptionType = "INCONSISTENT_LOGS"
)

type ExceptionStatus string

const (
	ExceptionPending  ExceptionStatus = "PENDING"
	ExceptionResolved ExceptionStatus = "RESOLVED"
)

// Exception marks a record the derivation engine could not cleanly
// classify. One-to-one with its record. Resolving it is a sign-off
// trail only - it never alters the record's classification. Changing
// the classification requires a separate manual correction.
type Exception struct {
	ID             string
	RecordID       string
	MemberID       string
	Date           Date
	Type           ExceptionType
	Description    string
	Status         ExceptionStatus
	ResolutionNote string
	ResolvedBy     string
	ResolvedAt     *time.Time
	CreatedAt      time.Time
}

// =============================================================================
// FREEZE - The month-level seal
// =============================================================================

// Freeze seals a member-month. Its existence IS the frozen flag for the
// whole month: created exactly once, never deleted, and every attendance
// record in the month range carries IsFrozen=true from that point on.
type Freeze struct {
	ID       string
	MemberID string
	Year     int
	Month    time.Month
	FrozenBy string
	FrozenAt time.Time
}

// =============================================================================
// MEMBER - Minimal identity for derivation and batch runs
// =============================================================================

// Member is the slice of an employee this engine needs: a stable ID,
// the identity the biometric device knows them by, and an active flag
// for batch iteration. User management lives elsewhere.
type Member struct {
	ID          string
	Name        string
	BiometricID string
	Active      bool
	JoinedAt    time.Time
}

// =============================================================================
// BATCH OUTCOMES - Partial-failure reporting for the *All operations
// =============================================================================

// BatchFailure records a single member's failure inside a batch run.
type BatchFailure struct {
	MemberID string
	Err      string
}

// BatchResult aggregates the outcome of a per-member batch operation.
// One member's failure never aborts the batch; it lands here instead.
type BatchResult struct {
	Total     int
	Succeeded int
	Skipped   int
	Failed    int
	Failures  []BatchFailure
}

// Success tallies one successful item.
func (r *BatchResult) Success() { r.Total++; r.Succeeded++ }

// Skip tallies one item that was deliberately not processed (frozen).
func (r *BatchResult) Skip() { r.Total++; r.Skipped++ }

// Fail tallies one failed item without aborting the batch.
func (r *BatchResult) Fail(memberID string, err error) {
	r.Total++
	r.Failed++
	r.Failures = append(r.Failures, BatchFailure{MemberID: memberID, Err: err.Error()})
}
