/*
store.go - Persistence interfaces for the attendance core

PURPOSE:
  Defines the contract between domain logic and the database. Different
  implementations back these with SQLite (store/sqlite) or memory
  (attendance/store) - the engines only ever see the interfaces.

WRITE DISCIPLINE:
  - Events:  append-only. No update or delete exists.
  - Records: upsert until frozen; every write path re-checks the frozen
             flag inside the same statement/transaction that writes.
  - Freezes: created exactly once; the freeze row and the record flips
             are a single atomic unit.
*/
package attendance

import (
	"context"
	"time"
)

// =============================================================================
// EVENT STORE - Append-only swipe ledger
// =============================================================================

// EventStore owns creation of biometric events; everything else reads.
type EventStore interface {
	// AppendEvent persists a swipe. The ONLY write operation on events.
	AppendEvent(ctx context.Context, ev BiometricEvent) error

	// EventsOn returns all events for a device identity on a calendar
	// day (local day boundaries, inclusive), ascending by device timestamp.
	EventsOn(ctx context.Context, subjectID string, day Date) ([]BiometricEvent, error)
}

// =============================================================================
// RECORD STORE
// =============================================================================

// RecordStore persists derived attendance records.
type RecordStore interface {
	// GetRecord returns the record for (member, date), or ErrRecordNotFound.
	GetRecord(ctx context.Context, memberID string, date Date) (*Record, error)

	// UpsertRecord creates or replaces the record for (member, date) and
	// returns the stored row (the record ID is stable across upserts).
	// Returns a FrozenWriteError if the stored record is frozen: the
	// frozen check and the write are one atomic unit.
	UpsertRecord(ctx context.Context, rec Record) (*Record, error)

	// RecordsInRange returns records for a member in [from, to], ascending.
	RecordsInRange(ctx context.Context, memberID string, from, to Date) ([]Record, error)
}

// =============================================================================
// EXCEPTION STORE
// =============================================================================

// ExceptionStore persists derivation exceptions, one per record.
type ExceptionStore interface {
	// GetException returns an exception by ID, or ErrExceptionNotFound.
	GetException(ctx context.Context, id string) (*Exception, error)

	// UpsertException creates or refreshes the exception linked to a
	// record, keeping the exception ID stable. A re-derived exception
	// resets status to PENDING with the new type and description.
	UpsertException(ctx context.Context, exc Exception) (*Exception, error)

	// ResolveException marks a PENDING exception resolved. Returns
	// ErrExceptionResolved if it already is.
	ResolveException(ctx context.Context, exc Exception) error

	// ClearPendingException removes a still-pending exception for a
	// record whose re-derivation came back clean. Resolved exceptions
	// stay as sign-off history. No-op if nothing is pending.
	ClearPendingException(ctx context.Context, recordID string) error

	// PendingCount counts PENDING exceptions for a member in [from, to].
	PendingCount(ctx context.Context, memberID string, from, to Date) (int, error)

	// ListPending returns all PENDING exceptions, oldest first.
	ListPending(ctx context.Context) ([]Exception, error)
}

// =============================================================================
// FREEZE STORE
// =============================================================================

// FreezeStore persists month seals.
type FreezeStore interface {
	// CreateFreeze inserts the freeze row and marks every record in
	// [from, to] frozen, atomically. Returns ErrAlreadyFrozen if a
	// freeze already exists for the key.
	CreateFreeze(ctx context.Context, f Freeze, from, to Date) error

	// GetFreeze returns the freeze for a member-month, or nil.
	GetFreeze(ctx context.Context, memberID string, year int, month time.Month) (*Freeze, error)
}

// =============================================================================
// MEMBER STORE
// =============================================================================

// MemberStore reads the member registry. Managed elsewhere; the engine
// only needs lookups and the active roster for batch runs.
type MemberStore interface {
	// GetMember returns a member by ID, or ErrMemberNotFound.
	GetMember(ctx context.Context, id string) (*Member, error)

	// ListActiveMembers returns all active members, stable order.
	ListActiveMembers(ctx context.Context) ([]Member, error)
}

// =============================================================================
// COMPOSITE
// =============================================================================

// Store is the full persistence surface of the attendance core.
type Store interface {
	EventStore
	RecordStore
	ExceptionStore
	FreezeStore
	MemberStore
}
