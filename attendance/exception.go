/*
exception.go - The Exception Resolver

PURPOSE:
  Exceptions are the derivation engine's "needs a human" sink. Resolving
  one is a sign-off, nothing more: it records who reviewed the day and
  why it is acceptable, and it unblocks the month freeze. It deliberately
  does NOT change the attendance record's classification - a resolved
  MISSING_DATA day stays PENDING_EXCEPTION-classified until someone also
  issues an explicit manual correction. Sign-off and correction are two
  separate, separately-audited acts.
*/
package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/attendance-engine/audit"
)

// Resolver signs off pending exceptions.
type Resolver struct {
	Excs    ExceptionStore
	Records RecordStore
	Audit   audit.Recorder
}

func NewResolver(store Store, rec audit.Recorder) *Resolver {
	if rec == nil {
		rec = audit.Nop{}
	}
	return &Resolver{Excs: store, Records: store, Audit: rec}
}

// Resolve marks a pending exception resolved with a note and actor.
// Preconditions: the exception exists, is PENDING, and its record's
// month has not been frozen.
func (r *Resolver) Resolve(ctx context.Context, exceptionID, note, actor string) (*Exception, error) {
	exc, err := r.Excs.GetException(ctx, exceptionID)
	if err != nil {
		return nil, err
	}
	if exc.Status == ExceptionResolved {
		return nil, fmt.Errorf("resolve %s: %w", exceptionID, ErrExceptionResolved)
	}

	rec, err := r.Records.GetRecord(ctx, exc.MemberID, exc.Date)
	if err != nil {
		return nil, err
	}
	if rec.IsFrozen {
		return nil, &FrozenWriteError{MemberID: exc.MemberID, Date: exc.Date}
	}

	now := time.Now().UTC()
	exc.Status = ExceptionResolved
	exc.ResolutionNote = note
	exc.ResolvedBy = actor
	exc.ResolvedAt = &now

	if err := r.Excs.ResolveException(ctx, *exc); err != nil {
		return nil, err
	}

	r.Audit.Record(ctx, audit.Event{
		Actor:      actor,
		Action:     audit.ActionExceptionResolved,
		EntityType: "exception",
		EntityID:   exc.ID,
		After:      map[string]any{"note": note, "type": string(exc.Type), "date": exc.Date.String()},
	})

	return exc, nil
}

// ListPending returns all exceptions awaiting sign-off, oldest first.
func (r *Resolver) ListPending(ctx context.Context) ([]Exception, error) {
	return r.Excs.ListPending(ctx)
}
