/*
freeze.go - The Freeze Controller

PURPOSE:
  Converts a member-month from mutable derived data into append-only
  historical fact. The state machine is deliberately tiny and one-way:

    OPEN -> FROZEN

  There is no FROZEN -> OPEN transition here. Unfreezing, if it ever
  exists, is an administrative act outside this engine.

GUARANTEES:
  1. A month with unresolved exceptions cannot freeze.
  2. A member-month freezes exactly once; duplicates are errors.
  3. The freeze row and the per-record frozen flags are one atomic
     write - a crash cannot leave one without the other.
*/
package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/attendance-engine/audit"
)

// FreezeController seals member-months.
type FreezeController struct {
	Freezes FreezeStore
	Excs    ExceptionStore
	Members MemberStore
	Audit   audit.Recorder
	Log     logrus.FieldLogger
}

func NewFreezeController(store Store, rec audit.Recorder, log logrus.FieldLogger) *FreezeController {
	if rec == nil {
		rec = audit.Nop{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &FreezeController{Freezes: store, Excs: store, Members: store, Audit: rec, Log: log}
}

// Freeze seals one member-month. Fails if unresolved exceptions remain
// in range or the month is already frozen.
func (f *FreezeController) Freeze(ctx context.Context, memberID string, year int, month time.Month, actor string) (*Freeze, error) {
	if _, err := f.Members.GetMember(ctx, memberID); err != nil {
		return nil, err
	}

	from, to := MonthRange(year, month)

	pending, err := f.Excs.PendingCount(ctx, memberID, from, to)
	if err != nil {
		return nil, fmt.Errorf("count pending exceptions: %w", err)
	}
	if pending > 0 {
		return nil, &PendingExceptionsError{MemberID: memberID, Count: pending}
	}

	freeze := Freeze{
		MemberID: memberID,
		Year:     year,
		Month:    month,
		FrozenBy: actor,
		FrozenAt: time.Now().UTC(),
	}

	// Row insert + record flips happen inside one store transaction.
	if err := f.Freezes.CreateFreeze(ctx, freeze, from, to); err != nil {
		return nil, err
	}

	f.Audit.Record(ctx, audit.Event{
		Actor:      actor,
		Action:     audit.ActionMonthFrozen,
		EntityType: "freeze",
		EntityID:   fmt.Sprintf("%s/%d-%02d", memberID, year, month),
		After:      map[string]any{"member": memberID, "year": year, "month": int(month)},
	})

	return &freeze, nil
}

// IsFrozen reports whether a member-month has been sealed.
func (f *FreezeController) IsFrozen(ctx context.Context, memberID string, year int, month time.Month) (bool, error) {
	fr, err := f.Freezes.GetFreeze(ctx, memberID, year, month)
	if err != nil {
		return false, err
	}
	return fr != nil, nil
}

// FreezeAll seals the month for every active member. One member's
// failure (typically lingering exceptions) is recorded and the batch
// continues.
func (f *FreezeController) FreezeAll(ctx context.Context, year int, month time.Month, actor string) (*BatchResult, error) {
	members, err := f.Members.ListActiveMembers(ctx)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{}
	for _, m := range members {
		if _, err := f.Freeze(ctx, m.ID, year, month, actor); err != nil {
			f.Log.WithError(err).WithField("member", m.ID).Warn("freeze failed")
			result.Fail(m.ID, err)
			continue
		}
		result.Success()
	}
	return result, nil
}
