/*
correct.go - Manual corrections and leave overrides

PURPOSE:
  The only paths that change a record's classification outside of
  derivation. Both require the month to still be open, both are audited
  with before/after images, and a manual correction always carries a
  reason - "fixed it" with no why is not an acceptable audit trail.
*/
package attendance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/warp/attendance-engine/audit"
)

// Corrector applies explicit human overrides to attendance records.
type Corrector struct {
	Records RecordStore
	Excs    ExceptionStore
	Members MemberStore
	Audit   audit.Recorder
}

func NewCorrector(store Store, rec audit.Recorder) *Corrector {
	if rec == nil {
		rec = audit.Nop{}
	}
	return &Corrector{Records: store, Excs: store, Members: store, Audit: rec}
}

// Correct sets a member-day to an explicit status with a mandatory
// reason. Rejected when the month is frozen. A pending exception on the
// day is left untouched: correcting and signing off are separate acts.
func (c *Corrector) Correct(ctx context.Context, memberID string, date Date, status Status, hours float64, reason, actor string) (*Record, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, ErrReasonRequired
	}
	if !validCorrectionStatus(status) {
		return nil, fmt.Errorf("correct to %q: %w", status, ErrInvalidStatus)
	}
	if _, err := c.Members.GetMember(ctx, memberID); err != nil {
		return nil, err
	}

	before := c.beforeImage(ctx, memberID, date)

	rec := Record{
		MemberID:     memberID,
		Date:         date,
		Status:       status,
		Source:       SourceManual,
		HoursWorked:  hours,
		ManualReason: reason,
	}

	saved, err := c.Records.UpsertRecord(ctx, rec)
	if err != nil {
		return nil, err
	}

	c.Audit.Record(ctx, audit.Event{
		Actor:      actor,
		Action:     audit.ActionRecordCorrected,
		EntityType: "attendance_record",
		EntityID:   saved.ID,
		Before:     before,
		After:      recordImage(saved),
	})

	return saved, nil
}

// ApplyLeaveOverride marks a day as approved casual leave. Produced by
// the (external) leave workflow; only the two leave statuses are valid.
func (c *Corrector) ApplyLeaveOverride(ctx context.Context, memberID string, date Date, status Status, reference, actor string) (*Record, error) {
	if status != StatusCasualLeaveFull && status != StatusCasualLeaveHalf {
		return nil, fmt.Errorf("leave override to %q: %w", status, ErrInvalidStatus)
	}
	if _, err := c.Members.GetMember(ctx, memberID); err != nil {
		return nil, err
	}

	before := c.beforeImage(ctx, memberID, date)

	saved, err := c.Records.UpsertRecord(ctx, Record{
		MemberID:     memberID,
		Date:         date,
		Status:       status,
		Source:       SourceLeaveOverride,
		ManualReason: reference,
	})
	if err != nil {
		return nil, err
	}

	// An approved leave supersedes whatever ambiguity derivation found.
	if err := c.Excs.ClearPendingException(ctx, saved.ID); err != nil {
		return nil, err
	}

	c.Audit.Record(ctx, audit.Event{
		Actor:      actor,
		Action:     audit.ActionLeaveOverride,
		EntityType: "attendance_record",
		EntityID:   saved.ID,
		Before:     before,
		After:      recordImage(saved),
	})

	return saved, nil
}

func validCorrectionStatus(s Status) bool {
	switch s {
	case StatusFullDay, StatusHalfDay, StatusLOP, StatusHoliday,
		StatusCasualLeaveFull, StatusCasualLeaveHalf:
		return true
	case StatusPendingException:
		// A correction exists to take a day OUT of pending; putting one
		// back in makes no sense.
		return false
	}
	return false
}

func (c *Corrector) beforeImage(ctx context.Context, memberID string, date Date) map[string]any {
	existing, err := c.Records.GetRecord(ctx, memberID, date)
	if err != nil || existing == nil {
		return nil
	}
	return recordImage(existing)
}

func recordImage(r *Record) map[string]any {
	img := map[string]any{
		"status": string(r.Status),
		"source": string(r.Source),
		"hours":  r.HoursWorked,
		"date":   r.Date.String(),
	}
	if r.ManualReason != "" {
		img["reason"] = r.ManualReason
	}
	if r.FirstIn != nil {
		img["first_in"] = r.FirstIn.Format(time.RFC3339)
	}
	if r.LastOut != nil {
		img["last_out"] = r.LastOut.Format(time.RFC3339)
	}
	return img
}
