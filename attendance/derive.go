/*
derive.go - The Derivation Engine

PURPOSE:
  Reduces one member's swipe events on one day into a single classified
  attendance record, plus an exception when the day cannot be classified
  cleanly.

ALGORITHM:
  1. Holiday check first - overrides everything, including any events.
  2. Fetch the day's events for the member's device identity, ascending.
  3. Zero events        -> PENDING_EXCEPTION / MISSING_DATA.
  4. Pair IN/OUT chronologically. Two INs without an OUT, or an OUT
     with no open IN, are inconsistencies: classification stops there
     with zero hours but first-in/last-out preserved for the reviewer.
     UNKNOWN events never contribute to duration and never break pairing.
  5. Sum closed IN->OUT intervals (wall-clock hours).
  6. An IN still open at scan end: if less than an hour remains to
     end-of-day it's an inconsistency; otherwise the member is credited
     until 23:59:59.999 and a warning is logged.
  7. Round to 2 decimals, classify against the thresholds.

FAILURE SEMANTICS:
  Data-quality problems are never errors. Derive always returns a
  result, using PENDING_EXCEPTION as the universal needs-human sink.
  The only error is an unknown member identity.

IDEMPOTENCE:
  Derive is a pure function of (events, holiday fact, thresholds), so
  re-running it for the same inputs yields the same record. That is what
  makes upstream biometric corrections safe: fix the events, re-derive,
  repeat as often as needed before the month freezes.
*/
package attendance

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// openInGracePeriod is the minimum remainder to end-of-day for an
// unmatched IN to be credited rather than flagged inconsistent.
const openInGracePeriod = time.Hour

// =============================================================================
// DERIVATION RESULT
// =============================================================================

// ExceptionDraft is the exception a derivation wants to raise, before
// it is attached to a stored record.
type ExceptionDraft struct {
	Type        ExceptionType
	Description string
}

// DerivationResult is the outcome of classifying one member-day.
type DerivationResult struct {
	Status      Status
	Source      Source
	HoursWorked float64
	FirstIn     *time.Time
	LastOut     *time.Time
	Exception   *ExceptionDraft
}

// =============================================================================
// DERIVER
// =============================================================================

// Deriver classifies member-days from biometric events.
type Deriver struct {
	Events   EventStore
	Records  RecordStore
	Excs     ExceptionStore
	Members  MemberStore
	Holidays HolidayCalendar
	Settings Settings
	Log      logrus.FieldLogger
}

func NewDeriver(store Store, holidays HolidayCalendar, settings Settings, log logrus.FieldLogger) *Deriver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Deriver{
		Events:   store,
		Records:  store,
		Excs:     store,
		Members:  store,
		Holidays: holidays,
		Settings: settings,
		Log:      log,
	}
}

// Derive classifies a single member-day. It never fails on data quality;
// the only error is an unknown member (or a collaborator failure).
func (d *Deriver) Derive(ctx context.Context, memberID string, date Date) (*DerivationResult, error) {
	member, err := d.Members.GetMember(ctx, memberID)
	if err != nil {
		return nil, err
	}

	// Holiday overrides everything, events included.
	if d.Holidays != nil {
		holiday, err := d.Holidays.IsHoliday(ctx, date)
		if err != nil {
			return nil, fmt.Errorf("holiday lookup: %w", err)
		}
		if holiday {
			return &DerivationResult{Status: StatusHoliday, Source: SourceHoliday}, nil
		}
	}

	events, err := d.Events.EventsOn(ctx, member.BiometricID, date)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}

	if len(events) == 0 {
		return &DerivationResult{
			Status: StatusPendingException,
			Source: SourceBiometric,
			Exception: &ExceptionDraft{
				Type:        ExceptionMissingData,
				Description: fmt.Sprintf("No biometric events for %s on %s", memberID, date),
			},
		}, nil
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].DeviceTimestamp.Before(events[j].DeviceTimestamp)
	})

	result := d.pairAndSum(events, date, memberID)
	if result.Exception != nil {
		return result, nil
	}

	thresholds, err := LoadThresholds(ctx, d.Settings)
	if err != nil {
		return nil, fmt.Errorf("load thresholds: %w", err)
	}
	result.Status = classify(result.HoursWorked, thresholds)
	return result, nil
}

// pairAndSum scans events chronologically, closing IN->OUT intervals.
func (d *Deriver) pairAndSum(events []BiometricEvent, date Date, memberID string) *DerivationResult {
	var (
		firstIn *time.Time
		lastOut *time.Time
		openIn  *time.Time
		total   time.Duration
	)

	inconsistent := func(desc string) *DerivationResult {
		return &DerivationResult{
			Status:  StatusPendingException,
			Source:  SourceBiometric,
			FirstIn: firstIn,
			LastOut: lastOut,
			Exception: &ExceptionDraft{
				Type:        ExceptionInconsistentLogs,
				Description: desc,
			},
		}
	}

	for _, ev := range events {
		switch ev.Type {
		case EventIn:
			if openIn != nil {
				return inconsistent("Consecutive IN events detected without OUT")
			}
			ts := ev.DeviceTimestamp
			openIn = &ts
			if firstIn == nil {
				firstIn = &ts
			}
		case EventOut:
			if openIn == nil {
				return inconsistent("OUT event before IN event")
			}
			ts := ev.DeviceTimestamp
			total += ts.Sub(*openIn)
			lastOut = &ts
			openIn = nil
		case EventUnknown:
			// Skipped for duration math; does not break pairing.
		}
	}

	if openIn != nil {
		endOfDay := date.EndOfDay()
		remainder := endOfDay.Sub(*openIn)
		if remainder < openInGracePeriod {
			return inconsistent("IN event near end of day without matching OUT")
		}
		// Credit work until end of day. This fabricates an OUT the device
		// never saw - kept as-is pending a product decision, hence the
		// warning rather than an exception.
		d.Log.WithFields(logrus.Fields{
			"member": memberID,
			"date":   date.String(),
			"in":     openIn.Format(time.RFC3339),
		}).Warn("open IN at end of day; crediting hours until midnight")
		total += remainder
		lastOut = &endOfDay
	}

	return &DerivationResult{
		Source:      SourceBiometric,
		HoursWorked: roundHours(total),
		FirstIn:     firstIn,
		LastOut:     lastOut,
	}
}

func roundHours(d time.Duration) float64 {
	h := decimal.NewFromFloat(d.Hours()).Round(2)
	f, _ := h.Float64()
	return f
}

func classify(hours float64, t Thresholds) Status {
	switch {
	case hours >= t.FullDayMinHours:
		return StatusFullDay
	case hours >= t.HalfDayMinHours:
		return StatusHalfDay
	default:
		return StatusLOP
	}
}

// =============================================================================
// PERSISTED DERIVATION - Derive + upsert record + sync exception
// =============================================================================

// DeriveAndStore derives one member-day and upserts the resulting record
// and its linked exception. Skips (without error) when the stored record
// is already frozen; returns whether the record was written.
func (d *Deriver) DeriveAndStore(ctx context.Context, memberID string, date Date) (stored bool, err error) {
	result, err := d.Derive(ctx, memberID, date)
	if err != nil {
		return false, err
	}

	rec := Record{
		MemberID:    memberID,
		Date:        date,
		Status:      result.Status,
		Source:      result.Source,
		HoursWorked: result.HoursWorked,
		FirstIn:     result.FirstIn,
		LastOut:     result.LastOut,
	}

	saved, err := d.Records.UpsertRecord(ctx, rec)
	if err != nil {
		if IsInvalidState(err) {
			// Frozen months are history; re-derivation quietly skips them.
			return false, nil
		}
		return false, err
	}

	if result.Exception != nil {
		_, err = d.Excs.UpsertException(ctx, Exception{
			RecordID:    saved.ID,
			MemberID:    memberID,
			Date:        date,
			Type:        result.Exception.Type,
			Description: result.Exception.Description,
			Status:      ExceptionPending,
		})
		if err != nil {
			return true, fmt.Errorf("upsert exception: %w", err)
		}
	} else if err := d.Excs.ClearPendingException(ctx, saved.ID); err != nil {
		return true, fmt.Errorf("clear exception: %w", err)
	}

	return true, nil
}

// DeriveForDate runs derivation for every active member on a date.
// Per-member failures are collected, never propagated; frozen records
// count as skips.
func (d *Deriver) DeriveForDate(ctx context.Context, date Date) (*BatchResult, error) {
	members, err := d.Members.ListActiveMembers(ctx)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{}
	for _, m := range members {
		stored, err := d.DeriveAndStore(ctx, m.ID, date)
		switch {
		case err != nil:
			d.Log.WithError(err).WithField("member", m.ID).Error("derivation failed")
			result.Fail(m.ID, err)
		case !stored:
			result.Skip()
		default:
			result.Success()
		}
	}
	return result, nil
}

// DeriveRange re-derives every day in [from, to] for one member. Frozen
// days are skipped; the tally mirrors DeriveForDate.
func (d *Deriver) DeriveRange(ctx context.Context, memberID string, from, to Date) (*BatchResult, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("invalid range: %s after %s", from, to)
	}

	result := &BatchResult{}
	for _, day := range DaysOf(from, to) {
		stored, err := d.DeriveAndStore(ctx, memberID, day)
		switch {
		case err != nil:
			result.Fail(memberID, fmt.Errorf("%s: %w", day, err))
		case !stored:
			result.Skip()
		default:
			result.Success()
		}
	}
	return result, nil
}
