/*
engine.go - The Payroll Engine

PURPOSE:
  Computes one member-month's gross salary from frozen attendance and
  the member's current payment band, then seals the result.

PRECONDITIONS:
  The member-month MUST be frozen. The engine reads only records with
  the frozen flag set - derivation output that was never sealed does
  not exist as far as payroll is concerned.

PAID-DAY WEIGHTS:
  FULL_DAY, CASUAL_LEAVE_FULL, HOLIDAY  -> 1.0
  HALF_DAY, CASUAL_LEAVE_HALF           -> 0.5
  LOP, PENDING_EXCEPTION                -> 0.0

  PENDING_EXCEPTION should not survive a freeze (the controller gates
  on it), so its zero weight is defensive.

MODES:
  monthly_base: per-day rate = base / days-in-calendar-month,
                gross = rate * weighted days
  hourly:       gross = rate * total hours
  A band with neither rate is a configuration error.
*/
package payroll

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/audit"
)

var (
	weightFull = decimal.NewFromInt(1)
	weightHalf = decimal.NewFromFloat(0.5)
)

// dayWeight maps a status to its paid-day weight. The switch is
// exhaustive over the closed status set; an unhandled status is a bug
// surfaced loudly rather than silently unpaid.
func dayWeight(s attendance.Status) (decimal.Decimal, error) {
	switch s {
	case attendance.StatusFullDay, attendance.StatusCasualLeaveFull, attendance.StatusHoliday:
		return weightFull, nil
	case attendance.StatusHalfDay, attendance.StatusCasualLeaveHalf:
		return weightHalf, nil
	case attendance.StatusLOP, attendance.StatusPendingException:
		return decimal.Zero, nil
	}
	return decimal.Zero, fmt.Errorf("unhandled attendance status %q", s)
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine computes and seals monthly salaries.
type Engine struct {
	Bands   BandStore
	Calcs   CalculationStore
	Records attendance.RecordStore
	Freezes attendance.FreezeStore
	Members attendance.MemberStore
	Audit   audit.Recorder
	Log     logrus.FieldLogger
}

func NewEngine(store Store, att attendance.Store, rec audit.Recorder, log logrus.FieldLogger) *Engine {
	if rec == nil {
		rec = audit.Nop{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{
		Bands:   store,
		Calcs:   store,
		Records: att,
		Freezes: att,
		Members: att,
		Audit:   rec,
		Log:     log,
	}
}

// Calculate computes and stores the salary for one member-month.
// Fails if the month is not frozen, if no usable band exists, or if a
// calculation already exists for the key.
func (e *Engine) Calculate(ctx context.Context, memberID string, year int, month time.Month, actor string) (*Calculation, error) {
	if _, err := e.Members.GetMember(ctx, memberID); err != nil {
		return nil, err
	}

	freeze, err := e.Freezes.GetFreeze(ctx, memberID, year, month)
	if err != nil {
		return nil, err
	}
	if freeze == nil {
		return nil, fmt.Errorf("%s %d-%02d: %w", memberID, year, month, attendance.ErrNotFrozen)
	}

	from, to := attendance.MonthRange(year, month)
	records, err := e.Records.RecordsInRange(ctx, memberID, from, to)
	if err != nil {
		return nil, err
	}

	band, err := e.Bands.CurrentBand(ctx, memberID)
	if err != nil {
		return nil, err
	}

	calc, err := e.compute(memberID, year, month, records, band)
	if err != nil {
		return nil, err
	}
	calc.ID = uuid.NewString()
	calc.CalculatedBy = actor
	calc.CalculatedAt = time.Now().UTC()

	if err := e.Calcs.SaveCalculation(ctx, *calc); err != nil {
		return nil, err
	}

	e.Audit.Record(ctx, audit.Event{
		Actor:      actor,
		Action:     audit.ActionSalaryCalculated,
		EntityType: "salary_calculation",
		EntityID:   calc.ID,
		After: map[string]any{
			"member": memberID,
			"year":   year,
			"month":  int(month),
			"gross":  calc.GrossSalary.String(),
			"method": string(calc.Breakdown.Method),
		},
	})

	return calc, nil
}

// compute is the pure calculation: frozen records + band -> calculation.
func (e *Engine) compute(memberID string, year int, month time.Month, records []attendance.Record, band *Band) (*Calculation, error) {
	totalDays := decimal.Zero
	totalHours := decimal.Zero
	lines := make([]DayLine, 0, len(records))

	for _, rec := range records {
		if !rec.IsFrozen {
			// Only sealed attendance counts.
			continue
		}
		weight, err := dayWeight(rec.Status)
		if err != nil {
			return nil, err
		}
		totalDays = totalDays.Add(weight)
		totalHours = totalHours.Add(decimal.NewFromFloat(rec.HoursWorked))
		lines = append(lines, DayLine{
			Date:   rec.Date.String(),
			Status: string(rec.Status),
			Weight: weight,
			Hours:  rec.HoursWorked,
		})
	}

	breakdown := Breakdown{
		Band: BandSnapshot{
			BandID:      band.ID,
			Name:        band.Name,
			MonthlyBase: band.MonthlyBase,
			HourlyRate:  band.HourlyRate,
		},
		DaysInMonth: attendance.DaysInMonth(year, month),
		Days:        lines,
	}

	var gross decimal.Decimal
	switch {
	case band.MonthlyBase != nil:
		breakdown.Method = MethodMonthlyBase
		perDay := band.MonthlyBase.Div(decimal.NewFromInt(int64(breakdown.DaysInMonth)))
		breakdown.PerDayRate = perDay
		gross = perDay.Mul(totalDays)
	case band.HourlyRate != nil:
		breakdown.Method = MethodHourly
		gross = band.HourlyRate.Mul(totalHours)
	default:
		return nil, &BandConfigError{BandID: band.ID, MemberID: memberID}
	}

	return &Calculation{
		MemberID:         memberID,
		Year:             year,
		Month:            month,
		TotalDaysWorked:  totalDays,
		TotalHoursWorked: totalHours.Round(2),
		GrossSalary:      gross.Round(2),
		Breakdown:        breakdown,
	}, nil
}

// CalculateForAll runs Calculate for every active member. Per-member
// failures (unfrozen months, missing bands) are tallied, never fatal.
func (e *Engine) CalculateForAll(ctx context.Context, year int, month time.Month, actor string) (*attendance.BatchResult, error) {
	members, err := e.Members.ListActiveMembers(ctx)
	if err != nil {
		return nil, err
	}

	result := &attendance.BatchResult{}
	for _, m := range members {
		if _, err := e.Calculate(ctx, m.ID, year, month, actor); err != nil {
			e.Log.WithError(err).WithField("member", m.ID).Warn("salary calculation failed")
			result.Fail(m.ID, err)
			continue
		}
		result.Success()
	}
	return result, nil
}

// Get returns the stored calculation with adjustments and derived net.
func (e *Engine) Get(ctx context.Context, memberID string, year int, month time.Month) (*Statement, error) {
	calc, err := e.Calcs.GetCalculation(ctx, memberID, year, month)
	if err != nil {
		return nil, err
	}

	adjustments, err := e.Calcs.Adjustments(ctx, calc.ID)
	if err != nil {
		return nil, err
	}

	return &Statement{
		Calculation: *calc,
		Adjustments: adjustments,
		NetSalary:   NetSalary(calc.GrossSalary, adjustments),
	}, nil
}

// AddAdjustment appends a signed bonus/deduction/correction entry to a
// sealed calculation. The calculation itself never changes.
func (e *Engine) AddAdjustment(ctx context.Context, calculationID string, typ AdjustmentType, amount decimal.Decimal, reason, actor string) (*Adjustment, error) {
	switch typ {
	case AdjustmentBonus, AdjustmentDeduction, AdjustmentCorrection:
	default:
		return nil, fmt.Errorf("type %q: %w", typ, ErrInvalidAdjustment)
	}
	if amount.IsZero() {
		return nil, fmt.Errorf("zero amount: %w", ErrInvalidAdjustment)
	}
	if reason == "" {
		return nil, fmt.Errorf("reason required: %w", ErrInvalidAdjustment)
	}

	if _, err := e.Calcs.GetCalculationByID(ctx, calculationID); err != nil {
		return nil, err
	}

	adj := Adjustment{
		ID:            uuid.NewString(),
		CalculationID: calculationID,
		Type:          typ,
		Amount:        amount,
		Reason:        reason,
		CreatedBy:     actor,
		CreatedAt:     time.Now().UTC(),
	}
	if err := e.Calcs.AppendAdjustment(ctx, adj); err != nil {
		return nil, err
	}

	e.Audit.Record(ctx, audit.Event{
		Actor:      actor,
		Action:     audit.ActionAdjustmentAppended,
		EntityType: "salary_adjustment",
		EntityID:   calculationID,
		After: map[string]any{
			"type":   string(typ),
			"amount": amount.String(),
			"reason": reason,
		},
	})

	return &adj, nil
}
