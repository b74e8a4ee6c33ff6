/*
Package payroll computes immutable monthly salaries from frozen
attendance.

PURPOSE:
  The last stage of the pipeline. It may only read attendance that the
  freeze controller has sealed, and its own output is immutable the
  moment it is stored: a calculation for a member-month happens exactly
  once, and every later correction is an append-only adjustment entry
  layered on top. Net salary is always derived (gross + adjustments),
  never persisted, so it can never go stale.

KEY CONCEPTS IN THIS FILE (types.go):
  - Band:        a pay-rate configuration assigned to a member over time
  - Calculation: the sealed result of one member-month's payroll
  - Breakdown:   the verbatim snapshot of inputs behind the number
  - Adjustment:  a signed, append-only correction entry

DESIGN PRINCIPLES:
  1. decimal.Decimal everywhere money flows - no float drift
  2. The breakdown is stored verbatim: bands change, history doesn't
  3. Corrections append, never edit
*/
package payroll

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PAYMENT BAND - Pay-rate assignment with effective dates
// =============================================================================

// Band is a named pay-rate configuration assigned to a member. Exactly
// one of MonthlyBase or HourlyRate should be set; the engine errors on
// a band with neither. AssignedTo nil means the band is current.
type Band struct {
	ID           string
	MemberID     string
	Name         string
	MonthlyBase  *decimal.Decimal
	HourlyRate   *decimal.Decimal
	AssignedFrom time.Time
	AssignedTo   *time.Time
	CreatedAt    time.Time
}

// IsCurrent reports whether the band has no end date.
func (b Band) IsCurrent() bool { return b.AssignedTo == nil }

// =============================================================================
// CALCULATION - Immutable monthly result
// =============================================================================

// Method is how a month's gross was computed.
type Method string

const (
	MethodMonthlyBase Method = "monthly_base"
	MethodHourly      Method = "hourly"
)

// Calculation is the sealed payroll result for one member-month.
// Keyed by (MemberID, Year, Month); a second Save for the same key is
// rejected. Changes after the fact go through adjustments only.
type Calculation struct {
	ID               string
	MemberID         string
	Year             int
	Month            time.Month
	TotalDaysWorked  decimal.Decimal
	TotalHoursWorked decimal.Decimal
	GrossSalary      decimal.Decimal
	Breakdown        Breakdown
	CalculatedBy     string
	CalculatedAt     time.Time
}

// Breakdown is the point-in-time snapshot of everything behind a gross
// figure. Stored verbatim: if the band or the rules change later, the
// historical number stays explainable.
type Breakdown struct {
	Method      Method          `json:"method"`
	Band        BandSnapshot    `json:"band"`
	DaysInMonth int             `json:"days_in_month"`
	PerDayRate  decimal.Decimal `json:"per_day_rate"` // zero for hourly
	Days        []DayLine       `json:"days"`
}

// BandSnapshot captures the band values at calculation time.
type BandSnapshot struct {
	BandID      string           `json:"band_id"`
	Name        string           `json:"name"`
	MonthlyBase *decimal.Decimal `json:"monthly_base,omitempty"`
	HourlyRate  *decimal.Decimal `json:"hourly_rate,omitempty"`
}

// DayLine is one attendance day as payroll saw it.
type DayLine struct {
	Date   string          `json:"date"`
	Status string          `json:"status"`
	Weight decimal.Decimal `json:"weight"`
	Hours  float64         `json:"hours"`
}

// =============================================================================
// ADJUSTMENT - Append-only correction ledger
// =============================================================================

type AdjustmentType string

const (
	AdjustmentBonus      AdjustmentType = "BONUS"
	AdjustmentDeduction  AdjustmentType = "DEDUCTION"
	AdjustmentCorrection AdjustmentType = "CORRECTION"
)

// Adjustment is one signed entry against a calculation. Entries are
// never edited or removed; a wrong adjustment is fixed by another one.
type Adjustment struct {
	ID            string
	CalculationID string
	Type          AdjustmentType
	Amount        decimal.Decimal // signed: deductions are negative
	Reason        string
	CreatedBy     string
	CreatedAt     time.Time
}

// NetSalary is gross plus the sum of adjustments. Always computed on
// read, never stored.
func NetSalary(gross decimal.Decimal, adjustments []Adjustment) decimal.Decimal {
	net := gross
	for _, a := range adjustments {
		net = net.Add(a.Amount)
	}
	return net
}

// Statement is a calculation joined with its adjustments and the
// derived net, the shape read-side consumers want.
type Statement struct {
	Calculation Calculation
	Adjustments []Adjustment
	NetSalary   decimal.Decimal
}
