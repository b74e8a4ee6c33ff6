/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Members:
    MemberDTO, CreateMemberRequest

  Events:
    IngestEventRequest

  Attendance:
    RecordDTO, DeriveRequest, CorrectionRequest, LeaveOverrideRequest,
    MonthlyStatsDTO

  Exceptions:
    ExceptionDTO, ResolveExceptionRequest

  Freeze:
    FreezeRequest, FreezeDTO, BatchResultDTO

  Payroll:
    AssignBandRequest, BandDTO, CalculateRequest, CalculationDTO,
    StatementDTO, AdjustmentRequest, AdjustmentDTO

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - attendance/types.go, payroll/types.go: Domain models behind these
*/
package api

import (
	"time"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/payroll"
)

// =============================================================================
// MEMBERS
// =============================================================================

// MemberDTO represents a member in API responses.
type MemberDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	BiometricID string `json:"biometric_id"`
	Active      bool   `json:"active"`
	JoinedAt    string `json:"joined_at,omitempty"`
}

// CreateMemberRequest is the request to register a member.
type CreateMemberRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	BiometricID string `json:"biometric_id"`
	Active      *bool  `json:"active,omitempty"` // default true
}

func toMemberDTO(m attendance.Member) MemberDTO {
	return MemberDTO{
		ID:          m.ID,
		Name:        m.Name,
		BiometricID: m.BiometricID,
		Active:      m.Active,
		JoinedAt:    m.JoinedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// EVENTS
// =============================================================================

// IngestEventRequest is one raw device swipe.
type IngestEventRequest struct {
	DeviceID   string `json:"device_id"`
	SubjectID  string `json:"subject_id"`
	Timestamp  string `json:"timestamp"` // RFC3339
	EventType  string `json:"event_type"`
	RawPayload string `json:"raw_payload,omitempty"`
}

// =============================================================================
// ATTENDANCE
// =============================================================================

// RecordDTO represents one member-day in API responses.
type RecordDTO struct {
	ID           string  `json:"id"`
	MemberID     string  `json:"member_id"`
	Date         string  `json:"date"`
	Status       string  `json:"status"`
	Source       string  `json:"source"`
	HoursWorked  float64 `json:"hours_worked"`
	FirstIn      *string `json:"first_in,omitempty"`
	LastOut      *string `json:"last_out,omitempty"`
	IsFrozen     bool    `json:"is_frozen"`
	FrozenAt     *string `json:"frozen_at,omitempty"`
	ManualReason string  `json:"manual_reason,omitempty"`
}

func toRecordDTO(rec attendance.Record) RecordDTO {
	return RecordDTO{
		ID:           rec.ID,
		MemberID:     rec.MemberID,
		Date:         rec.Date.String(),
		Status:       string(rec.Status),
		Source:       string(rec.Source),
		HoursWorked:  rec.HoursWorked,
		FirstIn:      fmtTimePtr(rec.FirstIn),
		LastOut:      fmtTimePtr(rec.LastOut),
		IsFrozen:     rec.IsFrozen,
		FrozenAt:     fmtTimePtr(rec.FrozenAt),
		ManualReason: rec.ManualReason,
	}
}

// DeriveRequest triggers derivation for one date, optionally scoped to
// a single member or expanded to a date range.
type DeriveRequest struct {
	MemberID string `json:"member_id,omitempty"` // empty = all active members
	Date     string `json:"date"`
	ToDate   string `json:"to_date,omitempty"` // range end, single member only
}

// CorrectionRequest is a manual attendance correction.
type CorrectionRequest struct {
	Date    string  `json:"date"`
	Status  string  `json:"status"`
	Hours   float64 `json:"hours"`
	Reason  string  `json:"reason"`
	AdminID string  `json:"admin_id"`
}

// LeaveOverrideRequest applies an approved leave to a day.
type LeaveOverrideRequest struct {
	Date      string `json:"date"`
	Status    string `json:"status"` // CASUAL_LEAVE_FULL or CASUAL_LEAVE_HALF
	Reference string `json:"reference,omitempty"`
	AdminID   string `json:"admin_id"`
}

// MonthlyStatsDTO summarizes one member-month.
type MonthlyStatsDTO struct {
	MemberID    string         `json:"member_id"`
	Year        int            `json:"year"`
	Month       int            `json:"month"`
	ByStatus    map[string]int `json:"by_status"`
	TotalHours  float64        `json:"total_hours"`
	RecordCount int            `json:"record_count"`
	IsFrozen    bool           `json:"is_frozen"`
}

// =============================================================================
// EXCEPTIONS
// =============================================================================

// ExceptionDTO represents a data-quality exception.
type ExceptionDTO struct {
	ID             string  `json:"id"`
	RecordID       string  `json:"record_id"`
	MemberID       string  `json:"member_id"`
	Date           string  `json:"date"`
	Type           string  `json:"type"`
	Description    string  `json:"description,omitempty"`
	Status         string  `json:"status"`
	ResolutionNote string  `json:"resolution_note,omitempty"`
	ResolvedBy     string  `json:"resolved_by,omitempty"`
	ResolvedAt     *string `json:"resolved_at,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

func toExceptionDTO(exc attendance.Exception) ExceptionDTO {
	return ExceptionDTO{
		ID:             exc.ID,
		RecordID:       exc.RecordID,
		MemberID:       exc.MemberID,
		Date:           exc.Date.String(),
		Type:           string(exc.Type),
		Description:    exc.Description,
		Status:         string(exc.Status),
		ResolutionNote: exc.ResolutionNote,
		ResolvedBy:     exc.ResolvedBy,
		ResolvedAt:     fmtTimePtr(exc.ResolvedAt),
		CreatedAt:      exc.CreatedAt.Format(time.RFC3339),
	}
}

// ResolveExceptionRequest signs off an exception.
type ResolveExceptionRequest struct {
	Note    string `json:"note"`
	AdminID string `json:"admin_id"`
}

// =============================================================================
// FREEZE
// =============================================================================

// FreezeRequest seals a member-month, or all members when member_id is empty.
type FreezeRequest struct {
	MemberID string `json:"member_id,omitempty"`
	Year     int    `json:"year"`
	Month    int    `json:"month"`
	AdminID  string `json:"admin_id"`
}

// FreezeDTO represents one month seal.
type FreezeDTO struct {
	ID       string `json:"id"`
	MemberID string `json:"member_id"`
	Year     int    `json:"year"`
	Month    int    `json:"month"`
	FrozenBy string `json:"frozen_by"`
	FrozenAt string `json:"frozen_at"`
}

func toFreezeDTO(f attendance.Freeze) FreezeDTO {
	return FreezeDTO{
		ID:       f.ID,
		MemberID: f.MemberID,
		Year:     f.Year,
		Month:    int(f.Month),
		FrozenBy: f.FrozenBy,
		FrozenAt: f.FrozenAt.Format(time.RFC3339),
	}
}

// BatchResultDTO reports a per-member batch outcome.
type BatchResultDTO struct {
	Total     int               `json:"total"`
	Succeeded int               `json:"succeeded"`
	Skipped   int               `json:"skipped"`
	Failed    int               `json:"failed"`
	Failures  []BatchFailureDTO `json:"failures,omitempty"`
}

// BatchFailureDTO is one member's failure within a batch.
type BatchFailureDTO struct {
	MemberID string `json:"member_id"`
	Error    string `json:"error"`
}

func toBatchResultDTO(res *attendance.BatchResult) BatchResultDTO {
	dto := BatchResultDTO{
		Total:     res.Total,
		Succeeded: res.Succeeded,
		Skipped:   res.Skipped,
		Failed:    res.Failed,
	}
	for _, f := range res.Failures {
		dto.Failures = append(dto.Failures, BatchFailureDTO{MemberID: f.MemberID, Error: f.Err})
	}
	return dto
}

// =============================================================================
// PAYROLL
// =============================================================================

// AssignBandRequest assigns a new current salary band to a member.
// Exactly one of monthly_base or hourly_rate must be set.
type AssignBandRequest struct {
	Name        string `json:"name"`
	MonthlyBase string `json:"monthly_base,omitempty"`
	HourlyRate  string `json:"hourly_rate,omitempty"`
}

// BandDTO represents a salary band assignment.
type BandDTO struct {
	ID           string  `json:"id"`
	MemberID     string  `json:"member_id"`
	Name         string  `json:"name"`
	MonthlyBase  *string `json:"monthly_base,omitempty"`
	HourlyRate   *string `json:"hourly_rate,omitempty"`
	AssignedFrom string  `json:"assigned_from"`
	AssignedTo   *string `json:"assigned_to,omitempty"`
}

func toBandDTO(b payroll.Band) BandDTO {
	dto := BandDTO{
		ID:           b.ID,
		MemberID:     b.MemberID,
		Name:         b.Name,
		AssignedFrom: b.AssignedFrom.Format(time.RFC3339),
		AssignedTo:   fmtTimePtr(b.AssignedTo),
	}
	if b.MonthlyBase != nil {
		s := b.MonthlyBase.String()
		dto.MonthlyBase = &s
	}
	if b.HourlyRate != nil {
		s := b.HourlyRate.String()
		dto.HourlyRate = &s
	}
	return dto
}

// CalculateRequest runs salary calculation for a member-month, or for
// all members when member_id is empty.
type CalculateRequest struct {
	MemberID string `json:"member_id,omitempty"`
	Year     int    `json:"year"`
	Month    int    `json:"month"`
	AdminID  string `json:"admin_id"`
}

// CalculationDTO represents a sealed monthly calculation.
type CalculationDTO struct {
	ID               string            `json:"id"`
	MemberID         string            `json:"member_id"`
	Year             int               `json:"year"`
	Month            int               `json:"month"`
	TotalDaysWorked  string            `json:"total_days_worked"`
	TotalHoursWorked string            `json:"total_hours_worked"`
	GrossSalary      string            `json:"gross_salary"`
	Breakdown        payroll.Breakdown `json:"breakdown"`
	CalculatedBy     string            `json:"calculated_by"`
	CalculatedAt     string            `json:"calculated_at"`
}

func toCalculationDTO(c payroll.Calculation) CalculationDTO {
	return CalculationDTO{
		ID:               c.ID,
		MemberID:         c.MemberID,
		Year:             c.Year,
		Month:            int(c.Month),
		TotalDaysWorked:  c.TotalDaysWorked.String(),
		TotalHoursWorked: c.TotalHoursWorked.String(),
		GrossSalary:      c.GrossSalary.String(),
		Breakdown:        c.Breakdown,
		CalculatedBy:     c.CalculatedBy,
		CalculatedAt:     c.CalculatedAt.Format(time.RFC3339),
	}
}

// StatementDTO is the calculation plus its adjustment ledger and the
// net figure computed on read.
type StatementDTO struct {
	Calculation CalculationDTO  `json:"calculation"`
	Adjustments []AdjustmentDTO `json:"adjustments"`
	NetSalary   string          `json:"net_salary"`
}

// AdjustmentRequest appends one adjustment to a calculation.
type AdjustmentRequest struct {
	Type    string `json:"type"`   // BONUS, DEDUCTION, CORRECTION
	Amount  string `json:"amount"` // signed decimal
	Reason  string `json:"reason"`
	AdminID string `json:"admin_id"`
}

// AdjustmentDTO represents one adjustment ledger entry.
type AdjustmentDTO struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Amount    string `json:"amount"`
	Reason    string `json:"reason"`
	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at"`
}

func toAdjustmentDTO(a payroll.Adjustment) AdjustmentDTO {
	return AdjustmentDTO{
		ID:        a.ID,
		Type:      string(a.Type),
		Amount:    a.Amount.String(),
		Reason:    a.Reason,
		CreatedBy: a.CreatedBy,
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// ADMIN
// =============================================================================

// SettingRequest writes one configuration value.
type SettingRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// HolidayRequest registers a holiday date.
type HolidayRequest struct {
	Date string `json:"date"`
	Name string `json:"name"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func fmtTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
