/*
handlers.go - HTTP API handlers for the attendance and payroll engine

PURPOSE:
  Exposes the attendance pipeline and payroll engine via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to
  domain logic.

ENDPOINTS:
  Members:
    GET    /api/members                   List active members
    POST   /api/members                   Register member
    GET    /api/members/{id}              Get member details

  Events:
    POST   /api/events                    Ingest a biometric swipe

  Attendance:
    POST   /api/attendance/derive         Derive records (member/date/range)
    GET    /api/members/{id}/attendance   Records in a date range
    GET    /api/members/{id}/attendance/summary  Monthly summary
    POST   /api/members/{id}/corrections  Manual correction
    POST   /api/members/{id}/leave        Approved leave override

  Exceptions:
    GET    /api/exceptions/pending        List pending exceptions
    POST   /api/exceptions/{id}/resolve   Sign off an exception

  Freeze:
    POST   /api/freeze                    Freeze a member-month (or all)
    GET    /api/members/{id}/freeze       Freeze state for a month

  Payroll:
    POST   /api/members/{id}/bands        Assign salary band
    GET    /api/members/{id}/bands        Band history
    POST   /api/payroll/calculate         Calculate (member or all)
    GET    /api/members/{id}/payroll      Salary statement
    POST   /api/payroll/{calcID}/adjustments  Append adjustment

  Admin:
    PUT    /api/admin/settings            Write a setting
    POST   /api/admin/holidays            Register a holiday

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Invalid state (frozen, already calculated, pending exceptions)
  - 422: Configuration errors (missing or ambiguous band)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. The admin_id fields in
  request bodies are trusted attribution, not auth.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/audit"
	"github.com/warp/attendance-engine/payroll"
	"github.com/warp/attendance-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store *sqlite.Store

	deriver   *attendance.Deriver
	corrector *attendance.Corrector
	resolver  *attendance.Resolver
	freezer   *attendance.FreezeController
	reporter  *attendance.Reporter
	engine    *payroll.Engine

	settings *attendance.SettingsCache
	holidays *attendance.HolidayCache

	log logrus.FieldLogger
}

// NewHandler wires the domain services around a single SQLite store.
func NewHandler(store *sqlite.Store, log logrus.FieldLogger) *Handler {
	settings := attendance.NewSettingsCache(store)
	holidays := attendance.NewHolidayCache(store)
	recorder := audit.NewLogger(log)

	return &Handler{
		Store:     store,
		deriver:   attendance.NewDeriver(store, holidays, settings, log),
		corrector: attendance.NewCorrector(store, recorder),
		resolver:  attendance.NewResolver(store, recorder),
		freezer:   attendance.NewFreezeController(store, recorder, log),
		reporter:  attendance.NewReporter(store),
		engine:    payroll.NewEngine(store, store, recorder, log),
		settings:  settings,
		holidays:  holidays,
		log:       log,
	}
}

// =============================================================================
// MEMBER HANDLERS
// =============================================================================

// ListMembers returns the active roster.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.Store.ListActiveMembers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list members", err)
		return
	}

	dtos := make([]MemberDTO, len(members))
	for i, m := range members {
		dtos[i] = toMemberDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetMember returns a single member.
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	m, err := h.Store.GetMember(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to get member", err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(*m))
}

// CreateMember registers a member in the engine's roster.
func (h *Handler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req CreateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" || req.BiometricID == "" {
		writeError(w, http.StatusBadRequest, "id, name and biometric_id are required", nil)
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	m := attendance.Member{
		ID:          req.ID,
		Name:        req.Name,
		BiometricID: req.BiometricID,
		Active:      active,
		JoinedAt:    time.Now().UTC(),
	}
	if err := h.Store.SaveMember(r.Context(), m); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save member", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemberDTO(m))
}

// =============================================================================
// EVENT HANDLERS
// =============================================================================

// IngestEvent appends one biometric swipe to the event store.
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	var req IngestEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.DeviceID == "" || req.SubjectID == "" {
		writeError(w, http.StatusBadRequest, "device_id and subject_id are required", nil)
		return
	}

	ts, err := time.Parse(time.RFC3339, req.Timestamp)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid timestamp format (use RFC3339)", err)
		return
	}

	ev := attendance.BiometricEvent{
		DeviceID:         req.DeviceID,
		SubjectID:        req.SubjectID,
		DeviceTimestamp:  ts,
		ServerReceivedAt: time.Now().UTC(),
		Type:             attendance.ParseEventType(req.EventType),
		RawPayload:       req.RawPayload,
	}
	if err := h.Store.AppendEvent(r.Context(), ev); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to append event", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// =============================================================================
// DERIVATION HANDLERS
// =============================================================================

// Derive runs derivation for one member-day, a member's date range, or
// every active member on a date.
func (h *Handler) Derive(w http.ResponseWriter, r *http.Request) {
	var req DeriveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	date, err := attendance.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	ctx := r.Context()
	switch {
	case req.MemberID == "":
		res, err := h.deriver.DeriveForDate(ctx, date)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Derivation failed", err)
			return
		}
		writeJSON(w, http.StatusOK, toBatchResultDTO(res))

	case req.ToDate != "":
		to, err := attendance.ParseDate(req.ToDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to_date format (use YYYY-MM-DD)", err)
			return
		}
		res, err := h.deriver.DeriveRange(ctx, req.MemberID, date, to)
		if err != nil {
			writeDomainError(w, "Derivation failed", err)
			return
		}
		writeJSON(w, http.StatusOK, toBatchResultDTO(res))

	default:
		if _, err := h.deriver.DeriveAndStore(ctx, req.MemberID, date); err != nil {
			writeDomainError(w, "Derivation failed", err)
			return
		}
		rec, err := h.Store.GetRecord(ctx, req.MemberID, date)
		if err != nil {
			writeDomainError(w, "Failed to load derived record", err)
			return
		}
		writeJSON(w, http.StatusOK, toRecordDTO(*rec))
	}
}

// =============================================================================
// ATTENDANCE QUERY HANDLERS
// =============================================================================

// GetAttendance returns a member's records for ?from=...&to=...
func (h *Handler) GetAttendance(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "id")

	from, err := attendance.ParseDate(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
		return
	}
	to, err := attendance.ParseDate(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
		return
	}

	records, err := h.reporter.Records(r.Context(), memberID, from, to)
	if err != nil {
		writeDomainError(w, "Failed to query attendance", err)
		return
	}

	dtos := make([]RecordDTO, len(records))
	for i, rec := range records {
		dtos[i] = toRecordDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetMonthlySummary returns status counts and totals for ?year=&month=.
func (h *Handler) GetMonthlySummary(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "id")

	year, month, ok := parseYearMonth(w, r.URL.Query().Get("year"), r.URL.Query().Get("month"))
	if !ok {
		return
	}

	stats, err := h.reporter.Monthly(r.Context(), memberID, year, month)
	if err != nil {
		writeDomainError(w, "Failed to build summary", err)
		return
	}

	byStatus := make(map[string]int, len(stats.ByStatus))
	for s, n := range stats.ByStatus {
		byStatus[string(s)] = n
	}
	writeJSON(w, http.StatusOK, MonthlyStatsDTO{
		MemberID:    stats.MemberID,
		Year:        stats.Year,
		Month:       int(stats.Month),
		ByStatus:    byStatus,
		TotalHours:  stats.TotalHours,
		RecordCount: stats.RecordCount,
		IsFrozen:    stats.IsFrozen,
	})
}

// =============================================================================
// CORRECTION HANDLERS
// =============================================================================

// Correct applies a manual attendance correction.
func (h *Handler) Correct(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "id")

	var req CorrectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	date, err := attendance.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	rec, err := h.corrector.Correct(r.Context(), memberID, date,
		attendance.Status(req.Status), req.Hours, req.Reason, req.AdminID)
	if err != nil {
		writeDomainError(w, "Correction failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(*rec))
}

// ApplyLeave applies an approved leave override to a day.
func (h *Handler) ApplyLeave(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "id")

	var req LeaveOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	date, err := attendance.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	rec, err := h.corrector.ApplyLeaveOverride(r.Context(), memberID, date,
		attendance.Status(req.Status), req.Reference, req.AdminID)
	if err != nil {
		writeDomainError(w, "Leave override failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(*rec))
}

// =============================================================================
// EXCEPTION HANDLERS
// =============================================================================

// ListPendingExceptions returns the review queue, oldest first.
func (h *Handler) ListPendingExceptions(w http.ResponseWriter, r *http.Request) {
	excs, err := h.resolver.ListPending(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list exceptions", err)
		return
	}

	dtos := make([]ExceptionDTO, len(excs))
	for i, exc := range excs {
		dtos[i] = toExceptionDTO(exc)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ResolveException signs off an exception. The day's status does not
// change; use a correction for that.
func (h *Handler) ResolveException(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ResolveExceptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	exc, err := h.resolver.Resolve(r.Context(), id, req.Note, req.AdminID)
	if err != nil {
		writeDomainError(w, "Resolution failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toExceptionDTO(*exc))
}

// =============================================================================
// FREEZE HANDLERS
// =============================================================================

// Freeze seals a member-month, or every active member's month when
// member_id is empty.
func (h *Handler) Freeze(w http.ResponseWriter, r *http.Request) {
	var req FreezeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Year < 2000 || req.Month < 1 || req.Month > 12 {
		writeError(w, http.StatusBadRequest, "Invalid year/month", nil)
		return
	}

	ctx := r.Context()
	if req.MemberID == "" {
		res, err := h.freezer.FreezeAll(ctx, req.Year, time.Month(req.Month), req.AdminID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Freeze failed", err)
			return
		}
		writeJSON(w, http.StatusOK, toBatchResultDTO(res))
		return
	}

	f, err := h.freezer.Freeze(ctx, req.MemberID, req.Year, time.Month(req.Month), req.AdminID)
	if err != nil {
		writeDomainError(w, "Freeze failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, toFreezeDTO(*f))
}

// GetFreeze reports the freeze state for ?year=&month=.
func (h *Handler) GetFreeze(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "id")

	year, month, ok := parseYearMonth(w, r.URL.Query().Get("year"), r.URL.Query().Get("month"))
	if !ok {
		return
	}

	f, err := h.Store.GetFreeze(r.Context(), memberID, year, month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query freeze", err)
		return
	}
	if f == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"frozen": false})
		return
	}
	writeJSON(w, http.StatusOK, toFreezeDTO(*f))
}

// =============================================================================
// PAYROLL HANDLERS
// =============================================================================

// AssignBand assigns a new current salary band.
func (h *Handler) AssignBand(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "id")

	var req AssignBandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if (req.MonthlyBase == "") == (req.HourlyRate == "") {
		writeError(w, http.StatusBadRequest, "Exactly one of monthly_base or hourly_rate is required", nil)
		return
	}

	band := payroll.Band{MemberID: memberID, Name: req.Name}
	if req.MonthlyBase != "" {
		base, err := decimal.NewFromString(req.MonthlyBase)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid monthly_base", err)
			return
		}
		band.MonthlyBase = &base
	} else {
		rate, err := decimal.NewFromString(req.HourlyRate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid hourly_rate", err)
			return
		}
		band.HourlyRate = &rate
	}

	if _, err := h.Store.GetMember(r.Context(), memberID); err != nil {
		writeDomainError(w, "Failed to assign band", err)
		return
	}
	if err := h.Store.AssignBand(r.Context(), band); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to assign band", err)
		return
	}

	current, err := h.Store.CurrentBand(r.Context(), memberID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load band", err)
		return
	}
	writeJSON(w, http.StatusCreated, toBandDTO(*current))
}

// ListBands returns a member's full band history.
func (h *Handler) ListBands(w http.ResponseWriter, r *http.Request) {
	bands, err := h.Store.BandsByMember(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list bands", err)
		return
	}

	dtos := make([]BandDTO, len(bands))
	for i, b := range bands {
		dtos[i] = toBandDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Calculate runs salary calculation for a member-month, or all members.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req CalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Year < 2000 || req.Month < 1 || req.Month > 12 {
		writeError(w, http.StatusBadRequest, "Invalid year/month", nil)
		return
	}

	ctx := r.Context()
	if req.MemberID == "" {
		res, err := h.engine.CalculateForAll(ctx, req.Year, time.Month(req.Month), req.AdminID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Calculation failed", err)
			return
		}
		writeJSON(w, http.StatusOK, toBatchResultDTO(res))
		return
	}

	calc, err := h.engine.Calculate(ctx, req.MemberID, req.Year, time.Month(req.Month), req.AdminID)
	if err != nil {
		writeDomainError(w, "Calculation failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCalculationDTO(*calc))
}

// GetStatement returns the calculation, adjustments, and net for
// ?year=&month=.
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "id")

	year, month, ok := parseYearMonth(w, r.URL.Query().Get("year"), r.URL.Query().Get("month"))
	if !ok {
		return
	}

	stmt, err := h.engine.Get(r.Context(), memberID, year, month)
	if err != nil {
		writeDomainError(w, "Failed to load statement", err)
		return
	}

	dto := StatementDTO{
		Calculation: toCalculationDTO(stmt.Calculation),
		Adjustments: make([]AdjustmentDTO, len(stmt.Adjustments)),
		NetSalary:   stmt.NetSalary.String(),
	}
	for i, a := range stmt.Adjustments {
		dto.Adjustments[i] = toAdjustmentDTO(a)
	}
	writeJSON(w, http.StatusOK, dto)
}

// AddAdjustment appends one adjustment to a calculation's ledger.
func (h *Handler) AddAdjustment(w http.ResponseWriter, r *http.Request) {
	calcID := chi.URLParam(r, "calcID")

	var req AdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	adj, err := h.engine.AddAdjustment(r.Context(), calcID,
		payroll.AdjustmentType(req.Type), amount, req.Reason, req.AdminID)
	if err != nil {
		writeDomainError(w, "Adjustment failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAdjustmentDTO(*adj))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// PutSetting writes one configuration value and invalidates the cache.
func (h *Handler) PutSetting(w http.ResponseWriter, r *http.Request) {
	var req SettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Key == "" {
		writeError(w, http.StatusBadRequest, "key is required", nil)
		return
	}

	if err := h.Store.SetSetting(r.Context(), req.Key, req.Value); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save setting", err)
		return
	}
	h.settings.Invalidate(req.Key)
	w.WriteHeader(http.StatusNoContent)
}

// CreateHoliday registers a holiday and invalidates the calendar cache.
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req HolidayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	date, err := attendance.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	if err := h.Store.SaveHoliday(r.Context(), date, req.Name); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save holiday", err)
		return
	}
	h.holidays.Invalidate()
	w.WriteHeader(http.StatusCreated)
}

// =============================================================================
// HELPERS
// =============================================================================

func parseYearMonth(w http.ResponseWriter, yearStr, monthStr string) (int, time.Month, bool) {
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return 0, 0, false
	}
	month, err := strconv.Atoi(monthStr)
	if err != nil || month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return 0, 0, false
	}
	return year, time.Month(month), true
}

// writeDomainError maps domain errors onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, attendance.ErrReasonRequired) ||
		errors.Is(err, attendance.ErrInvalidStatus) ||
		errors.Is(err, payroll.ErrInvalidAdjustment):
		writeError(w, http.StatusBadRequest, message, err)
	case attendance.IsNotFound(err) || payroll.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case attendance.IsInvalidState(err) || payroll.IsInvalidState(err):
		writeError(w, http.StatusConflict, message, err)
	case payroll.IsConfigurationError(err):
		writeError(w, http.StatusUnprocessableEntity, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
