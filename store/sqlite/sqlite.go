/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements all persistence interfaces of the attendance and payroll
  packages with SQLite. In production, the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  attendance.Store:           events, records, exceptions, freezes, members
  payroll.Store:              bands, calculations, adjustments
  attendance.Settings:        key-value settings
  attendance.HolidayCalendar: holiday lookups

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on biometric_events
  - No UPDATE or DELETE statements on salary_adjustments
  - salary_calculations are insert-once (unique index per member-month)

KEY TABLES:
  biometric_events:      Raw device swipes, append-only
  attendance_records:    One row per member-day, frozen flag guarded
  attendance_exceptions: Data-quality flags, one-to-one with records
  freezes:               Month seals; the row's existence is the seal
  payment_bands:         Salary band assignments with effective windows
  salary_calculations:   Immutable monthly gross calculations
  salary_adjustments:    Post-calculation adjustment ledger

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead. The freeze
  and calculation uniqueness invariants additionally rest on unique
  indexes, so they hold regardless of interleaving.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  db, err := sqlite.New("./data/attendance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer db.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - attendance/store.go: Interface definitions
  - payroll/store.go: Interface definitions
  - attendance/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/payroll"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (and migrates) a SQLite store. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	-- Biometric events (append-only)
	CREATE TABLE IF NOT EXISTS biometric_events (
		id TEXT PRIMARY KEY,
		device_id TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		device_timestamp TEXT NOT NULL,
		server_received_at TEXT NOT NULL,
		event_type TEXT NOT NULL,
		raw_payload TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_events_subject_ts
		ON biometric_events(subject_id, device_timestamp);

	-- Attendance records, one per member-day
	CREATE TABLE IF NOT EXISTS attendance_records (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		date TEXT NOT NULL,
		status TEXT NOT NULL,
		source TEXT NOT NULL,
		hours_worked REAL NOT NULL DEFAULT 0,
		first_in TEXT,
		last_out TEXT,
		is_frozen INTEGER NOT NULL DEFAULT 0,
		frozen_at TEXT,
		manual_reason TEXT,
		updated_at TEXT NOT NULL,
		UNIQUE(member_id, date)
	);

	CREATE INDEX IF NOT EXISTS idx_records_member_frozen
		ON attendance_records(member_id, is_frozen);

	-- Exceptions, one-to-one with records
	CREATE TABLE IF NOT EXISTS attendance_exceptions (
		id TEXT PRIMARY KEY,
		record_id TEXT NOT NULL UNIQUE,
		member_id TEXT NOT NULL,
		date TEXT NOT NULL,
		exc_type TEXT NOT NULL,
		description TEXT,
		status TEXT NOT NULL DEFAULT 'PENDING',
		resolution_note TEXT,
		resolved_by TEXT,
		resolved_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_exceptions_member_status
		ON attendance_exceptions(member_id, status, date);

	-- Month freezes: the row's existence is the frozen flag
	CREATE TABLE IF NOT EXISTS freezes (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		frozen_by TEXT NOT NULL,
		frozen_at TEXT NOT NULL,
		UNIQUE(member_id, year, month)
	);

	-- Members (lifecycle owned externally; this is the engine's read model)
	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		biometric_id TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		joined_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_members_biometric
		ON members(biometric_id);

	-- Payment bands
	CREATE TABLE IF NOT EXISTS payment_bands (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		name TEXT NOT NULL,
		monthly_base TEXT,
		hourly_rate TEXT,
		assigned_from TEXT NOT NULL,
		assigned_to TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bands_member
		ON payment_bands(member_id, assigned_to);

	-- Salary calculations: immutable once inserted
	CREATE TABLE IF NOT EXISTS salary_calculations (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		total_days_worked TEXT NOT NULL,
		total_hours_worked TEXT NOT NULL,
		gross_salary TEXT NOT NULL,
		breakdown_json TEXT NOT NULL,
		calculated_by TEXT NOT NULL,
		calculated_at TEXT NOT NULL,
		UNIQUE(member_id, year, month)
	);

	-- Salary adjustments (append-only)
	CREATE TABLE IF NOT EXISTS salary_adjustments (
		id TEXT PRIMARY KEY,
		calculation_id TEXT NOT NULL,
		adj_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		reason TEXT NOT NULL,
		created_by TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_adjustments_calculation
		ON salary_adjustments(calculation_id, created_at);

	-- Settings and holidays (external collaborators' read models)
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS holidays (
		date TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// EVENT STORE (attendance.EventStore)
// =============================================================================

// AppendEvent persists one swipe. There is deliberately no update or
// delete path for events anywhere in this package.
func (s *Store) AppendEvent(ctx context.Context, ev attendance.BiometricEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.ServerReceivedAt.IsZero() {
		ev.ServerReceivedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO biometric_events
		(id, device_id, subject_id, device_timestamp, server_received_at, event_type, raw_payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.DeviceID, ev.SubjectID,
		ev.DeviceTimestamp.UTC().Format(time.RFC3339Nano),
		ev.ServerReceivedAt.UTC().Format(time.RFC3339Nano),
		ev.Type, ev.RawPayload,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// EventsOn returns a subject's events within the day's bounds,
// ascending by device timestamp.
func (s *Store) EventsOn(ctx context.Context, subjectID string, day attendance.Date) ([]attendance.BiometricEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, device_id, subject_id, device_timestamp, server_received_at, event_type, raw_payload
		FROM biometric_events
		WHERE subject_id = ? AND device_timestamp >= ? AND device_timestamp <= ?
		ORDER BY device_timestamp ASC`,
		subjectID,
		day.StartOfDay().UTC().Format(time.RFC3339Nano),
		day.EndOfDay().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []attendance.BiometricEvent
	for rows.Next() {
		var (
			ev         attendance.BiometricEvent
			deviceTS   string
			receivedAt string
			rawPayload sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.DeviceID, &ev.SubjectID, &deviceTS, &receivedAt, &ev.Type, &rawPayload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.DeviceTimestamp, _ = time.Parse(time.RFC3339Nano, deviceTS)
		ev.ServerReceivedAt, _ = time.Parse(time.RFC3339Nano, receivedAt)
		ev.RawPayload = rawPayload.String
		events = append(events, ev)
	}
	return events, rows.Err()
}

// =============================================================================
// RECORD STORE (attendance.RecordStore)
// =============================================================================

// GetRecord returns the record for (member, date).
func (s *Store) GetRecord(ctx context.Context, memberID string, date attendance.Date) (*attendance.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getRecord(ctx, s.db, memberID, date)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRecord(ctx context.Context, db querier, memberID string, date attendance.Date) (*attendance.Record, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, member_id, date, status, source, hours_worked, first_in, last_out,
		       is_frozen, frozen_at, manual_reason, updated_at
		FROM attendance_records
		WHERE member_id = ? AND date = ?`,
		memberID, date.String(),
	)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, attendance.ErrRecordNotFound
	}
	return rec, err
}

// UpsertRecord writes a record, preserving the row ID across upserts.
// The frozen check happens inside the same transaction as the write, so
// an upsert racing a freeze observes the flag and rejects.
func (s *Store) UpsertRecord(ctx context.Context, rec attendance.Record) (*attendance.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := getRecord(ctx, tx, rec.MemberID, rec.Date)
	switch {
	case err == nil:
		if existing.IsFrozen {
			return nil, &attendance.FrozenWriteError{MemberID: rec.MemberID, Date: rec.Date}
		}
		rec.ID = existing.ID
	case err == attendance.ErrRecordNotFound:
		rec.ID = uuid.NewString()
	default:
		return nil, err
	}

	rec.IsFrozen = false
	rec.FrozenAt = nil
	rec.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO attendance_records
		(id, member_id, date, status, source, hours_worked, first_in, last_out,
		 is_frozen, frozen_at, manual_reason, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, ?, ?)
		ON CONFLICT(member_id, date) DO UPDATE SET
			status = excluded.status,
			source = excluded.source,
			hours_worked = excluded.hours_worked,
			first_in = excluded.first_in,
			last_out = excluded.last_out,
			manual_reason = excluded.manual_reason,
			updated_at = excluded.updated_at
		WHERE attendance_records.is_frozen = 0`,
		rec.ID, rec.MemberID, rec.Date.String(), rec.Status, rec.Source, rec.HoursWorked,
		nullTime(rec.FirstIn), nullTime(rec.LastOut),
		nullString(rec.ManualReason), rec.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	stored := rec
	return &stored, nil
}

// RecordsInRange returns a member's records in [from, to], ascending by date.
func (s *Store) RecordsInRange(ctx context.Context, memberID string, from, to attendance.Date) ([]attendance.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, member_id, date, status, source, hours_worked, first_in, last_out,
		       is_frozen, frozen_at, manual_reason, updated_at
		FROM attendance_records
		WHERE member_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC`,
		memberID, from.String(), to.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []attendance.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*attendance.Record, error) {
	var (
		rec          attendance.Record
		date         string
		firstIn      sql.NullString
		lastOut      sql.NullString
		frozenAt     sql.NullString
		manualReason sql.NullString
		updatedAt    string
	)
	err := row.Scan(&rec.ID, &rec.MemberID, &date, &rec.Status, &rec.Source, &rec.HoursWorked,
		&firstIn, &lastOut, &rec.IsFrozen, &frozenAt, &manualReason, &updatedAt)
	if err != nil {
		return nil, err
	}

	rec.Date, _ = attendance.ParseDate(date)
	rec.FirstIn = parseNullTime(firstIn)
	rec.LastOut = parseNullTime(lastOut)
	rec.FrozenAt = parseNullTime(frozenAt)
	rec.ManualReason = manualReason.String
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &rec, nil
}

// =============================================================================
// EXCEPTION STORE (attendance.ExceptionStore)
// =============================================================================

// GetException returns an exception by ID.
func (s *Store) GetException(ctx context.Context, id string) (*attendance.Exception, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exc, err := scanException(s.db.QueryRowContext(ctx, `
		SELECT id, record_id, member_id, date, exc_type, description, status,
		       resolution_note, resolved_by, resolved_at, created_at
		FROM attendance_exceptions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, attendance.ErrExceptionNotFound
	}
	return exc, err
}

// UpsertException creates or refreshes the exception linked to a
// record, keeping the exception ID and created_at stable across
// re-derivations.
func (s *Store) UpsertException(ctx context.Context, exc attendance.Exception) (*attendance.Exception, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if exc.ID == "" {
		exc.ID = uuid.NewString()
	}
	if exc.CreatedAt.IsZero() {
		exc.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attendance_exceptions
		(id, record_id, member_id, date, exc_type, description, status,
		 resolution_note, resolved_by, resolved_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL, NULL, NULL, ?)
		ON CONFLICT(record_id) DO UPDATE SET
			exc_type = excluded.exc_type,
			description = excluded.description,
			status = excluded.status,
			resolution_note = NULL,
			resolved_by = NULL,
			resolved_at = NULL`,
		exc.ID, exc.RecordID, exc.MemberID, exc.Date.String(), exc.Type,
		exc.Description, exc.Status, exc.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert exception: %w", err)
	}

	stored, err := scanException(s.db.QueryRowContext(ctx, `
		SELECT id, record_id, member_id, date, exc_type, description, status,
		       resolution_note, resolved_by, resolved_at, created_at
		FROM attendance_exceptions WHERE record_id = ?`, exc.RecordID))
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// ResolveException marks a pending exception resolved.
func (s *Store) ResolveException(ctx context.Context, exc attendance.Exception) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var resolvedAt any
	if exc.ResolvedAt != nil {
		resolvedAt = exc.ResolvedAt.UTC().Format(time.RFC3339Nano)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE attendance_exceptions
		SET status = ?, resolution_note = ?, resolved_by = ?, resolved_at = ?
		WHERE id = ? AND status = 'PENDING'`,
		attendance.ExceptionResolved, exc.ResolutionNote, exc.ResolvedBy, resolvedAt, exc.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to resolve exception: %w", err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		// Either missing or already resolved; disambiguate.
		var status string
		err := s.db.QueryRowContext(ctx,
			"SELECT status FROM attendance_exceptions WHERE id = ?", exc.ID).Scan(&status)
		if err == sql.ErrNoRows {
			return attendance.ErrExceptionNotFound
		}
		if err != nil {
			return err
		}
		return attendance.ErrExceptionResolved
	}
	return nil
}

// ClearPendingException removes a still-pending exception whose record
// re-derived clean. Resolved exceptions stay as history.
func (s *Store) ClearPendingException(ctx context.Context, recordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"DELETE FROM attendance_exceptions WHERE record_id = ? AND status = 'PENDING'", recordID)
	return err
}

// PendingCount counts pending exceptions for a member in a date range.
func (s *Store) PendingCount(ctx context.Context, memberID string, from, to attendance.Date) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attendance_exceptions
		WHERE member_id = ? AND status = 'PENDING' AND date >= ? AND date <= ?`,
		memberID, from.String(), to.String(),
	).Scan(&count)
	return count, err
}

// ListPending returns all pending exceptions, oldest first.
func (s *Store) ListPending(ctx context.Context) ([]attendance.Exception, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, record_id, member_id, date, exc_type, description, status,
		       resolution_note, resolved_by, resolved_at, created_at
		FROM attendance_exceptions
		WHERE status = 'PENDING'
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []attendance.Exception
	for rows.Next() {
		exc, err := scanException(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *exc)
	}
	return out, rows.Err()
}

func scanException(row rowScanner) (*attendance.Exception, error) {
	var (
		exc            attendance.Exception
		date           string
		description    sql.NullString
		resolutionNote sql.NullString
		resolvedBy     sql.NullString
		resolvedAt     sql.NullString
		createdAt      string
	)
	err := row.Scan(&exc.ID, &exc.RecordID, &exc.MemberID, &date, &exc.Type,
		&description, &exc.Status, &resolutionNote, &resolvedBy, &resolvedAt, &createdAt)
	if err != nil {
		return nil, err
	}

	exc.Date, _ = attendance.ParseDate(date)
	exc.Description = description.String
	exc.ResolutionNote = resolutionNote.String
	exc.ResolvedBy = resolvedBy.String
	exc.ResolvedAt = parseNullTime(resolvedAt)
	exc.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &exc, nil
}

// =============================================================================
// FREEZE STORE (attendance.FreezeStore)
// =============================================================================

// CreateFreeze inserts the freeze row and flips every record in range,
// atomically. The unique constraint turns a duplicate freeze into
// ErrAlreadyFrozen regardless of interleaving.
func (s *Store) CreateFreeze(ctx context.Context, f attendance.Freeze, from, to attendance.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.FrozenAt.IsZero() {
		f.FrozenAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO freezes (id, member_id, year, month, frozen_by, frozen_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		f.ID, f.MemberID, f.Year, int(f.Month), f.FrozenBy,
		f.FrozenAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return attendance.ErrAlreadyFrozen
		}
		return fmt.Errorf("failed to insert freeze: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE attendance_records
		SET is_frozen = 1, frozen_at = ?
		WHERE member_id = ? AND date >= ? AND date <= ? AND is_frozen = 0`,
		f.FrozenAt.Format(time.RFC3339Nano), f.MemberID, from.String(), to.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to mark records frozen: %w", err)
	}

	return tx.Commit()
}

// GetFreeze returns the freeze for a member-month, or nil when the
// month is not frozen.
func (s *Store) GetFreeze(ctx context.Context, memberID string, year int, month time.Month) (*attendance.Freeze, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		f        attendance.Freeze
		monthInt int
		frozenAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, member_id, year, month, frozen_by, frozen_at
		FROM freezes WHERE member_id = ? AND year = ? AND month = ?`,
		memberID, year, int(month),
	).Scan(&f.ID, &f.MemberID, &f.Year, &monthInt, &f.FrozenBy, &frozenAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	f.Month = time.Month(monthInt)
	f.FrozenAt, _ = time.Parse(time.RFC3339Nano, frozenAt)
	return &f, nil
}

// =============================================================================
// MEMBER STORE (attendance.MemberStore)
// =============================================================================

// SaveMember upserts a member. Member lifecycle is owned elsewhere;
// this keeps the engine's read model in sync.
func (s *Store) SaveMember(ctx context.Context, m attendance.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO members (id, name, biometric_id, active, joined_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			biometric_id = excluded.biometric_id,
			active = excluded.active`,
		m.ID, m.Name, m.BiometricID, m.Active, m.JoinedAt.Format(time.RFC3339Nano),
	)
	return err
}

// GetMember returns a member by ID.
func (s *Store) GetMember(ctx context.Context, id string) (*attendance.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		m        attendance.Member
		joinedAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, biometric_id, active, joined_at FROM members WHERE id = ?", id,
	).Scan(&m.ID, &m.Name, &m.BiometricID, &m.Active, &joinedAt)

	if err == sql.ErrNoRows {
		return nil, attendance.ErrMemberNotFound
	}
	if err != nil {
		return nil, err
	}

	m.JoinedAt, _ = time.Parse(time.RFC3339Nano, joinedAt)
	return &m, nil
}

// ListActiveMembers returns the active roster in stable order.
func (s *Store) ListActiveMembers(ctx context.Context) ([]attendance.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, biometric_id, active, joined_at FROM members WHERE active = 1 ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []attendance.Member
	for rows.Next() {
		var (
			m        attendance.Member
			joinedAt string
		)
		if err := rows.Scan(&m.ID, &m.Name, &m.BiometricID, &m.Active, &joinedAt); err != nil {
			return nil, err
		}
		m.JoinedAt, _ = time.Parse(time.RFC3339Nano, joinedAt)
		members = append(members, m)
	}
	return members, rows.Err()
}

// =============================================================================
// BAND STORE (payroll.BandStore)
// =============================================================================

// SaveBand upserts a band row by ID.
func (s *Store) SaveBand(ctx context.Context, b payroll.Band) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveBand(ctx, s.db, b)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveBand(ctx context.Context, db execer, b payroll.Band) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	if b.AssignedFrom.IsZero() {
		b.AssignedFrom = b.CreatedAt
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO payment_bands
		(id, member_id, name, monthly_base, hourly_rate, assigned_from, assigned_to, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			monthly_base = excluded.monthly_base,
			hourly_rate = excluded.hourly_rate,
			assigned_from = excluded.assigned_from,
			assigned_to = excluded.assigned_to`,
		b.ID, b.MemberID, b.Name,
		nullDecimal(b.MonthlyBase), nullDecimal(b.HourlyRate),
		b.AssignedFrom.UTC().Format(time.RFC3339Nano),
		nullTime(b.AssignedTo),
		b.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// AssignBand closes any currently-open band for the member and inserts
// the new one as current, in one transaction.
func (s *Store) AssignBand(ctx context.Context, b payroll.Band) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx,
		"UPDATE payment_bands SET assigned_to = ? WHERE member_id = ? AND assigned_to IS NULL",
		now, b.MemberID,
	); err != nil {
		return fmt.Errorf("failed to close current band: %w", err)
	}

	b.AssignedTo = nil
	if err := saveBand(ctx, tx, b); err != nil {
		return fmt.Errorf("failed to insert band: %w", err)
	}

	return tx.Commit()
}

// CurrentBand returns the member's band with no end date.
func (s *Store) CurrentBand(ctx context.Context, memberID string) (*payroll.Band, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	band, err := scanBand(s.db.QueryRowContext(ctx, `
		SELECT id, member_id, name, monthly_base, hourly_rate, assigned_from, assigned_to, created_at
		FROM payment_bands
		WHERE member_id = ? AND assigned_to IS NULL
		ORDER BY assigned_from DESC LIMIT 1`, memberID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("member %s: %w", memberID, payroll.ErrBandNotFound)
	}
	return band, err
}

// BandsByMember returns every band ever assigned to a member.
func (s *Store) BandsByMember(ctx context.Context, memberID string) ([]payroll.Band, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, member_id, name, monthly_base, hourly_rate, assigned_from, assigned_to, created_at
		FROM payment_bands
		WHERE member_id = ?
		ORDER BY assigned_from ASC`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bands []payroll.Band
	for rows.Next() {
		band, err := scanBand(rows)
		if err != nil {
			return nil, err
		}
		bands = append(bands, *band)
	}
	return bands, rows.Err()
}

func scanBand(row rowScanner) (*payroll.Band, error) {
	var (
		b            payroll.Band
		monthlyBase  sql.NullString
		hourlyRate   sql.NullString
		assignedFrom string
		assignedTo   sql.NullString
		createdAt    string
	)
	err := row.Scan(&b.ID, &b.MemberID, &b.Name, &monthlyBase, &hourlyRate,
		&assignedFrom, &assignedTo, &createdAt)
	if err != nil {
		return nil, err
	}

	b.MonthlyBase = parseNullDecimal(monthlyBase)
	b.HourlyRate = parseNullDecimal(hourlyRate)
	b.AssignedFrom, _ = time.Parse(time.RFC3339Nano, assignedFrom)
	b.AssignedTo = parseNullTime(assignedTo)
	b.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &b, nil
}

// =============================================================================
// CALCULATION STORE (payroll.CalculationStore)
// =============================================================================

// SaveCalculation inserts exactly once per (member, year, month). The
// unique index makes the check-then-insert race safe: the loser gets
// ErrAlreadyCalculated, never a second calculation.
func (s *Store) SaveCalculation(ctx context.Context, c payroll.Calculation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	breakdownJSON, err := json.Marshal(c.Breakdown)
	if err != nil {
		return fmt.Errorf("failed to marshal breakdown: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO salary_calculations
		(id, member_id, year, month, total_days_worked, total_hours_worked,
		 gross_salary, breakdown_json, calculated_by, calculated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.MemberID, c.Year, int(c.Month),
		c.TotalDaysWorked.String(), c.TotalHoursWorked.String(), c.GrossSalary.String(),
		string(breakdownJSON), c.CalculatedBy, c.CalculatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return payroll.ErrAlreadyCalculated
		}
		return fmt.Errorf("failed to save calculation: %w", err)
	}
	return nil
}

// GetCalculation returns the calculation for a member-month.
func (s *Store) GetCalculation(ctx context.Context, memberID string, year int, month time.Month) (*payroll.Calculation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	calc, err := scanCalculation(s.db.QueryRowContext(ctx, `
		SELECT id, member_id, year, month, total_days_worked, total_hours_worked,
		       gross_salary, breakdown_json, calculated_by, calculated_at
		FROM salary_calculations
		WHERE member_id = ? AND year = ? AND month = ?`,
		memberID, year, int(month)))
	if err == sql.ErrNoRows {
		return nil, payroll.ErrCalculationNotFound
	}
	return calc, err
}

// GetCalculationByID returns a calculation by its ID.
func (s *Store) GetCalculationByID(ctx context.Context, id string) (*payroll.Calculation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	calc, err := scanCalculation(s.db.QueryRowContext(ctx, `
		SELECT id, member_id, year, month, total_days_worked, total_hours_worked,
		       gross_salary, breakdown_json, calculated_by, calculated_at
		FROM salary_calculations WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, payroll.ErrCalculationNotFound
	}
	return calc, err
}

func scanCalculation(row rowScanner) (*payroll.Calculation, error) {
	var (
		c             payroll.Calculation
		monthInt      int
		totalDays     string
		totalHours    string
		gross         string
		breakdownJSON string
		calculatedAt  string
	)
	err := row.Scan(&c.ID, &c.MemberID, &c.Year, &monthInt, &totalDays, &totalHours,
		&gross, &breakdownJSON, &c.CalculatedBy, &calculatedAt)
	if err != nil {
		return nil, err
	}

	c.Month = time.Month(monthInt)
	c.TotalDaysWorked = mustDecimal(totalDays)
	c.TotalHoursWorked = mustDecimal(totalHours)
	c.GrossSalary = mustDecimal(gross)
	if err := json.Unmarshal([]byte(breakdownJSON), &c.Breakdown); err != nil {
		return nil, fmt.Errorf("failed to unmarshal breakdown: %w", err)
	}
	c.CalculatedAt, _ = time.Parse(time.RFC3339Nano, calculatedAt)
	return &c, nil
}

// AppendAdjustment appends one adjustment entry. There is no update or
// delete path for adjustments in this package.
func (s *Store) AppendAdjustment(ctx context.Context, a payroll.Adjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO salary_adjustments
		(id, calculation_id, adj_type, amount, reason, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.CalculationID, a.Type, a.Amount.String(), a.Reason, a.CreatedBy,
		a.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to append adjustment: %w", err)
	}
	return nil
}

// Adjustments returns all adjustments for a calculation, oldest first.
func (s *Store) Adjustments(ctx context.Context, calculationID string) ([]payroll.Adjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, calculation_id, adj_type, amount, reason, created_by, created_at
		FROM salary_adjustments
		WHERE calculation_id = ?
		ORDER BY created_at ASC`, calculationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []payroll.Adjustment
	for rows.Next() {
		var (
			a         payroll.Adjustment
			amount    string
			createdAt string
		)
		if err := rows.Scan(&a.ID, &a.CalculationID, &a.Type, &amount, &a.Reason, &a.CreatedBy, &createdAt); err != nil {
			return nil, err
		}
		a.Amount = mustDecimal(amount)
		a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

// =============================================================================
// SETTINGS (attendance.Settings)
// =============================================================================

// Get returns a setting value; ok is false for a missing key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetSetting writes a setting. Callers holding a SettingsCache should
// invalidate the key after this.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	return err
}

// =============================================================================
// HOLIDAYS (attendance.HolidayCalendar)
// =============================================================================

// IsHoliday reports whether a date is in the holiday table.
func (s *Store) IsHoliday(ctx context.Context, date attendance.Date) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM holidays WHERE date = ?", date.String()).Scan(&count)
	return count > 0, err
}

// SaveHoliday records a holiday date. Calendar management is external;
// this keeps the engine's read model in sync.
func (s *Store) SaveHoliday(ctx context.Context, date attendance.Date, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO holidays (date, name) VALUES (?, ?)
		ON CONFLICT(date) DO UPDATE SET name = excluded.name`,
		date.String(), name)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseNullDecimal(s sql.NullString) *decimal.Decimal {
	if !s.Valid || s.String == "" {
		return nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil
	}
	return &d
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
