// Package store provides an in-memory attendance.Store for tests and dev.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/attendance-engine/attendance"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	events     map[string][]attendance.BiometricEvent // subjectID -> events
	records    map[recordKey]*attendance.Record
	exceptions map[string]*attendance.Exception // by exception ID
	byRecord   map[string]string                // recordID -> exceptionID
	freezes    map[freezeKey]*attendance.Freeze
	members    map[string]*attendance.Member
	memberIDs  []string // insertion order, for stable batch iteration
}

type recordKey struct {
	MemberID string
	Date     string
}

type freezeKey struct {
	MemberID string
	Year     int
	Month    time.Month
}

func NewMemory() *Memory {
	return &Memory{
		events:     make(map[string][]attendance.BiometricEvent),
		records:    make(map[recordKey]*attendance.Record),
		exceptions: make(map[string]*attendance.Exception),
		byRecord:   make(map[string]string),
		freezes:    make(map[freezeKey]*attendance.Freeze),
		members:    make(map[string]*attendance.Member),
	}
}

// =============================================================================
// EVENTS (append-only)
// =============================================================================

func (m *Memory) AppendEvent(_ context.Context, ev attendance.BiometricEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.ServerReceivedAt.IsZero() {
		ev.ServerReceivedAt = time.Now().UTC()
	}
	m.events[ev.SubjectID] = append(m.events[ev.SubjectID], ev)
	return nil
}

func (m *Memory) EventsOn(_ context.Context, subjectID string, day attendance.Date) ([]attendance.BiometricEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	start, end := day.StartOfDay(), day.EndOfDay()
	var out []attendance.BiometricEvent
	for _, ev := range m.events[subjectID] {
		if !ev.DeviceTimestamp.Before(start) && !ev.DeviceTimestamp.After(end) {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DeviceTimestamp.Before(out[j].DeviceTimestamp)
	})
	return out, nil
}

// =============================================================================
// RECORDS
// =============================================================================

func (m *Memory) GetRecord(_ context.Context, memberID string, date attendance.Date) (*attendance.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[recordKey{MemberID: memberID, Date: date.String()}]
	if !ok {
		return nil, attendance.ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *Memory) UpsertRecord(_ context.Context, rec attendance.Record) (*attendance.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := recordKey{MemberID: rec.MemberID, Date: rec.Date.String()}
	if existing, ok := m.records[key]; ok {
		if existing.IsFrozen {
			return nil, &attendance.FrozenWriteError{MemberID: rec.MemberID, Date: rec.Date}
		}
		rec.ID = existing.ID
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.UpdatedAt = time.Now().UTC()

	stored := rec
	m.records[key] = &stored
	cp := stored
	return &cp, nil
}

func (m *Memory) RecordsInRange(_ context.Context, memberID string, from, to attendance.Date) ([]attendance.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []attendance.Record
	for _, rec := range m.records {
		if rec.MemberID != memberID {
			continue
		}
		if rec.Date.Before(from) || rec.Date.After(to) {
			continue
		}
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// =============================================================================
// EXCEPTIONS
// =============================================================================

func (m *Memory) GetException(_ context.Context, id string) (*attendance.Exception, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	exc, ok := m.exceptions[id]
	if !ok {
		return nil, attendance.ErrExceptionNotFound
	}
	cp := *exc
	return &cp, nil
}

func (m *Memory) UpsertException(_ context.Context, exc attendance.Exception) (*attendance.Exception, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existingID, ok := m.byRecord[exc.RecordID]; ok {
		existing := m.exceptions[existingID]
		exc.ID = existing.ID
		exc.CreatedAt = existing.CreatedAt
	}
	if exc.ID == "" {
		exc.ID = uuid.NewString()
	}
	if exc.CreatedAt.IsZero() {
		exc.CreatedAt = time.Now().UTC()
	}

	stored := exc
	m.exceptions[exc.ID] = &stored
	m.byRecord[exc.RecordID] = exc.ID
	cp := stored
	return &cp, nil
}

func (m *Memory) ResolveException(_ context.Context, exc attendance.Exception) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.exceptions[exc.ID]
	if !ok {
		return attendance.ErrExceptionNotFound
	}
	if existing.Status == attendance.ExceptionResolved {
		return attendance.ErrExceptionResolved
	}

	stored := exc
	m.exceptions[exc.ID] = &stored
	return nil
}

func (m *Memory) ClearPendingException(_ context.Context, recordID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byRecord[recordID]
	if !ok {
		return nil
	}
	if m.exceptions[id].Status != attendance.ExceptionPending {
		return nil
	}
	delete(m.exceptions, id)
	delete(m.byRecord, recordID)
	return nil
}

func (m *Memory) PendingCount(_ context.Context, memberID string, from, to attendance.Date) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, exc := range m.exceptions {
		if exc.MemberID != memberID || exc.Status != attendance.ExceptionPending {
			continue
		}
		if exc.Date.Before(from) || exc.Date.After(to) {
			continue
		}
		count++
	}
	return count, nil
}

func (m *Memory) ListPending(_ context.Context) ([]attendance.Exception, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []attendance.Exception
	for _, exc := range m.exceptions {
		if exc.Status == attendance.ExceptionPending {
			out = append(out, *exc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// =============================================================================
// FREEZES
// =============================================================================

func (m *Memory) CreateFreeze(_ context.Context, f attendance.Freeze, from, to attendance.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := freezeKey{MemberID: f.MemberID, Year: f.Year, Month: f.Month}
	if _, ok := m.freezes[key]; ok {
		return attendance.ErrAlreadyFrozen
	}

	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	stored := f
	m.freezes[key] = &stored

	for _, rec := range m.records {
		if rec.MemberID != f.MemberID || rec.Date.Before(from) || rec.Date.After(to) {
			continue
		}
		frozenAt := f.FrozenAt
		rec.IsFrozen = true
		rec.FrozenAt = &frozenAt
	}
	return nil
}

func (m *Memory) GetFreeze(_ context.Context, memberID string, year int, month time.Month) (*attendance.Freeze, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.freezes[freezeKey{MemberID: memberID, Year: year, Month: month}]
	if !ok {
		return nil, nil
	}
	cp := *f
	return &cp, nil
}

// =============================================================================
// MEMBERS
// =============================================================================

// SaveMember seeds the registry. Not part of attendance.Store: member
// management is external, tests just need a way to create fixtures.
func (m *Memory) SaveMember(_ context.Context, member attendance.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.members[member.ID]; !ok {
		m.memberIDs = append(m.memberIDs, member.ID)
	}
	stored := member
	m.members[member.ID] = &stored
	return nil
}

func (m *Memory) GetMember(_ context.Context, id string) (*attendance.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	member, ok := m.members[id]
	if !ok {
		return nil, attendance.ErrMemberNotFound
	}
	cp := *member
	return &cp, nil
}

func (m *Memory) ListActiveMembers(_ context.Context) ([]attendance.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []attendance.Member
	for _, id := range m.memberIDs {
		if member := m.members[id]; member.Active {
			out = append(out, *member)
		}
	}
	return out, nil
}

// =============================================================================
// TEST COLLABORATORS - Settings and holidays as plain maps
// =============================================================================

// MapSettings is a Settings backed by a map.
type MapSettings map[string]string

func (s MapSettings) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := s[key]
	return v, ok, nil
}

// HolidaySet is a HolidayCalendar backed by a set of dates.
type HolidaySet map[string]bool

func (h HolidaySet) Add(d attendance.Date) { h[d.String()] = true }

func (h HolidaySet) IsHoliday(_ context.Context, d attendance.Date) (bool, error) {
	return h[d.String()], nil
}
