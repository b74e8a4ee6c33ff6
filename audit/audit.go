/*
Package audit is the fire-and-forget trail of who did what.

PURPOSE:
  Every state-changing operation in the attendance and payroll engines
  records an audit event: actor, action, the entity touched, and an
  optional before/after image. Audit is observability, not a
  transactional participant - a failing sink must never abort the
  caller's operation, so Record has no error to return and
  implementations swallow (and log) their own failures.

IMPLEMENTATIONS:
  - Logger: structured logrus output
  - Memory: in-process buffer, used by tests to assert on the trail
  - Nop:    discard
*/
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Action names follow "entity.verb".
const (
	ActionRecordCorrected    = "attendance.corrected"
	ActionLeaveOverride      = "attendance.leave_override"
	ActionExceptionResolved  = "exception.resolved"
	ActionMonthFrozen        = "month.frozen"
	ActionSalaryCalculated   = "salary.calculated"
	ActionAdjustmentAppended = "salary.adjustment_appended"
)

// Event is one audited action.
type Event struct {
	At         time.Time
	Actor      string
	Action     string
	EntityType string
	EntityID   string
	Before     map[string]any
	After      map[string]any
}

// Recorder is the sink. Best-effort by contract: implementations must
// not propagate failures to the caller.
type Recorder interface {
	Record(ctx context.Context, e Event)
}

// =============================================================================
// LOGGER RECORDER
// =============================================================================

// Logger writes audit events as structured log lines.
type Logger struct {
	Log logrus.FieldLogger
}

func NewLogger(log logrus.FieldLogger) *Logger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Logger{Log: log}
}

func (l *Logger) Record(_ context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	l.Log.WithFields(logrus.Fields{
		"audit":       true,
		"actor":       e.Actor,
		"action":      e.Action,
		"entity_type": e.EntityType,
		"entity_id":   e.EntityID,
		"before":      e.Before,
		"after":       e.After,
		"at":          e.At.Format(time.RFC3339),
	}).Info("audit event")
}

// =============================================================================
// MEMORY RECORDER (tests)
// =============================================================================

// Memory buffers events in process.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Record(_ context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	m.mu.Lock()
	m.events = append(m.events, e)
	m.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// =============================================================================
// NOP RECORDER
// =============================================================================

type Nop struct{}

func (Nop) Record(context.Context, Event) {}
