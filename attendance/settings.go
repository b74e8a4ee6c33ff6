/*
settings.go - External collaborator lookups with explicit caching

PURPOSE:
  The derivation engine depends on two external facts it does not own:
  whether a date is a holiday, and what the day-classification thresholds
  are. Both are consumed through narrow interfaces so the core stays
  testable, and both get an explicit cache type with its own invalidation
  hook - injected, never a package-global.

DEFAULTS:
  FULL_DAY_MIN_HOURS = 8.0
  HALF_DAY_MIN_HOURS = 4.0
*/
package attendance

import (
	"context"
	"strconv"
	"sync"
)

// =============================================================================
// SETTINGS COLLABORATOR
// =============================================================================

const (
	SettingFullDayMinHours = "FULL_DAY_MIN_HOURS"
	SettingHalfDayMinHours = "HALF_DAY_MIN_HOURS"

	DefaultFullDayMinHours = 8.0
	DefaultHalfDayMinHours = 4.0
)

// Settings exposes key-value system settings. A missing key is not an
// error: ok is false and the caller falls back to its default.
type Settings interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
}

// Thresholds are the configurable cutoffs for classifying a worked day.
type Thresholds struct {
	FullDayMinHours float64
	HalfDayMinHours float64
}

// LoadThresholds reads the classification thresholds from settings,
// falling back to the defaults for missing or unparseable values.
func LoadThresholds(ctx context.Context, s Settings) (Thresholds, error) {
	t := Thresholds{
		FullDayMinHours: DefaultFullDayMinHours,
		HalfDayMinHours: DefaultHalfDayMinHours,
	}
	if s == nil {
		return t, nil
	}

	if raw, ok, err := s.Get(ctx, SettingFullDayMinHours); err != nil {
		return t, err
	} else if ok {
		if v, perr := strconv.ParseFloat(raw, 64); perr == nil && v > 0 {
			t.FullDayMinHours = v
		}
	}

	if raw, ok, err := s.Get(ctx, SettingHalfDayMinHours); err != nil {
		return t, err
	} else if ok {
		if v, perr := strconv.ParseFloat(raw, 64); perr == nil && v > 0 {
			t.HalfDayMinHours = v
		}
	}

	return t, nil
}

// =============================================================================
// SETTINGS CACHE - Explicit, injected, owns its invalidation
// =============================================================================

// SettingsCache memoizes settings lookups. Invalidate is the hook the
// settings owner calls after a write.
type SettingsCache struct {
	source Settings

	mu     sync.RWMutex
	values map[string]cachedSetting
}

type cachedSetting struct {
	value string
	ok    bool
}

func NewSettingsCache(source Settings) *SettingsCache {
	return &SettingsCache{source: source, values: make(map[string]cachedSetting)}
}

func (c *SettingsCache) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	if v, hit := c.values[key]; hit {
		c.mu.RUnlock()
		return v.value, v.ok, nil
	}
	c.mu.RUnlock()

	value, ok, err := c.source.Get(ctx, key)
	if err != nil {
		return "", false, err
	}

	c.mu.Lock()
	c.values[key] = cachedSetting{value: value, ok: ok}
	c.mu.Unlock()
	return value, ok, nil
}

// Invalidate drops a single cached key.
func (c *SettingsCache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.values, key)
	c.mu.Unlock()
}

// InvalidateAll drops the whole cache.
func (c *SettingsCache) InvalidateAll() {
	c.mu.Lock()
	c.values = make(map[string]cachedSetting)
	c.mu.Unlock()
}

// =============================================================================
// HOLIDAY COLLABORATOR
// =============================================================================

// HolidayCalendar answers the single question derivation asks first:
// is this date a holiday? Calendar CRUD lives elsewhere.
type HolidayCalendar interface {
	IsHoliday(ctx context.Context, date Date) (bool, error)
}

// HolidayCache memoizes holiday lookups per date.
type HolidayCache struct {
	source HolidayCalendar

	mu    sync.RWMutex
	dates map[string]bool
}

func NewHolidayCache(source HolidayCalendar) *HolidayCache {
	return &HolidayCache{source: source, dates: make(map[string]bool)}
}

func (c *HolidayCache) IsHoliday(ctx context.Context, date Date) (bool, error) {
	key := date.String()

	c.mu.RLock()
	if v, hit := c.dates[key]; hit {
		c.mu.RUnlock()
		return v, nil
	}
	c.mu.RUnlock()

	v, err := c.source.IsHoliday(ctx, date)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	c.dates[key] = v
	c.mu.Unlock()
	return v, nil
}

// Invalidate drops all cached dates. Holiday writes are rare enough
// that per-date invalidation isn't worth the bookkeeping.
func (c *HolidayCache) Invalidate() {
	c.mu.Lock()
	c.dates = make(map[string]bool)
	c.mu.Unlock()
}
