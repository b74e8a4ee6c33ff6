package attendance

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONTHLY STATISTICS - Read-side summary for a member-month
// =============================================================================

// MonthlyStats summarizes a member's month for display and reporting.
type MonthlyStats struct {
	MemberID    string
	Year        int
	Month       time.Month
	ByStatus    map[Status]int
	TotalHours  float64
	RecordCount int
	IsFrozen    bool
}

// Reporter answers per-member attendance queries.
type Reporter struct {
	records RecordStore
	freezes FreezeStore
	members MemberStore
}

func NewReporter(store Store) *Reporter {
	return &Reporter{records: store, freezes: store, members: store}
}

// Records returns a member's attendance records for a date range.
func (r *Reporter) Records(ctx context.Context, memberID string, from, to Date) ([]Record, error) {
	if _, err := r.members.GetMember(ctx, memberID); err != nil {
		return nil, err
	}
	return r.records.RecordsInRange(ctx, memberID, from, to)
}

// Monthly computes the status tally and hour total for a member-month.
func (r *Reporter) Monthly(ctx context.Context, memberID string, year int, month time.Month) (*MonthlyStats, error) {
	if _, err := r.members.GetMember(ctx, memberID); err != nil {
		return nil, err
	}

	from, to := MonthRange(year, month)
	records, err := r.records.RecordsInRange(ctx, memberID, from, to)
	if err != nil {
		return nil, err
	}

	stats := &MonthlyStats{
		MemberID: memberID,
		Year:     year,
		Month:    month,
		ByStatus: make(map[Status]int),
	}

	hours := decimal.Zero
	for _, rec := range records {
		stats.ByStatus[rec.Status]++
		stats.RecordCount++
		hours = hours.Add(decimal.NewFromFloat(rec.HoursWorked))
	}
	stats.TotalHours, _ = hours.Round(2).Float64()

	freeze, err := r.freezes.GetFreeze(ctx, memberID, year, month)
	if err != nil {
		return nil, err
	}
	stats.IsFrozen = freeze != nil

	return stats, nil
}
