package payroll

import (
	"context"
	"time"
)

// =============================================================================
// PERSISTENCE INTERFACES
// =============================================================================

// BandStore persists payment band assignments.
type BandStore interface {
	// SaveBand creates or updates a band assignment.
	SaveBand(ctx context.Context, b Band) error

	// CurrentBand returns the member's band with no end date, or
	// ErrBandNotFound.
	CurrentBand(ctx context.Context, memberID string) (*Band, error)

	// BandsByMember returns all bands ever assigned to a member.
	BandsByMember(ctx context.Context, memberID string) ([]Band, error)
}

// CalculationStore persists sealed calculations and their adjustments.
//
// INVARIANTS:
//   - SaveCalculation: at most one calculation per (member, year, month),
//     enforced atomically (unique constraint, not read-then-write).
//   - AppendAdjustment: append-only. No update or delete exists.
type CalculationStore interface {
	// SaveCalculation stores a calculation exactly once per key.
	// Returns ErrAlreadyCalculated on a duplicate.
	SaveCalculation(ctx context.Context, c Calculation) error

	// GetCalculation returns the calculation for a member-month, or
	// ErrCalculationNotFound.
	GetCalculation(ctx context.Context, memberID string, year int, month time.Month) (*Calculation, error)

	// GetCalculationByID returns a calculation by ID, or ErrCalculationNotFound.
	GetCalculationByID(ctx context.Context, id string) (*Calculation, error)

	// AppendAdjustment appends one adjustment entry. The ONLY write on
	// adjustments.
	AppendAdjustment(ctx context.Context, a Adjustment) error

	// Adjustments returns all adjustments for a calculation, oldest first.
	Adjustments(ctx context.Context, calculationID string) ([]Adjustment, error)
}

// Store is the full payroll persistence surface.
type Store interface {
	BandStore
	CalculationStore
}
