package payroll

import (
	"errors"
	"fmt"
)

var (
	// ErrBandNotFound is returned when a member has no current payment band.
	ErrBandNotFound = errors.New("no current payment band")

	// ErrBandNotConfigured is returned when a band carries neither a
	// monthly base nor an hourly rate.
	ErrBandNotConfigured = errors.New("payment band has no rate configured")

	// ErrAlreadyCalculated is returned when a calculation already exists
	// for the member-month. Payroll, once computed, is permanent;
	// corrections go through the adjustment ledger.
	ErrAlreadyCalculated = errors.New("salary already calculated for month")

	// ErrCalculationNotFound is returned when a referenced calculation is absent.
	ErrCalculationNotFound = errors.New("salary calculation not found")

	// ErrInvalidAdjustment is returned for malformed adjustment entries.
	ErrInvalidAdjustment = errors.New("invalid adjustment")
)

// BandConfigError reports which band was misconfigured.
type BandConfigError struct {
	BandID   string
	MemberID string
}

func (e *BandConfigError) Error() string {
	return fmt.Sprintf("payment band %s for %s has neither monthly base nor hourly rate", e.BandID, e.MemberID)
}

func (e *BandConfigError) Unwrap() error { return ErrBandNotConfigured }

// IsConfigurationError returns true for errors a rate-setup fix (not a
// retry) resolves.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrBandNotConfigured)
}

// IsInvalidState returns true for sealed-state violations.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrAlreadyCalculated)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBandNotFound) || errors.Is(err, ErrCalculationNotFound)
}
