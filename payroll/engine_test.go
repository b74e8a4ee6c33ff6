package payroll_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/audit"
	"github.com/warp/attendance-engine/payroll"
	"github.com/warp/attendance-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type payrollFixture struct {
	db     *sqlite.Store
	engine *payroll.Engine
}

func newPayrollFixture(t *testing.T) *payrollFixture {
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	require.NoError(t, db.SaveMember(context.Background(), attendance.Member{
		ID: "mem-1", Name: "Asha", BiometricID: "bio-1", Active: true,
	}))

	return &payrollFixture{
		db:     db,
		engine: payroll.NewEngine(db, db, audit.Nop{}, log),
	}
}

// seedMarch writes attendance for March 2025 and freezes the month.
// March has 31 days; days not listed simply have no record.
func (f *payrollFixture) seedMarch(t *testing.T, memberID string, days map[int]attendance.Status, hours map[int]float64) {
	t.Helper()
	ctx := context.Background()

	for day, status := range days {
		_, err := f.db.UpsertRecord(ctx, attendance.Record{
			MemberID:    memberID,
			Date:        attendance.NewDate(2025, time.March, day),
			Status:      status,
			Source:      attendance.SourceBiometric,
			HoursWorked: hours[day],
		})
		require.NoError(t, err)
	}

	from, to := attendance.MonthRange(2025, time.March)
	require.NoError(t, f.db.CreateFreeze(ctx, attendance.Freeze{
		MemberID: memberID, Year: 2025, Month: time.March, FrozenBy: "admin",
	}, from, to))
}

func (f *payrollFixture) monthlyBand(t *testing.T, memberID, base string) {
	t.Helper()
	b, err := decimal.NewFromString(base)
	require.NoError(t, err)
	require.NoError(t, f.db.AssignBand(context.Background(), payroll.Band{
		MemberID: memberID, Name: "grade-2", MonthlyBase: &b,
	}))
}

func (f *payrollFixture) hourlyBand(t *testing.T, memberID, rate string) {
	t.Helper()
	r, err := decimal.NewFromString(rate)
	require.NoError(t, err)
	require.NoError(t, f.db.AssignBand(context.Background(), payroll.Band{
		MemberID: memberID, Name: "contract", HourlyRate: &r,
	}))
}

// =============================================================================
// PRECONDITION TESTS
// =============================================================================

func TestCalculate_UnfrozenMonth_Rejected(t *testing.T) {
	// GIVEN: March was never frozen
	// WHEN: Calculating March salary
	// THEN: Rejected; payroll reads sealed attendance only

	f := newPayrollFixture(t)
	f.monthlyBand(t, "mem-1", "31000")

	_, err := f.engine.Calculate(context.Background(), "mem-1", 2025, time.March, "payroll-admin")
	assert.ErrorIs(t, err, attendance.ErrNotFrozen)
}

func TestCalculate_NoBand_Rejected(t *testing.T) {
	f := newPayrollFixture(t)
	f.seedMarch(t, "mem-1", map[int]attendance.Status{3: attendance.StatusFullDay}, nil)

	_, err := f.engine.Calculate(context.Background(), "mem-1", 2025, time.March, "payroll-admin")
	assert.ErrorIs(t, err, payroll.ErrBandNotFound)
	assert.True(t, payroll.IsNotFound(err))
}

func TestCalculate_MisconfiguredBand_Rejected(t *testing.T) {
	// GIVEN: A band with neither a monthly base nor an hourly rate
	// WHEN: Calculating
	// THEN: A configuration error naming the band, not a silent zero

	f := newPayrollFixture(t)
	f.seedMarch(t, "mem-1", map[int]attendance.Status{3: attendance.StatusFullDay}, nil)
	require.NoError(t, f.db.AssignBand(context.Background(), payroll.Band{
		MemberID: "mem-1", Name: "broken",
	}))

	_, err := f.engine.Calculate(context.Background(), "mem-1", 2025, time.March, "payroll-admin")
	require.Error(t, err)

	var cfgErr *payroll.BandConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "mem-1", cfgErr.MemberID)
	assert.True(t, payroll.IsConfigurationError(err))
}

func TestCalculate_UnknownMember_Rejected(t *testing.T) {
	f := newPayrollFixture(t)

	_, err := f.engine.Calculate(context.Background(), "ghost", 2025, time.March, "payroll-admin")
	assert.ErrorIs(t, err, attendance.ErrMemberNotFound)
}

// =============================================================================
// CALCULATION MATH
// =============================================================================

func TestCalculate_MonthlyBase_Math(t *testing.T) {
	// GIVEN: Base 31000 over March's 31 days (per-day 1000), attendance of
	//        2 full + 1 half + 1 LOP + 1 holiday + 1 full casual leave
	// WHEN: Calculating
	// THEN: 4.5 weighted days -> gross 4500.00

	f := newPayrollFixture(t)
	f.seedMarch(t, "mem-1", map[int]attendance.Status{
		3: attendance.StatusFullDay,
		4: attendance.StatusFullDay,
		5: attendance.StatusHalfDay,
		6: attendance.StatusLOP,
		7: attendance.StatusHoliday,
		8: attendance.StatusCasualLeaveFull,
	}, map[int]float64{3: 8.5, 4: 8, 5: 4})
	f.monthlyBand(t, "mem-1", "31000")

	calc, err := f.engine.Calculate(context.Background(), "mem-1", 2025, time.March, "payroll-admin")
	require.NoError(t, err)

	assert.Equal(t, "4.5", calc.TotalDaysWorked.String())
	assert.Equal(t, "4500", calc.GrossSalary.String())
	assert.Equal(t, payroll.MethodMonthlyBase, calc.Breakdown.Method)
	assert.Equal(t, 31, calc.Breakdown.DaysInMonth)
	assert.Equal(t, "1000", calc.Breakdown.PerDayRate.String())
	assert.Len(t, calc.Breakdown.Days, 6)
}

func TestCalculate_Hourly_Math(t *testing.T) {
	// GIVEN: Rate 150/h, 8.5 + 4 hours of frozen attendance
	// WHEN: Calculating
	// THEN: gross 1875.00, day weights irrelevant

	f := newPayrollFixture(t)
	f.seedMarch(t, "mem-1", map[int]attendance.Status{
		3: attendance.StatusFullDay,
		5: attendance.StatusHalfDay,
	}, map[int]float64{3: 8.5, 5: 4})
	f.hourlyBand(t, "mem-1", "150")

	calc, err := f.engine.Calculate(context.Background(), "mem-1", 2025, time.March, "payroll-admin")
	require.NoError(t, err)

	assert.Equal(t, "12.5", calc.TotalHoursWorked.String())
	assert.Equal(t, "1875", calc.GrossSalary.String())
	assert.Equal(t, payroll.MethodHourly, calc.Breakdown.Method)
}

func TestCalculate_PendingExceptionDays_Unpaid(t *testing.T) {
	// GIVEN: A frozen month containing a signed-off but uncorrected
	//        PENDING_EXCEPTION day
	// WHEN: Calculating
	// THEN: That day weighs zero

	f := newPayrollFixture(t)
	f.seedMarch(t, "mem-1", map[int]attendance.Status{
		3: attendance.StatusFullDay,
		4: attendance.StatusPendingException,
	}, map[int]float64{3: 8})
	f.monthlyBand(t, "mem-1", "31000")

	calc, err := f.engine.Calculate(context.Background(), "mem-1", 2025, time.March, "payroll-admin")
	require.NoError(t, err)

	assert.Equal(t, "1", calc.TotalDaysWorked.String())
	assert.Equal(t, "1000", calc.GrossSalary.String())
}

// =============================================================================
// IMMUTABILITY TESTS
// =============================================================================

func TestCalculate_Twice_Rejected(t *testing.T) {
	// GIVEN: March already calculated
	// WHEN: Calculating March again
	// THEN: ErrAlreadyCalculated; corrections go through adjustments

	f := newPayrollFixture(t)
	f.seedMarch(t, "mem-1", map[int]attendance.Status{3: attendance.StatusFullDay}, nil)
	f.monthlyBand(t, "mem-1", "31000")
	ctx := context.Background()

	_, err := f.engine.Calculate(ctx, "mem-1", 2025, time.March, "payroll-admin")
	require.NoError(t, err)

	_, err = f.engine.Calculate(ctx, "mem-1", 2025, time.March, "payroll-admin")
	assert.ErrorIs(t, err, payroll.ErrAlreadyCalculated)
	assert.True(t, payroll.IsInvalidState(err))
}

func TestCalculation_SnapshotSurvivesBandChange(t *testing.T) {
	// GIVEN: A sealed March calculation
	// WHEN: The member's band is later reassigned with a higher base
	// THEN: The stored calculation and its band snapshot are unchanged

	f := newPayrollFixture(t)
	f.seedMarch(t, "mem-1", map[int]attendance.Status{3: attendance.StatusFullDay}, nil)
	f.monthlyBand(t, "mem-1", "31000")
	ctx := context.Background()

	_, err := f.engine.Calculate(ctx, "mem-1", 2025, time.March, "payroll-admin")
	require.NoError(t, err)

	f.monthlyBand(t, "mem-1", "62000")

	stored, err := f.db.GetCalculation(ctx, "mem-1", 2025, time.March)
	require.NoError(t, err)
	assert.Equal(t, "1000", stored.GrossSalary.String())
	require.NotNil(t, stored.Breakdown.Band.MonthlyBase)
	assert.Equal(t, "31000", stored.Breakdown.Band.MonthlyBase.String())
}

// =============================================================================
// BATCH CALCULATION
// =============================================================================

func TestCalculateForAll_FailureIsolation(t *testing.T) {
	// GIVEN: Two members; one's March is frozen with a band, the other's isn't
	// WHEN: Calculating for everyone
	// THEN: One success, one recorded failure

	f := newPayrollFixture(t)
	ctx := context.Background()
	require.NoError(t, f.db.SaveMember(ctx, attendance.Member{
		ID: "mem-2", Name: "Ravi", BiometricID: "bio-2", Active: true,
	}))

	f.seedMarch(t, "mem-1", map[int]attendance.Status{3: attendance.StatusFullDay}, nil)
	f.monthlyBand(t, "mem-1", "31000")

	res, err := f.engine.CalculateForAll(ctx, 2025, time.March, "payroll-admin")
	require.NoError(t, err)

	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "mem-2", res.Failures[0].MemberID)
}
