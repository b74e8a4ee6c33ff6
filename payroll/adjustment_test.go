package payroll_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/payroll"
)

// =============================================================================
// ADJUSTMENT LEDGER TESTS
// =============================================================================

func seededCalculation(t *testing.T, f *payrollFixture) *payroll.Calculation {
	t.Helper()
	f.seedMarch(t, "mem-1", map[int]attendance.Status{3: attendance.StatusFullDay}, nil)
	f.monthlyBand(t, "mem-1", "31000")

	calc, err := f.engine.Calculate(context.Background(), "mem-1", 2025, time.March, "payroll-admin")
	require.NoError(t, err)
	return calc
}

func TestAddAdjustment_Validation(t *testing.T) {
	f := newPayrollFixture(t)
	calc := seededCalculation(t, f)
	ctx := context.Background()

	// Unknown type
	_, err := f.engine.AddAdjustment(ctx, calc.ID, "REFUND", decimal.NewFromInt(100), "r", "admin")
	assert.ErrorIs(t, err, payroll.ErrInvalidAdjustment)

	// Zero amount
	_, err = f.engine.AddAdjustment(ctx, calc.ID, payroll.AdjustmentBonus, decimal.Zero, "r", "admin")
	assert.ErrorIs(t, err, payroll.ErrInvalidAdjustment)

	// Missing reason
	_, err = f.engine.AddAdjustment(ctx, calc.ID, payroll.AdjustmentBonus, decimal.NewFromInt(100), "", "admin")
	assert.ErrorIs(t, err, payroll.ErrInvalidAdjustment)

	// Unknown calculation
	_, err = f.engine.AddAdjustment(ctx, "nope", payroll.AdjustmentBonus, decimal.NewFromInt(100), "r", "admin")
	assert.ErrorIs(t, err, payroll.ErrCalculationNotFound)
}

func TestStatement_NetIsDerivedOnRead(t *testing.T) {
	// GIVEN: Gross 1000 plus a +500 bonus and a -200 deduction
	// WHEN: Reading the statement
	// THEN: Net is 1300, gross is untouched, entries appear in order

	f := newPayrollFixture(t)
	calc := seededCalculation(t, f)
	ctx := context.Background()

	_, err := f.engine.AddAdjustment(ctx, calc.ID, payroll.AdjustmentBonus,
		decimal.NewFromInt(500), "festival bonus", "admin")
	require.NoError(t, err)
	_, err = f.engine.AddAdjustment(ctx, calc.ID, payroll.AdjustmentDeduction,
		decimal.NewFromInt(-200), "canteen dues", "admin")
	require.NoError(t, err)

	stmt, err := f.engine.Get(ctx, "mem-1", 2025, time.March)
	require.NoError(t, err)

	assert.Equal(t, "1000", stmt.Calculation.GrossSalary.String())
	assert.Equal(t, "1300", stmt.NetSalary.String())
	require.Len(t, stmt.Adjustments, 2)
	assert.Equal(t, payroll.AdjustmentBonus, stmt.Adjustments[0].Type)
	assert.Equal(t, payroll.AdjustmentDeduction, stmt.Adjustments[1].Type)
}

func TestAdjustments_NeverMutateCalculation(t *testing.T) {
	// GIVEN: A sealed calculation
	// WHEN: Appending adjustments
	// THEN: The stored calculation row is byte-for-byte the same

	f := newPayrollFixture(t)
	calc := seededCalculation(t, f)
	ctx := context.Background()

	before, err := f.db.GetCalculationByID(ctx, calc.ID)
	require.NoError(t, err)

	_, err = f.engine.AddAdjustment(ctx, calc.ID, payroll.AdjustmentCorrection,
		decimal.NewFromInt(-50), "overtime double-counted", "admin")
	require.NoError(t, err)

	after, err := f.db.GetCalculationByID(ctx, calc.ID)
	require.NoError(t, err)

	assert.Equal(t, before.GrossSalary.String(), after.GrossSalary.String())
	assert.Equal(t, before.CalculatedAt, after.CalculatedAt)
	assert.Equal(t, before.Breakdown, after.Breakdown)
}

// =============================================================================
// NET SALARY PROPERTY
// =============================================================================

func TestNetSalary_Property(t *testing.T) {
	// Net is always gross plus the signed sum of the ledger, for any
	// gross and any sequence of adjustments.
	rapid.Check(t, func(t *rapid.T) {
		gross := decimal.New(rapid.Int64Range(0, 10_000_000).Draw(t, "gross"), -2)

		n := rapid.IntRange(0, 20).Draw(t, "n")
		adjustments := make([]payroll.Adjustment, n)
		sum := decimal.Zero
		for i := range adjustments {
			amount := decimal.New(rapid.Int64Range(-1_000_000, 1_000_000).Draw(t, "amount"), -2)
			adjustments[i] = payroll.Adjustment{Type: payroll.AdjustmentCorrection, Amount: amount}
			sum = sum.Add(amount)
		}

		net := payroll.NetSalary(gross, adjustments)
		assert.True(t, net.Equal(gross.Add(sum)),
			"net %s != gross %s + sum %s", net, gross, sum)
	})
}
