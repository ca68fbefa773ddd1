package budget_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/envelope-engine/budget"
	"github.com/warp/envelope-engine/generic"
	"github.com/warp/envelope-engine/generic/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func d(month time.Month, day int) generic.TimePoint {
	return generic.NewTimePoint(2025, month, day)
}

func spend(category generic.CategoryID, at generic.TimePoint, dollars int64, duration int, desc string) generic.Transaction {
	return generic.Transaction{
		Date:        at,
		Category:    category,
		Value:       generic.Dollars(dollars),
		Duration:    duration,
		Description: desc,
	}
}

func household() []generic.Transaction {
	return []generic.Transaction{
		spend(budget.Salary, d(time.January, 1), 4200, 1, "ACME payroll"),
		spend(budget.Rent, d(time.January, 1), -1850, 1, "Landlord"),
		spend(budget.Groceries, d(time.January, 4), -92, 1, "Market"),
		spend(budget.Insurance, d(time.January, 10), -1440, 365, "Annual car insurance"),
		spend(budget.Transfer, d(time.January, 15), -500, 1, "To savings account"),
		spend(budget.Transfer, d(time.January, 15), 500, 1, "From checking"),
		spend(budget.DiningOut, d(time.January, 20), -64, 1, "Trattoria"),
		spend(budget.Salary, d(time.February, 1), 4200, 1, "ACME payroll"),
		spend(budget.Rent, d(time.February, 1), -1850, 1, "Landlord"),
		spend(budget.Groceries, d(time.February, 8), -130, 1, "Market"),
	}
}

// =============================================================================
// CATEGORIES AND PRESETS
// =============================================================================

func TestDefaultCategories_CoverPresets(t *testing.T) {
	set := budget.DefaultCategories()
	envelopes := budget.DefaultEnvelopes()

	require.NoError(t, set.ValidateEnvelopes(envelopes))
	assert.Equal(t, set.Len(), len(envelopes))
	assert.ElementsMatch(t, []generic.CategoryID{budget.CreditCardPayment, budget.Transfer}, set.ByKind(generic.KindInternal))
}

func TestCategories_Extend(t *testing.T) {
	set, err := budget.Categories(generic.Category{ID: "pets", Name: "Pets", Kind: generic.KindExpense})
	require.NoError(t, err)
	assert.True(t, set.Contains("pets"))

	_, err = budget.Categories(generic.Category{ID: budget.Rent})
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
}

func TestPresets_DeriveDailyRefill(t *testing.T) {
	rent := budget.Bill(budget.Rent, generic.Dollars(1850))
	assert.True(t, rent.Critical)
	assert.Equal(t, generic.Cents(6167), rent.DailyRefill)

	travel := budget.Sinking(budget.Travel, generic.Dollars(300), generic.Dollars(3000))
	assert.False(t, travel.Critical)
	assert.Equal(t, generic.Dollars(10), travel.DailyRefill)
	assert.Equal(t, generic.Dollars(3000), travel.Capacity)
}

// =============================================================================
// PLANNER
// =============================================================================

func TestPlanner_ParallelMatchesSequential(t *testing.T) {
	// GIVEN: Two months of household transactions
	// WHEN: Running capped refill through the planner and through the engine
	// THEN: Both produce the same dataset

	ctx := context.Background()
	in := generic.SimulationInput{
		Policy:       generic.PolicyCappedRefill,
		Categories:   budget.DefaultCategories(),
		Envelopes:    budget.DefaultEnvelopes(),
		Transactions: household(),
	}

	planner := budget.NewPlanner(nil, generic.CalendarOptions{}, 3, quietLogger())
	parallel, err := planner.Simulate(ctx, in)
	require.NoError(t, err)

	sequential, err := planner.Engine.Run(ctx, in)
	require.NoError(t, err)

	assert.Nil(t, generic.Reconcile(parallel.Dataset, sequential.Dataset))
	assert.Len(t, parallel.Timelines, len(budget.DefaultEnvelopes()))
}

func TestPlanner_SlushFundFromLedger(t *testing.T) {
	ctx := context.Background()
	ledger := budget.NewImportLedger(store.NewMemory(), budget.DefaultCategories())
	_, err := ledger.Import(ctx, household(), nil)
	require.NoError(t, err)

	planner := budget.NewPlanner(ledger, generic.CalendarOptions{}, 0, quietLogger())
	result, err := planner.Simulate(ctx, generic.SimulationInput{
		Policy:     generic.PolicySlushFund,
		Categories: budget.DefaultCategories(),
		Envelopes:  budget.DefaultEnvelopes(),
	})
	require.NoError(t, err)

	run := budget.NewRun(result)
	assert.NotEmpty(t, run.ID)
	assert.Len(t, run.Snapshots, len(result.Slush.Months))
	assert.Equal(t, result.Period, run.Period)

	require.NotNil(t, result.Slush)
	for _, m := range result.Slush.Months {
		snap := result.Slush.Snapshots[m]
		internal, _ := snap.Check(generic.CheckInternal)
		assert.True(t, internal.Passed(), "transfers net to zero in %s", m)
		assert.Equal(t, snap.Rows[budget.Rent].Capacity, snap.Rows[budget.Rent].Final, "rent is critical in %s", m)
	}
}

func TestPlanner_PropagatesCategoryErrors(t *testing.T) {
	planner := budget.NewPlanner(nil, generic.CalendarOptions{MaxDays: 10}, 2, quietLogger())
	_, err := planner.Simulate(context.Background(), generic.SimulationInput{
		Policy:       generic.PolicyCappedRefill,
		Categories:   budget.DefaultCategories(),
		Envelopes:    budget.DefaultEnvelopes(),
		Transactions: household(),
	})
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
}

// =============================================================================
// IMPORT LEDGER
// =============================================================================

func TestImportLedger_ReimportIsSkipped(t *testing.T) {
	// GIVEN: A bank export imported once
	// WHEN: Importing the same rows again
	// THEN: Nothing new is added; every row is reported as skipped

	ctx := context.Background()
	ledger := budget.NewImportLedger(store.NewMemory(), budget.DefaultCategories())

	rows := 0
	first, err := ledger.Import(ctx, household(), func() { rows++ })
	require.NoError(t, err)
	assert.Equal(t, len(household()), first.Added)
	assert.Equal(t, len(household()), rows)
	assert.Len(t, first.IDs, first.Added)

	second, err := ledger.Import(ctx, household(), nil)
	require.NoError(t, err)
	assert.Zero(t, second.Added)
	assert.Equal(t, len(household()), second.Skipped)

	all, err := ledger.Transactions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(household()))
}

func TestImportLedger_RejectsUnknownCategory(t *testing.T) {
	ledger := budget.NewImportLedger(store.NewMemory(), budget.DefaultCategories())
	_, err := ledger.Import(context.Background(), []generic.Transaction{
		spend("casino", d(time.March, 3), -50, 1, "Slots"),
	}, nil)
	assert.ErrorIs(t, err, generic.ErrUnknownCategory)
}

func TestImportLedger_FailedImportLeavesNothingBehind(t *testing.T) {
	// GIVEN: An export whose second row names an unknown category
	// WHEN: Importing it into a transactional store
	// THEN: The import fails and the good first row is rolled back

	ctx := context.Background()
	ledger := budget.NewImportLedger(store.NewTxMemory(), budget.DefaultCategories())

	res, err := ledger.Import(ctx, []generic.Transaction{
		spend(budget.Groceries, d(time.March, 2), -40, 1, "Market"),
		spend("casino", d(time.March, 3), -50, 1, "Slots"),
	}, nil)
	require.ErrorIs(t, err, generic.ErrUnknownCategory)
	assert.Contains(t, err.Error(), "row 2")
	assert.Zero(t, res.Added)

	all, err := ledger.Transactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	res, err = ledger.Import(ctx, []generic.Transaction{
		spend(budget.Groceries, d(time.March, 2), -40, 1, "Market"),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added, "the rolled-back row is not a duplicate")
}

func TestImportLedger_PlainStoreKeepsEarlierRows(t *testing.T) {
	ctx := context.Background()
	ledger := budget.NewImportLedger(store.NewMemory(), budget.DefaultCategories())

	_, err := ledger.Import(ctx, []generic.Transaction{
		spend(budget.Groceries, d(time.March, 2), -40, 1, "Market"),
		spend("casino", d(time.March, 3), -50, 1, "Slots"),
	}, nil)
	require.ErrorIs(t, err, generic.ErrUnknownCategory)

	all, err := ledger.Transactions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestDeriveKey_Deterministic(t *testing.T) {
	a := spend(budget.Groceries, d(time.March, 3), -50, 1, "Market")
	b := a
	b.Description = "Bakery"

	assert.Equal(t, budget.DeriveKey(a), budget.DeriveKey(a))
	assert.NotEqual(t, budget.DeriveKey(a), budget.DeriveKey(b))

	prepared := budget.Prepare(a)
	assert.NotEmpty(t, prepared.ID)
	assert.Equal(t, budget.DeriveKey(a), prepared.IdempotencyKey)
}
