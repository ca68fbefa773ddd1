package generic_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/envelope-engine/generic"
	"github.com/warp/envelope-engine/generic/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func testCategories(t *testing.T) generic.CategorySet {
	t.Helper()
	set, err := generic.NewCategorySet(
		generic.Category{ID: "rent", Name: "Rent", Kind: generic.KindExpense},
		generic.Category{ID: "groceries", Name: "Groceries", Kind: generic.KindExpense},
		generic.Category{ID: "salary", Name: "Salary", Kind: generic.KindIncome},
		generic.Category{ID: "transfer", Name: "Transfer", Kind: generic.KindInternal},
		generic.Category{ID: "todo", Name: "To do", Kind: generic.KindTodo},
	)
	require.NoError(t, err)
	return set
}

func testEnvelopes() map[generic.CategoryID]generic.EnvelopeConfig {
	return map[generic.CategoryID]generic.EnvelopeConfig{
		"rent": rentConfig(),
		"groceries": generic.EnvelopeConfig{
			Category:      "groceries",
			Capacity:      generic.Dollars(400),
			MonthlyRefill: generic.Dollars(400),
		}.WithDerivedRefill(),
		"salary": {Category: "salary"},
	}
}

func newTestEngine(t *testing.T, txs ...generic.Transaction) *generic.SimulationEngine {
	t.Helper()
	ledger := generic.NewLedger(store.NewMemory(), testCategories(t))
	require.NoError(t, ledger.AppendBatch(context.Background(), txs))
	return &generic.SimulationEngine{Ledger: ledger}
}

func quarterTransactions() []generic.Transaction {
	return []generic.Transaction{
		tx("salary", 1, generic.Dollars(3000), 1),
		tx("rent", 1, generic.Dollars(-1850), 1),
		tx("groceries", 2, generic.Dollars(-85), 1),
		tx("groceries", 16, generic.Dollars(-240), 20),
		tx("salary", 32, generic.Dollars(3000), 1),
		tx("rent", 32, generic.Dollars(-1850), 1),
		tx("groceries", 40, generic.Dollars(-130), 1),
		tx("salary", 60, generic.Dollars(3000), 1),
		tx("rent", 60, generic.Dollars(-1850), 1),
	}
}

// =============================================================================
// CAPPED REFILL RUNS
// =============================================================================

func TestEngine_CappedRefillFromLedger(t *testing.T) {
	// GIVEN: A quarter of transactions stored in the ledger
	// WHEN: Running the capped refill policy without an explicit period
	// THEN: The window spans all transactions and every envelope has a timeline

	engine := newTestEngine(t, quarterTransactions()...)

	result, err := engine.Run(context.Background(), generic.SimulationInput{
		Policy:     generic.PolicyCappedRefill,
		Categories: testCategories(t),
		Envelopes:  testEnvelopes(),
	})
	require.NoError(t, err)

	assert.True(t, result.Period.Start.Equal(day(1)))
	assert.True(t, result.Period.End.Equal(day(60)))
	require.Len(t, result.Timelines, 3)
	for id, tl := range result.Timelines {
		assert.Equal(t, 60, len(tl.Balances), id)
		for i, b := range tl.Balances {
			assert.False(t, b.GreaterThan(tl.Capacity), "%s day %d over capacity", id, i+1)
		}
	}
	assert.Nil(t, result.Slush)
	assert.Nil(t, result.FailedChecks())

	b, ok := result.Dataset.Get(day(1).String(), generic.SeriesBalance, "rent")
	require.True(t, ok)
	assert.Equal(t, generic.Cents(6167), b)
}

func TestEngine_Idempotent(t *testing.T) {
	engine := newTestEngine(t, quarterTransactions()...)
	in := generic.SimulationInput{
		Policy:     generic.PolicySlushFund,
		Categories: testCategories(t),
		Envelopes:  testEnvelopes(),
	}

	first, err := engine.Run(context.Background(), in)
	require.NoError(t, err)
	second, err := engine.Run(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, first.Dataset, second.Dataset)
	assert.Nil(t, generic.Reconcile(first.Dataset, second.Dataset))
}

// =============================================================================
// SLUSH FUND RUNS
// =============================================================================

func TestEngine_SlushFundInlineTransactions(t *testing.T) {
	// GIVEN: Inline transactions (ledger untouched) over an explicit Q1 window
	// THEN: One snapshot per month and money is conserved every month

	engine := &generic.SimulationEngine{}
	q1 := generic.Period{Start: jan.First(), End: jan.Next().Next().Last()}

	result, err := engine.Run(context.Background(), generic.SimulationInput{
		Policy:       generic.PolicySlushFund,
		Categories:   testCategories(t),
		Envelopes:    testEnvelopes(),
		Transactions: quarterTransactions(),
		Period:       &q1,
	})
	require.NoError(t, err)

	require.Len(t, result.Slush.Snapshots, 3)
	for m, snap := range result.Slush.Snapshots {
		assert.Equal(t, snap.Total.AfterTransactions, snap.Total.Final, m.String())
	}
	_, ok := result.Dataset.Get("2025-03", "Final", generic.TotalKey)
	assert.True(t, ok)
}

// =============================================================================
// BOUNDARY VALIDATION
// =============================================================================

func TestEngine_RejectsBadInput(t *testing.T) {
	engine := &generic.SimulationEngine{}
	ctx := context.Background()
	base := func() generic.SimulationInput {
		return generic.SimulationInput{
			Policy:       generic.PolicyCappedRefill,
			Categories:   testCategories(t),
			Envelopes:    testEnvelopes(),
			Transactions: []generic.Transaction{tx("rent", 1, generic.Dollars(-1), 1)},
		}
	}

	in := base()
	in.Policy = "fifo"
	_, err := engine.Run(ctx, in)
	assert.ErrorIs(t, err, generic.ErrInvalidInput, "unknown policy")

	in = base()
	in.Transactions = append(in.Transactions, tx("casino", 2, generic.Dollars(-1), 1))
	_, err = engine.Run(ctx, in)
	assert.ErrorIs(t, err, generic.ErrUnknownCategory)

	in = base()
	in.Transactions = append(in.Transactions, tx("todo", 2, generic.Dollars(-1), 1))
	_, err = engine.Run(ctx, in)
	assert.ErrorIs(t, err, generic.ErrInvalidInput, "category without envelope")

	in = base()
	in.Envelopes["rent"] = generic.EnvelopeConfig{Category: "rent", Capacity: generic.Dollars(-5)}
	_, err = engine.Run(ctx, in)
	assert.ErrorIs(t, err, generic.ErrInvalidInput, "negative capacity")

	in = base()
	in.Transactions = []generic.Transaction{}
	_, err = engine.Run(ctx, in)
	assert.ErrorIs(t, err, generic.ErrInvalidInput, "no window")

	in = base()
	in.Transactions = nil
	_, err = engine.Run(ctx, in)
	assert.ErrorIs(t, err, generic.ErrInvalidInput, "no ledger")
}

func TestEngine_SortsInlineTransactions(t *testing.T) {
	engine := &generic.SimulationEngine{}
	result, err := engine.Run(context.Background(), generic.SimulationInput{
		Policy:     generic.PolicyCappedRefill,
		Categories: testCategories(t),
		Envelopes:  testEnvelopes(),
		Transactions: []generic.Transaction{
			tx("groceries", 9, generic.Dollars(-10), 1),
			tx("groceries", 2, generic.Dollars(-10), 1),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, generic.Dollars(-20), result.Calendars["groceries"].Total())
}

func TestEngine_ExplicitPeriodKeepsStraddlingAmortization(t *testing.T) {
	// GIVEN: -300.00 of groceries over 30 days from day 1, and rent paid on day 1
	// WHEN: Running capped refill over days 10..20 only
	// THEN: The groceries envelope still loses 10.00 a day inside the window;
	//       rent, entirely before the window, does not appear

	period := window(10, 20)
	engine := &generic.SimulationEngine{}
	result, err := engine.Run(context.Background(), generic.SimulationInput{
		Policy:     generic.PolicyCappedRefill,
		Categories: testCategories(t),
		Envelopes:  testEnvelopes(),
		Period:     &period,
		Transactions: []generic.Transaction{
			tx("rent", 1, generic.Dollars(-1850), 1),
			tx("groceries", 1, generic.Dollars(-300), 30),
		},
	})
	require.NoError(t, err)

	groceries := result.Calendars["groceries"]
	require.Equal(t, 11, groceries.Len())
	assert.Equal(t, generic.Dollars(-110), groceries.Total())
	assert.Equal(t, generic.Dollars(-90), groceries.Leading)
	assert.Equal(t, generic.Dollars(-100), groceries.Truncated)
	assert.True(t, result.Calendars["rent"].IsZero())

	for _, d := range period.Days() {
		after, ok := result.Dataset.Get(d.String(), generic.SeriesAfterDelta, "groceries")
		require.True(t, ok)
		assert.Equal(t, generic.Dollars(390), after, d.String())
		refill, _ := result.Dataset.Get(d.String(), generic.SeriesRefill, "groceries")
		assert.Equal(t, generic.Dollars(10), refill, d.String())
	}
}

// =============================================================================
// LEDGER
// =============================================================================

func TestLedger_IdempotencyAndCategories(t *testing.T) {
	ctx := context.Background()
	ledger := generic.NewLedger(store.NewMemory(), testCategories(t))

	first := tx("rent", 1, generic.Dollars(-1850), 1)
	first.IdempotencyKey = "bank-2025-01-01-rent"
	require.NoError(t, ledger.Append(ctx, first))

	err := ledger.Append(ctx, first)
	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)
	assert.True(t, generic.IsConflict(err))

	err = ledger.Append(ctx, tx("casino", 1, generic.Dollars(-5), 1))
	assert.ErrorIs(t, err, generic.ErrUnknownCategory)

	batch := []generic.Transaction{tx("groceries", 3, generic.Dollars(-5), 1), first}
	assert.ErrorIs(t, ledger.AppendBatch(ctx, batch), generic.ErrDuplicateIdempotencyKey)

	all, err := ledger.Transactions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1, "rejected batch wrote nothing")

	net, err := ledger.NetAt(ctx, "rent", day(31))
	require.NoError(t, err)
	assert.Equal(t, generic.Dollars(-1850), net)
}

func TestMemoryStore_LoadRangeIsOrdered(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.AppendBatch(ctx, []generic.Transaction{
		tx("rent", 9, generic.Dollars(-1), 1),
		tx("groceries", 3, generic.Dollars(-2), 1),
		tx("groceries", 12, generic.Dollars(-3), 1),
	}))

	got, err := mem.LoadRange(ctx, day(1), day(10))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Date.Equal(day(3)))
	assert.True(t, got[1].Date.Equal(day(9)))
}

func TestTxMemory_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	mem := store.NewTxMemory()

	err := mem.WithTx(ctx, func(s generic.Store) error {
		if err := s.Append(ctx, tx("rent", 1, generic.Dollars(-1), 1)); err != nil {
			return err
		}
		return generic.ErrInvalidInput
	})
	assert.ErrorIs(t, err, generic.ErrInvalidInput)

	all, err := mem.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
