package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/envelope-engine/budget"
	"github.com/warp/envelope-engine/generic"
	"github.com/warp/envelope-engine/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func tx(category generic.CategoryID, day int, cents int64, key string) generic.Transaction {
	return generic.Transaction{
		Date:           generic.NewTimePoint(2025, time.January, day),
		Category:       category,
		Value:          generic.Cents(cents),
		Duration:       1,
		IdempotencyKey: key,
	}
}

func TestNew_AppliesMigrations(t *testing.T) {
	store := newTestStore(t)

	version, err := store.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestStore_AppendAndLoadInDateOrder(t *testing.T) {
	// GIVEN: Transactions appended out of date order
	// WHEN: Loading by category, by range and in full
	// THEN: Results come back by date, same-day entries in arrival order

	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Append(ctx, tx(budget.Groceries, 10, -4200, "")))
	require.NoError(t, store.Append(ctx, tx(budget.Groceries, 3, -1500, "")))
	require.NoError(t, store.Append(ctx, tx(budget.Groceries, 10, -800, "")))
	require.NoError(t, store.Append(ctx, tx(budget.Rent, 1, -185000, "")))

	groceries, err := store.Load(ctx, budget.Groceries)
	require.NoError(t, err)
	require.Len(t, groceries, 3)
	assert.Equal(t, generic.Cents(-1500), groceries[0].Value)
	assert.Equal(t, generic.Cents(-4200), groceries[1].Value)
	assert.Equal(t, generic.Cents(-800), groceries[2].Value)

	all, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, budget.Rent, all[0].Category)

	inRange, err := store.LoadRange(ctx, generic.NewTimePoint(2025, time.January, 2), generic.NewTimePoint(2025, time.January, 9))
	require.NoError(t, err)
	require.Len(t, inRange, 1)
	assert.Equal(t, 3, inRange[0].Date.Day())
}

func TestStore_RoundTripsEveryField(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	in := generic.Transaction{
		ID:             "tx-1",
		Date:           generic.NewTimePoint(2025, time.March, 15),
		Category:       budget.Insurance,
		Value:          generic.MustParseMoney("-1440.00"),
		Duration:       365,
		Description:    "Annual car insurance",
		IdempotencyKey: "bank-77",
	}
	require.NoError(t, store.Append(ctx, in))

	out, err := store.Load(ctx, budget.Insurance)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, in.ID, out[0].ID)
	assert.True(t, in.Date.Equal(out[0].Date))
	assert.Equal(t, in.Value, out[0].Value)
	assert.Equal(t, in.Duration, out[0].Duration)
	assert.Equal(t, in.Description, out[0].Description)
	assert.Equal(t, in.IdempotencyKey, out[0].IdempotencyKey)
}

func TestStore_IdempotencyKey(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Append(ctx, tx(budget.Salary, 1, 420000, "payroll-jan")))
	err := store.Append(ctx, tx(budget.Salary, 1, 420000, "payroll-jan"))
	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)

	found, err := store.Exists(ctx, "payroll-jan")
	require.NoError(t, err)
	assert.True(t, found)

	// Transactions without a key never collide.
	require.NoError(t, store.Append(ctx, tx(budget.Salary, 2, 100, "")))
	require.NoError(t, store.Append(ctx, tx(budget.Salary, 2, 100, "")))
}

func TestStore_AppendBatchIsAtomic(t *testing.T) {
	// GIVEN: A batch whose last row repeats a stored key
	// WHEN: Appending the batch
	// THEN: Nothing from the batch is stored

	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Append(ctx, tx(budget.Rent, 1, -185000, "rent-jan")))

	err := store.AppendBatch(ctx, []generic.Transaction{
		tx(budget.Groceries, 2, -500, "g-1"),
		tx(budget.Groceries, 3, -600, "g-2"),
		tx(budget.Rent, 1, -185000, "rent-jan"),
	})
	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)

	n, err := store.CountTransactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	err = store.AppendBatch(ctx, []generic.Transaction{
		tx(budget.Groceries, 2, -500, "dup"),
		tx(budget.Groceries, 3, -600, "dup"),
	})
	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)
}

func TestStore_WithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(s generic.Store) error {
		if err := s.Append(ctx, tx(budget.Gifts, 5, -2500, "gift")); err != nil {
			return err
		}
		seen, err := s.Load(ctx, budget.Gifts)
		if err != nil {
			return err
		}
		assert.Len(t, seen, 1, "writes are visible inside the transaction")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	found, err := store.Exists(ctx, "gift")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.WithTx(ctx, func(s generic.Store) error {
		return s.Append(ctx, tx(budget.Gifts, 5, -2500, "gift"))
	}))
	found, err = store.Exists(ctx, "gift")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestStore_WorksUnderImportLedger(t *testing.T) {
	ctx := context.Background()
	ledger := budget.NewImportLedger(newTestStore(t), budget.DefaultCategories())

	rows := []generic.Transaction{
		tx(budget.Groceries, 4, -9200, ""),
		tx(budget.DiningOut, 20, -6400, ""),
	}
	first, err := ledger.Import(ctx, rows, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Added)

	second, err := ledger.Import(ctx, rows, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Skipped)
}

// =============================================================================
// ENVELOPES AND CHANGE SETS
// =============================================================================

func TestStore_Envelopes(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.GetEnvelope(ctx, budget.Rent)
	assert.ErrorIs(t, err, generic.ErrEnvelopeNotFound)

	rent := budget.Bill(budget.Rent, generic.Dollars(1850))
	require.NoError(t, store.SaveEnvelope(ctx, rent))
	got, err := store.GetEnvelope(ctx, budget.Rent)
	require.NoError(t, err)
	assert.Equal(t, rent, got)

	// Saving again replaces the config.
	rent = budget.Bill(budget.Rent, generic.Dollars(1900))
	require.NoError(t, store.SaveEnvelope(ctx, rent))
	require.NoError(t, store.SaveEnvelope(ctx, budget.Flexible(budget.Groceries, generic.Dollars(600))))

	all, err := store.ListEnvelopes(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, generic.Dollars(1900), all[budget.Rent].Capacity)

	err = store.SaveEnvelope(ctx, generic.EnvelopeConfig{Category: budget.Travel, Capacity: generic.Dollars(-1)})
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
}

func TestStore_ChangeSets(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	capacity := generic.Dollars(4000)
	critical := true
	feb := generic.NewMonth(2025, time.February)
	require.NoError(t, store.SaveChangeSet(ctx, feb, generic.ChangeSet{
		budget.Travel:    {CapacitySet: &capacity},
		budget.Groceries: {Critical: &critical},
	}))

	sets, err := store.ListChangeSets(ctx)
	require.NoError(t, err)
	require.Contains(t, sets, feb)
	assert.Equal(t, capacity, *sets[feb][budget.Travel].CapacitySet)
	assert.True(t, *sets[feb][budget.Groceries].Critical)

	delta := generic.Dollars(1)
	err = store.SaveChangeSet(ctx, feb, generic.ChangeSet{
		budget.Travel: {CapacitySet: &capacity, CapacityDelta: &delta},
	})
	assert.ErrorIs(t, err, generic.ErrConflictingOverride)
}

// =============================================================================
// RUNS
// =============================================================================

func TestStore_SaveAndGetSlushRun(t *testing.T) {
	// GIVEN: A slush-fund run over two months
	// WHEN: Saving it and reading it back
	// THEN: Dataset, snapshots and failed checks survive the round trip

	ctx := context.Background()
	store := newTestStore(t)

	planner := budget.NewPlanner(nil, generic.CalendarOptions{}, 0, nil)
	result, err := planner.Simulate(ctx, generic.SimulationInput{
		Policy:     generic.PolicySlushFund,
		Categories: budget.DefaultCategories(),
		Envelopes:  budget.DefaultEnvelopes(),
		Transactions: []generic.Transaction{
			tx(budget.Salary, 1, 420000, ""),
			tx(budget.Rent, 1, -185000, ""),
			tx(budget.Transfer, 15, -50000, ""),
			{Date: generic.NewTimePoint(2025, time.February, 3), Category: budget.Groceries, Value: generic.Dollars(-130), Duration: 1},
		},
	})
	require.NoError(t, err)

	run := &generic.SimulationRun{
		ID:        "run-1",
		Policy:    result.Policy,
		Period:    result.Period,
		CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Dataset:   result.Dataset,
		Snapshots: result.Slush.Snapshots,
		Failed:    result.FailedChecks(),
	}
	require.NotEmpty(t, run.Failed, "unbalanced transfer fails the internal check")
	require.NoError(t, store.SaveRun(ctx, run))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, generic.PolicySlushFund, got.Policy)
	assert.Equal(t, run.Period.String(), got.Period.String())
	assert.True(t, run.CreatedAt.Equal(got.CreatedAt))
	assert.Nil(t, generic.Reconcile(run.Dataset, got.Dataset))
	assert.Len(t, got.Snapshots, 2)
	assert.Equal(t, run.Failed, got.Failed)

	jan := generic.NewMonth(2025, time.January)
	assert.Equal(t, run.Snapshots[jan].Rows[budget.Rent], got.Snapshots[jan].Rows[budget.Rent])

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.Summary().Failed, runs[0].Failed)

	_, err = store.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, generic.ErrRunNotFound)
}

func TestStore_ListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	period := generic.Period{Start: generic.NewTimePoint(2025, time.January, 1), End: generic.NewTimePoint(2025, time.January, 31)}
	for i, id := range []string{"old", "new"} {
		require.NoError(t, store.SaveRun(ctx, &generic.SimulationRun{
			ID:        id,
			Policy:    generic.PolicyCappedRefill,
			Period:    period,
			CreatedAt: time.Date(2025, 2, 1+i, 0, 0, 0, 0, time.UTC),
			Dataset:   generic.Dataset{},
		}))
	}

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)

	require.NoError(t, store.Reset(ctx))
	runs, err = store.ListRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestStore_CorruptCreatedAtIsReported(t *testing.T) {
	// GIVEN: A stored run whose created_at was overwritten outside the store
	// WHEN: Reading it back through GetRun and ListRuns
	// THEN: Both fail naming the run instead of returning a zero time

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")
	store, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.SaveRun(ctx, &generic.SimulationRun{
		ID:        "run-bad",
		Policy:    generic.PolicyCappedRefill,
		Period:    generic.Period{Start: generic.NewTimePoint(2025, time.January, 1), End: generic.NewTimePoint(2025, time.January, 31)},
		CreatedAt: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		Dataset:   generic.Dataset{},
	}))

	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = raw.ExecContext(ctx, "UPDATE simulation_runs SET created_at = 'yesterday-ish' WHERE id = 'run-bad'")
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	_, err = store.GetRun(ctx, "run-bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run-bad")

	_, err = store.ListRuns(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "created_at")
}
