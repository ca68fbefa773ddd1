package generic_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/envelope-engine/generic"
)

var jan = generic.NewMonth(2025, time.January)

func state(value, capacity int64, critical bool) generic.EnvelopeState {
	return generic.EnvelopeState{Value: generic.Dollars(value), Capacity: generic.Dollars(capacity), Critical: critical}
}

func requireCheck(t *testing.T, snap *generic.MonthSnapshot, name string) generic.ErrorCheck {
	t.Helper()
	c, ok := snap.Check(name)
	require.True(t, ok, "check %s missing", name)
	return c
}

func assertAllGood(t *testing.T, checks []generic.ErrorCheck) {
	t.Helper()
	for _, c := range checks {
		assert.Equal(t, generic.CheckGood, c.Result, "check %s", c.Name)
	}
}

// =============================================================================
// PROPORTIONAL RATIONING
// =============================================================================

func TestComputeMonth_RationsSlushProportionally(t *testing.T) {
	// GIVEN: Two non-critical envelopes asking for 100 and 300,
	//        and 200 of income swept into the slush fund
	// WHEN: Computing the month
	// THEN: Each gets half of its request (50 and 150), scaled sums to 200

	snap, err := generic.ComputeMonth(generic.MonthInput{
		Month: jan,
		States: map[generic.CategoryID]generic.EnvelopeState{
			"books":  state(0, 100, false),
			"hobby":  state(0, 300, false),
			"salary": state(0, 0, false),
		},
		Transactions: map[generic.CategoryID]generic.Money{"salary": generic.Dollars(200)},
	})
	require.NoError(t, err)

	assert.Equal(t, generic.Dollars(200), snap.Rows["salary"].Slush)
	assert.Equal(t, generic.Dollars(200), snap.SlushAfterCrit)
	assert.Equal(t, generic.Dollars(50), snap.Rows["books"].Scaled)
	assert.Equal(t, generic.Dollars(150), snap.Rows["hobby"].Scaled)
	assert.Equal(t, generic.Dollars(200), snap.Total.Scaled)
	assert.Equal(t, generic.Dollars(50), snap.Rows["books"].Final)
	assert.Equal(t, generic.Dollars(150), snap.Rows["hobby"].Final)
	assert.Equal(t, snap.Total.AfterTransactions, snap.Total.Final)
	assertAllGood(t, snap.Checks)
}

func TestComputeMonth_CriticalFirst(t *testing.T) {
	// GIVEN: Rent (critical) emptied by its payment, fun (non-critical)
	//        half spent, and 1500 of salary
	// THEN: Rent is topped up in full before fun sees anything

	snap, err := generic.ComputeMonth(generic.MonthInput{
		Month: jan,
		States: map[generic.CategoryID]generic.EnvelopeState{
			"rent":   state(1000, 1000, true),
			"fun":    state(200, 200, false),
			"salary": state(0, 0, false),
		},
		Transactions: map[generic.CategoryID]generic.Money{
			"rent":   generic.Dollars(-1000),
			"fun":    generic.Dollars(-100),
			"salary": generic.Dollars(1500),
		},
	})
	require.NoError(t, err)

	rent := snap.Rows["rent"]
	assert.Equal(t, generic.Dollars(1000), rent.CritToFill)
	assert.Equal(t, generic.Dollars(1000), rent.Final)
	assert.True(t, rent.NonCritToFill.IsZero())

	fun := snap.Rows["fun"]
	assert.Equal(t, generic.Dollars(100), fun.NonCritToFill)
	assert.True(t, fun.CritToFill.IsZero())
	assert.Equal(t, generic.Dollars(500), snap.SlushAfterCrit)
	assert.Equal(t, generic.Dollars(500), fun.Scaled)

	assert.Equal(t, generic.Dollars(1600), snap.Total.Final)
	assertAllGood(t, snap.Checks)
}

func TestComputeMonth_RoundingConservesTotal(t *testing.T) {
	// GIVEN: Requests that split the pool into repeating decimals
	// THEN: Every share is within a cent of exact and nothing is lost

	snap, err := generic.ComputeMonth(generic.MonthInput{
		Month: jan,
		States: map[generic.CategoryID]generic.EnvelopeState{
			"a":      state(0, 1, false),
			"b":      state(0, 1, false),
			"c":      state(0, 1, false),
			"income": state(0, 0, false),
		},
		Transactions: map[generic.CategoryID]generic.Money{"income": generic.Dollars(1)},
	})
	require.NoError(t, err)

	assert.Equal(t, generic.Cents(33), snap.Rows["a"].Scaled)
	assert.Equal(t, generic.Cents(34), snap.Rows["b"].Scaled)
	assert.Equal(t, generic.Cents(33), snap.Rows["c"].Scaled)
	assert.Equal(t, generic.Dollars(1), snap.Total.Scaled)
	assert.Equal(t, snap.Total.AfterTransactions, snap.Total.Final)
	assertAllGood(t, snap.Checks)
}

// =============================================================================
// SOFT INVARIANTS
// =============================================================================

func TestComputeMonth_OverspendIsReportedNotFatal(t *testing.T) {
	// GIVEN: The only envelope is overspent by 50
	// THEN: The month still computes; Total and Slush checks report errors

	snap, err := generic.ComputeMonth(generic.MonthInput{
		Month:        jan,
		States:       map[generic.CategoryID]generic.EnvelopeState{"fun": state(100, 100, false)},
		Transactions: map[generic.CategoryID]generic.Money{"fun": generic.Dollars(-150)},
	})
	require.NoError(t, err)

	assert.Equal(t, generic.Dollars(-50), snap.Rows["fun"].Slush)
	assert.Equal(t, generic.Dollars(-50), snap.Rows["fun"].Final)
	assert.Contains(t, requireCheck(t, snap, generic.CheckTotal).Result, "ERROR")
	assert.Contains(t, requireCheck(t, snap, generic.CheckSlush).Result, "ERROR")
	assert.True(t, requireCheck(t, snap, generic.CheckFinal).Passed())
}

func TestComputeMonth_NoNonCriticalRequests(t *testing.T) {
	// GIVEN: Surplus slush and no non-critical envelope with room
	// THEN: The pool stays unallocated and Scaled/Final say so

	snap, err := generic.ComputeMonth(generic.MonthInput{
		Month: jan,
		States: map[generic.CategoryID]generic.EnvelopeState{
			"rent":   state(100, 100, true),
			"salary": state(0, 0, false),
		},
		Transactions: map[generic.CategoryID]generic.Money{"salary": generic.Dollars(50)},
	})
	require.NoError(t, err)

	assert.Equal(t, generic.Dollars(50), snap.Unallocated)
	assert.True(t, snap.Total.Scaled.IsZero())
	assert.Contains(t, requireCheck(t, snap, generic.CheckScaled).Result, "no non-critical requests")
	assert.Equal(t, "ERROR: Refilling changed the total", requireCheck(t, snap, generic.CheckFinal).Result)
}

func TestComputeMonth_InternalMustNetToZero(t *testing.T) {
	snap, err := generic.ComputeMonth(generic.MonthInput{
		Month: jan,
		States: map[generic.CategoryID]generic.EnvelopeState{
			"transfer": state(0, 0, false),
			"savings":  state(0, 1000, false),
		},
		Transactions: map[generic.CategoryID]generic.Money{"transfer": generic.Dollars(30)},
		Internal:     []generic.CategoryID{"transfer"},
	})
	require.NoError(t, err)

	assert.Equal(t, "ERROR: Internal transfers do not net to zero (30.00)", requireCheck(t, snap, generic.CheckInternal).Result)
	assert.Len(t, generic.FailedChecks(snap.Checks), 1)
}

func TestComputeMonth_RejectsUnknownCategory(t *testing.T) {
	_, err := generic.ComputeMonth(generic.MonthInput{
		Month:        jan,
		States:       map[generic.CategoryID]generic.EnvelopeState{"fun": state(0, 10, false)},
		Transactions: map[generic.CategoryID]generic.Money{"casino": generic.Dollars(-10)},
	})
	assert.ErrorIs(t, err, generic.ErrUnknownCategory)
}

// =============================================================================
// MULTI-MONTH RUNS
// =============================================================================

func TestSimulateSlushFund_ChainsMonths(t *testing.T) {
	// GIVEN: Three months of salary and spending, a capacity raise for
	//        groceries entering March
	// THEN: Each month starts where the previous transition left it and
	//       every month conserves money

	feb, mar := jan.Next(), jan.Next().Next()
	monthly := func(groceries, rent int64) map[generic.CategoryID]generic.Money {
		return map[generic.CategoryID]generic.Money{
			"salary":    generic.Dollars(3000),
			"rent":      generic.Dollars(rent),
			"groceries": generic.Dollars(groceries),
		}
	}
	raise := generic.Dollars(100)

	result, err := generic.SimulateSlushFund(generic.SlushInput{
		Months: []generic.Month{jan, feb, mar},
		Initial: map[generic.CategoryID]generic.EnvelopeState{
			"rent":      state(1850, 1850, true),
			"groceries": state(400, 400, false),
			"savings":   state(0, 50000, false),
			"salary":    state(0, 0, false),
		},
		Transactions: map[generic.Month]map[generic.CategoryID]generic.Money{
			jan: monthly(-350, -1850),
			feb: monthly(-420, -1850),
			mar: monthly(-380, -1850),
		},
		ChangeSets: map[generic.Month]generic.ChangeSet{
			mar: {"groceries": {CapacityDelta: &raise}},
		},
	})
	require.NoError(t, err)

	require.Len(t, result.Snapshots, 3)
	require.Len(t, result.Transitions, 2)

	for _, m := range result.Months {
		snap := result.Snapshots[m]
		assert.Equal(t, snap.Total.AfterTransactions, snap.Total.Final, "month %s", m)
		assert.True(t, requireCheck(t, snap, generic.CheckFinal).Passed(), "month %s", m)
		assert.Equal(t, generic.Dollars(1850), snap.Rows["rent"].Final, "rent refilled first in %s", m)
	}

	into := result.Transitions[generic.MonthPair{From: feb, To: mar}]
	require.NotNil(t, into)
	for id, row := range result.Snapshots[feb].Rows {
		assert.Equal(t, row.Final, into.EndPrevious[id].Value, id)
		assert.Equal(t, into.StartNext[id].Value, result.Snapshots[mar].Rows[id].Start, id)
	}
	assert.Equal(t, generic.Dollars(500), result.Snapshots[mar].Rows["groceries"].Capacity)
	assert.Empty(t, result.FailedChecks())
}

func TestSimulateSlushFund_RejectsNonConsecutiveMonths(t *testing.T) {
	_, err := generic.SimulateSlushFund(generic.SlushInput{
		Months:  []generic.Month{jan, jan.Next().Next()},
		Initial: map[generic.CategoryID]generic.EnvelopeState{"fun": state(0, 10, false)},
	})
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
}

func TestSimulateSlushFund_Idempotent(t *testing.T) {
	in := generic.SlushInput{
		Months: []generic.Month{jan, jan.Next()},
		Initial: map[generic.CategoryID]generic.EnvelopeState{
			"a":      state(10, 100, false),
			"b":      state(0, 70, true),
			"income": state(0, 0, false),
		},
		Transactions: map[generic.Month]map[generic.CategoryID]generic.Money{
			jan: {"income": generic.Cents(12345), "a": generic.Cents(-999)},
		},
	}

	first, err := generic.SimulateSlushFund(in)
	require.NoError(t, err)
	second, err := generic.SimulateSlushFund(in)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, state(10, 100, false), in.Initial["a"], "input not mutated")
}

func TestAggregateMonthly_SplitsAmortizationAcrossMonths(t *testing.T) {
	// GIVEN: 62.00 spread over Jan 31 and Feb 1
	// THEN: 31.00 lands in each month

	txs := []generic.Transaction{tx("insurance", 31, generic.Dollars(62), 2)}
	cal, err := generic.BuildDeltaCalendar("insurance", txs, window(1, 40), generic.CalendarOptions{})
	require.NoError(t, err)

	got := generic.AggregateMonthly(map[generic.CategoryID]*generic.DeltaCalendar{"insurance": cal})
	assert.Equal(t, generic.Dollars(31), got[jan]["insurance"])
	assert.Equal(t, generic.Dollars(31), got[jan.Next()]["insurance"])
}
