package generic_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/envelope-engine/generic"
)

func money(v int64) *generic.Money {
	m := generic.Dollars(v)
	return &m
}

func endOfJan() map[generic.CategoryID]generic.EnvelopeState {
	return map[generic.CategoryID]generic.EnvelopeState{
		"rent":      state(1850, 1850, true),
		"groceries": state(120, 400, false),
		"savings":   state(900, 5000, false),
	}
}

func TestApplyTransition_ConflictingOverride(t *testing.T) {
	// GIVEN: A change set that both adds to and sets groceries' value
	// THEN: ConflictingOverrideError, nothing applied

	cs := generic.ChangeSet{
		"groceries": {ValueDelta: money(50), ValueSet: money(300)},
	}
	_, err := generic.ApplyTransition(generic.MonthPair{From: jan, To: jan.Next()}, endOfJan(), cs)

	require.Error(t, err)
	assert.True(t, errors.Is(err, generic.ErrConflictingOverride))
	var conflict *generic.ConflictingOverrideError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, generic.CategoryID("groceries"), conflict.Category)
	assert.Equal(t, "value", conflict.Field)
}

func TestApplyTransition_CapacityConflict(t *testing.T) {
	cs := generic.ChangeSet{
		"rent": {CapacityDelta: money(50), CapacitySet: money(1900)},
	}
	_, err := generic.ApplyTransition(generic.MonthPair{From: jan, To: jan.Next()}, endOfJan(), cs)

	var conflict *generic.ConflictingOverrideError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "capacity", conflict.Field)
}

func TestApplyTransition_AppliesOverrides(t *testing.T) {
	// GIVEN: Move 100 from savings to groceries, raise rent, make groceries critical
	// THEN: Next month starts from the adjusted state; the end state is untouched

	critical := true
	end := endOfJan()
	cs := generic.ChangeSet{
		"savings":   {ValueDelta: money(-100)},
		"groceries": {ValueDelta: money(100), Critical: &critical},
		"rent":      {CapacitySet: money(1900)},
	}

	tr, err := generic.ApplyTransition(generic.MonthPair{From: jan, To: jan.Next()}, end, cs)
	require.NoError(t, err)

	assert.Equal(t, generic.Dollars(800), tr.StartNext["savings"].Value)
	assert.Equal(t, generic.Dollars(220), tr.StartNext["groceries"].Value)
	assert.True(t, tr.StartNext["groceries"].Critical)
	assert.Equal(t, generic.Dollars(1900), tr.StartNext["rent"].Capacity)
	assert.Equal(t, generic.Dollars(1850), tr.StartNext["rent"].Value)
	assert.Equal(t, endOfJan(), end, "end state must not be modified")
	assertAllGood(t, tr.Checks)
}

func TestApplyTransition_ValueOverrideMayChangeTotal(t *testing.T) {
	// GIVEN: A value set on one category that changes the total
	// THEN: Allowed, because the change set overrides value explicitly

	cs := generic.ChangeSet{"savings": {ValueSet: money(0)}}
	tr, err := generic.ApplyTransition(generic.MonthPair{From: jan, To: jan.Next()}, endOfJan(), cs)
	require.NoError(t, err)
	assertAllGood(t, tr.Checks)

	// Capacity-only change sets keep the total.
	cs = generic.ChangeSet{"savings": {CapacityDelta: money(-4000)}}
	tr, err = generic.ApplyTransition(generic.MonthPair{From: jan, To: jan.Next()}, endOfJan(), cs)
	require.NoError(t, err)
	assertAllGood(t, tr.Checks)
}

func TestApplyTransition_RejectsUnknownCategoryAndNegativeCapacity(t *testing.T) {
	pair := generic.MonthPair{From: jan, To: jan.Next()}

	_, err := generic.ApplyTransition(pair, endOfJan(), generic.ChangeSet{"casino": {ValueDelta: money(1)}})
	assert.ErrorIs(t, err, generic.ErrUnknownCategory)

	_, err = generic.ApplyTransition(pair, endOfJan(), generic.ChangeSet{"rent": {CapacityDelta: money(-2000)}})
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
}

func TestSimulateSlushFund_ConflictAbortsRun(t *testing.T) {
	feb := jan.Next()
	_, err := generic.SimulateSlushFund(generic.SlushInput{
		Months:  []generic.Month{jan, feb},
		Initial: endOfJan(),
		ChangeSets: map[generic.Month]generic.ChangeSet{
			feb: {"rent": {ValueDelta: money(1), ValueSet: money(2)}},
		},
	})
	assert.ErrorIs(t, err, generic.ErrConflictingOverride)
}
