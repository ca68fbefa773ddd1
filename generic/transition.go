/*
transition.go - Month-to-month transitions and change sets

PURPOSE:
  Between two months the operator can adjust envelopes: move value in or
  out, resize capacity, flip criticality. A ChangeSet collects those
  adjustments for one transition; ApplyTransition turns the end state of
  month N into the start state of month N+1.

OVERRIDE KINDS (per category):
  ValueDelta / ValueSet         - add to, or replace, the carried value
  CapacityDelta / CapacitySet   - add to, or replace, the capacity
  Critical                      - replace the criticality flag

  A delta and a set on the same field of the same category is rejected
  with ConflictingOverrideError. Nothing is applied in that case.

CHECK:
  The transition records a "Transition" ErrorCheck: the total carried value
  must not change unless the change set touches value for some category.

SEE ALSO:
  - slush.go: SimulateSlushFund drives the transitions
*/
package generic

import "fmt"

// Override is the set of adjustments for one category. nil fields are
// left alone.
type Override struct {
	ValueDelta    *Money `json:"value_delta,omitempty"`
	ValueSet      *Money `json:"value_set,omitempty"`
	CapacityDelta *Money `json:"capacity_delta,omitempty"`
	CapacitySet   *Money `json:"capacity_set,omitempty"`
	Critical      *bool  `json:"critical,omitempty"`
}

// TouchesValue reports whether the override changes the carried value.
func (o Override) TouchesValue() bool {
	return o.ValueDelta != nil || o.ValueSet != nil
}

// Validate rejects delta-and-set on the same field.
func (o Override) Validate(category CategoryID) error {
	if o.ValueDelta != nil && o.ValueSet != nil {
		return &ConflictingOverrideError{Category: category, Field: "value"}
	}
	if o.CapacityDelta != nil && o.CapacitySet != nil {
		return &ConflictingOverrideError{Category: category, Field: "capacity"}
	}
	return nil
}

func (o Override) apply(st EnvelopeState) EnvelopeState {
	switch {
	case o.ValueSet != nil:
		st.Value = *o.ValueSet
	case o.ValueDelta != nil:
		st.Value = st.Value.Add(*o.ValueDelta)
	}
	switch {
	case o.CapacitySet != nil:
		st.Capacity = *o.CapacitySet
	case o.CapacityDelta != nil:
		st.Capacity = st.Capacity.Add(*o.CapacityDelta)
	}
	if o.Critical != nil {
		st.Critical = *o.Critical
	}
	return st
}

// ChangeSet holds the overrides for one transition, by category.
type ChangeSet map[CategoryID]Override

// Validate checks every override for conflicts, in category order so the
// reported error is deterministic.
func (cs ChangeSet) Validate() error {
	ids := make([]CategoryID, 0, len(cs))
	for id := range cs {
		ids = append(ids, id)
	}
	SortCategoryIDs(ids)
	for _, id := range ids {
		if err := cs[id].Validate(id); err != nil {
			return err
		}
	}
	return nil
}

// TouchesValue reports whether any override changes a carried value.
func (cs ChangeSet) TouchesValue() bool {
	for _, o := range cs {
		if o.TouchesValue() {
			return true
		}
	}
	return false
}

// Transition is the record of one month boundary.
type Transition struct {
	From        Month                        `json:"from"`
	To          Month                        `json:"to"`
	EndPrevious map[CategoryID]EnvelopeState `json:"end_previous"`
	Changes     ChangeSet                    `json:"changes,omitempty"`
	StartNext   map[CategoryID]EnvelopeState `json:"start_next"`
	Checks      []ErrorCheck                 `json:"checks"`
}

func (t *Transition) Pair() MonthPair { return MonthPair{From: t.From, To: t.To} }

// ApplyTransition applies changes to end and returns the transition. The
// end map is not modified. Overrides for categories that are not in end
// fail with UnknownCategoryError.
func ApplyTransition(pair MonthPair, end map[CategoryID]EnvelopeState, changes ChangeSet) (*Transition, error) {
	if err := changes.Validate(); err != nil {
		return nil, err
	}
	for id := range changes {
		if _, ok := end[id]; !ok {
			return nil, &UnknownCategoryError{Category: id}
		}
	}

	next := copyStates(end)
	for id, o := range changes {
		st := o.apply(next[id])
		if st.Capacity.IsNegative() {
			return nil, &InvalidInputError{Field: "capacity", Category: id,
				Reason: fmt.Sprintf("override leaves capacity at %s", st.Capacity)}
		}
		next[id] = st
	}

	var before, after Money
	for id := range end {
		before = before.Add(end[id].Value)
		after = after.Add(next[id].Value)
	}

	t := &Transition{
		From:        pair.From,
		To:          pair.To,
		EndPrevious: copyStates(end),
		Changes:     changes,
		StartNext:   next,
	}
	t.Checks = []ErrorCheck{
		check(CheckTransition, before == after || changes.TouchesValue(),
			"total value changed from %s to %s without a value override", before, after),
	}
	return t, nil
}
