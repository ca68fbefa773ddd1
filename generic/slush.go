/*
slush.go - Slush-fund envelope simulator

PURPOSE:
  Month-granularity policy where all categories share one pool. Overflow
  above capacity and negative balances are swept into the slush fund,
  critical envelopes are topped up from it first, and what is left is
  rationed proportionally across the non-critical envelopes' requests.

PER-MONTH STEPS (per category c):
  1. afterT       = start + transactions
  2. capDiff      = capacity - afterT
  3. slush        = afterT if afterT < 0; -capDiff if afterT > capacity; else 0
  4. beforeFill   = afterT - slush;  sCapDiff = capacity - beforeFill
  5. critToFill   = sCapDiff for critical, 0 otherwise; critFilled = beforeFill + critToFill
  6. ncToFill     = sCapDiff for non-critical, 0 otherwise
  7. slushAfterCrit = sum(slush) - sum(critToFill)
     scaled       = ncToFill * slushAfterCrit / sum(ncToFill)
  8. final        = critFilled + scaled

ROUNDING:
  Step 7 uses cumulative rounding in category id order: each category gets
  round(pool*cum_i/total) - round(pool*cum_{i-1}/total). Every share is
  within a cent of its exact value and the shares sum to the pool exactly,
  so sum(final) == sum(afterT) holds to the cent.

INVARIANT CHECKS:
  Evaluated every month and attached to the snapshot as ErrorCheck values
  ("good" or an "ERROR: ..." message). They never abort the run: a month
  can be underwater and the operator fixes it with the next ChangeSet.

ATOMICITY:
  ComputeMonth builds the whole snapshot before returning; nothing of month
  N is visible until every category's final value exists.

SEE ALSO:
  - transition.go: ChangeSets applied between months
  - reconcile.go: SnapshotsToDataset
*/
package generic

import "fmt"

// =============================================================================
// ERROR CHECKS - Soft invariant results
// =============================================================================

// CheckGood is the result string of a passing check.
const CheckGood = "good"

const (
	CheckTotal       = "Total"
	CheckInternal    = "Internal"
	CheckSlush       = "Slush"
	CheckCritical    = "Critical"
	CheckNonCritical = "NonCritical"
	CheckScaled      = "Scaled"
	CheckFinal       = "Final"
	CheckTransition  = "Transition"
)

// ErrorCheck is one named invariant result.
type ErrorCheck struct {
	Name   string `json:"name"`
	Result string `json:"result"`
}

func (c ErrorCheck) Passed() bool { return c.Result == CheckGood }

func check(name string, ok bool, format string, args ...any) ErrorCheck {
	if ok {
		return ErrorCheck{Name: name, Result: CheckGood}
	}
	return ErrorCheck{Name: name, Result: "ERROR: " + fmt.Sprintf(format, args...)}
}

// FailedChecks filters to the failures.
func FailedChecks(checks []ErrorCheck) []ErrorCheck {
	var failed []ErrorCheck
	for _, c := range checks {
		if !c.Passed() {
			failed = append(failed, c)
		}
	}
	return failed
}

// =============================================================================
// STATE AND SNAPSHOT
// =============================================================================

// EnvelopeState is one category's value, capacity and priority at a month
// boundary.
type EnvelopeState struct {
	Value    Money `json:"value"`
	Capacity Money `json:"capacity"`
	Critical bool  `json:"critical"`
}

// Row is one category's month computation.
type Row struct {
	Start             Money `json:"Start"`
	Transactions      Money `json:"Transactions"`
	AfterTransactions Money `json:"AfterTransactions"`
	Capacity          Money `json:"Capacity"`
	CapDiff           Money `json:"CapDiff"`
	Slush             Money `json:"Slush"`
	BeforeFill        Money `json:"BeforeFill"`
	SlushCapDiff      Money `json:"SlushCapDiff"`
	CritToFill        Money `json:"CritToFill"`
	CritFilled        Money `json:"CritFilled"`
	NonCritToFill     Money `json:"NonCritToFill"`
	Scaled            Money `json:"Scaled"`
	Final             Money `json:"Final"`
	Critical          bool  `json:"Critical"`
}

// RowField names one Money column of a Row.
type RowField struct {
	Name string
	Get  func(Row) Money
}

// RowFields lists the Row columns in computation order.
var RowFields = []RowField{
	{"Start", func(r Row) Money { return r.Start }},
	{"Transactions", func(r Row) Money { return r.Transactions }},
	{"AfterTransactions", func(r Row) Money { return r.AfterTransactions }},
	{"Capacity", func(r Row) Money { return r.Capacity }},
	{"CapDiff", func(r Row) Money { return r.CapDiff }},
	{"Slush", func(r Row) Money { return r.Slush }},
	{"BeforeFill", func(r Row) Money { return r.BeforeFill }},
	{"SlushCapDiff", func(r Row) Money { return r.SlushCapDiff }},
	{"CritToFill", func(r Row) Money { return r.CritToFill }},
	{"CritFilled", func(r Row) Money { return r.CritFilled }},
	{"NonCritToFill", func(r Row) Money { return r.NonCritToFill }},
	{"Scaled", func(r Row) Money { return r.Scaled }},
	{"Final", func(r Row) Money { return r.Final }},
}

func (r Row) add(o Row) Row {
	return Row{
		Start:             r.Start + o.Start,
		Transactions:      r.Transactions + o.Transactions,
		AfterTransactions: r.AfterTransactions + o.AfterTransactions,
		Capacity:          r.Capacity + o.Capacity,
		CapDiff:           r.CapDiff + o.CapDiff,
		Slush:             r.Slush + o.Slush,
		BeforeFill:        r.BeforeFill + o.BeforeFill,
		SlushCapDiff:      r.SlushCapDiff + o.SlushCapDiff,
		CritToFill:        r.CritToFill + o.CritToFill,
		CritFilled:        r.CritFilled + o.CritFilled,
		NonCritToFill:     r.NonCritToFill + o.NonCritToFill,
		Scaled:            r.Scaled + o.Scaled,
		Final:             r.Final + o.Final,
	}
}

// MonthSnapshot is the full computation for one month.
type MonthSnapshot struct {
	Month          Month              `json:"month"`
	Rows           map[CategoryID]Row `json:"rows"`
	Total          Row                `json:"total"`
	SlushAfterCrit Money              `json:"slush_after_crit"`
	Unallocated    Money              `json:"unallocated"`
	Checks         []ErrorCheck       `json:"checks"`
}

// EndState is the state handed to the next transition.
func (s *MonthSnapshot) EndState() map[CategoryID]EnvelopeState {
	out := make(map[CategoryID]EnvelopeState, len(s.Rows))
	for id, r := range s.Rows {
		out[id] = EnvelopeState{Value: r.Final, Capacity: r.Capacity, Critical: r.Critical}
	}
	return out
}

// Check returns the named check.
func (s *MonthSnapshot) Check(name string) (ErrorCheck, bool) {
	for _, c := range s.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return ErrorCheck{}, false
}

// =============================================================================
// MONTH COMPUTATION
// =============================================================================

// MonthInput is everything one month needs.
type MonthInput struct {
	Month        Month
	States       map[CategoryID]EnvelopeState // start value, capacity, criticality
	Transactions map[CategoryID]Money         // month aggregate per category
	Internal     []CategoryID                 // must net to zero
}

// ComputeMonth runs the eight steps for every category jointly.
func ComputeMonth(in MonthInput) (*MonthSnapshot, error) {
	if len(in.States) == 0 {
		return nil, &InvalidInputError{Field: "states", Reason: "no categories for " + in.Month.String()}
	}
	for id := range in.Transactions {
		if _, ok := in.States[id]; !ok {
			return nil, &UnknownCategoryError{Category: id}
		}
	}

	ids := make([]CategoryID, 0, len(in.States))
	for id, st := range in.States {
		if st.Capacity.IsNegative() {
			return nil, &InvalidInputError{Field: "capacity", Category: id, Reason: "negative capacity " + st.Capacity.String()}
		}
		ids = append(ids, id)
	}
	SortCategoryIDs(ids)

	rows := make(map[CategoryID]Row, len(ids))
	var slushTotal, critTotal, ncTotal Money

	// Steps 1-6
	for _, id := range ids {
		st := in.States[id]
		r := Row{
			Start:        st.Value,
			Transactions: in.Transactions[id],
			Capacity:     st.Capacity,
			Critical:     st.Critical,
		}
		r.AfterTransactions = r.Start.Add(r.Transactions)
		r.CapDiff = r.Capacity.Sub(r.AfterTransactions)
		switch {
		case r.AfterTransactions.IsNegative():
			r.Slush = r.AfterTransactions
		case r.AfterTransactions.GreaterThan(r.Capacity):
			r.Slush = r.CapDiff.Neg()
		}
		r.BeforeFill = r.AfterTransactions.Sub(r.Slush)
		r.SlushCapDiff = r.Capacity.Sub(r.BeforeFill)
		if r.Critical {
			r.CritToFill = r.SlushCapDiff
		} else {
			r.NonCritToFill = r.SlushCapDiff
		}
		r.CritFilled = r.BeforeFill.Add(r.CritToFill)

		slushTotal = slushTotal.Add(r.Slush)
		critTotal = critTotal.Add(r.CritToFill)
		ncTotal = ncTotal.Add(r.NonCritToFill)
		rows[id] = r
	}

	// Step 7
	slushAfterCrit := slushTotal.Sub(critTotal)
	var unallocated Money
	if ncTotal.IsZero() {
		unallocated = slushAfterCrit
	} else {
		var cum, allocated Money
		for _, id := range ids {
			r := rows[id]
			cum = cum.Add(r.NonCritToFill)
			upTo := slushAfterCrit.MulRatio(cum, ncTotal)
			r.Scaled = upTo.Sub(allocated)
			allocated = upTo
			rows[id] = r
		}
	}

	// Step 8
	var total Row
	for _, id := range ids {
		r := rows[id]
		r.Final = r.CritFilled.Add(r.Scaled)
		rows[id] = r
		total = total.add(r)
	}

	snap := &MonthSnapshot{
		Month:          in.Month,
		Rows:           rows,
		Total:          total,
		SlushAfterCrit: slushAfterCrit,
		Unallocated:    unallocated,
	}
	snap.Checks = monthChecks(in, snap, slushTotal, ncTotal)
	return snap, nil
}

func monthChecks(in MonthInput, s *MonthSnapshot, slushTotal, ncTotal Money) []ErrorCheck {
	var internalNet Money
	for _, id := range in.Internal {
		internalNet = internalNet.Add(in.Transactions[id])
	}

	scaledOK := s.Total.Scaled == s.SlushAfterCrit
	scaledMsg := fmt.Sprintf("scaled fill %s does not match slush after critical %s", s.Total.Scaled, s.SlushAfterCrit)
	if ncTotal.IsZero() && !s.SlushAfterCrit.IsZero() {
		scaledMsg = fmt.Sprintf("no non-critical requests to absorb %s of slush", s.SlushAfterCrit)
	}

	var nonCritOK bool
	if s.SlushAfterCrit.IsNegative() {
		nonCritOK = !s.Total.Scaled.LessThan(s.SlushAfterCrit)
	} else {
		nonCritOK = !s.Total.Scaled.GreaterThan(s.SlushAfterCrit)
	}

	return []ErrorCheck{
		check(CheckTotal, !s.Total.AfterTransactions.IsNegative(),
			"Total available is negative (%s)", s.Total.AfterTransactions),
		check(CheckInternal, internalNet.IsZero(),
			"Internal transfers do not net to zero (%s)", internalNet),
		check(CheckSlush, !slushTotal.IsNegative(),
			"Slush fund is negative (%s)", slushTotal),
		check(CheckCritical, !s.Total.CritToFill.GreaterThan(slushTotal),
			"Critical top-up %s exceeds available slush %s", s.Total.CritToFill, slushTotal),
		check(CheckNonCritical, nonCritOK,
			"Non-critical scaling %s exceeds the pool %s", s.Total.Scaled, s.SlushAfterCrit),
		check(CheckScaled, scaledOK, "%s", scaledMsg),
		check(CheckFinal, s.Total.Final == s.Total.AfterTransactions,
			"Refilling changed the total"),
	}
}

// =============================================================================
// MULTI-MONTH RUN
// =============================================================================

// SlushInput drives SimulateSlushFund.
type SlushInput struct {
	// Months must be consecutive and ascending.
	Months []Month
	// Initial is the state before the first month.
	Initial map[CategoryID]EnvelopeState
	// Transactions holds per-month, per-category aggregates.
	Transactions map[Month]map[CategoryID]Money
	// ChangeSets are applied on entry to the keyed month.
	ChangeSets map[Month]ChangeSet
	// Internal categories must net to zero each month.
	Internal []CategoryID
}

// SlushResult holds every month and every transition of a run.
type SlushResult struct {
	Months      []Month
	Snapshots   map[Month]*MonthSnapshot
	Transitions map[MonthPair]*Transition
}

// FailedChecks lists every failed check across the run, in month order.
func (r *SlushResult) FailedChecks() map[string][]ErrorCheck {
	out := make(map[string][]ErrorCheck)
	for _, m := range r.Months {
		pair := MonthPair{From: m.Prev(), To: m}
		if t, ok := r.Transitions[pair]; ok {
			if failed := FailedChecks(t.Checks); len(failed) > 0 {
				out[pair.String()] = failed
			}
		}
		if failed := FailedChecks(r.Snapshots[m].Checks); len(failed) > 0 {
			out[m.String()] = failed
		}
	}
	return out
}

// SimulateSlushFund runs the months in order. Month N+1 starts from the
// StartNext of the transition out of month N.
func SimulateSlushFund(in SlushInput) (*SlushResult, error) {
	if len(in.Months) == 0 {
		return nil, &InvalidInputError{Field: "months", Reason: "empty"}
	}
	for i := 1; i < len(in.Months); i++ {
		if in.Months[i] != in.Months[i-1].Next() {
			return nil, &InvalidInputError{Field: "months",
				Reason: fmt.Sprintf("%s does not follow %s", in.Months[i], in.Months[i-1])}
		}
	}
	for m := range in.ChangeSets {
		if m.Before(in.Months[0]) || in.Months[len(in.Months)-1].Before(m) {
			return nil, &InvalidInputError{Field: "change_sets", Reason: "change set for " + m.String() + " outside the run"}
		}
	}

	result := &SlushResult{
		Months:      append([]Month(nil), in.Months...),
		Snapshots:   make(map[Month]*MonthSnapshot, len(in.Months)),
		Transitions: make(map[MonthPair]*Transition),
	}

	state := copyStates(in.Initial)
	for i, m := range in.Months {
		if changes, ok := in.ChangeSets[m]; ok || i > 0 {
			t, err := ApplyTransition(MonthPair{From: m.Prev(), To: m}, state, changes)
			if err != nil {
				return nil, fmt.Errorf("transition into %s: %w", m, err)
			}
			result.Transitions[t.Pair()] = t
			state = t.StartNext
		}

		snap, err := ComputeMonth(MonthInput{
			Month:        m,
			States:       state,
			Transactions: in.Transactions[m],
			Internal:     in.Internal,
		})
		if err != nil {
			return nil, fmt.Errorf("month %s: %w", m, err)
		}
		result.Snapshots[m] = snap
		state = snap.EndState()
	}
	return result, nil
}

// AggregateMonthly sums calendar deltas per month and category, so
// amortized transactions land in the months their days fall in.
func AggregateMonthly(calendars map[CategoryID]*DeltaCalendar) map[Month]map[CategoryID]Money {
	out := make(map[Month]map[CategoryID]Money)
	for id, cal := range calendars {
		for i, day := range cal.Days {
			m := day.MonthOf()
			if out[m] == nil {
				out[m] = make(map[CategoryID]Money)
			}
			out[m][id] = out[m][id].Add(cal.Deltas[i])
		}
	}
	return out
}

// StatesFromConfigs builds a start state from envelope configs; every
// envelope starts full unless startEmpty.
func StatesFromConfigs(configs map[CategoryID]EnvelopeConfig, startEmpty bool) map[CategoryID]EnvelopeState {
	out := make(map[CategoryID]EnvelopeState, len(configs))
	for id, cfg := range configs {
		st := EnvelopeState{Capacity: cfg.Capacity, Critical: cfg.Critical}
		if !startEmpty {
			st.Value = cfg.Capacity
		}
		out[id] = st
	}
	return out
}

func copyStates(in map[CategoryID]EnvelopeState) map[CategoryID]EnvelopeState {
	out := make(map[CategoryID]EnvelopeState, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
