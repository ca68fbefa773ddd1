/*
engine.go - End-to-end simulation runs

PURPOSE:
  SimulationEngine is the entry point callers use when they don't want to
  wire the pipeline by hand. It loads transactions from the Ledger (or
  takes them inline), validates them against the closed category set,
  builds the delta calendars and runs the selected policy.

PIPELINE:
  transactions -> validate -> window -> calendars -> policy -> Dataset

POLICIES:
  PolicyCappedRefill  daily, categories independent (refill.go)
  PolicySlushFund     monthly, categories coupled (slush.go)

  Both stay selectable; neither supersedes the other.

ORDERING:
  The engine is the caller of the calendar builder, so it hands each
  category's transactions over sorted by date (stable, ledger order kept
  for same-day entries). The builder itself still refuses unsorted input.

SEE ALSO:
  - budget/planner.go: Parallel capped-refill fan-out
*/
package generic

import (
	"context"
	"fmt"
	"sort"
)

// Policy selects an envelope simulator.
type Policy string

const (
	PolicyCappedRefill Policy = "capped-refill"
	PolicySlushFund    Policy = "slush-fund"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyCappedRefill, PolicySlushFund:
		return p, nil
	}
	return "", &InvalidInputError{Field: "policy", Reason: fmt.Sprintf("unknown policy %q", s)}
}

// =============================================================================
// SIMULATION ENGINE
// =============================================================================

// SimulationEngine runs a full simulation over ledger data.
type SimulationEngine struct {
	Ledger   Ledger
	Calendar CalendarOptions
}

// SimulationInput contains all inputs for one run.
type SimulationInput struct {
	Policy     Policy
	Categories CategorySet
	Envelopes  map[CategoryID]EnvelopeConfig

	// Period defaults to GlobalPeriod over the transactions.
	Period *Period

	// Transactions, when non-nil, are used instead of the Ledger.
	Transactions []Transaction

	// StartEmpty starts every envelope at zero instead of full.
	StartEmpty bool

	// ChangeSets apply on entry to the keyed month (slush fund only).
	ChangeSets map[Month]ChangeSet
}

// SimulationResult contains the output of one run.
type SimulationResult struct {
	Policy    Policy
	Period    Period
	Calendars map[CategoryID]*DeltaCalendar

	// Timelines is set for PolicyCappedRefill.
	Timelines map[CategoryID]*EnvelopeTimeline
	// Slush is set for PolicySlushFund.
	Slush *SlushResult

	Dataset Dataset
}

// FailedChecks returns the failed slush-fund checks; capped refill has none.
func (r *SimulationResult) FailedChecks() map[string][]ErrorCheck {
	if r.Slush == nil {
		return nil
	}
	return r.Slush.FailedChecks()
}

// Run executes one simulation.
func (e *SimulationEngine) Run(ctx context.Context, in SimulationInput) (*SimulationResult, error) {
	prep, err := e.Prepare(ctx, in)
	if err != nil {
		return nil, err
	}

	result := &SimulationResult{Policy: in.Policy, Period: prep.Period}
	result.Calendars, err = BuildCalendars(prep.CategoryIDs, prep.Transactions, prep.Period, e.Calendar)
	if err != nil {
		return nil, err
	}

	switch in.Policy {
	case PolicyCappedRefill:
		result.Timelines, err = SimulateAllCappedRefill(result.Calendars, in.Envelopes, prep.RefillOptions(in.StartEmpty))
		if err != nil {
			return nil, err
		}
		result.Dataset = TimelinesToDataset(result.Timelines)

	case PolicySlushFund:
		result.Slush, err = SimulateSlushFund(SlushInput{
			Months:       prep.Period.Months(),
			Initial:      StatesFromConfigs(in.Envelopes, in.StartEmpty),
			Transactions: AggregateMonthly(result.Calendars),
			ChangeSets:   in.ChangeSets,
			Internal:     in.Categories.ByKind(KindInternal),
		})
		if err != nil {
			return nil, err
		}
		result.Dataset = SnapshotsToDataset(result.Slush.Snapshots)
	}
	return result, nil
}

// Prepared is a validated, sorted run input.
type Prepared struct {
	Period       Period
	CategoryIDs  []CategoryID
	Transactions []Transaction
}

// RefillOptions maps StartEmpty onto RefillOptions.
func (p *Prepared) RefillOptions(startEmpty bool) RefillOptions {
	if !startEmpty {
		return RefillOptions{}
	}
	zero := Money(0)
	return RefillOptions{Initial: &zero}
}

// Prepare runs every boundary check and returns the sorted transactions
// and the window. Nothing is simulated.
func (e *SimulationEngine) Prepare(ctx context.Context, in SimulationInput) (*Prepared, error) {
	if _, err := ParsePolicy(string(in.Policy)); err != nil {
		return nil, err
	}
	if len(in.Envelopes) == 0 {
		return nil, &InvalidInputError{Field: "envelopes", Reason: "no envelopes configured"}
	}
	if err := in.Categories.ValidateEnvelopes(in.Envelopes); err != nil {
		return nil, err
	}

	txs := in.Transactions
	if txs == nil {
		if e.Ledger == nil {
			return nil, &InvalidInputError{Field: "transactions", Reason: "no ledger and no inline transactions"}
		}
		var err error
		txs, err = e.Ledger.Transactions(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading transactions: %w", err)
		}
	}
	if err := in.Categories.ValidateTransactions(txs); err != nil {
		return nil, err
	}
	for _, tx := range txs {
		if _, ok := in.Envelopes[tx.Category]; !ok {
			return nil, &InvalidInputError{Field: "category", Category: tx.Category, Reason: "no envelope configured"}
		}
	}

	var window Period
	if in.Period != nil {
		window = *in.Period
		if err := window.Validate(); err != nil {
			return nil, err
		}
		txs = inWindow(txs, window)
	} else {
		var ok bool
		window, ok = GlobalPeriod(txs)
		if !ok {
			return nil, &InvalidInputError{Field: "period", Reason: "no transactions and no explicit period"}
		}
	}

	sorted := append([]Transaction(nil), txs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	ids := make([]CategoryID, 0, len(in.Envelopes))
	for id := range in.Envelopes {
		ids = append(ids, id)
	}
	SortCategoryIDs(ids)

	return &Prepared{Period: window, CategoryIDs: ids, Transactions: sorted}, nil
}

func inWindow(txs []Transaction, window Period) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Overlaps(window) {
			out = append(out, tx)
		}
	}
	return out
}
