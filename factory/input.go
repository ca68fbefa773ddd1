/*
Package factory provides JSON to Go conversion for simulation inputs.

PURPOSE:
  Converts JSON envelope configs, transactions, change sets and reference
  datasets into generic types. Budgets are then configured in files or
  over HTTP without code changes.

JSON SCHEMA (simulation):
  {
    "policy": "slush-fund",
    "period": {"start": "2025-01-01", "end": "2025-03-31"},
    "start_empty": false,
    "categories": [{"id": "pets", "name": "Pets", "kind": "expense"}],
    "envelopes": [
      {"category": "rent", "preset": "bill", "monthly_refill": 1850},
      {"category": "travel", "monthly_refill": 250, "capacity": 3000}
    ],
    "transactions": [
      {"date": "2025-01-01", "category": "rent", "value": -1850},
      {"date": "2025-01-10", "category": "insurance", "value": -1440, "duration": 365}
    ],
    "change_sets": {
      "2025-02": {"travel": {"capacity_set": 4000}}
    }
  }

DEFAULTS:
  - duration: 1 when omitted; an explicit 0 is rejected
  - daily_refill: monthly_refill / 30 when omitted
  - capacity: monthly_refill when omitted
  - envelopes: budget.DefaultEnvelopes() when the list is empty
  - categories: the household set plus any extra categories listed

PRESETS:
  bill, flexible, sinking, pass_through (see budget/presets.go)

USAGE:
  f := factory.NewInputFactory()
  in, err := f.ParseSimulation(body)
  result, err := planner.Simulate(ctx, in)

SEE ALSO:
  - budget/presets.go: Envelope shapes behind the presets
  - dataset.go: Reference datasets for reconciliation
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/warp/envelope-engine/budget"
	"github.com/warp/envelope-engine/generic"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// SimulationJSON is the JSON representation of one simulation run.
type SimulationJSON struct {
	Policy       string                                `json:"policy"`
	Period       *PeriodJSON                           `json:"period,omitempty"`
	StartEmpty   bool                                  `json:"start_empty,omitempty"`
	Categories   []CategoryJSON                        `json:"categories,omitempty"`
	Envelopes    []EnvelopeJSON                        `json:"envelopes,omitempty"`
	Transactions []TransactionJSON                     `json:"transactions,omitempty"`
	ChangeSets   map[string]map[string]generic.Override `json:"change_sets,omitempty"`
}

// PeriodJSON is an inclusive date range.
type PeriodJSON struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// CategoryJSON adds a category to the household set.
type CategoryJSON struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Kind string `json:"kind,omitempty"`
}

// EnvelopeJSON configures one envelope.
type EnvelopeJSON struct {
	Category      string         `json:"category"`
	Preset        string         `json:"preset,omitempty"`
	MonthlyRefill generic.Money  `json:"monthly_refill"`
	DailyRefill   *generic.Money `json:"daily_refill,omitempty"`
	Capacity      *generic.Money `json:"capacity,omitempty"`
	Critical      bool           `json:"critical,omitempty"`
}

// TransactionJSON is one categorized transaction.
type TransactionJSON struct {
	ID             string        `json:"id,omitempty"`
	Date           string        `json:"date"`
	Category       string        `json:"category"`
	Value          generic.Money `json:"value"`
	Duration       *int          `json:"duration,omitempty"`
	Description    string        `json:"description,omitempty"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
}

// Envelope presets accepted in EnvelopeJSON.Preset.
const (
	PresetBill        = "bill"
	PresetFlexible    = "flexible"
	PresetSinking     = "sinking"
	PresetPassThrough = "pass_through"
)

// =============================================================================
// INPUT FACTORY
// =============================================================================

// InputFactory converts JSON into simulation inputs.
type InputFactory struct{}

// NewInputFactory creates a new factory.
func NewInputFactory() *InputFactory {
	return &InputFactory{}
}

// ParseSimulation parses a JSON document into a SimulationInput.
func (f *InputFactory) ParseSimulation(data []byte) (generic.SimulationInput, error) {
	var sj SimulationJSON
	if err := json.Unmarshal(data, &sj); err != nil {
		return generic.SimulationInput{}, fmt.Errorf("%w: failed to parse simulation JSON: %v", generic.ErrInvalidInput, err)
	}
	return f.FromJSON(sj)
}

// FromJSON converts SimulationJSON to a SimulationInput.
func (f *InputFactory) FromJSON(sj SimulationJSON) (generic.SimulationInput, error) {
	var in generic.SimulationInput

	policy, err := generic.ParsePolicy(sj.Policy)
	if err != nil {
		return in, err
	}
	in.Policy = policy
	in.StartEmpty = sj.StartEmpty

	in.Categories, err = f.Categories(sj.Categories)
	if err != nil {
		return in, err
	}

	if sj.Period != nil {
		p, err := parsePeriod(*sj.Period)
		if err != nil {
			return in, err
		}
		in.Period = &p
	}

	if len(sj.Envelopes) == 0 {
		in.Envelopes = budget.DefaultEnvelopes()
	} else {
		in.Envelopes, err = f.Envelopes(sj.Envelopes)
		if err != nil {
			return in, err
		}
	}

	// Omitted transactions load from the ledger; [] runs with none.
	if sj.Transactions != nil {
		in.Transactions, err = f.Transactions(sj.Transactions)
		if err != nil {
			return in, err
		}
	}

	if len(sj.ChangeSets) > 0 {
		in.ChangeSets, err = f.ChangeSets(sj.ChangeSets)
		if err != nil {
			return in, err
		}
	}
	return in, nil
}

// Categories builds the household set extended with extra categories.
func (f *InputFactory) Categories(extra []CategoryJSON) (generic.CategorySet, error) {
	cats := make([]generic.Category, 0, len(extra))
	for _, cj := range extra {
		kind := generic.CategoryKind(cj.Kind)
		if kind == "" {
			kind = generic.KindExpense
		}
		name := cj.Name
		if name == "" {
			name = cj.ID
		}
		cats = append(cats, generic.Category{ID: generic.CategoryID(cj.ID), Name: name, Kind: kind})
	}
	return budget.Categories(cats...)
}

// Envelopes converts envelope JSON into configs keyed by category.
func (f *InputFactory) Envelopes(list []EnvelopeJSON) (map[generic.CategoryID]generic.EnvelopeConfig, error) {
	out := make(map[generic.CategoryID]generic.EnvelopeConfig, len(list))
	for _, ej := range list {
		cfg, err := f.Envelope(ej)
		if err != nil {
			return nil, err
		}
		if _, dup := out[cfg.Category]; dup {
			return nil, &generic.InvalidInputError{Field: "envelopes", Category: cfg.Category, Reason: "configured twice"}
		}
		out[cfg.Category] = cfg
	}
	return out, nil
}

// Envelope converts one EnvelopeJSON.
func (f *InputFactory) Envelope(ej EnvelopeJSON) (generic.EnvelopeConfig, error) {
	category := generic.CategoryID(ej.Category)
	capacity := ej.MonthlyRefill
	if ej.Capacity != nil {
		capacity = *ej.Capacity
	}

	var cfg generic.EnvelopeConfig
	switch ej.Preset {
	case PresetBill:
		cfg = budget.Bill(category, ej.MonthlyRefill)
	case PresetFlexible:
		cfg = budget.Flexible(category, ej.MonthlyRefill)
	case PresetSinking:
		cfg = budget.Sinking(category, ej.MonthlyRefill, capacity)
	case PresetPassThrough:
		cfg = budget.PassThrough(category)
	case "":
		cfg = generic.EnvelopeConfig{
			Category:      category,
			Capacity:      capacity,
			MonthlyRefill: ej.MonthlyRefill,
			Critical:      ej.Critical,
		}.WithDerivedRefill()
	default:
		return cfg, &generic.InvalidInputError{Field: "preset", Category: category, Reason: fmt.Sprintf("unknown preset %q", ej.Preset)}
	}

	if ej.Preset != "" && ej.Capacity != nil {
		cfg.Capacity = *ej.Capacity
	}
	if ej.Critical {
		cfg.Critical = true
	}
	if ej.DailyRefill != nil {
		cfg.DailyRefill = *ej.DailyRefill
	}
	return cfg, cfg.Validate()
}

// ParseTransactions parses a JSON array of transactions, or an object with a
// "transactions" array.
func (f *InputFactory) ParseTransactions(data []byte) ([]generic.Transaction, error) {
	var list []TransactionJSON
	if err := json.Unmarshal(data, &list); err != nil {
		var wrapped struct {
			Transactions []TransactionJSON `json:"transactions"`
		}
		if err2 := json.Unmarshal(data, &wrapped); err2 != nil {
			return nil, fmt.Errorf("%w: failed to parse transactions JSON: %v", generic.ErrInvalidInput, err)
		}
		list = wrapped.Transactions
	}
	return f.Transactions(list)
}

// Transactions converts transaction JSON, applying defaults.
func (f *InputFactory) Transactions(list []TransactionJSON) ([]generic.Transaction, error) {
	out := make([]generic.Transaction, 0, len(list))
	for i, tj := range list {
		tx, err := f.Transaction(tj)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i+1, err)
		}
		out = append(out, tx)
	}
	return out, nil
}

// Transaction converts one TransactionJSON.
func (f *InputFactory) Transaction(tj TransactionJSON) (generic.Transaction, error) {
	date, err := generic.ParseDate(tj.Date)
	if err != nil {
		return generic.Transaction{}, &generic.InvalidInputError{Field: "date", Reason: fmt.Sprintf("%q is not YYYY-MM-DD", tj.Date)}
	}
	duration := 1
	if tj.Duration != nil {
		duration = *tj.Duration
	}
	tx := generic.Transaction{
		ID:             generic.TransactionID(tj.ID),
		Date:           date,
		Category:       generic.CategoryID(tj.Category),
		Value:          tj.Value,
		Duration:       duration,
		Description:    tj.Description,
		IdempotencyKey: tj.IdempotencyKey,
	}
	return tx, tx.Validate()
}

// ChangeSets converts change sets keyed by "YYYY-MM".
func (f *InputFactory) ChangeSets(raw map[string]map[string]generic.Override) (map[generic.Month]generic.ChangeSet, error) {
	out := make(map[generic.Month]generic.ChangeSet, len(raw))
	for key, overrides := range raw {
		month, err := generic.ParseMonth(key)
		if err != nil {
			return nil, &generic.InvalidInputError{Field: "change_sets", Reason: fmt.Sprintf("%q is not YYYY-MM", key)}
		}
		cs := make(generic.ChangeSet, len(overrides))
		for category, o := range overrides {
			cs[generic.CategoryID(category)] = o
		}
		if err := cs.Validate(); err != nil {
			return nil, fmt.Errorf("change set %s: %w", key, err)
		}
		out[month] = cs
	}
	return out, nil
}

// ToJSON converts an envelope config back to its JSON form.
func (f *InputFactory) ToJSON(cfg generic.EnvelopeConfig) EnvelopeJSON {
	capacity, daily := cfg.Capacity, cfg.DailyRefill
	return EnvelopeJSON{
		Category:      string(cfg.Category),
		MonthlyRefill: cfg.MonthlyRefill,
		DailyRefill:   &daily,
		Capacity:      &capacity,
		Critical:      cfg.Critical,
	}
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parsePeriod(pj PeriodJSON) (generic.Period, error) {
	start, err := generic.ParseDate(pj.Start)
	if err != nil {
		return generic.Period{}, &generic.InvalidInputError{Field: "period.start", Reason: fmt.Sprintf("%q is not YYYY-MM-DD", pj.Start)}
	}
	end, err := generic.ParseDate(pj.End)
	if err != nil {
		return generic.Period{}, &generic.InvalidInputError{Field: "period.end", Reason: fmt.Sprintf("%q is not YYYY-MM-DD", pj.End)}
	}
	p := generic.Period{Start: start, End: end}
	return p, p.Validate()
}
