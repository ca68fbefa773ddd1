/*
Package generic provides the core envelope simulation engine.

PURPOSE:
  This package contains the domain-agnostic types and algorithms that turn
  dated, valued, categorized transactions into per-category envelope
  balances. It knows nothing about which categories exist or how a
  transaction got its category; the budget package supplies that.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: An exact amount in integer cents
  - Transaction: A dated, categorized value, optionally amortized over days
  - CategoryID: Opaque category identifier (validated by a CategorySet)
  - EnvelopeConfig: Capacity, refill rate and criticality for one category

DESIGN PRINCIPLES:
  1. Precision: Money is an int64 count of cents, never a float
  2. Explicit rounding: every division names its rounding rule
  3. Purity: simulators are functions of their inputs, no package state
  4. Immutability: the engine never mutates caller transactions

USAGE:
  rent := generic.EnvelopeConfig{
      Category:      "rent",
      Capacity:      generic.Dollars(1850),
      MonthlyRefill: generic.Dollars(1850),
  }.WithDerivedRefill()

  tx := generic.Transaction{
      Date:     generic.NewTimePoint(2025, time.January, 1),
      Category: "rent",
      Value:    generic.Dollars(-1850),
      Duration: 1,
  }

SEE ALSO:
  - calendar.go: Delta calendar builder
  - refill.go: Capped refill simulator
  - slush.go: Slush-fund simulator
  - reconcile.go: Reconciliation harness
*/
package generic

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Fixed-point amount in minor units
// =============================================================================

// Money is a signed number of cents.
type Money int64

const centsPerUnit = 100

var hundred = decimal.NewFromInt(centsPerUnit)

// Cents builds Money from a count of minor units.
func Cents(c int64) Money { return Money(c) }

// Dollars builds Money from whole major units.
func Dollars(d int64) Money { return Money(d * centsPerUnit) }

// NewMoneyFromDecimal converts a decimal amount of major units to Money,
// rounding half away from zero on the cent.
func NewMoneyFromDecimal(d decimal.Decimal) Money {
	return Money(d.Mul(hundred).Round(0).IntPart())
}

// MoneyFromFloat is the single entry point for float amounts (spreadsheet
// exports, JSON numbers). Rounds half away from zero on the cent.
func MoneyFromFloat(f float64) Money {
	return NewMoneyFromDecimal(decimal.NewFromFloat(f))
}

// ParseMoney parses "1850", "1850.00" or "-12.345" (rounded to -12.35).
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid amount %q", ErrInvalidInput, s)
	}
	return NewMoneyFromDecimal(d), nil
}

// MustParseMoney is ParseMoney for literals in tests and presets.
func MustParseMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) Cents() int64             { return int64(m) }
func (m Money) Add(o Money) Money        { return m + o }
func (m Money) Sub(o Money) Money        { return m - o }
func (m Money) Neg() Money               { return -m }
func (m Money) IsZero() bool             { return m == 0 }
func (m Money) IsNegative() bool         { return m < 0 }
func (m Money) IsPositive() bool         { return m > 0 }
func (m Money) GreaterThan(o Money) bool { return m > o }
func (m Money) LessThan(o Money) bool    { return m < o }
func (m Money) Decimal() decimal.Decimal { return decimal.New(int64(m), -2) }
func (m Money) String() string           { return m.Decimal().StringFixed(2) }

func (m Money) Min(o Money) Money {
	if m < o {
		return m
	}
	return o
}

func (m Money) Max(o Money) Money {
	if m > o {
		return m
	}
	return o
}

// DivRound divides by n and rounds half away from zero on the cent.
// Panics on n == 0, which is always a programming error here.
func (m Money) DivRound(n int64) Money {
	if n == 0 {
		panic("generic: Money.DivRound by zero")
	}
	return Money(decimal.NewFromInt(int64(m)).DivRound(decimal.NewFromInt(n), 0).IntPart())
}

// MulRatio returns m * num / den rounded half away from zero. The product is
// computed in decimal so large balances cannot overflow int64 midway.
func (m Money) MulRatio(num, den Money) Money {
	if den == 0 {
		panic("generic: Money.MulRatio with zero denominator")
	}
	p := decimal.NewFromInt(int64(m)).Mul(decimal.NewFromInt(int64(num)))
	return Money(p.DivRound(decimal.NewFromInt(int64(den)), 0).IntPart())
}

// Sum adds any number of amounts.
func Sum(ms ...Money) Money {
	var total Money
	for _, m := range ms {
		total += m
	}
	return total
}

// MarshalJSON writes major units with two decimals, e.g. 1850.00.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (m *Money) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := json.Unmarshal(b, &d); err != nil {
		return fmt.Errorf("%w: invalid amount %s", ErrInvalidInput, string(b))
	}
	*m = NewMoneyFromDecimal(d)
	return nil
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CategoryID string
type TransactionID string

// TotalKey is the aggregate row key used in datasets and snapshots.
const TotalKey CategoryID = "total"

// =============================================================================
// TRANSACTION - Dated, categorized value
// =============================================================================

// Transaction is a categorized value handed over by the categorization layer.
// Duration 1 applies the whole value on Date; Duration > 1 spreads it evenly
// over that many consecutive days starting at Date.
type Transaction struct {
	ID             TransactionID `json:"id,omitempty"`
	Date           TimePoint     `json:"date"`
	Category       CategoryID    `json:"category"`
	Value          Money         `json:"value"`
	Duration       int           `json:"duration"`
	Description    string        `json:"description,omitempty"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
}

// Validate checks the shape of a single transaction.
func (t Transaction) Validate() error {
	if t.Duration < 1 {
		return &InvalidInputError{Field: "duration", Reason: fmt.Sprintf("must be >= 1, got %d", t.Duration)}
	}
	if t.Category == "" {
		return &InvalidInputError{Field: "category", Reason: "empty"}
	}
	if t.Date.IsZero() {
		return &InvalidInputError{Field: "date", Reason: "missing"}
	}
	return nil
}

// LastDay is the final day the transaction affects.
func (t Transaction) LastDay() TimePoint {
	return t.Date.AddDays(t.Duration - 1)
}

// Overlaps reports whether any day in [Date, LastDay] falls inside p.
func (t Transaction) Overlaps(p Period) bool {
	return !t.Date.After(p.End) && !t.LastDay().Before(p.Start)
}

// =============================================================================
// ENVELOPE CONFIG - Capacity and refill per category
// =============================================================================

// RefillDivisor converts a monthly refill into a daily one. It is a flat
// 30-day month, not calendar accurate; reference data uses the same rule.
const RefillDivisor = 30

// EnvelopeConfig describes one category's envelope for a simulation run.
type EnvelopeConfig struct {
	Category      CategoryID `json:"category"`
	Capacity      Money      `json:"capacity"`
	MonthlyRefill Money      `json:"monthly_refill"`
	DailyRefill   Money      `json:"daily_refill"`
	Critical      bool       `json:"critical"`
}

// WithDerivedRefill fills DailyRefill from MonthlyRefill / 30.
func (c EnvelopeConfig) WithDerivedRefill() EnvelopeConfig {
	c.DailyRefill = c.MonthlyRefill.DivRound(RefillDivisor)
	return c
}

// Validate rejects negative capacity or refill.
func (c EnvelopeConfig) Validate() error {
	if c.Category == "" {
		return &InvalidInputError{Field: "category", Reason: "empty"}
	}
	if c.Capacity.IsNegative() {
		return &InvalidInputError{Field: "capacity", Category: c.Category, Reason: "negative capacity " + c.Capacity.String()}
	}
	if c.MonthlyRefill.IsNegative() || c.DailyRefill.IsNegative() {
		return &InvalidInputError{Field: "refill", Category: c.Category, Reason: "negative refill"}
	}
	return nil
}
