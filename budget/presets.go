/*
presets.go - Pre-built envelope configurations

PURPOSE:
  Ready-to-use envelope configs for common household budget lines. They
  are starting points; real budgets tune the amounts.

ENVELOPE SHAPES:
  Bill:      Critical, capacity = one month's refill (rent, utilities)
  Flexible:  Non-critical, capacity = one month's refill (groceries, fun)
  Sinking:   Non-critical, capacity larger than the refill so it builds up
             over months (travel, gifts, insurance premiums)
  Pass-through: Zero capacity, zero refill. Everything landing here is
             swept into the slush fund (income, internal transfers)

  Daily refill is always derived as monthly / 30.

EXAMPLE:
  envelopes := budget.DefaultEnvelopes()
  envelopes[budget.Groceries] = budget.Flexible(budget.Groceries, generic.Dollars(650))

SEE ALSO:
  - types.go: Category constants
  - factory/input.go: JSON-based envelope configuration
*/
package budget

import "github.com/warp/envelope-engine/generic"

// Bill returns a critical envelope that refills to exactly one month.
func Bill(category generic.CategoryID, monthly generic.Money) generic.EnvelopeConfig {
	return generic.EnvelopeConfig{
		Category:      category,
		Capacity:      monthly,
		MonthlyRefill: monthly,
		Critical:      true,
	}.WithDerivedRefill()
}

// Flexible returns a non-critical envelope holding one month of spending.
func Flexible(category generic.CategoryID, monthly generic.Money) generic.EnvelopeConfig {
	return generic.EnvelopeConfig{
		Category:      category,
		Capacity:      monthly,
		MonthlyRefill: monthly,
	}.WithDerivedRefill()
}

// Sinking returns a non-critical envelope that accumulates up to capacity.
func Sinking(category generic.CategoryID, monthly, capacity generic.Money) generic.EnvelopeConfig {
	return generic.EnvelopeConfig{
		Category:      category,
		Capacity:      capacity,
		MonthlyRefill: monthly,
	}.WithDerivedRefill()
}

// PassThrough returns an envelope that never holds money.
func PassThrough(category generic.CategoryID) generic.EnvelopeConfig {
	return generic.EnvelopeConfig{Category: category}
}

// DefaultEnvelopes returns one envelope per default category.
func DefaultEnvelopes() map[generic.CategoryID]generic.EnvelopeConfig {
	configs := []generic.EnvelopeConfig{
		Bill(Rent, generic.Dollars(1850)),
		Bill(Utilities, generic.Dollars(180)),
		Bill(Insurance, generic.Dollars(120)),
		Flexible(Groceries, generic.Dollars(600)),
		Flexible(Transport, generic.Dollars(150)),
		Flexible(Health, generic.Dollars(80)),
		Flexible(DiningOut, generic.Dollars(200)),
		Flexible(Entertainment, generic.Dollars(100)),
		Flexible(Shopping, generic.Dollars(150)),
		Flexible(Subscriptions, generic.Dollars(45)),
		Sinking(Travel, generic.Dollars(250), generic.Dollars(3000)),
		Sinking(Gifts, generic.Dollars(50), generic.Dollars(600)),
		Sinking(Savings, generic.Dollars(500), generic.Dollars(25000)),
		PassThrough(Salary),
		PassThrough(OtherIncome),
		PassThrough(Transfer),
		PassThrough(CreditCardPayment),
		PassThrough(ToDo),
	}

	out := make(map[generic.CategoryID]generic.EnvelopeConfig, len(configs))
	for _, c := range configs {
		out[c.Category] = c
	}
	return out
}
