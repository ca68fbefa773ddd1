/*
refill.go - Capped refill envelope simulator

PURPOSE:
  Walks one category's delta calendar day by day, applying the day's delta
  and then a bounded refill. Categories are independent under this policy,
  so each one can be simulated on its own (or in parallel by the caller).

STATE TRANSITION (per day):
  pre     = balance(yesterday) + delta(today)
  refill  = min(dailyRefill, max(0, capacity - pre))
  balance = min(pre + refill, capacity)

  Refill never pushes a balance above capacity. A balance already above
  capacity before refill (a refund, say) gets no refill and is clipped to
  capacity; the clipped amount is kept in Overflow so it stays visible.
  Balances may go negative: overspending is reported, not prevented.

INITIAL VALUE:
  The day before the window the envelope is full (balance = capacity).
  That is a convention; RefillOptions.Initial overrides it.

SEE ALSO:
  - calendar.go: Input series
  - slush.go: The month-level alternative policy
*/
package generic

// RefillOptions tunes SimulateCappedRefill.
type RefillOptions struct {
	// Initial balance the day before the window. nil means start full.
	Initial *Money
}

// EnvelopeTimeline is the dense day -> balance series for one category.
type EnvelopeTimeline struct {
	Category   CategoryID
	Period     Period
	Days       []TimePoint
	Balances   []Money
	// AfterDelta is the balance after the day's delta, before refill.
	AfterDelta []Money
	Refills    []Money
	Overflow   []Money

	Initial  Money
	Capacity Money
}

// BalanceOn returns the balance on a day, or false outside the window.
func (t *EnvelopeTimeline) BalanceOn(day TimePoint) (Money, bool) {
	if !t.Period.Contains(day) {
		return 0, false
	}
	return t.Balances[DaysBetween(t.Period.Start, day)], true
}

// Final is the balance on the last day.
func (t *EnvelopeTimeline) Final() Money {
	if len(t.Balances) == 0 {
		return t.Initial
	}
	return t.Balances[len(t.Balances)-1]
}

// SimulateCappedRefill runs the capped refill policy for one category.
func SimulateCappedRefill(cal *DeltaCalendar, cfg EnvelopeConfig, opts RefillOptions) (*EnvelopeTimeline, error) {
	if cal == nil {
		return nil, &InvalidInputError{Field: "calendar", Category: cfg.Category, Reason: "missing"}
	}
	if cal.Category != cfg.Category {
		return nil, &InvalidInputError{Field: "category", Category: cfg.Category,
			Reason: "calendar is for " + string(cal.Category)}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cal.Verify(); err != nil {
		return nil, err
	}

	initial := cfg.Capacity
	if opts.Initial != nil {
		initial = *opts.Initial
	}

	n := cal.Len()
	tl := &EnvelopeTimeline{
		Category:   cfg.Category,
		Period:     cal.Period,
		Days:       append([]TimePoint(nil), cal.Days...),
		Balances:   make([]Money, n),
		AfterDelta: make([]Money, n),
		Refills:    make([]Money, n),
		Overflow:   make([]Money, n),
		Initial:    initial,
		Capacity:   cfg.Capacity,
	}

	// Nothing happens and nothing refills: the balance is flat.
	if cal.IsZero() && cfg.DailyRefill.IsZero() && !initial.GreaterThan(cfg.Capacity) {
		for i := range tl.Balances {
			tl.Balances[i] = initial
			tl.AfterDelta[i] = initial
		}
		return tl, nil
	}

	balance := initial
	for i, delta := range cal.Deltas {
		pre := balance.Add(delta)
		tl.AfterDelta[i] = pre
		room := cfg.Capacity.Sub(pre).Max(0)
		refill := cfg.DailyRefill.Min(room)

		balance = pre.Add(refill)
		if balance.GreaterThan(cfg.Capacity) {
			tl.Overflow[i] = balance.Sub(cfg.Capacity)
			balance = cfg.Capacity
		}
		tl.Refills[i] = refill
		tl.Balances[i] = balance
	}
	return tl, nil
}

// SimulateAllCappedRefill runs every configured category sequentially.
// Categories without a calendar are skipped.
func SimulateAllCappedRefill(calendars map[CategoryID]*DeltaCalendar, configs map[CategoryID]EnvelopeConfig, opts RefillOptions) (map[CategoryID]*EnvelopeTimeline, error) {
	out := make(map[CategoryID]*EnvelopeTimeline, len(configs))
	ids := make([]CategoryID, 0, len(configs))
	for id := range configs {
		ids = append(ids, id)
	}
	SortCategoryIDs(ids)
	for _, id := range ids {
		cal, ok := calendars[id]
		if !ok {
			continue
		}
		tl, err := SimulateCappedRefill(cal, configs[id], opts)
		if err != nil {
			return nil, err
		}
		out[id] = tl
	}
	return out, nil
}
