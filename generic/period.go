package generic

// =============================================================================
// PERIOD - The simulation window
// =============================================================================

// Period is an inclusive day range [Start, End]. Every category in one run
// shares the same Period so all calendars line up day for day.
type Period struct {
	Start TimePoint `json:"start"`
	End   TimePoint `json:"end"`
}

// Validate rejects an inverted window.
func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return &InvalidInputError{Field: "period", Reason: "start and end are required"}
	}
	if p.End.Before(p.Start) {
		return ErrInvalidPeriod
	}
	return nil
}

// Contains returns true if the day is within [Start, End].
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Len is the number of days in the period.
func (p Period) Len() int {
	return DaysBetween(p.Start, p.End) + 1
}

// Days returns all days in the period.
func (p Period) Days() []TimePoint {
	days := make([]TimePoint, 0, p.Len())
	for current := p.Start; current.BeforeOrEqual(p.End); current = current.AddDays(1) {
		days = append(days, current)
	}
	return days
}

// Months returns every month touching the period, in order.
func (p Period) Months() []Month {
	var months []Month
	last := p.End.MonthOf()
	for m := p.Start.MonthOf(); !last.Before(m); m = m.Next() {
		months = append(months, m)
	}
	return months
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// GlobalPeriod spans the earliest to the latest day touched by any
// transaction, amortized tails included. ok is false for no transactions.
func GlobalPeriod(txs []Transaction) (p Period, ok bool) {
	for i, tx := range txs {
		last := tx.Date
		if tx.Duration > 1 {
			last = tx.LastDay()
		}
		if i == 0 {
			p = Period{Start: tx.Date, End: last}
			continue
		}
		if tx.Date.Before(p.Start) {
			p.Start = tx.Date
		}
		if last.After(p.End) {
			p.End = last
		}
	}
	return p, len(txs) > 0
}
