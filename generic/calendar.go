/*
calendar.go - Dense per-category delta calendar

PURPOSE:
  Converts one category's sparse, dated transactions into a gap-free
  day -> net delta series over the run's window. Same-day transactions are
  merged; amortized ones are unspooled a share per day.

ALGORITHM:
  For each day from Start to End:
    1. Every transaction dated today either adds its value (duration 1)
       or registers a new AmortizedItem (duration > 1)
    2. Every active AmortizedItem applies one share
    3. Exhausted items are dropped
    4. Today's sum is recorded

  The window is shared by every category (usually GlobalPeriod over all
  transactions) so calendars line up day for day.

CONTRACT:
  The caller sorts. An out-of-order transaction fails with
  UnsortedInputError rather than being silently reordered. Verify() checks
  the result is one consecutive run of days.

SEE ALSO:
  - amortization.go: AmortizedItem
  - refill.go: Consumes the calendar
*/
package generic

import "fmt"

// DefaultMaxDays caps a window at roughly 50 years.
const DefaultMaxDays = 50 * 366

// CalendarOptions tunes BuildDeltaCalendar.
type CalendarOptions struct {
	// MaxDays rejects windows longer than this; 0 means DefaultMaxDays.
	MaxDays int
}

// DateSet is a set of days keyed by their YYYY-MM-DD form.
type DateSet map[string]struct{}

func (s DateSet) Add(t TimePoint) { s[t.String()] = struct{}{} }
func (s DateSet) Len() int        { return len(s) }

func (s DateSet) Has(t TimePoint) bool {
	_, ok := s[t.String()]
	return ok
}

// DeltaCalendar is the dense day -> delta series for one category.
type DeltaCalendar struct {
	Category CategoryID
	Period   Period
	Days     []TimePoint
	Deltas   []Money

	// SingleDayDates holds days with at least one duration-1 transaction.
	SingleDayDates DateSet
	// AmortStartDates holds days on which an amortization began.
	AmortStartDates DateSet

	// Leading is the amortized value that landed before Period.Start.
	Leading Money
	// Truncated is the amortized value that would land after Period.End.
	Truncated Money
}

// Len is the number of days.
func (c *DeltaCalendar) Len() int { return len(c.Days) }

// DeltaOn returns the delta for a day, or false outside the window.
func (c *DeltaCalendar) DeltaOn(t TimePoint) (Money, bool) {
	if !c.Period.Contains(t) {
		return 0, false
	}
	i := DaysBetween(c.Period.Start, t)
	return c.Deltas[i], true
}

// Total sums all deltas.
func (c *DeltaCalendar) Total() Money {
	return Sum(c.Deltas...)
}

// IsZero reports whether every day's delta is zero.
func (c *DeltaCalendar) IsZero() bool {
	for _, d := range c.Deltas {
		if !d.IsZero() {
			return false
		}
	}
	return true
}

// Verify checks that Days is exactly the consecutive run Start..End.
func (c *DeltaCalendar) Verify() error {
	if len(c.Days) != len(c.Deltas) {
		return fmt.Errorf("%w: %d days but %d deltas for %s", ErrCalendarGap, len(c.Days), len(c.Deltas), c.Category)
	}
	if len(c.Days) == 0 {
		return &CalendarGapError{Category: c.Category, After: c.Period.Start, Next: c.Period.End}
	}
	if !c.Days[0].Equal(c.Period.Start) {
		return &CalendarGapError{Category: c.Category, After: c.Period.Start, Next: c.Days[0]}
	}
	for i := 1; i < len(c.Days); i++ {
		if !c.Days[i].Equal(c.Days[i-1].AddDays(1)) {
			return &CalendarGapError{Category: c.Category, After: c.Days[i-1], Next: c.Days[i]}
		}
	}
	last := c.Days[len(c.Days)-1]
	if !last.Equal(c.Period.End) {
		return &CalendarGapError{Category: c.Category, After: last, Next: c.Period.End}
	}
	return nil
}

// =============================================================================
// BUILDER
// =============================================================================

// BuildDeltaCalendar builds the calendar for one category. txs must all
// belong to category, be sorted by date and touch window. An amortization
// that started before window contributes only its in-window shares; the
// earlier ones go to Leading, so Leading + Total + Truncated always equals
// the sum of the transaction values.
func BuildDeltaCalendar(category CategoryID, txs []Transaction, window Period, opts CalendarOptions) (*DeltaCalendar, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}
	maxDays := opts.MaxDays
	if maxDays <= 0 {
		maxDays = DefaultMaxDays
	}
	if window.Len() > maxDays {
		return nil, &InvalidInputError{Field: "period", Category: category,
			Reason: fmt.Sprintf("%d days exceeds limit of %d", window.Len(), maxDays)}
	}

	for i, tx := range txs {
		if tx.Category != category {
			return nil, &InvalidInputError{Field: "category", Category: category,
				Reason: fmt.Sprintf("transaction %d belongs to %s", i, tx.Category)}
		}
		if err := tx.Validate(); err != nil {
			return nil, err
		}
		if !tx.Overlaps(window) {
			return nil, &InvalidInputError{Field: "date", Category: category,
				Reason: fmt.Sprintf("transaction %d spanning %s..%s outside %s", i, tx.Date, tx.LastDay(), window)}
		}
		if i > 0 && tx.Date.Before(txs[i-1].Date) {
			return nil, &UnsortedInputError{Category: category, Index: i, Previous: txs[i-1].Date, Date: tx.Date}
		}
	}

	n := window.Len()
	cal := &DeltaCalendar{
		Category:        category,
		Period:          window,
		Days:            make([]TimePoint, 0, n),
		Deltas:          make([]Money, 0, n),
		SingleDayDates:  DateSet{},
		AmortStartDates: DateSet{},
	}

	var active []*AmortizedItem
	next := 0
	for ; next < len(txs) && txs[next].Date.Before(window.Start); next++ {
		tx := txs[next]
		item, err := NewAmortizedItem(tx.Duration, tx.Value)
		if err != nil {
			return nil, err
		}
		for range DaysBetween(tx.Date, window.Start) {
			cal.Leading = cal.Leading.Add(item.Apply())
		}
		active = append(active, item)
	}

	for _, day := range window.Days() {
		var delta Money

		for ; next < len(txs) && txs[next].Date.Equal(day); next++ {
			tx := txs[next]
			if tx.Duration == 1 {
				delta = delta.Add(tx.Value)
				cal.SingleDayDates.Add(day)
				continue
			}
			item, err := NewAmortizedItem(tx.Duration, tx.Value)
			if err != nil {
				return nil, err
			}
			active = append(active, item)
			cal.AmortStartDates.Add(day)
		}

		kept := active[:0]
		for _, item := range active {
			delta = delta.Add(item.Apply())
			if !item.Done() {
				kept = append(kept, item)
			}
		}
		active = kept

		cal.Days = append(cal.Days, day)
		cal.Deltas = append(cal.Deltas, delta)
	}

	for _, item := range active {
		cal.Truncated = cal.Truncated.Add(item.RemainingTotal)
	}

	if err := cal.Verify(); err != nil {
		return nil, err
	}
	return cal, nil
}

// GroupByCategory splits transactions per category, keeping input order.
func GroupByCategory(txs []Transaction) map[CategoryID][]Transaction {
	out := make(map[CategoryID][]Transaction)
	for _, tx := range txs {
		out[tx.Category] = append(out[tx.Category], tx)
	}
	return out
}

// BuildCalendars builds one calendar per category in categories over the
// same window. Categories without transactions get an all-zero calendar.
func BuildCalendars(categories []CategoryID, txs []Transaction, window Period, opts CalendarOptions) (map[CategoryID]*DeltaCalendar, error) {
	grouped := GroupByCategory(txs)
	out := make(map[CategoryID]*DeltaCalendar, len(categories))
	for _, c := range categories {
		cal, err := BuildDeltaCalendar(c, grouped[c], window, opts)
		if err != nil {
			return nil, err
		}
		out[c] = cal
	}
	return out, nil
}
