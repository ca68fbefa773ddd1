package generic

// =============================================================================
// AMORTIZED ITEM - Spreads one value over consecutive days
// =============================================================================

// AmortizedItem distributes a total over a number of days without losing
// cents. The share is recomputed from what is left on every Apply, so
// rounding error never piles up on the last day and the applied shares
// always sum to the original total.
type AmortizedItem struct {
	RemainingDays  int
	RemainingTotal Money
	DailyShare     Money
}

// NewAmortizedItem starts a distribution of total over days.
func NewAmortizedItem(days int, total Money) (*AmortizedItem, error) {
	if days < 1 {
		return nil, &InvalidInputError{Field: "duration", Reason: "amortization needs at least one day"}
	}
	item := &AmortizedItem{RemainingDays: days, RemainingTotal: total}
	item.DailyShare = item.nextShare()
	return item, nil
}

func (a *AmortizedItem) nextShare() Money {
	if a.RemainingDays <= 0 {
		return 0
	}
	return a.RemainingTotal.DivRound(int64(a.RemainingDays))
}

// Apply advances one day and returns that day's share. An exhausted item
// returns zero.
func (a *AmortizedItem) Apply() Money {
	if a.RemainingDays <= 0 {
		return 0
	}
	share := a.nextShare()
	a.RemainingTotal = a.RemainingTotal.Sub(share)
	a.RemainingDays--
	if a.RemainingDays == 0 {
		a.DailyShare = 0
		if !a.RemainingTotal.IsZero() {
			// Unreachable: with one day left the share is the whole remainder.
			panic("generic: amortization leaked " + a.RemainingTotal.String())
		}
		return share
	}
	a.DailyShare = a.nextShare()
	return share
}

// Done reports whether every day has been applied.
func (a *AmortizedItem) Done() bool {
	return a.RemainingDays <= 0
}
