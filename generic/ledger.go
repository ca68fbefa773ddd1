/*
ledger.go - Append-only transaction log

PURPOSE:
  The Ledger is the source of truth for categorized transactions. The
  simulators never read it directly: SimulationEngine loads from it and
  passes plain slices in, so the simulators stay pure.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete.
  2. IMMUTABLE: Once written, transactions cannot be modified
  3. IDEMPOTENT: Same idempotency key = same transaction (no duplicates)
  4. CLOSED SET: Every transaction's category is in the ledger's CategorySet

CORRECTIONS:
  A miscategorized purchase is not edited. Append an offsetting transaction
  on the wrong category and the real one on the right category; the net
  effect is the correction and the history shows both.

SEE ALSO:
  - store.go: Low-level persistence interface
  - engine.go: Consumer
*/
package generic

import "context"

// =============================================================================
// LEDGER - Append-only transaction log
// =============================================================================

// Ledger is the source of truth for categorized transactions.
type Ledger interface {
	// Append adds a transaction. Fails if idempotency key exists.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch adds multiple transactions atomically.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// Transactions returns every transaction, chronologically.
	Transactions(ctx context.Context) ([]Transaction, error)

	// TransactionsFor returns one category's transactions, chronologically.
	TransactionsFor(ctx context.Context, category CategoryID) ([]Transaction, error)

	// TransactionsInRange returns transactions dated in [from, to].
	TransactionsInRange(ctx context.Context, from, to TimePoint) ([]Transaction, error)

	// NetAt sums a category's raw transaction values dated on or before at.
	// Amortization is ignored: this is the cash view, not the envelope view.
	NetAt(ctx context.Context, category CategoryID, at TimePoint) (Money, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation using Store
// =============================================================================

type DefaultLedger struct {
	Store      Store
	Categories CategorySet
}

func NewLedger(store Store, categories CategorySet) *DefaultLedger {
	return &DefaultLedger{Store: store, Categories: categories}
}

func (l *DefaultLedger) Append(ctx context.Context, tx Transaction) error {
	if err := l.check(tx); err != nil {
		return err
	}
	if tx.IdempotencyKey != "" {
		exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.Append(ctx, tx)
}

func (l *DefaultLedger) AppendBatch(ctx context.Context, txs []Transaction) error {
	// Validate and check all idempotency keys first
	seen := make(map[string]bool, len(txs))
	for _, tx := range txs {
		if err := l.check(tx); err != nil {
			return err
		}
		if tx.IdempotencyKey == "" {
			continue
		}
		if seen[tx.IdempotencyKey] {
			return ErrDuplicateIdempotencyKey
		}
		seen[tx.IdempotencyKey] = true
		exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.AppendBatch(ctx, txs)
}

func (l *DefaultLedger) check(tx Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	if l.Categories.Len() > 0 {
		return l.Categories.Validate(tx.Category)
	}
	return nil
}

func (l *DefaultLedger) Transactions(ctx context.Context) ([]Transaction, error) {
	return l.Store.LoadAll(ctx)
}

func (l *DefaultLedger) TransactionsFor(ctx context.Context, category CategoryID) ([]Transaction, error) {
	return l.Store.Load(ctx, category)
}

func (l *DefaultLedger) TransactionsInRange(ctx context.Context, from, to TimePoint) ([]Transaction, error) {
	return l.Store.LoadRange(ctx, from, to)
}

func (l *DefaultLedger) NetAt(ctx context.Context, category CategoryID, at TimePoint) (Money, error) {
	txs, err := l.Store.Load(ctx, category)
	if err != nil {
		return 0, err
	}

	var net Money
	for _, tx := range txs {
		if tx.Date.After(at) {
			break
		}
		net = net.Add(tx.Value)
	}
	return net, nil
}
