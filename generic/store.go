/*
store.go - Persistence interfaces for transactions and simulation output

PURPOSE:
  Defines the interface between the engine and the database. The engine
  itself never persists anything; the API and CLI drive these stores.
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  Store:          Transaction persistence (append, load, exists)
  TxStore:        Atomic multi-write operations
  EnvelopeStore:  Envelope configs per category
  ChangeSetStore: Change sets keyed by the month they apply to
  RunStore:       Simulation runs and their month snapshots

APPEND-ONLY CONTRACT:
  Transactions are append-only: there is no Update or Delete. A wrong
  transaction is corrected with an offsetting one, so history stays intact.

IDEMPOTENCY:
  A transaction may carry an idempotency key. If the key already exists
  the write is rejected with ErrDuplicateIdempotencyKey; importing the same
  bank export twice is then harmless.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite with versioned migrations
  - generic/store/memory.go: In-memory for testing

SEE ALSO:
  - ledger.go: Higher-level interface using Store
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Transaction persistence (append-only)
// =============================================================================

// Store handles persistence of transactions.
type Store interface {
	// Append persists a transaction. Returns error if idempotency key exists.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch persists multiple transactions atomically.
	// Either all succeed or none do.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// Load returns all transactions of one category, ordered by Date.
	Load(ctx context.Context, category CategoryID) ([]Transaction, error)

	// LoadAll returns every transaction, ordered by Date.
	LoadAll(ctx context.Context) ([]Transaction, error)

	// LoadRange returns transactions dated in [from, to], ordered by Date.
	LoadRange(ctx context.Context, from, to TimePoint) ([]Transaction, error)

	// Exists checks if idempotency key already exists.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. A non-nil error from fn
	// rolls back every write fn made.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// ENVELOPES AND CHANGE SETS
// =============================================================================

// EnvelopeStore persists envelope configs. Saving replaces the previous
// config for the category.
type EnvelopeStore interface {
	SaveEnvelope(ctx context.Context, cfg EnvelopeConfig) error
	GetEnvelope(ctx context.Context, category CategoryID) (EnvelopeConfig, error)
	ListEnvelopes(ctx context.Context) (map[CategoryID]EnvelopeConfig, error)
}

// ChangeSetStore persists the change set applied on entry to a month.
type ChangeSetStore interface {
	SaveChangeSet(ctx context.Context, month Month, cs ChangeSet) error
	ListChangeSets(ctx context.Context) (map[Month]ChangeSet, error)
}

// =============================================================================
// SIMULATION RUNS
// =============================================================================

// SimulationRun is a stored simulation result.
type SimulationRun struct {
	ID        string    `json:"id"`
	Policy    Policy    `json:"policy"`
	Period    Period    `json:"period"`
	CreatedAt time.Time `json:"created_at"`

	// Dataset is the flattened result, ready for Reconcile.
	Dataset Dataset `json:"dataset"`
	// Snapshots is set for slush-fund runs.
	Snapshots map[Month]*MonthSnapshot `json:"snapshots,omitempty"`
	// Failed lists failed checks by month or transition.
	Failed map[string][]ErrorCheck `json:"failed,omitempty"`
}

// RunSummary is the list view of a run.
type RunSummary struct {
	ID        string    `json:"id"`
	Policy    Policy    `json:"policy"`
	Period    Period    `json:"period"`
	CreatedAt time.Time `json:"created_at"`
	Failed    int       `json:"failed_checks"`
}

// RunStore persists simulation runs.
type RunStore interface {
	SaveRun(ctx context.Context, run *SimulationRun) error
	GetRun(ctx context.Context, id string) (*SimulationRun, error)
	ListRuns(ctx context.Context) ([]RunSummary, error)
}

// Summary builds the list view.
func (r *SimulationRun) Summary() RunSummary {
	n := 0
	for _, checks := range r.Failed {
		n += len(checks)
	}
	return RunSummary{ID: r.ID, Policy: r.Policy, Period: r.Period, CreatedAt: r.CreatedAt, Failed: n}
}
