/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every persistence interface the API and CLI drive (Store,
  TxStore, EnvelopeStore, ChangeSetStore, RunStore) on SQLite through the
  mattn/go-sqlite3 driver.

INTERFACES IMPLEMENTED:
  generic.Store:          Transaction persistence
  generic.TxStore:        Atomic multi-write operations
  generic.EnvelopeStore:  Envelope configs
  generic.ChangeSetStore: Month change sets
  generic.RunStore:       Simulation runs and month snapshots

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on the transactions table
  - No DELETE statements on the transactions table
  - Corrections are offsetting transactions

KEY TABLES:
  transactions:     Immutable ledger of categorized values
  envelopes:        Capacity and refill per category
  change_sets:      Overrides applied on entry to a month
  simulation_runs:  Stored run results (dataset and failed checks as JSON)
  month_snapshots:  Per-month slush-fund snapshots of a run

MONEY AND DATES:
  Amounts are stored as INTEGER cents, dates as TEXT "YYYY-MM-DD", so
  ORDER BY date is chronological. Same-day entries keep insertion order
  through the seq column.

MIGRATION:
  Versioned migrations in migrations/*.sql are embedded and applied on
  New() with golang-migrate.

USAGE:
  store, err := sqlite.New("./data/envelope.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := budget.NewImportLedger(store, budget.DefaultCategories())

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/envelope-engine/generic"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// TRANSACTION STORE (generic.Store interface)
// =============================================================================

const selectTransactions = `
	SELECT id, date, category, value_cents, duration, description, idempotency_key
	FROM transactions
`

// Append adds a transaction to the ledger.
func (s *Store) Append(ctx context.Context, tx generic.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return appendTx(ctx, s.db, tx)
}

func appendTx(ctx context.Context, db querier, tx generic.Transaction) error {
	query := `
		INSERT INTO transactions
		(id, date, category, value_cents, duration, description, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		nullString(string(tx.ID)),
		tx.Date.String(),
		string(tx.Category),
		tx.Value.Cents(),
		tx.Duration,
		nullString(tx.Description),
		nullString(tx.IdempotencyKey),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

// AppendBatch adds multiple transactions atomically.
func (s *Store) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make(map[string]bool)
	for _, tx := range txs {
		if tx.IdempotencyKey == "" {
			continue
		}
		if keys[tx.IdempotencyKey] {
			return generic.ErrDuplicateIdempotencyKey
		}
		keys[tx.IdempotencyKey] = true
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, tx := range txs {
		if err := appendTx(ctx, sqlTx, tx); err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

// Load returns the transactions of one category in date order.
func (s *Store) Load(ctx context.Context, category generic.CategoryID) ([]generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return loadCategory(ctx, s.db, category)
}

// LoadAll returns every transaction in date order.
func (s *Store) LoadAll(ctx context.Context) ([]generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return loadAll(ctx, s.db)
}

// LoadRange returns transactions dated in [from, to].
func (s *Store) LoadRange(ctx context.Context, from, to generic.TimePoint) ([]generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return loadRange(ctx, s.db, from, to)
}

// Exists checks if an idempotency key exists.
func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return exists(ctx, s.db, idempotencyKey)
}

func loadCategory(ctx context.Context, db querier, category generic.CategoryID) ([]generic.Transaction, error) {
	return queryTransactions(ctx, db, selectTransactions+`
		WHERE category = ?
		ORDER BY date ASC, seq ASC`, string(category))
}

func loadAll(ctx context.Context, db querier) ([]generic.Transaction, error) {
	return queryTransactions(ctx, db, selectTransactions+`
		ORDER BY date ASC, category ASC, seq ASC`)
}

func loadRange(ctx context.Context, db querier, from, to generic.TimePoint) ([]generic.Transaction, error) {
	return queryTransactions(ctx, db, selectTransactions+`
		WHERE date >= ? AND date <= ?
		ORDER BY date ASC, category ASC, seq ASC`, from.String(), to.String())
}

func exists(ctx context.Context, db querier, idempotencyKey string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)
	return count > 0, err
}

func queryTransactions(ctx context.Context, db querier, query string, args ...any) ([]generic.Transaction, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []generic.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

func scanTransaction(rows *sql.Rows) (generic.Transaction, error) {
	var (
		tx             generic.Transaction
		id             sql.NullString
		date           string
		category       string
		cents          int64
		description    sql.NullString
		idempotencyKey sql.NullString
	)

	err := rows.Scan(&id, &date, &category, &cents, &tx.Duration, &description, &idempotencyKey)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	tx.Date, err = generic.ParseDate(date)
	if err != nil {
		return tx, fmt.Errorf("corrupt transaction date %q: %w", date, err)
	}
	tx.ID = generic.TransactionID(id.String)
	tx.Category = generic.CategoryID(category)
	tx.Value = generic.Cents(cents)
	tx.Description = description.String
	tx.IdempotencyKey = idempotencyKey.String
	return tx, nil
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction. Reads made
// through the Store passed to fn see the uncommitted writes.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) Append(ctx context.Context, tx generic.Transaction) error {
	return appendTx(ctx, ts.tx, tx)
}

func (ts *txStore) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	for _, tx := range txs {
		if err := appendTx(ctx, ts.tx, tx); err != nil {
			return err
		}
	}
	return nil
}

func (ts *txStore) Load(ctx context.Context, category generic.CategoryID) ([]generic.Transaction, error) {
	return loadCategory(ctx, ts.tx, category)
}

func (ts *txStore) LoadAll(ctx context.Context) ([]generic.Transaction, error) {
	return loadAll(ctx, ts.tx)
}

func (ts *txStore) LoadRange(ctx context.Context, from, to generic.TimePoint) ([]generic.Transaction, error) {
	return loadRange(ctx, ts.tx, from, to)
}

func (ts *txStore) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	return exists(ctx, ts.tx, idempotencyKey)
}

// =============================================================================
// ENVELOPE STORE
// =============================================================================

// SaveEnvelope inserts or replaces the config of one category.
func (s *Store) SaveEnvelope(ctx context.Context, cfg generic.EnvelopeConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO envelopes
		(category, capacity_cents, monthly_refill_cents, daily_refill_cents, critical, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(category) DO UPDATE SET
			capacity_cents = excluded.capacity_cents,
			monthly_refill_cents = excluded.monthly_refill_cents,
			daily_refill_cents = excluded.daily_refill_cents,
			critical = excluded.critical,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		string(cfg.Category),
		cfg.Capacity.Cents(),
		cfg.MonthlyRefill.Cents(),
		cfg.DailyRefill.Cents(),
		cfg.Critical,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save envelope: %w", err)
	}
	return nil
}

// GetEnvelope returns the config of one category.
func (s *Store) GetEnvelope(ctx context.Context, category generic.CategoryID) (generic.EnvelopeConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT category, capacity_cents, monthly_refill_cents, daily_refill_cents, critical
		FROM envelopes WHERE category = ?`, string(category))

	cfg, err := scanEnvelope(row)
	if errors.Is(err, sql.ErrNoRows) {
		return cfg, generic.ErrEnvelopeNotFound
	}
	return cfg, err
}

// ListEnvelopes returns every stored config.
func (s *Store) ListEnvelopes(ctx context.Context) (map[generic.CategoryID]generic.EnvelopeConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT category, capacity_cents, monthly_refill_cents, daily_refill_cents, critical
		FROM envelopes ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("failed to query envelopes: %w", err)
	}
	defer rows.Close()

	out := make(map[generic.CategoryID]generic.EnvelopeConfig)
	for rows.Next() {
		cfg, err := scanEnvelope(rows)
		if err != nil {
			return nil, err
		}
		out[cfg.Category] = cfg
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEnvelope(row scanner) (generic.EnvelopeConfig, error) {
	var (
		cfg                      generic.EnvelopeConfig
		category                 string
		capacity, monthly, daily int64
	)
	if err := row.Scan(&category, &capacity, &monthly, &daily, &cfg.Critical); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cfg, err
		}
		return cfg, fmt.Errorf("failed to scan envelope: %w", err)
	}
	cfg.Category = generic.CategoryID(category)
	cfg.Capacity = generic.Cents(capacity)
	cfg.MonthlyRefill = generic.Cents(monthly)
	cfg.DailyRefill = generic.Cents(daily)
	return cfg, nil
}

// =============================================================================
// CHANGE SET STORE
// =============================================================================

// SaveChangeSet stores the change set applied on entry to month, replacing
// any previous one.
func (s *Store) SaveChangeSet(ctx context.Context, month generic.Month, cs generic.ChangeSet) error {
	if err := cs.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("failed to encode change set: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO change_sets (month, changes_json, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(month) DO UPDATE SET
			changes_json = excluded.changes_json,
			updated_at = excluded.updated_at`,
		month.String(), string(data), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save change set: %w", err)
	}
	return nil
}

// ListChangeSets returns every stored change set by month.
func (s *Store) ListChangeSets(ctx context.Context) (map[generic.Month]generic.ChangeSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT month, changes_json FROM change_sets ORDER BY month")
	if err != nil {
		return nil, fmt.Errorf("failed to query change sets: %w", err)
	}
	defer rows.Close()

	out := make(map[generic.Month]generic.ChangeSet)
	for rows.Next() {
		var key, data string
		if err := rows.Scan(&key, &data); err != nil {
			return nil, fmt.Errorf("failed to scan change set: %w", err)
		}
		month, err := generic.ParseMonth(key)
		if err != nil {
			return nil, err
		}
		var cs generic.ChangeSet
		if err := json.Unmarshal([]byte(data), &cs); err != nil {
			return nil, fmt.Errorf("corrupt change set %s: %w", key, err)
		}
		out[month] = cs
	}
	return out, rows.Err()
}

// =============================================================================
// RUN STORE
// =============================================================================

// SaveRun stores a run and its month snapshots in one transaction.
func (s *Store) SaveRun(ctx context.Context, run *generic.SimulationRun) error {
	dataset, err := json.Marshal(run.Dataset)
	if err != nil {
		return fmt.Errorf("failed to encode dataset: %w", err)
	}
	var failed []byte
	if len(run.Failed) > 0 {
		if failed, err = json.Marshal(run.Failed); err != nil {
			return fmt.Errorf("failed to encode checks: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO simulation_runs
		(id, policy, period_start, period_end, dataset_json, failed_json, failed_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		string(run.Policy),
		run.Period.Start.String(),
		run.Period.End.String(),
		string(dataset),
		nullString(string(failed)),
		run.Summary().Failed,
		run.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	for month, snap := range run.Snapshots {
		data, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("failed to encode snapshot %s: %w", month, err)
		}
		_, err = sqlTx.ExecContext(ctx,
			"INSERT INTO month_snapshots (run_id, month, snapshot_json) VALUES (?, ?, ?)",
			run.ID, month.String(), string(data))
		if err != nil {
			return fmt.Errorf("failed to save snapshot %s: %w", month, err)
		}
	}
	return sqlTx.Commit()
}

// GetRun loads a run with its snapshots.
func (s *Store) GetRun(ctx context.Context, id string) (*generic.SimulationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		run              generic.SimulationRun
		policy           string
		start, end       string
		dataset, created string
		failed           sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, policy, period_start, period_end, dataset_json, failed_json, created_at
		FROM simulation_runs WHERE id = ?`, id,
	).Scan(&run.ID, &policy, &start, &end, &dataset, &failed, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	run.Policy = generic.Policy(policy)
	if run.Period, err = parsePeriod(start, end); err != nil {
		return nil, err
	}
	if run.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("corrupt created_at for run %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(dataset), &run.Dataset); err != nil {
		return nil, fmt.Errorf("corrupt dataset for run %s: %w", id, err)
	}
	if failed.Valid {
		if err := json.Unmarshal([]byte(failed.String), &run.Failed); err != nil {
			return nil, fmt.Errorf("corrupt checks for run %s: %w", id, err)
		}
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT month, snapshot_json FROM month_snapshots WHERE run_id = ? ORDER BY month", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, data string
		if err := rows.Scan(&key, &data); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		var snap generic.MonthSnapshot
		if err := json.Unmarshal([]byte(data), &snap); err != nil {
			return nil, fmt.Errorf("corrupt snapshot %s of run %s: %w", key, id, err)
		}
		if run.Snapshots == nil {
			run.Snapshots = make(map[generic.Month]*generic.MonthSnapshot)
		}
		run.Snapshots[snap.Month] = &snap
	}
	return &run, rows.Err()
}

// ListRuns returns run summaries, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]generic.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, policy, period_start, period_end, failed_count, created_at
		FROM simulation_runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []generic.RunSummary{}
	for rows.Next() {
		var (
			sum                generic.RunSummary
			policy, start, end string
			created            string
		)
		if err := rows.Scan(&sum.ID, &policy, &start, &end, &sum.Failed, &created); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		sum.Policy = generic.Policy(policy)
		if sum.Period, err = parsePeriod(start, end); err != nil {
			return nil, err
		}
		if sum.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("corrupt created_at for run %s: %w", sum.ID, err)
		}
		runs = append(runs, sum)
	}
	return runs, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"month_snapshots", "simulation_runs", "change_sets", "envelopes", "transactions"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// CountTransactions returns the number of stored transactions.
func (s *Store) CountTransactions(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions").Scan(&n)
	return n, err
}

func parsePeriod(start, end string) (generic.Period, error) {
	s, err := generic.ParseDate(start)
	if err != nil {
		return generic.Period{}, fmt.Errorf("corrupt period start %q: %w", start, err)
	}
	e, err := generic.ParseDate(end)
	if err != nil {
		return generic.Period{}, fmt.Errorf("corrupt period end %q: %w", end, err)
	}
	return generic.Period{Start: s, End: e}, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

var (
	_ generic.TxStore        = (*Store)(nil)
	_ generic.EnvelopeStore  = (*Store)(nil)
	_ generic.ChangeSetStore = (*Store)(nil)
	_ generic.RunStore       = (*Store)(nil)
)
