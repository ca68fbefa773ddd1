// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/envelope-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	transactions map[generic.CategoryID][]generic.Transaction
	idempotency  map[string]bool

	envelopes  map[generic.CategoryID]generic.EnvelopeConfig
	changeSets map[generic.Month]generic.ChangeSet
	runs       map[string]*generic.SimulationRun
}

func NewMemory() *Memory {
	return &Memory{
		transactions: make(map[generic.CategoryID][]generic.Transaction),
		idempotency:  make(map[string]bool),
		envelopes:    make(map[generic.CategoryID]generic.EnvelopeConfig),
		changeSets:   make(map[generic.Month]generic.ChangeSet),
		runs:         make(map[string]*generic.SimulationRun),
	}
}

// Append adds a single transaction. Append-only.
func (m *Memory) Append(_ context.Context, tx generic.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx.IdempotencyKey != "" && m.idempotency[tx.IdempotencyKey] {
		return generic.ErrDuplicateIdempotencyKey
	}
	m.appendLocked(tx)
	return nil
}

// AppendBatch adds multiple transactions atomically.
func (m *Memory) AppendBatch(_ context.Context, txs []generic.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check all idempotency keys first (atomic check)
	seen := make(map[string]bool, len(txs))
	for _, tx := range txs {
		if tx.IdempotencyKey == "" {
			continue
		}
		if m.idempotency[tx.IdempotencyKey] || seen[tx.IdempotencyKey] {
			return generic.ErrDuplicateIdempotencyKey
		}
		seen[tx.IdempotencyKey] = true
	}

	for _, tx := range txs {
		m.appendLocked(tx)
	}
	return nil
}

func (m *Memory) appendLocked(tx generic.Transaction) {
	txs := m.transactions[tx.Category]

	// Insert after every transaction on or before the same day so
	// same-day entries keep arrival order.
	i := sort.Search(len(txs), func(i int) bool {
		return txs[i].Date.After(tx.Date)
	})

	txs = append(txs, generic.Transaction{})
	copy(txs[i+1:], txs[i:])
	txs[i] = tx
	m.transactions[tx.Category] = txs

	if tx.IdempotencyKey != "" {
		m.idempotency[tx.IdempotencyKey] = true
	}
}

func (m *Memory) Load(_ context.Context, category generic.CategoryID) ([]generic.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]generic.Transaction, len(m.transactions[category]))
	copy(result, m.transactions[category])
	return result, nil
}

func (m *Memory) LoadAll(_ context.Context) ([]generic.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collectLocked(func(generic.Transaction) bool { return true }), nil
}

func (m *Memory) LoadRange(_ context.Context, from, to generic.TimePoint) ([]generic.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collectLocked(func(tx generic.Transaction) bool {
		return from.BeforeOrEqual(tx.Date) && tx.Date.BeforeOrEqual(to)
	}), nil
}

// collectLocked merges the per-category slices in date order, then by
// category so the result is deterministic.
func (m *Memory) collectLocked(keep func(generic.Transaction) bool) []generic.Transaction {
	ids := make([]generic.CategoryID, 0, len(m.transactions))
	for id := range m.transactions {
		ids = append(ids, id)
	}
	generic.SortCategoryIDs(ids)

	var result []generic.Transaction
	for _, id := range ids {
		for _, tx := range m.transactions[id] {
			if keep(tx) {
				result = append(result, tx)
			}
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result
}

func (m *Memory) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

// =============================================================================
// ENVELOPES, CHANGE SETS, RUNS
// =============================================================================

func (m *Memory) SaveEnvelope(_ context.Context, cfg generic.EnvelopeConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.envelopes[cfg.Category] = cfg
	return nil
}

func (m *Memory) GetEnvelope(_ context.Context, category generic.CategoryID) (generic.EnvelopeConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.envelopes[category]
	if !ok {
		return generic.EnvelopeConfig{}, generic.ErrEnvelopeNotFound
	}
	return cfg, nil
}

func (m *Memory) ListEnvelopes(_ context.Context) (map[generic.CategoryID]generic.EnvelopeConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[generic.CategoryID]generic.EnvelopeConfig, len(m.envelopes))
	for k, v := range m.envelopes {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) SaveChangeSet(_ context.Context, month generic.Month, cs generic.ChangeSet) error {
	if err := cs.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changeSets[month] = cs
	return nil
}

func (m *Memory) ListChangeSets(_ context.Context) (map[generic.Month]generic.ChangeSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[generic.Month]generic.ChangeSet, len(m.changeSets))
	for k, v := range m.changeSets {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) SaveRun(_ context.Context, run *generic.SimulationRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) GetRun(_ context.Context, id string) (*generic.SimulationRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, generic.ErrRunNotFound
	}
	return run, nil
}

func (m *Memory) ListRuns(_ context.Context) ([]generic.RunSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]generic.RunSummary, 0, len(m.runs))
	for _, run := range m.runs {
		out = append(out, run.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(generic.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(&txMemoryView{parent: tm}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() memorySnapshot {
	txsCopy := make(map[generic.CategoryID][]generic.Transaction)
	for k, v := range tm.transactions {
		txsCopy[k] = append([]generic.Transaction{}, v...)
	}
	idempCopy := make(map[string]bool)
	for k, v := range tm.idempotency {
		idempCopy[k] = v
	}
	return memorySnapshot{transactions: txsCopy, idempotency: idempCopy}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.transactions = s.transactions
	tm.idempotency = s.idempotency
}

type memorySnapshot struct {
	transactions map[generic.CategoryID][]generic.Transaction
	idempotency  map[string]bool
}

// txMemoryView runs with the parent lock already held.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) Append(_ context.Context, tx generic.Transaction) error {
	if tx.IdempotencyKey != "" && tv.parent.idempotency[tx.IdempotencyKey] {
		return generic.ErrDuplicateIdempotencyKey
	}
	tv.parent.appendLocked(tx)
	return nil
}

func (tv *txMemoryView) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	for _, tx := range txs {
		if err := tv.Append(ctx, tx); err != nil {
			return err
		}
	}
	return nil
}

func (tv *txMemoryView) Load(_ context.Context, category generic.CategoryID) ([]generic.Transaction, error) {
	return append([]generic.Transaction(nil), tv.parent.transactions[category]...), nil
}

func (tv *txMemoryView) LoadAll(_ context.Context) ([]generic.Transaction, error) {
	return tv.parent.collectLocked(func(generic.Transaction) bool { return true }), nil
}

func (tv *txMemoryView) LoadRange(_ context.Context, from, to generic.TimePoint) ([]generic.Transaction, error) {
	return tv.parent.collectLocked(func(tx generic.Transaction) bool {
		return from.BeforeOrEqual(tx.Date) && tx.Date.BeforeOrEqual(to)
	}), nil
}

func (tv *txMemoryView) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	return tv.parent.idempotency[idempotencyKey], nil
}
