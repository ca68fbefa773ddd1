/*
ledger.go - Import-friendly ledger wrapper

PURPOSE:
  Bank exports overlap: last month's download and this month's share a
  week of rows. The import ledger makes re-importing harmless.

WHAT IT ADDS:
  1. Every transaction gets a random UUID as its ID if it has none
  2. Every transaction without an idempotency key gets a deterministic one,
     a name-based UUID over (date, category, value, duration, description)
  3. Import counts duplicates as skipped instead of failing the whole file
  4. On a generic.TxStore the whole import runs in one WithTx: a bad row
     leaves the ledger as it was. Plain stores keep the rows that came
     before the failing one.

  Two genuinely identical purchases on the same day with the same
  description collapse into one. Give them distinct descriptions or
  explicit keys to keep both.

SEE ALSO:
  - generic/ledger.go: Base ledger
*/
package budget

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/warp/envelope-engine/generic"
)

// importNamespace scopes derived idempotency keys.
var importNamespace = uuid.MustParse("5c1f3c2e-8a4b-4f0e-9d7a-6b2e1c0f9a31")

// ImportLedger wraps a generic ledger with ID and key assignment.
type ImportLedger struct {
	generic.Ledger
	store      generic.Store
	categories generic.CategorySet
}

// NewImportLedger wraps store with the given category set.
func NewImportLedger(store generic.Store, categories generic.CategorySet) *ImportLedger {
	return &ImportLedger{
		Ledger:     generic.NewLedger(store, categories),
		store:      store,
		categories: categories,
	}
}

// ImportResult counts what happened to each row.
type ImportResult struct {
	Added   int                     `json:"added"`
	Skipped int                     `json:"skipped"`
	IDs     []generic.TransactionID `json:"ids"`
}

// Prepare fills ID and IdempotencyKey where missing.
func Prepare(tx generic.Transaction) generic.Transaction {
	if tx.ID == "" {
		tx.ID = generic.TransactionID(uuid.New().String())
	}
	if tx.IdempotencyKey == "" {
		tx.IdempotencyKey = DeriveKey(tx)
	}
	return tx
}

// DeriveKey returns the deterministic idempotency key of a transaction.
func DeriveKey(tx generic.Transaction) string {
	name := fmt.Sprintf("%s|%s|%d|%d|%s", tx.Date, tx.Category, tx.Value.Cents(), tx.Duration, tx.Description)
	return uuid.NewSHA1(importNamespace, []byte(name)).String()
}

// Import appends every row, skipping the ones already present. onRow, if
// set, is called after each row. On a TxStore a failing row rolls back the
// rows before it and the returned result is empty.
func (l *ImportLedger) Import(ctx context.Context, txs []generic.Transaction, onRow func()) (ImportResult, error) {
	ts, ok := l.store.(generic.TxStore)
	if !ok {
		return importRows(ctx, l.Ledger, txs, onRow)
	}

	var res ImportResult
	err := ts.WithTx(ctx, func(s generic.Store) error {
		var err error
		res, err = importRows(ctx, generic.NewLedger(s, l.categories), txs, onRow)
		return err
	})
	if err != nil {
		return ImportResult{}, err
	}
	return res, nil
}

func importRows(ctx context.Context, ledger generic.Ledger, txs []generic.Transaction, onRow func()) (ImportResult, error) {
	var res ImportResult
	for i, tx := range txs {
		tx = Prepare(tx)
		err := ledger.Append(ctx, tx)
		switch {
		case errors.Is(err, generic.ErrDuplicateIdempotencyKey):
			res.Skipped++
		case err != nil:
			return res, fmt.Errorf("row %d: %w", i+1, err)
		default:
			res.Added++
			res.IDs = append(res.IDs, tx.ID)
		}
		if onRow != nil {
			onRow()
		}
	}
	return res, nil
}
