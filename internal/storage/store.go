// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/mmynk/splitledger/internal/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrVersionConflict is returned when a write carries a stale Version, meaning
	// another writer changed the record since it was read.
	ErrVersionConflict = errors.New("storage: version conflict")
)

// PairStore persists pairwise balances. Records are keyed by the unordered pair
// of users; the debtor/creditor orientation is data and may flip between writes.
type PairStore interface {
	// FindPair returns the record between u1 and u2 in either orientation.
	// Returns ErrNotFound when the users have no record.
	FindPair(ctx context.Context, u1, u2 models.UserID) (*models.PairwiseBalance, error)

	// UpsertPair inserts the record when rec.Version is 0, otherwise updates it if
	// the stored version still equals rec.Version. On success rec.Version is
	// incremented. A stale version (or an insert racing another insert) returns
	// ErrVersionConflict.
	UpsertPair(ctx context.Context, rec *models.PairwiseBalance) error

	// DeletePair removes the record for rec's pair, subject to the same version check.
	DeletePair(ctx context.Context, rec *models.PairwiseBalance) error

	// FindAllPairsForUser returns every record where u is debtor or creditor.
	FindAllPairsForUser(ctx context.Context, u models.UserID) ([]models.PairwiseBalance, error)

	// FindAllPairs returns every record.
	FindAllPairs(ctx context.Context) ([]models.PairwiseBalance, error)
}

// SettlementStore persists the settlement audit trail.
type SettlementStore interface {
	// SaveSettlement appends a transaction. ID and CreatedAt are filled in when empty.
	SaveSettlement(ctx context.Context, st *models.SettlementTransaction) error

	// ListSettlements returns all transactions in the order they were saved.
	ListSettlements(ctx context.Context) ([]models.SettlementTransaction, error)
}

// ExpenseStore persists expenses together with their computed shares.
type ExpenseStore interface {
	// CreateExpense persists a new expense. ID and CreatedAt are filled in when empty.
	CreateExpense(ctx context.Context, e *models.Expense) error

	// GetExpense retrieves an expense by ID. Returns ErrNotFound when missing.
	GetExpense(ctx context.Context, id string) (*models.Expense, error)

	// UpdateExpense replaces an existing expense. Returns ErrNotFound when missing.
	UpdateExpense(ctx context.Context, e *models.Expense) error

	// DeleteExpense removes an expense. Returns ErrNotFound when missing.
	DeleteExpense(ctx context.Context, id string) error

	// ListExpenses returns all expenses, oldest first.
	ListExpenses(ctx context.Context) ([]*models.Expense, error)

	// ListExpensesByGroup returns the expenses tagged with groupID, oldest first.
	ListExpensesByGroup(ctx context.Context, groupID string) ([]*models.Expense, error)

	// ListExpensesByUser returns the expenses u paid for or takes part in, oldest first.
	ListExpensesByUser(ctx context.Context, u models.UserID) ([]*models.Expense, error)
}

// Store defines the full persistence surface used by the ledger, the settlement
// engine and the expense service.
// This abstraction allows swapping storage backends (memory, SQLite, PostgreSQL)
// without changing the layers above.
type Store interface {
	PairStore
	SettlementStore
	ExpenseStore

	// InTx runs fn inside a transaction. fn must use the Store it is handed, not
	// the receiver. The transaction commits when fn returns nil and rolls back
	// otherwise. Calling InTx on a Store that is already transactional joins the
	// outer transaction.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	// Close releases any resources held by the store.
	Close() error
}

// PairKey orders two user IDs so that each unordered pair has a single key.
func PairKey(u1, u2 models.UserID) (lo, hi models.UserID) {
	if u2 < u1 {
		return u2, u1
	}
	return u1, u2
}
