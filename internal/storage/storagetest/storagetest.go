// Package storagetest holds the behavioural tests every storage.Store
// implementation must pass. Backend packages call Run from their own tests.
package storagetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/money"
	"github.com/mmynk/splitledger/internal/storage"
)

// Factory returns an empty store. Cleanup is the factory's responsibility.
type Factory func(t *testing.T) storage.Store

var errRollback = errors.New("rollback")

// Run exercises the full storage.Store contract.
func Run(t *testing.T, newStore Factory) {
	t.Run("Pairs", func(t *testing.T) { testPairs(t, newStore(t)) })
	t.Run("PairVersionConflicts", func(t *testing.T) { testPairVersionConflicts(t, newStore(t)) })
	t.Run("Settlements", func(t *testing.T) { testSettlements(t, newStore(t)) })
	t.Run("Expenses", func(t *testing.T) { testExpenses(t, newStore(t)) })
	t.Run("TransactionRollback", func(t *testing.T) { testTransactionRollback(t, newStore(t)) })
	t.Run("TransactionCommit", func(t *testing.T) { testTransactionCommit(t, newStore(t)) })
}

func testPairs(t *testing.T, s storage.Store) {
	ctx := context.Background()

	_, err := s.FindPair(ctx, "alice", "bob")
	require.ErrorIs(t, err, storage.ErrNotFound)

	rec := &models.PairwiseBalance{Debtor: "bob", Creditor: "alice", Amount: money.MustParse("25.50")}
	require.NoError(t, s.UpsertPair(ctx, rec))
	assert.Equal(t, int64(1), rec.Version)
	assert.NotZero(t, rec.UpdatedAt)

	// Lookup works in both orientations.
	for _, users := range [][2]models.UserID{{"alice", "bob"}, {"bob", "alice"}} {
		got, err := s.FindPair(ctx, users[0], users[1])
		require.NoError(t, err)
		assert.Equal(t, models.UserID("bob"), got.Debtor)
		assert.Equal(t, models.UserID("alice"), got.Creditor)
		assert.Equal(t, "25.5", got.Amount.String())
		assert.Equal(t, int64(1), got.Version)
	}

	// Flip orientation on update.
	got, err := s.FindPair(ctx, "alice", "bob")
	require.NoError(t, err)
	got.Debtor, got.Creditor = "alice", "bob"
	got.Amount = money.MustParse("4.5")
	require.NoError(t, s.UpsertPair(ctx, got))
	assert.Equal(t, int64(2), got.Version)

	flipped, err := s.FindPair(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.UserID("alice"), flipped.Debtor)
	assert.Equal(t, "4.5", flipped.Amount.String())

	require.NoError(t, s.UpsertPair(ctx, &models.PairwiseBalance{Debtor: "carol", Creditor: "alice", Amount: money.New(10)}))
	require.NoError(t, s.UpsertPair(ctx, &models.PairwiseBalance{Debtor: "dave", Creditor: "erin", Amount: money.New(1)}))

	forAlice, err := s.FindAllPairsForUser(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, forAlice, 2)
	for _, p := range forAlice {
		assert.True(t, p.Involves("alice"))
	}

	all, err := s.FindAllPairs(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, s.DeletePair(ctx, flipped))
	_, err = s.FindPair(ctx, "alice", "bob")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = s.DeletePair(ctx, flipped)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testPairVersionConflicts(t *testing.T, s storage.Store) {
	ctx := context.Background()

	first := &models.PairwiseBalance{Debtor: "a", Creditor: "b", Amount: money.New(5)}
	require.NoError(t, s.UpsertPair(ctx, first))

	// A second insert for the same unordered pair loses the race.
	dup := &models.PairwiseBalance{Debtor: "b", Creditor: "a", Amount: money.New(7)}
	assert.ErrorIs(t, s.UpsertPair(ctx, dup), storage.ErrVersionConflict)

	readA, err := s.FindPair(ctx, "a", "b")
	require.NoError(t, err)
	readB, err := s.FindPair(ctx, "a", "b")
	require.NoError(t, err)

	readA.Amount = money.New(6)
	require.NoError(t, s.UpsertPair(ctx, readA))

	readB.Amount = money.New(9)
	assert.ErrorIs(t, s.UpsertPair(ctx, readB), storage.ErrVersionConflict)
	assert.ErrorIs(t, s.DeletePair(ctx, readB), storage.ErrVersionConflict)

	current, err := s.FindPair(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, "6", current.Amount.String())
	assert.Equal(t, int64(2), current.Version)
}

func testSettlements(t *testing.T, s storage.Store) {
	ctx := context.Background()

	list, err := s.ListSettlements(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	for i, to := range []models.UserID{"b", "c", "d"} {
		st := &models.SettlementTransaction{
			From:      "a",
			To:        to,
			Amount:    money.NewFromInt(int64(i + 1)),
			Algorithm: "greedy",
		}
		require.NoError(t, s.SaveSettlement(ctx, st))
		assert.NotEmpty(t, st.ID)
		assert.NotZero(t, st.CreatedAt)
	}

	list, err = s.ListSettlements(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, models.UserID("b"), list[0].To)
	assert.Equal(t, models.UserID("d"), list[2].To)
	assert.Equal(t, "3", list[2].Amount.String())
	assert.Equal(t, "greedy", list[2].Algorithm)
}

func newExpense(payer models.UserID, group string, participants ...models.UserID) *models.Expense {
	shares := make(map[models.UserID]money.Money, len(participants))
	for _, p := range participants {
		shares[p] = money.New(10)
	}
	return &models.Expense{
		Title:        "Dinner",
		GroupID:      group,
		Payer:        payer,
		Amount:       money.NewFromInt(int64(10 * len(participants))),
		Participants: participants,
		Split: models.SplitDetails{
			Kind:   "SHARES",
			Shares: map[models.UserID]float64{participants[0]: 1},
		},
		Shares: shares,
	}
}

func testExpenses(t *testing.T, s storage.Store) {
	ctx := context.Background()

	e1 := newExpense("alice", "trip", "alice", "bob", "carol")
	require.NoError(t, s.CreateExpense(ctx, e1))
	assert.NotEmpty(t, e1.ID)
	assert.NotZero(t, e1.CreatedAt)

	e2 := newExpense("bob", "", "bob", "dave")
	require.NoError(t, s.CreateExpense(ctx, e2))
	e3 := newExpense("erin", "trip", "erin", "alice")
	require.NoError(t, s.CreateExpense(ctx, e3))

	got, err := s.GetExpense(ctx, e1.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dinner", got.Title)
	assert.Equal(t, models.UserID("alice"), got.Payer)
	assert.Equal(t, []models.UserID{"alice", "bob", "carol"}, got.Participants)
	assert.Equal(t, "30", got.Amount.String())
	assert.Equal(t, "10", got.Shares["bob"].String())
	assert.Equal(t, "SHARES", got.Split.Kind)
	assert.Equal(t, 1.0, got.Split.Shares["alice"])

	_, err = s.GetExpense(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	all, err := s.ListExpenses(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, e1.ID, all[0].ID)
	assert.Equal(t, e3.ID, all[2].ID)

	trip, err := s.ListExpensesByGroup(ctx, "trip")
	require.NoError(t, err)
	assert.Len(t, trip, 2)

	forAlice, err := s.ListExpensesByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, forAlice, 2)

	forDave, err := s.ListExpensesByUser(ctx, "dave")
	require.NoError(t, err)
	require.Len(t, forDave, 1)
	assert.Equal(t, e2.ID, forDave[0].ID)

	// Update replaces the participant set.
	got.Title = "Late dinner"
	got.Participants = []models.UserID{"alice", "dave"}
	got.Shares = map[models.UserID]money.Money{"alice": money.New(15), "dave": money.New(15)}
	require.NoError(t, s.UpdateExpense(ctx, got))

	updated, err := s.GetExpense(ctx, e1.ID)
	require.NoError(t, err)
	assert.Equal(t, "Late dinner", updated.Title)
	assert.Equal(t, []models.UserID{"alice", "dave"}, updated.Participants)
	assert.NotContains(t, updated.Shares, models.UserID("bob"))

	forBob, err := s.ListExpensesByUser(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, forBob, 1, "bob only remains on the expense he paid for")

	missing := newExpense("x", "", "x")
	missing.ID = "missing"
	assert.ErrorIs(t, s.UpdateExpense(ctx, missing), storage.ErrNotFound)

	require.NoError(t, s.DeleteExpense(ctx, e1.ID))
	_, err = s.GetExpense(ctx, e1.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.DeleteExpense(ctx, e1.ID), storage.ErrNotFound)
}

func testTransactionRollback(t *testing.T, s storage.Store) {
	ctx := context.Background()

	err := s.InTx(ctx, func(ctx context.Context, tx storage.Store) error {
		if err := tx.UpsertPair(ctx, &models.PairwiseBalance{Debtor: "a", Creditor: "b", Amount: money.New(3)}); err != nil {
			return err
		}
		if err := tx.CreateExpense(ctx, newExpense("b", "", "a", "b")); err != nil {
			return err
		}
		// Writes are visible inside the transaction.
		if _, err := tx.FindPair(ctx, "a", "b"); err != nil {
			return err
		}
		return errRollback
	})
	require.ErrorIs(t, err, errRollback)

	_, err = s.FindPair(ctx, "a", "b")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	expenses, err := s.ListExpenses(ctx)
	require.NoError(t, err)
	assert.Empty(t, expenses)
}

func testTransactionCommit(t *testing.T, s storage.Store) {
	ctx := context.Background()

	err := s.InTx(ctx, func(ctx context.Context, tx storage.Store) error {
		rec := &models.PairwiseBalance{Debtor: "a", Creditor: "b", Amount: money.New(3)}
		if err := tx.UpsertPair(ctx, rec); err != nil {
			return err
		}
		// Nested InTx joins the outer transaction.
		return tx.InTx(ctx, func(ctx context.Context, inner storage.Store) error {
			rec.Amount = money.New(8)
			return inner.UpsertPair(ctx, rec)
		})
	})
	require.NoError(t, err)

	got, err := s.FindPair(ctx, "b", "a")
	require.NoError(t, err)
	assert.Equal(t, "8", got.Amount.String())
	assert.Equal(t, int64(2), got.Version)
}
