package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/money"
	"github.com/mmynk/splitledger/internal/storage"
	"github.com/mmynk/splitledger/internal/storage/memory"
)

func newTestLedger(t *testing.T) (*Ledger, *memory.Store) {
	t.Helper()
	store := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, WithLogger(logger)), store
}

func shares(kv ...any) map[models.UserID]money.Money {
	out := make(map[models.UserID]money.Money, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		out[models.UserID(kv[i].(string))] = money.New(kv[i+1].(float64))
	}
	return out
}

func assertBalance(t *testing.T, l *Ledger, u1, u2 models.UserID, want string) {
	t.Helper()
	got, err := l.Balance(context.Background(), u1, u2)
	require.NoError(t, err)
	assert.Equal(t, want, got.String(), "Balance(%s, %s)", u1, u2)
}

func TestApplyExpense(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	require.NoError(t, l.ApplyExpense(ctx, "alice", shares("alice", 30.0, "bob", 30.0, "carol", 30.0)))

	assertBalance(t, l, "alice", "bob", "30")
	assertBalance(t, l, "bob", "alice", "-30")
	assertBalance(t, l, "alice", "carol", "30")
	assertBalance(t, l, "bob", "carol", "0")

	total, err := l.TotalBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "60", total.String())

	total, err = l.TotalBalance(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "-30", total.String())

	pairs, err := l.AllPairwiseBalances(ctx)
	require.NoError(t, err)
	assert.Len(t, pairs, 2, "payer's own share creates no record")
}

func TestOppositeDebtsNetAndFlip(t *testing.T) {
	ctx := context.Background()
	l, store := newTestLedger(t)

	require.NoError(t, l.ApplyExpense(ctx, "alice", shares("bob", 100.0)))
	assertBalance(t, l, "alice", "bob", "100")

	require.NoError(t, l.ApplyExpense(ctx, "bob", shares("alice", 40.0)))
	assertBalance(t, l, "alice", "bob", "60")

	require.NoError(t, l.ApplyExpense(ctx, "bob", shares("alice", 110.0)))
	assertBalance(t, l, "alice", "bob", "-50")

	pairs, err := store.FindAllPairs(ctx)
	require.NoError(t, err)
	require.Len(t, pairs, 1, "one record per unordered pair")
	assert.Equal(t, models.UserID("alice"), pairs[0].Debtor)
	assert.Equal(t, models.UserID("bob"), pairs[0].Creditor)
	assert.Equal(t, "50", pairs[0].Amount.String())
}

func TestReverseRestoresPriorState(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	require.NoError(t, l.ApplyExpense(ctx, "alice", shares("bob", 20.0, "carol", 15.0)))
	before, err := l.AllPairwiseBalances(ctx)
	require.NoError(t, err)

	expense := shares("alice", 25.0, "bob", 25.0, "carol", 25.0, "dave", 25.0)
	require.NoError(t, l.ApplyExpense(ctx, "carol", expense))
	require.NoError(t, l.ReverseExpense(ctx, "carol", expense))

	after, err := l.AllPairwiseBalances(ctx)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].Debtor, after[i].Debtor)
		assert.Equal(t, before[i].Creditor, after[i].Creditor)
		assert.Equal(t, before[i].Amount.String(), after[i].Amount.String())
	}
	assertBalance(t, l, "carol", "dave", "0")
}

func TestResidueInsideEpsilonIsDeleted(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	require.NoError(t, l.ApplyExpense(ctx, "alice", shares("bob", 10.0)))
	require.NoError(t, l.ReverseExpense(ctx, "alice", shares("bob", 9.9995)))

	pairs, err := l.AllPairwiseBalances(ctx)
	require.NoError(t, err)
	assert.Empty(t, pairs)
}

func TestSkippedShares(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	require.NoError(t, l.ApplyExpense(ctx, "alice", shares("alice", 50.0, "bob", 0.0, "carol", -5.0)))

	pairs, err := l.AllPairwiseBalances(ctx)
	require.NoError(t, err)
	assert.Empty(t, pairs)
}

func TestSubEpsilonShareIsLoggedNotPosted(t *testing.T) {
	ctx := context.Background()
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	l := New(memory.New(), WithLogger(logger))

	require.NoError(t, l.ApplyExpense(ctx, "alice", shares("bob", 0.0004, "carol", 5.0)))

	pairs, err := l.AllPairwiseBalances(ctx)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, models.UserID("carol"), pairs[0].Debtor)

	assert.Contains(t, buf.String(), "share below epsilon not posted")
	assert.Contains(t, buf.String(), "participant=bob")
	assert.NotContains(t, buf.String(), "participant=carol")
}

func TestInvalidPostings(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	err := l.ApplyExpense(ctx, "", shares("bob", 10.0))
	assert.ErrorIs(t, err, ErrInvalidExpense)

	err = l.ApplyExpense(ctx, "alice", shares("", 10.0))
	assert.ErrorIs(t, err, ErrInvalidExpense)
}

func TestConservationAfterRandomHistory(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	rng := rand.New(rand.NewSource(7))
	users := []string{"a", "b", "c", "d", "e", "f"}

	type posted struct {
		payer  models.UserID
		shares map[models.UserID]money.Money
	}
	var history []posted

	for i := 0; i < 200; i++ {
		if len(history) > 0 && rng.Intn(4) == 0 {
			idx := rng.Intn(len(history))
			p := history[idx]
			require.NoError(t, l.ReverseExpense(ctx, p.payer, p.shares))
			history = append(history[:idx], history[idx+1:]...)
		} else {
			payer := models.UserID(users[rng.Intn(len(users))])
			s := make(map[models.UserID]money.Money)
			for _, u := range users {
				if rng.Intn(2) == 0 {
					s[models.UserID(u)] = money.NewFromInt(rng.Int63n(10000)).DivInt(3)
				}
			}
			require.NoError(t, l.ApplyExpense(ctx, payer, s))
			history = append(history, posted{payer: payer, shares: s})
		}
		require.NoError(t, l.CheckConservation(ctx), "step %d", i)
	}

	// Reversing everything leaves nothing behind.
	for _, p := range history {
		require.NoError(t, l.ReverseExpense(ctx, p.payer, p.shares))
	}
	pairs, err := l.AllPairwiseBalances(ctx)
	require.NoError(t, err)
	assert.Empty(t, pairs)
}

func TestConcurrentExpenses(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	l := New(store, WithStripes(4), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	const workers = 8
	const perWorker = 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			payer := models.UserID(fmt.Sprintf("p%d", w%2))
			for i := 0; i < perWorker; i++ {
				err := l.ApplyExpense(ctx, payer, shares("x", 1.0, "y", 2.0, "p0", 1.0, "p1", 1.0))
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	// Each payer posted workers/2*perWorker expenses.
	n := float64(workers / 2 * perWorker)
	total, err := l.TotalBalance(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, money.New(-2*n).String(), total.String())

	total, err = l.TotalBalance(ctx, "y")
	require.NoError(t, err)
	assert.Equal(t, money.New(-4*n).String(), total.String())

	// p0 and p1 owe each other the same amount, so their pair is settled.
	assertBalance(t, l, "p0", "p1", "0")
	require.NoError(t, l.CheckConservation(ctx))
}

var errBoom = errors.New("boom")

// failingStore fails pair writes that involve one user, inside transactions too.
type failingStore struct {
	storage.Store
	failFor models.UserID
}

func (f *failingStore) InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Store) error) error {
	return f.Store.InTx(ctx, func(ctx context.Context, tx storage.Store) error {
		return fn(ctx, &failingStore{Store: tx, failFor: f.failFor})
	})
}

func (f *failingStore) UpsertPair(ctx context.Context, rec *models.PairwiseBalance) error {
	if rec.Involves(f.failFor) {
		return errBoom
	}
	return f.Store.UpsertPair(ctx, rec)
}

func TestFailedWriteLeavesNoPartialApplication(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	l := New(&failingStore{Store: store, failFor: "carol"})

	err := l.ApplyExpense(ctx, "alice", shares("bob", 10.0, "carol", 10.0))
	require.ErrorIs(t, err, errBoom)

	pairs, err := store.FindAllPairs(ctx)
	require.NoError(t, err)
	assert.Empty(t, pairs, "bob's pair must roll back with carol's failure")
}

func TestPostRunsFollowUpInSameTransaction(t *testing.T) {
	ctx := context.Background()
	l, store := newTestLedger(t)

	err := l.Post(ctx, []Posting{{Payer: "alice", Shares: shares("bob", 5.0)}},
		func(ctx context.Context, tx storage.Store) error {
			_, err := tx.FindPair(ctx, "alice", "bob")
			require.NoError(t, err, "posting is visible to the follow-up")
			return errBoom
		})
	require.ErrorIs(t, err, errBoom)

	_, err = store.FindPair(ctx, "alice", "bob")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCheckConservationDetectsCorruption(t *testing.T) {
	ctx := context.Background()

	t.Run("self debt", func(t *testing.T) {
		l, store := newTestLedger(t)
		require.NoError(t, store.UpsertPair(ctx, &models.PairwiseBalance{Debtor: "a", Creditor: "a", Amount: money.New(1)}))
		assert.ErrorIs(t, l.CheckConservation(ctx), ErrLedgerInconsistency)
	})

	t.Run("non-positive amount", func(t *testing.T) {
		l, store := newTestLedger(t)
		require.NoError(t, store.UpsertPair(ctx, &models.PairwiseBalance{Debtor: "a", Creditor: "b", Amount: money.New(-3)}))
		assert.ErrorIs(t, l.CheckConservation(ctx), ErrLedgerInconsistency)
	})

	t.Run("healthy", func(t *testing.T) {
		l, _ := newTestLedger(t)
		require.NoError(t, l.ApplyExpense(ctx, "a", shares("b", 3.0)))
		assert.NoError(t, l.CheckConservation(ctx))
	})
}

// mockStore is a hand-written testify mock for the read paths.
type mockStore struct {
	storage.Store
	mock.Mock
}

func (m *mockStore) FindPair(ctx context.Context, u1, u2 models.UserID) (*models.PairwiseBalance, error) {
	args := m.Called(ctx, u1, u2)
	rec, _ := args.Get(0).(*models.PairwiseBalance)
	return rec, args.Error(1)
}

func (m *mockStore) FindAllPairsForUser(ctx context.Context, u models.UserID) ([]models.PairwiseBalance, error) {
	args := m.Called(ctx, u)
	pairs, _ := args.Get(0).([]models.PairwiseBalance)
	return pairs, args.Error(1)
}

func TestReadsPropagateStorageErrors(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}
	store.On("FindPair", ctx, models.UserID("a"), models.UserID("b")).Return(nil, errBoom)
	store.On("FindAllPairsForUser", ctx, models.UserID("a")).Return(nil, errBoom)

	l := New(store)

	_, err := l.Balance(ctx, "a", "b")
	assert.ErrorIs(t, err, errBoom)

	_, err = l.TotalBalance(ctx, "a")
	assert.ErrorIs(t, err, errBoom)

	store.AssertExpectations(t)
}

func TestBalanceReadsEitherOrientation(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}
	rec := &models.PairwiseBalance{Debtor: "b", Creditor: "a", Amount: money.New(12)}
	store.On("FindPair", ctx, mock.Anything, mock.Anything).Return(rec, nil)

	l := New(store)
	assertBalance(t, l, "a", "b", "12")
	assertBalance(t, l, "b", "a", "-12")
}
