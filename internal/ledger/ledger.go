// Package ledger keeps pairwise debts between users consistent as expenses are
// applied and reversed.
//
// Each unordered pair of users has at most one record, "debtor owes creditor
// amount". Applying an expense moves every participant's share into their pair
// with the payer; an opposite movement nets against the existing record and flips
// its orientation when it crosses zero. Records that land inside the money.Epsilon
// band are deleted.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"sync"

	"github.com/mmynk/splitledger/internal/metrics"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/money"
	"github.com/mmynk/splitledger/internal/storage"
)

var (
	// ErrLedgerInconsistency means the pair records violate conservation or a
	// record invariant. It indicates a bug or corrupted storage.
	ErrLedgerInconsistency = errors.New("ledger: inconsistency detected")

	// ErrInvalidExpense is returned for postings the ledger cannot apply.
	ErrInvalidExpense = errors.New("ledger: invalid expense")
)

// DefaultStripes is the number of lock stripes pair updates are spread over.
const DefaultStripes = 64

// Ledger applies expenses to pairwise records in a storage.Store.
type Ledger struct {
	store   storage.Store
	stripes []sync.Mutex
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithMetrics records pair writes and postings.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// WithStripes sets the number of lock stripes. Values below 1 are ignored.
func WithStripes(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.stripes = make([]sync.Mutex, n)
		}
	}
}

// New creates a Ledger over store.
func New(store storage.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:   store,
		stripes: make([]sync.Mutex, DefaultStripes),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Posting is one expense's effect on the ledger: every participant other than
// the payer owes the payer their share. Reverse undoes a previous posting.
type Posting struct {
	Payer   models.UserID
	Shares  map[models.UserID]money.Money
	Reverse bool
}

// ApplyExpense records that each participant owes payer their share.
func (l *Ledger) ApplyExpense(ctx context.Context, payer models.UserID, shares map[models.UserID]money.Money) error {
	return l.Post(ctx, []Posting{{Payer: payer, Shares: shares}}, nil)
}

// ReverseExpense undoes ApplyExpense for the same payer and shares. Callers must
// reverse each applied expense exactly once; the ledger cannot detect replays.
func (l *Ledger) ReverseExpense(ctx context.Context, payer models.UserID, shares map[models.UserID]money.Money) error {
	return l.Post(ctx, []Posting{{Payer: payer, Shares: shares, Reverse: true}}, nil)
}

// Post applies postings atomically. The lock stripes of every pair they touch are
// acquired in ascending order and held for the whole call. All writes happen in a
// single store transaction. If then is non-nil it runs inside that transaction
// after the postings, so related records commit or roll back with the ledger.
func (l *Ledger) Post(ctx context.Context, postings []Posting, then func(ctx context.Context, tx storage.Store) error) error {
	type move struct {
		debtor, creditor models.UserID
		amount           money.Money // signed: positive increases debtor's debt
	}

	var (
		moves   []move
		stripes []int
	)
	for _, p := range postings {
		if p.Payer == "" {
			return fmt.Errorf("%w: payer is required", ErrInvalidExpense)
		}

		// Sort participants so moves, and therefore writes, happen in a stable order.
		participants := make([]models.UserID, 0, len(p.Shares))
		for u := range p.Shares {
			participants = append(participants, u)
		}
		sort.Slice(participants, func(i, j int) bool { return participants[i] < participants[j] })

		for _, u := range participants {
			if u == "" {
				return fmt.Errorf("%w: empty participant id", ErrInvalidExpense)
			}
			share := p.Shares[u]
			if u == p.Payer {
				continue
			}
			if !share.IsPositive() {
				if share.Sign() > 0 {
					l.logger.Debug("share below epsilon not posted", "payer", p.Payer, "participant", u, "share", share)
				}
				continue
			}
			if p.Reverse {
				share = share.Neg()
			}
			moves = append(moves, move{debtor: u, creditor: p.Payer, amount: share})
			stripes = append(stripes, l.stripeFor(u, p.Payer))
		}
	}

	unlock := l.lockStripes(stripes)
	defer unlock()

	err := l.store.InTx(ctx, func(ctx context.Context, tx storage.Store) error {
		for _, m := range moves {
			if err := l.move(ctx, tx, m.debtor, m.creditor, m.amount); err != nil {
				return err
			}
		}
		if then != nil {
			return then(ctx, tx)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, p := range postings {
		op := metrics.OperationApply
		if p.Reverse {
			op = metrics.OperationReverse
		}
		l.metrics.RecordExpensePosting(op)
	}
	return nil
}

// move nets amount into the pair as "debtor owes creditor". A negative amount
// moves the balance the other way.
func (l *Ledger) move(ctx context.Context, tx storage.Store, debtor, creditor models.UserID, amount money.Money) error {
	rec, err := tx.FindPair(ctx, debtor, creditor)
	if errors.Is(err, storage.ErrNotFound) {
		if amount.IsZero() {
			return nil
		}
		rec = &models.PairwiseBalance{Debtor: debtor, Creditor: creditor, Amount: amount}
		orient(rec)
		if err := tx.UpsertPair(ctx, rec); err != nil {
			return fmt.Errorf("failed to create pair: %w", err)
		}
		l.metrics.RecordPairWrite(metrics.ActionCreate)
		l.logger.Debug("pair created", "debtor", rec.Debtor, "creditor", rec.Creditor, "amount", rec.Amount)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to find pair: %w", err)
	}

	// Express the current balance in the debtor->creditor direction, then add.
	current := rec.Amount
	if rec.Debtor != debtor {
		current = current.Neg()
	}
	next := current.Add(amount)

	if next.IsZero() {
		if err := tx.DeletePair(ctx, rec); err != nil {
			return fmt.Errorf("failed to delete pair: %w", err)
		}
		l.metrics.RecordPairWrite(metrics.ActionDelete)
		l.logger.Debug("pair settled", "user1", debtor, "user2", creditor)
		return nil
	}

	rec.Debtor, rec.Creditor, rec.Amount = debtor, creditor, next
	orient(rec)
	if err := tx.UpsertPair(ctx, rec); err != nil {
		return fmt.Errorf("failed to update pair: %w", err)
	}
	l.metrics.RecordPairWrite(metrics.ActionUpdate)
	l.logger.Debug("pair updated", "debtor", rec.Debtor, "creditor", rec.Creditor, "amount", rec.Amount)
	return nil
}

// orient flips a record with a negative amount so the amount is positive.
func orient(rec *models.PairwiseBalance) {
	if rec.Amount.Sign() < 0 {
		rec.Debtor, rec.Creditor = rec.Creditor, rec.Debtor
		rec.Amount = rec.Amount.Neg()
	}
}

func (l *Ledger) stripeFor(u1, u2 models.UserID) int {
	lo, hi := storage.PairKey(u1, u2)
	h := fnv.New32a()
	h.Write([]byte(lo))
	h.Write([]byte{0})
	h.Write([]byte(hi))
	return int(h.Sum32() % uint32(len(l.stripes)))
}

// lockStripes locks the given stripes in ascending order, skipping duplicates,
// and returns a function that unlocks them.
func (l *Ledger) lockStripes(stripes []int) func() {
	sort.Ints(stripes)
	locked := make([]int, 0, len(stripes))
	for _, s := range stripes {
		if n := len(locked); n > 0 && locked[n-1] == s {
			continue
		}
		l.stripes[s].Lock()
		locked = append(locked, s)
	}
	return func() {
		for i := len(locked) - 1; i >= 0; i-- {
			l.stripes[locked[i]].Unlock()
		}
	}
}
