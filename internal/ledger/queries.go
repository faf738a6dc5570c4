package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/money"
	"github.com/mmynk/splitledger/internal/storage"
)

// Balance returns the balance between u1 and u2 from u1's point of view:
// positive when u2 owes u1, negative when u1 owes u2, zero when they are settled.
func (l *Ledger) Balance(ctx context.Context, u1, u2 models.UserID) (money.Money, error) {
	rec, err := l.store.FindPair(ctx, u1, u2)
	if errors.Is(err, storage.ErrNotFound) {
		return money.Zero(), nil
	}
	if err != nil {
		return money.Zero(), fmt.Errorf("failed to get balance: %w", err)
	}
	return rec.SignedFor(u1), nil
}

// TotalBalance returns u's net position across all pairs: what others owe u
// minus what u owes others.
func (l *Ledger) TotalBalance(ctx context.Context, u models.UserID) (money.Money, error) {
	pairs, err := l.store.FindAllPairsForUser(ctx, u)
	if err != nil {
		return money.Zero(), fmt.Errorf("failed to get pairs for user: %w", err)
	}

	total := money.Zero()
	for _, p := range pairs {
		total = total.Add(p.SignedFor(u))
	}
	return total, nil
}

// AllPairwiseBalances returns a snapshot of every pair record.
func (l *Ledger) AllPairwiseBalances(ctx context.Context) ([]models.PairwiseBalance, error) {
	pairs, err := l.store.FindAllPairs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get pairs: %w", err)
	}
	return pairs, nil
}

// CheckConservation verifies that net balances across all users sum to zero
// within money.SplitTolerance and that every record is well formed: distinct
// users and an amount above the zero band. Violations wrap ErrLedgerInconsistency.
func (l *Ledger) CheckConservation(ctx context.Context) error {
	pairs, err := l.AllPairwiseBalances(ctx)
	if err != nil {
		return err
	}

	net := make(map[models.UserID]money.Money)
	for _, p := range pairs {
		if p.Debtor == p.Creditor {
			return fmt.Errorf("%w: self-debt recorded for %s", ErrLedgerInconsistency, p.Debtor)
		}
		if !p.Amount.IsPositive() {
			return fmt.Errorf("%w: pair %s/%s has non-positive amount %s",
				ErrLedgerInconsistency, p.Debtor, p.Creditor, p.Amount)
		}
		net[p.Debtor] = net[p.Debtor].Sub(p.Amount)
		net[p.Creditor] = net[p.Creditor].Add(p.Amount)
	}

	sum := money.Zero()
	for _, b := range net {
		sum = sum.Add(b)
	}
	if !sum.WithinSplitTolerance(money.Zero()) {
		l.logger.Error("ledger conservation violated", "sum", sum, "users", len(net))
		return fmt.Errorf("%w: net balances sum to %s", ErrLedgerInconsistency, sum)
	}
	return nil
}
