package calculator

import (
	"sort"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/money"
)

// NetBalances maps each user to their net position across all pairs.
// Positive = owed money, Negative = owes money.
type NetBalances map[models.UserID]money.Money

// Transfer is a single payment that moves Amount from From (a debtor) to To (a creditor).
type Transfer struct {
	From   models.UserID
	To     models.UserID
	Amount money.Money
}

// CalculateNetBalances folds pairwise records into per-user net balances.
//
// Algorithm:
// - For each pair: debtor gets -amount, creditor gets +amount
// - Users whose net lands inside the zero band are dropped
func CalculateNetBalances(pairs []models.PairwiseBalance) NetBalances {
	net := make(NetBalances)
	for _, p := range pairs {
		net[p.Debtor] = net[p.Debtor].Sub(p.Amount)
		net[p.Creditor] = net[p.Creditor].Add(p.Amount)
	}

	for u, b := range net {
		if b.IsZero() {
			delete(net, u)
		}
	}
	return net
}

// Users returns the users with a balance, sorted by ID.
func (n NetBalances) Users() []models.UserID {
	users := make([]models.UserID, 0, len(n))
	for u := range n {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users
}

// Total returns the sum of all balances. It stays within tolerance of zero for a
// consistent ledger.
func (n NetBalances) Total() money.Money {
	total := money.Zero()
	for _, b := range n {
		total = total.Add(b)
	}
	return total
}

// Apply replays transfers against a copy of the balances: the payer's balance
// rises and the receiver's falls. Settled users are dropped from the result.
func (n NetBalances) Apply(transfers []Transfer) NetBalances {
	out := make(NetBalances, len(n))
	for u, b := range n {
		out[u] = b
	}
	for _, t := range transfers {
		out[t.From] = out[t.From].Add(t.Amount)
		out[t.To] = out[t.To].Sub(t.Amount)
	}
	for u, b := range out {
		if b.IsZero() {
			delete(out, u)
		}
	}
	return out
}
