package calculator

import (
	"context"
	"errors"
	"math"

	"github.com/mmynk/splitledger/internal/money"
)

// ErrUnbalanced is returned when net balances do not sum to zero, so no set of
// transfers can settle them.
var ErrUnbalanced = errors.New("net balances do not sum to zero")

// cancelCheckInterval is how many search nodes are visited between context checks.
const cancelCheckInterval = 1024

// MinTransferCount returns the minimum number of transfers that settles net.
//
// The search is exhaustive: the first unsettled balance is merged into every later
// balance of opposite sign, recursing and backtracking. Running time grows
// factorially with the number of users, so callers should bound the input size and
// pass a context with a deadline. The context is polled during the search.
//
// Balances inside the zero band (money.Epsilon) count as settled. Dropping several
// such residues can leave the rest off zero by up to SplitTolerance; a final
// leftover within that tolerance is also settled.
func MinTransferCount(ctx context.Context, net NetBalances) (int, error) {
	users := net.Users()
	balances := make([]money.Money, 0, len(users))
	for _, u := range users {
		if b := net[u]; !b.IsZero() {
			balances = append(balances, b)
		}
	}

	s := &search{ctx: ctx}
	count := s.dfs(balances, 0)
	if s.err != nil {
		return 0, s.err
	}
	if count == math.MaxInt {
		return 0, ErrUnbalanced
	}
	return count, nil
}

type search struct {
	ctx   context.Context
	nodes int
	err   error
}

// dfs mutates balances in place and restores them before returning.
// math.MaxInt means no merge sequence settles the remaining balances.
func (s *search) dfs(balances []money.Money, start int) int {
	for start < len(balances) && balances[start].IsZero() {
		start++
	}
	if start == len(balances) {
		return 0
	}
	if lastLeftover(balances, start) {
		return 0
	}

	if s.nodes%cancelCheckInterval == 0 {
		if err := s.ctx.Err(); err != nil {
			s.err = err
		}
	}
	s.nodes++
	if s.err != nil {
		return math.MaxInt
	}

	cur := balances[start]
	best := math.MaxInt
	for i := start + 1; i < len(balances); i++ {
		other := balances[i]
		if other.IsZero() || cur.IsNegative() == other.IsNegative() {
			continue
		}

		balances[i] = other.Add(cur)
		if rest := s.dfs(balances, start+1); rest != math.MaxInt && rest+1 < best {
			best = rest + 1
		}
		balances[i] = other
	}
	return best
}

// lastLeftover reports whether balances[start] is the only unsettled balance
// and small enough to be rounding drift.
func lastLeftover(balances []money.Money, start int) bool {
	for i := start + 1; i < len(balances); i++ {
		if !balances[i].IsZero() {
			return false
		}
	}
	return balances[start].WithinSplitTolerance(money.Zero())
}
