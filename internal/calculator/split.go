package calculator

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/money"
)

// ErrInvalidSplit is returned when split parameters fail policy validation.
// It always indicates bad caller input.
var ErrInvalidSplit = errors.New("invalid split")

// Kind tags a split policy.
type Kind int

const (
	KindEqual Kind = iota + 1
	KindPercentage
	KindExactAmount
	KindShares
	KindAdjustment
)

var kindNames = map[Kind]string{
	KindEqual:       "EQUAL",
	KindPercentage:  "PERCENTAGE",
	KindExactAmount: "EXACT_AMOUNT",
	KindShares:      "SHARES",
	KindAdjustment:  "ADJUSTMENT",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind converts a policy tag such as "EXACT_AMOUNT" into a Kind.
// Matching is case-insensitive.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if strings.EqualFold(s, name) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown split kind %q", ErrInvalidSplit, s)
}

// Split is a split policy. The set of policies is closed: Equal, Percentage,
// ExactAmount, Shares and Adjustment are the only implementations.
type Split interface {
	Kind() Kind
	calculate(total money.Money, participants []models.UserID) (map[models.UserID]money.Money, error)
}

// CalculateSplit divides total among participants according to the policy.
// The result has one entry per participant and sums to total within
// money.SplitTolerance.
func CalculateSplit(total money.Money, participants []models.UserID, split Split) (map[models.UserID]money.Money, error) {
	if split == nil {
		return nil, fmt.Errorf("%w: split policy required", ErrInvalidSplit)
	}
	return split.calculate(total, participants)
}

// Equal divides the total evenly.
type Equal struct{}

func (Equal) Kind() Kind { return KindEqual }

// An empty participant list yields an empty map. Callers guard against
// zero-participant expenses upstream.
func (Equal) calculate(total money.Money, participants []models.UserID) (map[models.UserID]money.Money, error) {
	splits := make(map[models.UserID]money.Money, len(participants))
	if len(participants) == 0 {
		return splits, nil
	}
	perPerson := total.DivInt(len(participants))
	for _, p := range participants {
		splits[p] = perPerson
	}
	return splits, nil
}

// Percentage assigns each participant a percentage of the total.
// Participants without an entry get 0%.
type Percentage struct {
	Percentages map[models.UserID]float64
}

func (Percentage) Kind() Kind { return KindPercentage }

func (s Percentage) calculate(total money.Money, participants []models.UserID) (map[models.UserID]money.Money, error) {
	var sum float64
	for _, p := range participants {
		pct := s.Percentages[p]
		if !finite(pct) {
			return nil, fmt.Errorf("%w: percentage must be a finite number for user %s", ErrInvalidSplit, p)
		}
		if pct < 0 {
			return nil, fmt.Errorf("%w: percentage cannot be negative for user %s", ErrInvalidSplit, p)
		}
		sum += pct
	}
	if !money.New(sum).WithinSplitTolerance(money.NewFromInt(100)) {
		return nil, fmt.Errorf("%w: percentages must sum to 100, got %.2f", ErrInvalidSplit, sum)
	}

	splits := make(map[models.UserID]money.Money, len(participants))
	for _, p := range participants {
		splits[p] = total.MulFloat(s.Percentages[p]).DivInt(100)
	}
	return splits, nil
}

// ExactAmount assigns explicit amounts. Every participant needs an entry.
type ExactAmount struct {
	Amounts map[models.UserID]money.Money
}

func (ExactAmount) Kind() Kind { return KindExactAmount }

func (s ExactAmount) calculate(total money.Money, participants []models.UserID) (map[models.UserID]money.Money, error) {
	splits := make(map[models.UserID]money.Money, len(participants))
	specified := money.Zero()
	for _, p := range participants {
		amount, ok := s.Amounts[p]
		if !ok {
			return nil, fmt.Errorf("%w: amount not specified for user %s", ErrInvalidSplit, p)
		}
		if amount.Sign() < 0 {
			return nil, fmt.Errorf("%w: amount cannot be negative for user %s", ErrInvalidSplit, p)
		}
		splits[p] = amount
		specified = specified.Add(amount)
	}

	if !specified.WithinSplitTolerance(total) {
		return nil, fmt.Errorf("%w: sum of exact amounts (%s) doesn't match total amount (%s)",
			ErrInvalidSplit, specified.StringFixed(), total.StringFixed())
	}
	return splits, nil
}

// Shares divides the total in proportion to weights.
// Participants without a weight owe nothing.
type Shares struct {
	Weights map[models.UserID]float64
}

func (Shares) Kind() Kind { return KindShares }

// The total weight is taken over participants only, so weights for users outside
// the expense cannot make the shares fall short of the total.
func (s Shares) calculate(total money.Money, participants []models.UserID) (map[models.UserID]money.Money, error) {
	if len(s.Weights) == 0 {
		return nil, fmt.Errorf("%w: shares map cannot be empty", ErrInvalidSplit)
	}

	totalWeight := money.Zero()
	for _, p := range participants {
		w := s.Weights[p]
		if !finite(w) {
			return nil, fmt.Errorf("%w: share weight must be a finite number for user %s", ErrInvalidSplit, p)
		}
		if w < 0 {
			return nil, fmt.Errorf("%w: share weight cannot be negative for user %s", ErrInvalidSplit, p)
		}
		totalWeight = totalWeight.Add(money.New(w))
	}
	if totalWeight.IsExactZero() {
		return nil, fmt.Errorf("%w: total shares cannot be zero", ErrInvalidSplit)
	}

	splits := make(map[models.UserID]money.Money, len(participants))
	for _, p := range participants {
		splits[p] = total.MulFloat(s.Weights[p]).Div(totalWeight)
	}
	return splits, nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// Adjustment splits what remains after per-user adjustments equally, then adds
// each participant's adjustment back on top.
type Adjustment struct {
	Adjustments map[models.UserID]money.Money
}

func (Adjustment) Kind() Kind { return KindAdjustment }

func (s Adjustment) calculate(total money.Money, participants []models.UserID) (map[models.UserID]money.Money, error) {
	if len(participants) == 0 {
		return nil, fmt.Errorf("%w: adjustment split needs at least one participant", ErrInvalidSplit)
	}

	included := make(map[models.UserID]bool, len(participants))
	for _, p := range participants {
		included[p] = true
	}

	adjusted := money.Zero()
	for u, adj := range s.Adjustments {
		if !included[u] {
			return nil, fmt.Errorf("%w: adjustment given for non-participant %s", ErrInvalidSplit, u)
		}
		adjusted = adjusted.Add(adj)
	}

	remaining := total.Sub(adjusted)
	if remaining.Sign() < 0 {
		return nil, fmt.Errorf("%w: adjustments exceed total (%s > %s)",
			ErrInvalidSplit, adjusted.StringFixed(), total.StringFixed())
	}

	base := remaining.DivInt(len(participants))
	splits := make(map[models.UserID]money.Money, len(participants))
	for _, p := range participants {
		share := base.Add(s.Adjustments[p])
		if share.Sign() < 0 {
			return nil, fmt.Errorf("%w: share for user %s would be negative (%s)",
				ErrInvalidSplit, p, share.StringFixed())
		}
		splits[p] = share
	}
	return splits, nil
}
