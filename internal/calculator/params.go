package calculator

import (
	"fmt"

	"github.com/mmynk/splitledger/internal/models"
)

// Params is the serializable form of a Split, as stored on an expense.
type Params = models.SplitDetails

// NewSplit builds the Split described by p. An empty Kind defaults to EQUAL.
func NewSplit(p Params) (Split, error) {
	if p.Kind == "" {
		return Equal{}, nil
	}
	kind, err := ParseKind(p.Kind)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindEqual:
		return Equal{}, nil
	case KindPercentage:
		if len(p.Percentages) == 0 {
			return nil, fmt.Errorf("%w: percentage split requires percentages", ErrInvalidSplit)
		}
		return Percentage{Percentages: p.Percentages}, nil
	case KindExactAmount:
		if len(p.Amounts) == 0 {
			return nil, fmt.Errorf("%w: exact amount split requires amounts", ErrInvalidSplit)
		}
		return ExactAmount{Amounts: p.Amounts}, nil
	case KindShares:
		return Shares{Weights: p.Shares}, nil
	case KindAdjustment:
		return Adjustment{Adjustments: p.Adjustments}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported split kind %s", ErrInvalidSplit, kind)
	}
}

// ParamsOf converts a Split back into its serializable form.
func ParamsOf(s Split) Params {
	switch v := s.(type) {
	case Percentage:
		return Params{Kind: KindPercentage.String(), Percentages: v.Percentages}
	case ExactAmount:
		return Params{Kind: KindExactAmount.String(), Amounts: v.Amounts}
	case Shares:
		return Params{Kind: KindShares.String(), Shares: v.Weights}
	case Adjustment:
		return Params{Kind: KindAdjustment.String(), Adjustments: v.Adjustments}
	default:
		return Params{Kind: KindEqual.String()}
	}
}
