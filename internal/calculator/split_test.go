package calculator

import (
	"errors"
	"math"
	"testing"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/money"
)

func ids(names ...string) []models.UserID {
	out := make([]models.UserID, len(names))
	for i, n := range names {
		out[i] = models.UserID(n)
	}
	return out
}

func amt(v float64) money.Money { return money.New(v) }

func TestCalculateSplit(t *testing.T) {
	tests := []struct {
		name         string
		total        money.Money
		participants []models.UserID
		split        Split
		wantErr      bool
		want         map[models.UserID]float64
	}{
		{
			name:         "equal four-way split",
			total:        amt(1200),
			participants: ids("A", "B", "C", "D"),
			split:        Equal{},
			want:         map[models.UserID]float64{"A": 300, "B": 300, "C": 300, "D": 300},
		},
		{
			name:         "equal three-way split of repeating fraction",
			total:        amt(100),
			participants: ids("A", "B", "C"),
			split:        Equal{},
			want:         map[models.UserID]float64{"A": 33.333, "B": 33.333, "C": 33.333},
		},
		{
			name:         "equal with no participants",
			total:        amt(50),
			participants: nil,
			split:        Equal{},
			want:         map[models.UserID]float64{},
		},
		{
			name:         "percentage split",
			total:        amt(800),
			participants: ids("A", "B", "C"),
			split:        Percentage{Percentages: map[models.UserID]float64{"A": 50, "B": 25, "C": 25}},
			want:         map[models.UserID]float64{"A": 400, "B": 200, "C": 200},
		},
		{
			name:         "percentages summing to 95 should error",
			total:        amt(800),
			participants: ids("A", "B", "C"),
			split:        Percentage{Percentages: map[models.UserID]float64{"A": 50, "B": 25, "C": 20}},
			wantErr:      true,
		},
		{
			name:         "missing percentage defaults to zero",
			total:        amt(200),
			participants: ids("A", "B"),
			split:        Percentage{Percentages: map[models.UserID]float64{"A": 100}},
			want:         map[models.UserID]float64{"A": 200, "B": 0},
		},
		{
			name:         "negative percentage should error",
			total:        amt(200),
			participants: ids("A", "B"),
			split:        Percentage{Percentages: map[models.UserID]float64{"A": 110, "B": -10}},
			wantErr:      true,
		},
		{
			name:         "NaN percentage should error",
			total:        amt(100),
			participants: ids("A", "B"),
			split:        Percentage{Percentages: map[models.UserID]float64{"A": math.NaN(), "B": 50}},
			wantErr:      true,
		},
		{
			name:         "infinite percentage should error",
			total:        amt(100),
			participants: ids("A", "B"),
			split:        Percentage{Percentages: map[models.UserID]float64{"A": math.Inf(1), "B": 50}},
			wantErr:      true,
		},
		{
			name:         "exact amounts",
			total:        amt(90),
			participants: ids("A", "B"),
			split:        ExactAmount{Amounts: map[models.UserID]money.Money{"A": amt(60), "B": amt(30)}},
			want:         map[models.UserID]float64{"A": 60, "B": 30},
		},
		{
			name:         "exact amounts off by rounding cent are accepted",
			total:        amt(100),
			participants: ids("A", "B", "C"),
			split: ExactAmount{Amounts: map[models.UserID]money.Money{
				"A": amt(33.33), "B": amt(33.33), "C": amt(33.33),
			}},
			want: map[models.UserID]float64{"A": 33.33, "B": 33.33, "C": 33.33},
		},
		{
			name:         "exact amounts not matching total should error",
			total:        amt(100),
			participants: ids("A", "B"),
			split:        ExactAmount{Amounts: map[models.UserID]money.Money{"A": amt(60), "B": amt(30)}},
			wantErr:      true,
		},
		{
			name:         "exact amount missing for participant should error",
			total:        amt(60),
			participants: ids("A", "B"),
			split:        ExactAmount{Amounts: map[models.UserID]money.Money{"A": amt(60)}},
			wantErr:      true,
		},
		{
			name:         "shares by weight",
			total:        amt(120),
			participants: ids("A", "B", "C"),
			split:        Shares{Weights: map[models.UserID]float64{"A": 1, "B": 2, "C": 3}},
			want:         map[models.UserID]float64{"A": 20, "B": 40, "C": 60},
		},
		{
			name:         "shares for non-participants do not dilute",
			total:        amt(100),
			participants: ids("A", "B"),
			split:        Shares{Weights: map[models.UserID]float64{"A": 1, "B": 1, "Z": 8}},
			want:         map[models.UserID]float64{"A": 50, "B": 50},
		},
		{
			name:         "participant without shares owes nothing",
			total:        amt(100),
			participants: ids("A", "B"),
			split:        Shares{Weights: map[models.UserID]float64{"A": 3}},
			want:         map[models.UserID]float64{"A": 100, "B": 0},
		},
		{
			name:         "empty shares should error",
			total:        amt(100),
			participants: ids("A", "B"),
			split:        Shares{},
			wantErr:      true,
		},
		{
			name:         "zero total shares should error",
			total:        amt(100),
			participants: ids("A", "B"),
			split:        Shares{Weights: map[models.UserID]float64{"A": 0, "B": 0}},
			wantErr:      true,
		},
		{
			name:         "NaN share weight should error",
			total:        amt(100),
			participants: ids("A", "B"),
			split:        Shares{Weights: map[models.UserID]float64{"A": math.NaN(), "B": 1}},
			wantErr:      true,
		},
		{
			name:         "infinite share weight should error",
			total:        amt(100),
			participants: ids("A", "B"),
			split:        Shares{Weights: map[models.UserID]float64{"A": 1, "B": math.Inf(-1)}},
			wantErr:      true,
		},
		{
			name:         "adjustment split",
			total:        amt(100),
			participants: ids("A", "B", "C"),
			split:        Adjustment{Adjustments: map[models.UserID]money.Money{"A": amt(10)}},
			want:         map[models.UserID]float64{"A": 40, "B": 30, "C": 30},
		},
		{
			name:         "adjustments exceeding total should error",
			total:        amt(100),
			participants: ids("A", "B"),
			split:        Adjustment{Adjustments: map[models.UserID]money.Money{"A": amt(80), "B": amt(30)}},
			wantErr:      true,
		},
		{
			name:         "negative adjustment producing negative share should error",
			total:        amt(20),
			participants: ids("A", "B"),
			split:        Adjustment{Adjustments: map[models.UserID]money.Money{"A": amt(-30)}},
			wantErr:      true,
		},
		{
			name:         "adjustment for non-participant should error",
			total:        amt(100),
			participants: ids("A", "B"),
			split:        Adjustment{Adjustments: map[models.UserID]money.Money{"Z": amt(5)}},
			wantErr:      true,
		},
		{
			name:         "adjustment with no participants should error",
			total:        amt(100),
			participants: nil,
			split:        Adjustment{},
			wantErr:      true,
		},
		{
			name:         "nil split should error",
			total:        amt(100),
			participants: ids("A"),
			split:        nil,
			wantErr:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shares, err := CalculateSplit(tt.total, tt.participants, tt.split)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("CalculateSplit() expected error, got shares %v", shares)
				}
				if !errors.Is(err, ErrInvalidSplit) {
					t.Errorf("CalculateSplit() error = %v, want ErrInvalidSplit", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("CalculateSplit() unexpected error: %v", err)
			}

			if len(shares) != len(tt.want) {
				t.Fatalf("CalculateSplit() returned %d shares, want %d", len(shares), len(tt.want))
			}
			for user, want := range tt.want {
				got, ok := shares[user]
				if !ok {
					t.Errorf("missing share for %s", user)
					continue
				}
				if math.Abs(got.Float64()-want) > 0.01 {
					t.Errorf("%s share = %v, want %v", user, got, want)
				}
			}

			// Shares must add back up to the total whenever anyone takes part.
			if len(tt.participants) > 0 {
				sum := money.Zero()
				for _, s := range shares {
					sum = sum.Add(s)
				}
				if !sum.WithinSplitTolerance(tt.total) {
					t.Errorf("shares sum to %s, want %s", sum, tt.total)
				}
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{KindEqual, KindPercentage, KindExactAmount, KindShares, KindAdjustment} {
		got, err := ParseKind(k.String())
		if err != nil || got != k {
			t.Errorf("ParseKind(%q) = %v, %v", k.String(), got, err)
		}
	}

	if got, err := ParseKind("exact_amount"); err != nil || got != KindExactAmount {
		t.Errorf("ParseKind should be case-insensitive, got %v, %v", got, err)
	}

	if _, err := ParseKind("ROUND_ROBIN"); !errors.Is(err, ErrInvalidSplit) {
		t.Errorf("ParseKind(unknown) error = %v, want ErrInvalidSplit", err)
	}
}

func TestNewSplitRoundTrip(t *testing.T) {
	splits := []Split{
		Equal{},
		Percentage{Percentages: map[models.UserID]float64{"A": 60, "B": 40}},
		ExactAmount{Amounts: map[models.UserID]money.Money{"A": amt(5)}},
		Shares{Weights: map[models.UserID]float64{"A": 2}},
		Adjustment{Adjustments: map[models.UserID]money.Money{"A": amt(1)}},
	}

	for _, s := range splits {
		t.Run(s.Kind().String(), func(t *testing.T) {
			rebuilt, err := NewSplit(ParamsOf(s))
			if err != nil {
				t.Fatalf("NewSplit() error: %v", err)
			}
			if rebuilt.Kind() != s.Kind() {
				t.Errorf("kind = %v, want %v", rebuilt.Kind(), s.Kind())
			}
		})
	}
}

func TestNewSplitDefaultsAndErrors(t *testing.T) {
	s, err := NewSplit(Params{})
	if err != nil || s.Kind() != KindEqual {
		t.Errorf("empty params = %v, %v, want Equal", s, err)
	}

	if _, err := NewSplit(Params{Kind: "PERCENTAGE"}); !errors.Is(err, ErrInvalidSplit) {
		t.Errorf("percentage without values error = %v, want ErrInvalidSplit", err)
	}
	if _, err := NewSplit(Params{Kind: "EXACT_AMOUNT"}); !errors.Is(err, ErrInvalidSplit) {
		t.Errorf("exact without values error = %v, want ErrInvalidSplit", err)
	}
	if _, err := NewSplit(Params{Kind: "BOGUS"}); !errors.Is(err, ErrInvalidSplit) {
		t.Errorf("unknown kind error = %v, want ErrInvalidSplit", err)
	}
}
