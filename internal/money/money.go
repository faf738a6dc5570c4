// Package money provides the decimal amount type shared by the ledger, the split
// calculator and the settlement engine.
//
// Amounts are single-currency. Comparisons against zero go through Epsilon rather
// than exact equality so that repeating fractions (100 / 3) never leave a balance
// that one component treats as settled and another as outstanding.
package money

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// Epsilon is the zero band for balances. Pair records and net balances whose
	// absolute value is below it are treated as settled.
	Epsilon = 0.001

	// SplitTolerance is the allowed drift between a split's shares and its total.
	SplitTolerance = 0.01
)

var (
	epsilon        = decimal.NewFromFloat(Epsilon)
	splitTolerance = decimal.NewFromFloat(SplitTolerance)
)

// Money is an immutable decimal amount in major currency units.
// The zero value is a valid zero amount.
type Money struct {
	d decimal.Decimal
}

// Zero returns a zero amount.
func Zero() Money { return Money{} }

// New creates Money from a float64.
func New(v float64) Money { return Money{d: decimal.NewFromFloat(v)} }

// NewFromInt creates Money from a whole number of major units.
func NewFromInt(v int64) Money { return Money{d: decimal.NewFromInt(v)} }

// NewFromString parses a decimal string such as "12.50".
func NewFromString(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("money: invalid amount %q: %w", s, err)
	}
	return Money{d: d}, nil
}

// MustParse is like NewFromString but panics on malformed input. Intended for tests
// and constants.
func MustParse(s string) Money {
	m, err := NewFromString(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Add returns m + o.
func (m Money) Add(o Money) Money { return Money{d: m.d.Add(o.d)} }

// Sub returns m - o.
func (m Money) Sub(o Money) Money { return Money{d: m.d.Sub(o.d)} }

// Mul returns m * o.
func (m Money) Mul(o Money) Money { return Money{d: m.d.Mul(o.d)} }

// MulFloat returns m * f.
func (m Money) MulFloat(f float64) Money { return Money{d: m.d.Mul(decimal.NewFromFloat(f))} }

// Div returns m / o. Panics if o is exactly zero.
func (m Money) Div(o Money) Money { return Money{d: m.d.Div(o.d)} }

// DivInt returns m / n. Panics if n is zero.
func (m Money) DivInt(n int) Money {
	if n == 0 {
		panic("money: division by zero")
	}
	return Money{d: m.d.Div(decimal.NewFromInt(int64(n)))}
}

// Neg returns -m.
func (m Money) Neg() Money { return Money{d: m.d.Neg()} }

// Abs returns |m|.
func (m Money) Abs() Money { return Money{d: m.d.Abs()} }

// Min returns the smaller of m and o.
func (m Money) Min(o Money) Money {
	if m.d.LessThan(o.d) {
		return m
	}
	return o
}

// Cmp compares exactly: -1 if m < o, 0 if equal, +1 if m > o.
func (m Money) Cmp(o Money) int { return m.d.Cmp(o.d) }

// Sign returns -1, 0 or +1 without applying any tolerance.
func (m Money) Sign() int { return m.d.Sign() }

// IsZero reports whether m lies inside the Epsilon band.
func (m Money) IsZero() bool { return m.d.Abs().LessThan(epsilon) }

// IsPositive reports whether m is above the Epsilon band.
func (m Money) IsPositive() bool { return !m.IsZero() && m.d.Sign() > 0 }

// IsNegative reports whether m is below the Epsilon band.
func (m Money) IsNegative() bool { return !m.IsZero() && m.d.Sign() < 0 }

// IsExactZero reports whether m is exactly zero.
func (m Money) IsExactZero() bool { return m.d.IsZero() }

// Equal reports whether |m - o| <= tolerance.
func (m Money) Equal(o Money, tolerance float64) bool {
	return m.d.Sub(o.d).Abs().LessThanOrEqual(decimal.NewFromFloat(tolerance))
}

// WithinSplitTolerance reports whether m and o differ by at most SplitTolerance.
func (m Money) WithinSplitTolerance(o Money) bool {
	return m.d.Sub(o.d).Abs().LessThanOrEqual(splitTolerance)
}

// Float64 returns the nearest float64.
func (m Money) Float64() float64 {
	f, _ := m.d.Float64()
	return f
}

// Decimal exposes the underlying decimal value.
func (m Money) Decimal() decimal.Decimal { return m.d }

// String returns the exact decimal representation.
func (m Money) String() string { return m.d.String() }

// StringFixed formats with two decimal places, e.g. "33.33".
func (m Money) StringFixed() string { return m.d.StringFixed(2) }

// MarshalJSON encodes the amount as a JSON string to keep full precision.
func (m Money) MarshalJSON() ([]byte, error) { return m.d.MarshalJSON() }

// UnmarshalJSON accepts both JSON numbers and quoted decimal strings.
func (m *Money) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := json.Unmarshal(b, &d); err != nil {
		return fmt.Errorf("money: %w", err)
	}
	m.d = d
	return nil
}

// Scan implements sql.Scanner.
func (m *Money) Scan(value any) error { return m.d.Scan(value) }

// Value implements driver.Valuer. Amounts are stored as decimal strings.
func (m Money) Value() (driver.Value, error) { return m.d.String(), nil }

// Sum adds all values.
func Sum(values ...Money) Money {
	total := Zero()
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
