// Package money implements the fixed-point currency type used by the ledger.
//
// A Money value is an int64 count of 10^-4 units. All arithmetic is checked
// against a fixed magnitude bound and reports ErrOverflow or ErrUnderflow
// instead of wrapping. Arbitrary-precision decimals (shopspring/decimal) are
// used only at the text boundary, in Parse and String.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional decimal digits carried by Money.
const Scale = 4

const unit = 10_000

// Money is a signed fixed-point amount with Scale fractional digits.
type Money int64

const (
	// Zero is the zero amount.
	Zero Money = 0

	// Max is the largest representable amount: 2^47 - 0.0001.
	Max Money = 1<<47*unit - 1

	// Min is the smallest representable amount.
	Min Money = -Max
)

var (
	// ErrOverflow is returned when a result would exceed Max.
	ErrOverflow = errors.New("currency overflow")

	// ErrUnderflow is returned when a result would fall below Min,
	// or below zero for operations that require a non-negative result.
	ErrUnderflow = errors.New("currency underflow")

	// ErrPrecision is returned by Parse for inputs with more than Scale
	// fractional digits.
	ErrPrecision = fmt.Errorf("more than %d fractional digits", Scale)
)

var (
	maxDecimal = decimal.New(int64(Max), -Scale)
	minDecimal = decimal.New(int64(Min), -Scale)
)

// FromUnits returns the Money value for a whole number of currency units.
func FromUnits(units int64) (Money, error) {
	if units > int64(Max/unit) {
		return 0, ErrOverflow
	}
	if units < int64(Min/unit) {
		return 0, ErrUnderflow
	}
	return Money(units * unit), nil
}

// FromRaw interprets raw as a count of 10^-4 units.
func FromRaw(raw int64) (Money, error) {
	m := Money(raw)
	if m > Max {
		return 0, ErrOverflow
	}
	if m < Min {
		return 0, ErrUnderflow
	}
	return m, nil
}

// Raw returns the underlying count of 10^-4 units.
func (m Money) Raw() int64 {
	return int64(m)
}

// Valid reports whether m lies inside [Min, Max].
func (m Money) Valid() bool {
	return m >= Min && m <= Max
}

// IsNegative reports whether m < 0.
func (m Money) IsNegative() bool {
	return m < 0
}

// Add returns m + o.
//
// Both operands are bounded by Max, so the int64 sum cannot wrap; the bound
// check happens on the exact result.
func (m Money) Add(o Money) (Money, error) {
	if !m.Valid() || !o.Valid() {
		return 0, ErrOverflow
	}
	return bounded(m + o)
}

// Sub returns m - o.
func (m Money) Sub(o Money) (Money, error) {
	if !m.Valid() || !o.Valid() {
		return 0, ErrOverflow
	}
	return bounded(m - o)
}

func bounded(r Money) (Money, error) {
	if r > Max {
		return 0, ErrOverflow
	}
	if r < Min {
		return 0, ErrUnderflow
	}
	return r, nil
}

// Parse reads a decimal string such as "12", "0.5" or "-3.1415".
// Trailing zeros beyond Scale are accepted ("1.00000"), any other digit
// beyond Scale is rejected with ErrPrecision.
func Parse(s string) (Money, error) {
	if s == "" {
		return 0, errors.New("empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if !d.Equal(d.Truncate(Scale)) {
		return 0, fmt.Errorf("parse amount %q: %w", s, ErrPrecision)
	}
	if d.GreaterThan(maxDecimal) {
		return 0, fmt.Errorf("parse amount %q: %w", s, ErrOverflow)
	}
	if d.LessThan(minDecimal) {
		return 0, fmt.Errorf("parse amount %q: %w", s, ErrUnderflow)
	}
	return Money(d.Shift(Scale).IntPart()), nil
}

// MustParse is like Parse but panics on error.
// Use only in tests or for constants known to be valid.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Decimal returns m as an exact decimal.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -Scale)
}

// String renders m with exactly Scale fractional digits.
func (m Money) String() string {
	return m.Decimal().StringFixed(Scale)
}
