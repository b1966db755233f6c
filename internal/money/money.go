// Package money provides exact monetary arithmetic in integer cents.
//
// Every amount stored or compared by the engine is a Money value. Binary
// floats never appear internally; decimal values are accepted only at the
// API boundary and converted on entry.
package money

import (
	"errors"
	"fmt"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Money is a monetary amount in minor units (cents).
type Money int64

// ErrInvalidCount indicates a split was requested with zero installments.
var ErrInvalidCount = errors.New("money: split count must be at least one")

// FromCents wraps a raw cent amount.
func FromCents(cents int64) Money {
	return Money(cents)
}

// FromDecimal converts an exact decimal amount to cents. Values with more
// than two fractional digits are rounded half-up; external confirmed
// balances occasionally arrive with float-origin noise and the extra digits
// carry no information.
func FromDecimal(d decimal.Decimal) Money {
	return Money(d.Round(2).Shift(2).IntPart())
}

// ParseDecimal parses a decimal string ("1234.56") into Money.
func ParseDecimal(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return FromDecimal(d), nil
}

// Cents returns the raw minor-unit amount.
func (m Money) Cents() int64 {
	return int64(m)
}

// Decimal returns the amount as an exact decimal scaled to two places.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -2)
}

// String renders the amount with two fractional digits, e.g. "33.34".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// Display formats the amount for the given ISO currency code.
func (m Money) Display(currency string) string {
	return gomoney.New(int64(m), currency).Display()
}

// MarshalJSON renders the amount as an exact decimal string, never a
// binary float.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON accepts a decimal string or bare decimal number.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := ParseDecimal(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Abs returns the magnitude of the amount.
func (m Money) Abs() Money {
	if m < 0 {
		return -m
	}
	return m
}

// Split divides total into count installments that sum back to total
// exactly. The base installment is the largest amount whose count multiples
// do not exceed the total (floor division, so negative totals work too);
// the remainder is absorbed entirely by the first installment. The uneven
// first installment is a deliberate, auditable rule.
func Split(total Money, count uint32) ([]Money, error) {
	if count == 0 {
		return nil, ErrInvalidCount
	}
	n := int64(count)
	base := floorDiv(int64(total), n)
	remainder := int64(total) - base*n

	out := make([]Money, count)
	out[0] = Money(base + remainder)
	for i := 1; i < int(count); i++ {
		out[i] = Money(base)
	}
	return out, nil
}

// floorDiv divides rounding toward negative infinity. Go's integer division
// truncates toward zero, which would overshoot for negative totals.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
