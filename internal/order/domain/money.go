package domain

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Money is an amount in minor units (cents).
type Money int64

const moneyScale = 2

var maxCents = decimal.NewFromInt(math.MaxInt64)

// MoneyFromDecimal converts a decimal amount such as 4.00 into cents. Negative
// amounts, sub-cent precision and amounts beyond the int64 cent range are
// rejected.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	if d.IsNegative() {
		return 0, fmt.Errorf("amount %s must not be negative", d.String())
	}
	cents := d.Shift(moneyScale)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than %d fractional digits", d.String(), moneyScale)
	}
	if cents.GreaterThan(maxCents) {
		return 0, fmt.Errorf("amount %s is too large", d.String())
	}
	return Money(cents.IntPart()), nil
}

func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return MoneyFromDecimal(d)
}

func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -moneyScale)
}

// String renders the amount with exactly two fractional digits.
func (m Money) String() string {
	return m.Decimal().StringFixed(moneyScale)
}

// Mul returns m × qty. ok is false when the product does not fit in Money or
// either operand is negative.
func (m Money) Mul(qty int) (_ Money, ok bool) {
	if m < 0 || qty < 0 {
		return 0, false
	}
	if qty != 0 && int64(m) > math.MaxInt64/int64(qty) {
		return 0, false
	}
	return m * Money(qty), true
}

// Add returns m + o. ok is false on overflow or a negative operand.
func (m Money) Add(o Money) (_ Money, ok bool) {
	if m < 0 || o < 0 || int64(m) > math.MaxInt64-int64(o) {
		return 0, false
	}
	return m + o, true
}
