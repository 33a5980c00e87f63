package analytics

import (
	"github.com/shopspring/decimal"
)

// Money is a fixed-point amount that always renders with two decimals.
type Money struct {
	decimal.Decimal
}

// NewMoney rounds d to cents.
func NewMoney(d decimal.Decimal) Money {
	return Money{d.Round(2)}
}

// String returns the amount with exactly two decimals.
func (m Money) String() string {
	return m.StringFixed(2)
}

// MarshalJSON encodes the amount as a JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.StringFixed(2)), nil
}

// SuggestedPrice applies pct to price and rounds to cents. It returns nil
// when price is not positive, since no markdown can be suggested for a free
// or unpriced variant.
func SuggestedPrice(price decimal.Decimal, pct int) *Money {
	if !price.IsPositive() {
		return nil
	}
	factor := decimal.NewFromInt(int64(100 + pct)).Div(decimal.NewFromInt(100))
	m := NewMoney(price.Mul(factor))
	return &m
}
