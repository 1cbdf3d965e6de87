/**
 * @description
 * Exact decimal money used for every balance, price and settlement figure.
 */
package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fractional digits used when rendering amounts.
const MoneyScale = 2

// Money is an exact decimal amount. The zero value is 0.
type Money struct {
	amount decimal.Decimal
}

// Zero is the zero amount.
var Zero = Money{}

// NewMoney parses a decimal string such as "100.00". Values with more than
// MoneyScale significant fractional digits fail with ErrInvalidAmount.
func NewMoney(value string) (Money, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return Money{}, fmt.Errorf("invalid money value %q: %w", value, err)
	}
	return fromDecimal(d)
}

// MustMoney is NewMoney for constants and tests. It panics on malformed input.
func MustMoney(value string) Money {
	m, err := NewMoney(value)
	if err != nil {
		panic(err)
	}
	return m
}

func fromDecimal(d decimal.Decimal) (Money, error) {
	if !d.Equal(d.Truncate(MoneyScale)) {
		return Money{}, ErrInvalidAmount.Wrap(fmt.Errorf("%s has more than %d decimal places", d.String(), MoneyScale))
	}
	return Money{amount: d}, nil
}

func (m Money) Decimal() decimal.Decimal { return m.amount }

func (m Money) Add(other Money) Money { return Money{amount: m.amount.Add(other.amount)} }

func (m Money) Sub(other Money) Money { return Money{amount: m.amount.Sub(other.amount)} }

// MulInt multiplies by an integer quantity without rounding.
func (m Money) MulInt(n int) Money {
	return Money{amount: m.amount.Mul(decimal.NewFromInt(int64(n)))}
}

func (m Money) Cmp(other Money) int { return m.amount.Cmp(other.amount) }

// Equal compares numerically, so 200 equals 200.00.
func (m Money) Equal(other Money) bool { return m.amount.Equal(other.amount) }

func (m Money) IsPositive() bool { return m.amount.IsPositive() }

func (m Money) IsNegative() bool { return m.amount.IsNegative() }

func (m Money) IsZero() bool { return m.amount.IsZero() }

// String renders at least MoneyScale fractional digits and never rounds.
func (m Money) String() string {
	if m.amount.Equal(m.amount.Truncate(MoneyScale)) {
		return m.amount.StringFixed(MoneyScale)
	}
	return m.amount.String()
}

// MarshalJSON encodes the amount as a JSON string ("200.00").
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON accepts both JSON numbers and strings.
func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	parsed, err := fromDecimal(d)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
