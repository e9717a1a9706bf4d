// Package money holds non-negative USD amounts without floating point drift.
// Values are kept as decimals rounded to cents and persisted as integer cents.
package money

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	Currency = "USD"
	scale    = 2
)

var hundred = decimal.NewFromInt(100)

type Money struct {
	amount decimal.Decimal
}

var Zero = Money{amount: decimal.Zero}

func FromCents(cents int64) Money {
	return Money{amount: decimal.New(cents, -scale)}
}

func FromDecimal(d decimal.Decimal) Money {
	return Money{amount: d.Round(scale)}
}

// Parse reads a decimal string such as "123.45" or "USD 123.45".
func Parse(s string) (Money, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), Currency))
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("parse money %q: %w", s, err)
	}
	return FromDecimal(d), nil
}

func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) Cents() int64 {
	return m.amount.Mul(hundred).Round(0).IntPart()
}

func (m Money) Add(o Money) Money {
	return Money{amount: m.amount.Add(o.amount)}
}

func (m Money) Sub(o Money) Money {
	return Money{amount: m.amount.Sub(o.amount)}
}

func (m Money) Equal(o Money) bool {
	return m.amount.Equal(o.amount)
}

func (m Money) GreaterThan(o Money) bool {
	return m.amount.GreaterThan(o.amount)
}

func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

func (m Money) IsPositive() bool {
	return m.amount.IsPositive()
}

func (m Money) IsNegative() bool {
	return m.amount.IsNegative()
}

// ClampZero returns m, or zero when m is negative.
func (m Money) ClampZero() Money {
	if m.IsNegative() {
		return Zero
	}
	return m
}

// String renders the plain decimal, e.g. "123.45".
func (m Money) String() string {
	return m.amount.StringFixed(scale)
}

// Format renders the receipt representation, e.g. "USD 123.45".
func (m Money) Format() string {
	return Currency + " " + m.String()
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var d decimal.Decimal
		if derr := d.UnmarshalJSON(data); derr != nil {
			return fmt.Errorf("unmarshal money: %w", err)
		}
		*m = FromDecimal(d)
		return nil
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Sum adds all amounts.
func Sum(values ...Money) Money {
	total := Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
