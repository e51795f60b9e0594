package domain

import (
	"fmt"
	"strconv"
)

// Money is an amount in cents. Fines are kept in whole cents so that two-decimal
// precision is exact.
type Money int64

// Cents builds a Money value.
func Cents(c int64) Money { return Money(c) }

// String formats the amount with two decimals, e.g. "1.50".
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MarshalJSON encodes the amount as a JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number and rounds it to the nearest cent.
func (m *Money) UnmarshalJSON(b []byte) error {
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("money: %w", err)
	}
	if f < 0 {
		*m = Money(f*100 - 0.5)
		return nil
	}
	*m = Money(f*100 + 0.5)
	return nil
}
