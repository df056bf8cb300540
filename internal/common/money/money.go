// Package money holds fixed-point helpers for 2-decimal currency amounts.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places stored for every amount
const Scale = 2

var Zero = decimal.Zero

// Round2 rounds half away from zero to 2 decimal places
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// Parse reads a decimal string (as returned by NUMERIC columns) and rounds it
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return Round2(d), nil
}

// MustParse is Parse for literals in tests and defaults
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// FromFloat converts a float input (JSON numbers) into a rounded amount
func FromFloat(f float64) decimal.Decimal {
	return Round2(decimal.NewFromFloat(f))
}

// String formats with exactly 2 decimals, e.g. "12.00"
func String(d decimal.Decimal) string {
	return d.StringFixed(Scale)
}

// IsPositive reports amount > 0 after rounding
func IsPositive(d decimal.Decimal) bool {
	return Round2(d).GreaterThan(decimal.Zero)
}
