// Package decimalx wraps govalues/decimal with the parsing and validation
// rules the tick source and ingestion buffer need: exact decimal strings
// off the wire, rejected at the boundary rather than coerced.
package decimalx

import (
	"fmt"

	"github.com/govalues/decimal"
)

// ParsePositive parses s as a decimal and requires it to be strictly positive.
func ParsePositive(s string) (decimal.Decimal, error) {
	d, err := decimal.Parse(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	if d.Sign() <= 0 {
		return decimal.Decimal{}, fmt.Errorf("decimal %q must be positive", s)
	}
	return d, nil
}

// ParseNonNegative parses s as a decimal and requires it to be zero or positive.
func ParseNonNegative(s string) (decimal.Decimal, error) {
	d, err := decimal.Parse(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	if d.Sign() < 0 {
		return decimal.Decimal{}, fmt.Errorf("decimal %q must not be negative", s)
	}
	return d, nil
}

// Float64 converts d to float64 for downstream OHLCV/analytics arithmetic,
// which operates entirely in floating point per the analytics contract.
// Exactness is not required here: the bar/analytics pipeline is float64
// end to end once a tick has cleared ingestion.
func Float64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
