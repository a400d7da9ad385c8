package domain

import (
	"github.com/shopspring/decimal"
)

// Truncated formats f with exactly two decimals, dropping further digits
// toward zero (12.349 → "12.34").
func Truncated(f float64) string {
	return decimal.NewFromFloat(f).Truncate(2).StringFixed(2)
}

// Rounded formats f with exactly two decimals, rounding half away from
// zero (12.345 → "12.35").
func Rounded(f float64) string {
	return decimal.NewFromFloat(f).Round(2).StringFixed(2)
}
