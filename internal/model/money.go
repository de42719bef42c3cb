package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseCents converts decimal string amounts (major units) to minor units (int64).
// Parsing is exact: "0.1" + "0.2" style float drift never reaches cart totals.
// Examples: "99.00" → 9900, "1234.56" → 123456, "" → 0, "0.005" → 1 (half away from zero)
func ParseCents(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.Shift(2).Round(0).IntPart()
}

// ParseMinorUnits converts string amounts already in minor units to int64.
// WooCommerce Store API uses this format for all price fields.
// Examples: "8900" → 8900, "123456" → 123456, "100.99" → 100, "" → 0
func ParseMinorUnits(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.Truncate(0).IntPart()
}

// FormatAmount renders minor units as a major-unit string with two decimals,
// prefixed by the currency code when one is given: (12345, "USD") → "USD 123.45".
func FormatAmount(minor int64, currency string) string {
	s := decimal.New(minor, -2).StringFixed(2)
	if currency == "" {
		return s
	}
	return currency + " " + s
}
