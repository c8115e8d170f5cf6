// Package core provides the ledger domain types and money helpers.
//
// Amounts travel as float64 (the store and JSON representation), but parsing
// and accumulation go through decimal so totals do not depend on summation
// order.
package core

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a USD amount cell to a number.
//
// An empty cell is zero. Negative values are accepted (reversals).
//
// Examples:
//
//	ParseAmount("1200")     -> 1200, nil
//	ParseAmount("-35.5")    -> -35.5, nil
//	ParseAmount("")         -> 0, nil
//	ParseAmount("12 000")   -> 0, ErrInvalidAmount
//	ParseAmount("1e400")    -> 0, ErrInvalidAmount
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	v := d.InexactFloat64()
	if !IsFinite(v) {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidAmount, s)
	}
	return v, nil
}

// IsFinite reports whether v is neither NaN nor an infinity.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ParseWhole parses a strictly positive integral number such as a year or a
// month. "2025", "2025.0" and "9" are accepted; "", "0", "-1", "8.5" are not.
func ParseWhole(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsInteger() || !d.IsPositive() {
		return 0, false
	}
	if !d.LessThanOrEqual(decimal.NewFromInt(1 << 31)) {
		return 0, false
	}
	return int(d.IntPart()), true
}

// Sum accumulates amounts exactly. The zero value is ready to use.
type Sum struct {
	d decimal.Decimal
}

// Add skips NaN and infinities; they never reach a stored row.
func (s *Sum) Add(v float64) {
	if !IsFinite(v) {
		return
	}
	s.d = s.d.Add(decimal.NewFromFloat(v))
}

func (s Sum) Float64() float64 {
	return s.d.InexactFloat64()
}

// Ratio returns num/den*100, or 0 when den is zero.
func Ratio(num, den float64) float64 {
	if den == 0 || !IsFinite(num) || !IsFinite(den) {
		return 0
	}
	return decimal.NewFromFloat(num).
		Div(decimal.NewFromFloat(den)).
		Mul(decimal.NewFromInt(100)).
		InexactFloat64()
}

// FormatUSD renders v rounded to cents with thousands separators, e.g.
// "$1,234,567.89" or "-$35.50".
func FormatUSD(v float64) string {
	if !IsFinite(v) {
		return "n/a"
	}
	d := decimal.NewFromFloat(v).Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	s := d.StringFixed(2)
	whole, cents := s[:len(s)-3], s[len(s)-3:]

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + "$" + b.String() + cents
}
