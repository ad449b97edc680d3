package engine

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var errEmptyAmount = errors.New("empty amount")

// ParseAmount reads a French-formatted monetary amount: currency symbols and
// spaces are stripped and a comma is the decimal separator. When both '.' and
// ',' appear, the rightmost one is the decimal separator. A minus sign is only
// accepted in front of the digits.
func ParseAmount(raw string) (decimal.Decimal, error) {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case unicode.IsDigit(r), r == ',', r == '.', r == '-':
			b.WriteRune(r)
		}
	}
	s := strings.Trim(b.String(), ".,")
	if s == "" || s == "-" {
		return decimal.Zero, errEmptyAmount
	}

	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	if strings.Contains(s, "-") {
		return decimal.Zero, fmt.Errorf("misplaced minus sign in amount %q", raw)
	}

	lastComma := strings.LastIndexByte(s, ',')
	lastDot := strings.LastIndexByte(s, '.')
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			return decimal.Zero, fmt.Errorf("ambiguous amount %q", raw)
		}
		s = strings.Replace(s, ",", ".", 1)
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

func amountFloat(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

// toDecimal converts an already extracted value into a decimal operand.
func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case float64:
		return decimal.NewFromFloat(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case string:
		d, err := ParseAmount(n)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	default:
		return decimal.Zero, false
	}
}
