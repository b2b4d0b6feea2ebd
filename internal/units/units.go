// Package units converts between on-chain fixed-point integers and human readable decimals.
package units

import (
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// FormatUnits scales a raw integer amount down by decimals (raw / 10^decimals)
func FormatUnits(raw decimal.Decimal, decimals int32) decimal.Decimal {
	return raw.Shift(-decimals)
}

// ParseUnits scales a human amount up by decimals (value * 10^decimals)
func ParseUnits(value decimal.Decimal, decimals int32) decimal.Decimal {
	return value.Shift(decimals)
}

// ParseString parses a raw numeric string, returning zero for empty input
func ParseString(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// ToFormat renders v with exactly dp decimal places (truncated) and thousands separators
func ToFormat(v decimal.Decimal, dp int32) string {
	if dp < 0 {
		dp = 0
	}
	s := v.Truncate(dp).StringFixed(dp)

	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, fracPart := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i:]
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	b.WriteString(fracPart)
	return b.String()
}

// ToSignificant renders values >= 1 with up to digits decimal places and values
// below 1 with digits significant figures. Trailing zeros are dropped.
func ToSignificant(v decimal.Decimal, digits int32) string {
	abs := v.Abs()
	if abs.GreaterThanOrEqual(decimal.NewFromInt(1)) || digits == 0 || abs.IsZero() {
		return trimZeros(ToFormat(v, digits))
	}

	// count zeros between the decimal point and the first significant digit
	frac := abs.String()
	zeros := int32(0)
	if i := strings.IndexByte(frac, '.'); i >= 0 {
		for _, c := range frac[i+1:] {
			if c != '0' {
				break
			}
			zeros++
		}
	}
	return trimZeros(v.Truncate(zeros + digits).String())
}

// PercentOf returns pct percent of v
func PercentOf(v decimal.Decimal, pct decimal.Decimal) decimal.Decimal {
	return v.Mul(pct).Div(hundred)
}

// RatioOf returns a as a percentage of b, or zero when b is zero
func RatioOf(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	return a.Div(b).Mul(hundred)
}

func trimZeros(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
