// Package money holds currency helpers shared by the lending domains.
// Amounts are pesos carried as shopspring decimals and stored as NUMERIC(14,2).
package money

import (
	"github.com/shopspring/decimal"
)

func init() {
	// Amounts travel as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Symbol prefixes human-readable amounts
const Symbol = "₱"

// Peso builds an amount from whole pesos.
func Peso(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// Round normalises an amount to centavos.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Format renders an amount for reasons and perk text, e.g. "₱1,250".
func Format(d decimal.Decimal) string {
	d = Round(d)
	whole := d.Truncate(0)
	s := groupThousands(whole.Abs().String())
	if d.IsNegative() {
		s = "-" + s
	}
	if frac := d.Sub(whole).Abs(); !frac.IsZero() {
		s += frac.StringFixed(2)[1:]
	}
	return Symbol + s
}

func groupThousands(digits string) string {
	n := len(digits)
	if n <= 3 {
		return digits
	}
	out := make([]byte, 0, n+n/3)
	pre := n % 3
	if pre > 0 {
		out = append(out, digits[:pre]...)
	}
	for i := pre; i < n; i += 3 {
		if len(out) > 0 {
			out = append(out, ',')
		}
		out = append(out, digits[i:i+3]...)
	}
	return string(out)
}

// Split divides total into n instalments rounded to centavos; the last instalment absorbs the remainder.
func Split(total decimal.Decimal, n int) []decimal.Decimal {
	if n <= 0 {
		return nil
	}
	each := total.Div(decimal.NewFromInt(int64(n))).Round(2)
	parts := make([]decimal.Decimal, n)
	for i := 0; i < n-1; i++ {
		parts[i] = each
	}
	parts[n-1] = total.Sub(each.Mul(decimal.NewFromInt(int64(n - 1))))
	return parts
}
