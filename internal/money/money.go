// Package money holds the minor-unit arithmetic shared by the pricing engines.
// Amounts are int64 whole Rupiah; percentages are float64 in [0,100].
package money

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// PercentOf returns pct% of amount rounded half away from zero to a whole unit.
func PercentOf(amount int64, pct float64) int64 {
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromFloat(pct)).
		Div(hundred).
		Round(0).
		IntPart()
}

// Scale returns amount × (100+pct)/100 rounded to a whole unit. A negative pct
// scales down, so Scale(x, -20) is a 20% reduction.
func Scale(amount int64, pct float64) int64 {
	factor := hundred.Add(decimal.NewFromFloat(pct)).Div(hundred)
	return decimal.NewFromInt(amount).Mul(factor).Round(0).IntPart()
}

// Ratio returns part/whole×100 rounded to two decimals, or 0 when whole is 0.
func Ratio(part int64, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return decimal.NewFromInt(part).
		Mul(hundred).
		DivRound(decimal.NewFromInt(whole), 2).
		InexactFloat64()
}

// FromFloat rounds a decimal amount to a whole unit.
func FromFloat(v float64) int64 {
	return decimal.NewFromFloat(v).Round(0).IntPart()
}

// ValidPercent reports whether pct lies in [0,100].
func ValidPercent(pct float64) bool {
	return pct >= 0 && pct <= 100
}
