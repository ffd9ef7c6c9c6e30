package pricing

import "github.com/shopspring/decimal"

const bpsPlaces = 4

var tenThousand = decimal.NewFromInt(10000)

// Diff returns |a - b|.
func Diff(a, b decimal.Decimal) decimal.Decimal {
	return a.Sub(b).Abs()
}

// SpreadBps returns |a - b| relative to the lower of the two prices, in basis
// points rounded to four places. It is zero when either price is not positive.
func SpreadBps(a, b decimal.Decimal) decimal.Decimal {
	if !a.IsPositive() || !b.IsPositive() {
		return decimal.Zero
	}
	lower := decimal.Min(a, b)
	return Diff(a, b).Mul(tenThousand).DivRound(lower, bpsPlaces)
}
