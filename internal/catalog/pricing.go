package catalog

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// ResalePrice applies the margin to a vendor cost and rounds up to the next
// whole rupiah.
func ResalePrice(cost int64, marginPercent decimal.Decimal) int64 {
	factor := decimal.NewFromInt(1).Add(marginPercent.Div(hundred))
	return decimal.NewFromInt(cost).Mul(factor).Ceil().IntPart()
}
