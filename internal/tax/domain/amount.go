package domain

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// TaxAmount returns round(net × percentage / 100).
func TaxAmount(net int64, percentage decimal.Decimal) int64 {
	return decimal.NewFromInt(net).Mul(percentage).Div(hundred).Round(0).IntPart()
}

// GrossAmount returns round(net × (1 + percentage / 100)).
func GrossAmount(net int64, percentage decimal.Decimal) int64 {
	factor := decimal.NewFromInt(1).Add(percentage.Div(hundred))
	return decimal.NewFromInt(net).Mul(factor).Round(0).IntPart()
}
