// Package shipping computes per-item and order-level shipping charges from
// unit price bands. Pure functions, no state.
package shipping

import "github.com/shopspring/decimal"

var (
	band300 = decimal.NewFromInt(300)
	band500 = decimal.NewFromInt(500)

	chargeLow  = decimal.NewFromInt(69)
	chargeMid  = decimal.NewFromInt(99)
	chargeBase = decimal.NewFromInt(150)

	surchargeStep = decimal.NewFromInt(10)
	surchargeCap  = decimal.NewFromInt(30)
	hundred       = decimal.NewFromInt(100)
)

// PerItem returns the shipping charge for a single unit at the given price.
//
// Bands:
//
//	price < 300          -> 69
//	300 <= price <= 500  -> 99
//	price > 500          -> 150 + 10 per full 100 of excess, capped at +30
func PerItem(unitPrice decimal.Decimal) decimal.Decimal {
	switch {
	case unitPrice.LessThan(band300):
		return chargeLow
	case unitPrice.LessThanOrEqual(band500):
		return chargeMid
	default:
		excess := unitPrice.Sub(band500).Div(hundred).Floor().Mul(surchargeStep)
		return chargeBase.Add(decimal.Min(surchargeCap, excess))
	}
}

// Line is a priced line item for order-level shipping calculation.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Order sums PerItem across every unit of every line.
func Order(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		qty := decimal.NewFromInt(int64(l.Quantity))
		total = total.Add(PerItem(l.UnitPrice).Mul(qty))
	}
	return total
}
