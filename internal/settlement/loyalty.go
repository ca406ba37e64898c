package settlement

import "github.com/shopspring/decimal"

var DefaultLoyaltyUnit = decimal.NewFromInt(10)

// LoyaltyPoints awards one point per full unit of total. Non-positive totals or units earn
// nothing.
func LoyaltyPoints(total decimal.Decimal, unit decimal.Decimal) int64 {
	if !total.IsPositive() || !unit.IsPositive() {
		return 0
	}
	return total.Div(unit).Floor().IntPart()
}
