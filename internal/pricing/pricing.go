// Package pricing computes cart totals. Every function is pure so it can run on each cart edit.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/osama-dev255/kilango1v1-sub000/internal/domain"
)

// TaxBase selects the figure the display tax is computed from.
type TaxBase int

const (
	TaxOnTotal TaxBase = iota
	TaxOnSubtotal
)

var DefaultTaxRate = decimal.RequireFromString("0.18")

type Calculator struct {
	TaxRate decimal.Decimal
	TaxBase TaxBase
}

func NewCalculator(taxRate decimal.Decimal, base TaxBase) Calculator {
	return Calculator{TaxRate: taxRate, TaxBase: base}
}

// Calculate returns subtotal, discount, total and the display tax for lines. The display tax
// is informational and never part of Total.
func (c Calculator) Calculate(lines []domain.CartLine, discount domain.DiscountSpec) domain.Totals {
	subtotal := Subtotal(lines)
	discountAmount := DiscountAmount(subtotal, discount)
	total := subtotal.Sub(discountAmount)

	base := total
	if c.TaxBase == TaxOnSubtotal {
		base = subtotal
	}

	return domain.Totals{
		Subtotal:       subtotal,
		DiscountAmount: discountAmount,
		Total:          total,
		DisplayTax:     base.Mul(c.TaxRate).Round(2),
	}
}

func Subtotal(lines []domain.CartLine) decimal.Decimal {
	subtotal := decimal.Zero
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		subtotal = subtotal.Add(line.LineTotal())
	}
	return subtotal
}

// DiscountAmount does not clamp fixed amounts to the subtotal, so a large fixed discount can
// drive the total below zero.
func DiscountAmount(subtotal decimal.Decimal, discount domain.DiscountSpec) decimal.Decimal {
	switch discount.Kind {
	case domain.DiscountPercentage:
		return subtotal.Mul(discount.Value).Div(decimal.NewFromInt(100))
	case domain.DiscountAmount:
		return discount.Value
	default:
		return decimal.Zero
	}
}

// ValidateDiscount rejects negative values, unknown kinds and percentages above 100.
func ValidateDiscount(discount domain.DiscountSpec) error {
	switch discount.Kind {
	case domain.DiscountPercentage:
		if discount.Value.IsNegative() || discount.Value.GreaterThan(decimal.NewFromInt(100)) {
			return domain.NewValidationError(domain.ErrInvalidDiscount, "percentage must be between 0 and 100, got %s", discount.Value)
		}
	case domain.DiscountAmount:
		if discount.Value.IsNegative() {
			return domain.NewValidationError(domain.ErrInvalidDiscount, "amount must not be negative, got %s", discount.Value)
		}
	default:
		return domain.NewValidationError(domain.ErrInvalidDiscount, "unknown discount kind %q", discount.Kind)
	}
	return nil
}
