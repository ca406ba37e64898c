// Package settlement turns a cart into committed transaction records.
//
// One Session exists per in-progress transaction. Sales and purchases share the same
// orchestration and differ only in their Flow.
package settlement

import (
	"github.com/shopspring/decimal"

	"github.com/osama-dev255/kilango1v1-sub000/internal/domain"
	"github.com/osama-dev255/kilango1v1-sub000/internal/pricing"
)

type Flow struct {
	Name             string
	Direction        domain.Direction
	CounterpartyKind domain.CounterpartyKind
	DocumentPrefix   string
	Pricing          pricing.Calculator
	// EnforceStock runs the stock guard on cart edits and before settling. Goods coming in
	// are not bounded by what is on the shelf.
	EnforceStock bool
	// CounterpartyRequired gates checkout on a selected counterparty.
	CounterpartyRequired bool
	AccruesLoyalty       bool
}

const (
	FlowSales     = "sales"
	FlowPurchases = "purchases"
)

// SalesFlow computes display tax on the discounted total.
func SalesFlow(prefix string, taxRate decimal.Decimal) Flow {
	return Flow{
		Name:             FlowSales,
		Direction:        domain.DirectionOutflow,
		CounterpartyKind: domain.CounterpartyCustomer,
		DocumentPrefix:   prefix,
		Pricing:          pricing.NewCalculator(taxRate, pricing.TaxOnTotal),
		EnforceStock:     true,
		AccruesLoyalty:   true,
	}
}

// PurchaseFlow computes display tax on the subtotal.
func PurchaseFlow(prefix string, taxRate decimal.Decimal) Flow {
	return Flow{
		Name:                 FlowPurchases,
		Direction:            domain.DirectionInflow,
		CounterpartyKind:     domain.CounterpartySupplier,
		DocumentPrefix:       prefix,
		Pricing:              pricing.NewCalculator(taxRate, pricing.TaxOnSubtotal),
		CounterpartyRequired: true,
	}
}

// stockDelta is the signed quantity change a settled line applies to stock.
func (f Flow) stockDelta(quantity int) int {
	if f.Direction == domain.DirectionOutflow {
		return -quantity
	}
	return quantity
}
