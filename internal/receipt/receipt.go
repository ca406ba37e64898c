// Package receipt builds the payload handed to printing and export.
package receipt

import (
	"time"

	"github.com/osama-dev255/kilango1v1-sub000/internal/domain"
)

const DateLayout = time.RFC3339

// Build maps a committed settlement onto the receipt contract. Amounts are copied as stored;
// formatting is left to the renderer.
func Build(result domain.SettlementResult) domain.Receipt {
	h := result.Header

	lines := make([]domain.ReceiptLine, 0, len(result.Items))
	for _, item := range result.Items {
		lines = append(lines, domain.ReceiptLine{
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal,
		})
	}

	rcpt := domain.Receipt{
		DocumentNumber: h.DocumentNumber,
		Date:           h.TransactionDate.UTC().Format(DateLayout),
		Lines:          lines,
		Subtotal:       h.Subtotal,
		DisplayTax:     h.DisplayTax,
		DiscountAmount: h.DiscountAmount,
		Total:          h.Total,
		PaymentMethod:  h.PaymentMethod,
		AmountTendered: h.AmountTendered,
		Change:         h.Change,
	}
	if result.Counterparty != nil && result.Counterparty.Name != "" {
		name := result.Counterparty.Name
		rcpt.Counterparty = &name
	}
	return rcpt
}
