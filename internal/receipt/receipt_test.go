package receipt

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osama-dev255/kilango1v1-sub000/internal/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sampleResult() domain.SettlementResult {
	return domain.SettlementResult{
		Header: domain.TransactionHeader{
			ID:              "txn-1",
			DocumentNumber:  "INV-1792056600123",
			Subtotal:        dec("35"),
			DiscountAmount:  dec("3.5"),
			DisplayTax:      dec("5.67"),
			Total:           dec("31.5"),
			PaymentMethod:   domain.PaymentCash,
			AmountTendered:  dec("40"),
			Change:          dec("8.5"),
			TransactionDate: time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC),
		},
		Items: []domain.LineItem{
			{Name: "Sugar 1kg", Quantity: 2, UnitPrice: dec("10"), LineTotal: dec("20")},
			{Name: "Rice 5kg", Quantity: 1, UnitPrice: dec("15"), LineTotal: dec("15")},
		},
	}
}

func TestBuildCopiesHeaderAndLines(t *testing.T) {
	rcpt := Build(sampleResult())

	assert.Equal(t, "INV-1792056600123", rcpt.DocumentNumber)
	assert.Equal(t, "2026-10-15T09:30:00Z", rcpt.Date)
	assert.Nil(t, rcpt.Counterparty)
	require.Len(t, rcpt.Lines, 2)
	assert.Equal(t, "Sugar 1kg", rcpt.Lines[0].Name)
	assert.True(t, rcpt.Lines[0].LineTotal.Equal(dec("20")))
	assert.True(t, rcpt.Total.Equal(dec("31.5")))
	assert.True(t, rcpt.Change.Equal(dec("8.5")))
}

func TestBuildIncludesCounterpartyName(t *testing.T) {
	result := sampleResult()
	result.Counterparty = &domain.Counterparty{ID: "cus-1", Name: "Mama Neema"}

	rcpt := Build(result)

	require.NotNil(t, rcpt.Counterparty)
	assert.Equal(t, "Mama Neema", *rcpt.Counterparty)
}

func TestReceiptJSONFieldNames(t *testing.T) {
	payload, err := json.Marshal(Build(sampleResult()))
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(payload, &fields))

	for _, key := range []string{
		"documentNumber", "date", "lines", "subtotal", "displayTax", "discountAmount",
		"total", "paymentMethod", "amountTendered", "change",
	} {
		assert.Contains(t, fields, key)
	}
	assert.NotContains(t, fields, "counterparty")

	var lines []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(fields["lines"], &lines))
	require.NotEmpty(t, lines)
	for _, key := range []string{"name", "quantity", "unitPrice", "lineTotal"} {
		assert.Contains(t, lines[0], key)
	}
}
