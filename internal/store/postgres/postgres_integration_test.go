package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osama-dev255/kilango1v1-sub000/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	databaseURL := os.Getenv("POSSETTLE_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set POSSETTLE_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestSettlementRecordsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prd-it-%d", stamp)
	customerID := fmt.Sprintf("cus-it-%d", stamp)
	txID := fmt.Sprintf("txn-it-%d", stamp)
	debtID := fmt.Sprintf("debt-it-%d", stamp)
	docNumber := fmt.Sprintf("INV-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM debts WHERE id = $1`, debtID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transaction_lines WHERE transaction_id = $1`, txID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transaction_headers WHERE id = $1`, txID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM counterparties WHERE id = $1`, customerID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, sku, name, category, price, stock, active)
		VALUES ($1, $2, 'Sugar IT', 'grocery', 10.00, 10, true)
	`, productID, "SKU-"+productID)
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO counterparties (id, kind, name, credit_limit)
		VALUES ($1, 'customer', 'Integration Customer', 500)
	`, customerID)
	require.NoError(t, err)

	stock, err := s.GetStock(ctx, productID)
	require.NoError(t, err)
	require.Equal(t, 10, stock)
	require.NoError(t, s.AdjustStock(ctx, productID, 8))

	now := time.Now().UTC().Truncate(time.Millisecond)
	_, err = s.CreateTransactionHeader(ctx, domain.TransactionHeader{
		ID:               txID,
		DocumentNumber:   docNumber,
		Direction:        domain.DirectionOutflow,
		CounterpartyKind: domain.CounterpartyCustomer,
		CounterpartyID:   customerID,
		Subtotal:         decimal.RequireFromString("20"),
		DiscountKind:     domain.DiscountAmount,
		DiscountValue:    decimal.Zero,
		DiscountAmount:   decimal.Zero,
		DisplayTax:       decimal.RequireFromString("3.60"),
		Total:            decimal.RequireFromString("20"),
		PaymentMethod:    domain.PaymentDebt,
		PaymentStatus:    domain.PaymentStatusUnpaid,
		AmountTendered:   decimal.Zero,
		Change:           decimal.Zero,
		TransactionDate:  now,
		CreatedAt:        now,
	})
	require.NoError(t, err)
	_, err = s.CreateLineItem(ctx, domain.LineItem{
		ID: txID + "-1", TransactionID: txID, ProductID: productID, Name: "Sugar IT",
		Quantity: 2, UnitPrice: decimal.RequireFromString("10"), LineTotal: decimal.RequireFromString("20"),
	})
	require.NoError(t, err)
	_, err = s.CreateDebtRecord(ctx, domain.DebtRecord{
		ID: debtID, TransactionID: txID, DocumentNumber: docNumber,
		CounterpartyKind: domain.CounterpartyCustomer, CounterpartyID: customerID,
		Amount: decimal.RequireFromString("20"), Status: domain.DebtStatusOutstanding, CreatedAt: now,
	})
	require.NoError(t, err)

	found, err := s.FindTransactionByDocumentNumber(ctx, docNumber)
	require.NoError(t, err)
	assert.Equal(t, txID, found.Header.ID)
	assert.True(t, found.Header.Total.Equal(decimal.RequireFromString("20")))
	require.Len(t, found.Items, 1)
	require.NotNil(t, found.Debt)
	assert.Equal(t, domain.DebtStatusOutstanding, found.Debt.Status)
	require.NotNil(t, found.Counterparty)
	require.NotNil(t, found.Counterparty.CreditLimit)
	assert.True(t, found.Counterparty.CreditLimit.Equal(decimal.RequireFromString("500")))

	require.NoError(t, s.CancelDebtRecord(ctx, debtID))
	require.NoError(t, s.VoidTransactionHeader(ctx, txID, "integration test void"))
	found, err = s.FindTransactionByDocumentNumber(ctx, docNumber)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusVoided, found.Header.PaymentStatus)
	assert.Equal(t, domain.DebtStatusCancelled, found.Debt.Status)
}

func TestUpdateLastDocumentNumberIsSerialized(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	series := fmt.Sprintf("it-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM document_counters WHERE series = $1`, series)
	})

	const workers = 20
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			_, err := s.UpdateLastDocumentNumber(ctx, series, func(last string) (string, error) {
				if last == "" {
					return "1", nil
				}
				var n int
				_, err := fmt.Sscanf(last, "%d", &n)
				return fmt.Sprint(n + 1), err
			})
			errs <- err
		}()
	}
	for i := 0; i < workers; i++ {
		require.NoError(t, <-errs)
	}

	last, err := s.LastDocumentNumber(ctx, series)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprint(workers), last)
}
