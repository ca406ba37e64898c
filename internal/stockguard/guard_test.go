package stockguard

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osama-dev255/kilango1v1-sub000/internal/domain"
)

func TestCheckIncrementStopsAtAvailable(t *testing.T) {
	guard := New(Snapshot{"p-1": 3})

	qty := 0
	for i := 0; i < 10; i++ {
		if err := guard.CheckIncrement("p-1", "Sugar", qty); err != nil {
			assert.True(t, domain.IsValidation(err, domain.ErrInsufficientStock))
			break
		}
		qty++
	}

	assert.Equal(t, 3, qty)
}

func TestCheckIncrementUnknownProductHasNoStock(t *testing.T) {
	guard := New(nil)

	err := guard.CheckIncrement("missing", "Ghost", 0)

	require.Error(t, err)
	assert.True(t, domain.IsValidation(err, domain.ErrInsufficientStock))
}

func TestClampEditCapsAboveSnapshot(t *testing.T) {
	guard := New(Snapshot{"p-1": 3})

	adj := guard.ClampEdit("p-1", 5)

	assert.Equal(t, Adjustment{Quantity: 3, Capped: true, Available: 3}, adj)
}

func TestClampEditKeepsQuantityWithinSnapshot(t *testing.T) {
	guard := New(Snapshot{"p-1": 3})

	assert.Equal(t, Adjustment{Quantity: 2, Available: 3}, guard.ClampEdit("p-1", 2))
	assert.Equal(t, Adjustment{Quantity: 0, Available: 3}, guard.ClampEdit("p-1", -4))
}

func TestCanAddReportsCap(t *testing.T) {
	guard := New(Snapshot{"p-1": 4})

	decision := guard.CanAdd("p-1", 3, 2)

	require.False(t, decision.Allowed)
	require.NotNil(t, decision.CappedQuantity)
	assert.Equal(t, 4, *decision.CappedQuantity)
}

func TestRecheckNamesOffendingProduct(t *testing.T) {
	lines := []domain.CartLine{
		{ProductRef: "p-1", Name: "Sugar", UnitPrice: decimal.NewFromInt(10), Quantity: 2},
		{ProductRef: "p-2", Name: "Rice", UnitPrice: decimal.NewFromInt(15), Quantity: 4},
		{ProductRef: "p-3", Name: "Salt", UnitPrice: decimal.NewFromInt(5), Quantity: 0},
	}

	err := Recheck(lines, Snapshot{"p-1": 5, "p-2": 1})

	require.Error(t, err)
	assert.True(t, domain.IsValidation(err, domain.ErrInsufficientStock))
	assert.Contains(t, err.Error(), "Rice")
	assert.Contains(t, err.Error(), "only 1 available")
}

func TestRecheckIgnoresZeroQuantityLines(t *testing.T) {
	lines := []domain.CartLine{{ProductRef: "p-3", Name: "Salt", Quantity: 0}}

	require.NoError(t, Recheck(lines, Snapshot{}))
}
