package inventory_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/parts-engine/inventory"
	memstore "github.com/warp/parts-engine/inventory/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func seedPart(t *testing.T, store inventory.PartStore, id string, stock, reserved, onOrder int) inventory.Part {
	t.Helper()
	now := time.Now().UTC()
	p := inventory.Part{
		ID:          inventory.PartID(id),
		PartNumber:  "PN-" + id,
		Name:        "Part " + id,
		UnitCost:    decimal.NewFromInt(5),
		UnitPrice:   decimal.NewFromInt(12),
		QtyInStock:  stock,
		QtyReserved: reserved,
		QtyOnOrder:  onOrder,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, store.CreatePart(context.Background(), p))
	return p
}

func counters(t *testing.T, store inventory.PartStore, id string) (stock, reserved, onOrder int) {
	t.Helper()
	p, err := store.GetPart(context.Background(), inventory.PartID(id))
	require.NoError(t, err)
	return p.QtyInStock, p.QtyReserved, p.QtyOnOrder
}

// =============================================================================
// LEDGER TESTS
// =============================================================================

func TestLedger_AppliesAllThreeCounters(t *testing.T) {
	// GIVEN: A part with {stock 10, reserved 2, on_order 3}
	// WHEN: Adjusting by {+1, -2, +4}
	// THEN: Counters land on {11, 0, 7}

	store := memstore.NewMemory()
	seedPart(t, store, "p1", 10, 2, 3)
	ledger := inventory.NewLedger(store, testLogger())

	part, err := ledger.AdjustPartQuantities(context.Background(), "p1", inventory.Adjustment{Stock: 1, Reserved: -2, OnOrder: 4})
	require.NoError(t, err)

	assert.Equal(t, 11, part.QtyInStock)
	assert.Equal(t, 0, part.QtyReserved)
	assert.Equal(t, 7, part.QtyOnOrder)
}

func TestLedger_RejectsNegativeCounter(t *testing.T) {
	// GIVEN: A part with 3 in stock
	// WHEN: Adjusting stock by -4
	// THEN: The call fails with a ledger rejection and nothing changes

	store := memstore.NewMemory()
	seedPart(t, store, "p1", 3, 0, 0)
	ledger := inventory.NewLedger(store, testLogger())

	_, err := ledger.AdjustPartQuantities(context.Background(), "p1", inventory.Adjustment{Stock: -4})
	require.Error(t, err)
	assert.ErrorIs(t, err, inventory.ErrLedgerRejected)

	var ledgerErr *inventory.LedgerError
	require.ErrorAs(t, err, &ledgerErr)
	assert.Equal(t, inventory.PartID("p1"), ledgerErr.PartID)

	stock, reserved, onOrder := counters(t, store, "p1")
	assert.Equal(t, []int{3, 0, 0}, []int{stock, reserved, onOrder})
}

func TestLedger_RejectsWhenAnyCounterWouldGoNegative(t *testing.T) {
	// GIVEN: A part with {stock 5, reserved 1, on_order 0}
	// WHEN: Adjusting by {+5, -1, -1} (on_order would go to -1)
	// THEN: The whole adjustment fails; no counter moves

	store := memstore.NewMemory()
	seedPart(t, store, "p1", 5, 1, 0)
	ledger := inventory.NewLedger(store, testLogger())

	_, err := ledger.AdjustPartQuantities(context.Background(), "p1", inventory.Adjustment{Stock: 5, Reserved: -1, OnOrder: -1})
	assert.ErrorIs(t, err, inventory.ErrLedgerRejected)

	stock, reserved, onOrder := counters(t, store, "p1")
	assert.Equal(t, []int{5, 1, 0}, []int{stock, reserved, onOrder})
}

func TestLedger_ZeroAdjustmentIsNoOp(t *testing.T) {
	// GIVEN: Any part
	// WHEN: Adjusting by {0,0,0}
	// THEN: The current row is returned without a store write

	store := memstore.NewMemory()
	seedPart(t, store, "p1", 7, 2, 1)
	ledger := inventory.NewLedger(store, testLogger())

	before, err := store.GetPart(context.Background(), "p1")
	require.NoError(t, err)

	part, err := ledger.AdjustPartQuantities(context.Background(), "p1", inventory.Adjustment{})
	require.NoError(t, err)
	assert.Equal(t, before.QtyInStock, part.QtyInStock)
	assert.Equal(t, before.UpdatedAt, part.UpdatedAt)
}

func TestLedger_UnknownPart(t *testing.T) {
	store := memstore.NewMemory()
	ledger := inventory.NewLedger(store, testLogger())

	_, err := ledger.AdjustPartQuantities(context.Background(), "nope", inventory.Adjustment{Stock: 1})
	assert.ErrorIs(t, err, inventory.ErrPartNotFound)
	assert.ErrorIs(t, err, inventory.ErrNotFound)
}

func TestAdjustment_Negate(t *testing.T) {
	adj := inventory.Adjustment{Stock: 3, Reserved: -2, OnOrder: 5}
	neg := adj.Negate()
	assert.Equal(t, inventory.Adjustment{Stock: -3, Reserved: 2, OnOrder: -5}, neg)
	assert.True(t, inventory.Adjustment{}.IsZero())
	assert.False(t, adj.IsZero())
}
