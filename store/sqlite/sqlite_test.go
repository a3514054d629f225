package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/parts-engine/inventory"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newPart(number string, stock, reserved, onOrder int) inventory.Part {
	now := time.Now().UTC()
	return inventory.Part{
		ID:          inventory.PartID(uuid.NewString()),
		PartNumber:  number,
		Name:        "Test part " + number,
		Category:    "filters",
		Supplier:    "ACME",
		Location:    "A1",
		UnitCost:    decimal.RequireFromString("4.20"),
		UnitPrice:   decimal.RequireFromString("9.99"),
		QtyInStock:  stock,
		QtyReserved: reserved,
		QtyOnOrder:  onOrder,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// =============================================================================
// PARTS
// =============================================================================

func TestSQLite_PartRoundTrip(t *testing.T) {
	// GIVEN: A part with money fields and counters
	// WHEN: It is created and read back by id and by number
	// THEN: Every field survives, decimals exactly

	store := newTestStore(t)
	ctx := context.Background()
	p := newPart("OF-1042", 7, 2, 3)

	require.NoError(t, store.CreatePart(ctx, p))

	got, err := store.GetPart(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.PartNumber, got.PartNumber)
	assert.Equal(t, p.Name, got.Name)
	assert.Equal(t, 7, got.QtyInStock)
	assert.Equal(t, 2, got.QtyReserved)
	assert.Equal(t, 3, got.QtyOnOrder)
	assert.True(t, got.Active)
	assert.True(t, got.UnitCost.Equal(p.UnitCost), "unit cost %s", got.UnitCost)
	assert.True(t, got.UnitPrice.Equal(p.UnitPrice), "unit price %s", got.UnitPrice)

	byNumber, err := store.GetPartByNumber(ctx, "OF-1042")
	require.NoError(t, err)
	assert.Equal(t, p.ID, byNumber.ID)
}

func TestSQLite_DuplicatePartNumber(t *testing.T) {
	// GIVEN: An existing part number
	// WHEN: Another part reuses it with different casing
	// THEN: The create is rejected as a duplicate

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreatePart(ctx, newPart("OF-1042", 0, 0, 0)))

	err := store.CreatePart(ctx, newPart("of-1042", 0, 0, 0))
	assert.ErrorIs(t, err, inventory.ErrDuplicatePartNumber)
}

func TestSQLite_GetPartNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetPart(context.Background(), "missing")
	assert.ErrorIs(t, err, inventory.ErrPartNotFound)
	assert.ErrorIs(t, err, inventory.ErrNotFound)
}

func TestSQLite_UpdatePartDetailsLeavesCounters(t *testing.T) {
	// GIVEN: A part with counters {7, 2, 3}
	// WHEN: Its details are edited with stale counter values on the struct
	// THEN: Name changes, the stored counters stay authoritative

	store := newTestStore(t)
	ctx := context.Background()
	p := newPart("WB-0090", 7, 2, 3)
	require.NoError(t, store.CreatePart(ctx, p))

	p.Name = "Wiper blade rear"
	p.QtyInStock = 999
	require.NoError(t, store.UpdatePartDetails(ctx, p))

	got, err := store.GetPart(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Wiper blade rear", got.Name)
	assert.Equal(t, 7, got.QtyInStock)
	assert.Equal(t, 2, got.QtyReserved)
	assert.Equal(t, 3, got.QtyOnOrder)
}

// =============================================================================
// CONDITIONAL COUNTER UPDATE
// =============================================================================

func TestSQLite_AdjustQuantitiesApplies(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := newPart("BP-2200F", 10, 0, 0)
	require.NoError(t, store.CreatePart(ctx, p))

	got, err := store.AdjustQuantities(ctx, p.ID, inventory.Adjustment{Stock: -4, Reserved: 4, OnOrder: 2})
	require.NoError(t, err)
	assert.Equal(t, 6, got.QtyInStock)
	assert.Equal(t, 4, got.QtyReserved)
	assert.Equal(t, 2, got.QtyOnOrder)
}

func TestSQLite_AdjustQuantitiesRejectsOverdraw(t *testing.T) {
	// GIVEN: A part with 3 in stock
	// WHEN: An adjustment would take stock to -1
	// THEN: The row is untouched and the rejection is typed

	store := newTestStore(t)
	ctx := context.Background()
	p := newPart("BAT-063", 3, 0, 0)
	require.NoError(t, store.CreatePart(ctx, p))

	_, err := store.AdjustQuantities(ctx, p.ID, inventory.Adjustment{Stock: -4})
	require.Error(t, err)
	assert.ErrorIs(t, err, inventory.ErrLedgerRejected)

	var ledgerErr *inventory.LedgerError
	require.ErrorAs(t, err, &ledgerErr)
	assert.Equal(t, p.ID, ledgerErr.PartID)

	got, err := store.GetPart(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.QtyInStock)
}

func TestSQLite_AdjustQuantitiesUnknownPart(t *testing.T) {
	store := newTestStore(t)

	_, err := store.AdjustQuantities(context.Background(), "missing", inventory.Adjustment{Stock: 1})
	assert.ErrorIs(t, err, inventory.ErrPartNotFound)
}

// =============================================================================
// DELIVERIES
// =============================================================================

func TestSQLite_DeliveryHydration(t *testing.T) {
	// GIVEN: A delivery with two items for two parts
	// WHEN: It is read back
	// THEN: The header carries the items, statuses derived from quantities

	store := newTestStore(t)
	ctx := context.Background()
	p1 := newPart("OF-1042", 0, 0, 0)
	p2 := newPart("BD-2201F", 0, 0, 0)
	require.NoError(t, store.CreatePart(ctx, p1))
	require.NoError(t, store.CreatePart(ctx, p2))

	now := time.Now().UTC()
	expected := now.Add(48 * time.Hour)
	d := inventory.Delivery{
		ID:             inventory.DeliveryID(uuid.NewString()),
		Supplier:       "EuroParts",
		OrderReference: "EP-88112",
		Status:         inventory.DeliveryInTransit,
		ExpectedDate:   &expected,
		Notes:          "morning van",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, store.CreateDelivery(ctx, d))

	items := []inventory.DeliveryItem{
		{
			ID: inventory.DeliveryItemID(uuid.NewString()), DeliveryID: d.ID, PartID: p1.ID,
			QuantityOrdered: 10, Status: inventory.ItemOrdered,
			UnitCost: decimal.RequireFromString("4.20"), UnitPrice: decimal.RequireFromString("9.99"),
			CreatedAt: now, UpdatedAt: now,
		},
		{
			ID: inventory.DeliveryItemID(uuid.NewString()), DeliveryID: d.ID, PartID: p2.ID,
			JobID: "job-4", QuantityOrdered: 6, QuantityReceived: 2, Status: inventory.ItemPartial,
			UnitCost: decimal.RequireFromString("11.00"), UnitPrice: decimal.RequireFromString("24.00"),
			CreatedAt: now, UpdatedAt: now,
		},
	}
	for _, item := range items {
		require.NoError(t, store.CreateDeliveryItem(ctx, item))
	}

	got, err := store.GetDelivery(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "EuroParts", got.Supplier)
	assert.Equal(t, inventory.DeliveryInTransit, got.Status)
	require.NotNil(t, got.ExpectedDate)
	require.Len(t, got.Items, 2)

	byID := map[inventory.DeliveryItemID]inventory.DeliveryItem{}
	for _, item := range got.Items {
		byID[item.ID] = item
	}
	assert.Equal(t, 10, byID[items[0].ID].QuantityOrdered)
	assert.Equal(t, inventory.JobID("job-4"), byID[items[1].ID].JobID)
	assert.Equal(t, 2, byID[items[1].ID].QuantityReceived)
}

func TestSQLite_DeleteDeliveryRemovesHeader(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	d := inventory.Delivery{
		ID: inventory.DeliveryID(uuid.NewString()), Supplier: "ACME",
		Status: inventory.DeliveryOrdering, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.CreateDelivery(ctx, d))
	require.NoError(t, store.DeleteDelivery(ctx, d.ID))

	_, err := store.GetDelivery(ctx, d.ID)
	assert.ErrorIs(t, err, inventory.ErrNotFound)
}

func TestSQLite_ListDeliveryItemsByPart(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := newPart("CAB-7731", 0, 0, 0)
	require.NoError(t, store.CreatePart(ctx, p))

	now := time.Now().UTC()
	for i := 0; i < 2; i++ {
		d := inventory.Delivery{
			ID: inventory.DeliveryID(uuid.NewString()), Supplier: "ACME",
			Status: inventory.DeliveryOrdering, CreatedAt: now, UpdatedAt: now,
		}
		require.NoError(t, store.CreateDelivery(ctx, d))
		require.NoError(t, store.CreateDeliveryItem(ctx, inventory.DeliveryItem{
			ID: inventory.DeliveryItemID(uuid.NewString()), DeliveryID: d.ID, PartID: p.ID,
			QuantityOrdered: 5, Status: inventory.ItemOrdered, CreatedAt: now, UpdatedAt: now,
		}))
	}

	items, err := store.ListDeliveryItemsByPart(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

// =============================================================================
// JOB PARTS
// =============================================================================

func TestSQLite_JobPartRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := newPart("OF-1042", 10, 0, 0)
	require.NoError(t, store.CreatePart(ctx, p))

	now := time.Now().UTC()
	jp := inventory.JobPart{
		ID:                inventory.JobPartID(uuid.NewString()),
		JobID:             "job-5512",
		PartID:            p.ID,
		QuantityRequested: 4,
		QuantityAllocated: 4,
		Status:            inventory.JobPartAllocated,
		Authorised:        true,
		Origin:            inventory.OriginVHC,
		VHCItemID:         "vhc-3301",
		Provenance:        inventory.ProvenanceFromStock,
		Location:          "A1",
		UnitCost:          decimal.RequireFromString("4.20"),
		UnitPrice:         decimal.RequireFromString("9.99"),
		RequestedBy:       "advisor-1",
		AllocatedBy:       "tech-1",
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	require.NoError(t, store.CreateJobPart(ctx, jp))

	got, err := store.GetJobPart(ctx, jp.ID)
	require.NoError(t, err)
	assert.Equal(t, inventory.JobPartAllocated, got.Status)
	assert.True(t, got.Authorised)
	assert.Equal(t, inventory.OriginVHC, got.Origin)
	assert.Equal(t, "vhc-3301", got.VHCItemID)
	assert.Equal(t, inventory.ProvenanceFromStock, got.Provenance)
	assert.Equal(t, "tech-1", got.AllocatedBy)

	listed, err := store.ListJobParts(ctx, "job-5512")
	require.NoError(t, err)
	require.Len(t, listed, 1)

	require.NoError(t, store.DeleteJobPart(ctx, jp.ID))
	_, err = store.GetJobPart(ctx, jp.ID)
	assert.ErrorIs(t, err, inventory.ErrNotFound)
}

// =============================================================================
// MOVEMENTS AND AUDIT RUNS
// =============================================================================

func TestSQLite_MovementLog(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := newPart("OF-1042", 0, 0, 0)
	require.NoError(t, store.CreatePart(ctx, p))

	for i, qty := range []int{5, -2} {
		mv := inventory.StockMovement{
			ID:          inventory.MovementID(uuid.NewString()),
			PartID:      p.ID,
			Type:        inventory.MovementDelivery,
			Quantity:    qty,
			PerformedBy: "stores",
			Reference:   "EP-88112",
			CreatedAt:   time.Now().UTC().Add(time.Duration(i) * time.Millisecond),
		}
		require.NoError(t, store.AppendMovement(ctx, mv))
	}

	movements, err := store.ListMovements(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, movements, 2)
	assert.Equal(t, 5, movements[0].Quantity)
	assert.Equal(t, -2, movements[1].Quantity)
	assert.Equal(t, "stores", movements[0].PerformedBy)
}

func TestSQLite_AuditRunRoundTrip(t *testing.T) {
	// GIVEN: An audit run with findings
	// WHEN: It is appended and listed back
	// THEN: Findings survive the JSON column intact

	store := newTestStore(t)
	ctx := context.Background()

	started := time.Now().UTC().Add(-time.Minute)
	run := inventory.AuditRun{
		ID:           "audit-1",
		StartedAt:    started,
		CompletedAt:  started.Add(2 * time.Second),
		PartsChecked: 12,
		DriftFound:   1,
		Findings: []inventory.DriftFinding{
			{PartID: "p9", Counter: "qty_reserved", Stored: 3, Expected: 5},
		},
	}
	require.NoError(t, store.AppendAuditRun(ctx, run))
	require.NoError(t, store.AppendAuditRun(ctx, inventory.AuditRun{
		ID: "audit-2", StartedAt: started.Add(time.Minute), CompletedAt: started.Add(time.Minute + time.Second),
		PartsChecked: 12,
	}))

	runs, err := store.ListAuditRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	// Newest first.
	assert.Equal(t, "audit-2", runs[0].ID)
	assert.Equal(t, "audit-1", runs[1].ID)
	require.Len(t, runs[1].Findings, 1)
	assert.Equal(t, inventory.PartID("p9"), runs[1].Findings[0].PartID)
	assert.Equal(t, "qty_reserved", runs[1].Findings[0].Counter)
	assert.Equal(t, 5, runs[1].Findings[0].Expected)

	one, err := store.ListAuditRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "audit-2", one[0].ID)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestSQLite_WithTxCommits(t *testing.T) {
	// GIVEN: A transaction creating a part and adjusting it
	// WHEN: The function returns nil
	// THEN: Both effects are visible afterwards

	store := newTestStore(t)
	ctx := context.Background()
	p := newPart("OF-1042", 10, 0, 0)

	err := store.WithTx(ctx, func(s inventory.Store) error {
		if err := s.CreatePart(ctx, p); err != nil {
			return err
		}
		_, err := s.AdjustQuantities(ctx, p.ID, inventory.Adjustment{Stock: -4, Reserved: 4})
		return err
	})
	require.NoError(t, err)

	got, err := store.GetPart(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, got.QtyInStock)
	assert.Equal(t, 4, got.QtyReserved)
}

func TestSQLite_WithTxRollsBackOnError(t *testing.T) {
	// GIVEN: A transaction that creates a part, then fails
	// WHEN: The function returns an error
	// THEN: Nothing is visible afterwards

	store := newTestStore(t)
	ctx := context.Background()
	p := newPart("OF-1042", 10, 0, 0)
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(s inventory.Store) error {
		if err := s.CreatePart(ctx, p); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = store.GetPart(ctx, p.ID)
	assert.ErrorIs(t, err, inventory.ErrNotFound)
}

func TestSQLite_WithTxRollsBackOnLedgerRejection(t *testing.T) {
	// GIVEN: A seeded part and a transaction that overspends its stock
	// WHEN: The ledger rejection propagates out of the transaction
	// THEN: Earlier effects inside the transaction are rolled back

	store := newTestStore(t)
	ctx := context.Background()
	p := newPart("OF-1042", 3, 0, 0)
	require.NoError(t, store.CreatePart(ctx, p))

	err := store.WithTx(ctx, func(s inventory.Store) error {
		if _, err := s.AdjustQuantities(ctx, p.ID, inventory.Adjustment{OnOrder: 5}); err != nil {
			return err
		}
		_, err := s.AdjustQuantities(ctx, p.ID, inventory.Adjustment{Stock: -4})
		return err
	})
	assert.ErrorIs(t, err, inventory.ErrLedgerRejected)

	got, err := store.GetPart(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.QtyOnOrder)
	assert.Equal(t, 3, got.QtyInStock)
}
