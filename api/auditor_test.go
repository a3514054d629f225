/*
auditor_test.go - Tests for the background counter drift auditor
*/
package api

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/parts-engine/inventory"
	memstore "github.com/warp/parts-engine/inventory/store"
)

func seedAuditPart(t *testing.T, store *memstore.Memory, id string, stock, reserved, onOrder int) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, store.CreatePart(context.Background(), inventory.Part{
		ID: inventory.PartID(id), PartNumber: "PN-" + id, Name: "Part " + id,
		QtyInStock: stock, QtyReserved: reserved, QtyOnOrder: onOrder,
		Active: true, CreatedAt: now, UpdatedAt: now,
	}))
}

func TestDriftAuditor_CleanStoreFindsNothing(t *testing.T) {
	// GIVEN: Counters that exactly match the rows they derive from
	// WHEN: An audit runs
	// THEN: Zero findings, run recorded

	ctx := context.Background()
	store := memstore.NewMemory()
	seedAuditPart(t, store, "p1", 10, 0, 4)
	now := time.Now().UTC()
	require.NoError(t, store.CreateDelivery(ctx, inventory.Delivery{
		ID: "d1", Supplier: "ACME", Status: inventory.DeliveryOrdering, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, store.CreateDeliveryItem(ctx, inventory.DeliveryItem{
		ID: "i1", DeliveryID: "d1", PartID: "p1",
		QuantityOrdered: 4, Status: inventory.ItemOrdered, CreatedAt: now, UpdatedAt: now,
	}))

	auditor := NewDriftAuditor(store, store, zerolog.Nop())
	run, err := auditor.RunNow()
	require.NoError(t, err)
	assert.Equal(t, 1, run.PartsChecked)
	assert.Equal(t, 0, run.DriftFound)

	runs, err := store.ListAuditRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
}

func TestDriftAuditor_DetectsOnOrderDrift(t *testing.T) {
	// GIVEN: A part claiming 9 on order against 4 outstanding
	// WHEN: An audit runs
	// THEN: One qty_on_order finding with stored 9, expected 4

	ctx := context.Background()
	store := memstore.NewMemory()
	seedAuditPart(t, store, "p1", 0, 0, 9)
	now := time.Now().UTC()
	require.NoError(t, store.CreateDelivery(ctx, inventory.Delivery{
		ID: "d1", Supplier: "ACME", Status: inventory.DeliveryOrdering, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, store.CreateDeliveryItem(ctx, inventory.DeliveryItem{
		ID: "i1", DeliveryID: "d1", PartID: "p1",
		QuantityOrdered: 6, QuantityReceived: 2, Status: inventory.ItemPartial,
		CreatedAt: now, UpdatedAt: now,
	}))

	auditor := NewDriftAuditor(store, store, zerolog.Nop())
	run, err := auditor.RunNow()
	require.NoError(t, err)
	require.Equal(t, 1, run.DriftFound)

	f := run.Findings[0]
	assert.Equal(t, inventory.PartID("p1"), f.PartID)
	assert.Equal(t, "qty_on_order", f.Counter)
	assert.Equal(t, 9, f.Stored)
	assert.Equal(t, 4, f.Expected)
}

func TestDriftAuditor_ReservedAccounting(t *testing.T) {
	// GIVEN: An allocation of 3 plus an authorised reservation of 2 on the
	//        same part, a cancelled row that must not count, and a stored
	//        qty_reserved of 5
	// WHEN: An audit runs
	// THEN: No drift; the cancelled row is ignored and the two live
	//       contributions stack

	ctx := context.Background()
	store := memstore.NewMemory()
	seedAuditPart(t, store, "p1", 2, 5, 0)
	now := time.Now().UTC()

	rows := []inventory.JobPart{
		{
			ID: "jp1", JobID: "job-1", PartID: "p1",
			QuantityRequested: 3, QuantityAllocated: 3,
			Status: inventory.JobPartAllocated, Provenance: inventory.ProvenanceFromStock,
			Origin: inventory.OriginManual, CreatedAt: now, UpdatedAt: now,
		},
		{
			ID: "jp2", JobID: "job-2", PartID: "p1",
			QuantityRequested: 2, Authorised: true,
			Status: inventory.JobPartAwaitingStock, Provenance: inventory.ProvenanceNone,
			Origin: inventory.OriginManual, CreatedAt: now, UpdatedAt: now,
		},
		{
			ID: "jp3", JobID: "job-3", PartID: "p1",
			QuantityRequested: 8, Authorised: true,
			Status: inventory.JobPartCancelled, Provenance: inventory.ProvenanceNone,
			Origin: inventory.OriginManual, CreatedAt: now, UpdatedAt: now,
		},
	}
	for _, jp := range rows {
		require.NoError(t, store.CreateJobPart(ctx, jp))
	}

	auditor := NewDriftAuditor(store, store, zerolog.Nop())
	run, err := auditor.RunNow()
	require.NoError(t, err)
	assert.Equal(t, 0, run.DriftFound, "findings: %+v", run.Findings)
}

func TestDriftAuditor_NeverWritesCounters(t *testing.T) {
	// GIVEN: A drifted part
	// WHEN: An audit runs and reports the drift
	// THEN: The stored counters are exactly as before

	ctx := context.Background()
	store := memstore.NewMemory()
	seedAuditPart(t, store, "p1", 7, 3, 9)

	auditor := NewDriftAuditor(store, store, zerolog.Nop())
	run, err := auditor.RunNow()
	require.NoError(t, err)
	assert.Equal(t, 2, run.DriftFound)

	part, err := store.GetPart(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 7, part.QtyInStock)
	assert.Equal(t, 3, part.QtyReserved)
	assert.Equal(t, 9, part.QtyOnOrder)
}

func TestDriftAuditor_StartStop(t *testing.T) {
	// GIVEN: An enabled auditor on a short interval
	// WHEN: It starts, tick passes, and it stops
	// THEN: At least the startup run is on record and Stop returns

	store := memstore.NewMemory()
	seedAuditPart(t, store, "p1", 1, 0, 0)

	auditor := NewDriftAuditor(store, store, zerolog.Nop())
	auditor.CheckInterval = 10 * time.Millisecond
	auditor.Start()
	time.Sleep(30 * time.Millisecond)
	auditor.Stop()

	runs, err := store.ListAuditRuns(context.Background(), 100)
	require.NoError(t, err)
	assert.NotEmpty(t, runs)
}
