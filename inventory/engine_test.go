package inventory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/parts-engine/inventory"
	memstore "github.com/warp/parts-engine/inventory/store"
)

// TestEngine_SupplyAndDemandLifecycle walks one part through the whole
// engine: order it, receive it, allocate it to a job, then cancel the job
// request. Every intermediate counter state is pinned.
func TestEngine_SupplyAndDemandLifecycle(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewMemory()
	seedPart(t, store, "p1", 10, 0, 0)

	deliveries := inventory.NewDeliveryManager(store, testLogger())
	jobParts := inventory.NewJobPartManager(store, nil, testLogger())

	// GIVEN: {stock 10, reserved 0, on_order 0}

	// WHEN: 5 more are ordered from a supplier
	d, err := deliveries.CreateDelivery(ctx, inventory.CreateDeliveryInput{
		Supplier:    "ACME",
		Items:       []inventory.DeliveryItemInput{{PartID: "p1", QuantityOrdered: 5}},
		PerformedBy: "stores",
	})
	require.NoError(t, err)

	// THEN: {10, 0, 5}
	stock, reserved, onOrder := counters(t, store, "p1")
	assert.Equal(t, []int{10, 0, 5}, []int{stock, reserved, onOrder})

	// WHEN: The delivery arrives in full
	_, err = deliveries.UpdateDeliveryItem(ctx, d.Items[0].ID, inventory.UpdateDeliveryItemInput{
		QuantityReceived: intp(5),
		PerformedBy:      "stores",
	})
	require.NoError(t, err)

	// THEN: {15, 0, 0} and the header is received
	stock, reserved, onOrder = counters(t, store, "p1")
	assert.Equal(t, []int{15, 0, 0}, []int{stock, reserved, onOrder})

	fresh, err := deliveries.GetDelivery(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, inventory.DeliveryReceived, fresh.Status)
	assert.NotNil(t, fresh.ReceivedDate)

	// WHEN: A job takes 4 from stock
	jp, err := jobParts.CreateJobPart(ctx, inventory.CreateJobPartInput{
		JobID: "job-77", PartID: "p1", QuantityRequested: 4,
		AllocateFromStock: true, PerformedBy: "tech-1",
	})
	require.NoError(t, err)

	// THEN: {11, 4, 0}
	stock, reserved, onOrder = counters(t, store, "p1")
	assert.Equal(t, []int{11, 4, 0}, []int{stock, reserved, onOrder})

	// WHEN: The job request is cancelled
	_, err = jobParts.UpdateJobPart(ctx, jp.ID, inventory.UpdateJobPartInput{
		Status: statusp(inventory.JobPartCancelled), PerformedBy: "tech-1",
	})
	require.NoError(t, err)

	// THEN: {15, 0, 0} again, and the ledger trail has one movement per
	//       physical change: receipt +5, allocation -4, release +4
	stock, reserved, onOrder = counters(t, store, "p1")
	assert.Equal(t, []int{15, 0, 0}, []int{stock, reserved, onOrder})

	movements, err := store.ListMovements(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, movements, 3)
	assert.Equal(t, 5, movements[0].Quantity)
	assert.Equal(t, inventory.MovementDelivery, movements[0].Type)
	assert.Equal(t, -4, movements[1].Quantity)
	assert.Equal(t, inventory.MovementAllocation, movements[1].Type)
	assert.Equal(t, 4, movements[2].Quantity)
	assert.Equal(t, inventory.MovementAllocation, movements[2].Type)
}

// TestEngine_ConcurrentAllocationsNeverOversell hammers one part with
// parallel from-stock allocations; the ledger must hand out exactly the
// stock that exists.
func TestEngine_ConcurrentAllocationsNeverOversell(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewMemory()
	seedPart(t, store, "p1", 10, 0, 0)
	mgr := inventory.NewJobPartManager(store, nil, testLogger())

	const workers = 20
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			_, err := mgr.CreateJobPart(ctx, inventory.CreateJobPartInput{
				JobID: "job-1", PartID: "p1", QuantityRequested: 1,
				AllocateFromStock: true,
			})
			results <- err
		}()
	}

	succeeded := 0
	for i := 0; i < workers; i++ {
		if err := <-results; err == nil {
			succeeded++
		} else if !errors.Is(err, inventory.ErrInsufficientStock) {
			// A racer that passed the precondition but lost the stock is
			// rejected by the ledger instead.
			assert.ErrorIs(t, err, inventory.ErrLedgerRejected)
		}
	}
	assert.Equal(t, 10, succeeded)

	stock, reserved, _ := counters(t, store, "p1")
	assert.Equal(t, 0, stock)
	assert.Equal(t, 10, reserved)
}
