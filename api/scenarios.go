/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	data for testing and demos. Each scenario creates catalog parts and
	optionally deliveries and job parts that demonstrate specific features.

AVAILABLE SCENARIOS:

	workshop-catalog:  Catalog of common service parts, no stock movement
	inbound-delivery:  An in-flight supplier delivery, partially received
	busy-job:          A job with allocated, waiting and authorised parts

HOW SCENARIOS WORK:
 1. Ensure catalog parts exist (idempotent on part number)
 2. Record deliveries through the delivery manager so counters and
    movements are real, not hand-set
 3. Attach job parts through the job part manager

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "busy-job"}

NOTE:

	Scenarios seed on top of existing data. Only use in development/demo
	environments.

SEE ALSO:
  - handlers.go: handler context
  - server.go: scenario routes
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/warp/parts-engine/inventory"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "workshop-catalog",
		Name:        "Workshop Catalog",
		Description: "Common service parts with no stock on hand",
	},
	{
		ID:          "inbound-delivery",
		Name:        "Inbound Delivery",
		Description: "A supplier delivery in flight, one line partially received",
	},
	{
		ID:          "busy-job",
		Name:        "Busy Job",
		Description: "A job with an allocation from stock, a part on back order and an authorised inspection item",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:          h.currentScenario,
		Name:        h.currentScenario,
		Description: "Currently loaded scenario",
	})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()

	var err error
	switch req.ScenarioID {
	case "workshop-catalog":
		err = h.loadWorkshopCatalogScenario(ctx)
	case "inbound-delivery":
		err = h.loadInboundDeliveryScenario(ctx)
	case "busy-job":
		err = h.loadBusyJobScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// ensurePart creates a catalog part unless one with the same part number
// already exists, making scenario loads idempotent.
func (h *Handler) ensurePart(ctx context.Context, in inventory.CreatePartInput) (inventory.Part, error) {
	part, err := h.Catalog.GetPartByNumber(ctx, in.PartNumber)
	if err == nil {
		return part, nil
	}
	return h.Catalog.CreatePart(ctx, in)
}

func money(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func (h *Handler) loadWorkshopCatalogScenario(ctx context.Context) (err error) {
	seeds := []inventory.CreatePartInput{
		{PartNumber: "OF-1042", Name: "Oil Filter", Category: "filters", Supplier: "EuroParts", Location: "A1-03", UnitCost: money("4.20"), UnitPrice: money("9.99")},
		{PartNumber: "BP-2200F", Name: "Front Brake Pads", Category: "brakes", Supplier: "EuroParts", Location: "B2-11", UnitCost: money("18.50"), UnitPrice: money("44.00")},
		{PartNumber: "BD-2201F", Name: "Front Brake Discs (pair)", Category: "brakes", Supplier: "EuroParts", Location: "B2-12", UnitCost: money("41.00"), UnitPrice: money("95.00")},
		{PartNumber: "WB-0090", Name: "Wiper Blade 600mm", Category: "exterior", Supplier: "NordAuto", Location: "C1-02", UnitCost: money("3.10"), UnitPrice: money("12.50")},
		{PartNumber: "BAT-063", Name: "Battery 063 12V", Category: "electrical", Supplier: "NordAuto", Location: "D4-01", UnitCost: money("52.00"), UnitPrice: money("110.00")},
		{PartNumber: "CAB-7731", Name: "Cabin Filter", Category: "filters", Supplier: "EuroParts", Location: "A1-07", UnitCost: money("5.80"), UnitPrice: money("16.00")},
	}
	for _, seed := range seeds {
		if _, err = h.ensurePart(ctx, seed); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadInboundDeliveryScenario(ctx context.Context) error {
	if err := h.loadWorkshopCatalogScenario(ctx); err != nil {
		return err
	}

	pads, err := h.Catalog.GetPartByNumber(ctx, "BP-2200F")
	if err != nil {
		return err
	}
	discs, err := h.Catalog.GetPartByNumber(ctx, "BD-2201F")
	if err != nil {
		return err
	}

	// One line fully outstanding, one partially received.
	_, err = h.Deliveries.CreateDelivery(ctx, inventory.CreateDeliveryInput{
		Supplier:       "EuroParts",
		OrderReference: "EP-88112",
		Status:         inventory.DeliveryInTransit,
		Notes:          "Weekly brakes replenishment",
		Items: []inventory.DeliveryItemInput{
			{PartID: pads.ID, QuantityOrdered: 10},
			{PartID: discs.ID, QuantityOrdered: 6, QuantityReceived: 2},
		},
		PerformedBy: "demo",
	})
	return err
}

func (h *Handler) loadBusyJobScenario(ctx context.Context) error {
	if err := h.loadWorkshopCatalogScenario(ctx); err != nil {
		return err
	}

	filter, err := h.Catalog.GetPartByNumber(ctx, "OF-1042")
	if err != nil {
		return err
	}
	battery, err := h.Catalog.GetPartByNumber(ctx, "BAT-063")
	if err != nil {
		return err
	}
	blades, err := h.Catalog.GetPartByNumber(ctx, "WB-0090")
	if err != nil {
		return err
	}

	// Put some stock on the shelf first so the allocation is honest.
	_, err = h.Deliveries.CreateDelivery(ctx, inventory.CreateDeliveryInput{
		Supplier:       "EuroParts",
		OrderReference: "EP-88090",
		Items: []inventory.DeliveryItemInput{
			{PartID: filter.ID, QuantityOrdered: 12, QuantityReceived: 12},
			{PartID: blades.ID, QuantityOrdered: 8, QuantityReceived: 8},
		},
		PerformedBy: "demo",
	})
	if err != nil {
		return err
	}

	const jobID = "JOB-5512"

	// Allocated from stock.
	if _, err := h.JobParts.CreateJobPart(ctx, inventory.CreateJobPartInput{
		JobID:             jobID,
		PartID:            filter.ID,
		QuantityRequested: 1,
		AllocateFromStock: true,
		PerformedBy:       "demo",
	}); err != nil {
		return err
	}

	// Waiting for stock: battery is not on the shelf.
	if _, err := h.JobParts.CreateJobPart(ctx, inventory.CreateJobPartInput{
		JobID:             jobID,
		PartID:            battery.ID,
		QuantityRequested: 1,
		PerformedBy:       "demo",
	}); err != nil {
		return err
	}

	// Inspection-sourced item, then authorise it.
	vhcRow, err := h.JobParts.CreateJobPart(ctx, inventory.CreateJobPartInput{
		JobID:             jobID,
		PartID:            blades.ID,
		QuantityRequested: 2,
		Origin:            inventory.OriginVHC,
		VHCItemID:         "vhc-3301",
		PerformedBy:       "demo",
	})
	if err != nil {
		return err
	}
	authorised := true
	_, err = h.JobParts.UpdateJobPart(ctx, vhcRow.ID, inventory.UpdateJobPartInput{
		Authorised:  &authorised,
		PerformedBy: "demo",
	})
	return err
}
