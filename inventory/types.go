/*
Package inventory implements the parts inventory reservation and delivery
reconciliation engine.

PURPOSE:
  Tracks how many units of a part exist, are promised by suppliers, and are
  reserved for jobs, and moves units between those states as deliveries
  arrive and technicians consume stock. Every counter mutation is funneled
  through a single ledger primitive that enforces non-negativity, and every
  multi-step operation compensates (reverse-order inverse adjustments) when
  a later step fails.

KEY CONCEPTS IN THIS FILE (types.go):
  - Part: a catalog SKU with three quantity counters (stock, reserved, on order)
  - Delivery / DeliveryItem: a supplier shipment and its part lines
  - JobPart: a request to consume a part against a job, optionally backed by
    an immediate stock reservation
  - StockMovement: an immutable audit row for every physical stock change
  - Adjustment: signed deltas for the three counters

DESIGN PRINCIPLES:
  1. Single choke point: only the QuantityLedger writes the three counters
  2. Non-negativity: no counter is ever observed below zero
  3. Precision: decimal.Decimal for money, plain ints for unit counts
  4. Auditability: a StockMovement per physical stock change, append-only

SEE ALSO:
  - ledger.go: the counter mutation primitive
  - delivery.go: delivery manager (on-order and receipt accounting)
  - jobpart.go: job allocation manager (reservation accounting)
*/
package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type PartID string
type DeliveryID string
type DeliveryItemID string
type JobID string
type JobPartID string
type MovementID string

// =============================================================================
// ADJUSTMENT - Signed deltas for a part's three counters
// =============================================================================

// Adjustment is the unit of work of the quantity ledger. Missing deltas are
// simply zero. Adjustments are negatable so every applied adjustment can be
// compensated exactly.
type Adjustment struct {
	Stock    int
	Reserved int
	OnOrder  int
}

func (a Adjustment) IsZero() bool {
	return a.Stock == 0 && a.Reserved == 0 && a.OnOrder == 0
}

// Negate returns the exact inverse adjustment, used by the compensation path.
func (a Adjustment) Negate() Adjustment {
	return Adjustment{Stock: -a.Stock, Reserved: -a.Reserved, OnOrder: -a.OnOrder}
}

// =============================================================================
// PART - Catalog entry with the three protected counters
// =============================================================================

// Part is a catalog SKU. The three Qty counters are the only shared mutable
// state in the engine and may only be written through the QuantityLedger.
// Parts are never deleted by this engine, only deactivated.
type Part struct {
	ID          PartID
	PartNumber  string // unique, case-insensitive
	Name        string
	Category    string
	Supplier    string
	Location    string
	UnitCost    decimal.Decimal
	UnitPrice   decimal.Decimal
	QtyInStock  int
	QtyReserved int
	QtyOnOrder  int
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// =============================================================================
// DELIVERY - One supplier order/shipment, exclusively owning its items
// =============================================================================

type DeliveryStatus string

const (
	DeliveryOrdering          DeliveryStatus = "ordering"
	DeliveryInTransit         DeliveryStatus = "in_transit"
	DeliveryPartiallyReceived DeliveryStatus = "partially_received"
	DeliveryReceived          DeliveryStatus = "received"
	DeliveryCancelled         DeliveryStatus = "cancelled"
)

type Delivery struct {
	ID             DeliveryID
	Supplier       string
	OrderReference string
	Status         DeliveryStatus
	ExpectedDate   *time.Time
	ReceivedDate   *time.Time
	Notes          string
	Items          []DeliveryItem
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type DeliveryItemStatus string

const (
	ItemOrdered  DeliveryItemStatus = "ordered"
	ItemPartial  DeliveryItemStatus = "partial"
	ItemReceived DeliveryItemStatus = "received"
)

// DeliveryItem is one part line within a delivery. Ordered and received
// quantities are tracked independently so qty_on_order only ever reflects
// what is still outstanding.
type DeliveryItem struct {
	ID               DeliveryItemID
	DeliveryID       DeliveryID
	PartID           PartID
	JobID            JobID // optional: ordered specifically for a job
	QuantityOrdered  int
	QuantityReceived int
	UnitCost         decimal.Decimal
	UnitPrice        decimal.Decimal
	Status           DeliveryItemStatus
	Notes            string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Outstanding returns the units still on order for this item.
func (i DeliveryItem) Outstanding() int {
	if out := i.QuantityOrdered - i.QuantityReceived; out > 0 {
		return out
	}
	return 0
}

// DerivedStatus computes the item status from its quantities.
func (i DeliveryItem) DerivedStatus() DeliveryItemStatus {
	switch {
	case i.QuantityOrdered > 0 && i.QuantityReceived >= i.QuantityOrdered:
		return ItemReceived
	case i.QuantityReceived > 0:
		return ItemPartial
	default:
		return ItemOrdered
	}
}

// DeriveDeliveryStatus recomputes a delivery header status from its items.
// Cancelled headers are left alone; ordering/in_transit are caller-set and
// only upgraded once units start arriving.
func DeriveDeliveryStatus(current DeliveryStatus, items []DeliveryItem) DeliveryStatus {
	if current == DeliveryCancelled {
		return current
	}
	if len(items) == 0 {
		return current
	}
	received := 0
	any := false
	for _, it := range items {
		if it.QuantityReceived > 0 {
			any = true
		}
		if it.DerivedStatus() == ItemReceived {
			received++
		}
	}
	switch {
	case received == len(items):
		return DeliveryReceived
	case any:
		return DeliveryPartiallyReceived
	default:
		return current
	}
}

// =============================================================================
// JOB PART - Part request/allocation tied to a job
// =============================================================================

type JobPartStatus string

const (
	JobPartPending       JobPartStatus = "pending"
	JobPartAwaitingStock JobPartStatus = "awaiting_stock"
	JobPartAllocated     JobPartStatus = "allocated"
	JobPartPicked        JobPartStatus = "picked"
	JobPartFitted        JobPartStatus = "fitted"
	JobPartCancelled     JobPartStatus = "cancelled"
)

// jobPartTransitions is the allowed status state machine. cancelled is
// reachable from any non-terminal state; picked and fitted are workflow
// states with no quantity effect.
var jobPartTransitions = map[JobPartStatus][]JobPartStatus{
	JobPartPending:       {JobPartAwaitingStock, JobPartAllocated, JobPartCancelled},
	JobPartAwaitingStock: {JobPartAllocated, JobPartCancelled},
	JobPartAllocated:     {JobPartPicked, JobPartCancelled},
	JobPartPicked:        {JobPartFitted, JobPartCancelled},
	JobPartFitted:        {},
	JobPartCancelled:     {},
}

// CanTransition reports whether a job part may move from one status to another.
func CanTransition(from, to JobPartStatus) bool {
	if from == to {
		return true
	}
	for _, next := range jobPartTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type JobPartOrigin string

const (
	OriginManual JobPartOrigin = "manual"
	OriginVHC    JobPartOrigin = "vhc"
)

// AllocationProvenance records which quantity pool an allocation was drawn
// from, so deletion credits the right pool back instead of guessing.
type AllocationProvenance string

const (
	ProvenanceNone      AllocationProvenance = "none"
	ProvenanceFromStock AllocationProvenance = "from_stock"
)

type JobPart struct {
	ID                JobPartID
	JobID             JobID
	PartID            PartID
	QuantityRequested int
	QuantityAllocated int
	QuantityFitted    int
	Status            JobPartStatus
	Authorised        bool
	Origin            JobPartOrigin
	VHCItemID         string // set when Origin is vhc
	Provenance        AllocationProvenance
	Location          string
	UnitCost          decimal.Decimal
	UnitPrice         decimal.Decimal
	Notes             string
	RequestedBy       string
	AllocatedBy       string
	PickedBy          string
	FittedBy          string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// =============================================================================
// STOCK MOVEMENT - Append-only audit row
// =============================================================================

type MovementType string

const (
	MovementDelivery   MovementType = "delivery"
	MovementAllocation MovementType = "allocation"
	MovementCorrection MovementType = "correction"
)

// StockMovement records one physical stock change. Written once per
// successful stock-affecting ledger call, never updated or deleted.
type StockMovement struct {
	ID             MovementID
	PartID         PartID
	DeliveryItemID DeliveryItemID // optional
	JobPartID      JobPartID      // optional
	Type           MovementType
	Quantity       int // signed
	UnitCost       decimal.Decimal
	UnitPrice      decimal.Decimal
	PerformedBy    string
	Reference      string
	Notes          string
	CreatedAt      time.Time
}

// =============================================================================
// AUDIT RUN - Counter drift audit record
// =============================================================================

// DriftFinding reports one counter whose stored value disagrees with the
// value recomputed from delivery items and job parts.
type DriftFinding struct {
	PartID   PartID `json:"part_id"`
	Counter  string `json:"counter"` // "qty_on_order" or "qty_reserved"
	Stored   int    `json:"stored"`
	Expected int    `json:"expected"`
}

// AuditRun records one pass of the background drift auditor. Read-only with
// respect to counters: the auditor reports drift, it never corrects it.
type AuditRun struct {
	ID           string
	StartedAt    time.Time
	CompletedAt  time.Time
	PartsChecked int
	DriftFound   int
	Findings     []DriftFinding
}
