/*
store.go - Persistence interfaces for parts, deliveries, job parts and movements

PURPOSE:
  Defines the interface between the engine and the backing store. The engine
  does not mandate a storage technology: anything that can do row-level
  insert/update/delete/select with one conditional counter update can
  implement these interfaces.

KEY INTERFACES:
  PartStore:     Catalog rows plus the conditional counter update
  DeliveryStore: Delivery headers and their items
  JobPartStore:  Job-linked part requests
  MovementStore: Append-only stock movement log
  Store:         All of the above
  TxStore:       Store with a real database transaction

COUNTER CONTRACT:
  AdjustQuantities is the ONLY write path for qty_in_stock, qty_reserved and
  qty_on_order. It must apply all three deltas atomically for one part and
  reject the whole adjustment if any resulting counter would be negative
  (ErrLedgerRejected / *LedgerError). Descriptive part updates must not
  touch the counters.

MOVEMENT CONTRACT:
  AppendMovement is the only write on movements. There is no update and no
  delete; the log is the audit trail for every physical stock change.

TRANSACTIONS:
  Stores that can wrap a whole manager operation in a transaction implement
  TxStore. The managers prefer WithTx when available, which makes the manual
  compensation path redundant there; for plain Stores the compensation path
  is mandatory.

IMPLEMENTATIONS:
  - store/sqlite: production shape, conditional UPDATE ledger
  - inventory/store: in-memory, for tests and dev
*/
package inventory

import "context"

// =============================================================================
// PART STORE
// =============================================================================

type PartStore interface {
	// CreatePart inserts a catalog row. Part numbers are unique
	// case-insensitively (ErrDuplicatePartNumber).
	CreatePart(ctx context.Context, p Part) error

	// GetPart returns a part or ErrPartNotFound.
	GetPart(ctx context.Context, id PartID) (Part, error)

	// GetPartByNumber looks a part up by its number, case-insensitively.
	GetPartByNumber(ctx context.Context, number string) (Part, error)

	ListParts(ctx context.Context) ([]Part, error)

	// UpdatePartDetails persists descriptive fields (name, pricing, location,
	// active flag). It MUST NOT write the three quantity counters.
	UpdatePartDetails(ctx context.Context, p Part) error

	// AdjustQuantities atomically applies the three deltas to one part's
	// counters, rejecting the whole adjustment if any resulting counter
	// would be negative. Returns the updated part.
	AdjustQuantities(ctx context.Context, id PartID, adj Adjustment) (Part, error)
}

// =============================================================================
// DELIVERY STORE
// =============================================================================

type DeliveryStore interface {
	// CreateDelivery inserts a header row only; items are inserted
	// individually so the managers control ordering and unwind.
	CreateDelivery(ctx context.Context, d Delivery) error
	UpdateDelivery(ctx context.Context, d Delivery) error
	DeleteDelivery(ctx context.Context, id DeliveryID) error

	// GetDelivery returns a header hydrated with its items, or ErrNotFound.
	GetDelivery(ctx context.Context, id DeliveryID) (Delivery, error)
	ListDeliveries(ctx context.Context) ([]Delivery, error)

	CreateDeliveryItem(ctx context.Context, item DeliveryItem) error
	UpdateDeliveryItem(ctx context.Context, item DeliveryItem) error
	DeleteDeliveryItem(ctx context.Context, id DeliveryItemID) error
	GetDeliveryItem(ctx context.Context, id DeliveryItemID) (DeliveryItem, error)
	ListDeliveryItems(ctx context.Context, deliveryID DeliveryID) ([]DeliveryItem, error)

	// ListDeliveryItemsByPart supports the drift auditor.
	ListDeliveryItemsByPart(ctx context.Context, partID PartID) ([]DeliveryItem, error)
}

// =============================================================================
// JOB PART STORE
// =============================================================================

type JobPartStore interface {
	CreateJobPart(ctx context.Context, jp JobPart) error
	UpdateJobPart(ctx context.Context, jp JobPart) error
	DeleteJobPart(ctx context.Context, id JobPartID) error
	GetJobPart(ctx context.Context, id JobPartID) (JobPart, error)
	ListJobParts(ctx context.Context, jobID JobID) ([]JobPart, error)

	// ListJobPartsByPart supports the drift auditor.
	ListJobPartsByPart(ctx context.Context, partID PartID) ([]JobPart, error)
}

// =============================================================================
// MOVEMENT STORE - Append-only
// =============================================================================

type MovementStore interface {
	// AppendMovement is the ONLY write operation. No update, no delete.
	AppendMovement(ctx context.Context, m StockMovement) error

	// ListMovements returns movements for a part, oldest first.
	ListMovements(ctx context.Context, partID PartID) ([]StockMovement, error)
}

// =============================================================================
// COMPOSED INTERFACES
// =============================================================================

// Store is the full persistence surface the managers need.
type Store interface {
	PartStore
	DeliveryStore
	JobPartStore
	MovementStore
}

// TxStore wraps Store with transaction support. If fn returns an error the
// transaction is rolled back, undoing every forward step of the operation.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}

// AuditStore persists drift audit runs. Implemented alongside Store; kept
// separate because only the auditor needs it.
type AuditStore interface {
	AppendAuditRun(ctx context.Context, run AuditRun) error
	ListAuditRuns(ctx context.Context, limit int) ([]AuditRun, error)
}
