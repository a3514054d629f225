/*
jobpart.go - Job allocation manager: reservations against jobs

PURPOSE:
  Creates, updates and deletes job-linked part requests, driving the
  quantity ledger to move units between "in stock" and "reserved". Picked
  and fitted are workflow states with no quantity effect in this engine;
  consumption accounting lives outside this scope.

ACCOUNTING RULES:
  - allocate n from stock:          stock -n, reserved +n (+ movement)
  - authorised flips false->true:   reserved +quantity_requested (no movement,
                                    nothing physically moved)
  - authorised flips true->false:   reserved -quantity_requested
  - cancel / delete an allocation:  the reversal is computed from the row's
                                    own provenance and quantities, never
                                    assumed: a from_stock allocation credits
                                    stock back, an authorised reservation
                                    credits reserved only.

ALLOCATION PRECONDITION:
  allocate-from-stock is all or nothing: if qty_in_stock < quantity_requested
  the whole create is rejected with InsufficientStock and no row is created.
  The ledger still guards the same invariant underneath, so a concurrent
  racer that wins the stock is surfaced as a ledger rejection, not a
  negative counter.

VHC SYNC:
  Any change to the authorization or allocation of a vhc-origin row enqueues
  a best-effort sync (notify.go) AFTER the inventory change committed. Sync
  failure never rolls back or re-fails the operation.

SEE ALSO:
  - delivery.go: the supply side of the engine
  - notify.go: the sync dispatcher
*/
package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// =============================================================================
// INPUTS
// =============================================================================

type CreateJobPartInput struct {
	JobID             JobID
	PartID            PartID
	QuantityRequested int
	AllocateFromStock bool
	Origin            JobPartOrigin // defaults to manual
	VHCItemID         string
	Location          *string
	UnitCost          *decimal.Decimal
	UnitPrice         *decimal.Decimal
	Notes             string
	PerformedBy       string
}

// UpdateJobPartInput carries partial edits; nil fields keep the stored value.
type UpdateJobPartInput struct {
	Status            *JobPartStatus
	Authorised        *bool
	QuantityRequested *int
	Location          *string
	Notes             *string
	PerformedBy       string
}

func (in CreateJobPartInput) validate() error {
	if in.JobID == "" {
		return fmt.Errorf("%w: job_id is required", ErrValidation)
	}
	if in.PartID == "" {
		return fmt.Errorf("%w: part_id is required", ErrValidation)
	}
	if in.QuantityRequested <= 0 {
		return fmt.Errorf("%w: quantity_requested must be positive", ErrValidation)
	}
	if in.Origin == OriginVHC && in.VHCItemID == "" {
		return fmt.Errorf("%w: vhc_item_id is required for vhc-origin job parts", ErrValidation)
	}
	return nil
}

// =============================================================================
// JOB PART MANAGER
// =============================================================================

type JobPartManager struct {
	store      Store
	dispatcher *SyncDispatcher // nil when no VHC system is wired
	log        zerolog.Logger
}

func NewJobPartManager(store Store, dispatcher *SyncDispatcher, log zerolog.Logger) *JobPartManager {
	return &JobPartManager{
		store:      store,
		dispatcher: dispatcher,
		log:        log.With().Str("component", "jobpart").Logger(),
	}
}

// CreateJobPart persists a job part, optionally allocating stock immediately.
func (m *JobPartManager) CreateJobPart(ctx context.Context, in CreateJobPartInput) (JobPart, error) {
	if err := in.validate(); err != nil {
		return JobPart{}, err
	}

	part, err := m.store.GetPart(ctx, in.PartID)
	if err != nil {
		return JobPart{}, err
	}

	// Hard precondition: no partial allocation, no side effect on failure.
	if in.AllocateFromStock && part.QtyInStock < in.QuantityRequested {
		return JobPart{}, &InsufficientStockError{
			PartID:    part.ID,
			Available: part.QtyInStock,
			Requested: in.QuantityRequested,
		}
	}

	now := time.Now().UTC()
	origin := in.Origin
	if origin == "" {
		origin = OriginManual
	}
	jp := JobPart{
		ID:                JobPartID(uuid.NewString()),
		JobID:             in.JobID,
		PartID:            in.PartID,
		QuantityRequested: in.QuantityRequested,
		Status:            JobPartAwaitingStock,
		Origin:            origin,
		VHCItemID:         in.VHCItemID,
		Provenance:        ProvenanceNone,
		Location:          part.Location,
		UnitCost:          part.UnitCost,
		UnitPrice:         part.UnitPrice,
		Notes:             in.Notes,
		RequestedBy:       in.PerformedBy,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if in.Location != nil && *in.Location != "" {
		jp.Location = *in.Location
	}
	if in.UnitCost != nil && !in.UnitCost.IsNegative() {
		jp.UnitCost = *in.UnitCost
	}
	if in.UnitPrice != nil && !in.UnitPrice.IsNegative() {
		jp.UnitPrice = *in.UnitPrice
	}
	if in.AllocateFromStock {
		jp.Status = JobPartAllocated
		jp.QuantityAllocated = in.QuantityRequested
		jp.Provenance = ProvenanceFromStock
		jp.AllocatedBy = in.PerformedBy
	}

	err = execute(ctx, m.store, m.log, func(s Store, comp *compensator) error {
		ledger := NewLedger(s, m.log)

		if err := s.CreateJobPart(ctx, jp); err != nil {
			return fmt.Errorf("%w: create job part: %v", ErrPersistence, err)
		}
		comp.push("job part "+string(jp.ID), func(ctx context.Context) error {
			return s.DeleteJobPart(ctx, jp.ID)
		})

		if in.AllocateFromStock {
			adj := Adjustment{Stock: -in.QuantityRequested, Reserved: in.QuantityRequested}
			if _, err := ledger.AdjustPartQuantities(ctx, jp.PartID, adj); err != nil {
				return comp.unwind(ctx, err)
			}
			comp.adjusted(ledger, jp.PartID, adj)

			if err := m.logAllocation(ctx, s, comp, jp, -in.QuantityRequested, in.PerformedBy); err != nil {
				return comp.unwind(ctx, err)
			}
		}
		return nil
	})
	if err != nil {
		return JobPart{}, err
	}

	m.log.Info().
		Str("job_part_id", string(jp.ID)).
		Str("job_id", string(jp.JobID)).
		Str("part_id", string(jp.PartID)).
		Int("requested", jp.QuantityRequested).
		Bool("allocated", in.AllocateFromStock).
		Msg("job part created")

	if in.AllocateFromStock {
		m.emitSync(jp)
	}
	return jp, nil
}

// UpdateJobPart applies status transitions, authorisation flips and quantity
// corrections. All resulting counter deltas are merged into a single ledger
// call; ledger success followed by a failed row update reverses the ledger
// call before failing.
func (m *JobPartManager) UpdateJobPart(ctx context.Context, id JobPartID, in UpdateJobPartInput) (JobPart, error) {
	prev, err := m.store.GetJobPart(ctx, id)
	if err != nil {
		return JobPart{}, err
	}

	next := prev
	adj := Adjustment{}
	stockTouched := 0
	syncNeeded := false

	// Quantity correction: the delta versus the stored value, applied to
	// whatever pools the row currently occupies.
	if in.QuantityRequested != nil {
		if *in.QuantityRequested <= 0 {
			return JobPart{}, fmt.Errorf("%w: quantity_requested must be positive", ErrValidation)
		}
		d := *in.QuantityRequested - prev.QuantityRequested
		if d != 0 {
			if prev.Provenance == ProvenanceFromStock && prev.QuantityAllocated > 0 {
				if d > 0 {
					part, err := m.store.GetPart(ctx, prev.PartID)
					if err != nil {
						return JobPart{}, err
					}
					if part.QtyInStock < d {
						return JobPart{}, &InsufficientStockError{PartID: prev.PartID, Available: part.QtyInStock, Requested: d}
					}
				}
				adj.Stock -= d
				adj.Reserved += d
				stockTouched -= d
				next.QuantityAllocated += d
				syncNeeded = true
			}
			if prev.Authorised {
				adj.Reserved += d
				syncNeeded = true
			}
			next.QuantityRequested = *in.QuantityRequested
		}
	}

	// Authorisation flip: a pure reservation change, nothing physically moved.
	if in.Authorised != nil && *in.Authorised != prev.Authorised {
		if *in.Authorised {
			adj.Reserved += next.QuantityRequested
		} else {
			adj.Reserved -= next.QuantityRequested
		}
		next.Authorised = *in.Authorised
		syncNeeded = true
	}

	// Status transition.
	if in.Status != nil && *in.Status != prev.Status {
		if !CanTransition(prev.Status, *in.Status) {
			return JobPart{}, fmt.Errorf("%w: %s -> %s", ErrInvalidStatus, prev.Status, *in.Status)
		}
		switch *in.Status {
		case JobPartAllocated:
			part, err := m.store.GetPart(ctx, prev.PartID)
			if err != nil {
				return JobPart{}, err
			}
			if part.QtyInStock < next.QuantityRequested {
				return JobPart{}, &InsufficientStockError{PartID: prev.PartID, Available: part.QtyInStock, Requested: next.QuantityRequested}
			}
			adj.Stock -= next.QuantityRequested
			adj.Reserved += next.QuantityRequested
			stockTouched -= next.QuantityRequested
			next.QuantityAllocated = next.QuantityRequested
			next.Provenance = ProvenanceFromStock
			next.AllocatedBy = in.PerformedBy
			syncNeeded = true

		case JobPartCancelled:
			release := m.releaseAdjustment(next)
			adj.Stock += release.Stock
			adj.Reserved += release.Reserved
			stockTouched += release.Stock
			next.QuantityAllocated = 0
			next.Provenance = ProvenanceNone
			next.Authorised = false
			syncNeeded = true

		case JobPartPicked:
			next.PickedBy = in.PerformedBy

		case JobPartFitted:
			next.FittedBy = in.PerformedBy
			next.QuantityFitted = next.QuantityAllocated
		}
		next.Status = *in.Status
	}

	if in.Location != nil {
		next.Location = *in.Location
	}
	if in.Notes != nil {
		next.Notes = *in.Notes
	}
	next.UpdatedAt = time.Now().UTC()

	err = execute(ctx, m.store, m.log, func(s Store, comp *compensator) error {
		ledger := NewLedger(s, m.log)

		if !adj.IsZero() {
			if _, err := ledger.AdjustPartQuantities(ctx, next.PartID, adj); err != nil {
				return err
			}
			comp.adjusted(ledger, next.PartID, adj)
		}

		if err := s.UpdateJobPart(ctx, next); err != nil {
			return comp.unwind(ctx, fmt.Errorf("%w: update job part: %v", ErrPersistence, err))
		}
		comp.push("job part update "+string(next.ID), func(ctx context.Context) error {
			return s.UpdateJobPart(ctx, prev)
		})

		if stockTouched != 0 {
			if err := m.logAllocation(ctx, s, comp, next, stockTouched, in.PerformedBy); err != nil {
				return comp.unwind(ctx, err)
			}
		}
		return nil
	})
	if err != nil {
		return JobPart{}, err
	}

	if syncNeeded {
		m.emitSync(next)
	}
	return next, nil
}

// DeleteJobPart reverses whatever the row currently holds - allocation back
// to stock, authorised reservation released - then deletes the row. A
// rejected reversal aborts the deletion.
func (m *JobPartManager) DeleteJobPart(ctx context.Context, id JobPartID, performedBy string) error {
	jp, err := m.store.GetJobPart(ctx, id)
	if err != nil {
		return err
	}

	adj := m.releaseAdjustment(jp)
	err = execute(ctx, m.store, m.log, func(s Store, comp *compensator) error {
		ledger := NewLedger(s, m.log)

		if !adj.IsZero() {
			if _, err := ledger.AdjustPartQuantities(ctx, jp.PartID, adj); err != nil {
				return err
			}
			comp.adjusted(ledger, jp.PartID, adj)

			if adj.Stock != 0 {
				if err := m.logAllocation(ctx, s, comp, jp, adj.Stock, performedBy); err != nil {
					return comp.unwind(ctx, err)
				}
			}
		}

		if err := s.DeleteJobPart(ctx, jp.ID); err != nil {
			return comp.unwind(ctx, fmt.Errorf("%w: delete job part: %v", ErrPersistence, err))
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.log.Info().
		Str("job_part_id", string(jp.ID)).
		Str("part_id", string(jp.PartID)).
		Msg("job part deleted")
	m.emitSync(jp)
	return nil
}

// GetJobPart returns one job part.
func (m *JobPartManager) GetJobPart(ctx context.Context, id JobPartID) (JobPart, error) {
	return m.store.GetJobPart(ctx, id)
}

// ListJobParts returns all part requests for a job.
func (m *JobPartManager) ListJobParts(ctx context.Context, jobID JobID) ([]JobPart, error) {
	return m.store.ListJobParts(ctx, jobID)
}

// =============================================================================
// INTERNALS
// =============================================================================

// releaseAdjustment computes the inverse of everything the row currently
// holds, from the row's own fields.
func (m *JobPartManager) releaseAdjustment(jp JobPart) Adjustment {
	adj := Adjustment{}
	if jp.Provenance == ProvenanceFromStock && jp.QuantityAllocated > 0 {
		adj.Stock += jp.QuantityAllocated
		adj.Reserved -= jp.QuantityAllocated
	}
	if jp.Authorised {
		adj.Reserved -= jp.QuantityRequested
	}
	return adj
}

func (m *JobPartManager) logAllocation(ctx context.Context, s Store, comp *compensator, jp JobPart, quantity int, performedBy string) error {
	if performedBy == "" {
		performedBy = "system"
	}
	mv := StockMovement{
		ID:          MovementID(uuid.NewString()),
		PartID:      jp.PartID,
		JobPartID:   jp.ID,
		Type:        MovementAllocation,
		Quantity:    quantity,
		UnitCost:    jp.UnitCost,
		UnitPrice:   jp.UnitPrice,
		PerformedBy: performedBy,
		Reference:   string(jp.JobID),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.AppendMovement(ctx, mv); err != nil {
		return fmt.Errorf("%w: append stock movement: %v", ErrPersistence, err)
	}
	comp.push("stock movement "+string(mv.ID), func(ctx context.Context) error {
		inverse := mv
		inverse.ID = MovementID(uuid.NewString())
		inverse.Type = MovementCorrection
		inverse.Quantity = -mv.Quantity
		inverse.Notes = "compensation for " + string(mv.ID)
		inverse.CreatedAt = time.Now().UTC()
		return s.AppendMovement(ctx, inverse)
	})
	return nil
}

// emitSync enqueues a best-effort VHC authorisation sync for vhc-origin rows.
func (m *JobPartManager) emitSync(jp JobPart) {
	if m.dispatcher == nil || jp.Origin != OriginVHC || jp.VHCItemID == "" {
		return
	}
	m.dispatcher.Enqueue(AuthorisationSync{JobID: jp.JobID, VHCItemID: jp.VHCItemID})
}
