/*
delivery.go - Delivery manager: supplier orders, receipts, and their unwind

PURPOSE:
  Creates, amends and deletes supplier deliveries and their line items,
  driving the quantity ledger so qty_on_order only ever reflects what is
  still outstanding and qty_in_stock reflects what has physically arrived.

ACCOUNTING RULES:
  Ordered and received quantities are tracked independently:
  - ordering n units:        on_order +n
  - receiving r units:       stock +r, on_order -min(r, ordered)
  - editing an item:         only the DELTA versus the stored values is
                             applied, never the absolute value twice
  - deleting an item:        stock -received, on_order -(ordered-received)
  Every physical stock change appends one StockMovement.

FAILURE SEMANTICS:
  Each operation applies its steps in a strict order and compensates in
  reverse order when a later step fails (see compensate.go). On a plain
  Store the unwind is explicit; on a TxStore the whole operation runs in one
  database transaction and rollback does the reversal.

VISIBLE INTERMEDIATE STATES:
  A multi-item create issues several ledger calls. Concurrent readers of a
  part may observe the sequence mid-flight (on-order incremented, stock not
  yet). This is accepted: the non-negativity invariant holds at every
  intermediate point, only the cross-counter view is transiently stale.

SEE ALSO:
  - jobpart.go: the reservation side of the engine
  - ledger.go: the counter primitive every rule above routes through
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
// INPUTS - Canonical typed request per operation
// =============================================================================

// DeliveryItemInput is one part line in a create or add request. Nil cost or
// price means "use the part's catalog default".
type DeliveryItemInput struct {
	PartID           PartID
	JobID            JobID
	QuantityOrdered  int
	QuantityReceived int
	UnitCost         *decimal.Decimal
	UnitPrice        *decimal.Decimal
	Notes            string
}

type CreateDeliveryInput struct {
	Supplier       string
	OrderReference string
	Status         DeliveryStatus // defaults to ordering
	ExpectedDate   *time.Time
	Notes          string
	Items          []DeliveryItemInput
	PerformedBy    string
}

// UpdateDeliveryItemInput carries partial edits; nil fields keep the stored
// value.
type UpdateDeliveryItemInput struct {
	QuantityOrdered  *int
	QuantityReceived *int
	UnitCost         *decimal.Decimal
	UnitPrice        *decimal.Decimal
	Notes            *string
	PerformedBy      string
}

func (in CreateDeliveryInput) validate() error {
	if in.Supplier == "" {
		return fmt.Errorf("%w: supplier is required", ErrValidation)
	}
	for i, item := range in.Items {
		if item.PartID == "" {
			return fmt.Errorf("%w: items[%d]: part_id is required", ErrValidation, i)
		}
		if item.QuantityOrdered < 0 || item.QuantityReceived < 0 {
			return fmt.Errorf("%w: items[%d]: quantities must not be negative", ErrValidation, i)
		}
	}
	return nil
}

// =============================================================================
// DELIVERY MANAGER
// =============================================================================

type DeliveryManager struct {
	store Store
	log   zerolog.Logger
}

func NewDeliveryManager(store Store, log zerolog.Logger) *DeliveryManager {
	return &DeliveryManager{store: store, log: log.With().Str("component", "delivery").Logger()}
}

// execute runs fn against the store, inside a database transaction when the
// store supports one. Under a real transaction the compensator is disabled:
// rollback undoes every forward step.
func execute(ctx context.Context, store Store, log zerolog.Logger, fn func(s Store, comp *compensator) error) error {
	if tx, ok := store.(TxStore); ok {
		return tx.WithTx(ctx, func(s Store) error { return fn(s, noopCompensator(log)) })
	}
	return fn(store, newCompensator(log))
}

// CreateDelivery persists a delivery header and its items, then applies the
// on-order and received ledger effects item by item, in array order. Any
// failure after the header committed unwinds everything this request did.
func (m *DeliveryManager) CreateDelivery(ctx context.Context, in CreateDeliveryInput) (Delivery, error) {
	if err := in.validate(); err != nil {
		return Delivery{}, err
	}

	// Resolve every referenced part before any side effect.
	parts := make(map[PartID]Part, len(in.Items))
	for _, item := range in.Items {
		if _, ok := parts[item.PartID]; ok {
			continue
		}
		p, err := m.store.GetPart(ctx, item.PartID)
		if err != nil {
			return Delivery{}, err
		}
		parts[item.PartID] = p
	}

	status := in.Status
	if status == "" {
		status = DeliveryOrdering
	}
	now := time.Now().UTC()
	delivery := Delivery{
		ID:             DeliveryID(uuid.NewString()),
		Supplier:       in.Supplier,
		OrderReference: in.OrderReference,
		Status:         status,
		ExpectedDate:   in.ExpectedDate,
		Notes:          in.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var out Delivery
	err := execute(ctx, m.store, m.log, func(s Store, comp *compensator) error {
		ledger := NewLedger(s, m.log)

		// Step 1: header. Failure here has no side effects to undo.
		if err := s.CreateDelivery(ctx, delivery); err != nil {
			return fmt.Errorf("%w: create delivery: %v", ErrPersistence, err)
		}
		comp.push("delivery "+string(delivery.ID), func(ctx context.Context) error {
			return s.DeleteDelivery(ctx, delivery.ID)
		})

		// Step 2: items, in array order.
		items := make([]DeliveryItem, 0, len(in.Items))
		for _, itemIn := range in.Items {
			item := newDeliveryItem(delivery.ID, itemIn, parts[itemIn.PartID], now)
			if err := s.CreateDeliveryItem(ctx, item); err != nil {
				return comp.unwind(ctx, fmt.Errorf("%w: create delivery item: %v", ErrPersistence, err))
			}
			comp.push("delivery item "+string(item.ID), func(ctx context.Context) error {
				return s.DeleteDeliveryItem(ctx, item.ID)
			})
			items = append(items, item)
		}

		// Step 3: on-order effects.
		for _, item := range items {
			if item.QuantityOrdered == 0 {
				continue
			}
			adj := Adjustment{OnOrder: item.QuantityOrdered}
			if _, err := ledger.AdjustPartQuantities(ctx, item.PartID, adj); err != nil {
				return comp.unwind(ctx, err)
			}
			comp.adjusted(ledger, item.PartID, adj)
		}

		// Step 4: receipt effects, with one movement per physical change.
		for _, item := range items {
			if item.QuantityReceived == 0 {
				continue
			}
			adj := Adjustment{
				Stock:   item.QuantityReceived,
				OnOrder: -minInt(item.QuantityReceived, item.QuantityOrdered),
			}
			if _, err := ledger.AdjustPartQuantities(ctx, item.PartID, adj); err != nil {
				return comp.unwind(ctx, err)
			}
			comp.adjusted(ledger, item.PartID, adj)

			if err := m.logMovement(ctx, s, comp, movementFor(item, MovementDelivery, item.QuantityReceived, delivery.OrderReference, in.PerformedBy)); err != nil {
				return comp.unwind(ctx, err)
			}
		}

		delivery.Status = DeriveDeliveryStatus(delivery.Status, items)
		if delivery.Status != status {
			if err := s.UpdateDelivery(ctx, delivery); err != nil {
				return comp.unwind(ctx, fmt.Errorf("%w: update delivery status: %v", ErrPersistence, err))
			}
		}

		hydrated, err := s.GetDelivery(ctx, delivery.ID)
		if err != nil {
			return comp.unwind(ctx, err)
		}
		out = hydrated
		return nil
	})
	if err != nil {
		return Delivery{}, err
	}

	m.log.Info().
		Str("delivery_id", string(out.ID)).
		Str("supplier", out.Supplier).
		Int("items", len(out.Items)).
		Msg("delivery created")
	return out, nil
}

// AddDeliveryItem runs the per-item create logic against an existing
// delivery; the unwind is limited to this item's own effects.
func (m *DeliveryManager) AddDeliveryItem(ctx context.Context, deliveryID DeliveryID, in DeliveryItemInput, performedBy string) (DeliveryItem, error) {
	if in.PartID == "" {
		return DeliveryItem{}, fmt.Errorf("%w: part_id is required", ErrValidation)
	}
	if in.QuantityOrdered < 0 || in.QuantityReceived < 0 {
		return DeliveryItem{}, fmt.Errorf("%w: quantities must not be negative", ErrValidation)
	}

	delivery, err := m.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		return DeliveryItem{}, err
	}
	part, err := m.store.GetPart(ctx, in.PartID)
	if err != nil {
		return DeliveryItem{}, err
	}

	item := newDeliveryItem(deliveryID, in, part, time.Now().UTC())
	err = execute(ctx, m.store, m.log, func(s Store, comp *compensator) error {
		ledger := NewLedger(s, m.log)

		if err := s.CreateDeliveryItem(ctx, item); err != nil {
			return fmt.Errorf("%w: create delivery item: %v", ErrPersistence, err)
		}
		comp.push("delivery item "+string(item.ID), func(ctx context.Context) error {
			return s.DeleteDeliveryItem(ctx, item.ID)
		})

		if item.QuantityOrdered > 0 {
			adj := Adjustment{OnOrder: item.QuantityOrdered}
			if _, err := ledger.AdjustPartQuantities(ctx, item.PartID, adj); err != nil {
				return comp.unwind(ctx, err)
			}
			comp.adjusted(ledger, item.PartID, adj)
		}

		if item.QuantityReceived > 0 {
			adj := Adjustment{
				Stock:   item.QuantityReceived,
				OnOrder: -minInt(item.QuantityReceived, item.QuantityOrdered),
			}
			if _, err := ledger.AdjustPartQuantities(ctx, item.PartID, adj); err != nil {
				return comp.unwind(ctx, err)
			}
			comp.adjusted(ledger, item.PartID, adj)

			if err := m.logMovement(ctx, s, comp, movementFor(item, MovementDelivery, item.QuantityReceived, delivery.OrderReference, performedBy)); err != nil {
				return comp.unwind(ctx, err)
			}
		}

		return m.refreshDeliveryStatus(ctx, s, comp, deliveryID)
	})
	if err != nil {
		return DeliveryItem{}, err
	}
	return item, nil
}

// UpdateDeliveryItem applies a quantity edit as the delta versus the stored
// values: on_order changes by orderDelta - receivedDelta, stock by
// receivedDelta. A no-op edit issues zero ledger calls and zero movements.
func (m *DeliveryManager) UpdateDeliveryItem(ctx context.Context, id DeliveryItemID, in UpdateDeliveryItemInput) (DeliveryItem, error) {
	prev, err := m.store.GetDeliveryItem(ctx, id)
	if err != nil {
		return DeliveryItem{}, err
	}

	next := prev
	if in.QuantityOrdered != nil {
		if *in.QuantityOrdered < 0 {
			return DeliveryItem{}, fmt.Errorf("%w: quantity_ordered must not be negative", ErrValidation)
		}
		next.QuantityOrdered = *in.QuantityOrdered
	}
	if in.QuantityReceived != nil {
		if *in.QuantityReceived < 0 {
			return DeliveryItem{}, fmt.Errorf("%w: quantity_received must not be negative", ErrValidation)
		}
		next.QuantityReceived = *in.QuantityReceived
	}
	if in.UnitCost != nil {
		next.UnitCost = *in.UnitCost
	}
	if in.UnitPrice != nil {
		next.UnitPrice = *in.UnitPrice
	}
	if in.Notes != nil {
		next.Notes = *in.Notes
	}

	orderDelta := next.QuantityOrdered - prev.QuantityOrdered
	receivedDelta := next.QuantityReceived - prev.QuantityReceived
	adj := Adjustment{
		Stock:   receivedDelta,
		OnOrder: orderDelta - receivedDelta,
	}

	next.Status = next.DerivedStatus()
	next.UpdatedAt = time.Now().UTC()

	var out DeliveryItem
	err = execute(ctx, m.store, m.log, func(s Store, comp *compensator) error {
		ledger := NewLedger(s, m.log)

		// Ledger first: a rejected adjustment leaves the row untouched.
		if !adj.IsZero() {
			if _, err := ledger.AdjustPartQuantities(ctx, next.PartID, adj); err != nil {
				return err
			}
			comp.adjusted(ledger, next.PartID, adj)
		}

		if err := s.UpdateDeliveryItem(ctx, next); err != nil {
			return comp.unwind(ctx, fmt.Errorf("%w: update delivery item: %v", ErrPersistence, err))
		}
		comp.push("delivery item update "+string(next.ID), func(ctx context.Context) error {
			return s.UpdateDeliveryItem(ctx, prev)
		})

		if receivedDelta != 0 {
			mvType := MovementDelivery
			if receivedDelta < 0 {
				mvType = MovementCorrection
			}
			if err := m.logMovement(ctx, s, comp, movementFor(next, mvType, receivedDelta, "", in.PerformedBy)); err != nil {
				return comp.unwind(ctx, err)
			}
		}

		if err := m.refreshDeliveryStatus(ctx, s, comp, next.DeliveryID); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return DeliveryItem{}, err
	}
	return out, nil
}

// DeleteDeliveryItem reverses the item's historical effect before deleting
// the row. A rejected reversal aborts the deletion.
func (m *DeliveryManager) DeleteDeliveryItem(ctx context.Context, id DeliveryItemID, performedBy string) error {
	item, err := m.store.GetDeliveryItem(ctx, id)
	if err != nil {
		return err
	}
	return execute(ctx, m.store, m.log, func(s Store, comp *compensator) error {
		if err := m.removeItem(ctx, s, comp, item, performedBy); err != nil {
			return err
		}
		return m.refreshDeliveryStatus(ctx, s, comp, item.DeliveryID)
	})
}

// DeleteDelivery reverses every item's stock effect, deletes the items, then
// deletes the header.
func (m *DeliveryManager) DeleteDelivery(ctx context.Context, id DeliveryID, performedBy string) error {
	delivery, err := m.store.GetDelivery(ctx, id)
	if err != nil {
		return err
	}
	err = execute(ctx, m.store, m.log, func(s Store, comp *compensator) error {
		for _, item := range delivery.Items {
			if err := m.removeItem(ctx, s, comp, item, performedBy); err != nil {
				return err
			}
		}
		if err := s.DeleteDelivery(ctx, id); err != nil {
			return comp.unwind(ctx, fmt.Errorf("%w: delete delivery: %v", ErrPersistence, err))
		}
		return nil
	})
	if err != nil {
		return err
	}
	m.log.Info().Str("delivery_id", string(id)).Msg("delivery deleted")
	return nil
}

// GetDelivery returns a hydrated delivery.
func (m *DeliveryManager) GetDelivery(ctx context.Context, id DeliveryID) (Delivery, error) {
	return m.store.GetDelivery(ctx, id)
}

// ListDeliveries returns all deliveries with their items.
func (m *DeliveryManager) ListDeliveries(ctx context.Context) ([]Delivery, error) {
	return m.store.ListDeliveries(ctx)
}

// =============================================================================
// INTERNALS
// =============================================================================

// removeItem reverses one item's net ledger effect and deletes its row.
func (m *DeliveryManager) removeItem(ctx context.Context, s Store, comp *compensator, item DeliveryItem, performedBy string) error {
	ledger := NewLedger(s, m.log)

	outstanding := item.Outstanding()
	stockReduction := item.QuantityReceived
	adj := Adjustment{Stock: -stockReduction, OnOrder: -outstanding}
	if !adj.IsZero() {
		if _, err := ledger.AdjustPartQuantities(ctx, item.PartID, adj); err != nil {
			// Abort without deleting; unwind covers any sibling removals
			// already applied by a delivery-wide delete.
			return comp.unwind(ctx, err)
		}
		comp.adjusted(ledger, item.PartID, adj)

		if stockReduction != 0 {
			if err := m.logMovement(ctx, s, comp, movementFor(item, MovementCorrection, -stockReduction, "", performedBy)); err != nil {
				return comp.unwind(ctx, err)
			}
		}
	}

	if err := s.DeleteDeliveryItem(ctx, item.ID); err != nil {
		return comp.unwind(ctx, fmt.Errorf("%w: delete delivery item: %v", ErrPersistence, err))
	}
	comp.push("delivery item delete "+string(item.ID), func(ctx context.Context) error {
		return s.CreateDeliveryItem(ctx, item)
	})
	return nil
}

// logMovement appends a movement row and registers no revert: movements are
// append-only, so a failed operation that already logged one is surfaced to
// the compensator as a failed step instead of being deleted.
func (m *DeliveryManager) logMovement(ctx context.Context, s Store, comp *compensator, mv StockMovement) error {
	if err := s.AppendMovement(ctx, mv); err != nil {
		return fmt.Errorf("%w: append stock movement: %v", ErrPersistence, err)
	}
	comp.push("stock movement "+string(mv.ID), func(ctx context.Context) error {
		// Correct the audit trail with an inverse correction row.
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

func (m *DeliveryManager) refreshDeliveryStatus(ctx context.Context, s Store, comp *compensator, id DeliveryID) error {
	delivery, err := s.GetDelivery(ctx, id)
	if err != nil {
		return comp.unwind(ctx, err)
	}
	derived := DeriveDeliveryStatus(delivery.Status, delivery.Items)
	if derived == delivery.Status {
		return nil
	}
	prev := delivery.Status
	delivery.Status = derived
	delivery.UpdatedAt = time.Now().UTC()
	if derived == DeliveryReceived && delivery.ReceivedDate == nil {
		now := delivery.UpdatedAt
		delivery.ReceivedDate = &now
	}
	if err := s.UpdateDelivery(ctx, delivery); err != nil {
		return comp.unwind(ctx, fmt.Errorf("%w: update delivery status: %v", ErrPersistence, err))
	}
	m.log.Debug().
		Str("delivery_id", string(id)).
		Str("from", string(prev)).
		Str("to", string(derived)).
		Msg("delivery status recomputed")
	return nil
}

func newDeliveryItem(deliveryID DeliveryID, in DeliveryItemInput, part Part, now time.Time) DeliveryItem {
	item := DeliveryItem{
		ID:               DeliveryItemID(uuid.NewString()),
		DeliveryID:       deliveryID,
		PartID:           in.PartID,
		JobID:            in.JobID,
		QuantityOrdered:  in.QuantityOrdered,
		QuantityReceived: in.QuantityReceived,
		UnitCost:         part.UnitCost,
		UnitPrice:        part.UnitPrice,
		Notes:            in.Notes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if in.UnitCost != nil {
		item.UnitCost = *in.UnitCost
	}
	if in.UnitPrice != nil {
		item.UnitPrice = *in.UnitPrice
	}
	item.Status = item.DerivedStatus()
	return item
}

func movementFor(item DeliveryItem, mvType MovementType, quantity int, reference, performedBy string) StockMovement {
	if performedBy == "" {
		performedBy = "system"
	}
	return StockMovement{
		ID:             MovementID(uuid.NewString()),
		PartID:         item.PartID,
		DeliveryItemID: item.ID,
		Type:           mvType,
		Quantity:       quantity,
		UnitCost:       item.UnitCost,
		UnitPrice:      item.UnitPrice,
		PerformedBy:    performedBy,
		Reference:      reference,
		CreatedAt:      time.Now().UTC(),
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
