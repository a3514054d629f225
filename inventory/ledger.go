/*
ledger.go - The atomic counter mutation primitive

PURPOSE:
  AdjustPartQuantities is the single choke point through which every other
  operation mutates a part's three counters. No caller may write
  qty_in_stock, qty_reserved or qty_on_order directly.

CRITICAL INVARIANTS:
  1. NON-NEGATIVITY: an adjustment that would drive any counter negative is
     rejected before being applied (ErrLedgerRejected).
  2. ATOMIC PER PART: all three deltas apply together or not at all.
  3. CONCURRENCY-SAFE: safe to call concurrently for the same part with no
     separate coordination layer; the store's conditional update carries the
     race-freedom (UPDATE ... WHERE qty + delta >= 0).

WHAT THE LEDGER DOES NOT DO:
  It does not log stock movements (the managers do, once per successful
  physical stock change) and it does not span multiple parts; an operation
  touching several parts issues several ledger calls and compensates on
  failure.

SEE ALSO:
  - store.go: PartStore.AdjustQuantities contract
  - compensate.go: reverse-order unwind of applied adjustments
*/
package inventory

import (
	"context"

	"github.com/rs/zerolog"
)

// =============================================================================
// LEDGER
// =============================================================================

// Ledger mutates a part's quantity counters by signed deltas.
type Ledger interface {
	// AdjustPartQuantities applies the deltas atomically and returns the
	// part's updated counters. A zero adjustment is a no-op read.
	AdjustPartQuantities(ctx context.Context, id PartID, adj Adjustment) (Part, error)
}

// QuantityLedger is the default Ledger over a PartStore.
type QuantityLedger struct {
	store PartStore
	log   zerolog.Logger
}

func NewLedger(store PartStore, log zerolog.Logger) *QuantityLedger {
	return &QuantityLedger{store: store, log: log}
}

func (l *QuantityLedger) AdjustPartQuantities(ctx context.Context, id PartID, adj Adjustment) (Part, error) {
	if adj.IsZero() {
		return l.store.GetPart(ctx, id)
	}

	part, err := l.store.AdjustQuantities(ctx, id, adj)
	if err != nil {
		l.log.Warn().
			Str("part_id", string(id)).
			Int("stock_delta", adj.Stock).
			Int("reserved_delta", adj.Reserved).
			Int("on_order_delta", adj.OnOrder).
			Err(err).
			Msg("ledger adjustment rejected")
		return Part{}, err
	}

	l.log.Debug().
		Str("part_id", string(id)).
		Int("stock_delta", adj.Stock).
		Int("reserved_delta", adj.Reserved).
		Int("on_order_delta", adj.OnOrder).
		Int("qty_in_stock", part.QtyInStock).
		Int("qty_reserved", part.QtyReserved).
		Int("qty_on_order", part.QtyOnOrder).
		Msg("ledger adjustment applied")
	return part, nil
}
