/*
compensate.go - Reverse-order unwind of partially applied operations

PURPOSE:
  The backing store of the original system offered no cross-table
  transactions, so every multi-step operation carries its own compensation:
  when a later step fails, everything already applied is reversed in the
  opposite order before the error surfaces.

HOW IT WORKS:
  The managers push one step per committed side effect (a ledger adjustment,
  an inserted row) onto a compensator. On failure, unwind() replays the
  reverts LIFO. A revert for a ledger adjustment calls the ledger with the
  negated deltas; a revert for an inserted row deletes it.

WHEN COMPENSATION ITSELF FAILS:
  unwind() keeps going past a failed revert (later reverts may still
  succeed) and returns a *ReconciliationError listing every step that
  remains applied, wrapping the forward failure. This is the only error
  class a caller must never retry on.

UNDER A REAL TRANSACTION:
  When the store implements TxStore the managers run each operation inside
  WithTx and use a disabled compensator: rollback already undoes every
  forward step, so unwind() just returns the cause.

SEE ALSO:
  - delivery.go, jobpart.go: the two users of this type
  - errors.go: ReconciliationError
*/
package inventory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// =============================================================================
// COMPENSATOR
// =============================================================================

type compensationStep struct {
	describe string
	revert   func(ctx context.Context) error
}

// compensator accumulates reverts for the side effects of one logical
// operation. Not safe for concurrent use; each operation builds its own.
type compensator struct {
	enabled bool
	steps   []compensationStep
	log     zerolog.Logger
}

// newCompensator returns a compensator that actually reverts on unwind.
func newCompensator(log zerolog.Logger) *compensator {
	return &compensator{enabled: true, log: log}
}

// noopCompensator returns a compensator for use inside a real database
// transaction, where rollback performs the reversal.
func noopCompensator(log zerolog.Logger) *compensator {
	return &compensator{enabled: false, log: log}
}

// push records a committed side effect and how to revert it.
func (c *compensator) push(describe string, revert func(ctx context.Context) error) {
	if !c.enabled {
		return
	}
	c.steps = append(c.steps, compensationStep{describe: describe, revert: revert})
}

// adjusted records a successful ledger call; the revert applies the exact
// inverse adjustment.
func (c *compensator) adjusted(ledger Ledger, partID PartID, adj Adjustment) {
	c.push(
		fmt.Sprintf("adjustment part=%s stock=%+d reserved=%+d on_order=%+d",
			partID, adj.Stock, adj.Reserved, adj.OnOrder),
		func(ctx context.Context) error {
			_, err := ledger.AdjustPartQuantities(ctx, partID, adj.Negate())
			return err
		},
	)
}

// unwind reverses every recorded step in LIFO order and returns cause. If any
// revert fails, the remaining applied steps are collected into a
// *ReconciliationError wrapping cause. cause is returned unchanged when the
// compensator is disabled or empty.
func (c *compensator) unwind(ctx context.Context, cause error) error {
	if !c.enabled || len(c.steps) == 0 {
		return cause
	}

	var unreversed []string
	for i := len(c.steps) - 1; i >= 0; i-- {
		step := c.steps[i]
		if err := step.revert(ctx); err != nil {
			c.log.Error().
				Str("step", step.describe).
				Err(err).
				Msg("compensation step failed; state requires manual reconciliation")
			unreversed = append(unreversed, step.describe)
		}
	}
	c.steps = nil

	if len(unreversed) > 0 {
		return &ReconciliationError{Cause: cause, Unreversed: unreversed}
	}
	c.log.Warn().Err(cause).Msg("operation failed; all applied steps compensated")
	return cause
}
