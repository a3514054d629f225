/*
errors.go - Centralized error types for the inventory engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify with errors.Is/errors.As; the HTTP layer maps each
  class to a status code.

ERROR CATEGORIES:
  1. Caller errors    - validation, not found, insufficient stock
  2. Ledger errors    - an adjustment would drive a counter negative
  3. Store errors     - the backing store failed an insert/update/delete
  4. Reconciliation   - a compensating adjustment itself failed; the ledger
                        and the row store disagree and a human must resolve it

PROPAGATION POLICY:
  Validation, not-found and insufficient-stock errors are returned before
  any side effect. Ledger and persistence failures mid-sequence trigger the
  compensation path; if compensation succeeds the original error is returned
  as if nothing happened. If compensation fails, a ReconciliationError is
  returned instead - the only class that must never be silently retried.

SEE ALSO:
  - ledger.go: emits LedgerError
  - compensate.go: emits ReconciliationError
*/
package inventory

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed or missing required input,
	// rejected before any side effect.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced delivery, delivery item or
	// job part does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPartNotFound is returned when a referenced catalog part does not
	// exist. Wraps ErrNotFound.
	ErrPartNotFound = fmt.Errorf("part %w", ErrNotFound)

	// ErrInsufficientStock is returned when an allocation-from-stock request
	// exceeds available qty_in_stock. Rejected before any side effect.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrLedgerRejected is returned when an adjustment would drive one of the
	// three counters negative. Preconditions should make this unreachable for
	// callers, but every ledger call site handles it defensively.
	ErrLedgerRejected = errors.New("ledger rejected adjustment")

	// ErrPersistence is returned when the backing store failed a write.
	ErrPersistence = errors.New("persistence failed")

	// ErrInvalidStatus is returned for a job part status transition the
	// state machine does not allow.
	ErrInvalidStatus = errors.New("invalid status transition")

	// ErrReconciliationFailed is returned when a compensating adjustment
	// failed after a forward step had already committed. The ledger and row
	// store are inconsistent; manual intervention is required.
	ErrReconciliationFailed = errors.New("reconciliation failed")

	// ErrDuplicatePartNumber is returned when creating a part whose number
	// (case-insensitive) already exists.
	ErrDuplicatePartNumber = errors.New("duplicate part number")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientStockError reports an allocation request exceeding stock.
type InsufficientStockError struct {
	PartID    PartID
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for part %s: available %d, requested %d",
		e.PartID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// LedgerError reports a rejected adjustment with the offending deltas.
type LedgerError struct {
	PartID     PartID
	Adjustment Adjustment
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger rejected adjustment for part %s (stock %+d, reserved %+d, on_order %+d): would drive a counter negative",
		e.PartID, e.Adjustment.Stock, e.Adjustment.Reserved, e.Adjustment.OnOrder)
}

func (e *LedgerError) Unwrap() error { return ErrLedgerRejected }

// ReconciliationError reports compensation steps that could not be reversed.
// Cause is the forward failure that triggered compensation; Unreversed lists
// the steps still applied, most recent first.
type ReconciliationError struct {
	Cause      error
	Unreversed []string
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconciliation failed after %q: unreversed steps: %s",
		e.Cause, strings.Join(e.Unreversed, "; "))
}

func (e *ReconciliationError) Unwrap() error { return ErrReconciliationFailed }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input and
// the caller can correct the request.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrDuplicatePartNumber)
}

// IsRetryable returns true if the operation completed with no observable
// effect and a retry is safe. A ReconciliationError is never retryable: the
// engine state is inconsistent and naive retries would compound the damage.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrReconciliationFailed) {
		return false
	}
	return errors.Is(err, ErrPersistence) || errors.Is(err, ErrLedgerRejected)
}
