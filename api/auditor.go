/*
auditor.go - Background counter drift auditor

PURPOSE:
  Periodically recomputes, per part, what the qty_on_order and qty_reserved
  counters should be from the delivery items and job parts on record,
  compares with the stored counters, and records an audit run.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - expected qty_on_order  = sum of outstanding delivery item quantities
  - expected qty_reserved  = sum of live from-stock allocations
                           + sum of authorised reservation quantities
  - Strictly read-only: drift is reported and logged, never corrected.
    Counters only move through the quantity ledger.

CONFIGURATION:
  - CheckInterval: How often to audit (default: 10 minutes)
  - Enabled: Whether the auditor is active (default: true)

USAGE:
  auditor := NewDriftAuditor(store, auditStore, logger)
  auditor.Start()
  // ... later
  auditor.Stop()

SEE ALSO:
  - handlers.go: ListAuditRuns endpoint
  - inventory/ledger.go: the only writer of the audited counters
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/parts-engine/inventory"
)

// DriftAuditor periodically reconciles stored counters against the rows
// they are derived from.
type DriftAuditor struct {
	Store         inventory.Store
	AuditStore    inventory.AuditStore
	CheckInterval time.Duration
	Enabled       bool

	log    zerolog.Logger
	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewDriftAuditor creates a new auditor.
func NewDriftAuditor(store inventory.Store, auditStore inventory.AuditStore, log zerolog.Logger) *DriftAuditor {
	return &DriftAuditor{
		Store:         store,
		AuditStore:    auditStore,
		CheckInterval: 10 * time.Minute,
		Enabled:       true,
		log:           log.With().Str("component", "auditor").Logger(),
		stop:          make(chan bool),
	}
}

// Start begins the auditor.
func (a *DriftAuditor) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.Enabled {
		a.log.Info().Msg("auditor disabled, not starting")
		return
	}

	a.ticker = time.NewTicker(a.CheckInterval)
	a.wg.Add(1)

	go a.run()

	a.log.Info().Dur("interval", a.CheckInterval).Msg("auditor started")
}

// Stop stops the auditor.
func (a *DriftAuditor) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ticker != nil {
		a.ticker.Stop()
		close(a.stop)
		a.wg.Wait()
		a.log.Info().Msg("auditor stopped")
	}
}

func (a *DriftAuditor) run() {
	defer a.wg.Done()

	// Run immediately on start
	a.audit()

	for {
		select {
		case <-a.ticker.C:
			a.audit()
		case <-a.stop:
			return
		}
	}
}

// RunNow triggers an immediate audit (for testing/admin).
func (a *DriftAuditor) RunNow() (inventory.AuditRun, error) {
	return a.auditOnce(context.Background())
}

func (a *DriftAuditor) audit() {
	run, err := a.auditOnce(context.Background())
	if err != nil {
		a.log.Error().Err(err).Msg("audit run failed")
		return
	}
	if run.DriftFound > 0 {
		a.log.Warn().
			Int("parts_checked", run.PartsChecked).
			Int("drift_found", run.DriftFound).
			Msg("counter drift detected")
	}
}

func (a *DriftAuditor) auditOnce(ctx context.Context) (inventory.AuditRun, error) {
	started := time.Now().UTC()

	parts, err := a.Store.ListParts(ctx)
	if err != nil {
		return inventory.AuditRun{}, fmt.Errorf("failed to list parts: %w", err)
	}

	var findings []inventory.DriftFinding
	for _, part := range parts {
		expectedOnOrder, expectedReserved, err := a.expectedCounters(ctx, part.ID)
		if err != nil {
			a.log.Error().Err(err).Str("part_id", string(part.ID)).Msg("skipping part in audit")
			continue
		}

		if part.QtyOnOrder != expectedOnOrder {
			findings = append(findings, inventory.DriftFinding{
				PartID:   part.ID,
				Counter:  "qty_on_order",
				Stored:   part.QtyOnOrder,
				Expected: expectedOnOrder,
			})
		}
		if part.QtyReserved != expectedReserved {
			findings = append(findings, inventory.DriftFinding{
				PartID:   part.ID,
				Counter:  "qty_reserved",
				Stored:   part.QtyReserved,
				Expected: expectedReserved,
			})
		}
	}

	run := inventory.AuditRun{
		ID:           fmt.Sprintf("audit-%d", started.UnixNano()),
		StartedAt:    started,
		CompletedAt:  time.Now().UTC(),
		PartsChecked: len(parts),
		DriftFound:   len(findings),
		Findings:     findings,
	}
	if err := a.AuditStore.AppendAuditRun(ctx, run); err != nil {
		return inventory.AuditRun{}, fmt.Errorf("failed to record audit run: %w", err)
	}

	for _, f := range findings {
		a.log.Warn().
			Str("part_id", string(f.PartID)).
			Str("counter", f.Counter).
			Int("stored", f.Stored).
			Int("expected", f.Expected).
			Msg("counter drift")
	}
	return run, nil
}

// expectedCounters recomputes the derivable counters for one part. This
// mirrors the accounting in the delivery and job part managers:
//   - on_order: every delivery item contributes its outstanding quantity
//   - reserved: from-stock allocations stay reserved until the row is
//     cancelled or deleted; an authorised row additionally reserves its
//     full requested quantity
func (a *DriftAuditor) expectedCounters(ctx context.Context, partID inventory.PartID) (onOrder, reserved int, err error) {
	items, err := a.Store.ListDeliveryItemsByPart(ctx, partID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list delivery items: %w", err)
	}
	for _, item := range items {
		onOrder += item.Outstanding()
	}

	jobParts, err := a.Store.ListJobPartsByPart(ctx, partID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list job parts: %w", err)
	}
	for _, jp := range jobParts {
		if jp.Status == inventory.JobPartCancelled {
			continue
		}
		if jp.Provenance == inventory.ProvenanceFromStock {
			reserved += jp.QuantityAllocated
		}
		if jp.Authorised {
			reserved += jp.QuantityRequested
		}
	}
	return onOrder, reserved, nil
}
