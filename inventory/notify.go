/*
notify.go - Best-effort VHC authorization synchronization

PURPOSE:
  After an update changes the authorization or allocation of a job part tied
  to a vehicle-health-check finding, the approval state shown to the
  customer must be brought back in line with the reserved quantities. The
  synchronizer is an external collaborator; this file makes the "never block
  or fail the primary operation" contract structural: emissions go through
  an in-process queue drained by a background goroutine, and a failed sync
  is logged and dropped, never propagated.

SWAPPING IN A REAL TRANSPORT:
  AuthorisationSyncer is the only integration point. A queue- or HTTP-backed
  implementation slots in without touching the managers.

SEE ALSO:
  - jobpart.go: the emitter
*/
package inventory

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// =============================================================================
// SYNCER - External collaborator interface
// =============================================================================

// AuthorisationSync identifies one VHC finding whose approval state should
// be re-synchronized.
type AuthorisationSync struct {
	JobID     JobID
	VHCItemID string
}

type AuthorisationSyncer interface {
	SyncAuthorisation(ctx context.Context, sync AuthorisationSync) error
}

// NoopSyncer satisfies AuthorisationSyncer and does nothing. Used when no
// VHC system is wired up.
type NoopSyncer struct{}

func (NoopSyncer) SyncAuthorisation(context.Context, AuthorisationSync) error { return nil }

// =============================================================================
// DISPATCHER - Fire-and-forget emission queue
// =============================================================================

// SyncDispatcher decouples sync emission from the inventory operation that
// triggered it. Enqueue never blocks: if the queue is full the emission is
// dropped and logged, matching the best-effort contract.
type SyncDispatcher struct {
	syncer  AuthorisationSyncer
	queue   chan AuthorisationSync
	timeout time.Duration
	log     zerolog.Logger

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

func NewSyncDispatcher(syncer AuthorisationSyncer, queueSize int, log zerolog.Logger) *SyncDispatcher {
	if queueSize <= 0 {
		queueSize = 128
	}
	return &SyncDispatcher{
		syncer:  syncer,
		queue:   make(chan AuthorisationSync, queueSize),
		timeout: 10 * time.Second,
		log:     log.With().Str("component", "vhc-sync").Logger(),
		stop:    make(chan struct{}),
	}
}

// Start launches the drain goroutine.
func (d *SyncDispatcher) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop drains nothing further and waits for the in-flight sync to finish.
func (d *SyncDispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
	d.wg.Wait()
}

// Enqueue submits a sync without blocking the caller.
func (d *SyncDispatcher) Enqueue(sync AuthorisationSync) {
	select {
	case d.queue <- sync:
	default:
		d.log.Warn().
			Str("job_id", string(sync.JobID)).
			Str("vhc_item_id", sync.VHCItemID).
			Msg("sync queue full; emission dropped")
	}
}

func (d *SyncDispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stop:
			return
		case sync := <-d.queue:
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			err := d.syncer.SyncAuthorisation(ctx, sync)
			cancel()
			if err != nil {
				// Best-effort: the inventory change is already committed.
				d.log.Error().
					Str("job_id", string(sync.JobID)).
					Str("vhc_item_id", sync.VHCItemID).
					Err(err).
					Msg("VHC authorisation sync failed")
				continue
			}
			d.log.Debug().
				Str("job_id", string(sync.JobID)).
				Str("vhc_item_id", sync.VHCItemID).
				Msg("VHC authorisation synced")
		}
	}
}
