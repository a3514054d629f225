// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/warp/parts-engine/inventory"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements inventory.Store and inventory.AuditStore with mutex-held
// maps. It deliberately does NOT implement TxStore, so the managers exercise
// the explicit compensation path against it; wrap it in TxMemory to exercise
// the transactional path instead.
type Memory struct {
	mu            sync.RWMutex
	parts         map[inventory.PartID]inventory.Part
	deliveries    map[inventory.DeliveryID]inventory.Delivery
	deliveryItems map[inventory.DeliveryItemID]inventory.DeliveryItem
	jobParts      map[inventory.JobPartID]inventory.JobPart
	movements     []inventory.StockMovement
	auditRuns     []inventory.AuditRun
}

func NewMemory() *Memory {
	return &Memory{
		parts:         make(map[inventory.PartID]inventory.Part),
		deliveries:    make(map[inventory.DeliveryID]inventory.Delivery),
		deliveryItems: make(map[inventory.DeliveryItemID]inventory.DeliveryItem),
		jobParts:      make(map[inventory.JobPartID]inventory.JobPart),
	}
}

// =============================================================================
// PART STORE
// =============================================================================

func (m *Memory) CreatePart(_ context.Context, p inventory.Part) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.parts {
		if strings.EqualFold(existing.PartNumber, p.PartNumber) {
			return inventory.ErrDuplicatePartNumber
		}
	}
	m.parts[p.ID] = p
	return nil
}

func (m *Memory) GetPart(_ context.Context, id inventory.PartID) (inventory.Part, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.parts[id]
	if !ok {
		return inventory.Part{}, inventory.ErrPartNotFound
	}
	return p, nil
}

func (m *Memory) GetPartByNumber(_ context.Context, number string) (inventory.Part, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.parts {
		if strings.EqualFold(p.PartNumber, number) {
			return p, nil
		}
	}
	return inventory.Part{}, inventory.ErrPartNotFound
}

func (m *Memory) ListParts(_ context.Context) ([]inventory.Part, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]inventory.Part, 0, len(m.parts))
	for _, p := range m.parts {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].PartNumber < result[j].PartNumber })
	return result, nil
}

func (m *Memory) UpdatePartDetails(_ context.Context, p inventory.Part) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.parts[p.ID]
	if !ok {
		return inventory.ErrPartNotFound
	}
	// Counters stay whatever the ledger last wrote.
	p.QtyInStock = existing.QtyInStock
	p.QtyReserved = existing.QtyReserved
	p.QtyOnOrder = existing.QtyOnOrder
	m.parts[p.ID] = p
	return nil
}

// AdjustQuantities applies all three deltas under the store lock, rejecting
// the whole adjustment if any resulting counter would be negative. This is
// the in-memory equivalent of the conditional UPDATE in the sqlite store.
func (m *Memory) AdjustQuantities(_ context.Context, id inventory.PartID, adj inventory.Adjustment) (inventory.Part, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.parts[id]
	if !ok {
		return inventory.Part{}, inventory.ErrPartNotFound
	}

	stock := p.QtyInStock + adj.Stock
	reserved := p.QtyReserved + adj.Reserved
	onOrder := p.QtyOnOrder + adj.OnOrder
	if stock < 0 || reserved < 0 || onOrder < 0 {
		return inventory.Part{}, &inventory.LedgerError{PartID: id, Adjustment: adj}
	}

	p.QtyInStock = stock
	p.QtyReserved = reserved
	p.QtyOnOrder = onOrder
	p.UpdatedAt = time.Now().UTC()
	m.parts[id] = p
	return p, nil
}

// =============================================================================
// DELIVERY STORE
// =============================================================================

func (m *Memory) CreateDelivery(_ context.Context, d inventory.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.Items = nil // items are stored individually
	m.deliveries[d.ID] = d
	return nil
}

func (m *Memory) UpdateDelivery(_ context.Context, d inventory.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.deliveries[d.ID]; !ok {
		return inventory.ErrNotFound
	}
	d.Items = nil
	m.deliveries[d.ID] = d
	return nil
}

func (m *Memory) DeleteDelivery(_ context.Context, id inventory.DeliveryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.deliveries[id]; !ok {
		return inventory.ErrNotFound
	}
	delete(m.deliveries, id)
	return nil
}

func (m *Memory) GetDelivery(ctx context.Context, id inventory.DeliveryID) (inventory.Delivery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.deliveries[id]
	if !ok {
		return inventory.Delivery{}, inventory.ErrNotFound
	}
	d.Items = m.itemsForLocked(id)
	return d, nil
}

func (m *Memory) ListDeliveries(_ context.Context) ([]inventory.Delivery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]inventory.Delivery, 0, len(m.deliveries))
	for id, d := range m.deliveries {
		d.Items = m.itemsForLocked(id)
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *Memory) itemsForLocked(id inventory.DeliveryID) []inventory.DeliveryItem {
	var items []inventory.DeliveryItem
	for _, item := range m.deliveryItems {
		if item.DeliveryID == id {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items
}

func (m *Memory) CreateDeliveryItem(_ context.Context, item inventory.DeliveryItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.deliveries[item.DeliveryID]; !ok {
		return inventory.ErrNotFound
	}
	m.deliveryItems[item.ID] = item
	return nil
}

func (m *Memory) UpdateDeliveryItem(_ context.Context, item inventory.DeliveryItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.deliveryItems[item.ID]; !ok {
		return inventory.ErrNotFound
	}
	m.deliveryItems[item.ID] = item
	return nil
}

func (m *Memory) DeleteDeliveryItem(_ context.Context, id inventory.DeliveryItemID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.deliveryItems[id]; !ok {
		return inventory.ErrNotFound
	}
	delete(m.deliveryItems, id)
	return nil
}

func (m *Memory) GetDeliveryItem(_ context.Context, id inventory.DeliveryItemID) (inventory.DeliveryItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.deliveryItems[id]
	if !ok {
		return inventory.DeliveryItem{}, inventory.ErrNotFound
	}
	return item, nil
}

func (m *Memory) ListDeliveryItems(_ context.Context, deliveryID inventory.DeliveryID) ([]inventory.DeliveryItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.itemsForLocked(deliveryID), nil
}

func (m *Memory) ListDeliveryItemsByPart(_ context.Context, partID inventory.PartID) ([]inventory.DeliveryItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var items []inventory.DeliveryItem
	for _, item := range m.deliveryItems {
		if item.PartID == partID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items, nil
}

// =============================================================================
// JOB PART STORE
// =============================================================================

func (m *Memory) CreateJobPart(_ context.Context, jp inventory.JobPart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobParts[jp.ID] = jp
	return nil
}

func (m *Memory) UpdateJobPart(_ context.Context, jp inventory.JobPart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobParts[jp.ID]; !ok {
		return inventory.ErrNotFound
	}
	m.jobParts[jp.ID] = jp
	return nil
}

func (m *Memory) DeleteJobPart(_ context.Context, id inventory.JobPartID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobParts[id]; !ok {
		return inventory.ErrNotFound
	}
	delete(m.jobParts, id)
	return nil
}

func (m *Memory) GetJobPart(_ context.Context, id inventory.JobPartID) (inventory.JobPart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	jp, ok := m.jobParts[id]
	if !ok {
		return inventory.JobPart{}, inventory.ErrNotFound
	}
	return jp, nil
}

func (m *Memory) ListJobParts(_ context.Context, jobID inventory.JobID) ([]inventory.JobPart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []inventory.JobPart
	for _, jp := range m.jobParts {
		if jp.JobID == jobID {
			result = append(result, jp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *Memory) ListJobPartsByPart(_ context.Context, partID inventory.PartID) ([]inventory.JobPart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []inventory.JobPart
	for _, jp := range m.jobParts {
		if jp.PartID == partID {
			result = append(result, jp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// =============================================================================
// MOVEMENT STORE - Append-only
// =============================================================================

func (m *Memory) AppendMovement(_ context.Context, mv inventory.StockMovement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.movements = append(m.movements, mv)
	return nil
}

func (m *Memory) ListMovements(_ context.Context, partID inventory.PartID) ([]inventory.StockMovement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []inventory.StockMovement
	for _, mv := range m.movements {
		if mv.PartID == partID {
			result = append(result, mv)
		}
	}
	return result, nil
}

// MovementCount reports the total number of movement rows. Test helper.
func (m *Memory) MovementCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.movements)
}

// =============================================================================
// AUDIT STORE
// =============================================================================

func (m *Memory) AppendAuditRun(_ context.Context, run inventory.AuditRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditRuns = append(m.auditRuns, run)
	return nil
}

func (m *Memory) ListAuditRuns(_ context.Context, limit int) ([]inventory.AuditRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	runs := make([]inventory.AuditRun, len(m.auditRuns))
	copy(runs, m.auditRuns)
	// Most recent first.
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support, simulated with a snapshot
// and restore-on-error. Used to exercise the managers' transactional path.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

func (tm *TxMemory) WithTx(ctx context.Context, fn func(inventory.Store) error) error {
	tm.mu.Lock()
	snapshot := tm.snapshotLocked()
	tm.mu.Unlock()

	if err := fn(tm.Memory); err != nil {
		tm.mu.Lock()
		tm.restoreLocked(snapshot)
		tm.mu.Unlock()
		return err
	}
	return nil
}

type memorySnapshot struct {
	parts         map[inventory.PartID]inventory.Part
	deliveries    map[inventory.DeliveryID]inventory.Delivery
	deliveryItems map[inventory.DeliveryItemID]inventory.DeliveryItem
	jobParts      map[inventory.JobPartID]inventory.JobPart
	movements     []inventory.StockMovement
}

func (tm *TxMemory) snapshotLocked() memorySnapshot {
	s := memorySnapshot{
		parts:         make(map[inventory.PartID]inventory.Part, len(tm.parts)),
		deliveries:    make(map[inventory.DeliveryID]inventory.Delivery, len(tm.deliveries)),
		deliveryItems: make(map[inventory.DeliveryItemID]inventory.DeliveryItem, len(tm.deliveryItems)),
		jobParts:      make(map[inventory.JobPartID]inventory.JobPart, len(tm.jobParts)),
		movements:     append([]inventory.StockMovement{}, tm.movements...),
	}
	for k, v := range tm.parts {
		s.parts[k] = v
	}
	for k, v := range tm.deliveries {
		s.deliveries[k] = v
	}
	for k, v := range tm.deliveryItems {
		s.deliveryItems[k] = v
	}
	for k, v := range tm.jobParts {
		s.jobParts[k] = v
	}
	return s
}

func (tm *TxMemory) restoreLocked(s memorySnapshot) {
	tm.parts = s.parts
	tm.deliveries = s.deliveries
	tm.deliveryItems = s.deliveryItems
	tm.jobParts = s.jobParts
	tm.movements = s.movements
}
