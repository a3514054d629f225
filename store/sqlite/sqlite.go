/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements inventory.Store, inventory.TxStore and inventory.AuditStore
  using SQLite. In production, the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

THE LEDGER UPDATE:
  AdjustQuantities is a single conditional UPDATE:

    UPDATE parts
    SET    qty_in_stock = qty_in_stock + :ds, ...
    WHERE  id = :id
      AND  qty_in_stock + :ds >= 0
      AND  qty_reserved + :dr >= 0
      AND  qty_on_order + :do >= 0

  Zero rows affected means the part is missing or the adjustment would
  drive a counter negative. The read-modify-write window is the statement
  itself, so concurrent adjusters of the same part cannot interleave into
  a negative counter. A CHECK constraint on the table backs the same
  invariant at schema level.

TRANSACTIONS:
  WithTx wraps a whole manager operation in one database transaction. The
  managers detect this capability and rely on rollback instead of manual
  compensation.

APPEND-ONLY ENFORCEMENT:
  stock_movements has INSERT and SELECT only. No UPDATE or DELETE
  statement for it exists in this file; corrections are additional rows.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/parts.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - inventory/store.go: Interface definitions
  - inventory/ledger.go: Quantity ledger built on AdjustQuantities
  - inventory/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/parts-engine/inventory"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Access is serialized by s.mu; a single connection also keeps an
	// in-memory database from being silently re-created per pool conn.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Parts catalog. The three qty counters are writable only through
	-- AdjustQuantities; the CHECK backs the non-negativity invariant.
	CREATE TABLE IF NOT EXISTS parts (
		id TEXT PRIMARY KEY,
		part_number TEXT NOT NULL UNIQUE COLLATE NOCASE,
		name TEXT NOT NULL,
		category TEXT,
		supplier TEXT,
		location TEXT,
		unit_cost TEXT NOT NULL DEFAULT '0',
		unit_price TEXT NOT NULL DEFAULT '0',
		qty_in_stock INTEGER NOT NULL DEFAULT 0 CHECK (qty_in_stock >= 0),
		qty_reserved INTEGER NOT NULL DEFAULT 0 CHECK (qty_reserved >= 0),
		qty_on_order INTEGER NOT NULL DEFAULT 0 CHECK (qty_on_order >= 0),
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_parts_category ON parts(category);
	CREATE INDEX IF NOT EXISTS idx_parts_supplier ON parts(supplier);

	-- Supplier deliveries
	CREATE TABLE IF NOT EXISTS deliveries (
		id TEXT PRIMARY KEY,
		supplier TEXT NOT NULL,
		order_reference TEXT,
		status TEXT NOT NULL DEFAULT 'ordering',
		expected_date TEXT,
		received_date TEXT,
		notes TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_deliveries_status ON deliveries(status);

	-- Delivery line items (a delivery exclusively owns its items)
	CREATE TABLE IF NOT EXISTS delivery_items (
		id TEXT PRIMARY KEY,
		delivery_id TEXT NOT NULL REFERENCES deliveries(id),
		part_id TEXT NOT NULL REFERENCES parts(id),
		job_id TEXT,
		quantity_ordered INTEGER NOT NULL DEFAULT 0,
		quantity_received INTEGER NOT NULL DEFAULT 0,
		unit_cost TEXT NOT NULL DEFAULT '0',
		unit_price TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL DEFAULT 'ordered',
		notes TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_delivery_items_delivery ON delivery_items(delivery_id);
	CREATE INDEX IF NOT EXISTS idx_delivery_items_part ON delivery_items(part_id);

	-- Job part requests and allocations
	CREATE TABLE IF NOT EXISTS job_parts (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL,
		part_id TEXT NOT NULL REFERENCES parts(id),
		quantity_requested INTEGER NOT NULL,
		quantity_allocated INTEGER NOT NULL DEFAULT 0,
		quantity_fitted INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		authorised BOOLEAN NOT NULL DEFAULT FALSE,
		origin TEXT NOT NULL DEFAULT 'manual',
		vhc_item_id TEXT,
		provenance TEXT NOT NULL DEFAULT 'none',
		location TEXT,
		unit_cost TEXT NOT NULL DEFAULT '0',
		unit_price TEXT NOT NULL DEFAULT '0',
		notes TEXT,
		requested_by TEXT,
		allocated_by TEXT,
		picked_by TEXT,
		fitted_by TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_job_parts_job ON job_parts(job_id);
	CREATE INDEX IF NOT EXISTS idx_job_parts_part ON job_parts(part_id);
	CREATE INDEX IF NOT EXISTS idx_job_parts_status ON job_parts(status);

	-- Stock movements (append-only audit log)
	CREATE TABLE IF NOT EXISTS stock_movements (
		id TEXT PRIMARY KEY,
		part_id TEXT NOT NULL REFERENCES parts(id),
		delivery_item_id TEXT,
		job_part_id TEXT,
		movement_type TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		unit_cost TEXT NOT NULL DEFAULT '0',
		unit_price TEXT NOT NULL DEFAULT '0',
		performed_by TEXT NOT NULL DEFAULT 'system',
		reference TEXT,
		notes TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_movements_part ON stock_movements(part_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_movements_type ON stock_movements(movement_type);

	-- Drift audit runs
	CREATE TABLE IF NOT EXISTS audit_runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		completed_at TEXT NOT NULL,
		parts_checked INTEGER NOT NULL DEFAULT 0,
		drift_found INTEGER NOT NULL DEFAULT 0,
		findings_json TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_runs_started ON audit_runs(started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// PART STORE (inventory.PartStore interface)
// =============================================================================

func (s *Store) CreatePart(ctx context.Context, p inventory.Part) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createPart(ctx, s.db, p)
}

func createPart(ctx context.Context, db dbtx, p inventory.Part) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO parts
		(id, part_number, name, category, supplier, location, unit_cost, unit_price,
		 qty_in_stock, qty_reserved, qty_on_order, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.PartNumber, p.Name, p.Category, p.Supplier, p.Location,
		p.UnitCost.String(), p.UnitPrice.String(),
		p.QtyInStock, p.QtyReserved, p.QtyOnOrder, p.Active,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return inventory.ErrDuplicatePartNumber
		}
		return fmt.Errorf("failed to insert part: %w", err)
	}
	return nil
}

const partColumns = `id, part_number, name, category, supplier, location, unit_cost, unit_price,
	qty_in_stock, qty_reserved, qty_on_order, active, created_at, updated_at`

func (s *Store) GetPart(ctx context.Context, id inventory.PartID) (inventory.Part, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPart(ctx, s.db, id)
}

func getPart(ctx context.Context, db dbtx, id inventory.PartID) (inventory.Part, error) {
	row := db.QueryRowContext(ctx, `SELECT `+partColumns+` FROM parts WHERE id = ?`, id)
	return scanPart(row)
}

func (s *Store) GetPartByNumber(ctx context.Context, number string) (inventory.Part, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPartByNumber(ctx, s.db, number)
}

func getPartByNumber(ctx context.Context, db dbtx, number string) (inventory.Part, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+partColumns+` FROM parts WHERE part_number = ? COLLATE NOCASE`, number)
	return scanPart(row)
}

func (s *Store) ListParts(ctx context.Context) ([]inventory.Part, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listParts(ctx, s.db)
}

func listParts(ctx context.Context, db dbtx) ([]inventory.Part, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+partColumns+` FROM parts ORDER BY part_number`)
	if err != nil {
		return nil, fmt.Errorf("failed to query parts: %w", err)
	}
	defer rows.Close()

	var parts []inventory.Part
	for rows.Next() {
		p, err := scanPart(rows)
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

func (s *Store) UpdatePartDetails(ctx context.Context, p inventory.Part) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updatePartDetails(ctx, s.db, p)
}

// updatePartDetails deliberately omits the three quantity counters: those
// belong to the ledger alone.
func updatePartDetails(ctx context.Context, db dbtx, p inventory.Part) error {
	res, err := db.ExecContext(ctx, `
		UPDATE parts
		SET name = ?, category = ?, supplier = ?, location = ?,
		    unit_cost = ?, unit_price = ?, active = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.Category, p.Supplier, p.Location,
		p.UnitCost.String(), p.UnitPrice.String(), p.Active,
		formatTime(p.UpdatedAt), p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update part: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return inventory.ErrPartNotFound
	}
	return nil
}

func (s *Store) AdjustQuantities(ctx context.Context, id inventory.PartID, adj inventory.Adjustment) (inventory.Part, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return adjustQuantities(ctx, s.db, id, adj)
}

// adjustQuantities is the conditional-update ledger primitive. The WHERE
// clause carries the non-negativity invariant: if any counter would go
// negative the statement matches zero rows and nothing changes.
func adjustQuantities(ctx context.Context, db dbtx, id inventory.PartID, adj inventory.Adjustment) (inventory.Part, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE parts
		SET qty_in_stock = qty_in_stock + ?,
		    qty_reserved = qty_reserved + ?,
		    qty_on_order = qty_on_order + ?,
		    updated_at = ?
		WHERE id = ?
		  AND qty_in_stock + ? >= 0
		  AND qty_reserved + ? >= 0
		  AND qty_on_order + ? >= 0`,
		adj.Stock, adj.Reserved, adj.OnOrder, formatTime(time.Now().UTC()),
		id, adj.Stock, adj.Reserved, adj.OnOrder,
	)
	if err != nil {
		return inventory.Part{}, fmt.Errorf("failed to adjust quantities: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var one int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM parts WHERE id = ?`, id).Scan(&one)
		if err == sql.ErrNoRows {
			return inventory.Part{}, inventory.ErrPartNotFound
		}
		if err != nil {
			return inventory.Part{}, fmt.Errorf("failed to check part existence: %w", err)
		}
		return inventory.Part{}, &inventory.LedgerError{PartID: id, Adjustment: adj}
	}
	return getPart(ctx, db, id)
}

func scanPart(row interface{ Scan(dest ...any) error }) (inventory.Part, error) {
	var (
		p                  inventory.Part
		cost, price        string
		createdAt, updated string
		category, supplier sql.NullString
		location           sql.NullString
	)
	err := row.Scan(&p.ID, &p.PartNumber, &p.Name, &category, &supplier, &location,
		&cost, &price, &p.QtyInStock, &p.QtyReserved, &p.QtyOnOrder, &p.Active,
		&createdAt, &updated)
	if err == sql.ErrNoRows {
		return p, inventory.ErrPartNotFound
	}
	if err != nil {
		return p, fmt.Errorf("failed to scan part: %w", err)
	}
	p.Category = category.String
	p.Supplier = supplier.String
	p.Location = location.String
	p.UnitCost = parseDecimal(cost)
	p.UnitPrice = parseDecimal(price)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updated)
	return p, nil
}

// =============================================================================
// DELIVERY STORE (inventory.DeliveryStore interface)
// =============================================================================

const deliveryColumns = `id, supplier, order_reference, status, expected_date, received_date, notes, created_at, updated_at`

func (s *Store) CreateDelivery(ctx context.Context, d inventory.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createDelivery(ctx, s.db, d)
}

func createDelivery(ctx context.Context, db dbtx, d inventory.Delivery) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO deliveries
		(id, supplier, order_reference, status, expected_date, received_date, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Supplier, d.OrderReference, d.Status,
		formatNullableTime(d.ExpectedDate), formatNullableTime(d.ReceivedDate),
		d.Notes, formatTime(d.CreatedAt), formatTime(d.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert delivery: %w", err)
	}
	return nil
}

func (s *Store) UpdateDelivery(ctx context.Context, d inventory.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateDelivery(ctx, s.db, d)
}

func updateDelivery(ctx context.Context, db dbtx, d inventory.Delivery) error {
	res, err := db.ExecContext(ctx, `
		UPDATE deliveries
		SET supplier = ?, order_reference = ?, status = ?, expected_date = ?,
		    received_date = ?, notes = ?, updated_at = ?
		WHERE id = ?`,
		d.Supplier, d.OrderReference, d.Status,
		formatNullableTime(d.ExpectedDate), formatNullableTime(d.ReceivedDate),
		d.Notes, formatTime(d.UpdatedAt), d.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update delivery: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return inventory.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteDelivery(ctx context.Context, id inventory.DeliveryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteDelivery(ctx, s.db, id)
}

func deleteDelivery(ctx context.Context, db dbtx, id inventory.DeliveryID) error {
	res, err := db.ExecContext(ctx, `DELETE FROM deliveries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete delivery: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return inventory.ErrNotFound
	}
	return nil
}

func (s *Store) GetDelivery(ctx context.Context, id inventory.DeliveryID) (inventory.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getDelivery(ctx, s.db, id)
}

func getDelivery(ctx context.Context, db dbtx, id inventory.DeliveryID) (inventory.Delivery, error) {
	row := db.QueryRowContext(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE id = ?`, id)
	d, err := scanDelivery(row)
	if err != nil {
		return d, err
	}
	d.Items, err = listDeliveryItems(ctx, db, id)
	return d, err
}

func (s *Store) ListDeliveries(ctx context.Context) ([]inventory.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listDeliveries(ctx, s.db)
}

func listDeliveries(ctx context.Context, db dbtx) ([]inventory.Delivery, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+deliveryColumns+` FROM deliveries ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []inventory.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range deliveries {
		items, err := listDeliveryItems(ctx, db, deliveries[i].ID)
		if err != nil {
			return nil, err
		}
		deliveries[i].Items = items
	}
	return deliveries, nil
}

func scanDelivery(row interface{ Scan(dest ...any) error }) (inventory.Delivery, error) {
	var (
		d                    inventory.Delivery
		orderRef, notes      sql.NullString
		expected, received   sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&d.ID, &d.Supplier, &orderRef, &d.Status, &expected, &received,
		&notes, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return d, inventory.ErrNotFound
	}
	if err != nil {
		return d, fmt.Errorf("failed to scan delivery: %w", err)
	}
	d.OrderReference = orderRef.String
	d.Notes = notes.String
	d.ExpectedDate = parseNullableTime(expected)
	d.ReceivedDate = parseNullableTime(received)
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	return d, nil
}

const itemColumns = `id, delivery_id, part_id, job_id, quantity_ordered, quantity_received,
	unit_cost, unit_price, status, notes, created_at, updated_at`

func (s *Store) CreateDeliveryItem(ctx context.Context, item inventory.DeliveryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createDeliveryItem(ctx, s.db, item)
}

func createDeliveryItem(ctx context.Context, db dbtx, item inventory.DeliveryItem) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO delivery_items
		(id, delivery_id, part_id, job_id, quantity_ordered, quantity_received,
		 unit_cost, unit_price, status, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.DeliveryID, item.PartID, nullString(string(item.JobID)),
		item.QuantityOrdered, item.QuantityReceived,
		item.UnitCost.String(), item.UnitPrice.String(), item.Status, item.Notes,
		formatTime(item.CreatedAt), formatTime(item.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert delivery item: %w", err)
	}
	return nil
}

func (s *Store) UpdateDeliveryItem(ctx context.Context, item inventory.DeliveryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateDeliveryItem(ctx, s.db, item)
}

func updateDeliveryItem(ctx context.Context, db dbtx, item inventory.DeliveryItem) error {
	res, err := db.ExecContext(ctx, `
		UPDATE delivery_items
		SET quantity_ordered = ?, quantity_received = ?, unit_cost = ?, unit_price = ?,
		    status = ?, notes = ?, updated_at = ?
		WHERE id = ?`,
		item.QuantityOrdered, item.QuantityReceived,
		item.UnitCost.String(), item.UnitPrice.String(),
		item.Status, item.Notes, formatTime(item.UpdatedAt), item.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update delivery item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return inventory.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteDeliveryItem(ctx context.Context, id inventory.DeliveryItemID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteDeliveryItem(ctx, s.db, id)
}

func deleteDeliveryItem(ctx context.Context, db dbtx, id inventory.DeliveryItemID) error {
	res, err := db.ExecContext(ctx, `DELETE FROM delivery_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete delivery item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return inventory.ErrNotFound
	}
	return nil
}

func (s *Store) GetDeliveryItem(ctx context.Context, id inventory.DeliveryItemID) (inventory.DeliveryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getDeliveryItem(ctx, s.db, id)
}

func getDeliveryItem(ctx context.Context, db dbtx, id inventory.DeliveryItemID) (inventory.DeliveryItem, error) {
	row := db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM delivery_items WHERE id = ?`, id)
	return scanDeliveryItem(row)
}

func (s *Store) ListDeliveryItems(ctx context.Context, deliveryID inventory.DeliveryID) ([]inventory.DeliveryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listDeliveryItems(ctx, s.db, deliveryID)
}

func listDeliveryItems(ctx context.Context, db dbtx, deliveryID inventory.DeliveryID) ([]inventory.DeliveryItem, error) {
	return queryDeliveryItems(ctx, db,
		`SELECT `+itemColumns+` FROM delivery_items WHERE delivery_id = ? ORDER BY created_at`, deliveryID)
}

func (s *Store) ListDeliveryItemsByPart(ctx context.Context, partID inventory.PartID) ([]inventory.DeliveryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listDeliveryItemsByPart(ctx, s.db, partID)
}

func listDeliveryItemsByPart(ctx context.Context, db dbtx, partID inventory.PartID) ([]inventory.DeliveryItem, error) {
	return queryDeliveryItems(ctx, db,
		`SELECT `+itemColumns+` FROM delivery_items WHERE part_id = ? ORDER BY created_at`, partID)
}

func queryDeliveryItems(ctx context.Context, db dbtx, query string, args ...any) ([]inventory.DeliveryItem, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query delivery items: %w", err)
	}
	defer rows.Close()

	var items []inventory.DeliveryItem
	for rows.Next() {
		item, err := scanDeliveryItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanDeliveryItem(row interface{ Scan(dest ...any) error }) (inventory.DeliveryItem, error) {
	var (
		item                 inventory.DeliveryItem
		jobID, notes         sql.NullString
		cost, price          string
		createdAt, updatedAt string
	)
	err := row.Scan(&item.ID, &item.DeliveryID, &item.PartID, &jobID,
		&item.QuantityOrdered, &item.QuantityReceived,
		&cost, &price, &item.Status, &notes, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return item, inventory.ErrNotFound
	}
	if err != nil {
		return item, fmt.Errorf("failed to scan delivery item: %w", err)
	}
	item.JobID = inventory.JobID(jobID.String)
	item.Notes = notes.String
	item.UnitCost = parseDecimal(cost)
	item.UnitPrice = parseDecimal(price)
	item.CreatedAt = parseTime(createdAt)
	item.UpdatedAt = parseTime(updatedAt)
	return item, nil
}

// =============================================================================
// JOB PART STORE (inventory.JobPartStore interface)
// =============================================================================

const jobPartColumns = `id, job_id, part_id, quantity_requested, quantity_allocated, quantity_fitted,
	status, authorised, origin, vhc_item_id, provenance, location, unit_cost, unit_price, notes,
	requested_by, allocated_by, picked_by, fitted_by, created_at, updated_at`

func (s *Store) CreateJobPart(ctx context.Context, jp inventory.JobPart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createJobPart(ctx, s.db, jp)
}

func createJobPart(ctx context.Context, db dbtx, jp inventory.JobPart) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO job_parts
		(id, job_id, part_id, quantity_requested, quantity_allocated, quantity_fitted,
		 status, authorised, origin, vhc_item_id, provenance, location, unit_cost, unit_price,
		 notes, requested_by, allocated_by, picked_by, fitted_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		jp.ID, jp.JobID, jp.PartID, jp.QuantityRequested, jp.QuantityAllocated, jp.QuantityFitted,
		jp.Status, jp.Authorised, jp.Origin, nullString(jp.VHCItemID), jp.Provenance, jp.Location,
		jp.UnitCost.String(), jp.UnitPrice.String(), jp.Notes,
		jp.RequestedBy, jp.AllocatedBy, jp.PickedBy, jp.FittedBy,
		formatTime(jp.CreatedAt), formatTime(jp.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert job part: %w", err)
	}
	return nil
}

func (s *Store) UpdateJobPart(ctx context.Context, jp inventory.JobPart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateJobPart(ctx, s.db, jp)
}

func updateJobPart(ctx context.Context, db dbtx, jp inventory.JobPart) error {
	res, err := db.ExecContext(ctx, `
		UPDATE job_parts
		SET quantity_requested = ?, quantity_allocated = ?, quantity_fitted = ?,
		    status = ?, authorised = ?, provenance = ?, location = ?,
		    unit_cost = ?, unit_price = ?, notes = ?,
		    allocated_by = ?, picked_by = ?, fitted_by = ?, updated_at = ?
		WHERE id = ?`,
		jp.QuantityRequested, jp.QuantityAllocated, jp.QuantityFitted,
		jp.Status, jp.Authorised, jp.Provenance, jp.Location,
		jp.UnitCost.String(), jp.UnitPrice.String(), jp.Notes,
		jp.AllocatedBy, jp.PickedBy, jp.FittedBy, formatTime(jp.UpdatedAt), jp.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job part: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return inventory.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteJobPart(ctx context.Context, id inventory.JobPartID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteJobPart(ctx, s.db, id)
}

func deleteJobPart(ctx context.Context, db dbtx, id inventory.JobPartID) error {
	res, err := db.ExecContext(ctx, `DELETE FROM job_parts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete job part: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return inventory.ErrNotFound
	}
	return nil
}

func (s *Store) GetJobPart(ctx context.Context, id inventory.JobPartID) (inventory.JobPart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getJobPart(ctx, s.db, id)
}

func getJobPart(ctx context.Context, db dbtx, id inventory.JobPartID) (inventory.JobPart, error) {
	row := db.QueryRowContext(ctx, `SELECT `+jobPartColumns+` FROM job_parts WHERE id = ?`, id)
	return scanJobPart(row)
}

func (s *Store) ListJobParts(ctx context.Context, jobID inventory.JobID) ([]inventory.JobPart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listJobParts(ctx, s.db, jobID)
}

func listJobParts(ctx context.Context, db dbtx, jobID inventory.JobID) ([]inventory.JobPart, error) {
	return queryJobParts(ctx, db,
		`SELECT `+jobPartColumns+` FROM job_parts WHERE job_id = ? ORDER BY created_at`, jobID)
}

func (s *Store) ListJobPartsByPart(ctx context.Context, partID inventory.PartID) ([]inventory.JobPart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listJobPartsByPart(ctx, s.db, partID)
}

func listJobPartsByPart(ctx context.Context, db dbtx, partID inventory.PartID) ([]inventory.JobPart, error) {
	return queryJobParts(ctx, db,
		`SELECT `+jobPartColumns+` FROM job_parts WHERE part_id = ? ORDER BY created_at`, partID)
}

func queryJobParts(ctx context.Context, db dbtx, query string, args ...any) ([]inventory.JobPart, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query job parts: %w", err)
	}
	defer rows.Close()

	var parts []inventory.JobPart
	for rows.Next() {
		jp, err := scanJobPart(rows)
		if err != nil {
			return nil, err
		}
		parts = append(parts, jp)
	}
	return parts, rows.Err()
}

func scanJobPart(row interface{ Scan(dest ...any) error }) (inventory.JobPart, error) {
	var (
		jp                    inventory.JobPart
		vhcItemID, location   sql.NullString
		notes                 sql.NullString
		requestedBy           sql.NullString
		allocatedBy, pickedBy sql.NullString
		fittedBy              sql.NullString
		cost, price           string
		createdAt, updatedAt  string
	)
	err := row.Scan(&jp.ID, &jp.JobID, &jp.PartID,
		&jp.QuantityRequested, &jp.QuantityAllocated, &jp.QuantityFitted,
		&jp.Status, &jp.Authorised, &jp.Origin, &vhcItemID, &jp.Provenance, &location,
		&cost, &price, &notes, &requestedBy, &allocatedBy, &pickedBy, &fittedBy,
		&createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return jp, inventory.ErrNotFound
	}
	if err != nil {
		return jp, fmt.Errorf("failed to scan job part: %w", err)
	}
	jp.VHCItemID = vhcItemID.String
	jp.Location = location.String
	jp.Notes = notes.String
	jp.RequestedBy = requestedBy.String
	jp.AllocatedBy = allocatedBy.String
	jp.PickedBy = pickedBy.String
	jp.FittedBy = fittedBy.String
	jp.UnitCost = parseDecimal(cost)
	jp.UnitPrice = parseDecimal(price)
	jp.CreatedAt = parseTime(createdAt)
	jp.UpdatedAt = parseTime(updatedAt)
	return jp, nil
}

// =============================================================================
// MOVEMENT STORE (inventory.MovementStore interface) - Append-only
// =============================================================================

const movementColumns = `id, part_id, delivery_item_id, job_part_id, movement_type, quantity,
	unit_cost, unit_price, performed_by, reference, notes, created_at`

func (s *Store) AppendMovement(ctx context.Context, mv inventory.StockMovement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendMovement(ctx, s.db, mv)
}

func appendMovement(ctx context.Context, db dbtx, mv inventory.StockMovement) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO stock_movements
		(id, part_id, delivery_item_id, job_part_id, movement_type, quantity,
		 unit_cost, unit_price, performed_by, reference, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		mv.ID, mv.PartID, nullString(string(mv.DeliveryItemID)), nullString(string(mv.JobPartID)),
		mv.Type, mv.Quantity, mv.UnitCost.String(), mv.UnitPrice.String(),
		mv.PerformedBy, mv.Reference, mv.Notes, formatTime(mv.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append stock movement: %w", err)
	}
	return nil
}

func (s *Store) ListMovements(ctx context.Context, partID inventory.PartID) ([]inventory.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listMovements(ctx, s.db, partID)
}

func listMovements(ctx context.Context, db dbtx, partID inventory.PartID) ([]inventory.StockMovement, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+movementColumns+`
		FROM stock_movements
		WHERE part_id = ?
		ORDER BY created_at ASC`, partID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock movements: %w", err)
	}
	defer rows.Close()

	var movements []inventory.StockMovement
	for rows.Next() {
		var (
			mv                   inventory.StockMovement
			itemID, jobPartID    sql.NullString
			reference, notes     sql.NullString
			cost, price, created string
		)
		err := rows.Scan(&mv.ID, &mv.PartID, &itemID, &jobPartID, &mv.Type, &mv.Quantity,
			&cost, &price, &mv.PerformedBy, &reference, &notes, &created)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stock movement: %w", err)
		}
		mv.DeliveryItemID = inventory.DeliveryItemID(itemID.String)
		mv.JobPartID = inventory.JobPartID(jobPartID.String)
		mv.Reference = reference.String
		mv.Notes = notes.String
		mv.UnitCost = parseDecimal(cost)
		mv.UnitPrice = parseDecimal(price)
		mv.CreatedAt = parseTime(created)
		movements = append(movements, mv)
	}
	return movements, rows.Err()
}

// =============================================================================
// AUDIT STORE (inventory.AuditStore interface)
// =============================================================================

func (s *Store) AppendAuditRun(ctx context.Context, run inventory.AuditRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	findingsJSON, err := json.Marshal(run.Findings)
	if err != nil {
		return fmt.Errorf("failed to marshal audit findings: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_runs
		(id, started_at, completed_at, parts_checked, drift_found, findings_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, formatTime(run.StartedAt), formatTime(run.CompletedAt),
		run.PartsChecked, run.DriftFound, string(findingsJSON), formatTime(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit run: %w", err)
	}
	return nil
}

func (s *Store) ListAuditRuns(ctx context.Context, limit int) ([]inventory.AuditRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, completed_at, parts_checked, drift_found, findings_json
		FROM audit_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit runs: %w", err)
	}
	defer rows.Close()

	var runs []inventory.AuditRun
	for rows.Next() {
		var (
			run           inventory.AuditRun
			started, done string
			findingsJSON  sql.NullString
		)
		if err := rows.Scan(&run.ID, &started, &done, &run.PartsChecked, &run.DriftFound, &findingsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan audit run: %w", err)
		}
		run.StartedAt = parseTime(started)
		run.CompletedAt = parseTime(done)
		if findingsJSON.Valid && findingsJSON.String != "" {
			if err := json.Unmarshal([]byte(findingsJSON.String), &run.Findings); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit findings: %w", err)
			}
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (inventory.TxStore interface)
// =============================================================================

// WithTx executes a function within a single database transaction. The fn
// receives a Store view backed by the transaction; any error rolls the
// whole transaction back.
func (s *Store) WithTx(ctx context.Context, fn func(store inventory.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txStore is the Store view inside a transaction. No locking here: the
// parent holds the store mutex for the duration of the transaction.
type txStore struct {
	tx *sql.Tx
}

func (t *txStore) CreatePart(ctx context.Context, p inventory.Part) error {
	return createPart(ctx, t.tx, p)
}

func (t *txStore) GetPart(ctx context.Context, id inventory.PartID) (inventory.Part, error) {
	return getPart(ctx, t.tx, id)
}

func (t *txStore) GetPartByNumber(ctx context.Context, number string) (inventory.Part, error) {
	return getPartByNumber(ctx, t.tx, number)
}

func (t *txStore) ListParts(ctx context.Context) ([]inventory.Part, error) {
	return listParts(ctx, t.tx)
}

func (t *txStore) UpdatePartDetails(ctx context.Context, p inventory.Part) error {
	return updatePartDetails(ctx, t.tx, p)
}

func (t *txStore) AdjustQuantities(ctx context.Context, id inventory.PartID, adj inventory.Adjustment) (inventory.Part, error) {
	return adjustQuantities(ctx, t.tx, id, adj)
}

func (t *txStore) CreateDelivery(ctx context.Context, d inventory.Delivery) error {
	return createDelivery(ctx, t.tx, d)
}

func (t *txStore) UpdateDelivery(ctx context.Context, d inventory.Delivery) error {
	return updateDelivery(ctx, t.tx, d)
}

func (t *txStore) DeleteDelivery(ctx context.Context, id inventory.DeliveryID) error {
	return deleteDelivery(ctx, t.tx, id)
}

func (t *txStore) GetDelivery(ctx context.Context, id inventory.DeliveryID) (inventory.Delivery, error) {
	return getDelivery(ctx, t.tx, id)
}

func (t *txStore) ListDeliveries(ctx context.Context) ([]inventory.Delivery, error) {
	return listDeliveries(ctx, t.tx)
}

func (t *txStore) CreateDeliveryItem(ctx context.Context, item inventory.DeliveryItem) error {
	return createDeliveryItem(ctx, t.tx, item)
}

func (t *txStore) UpdateDeliveryItem(ctx context.Context, item inventory.DeliveryItem) error {
	return updateDeliveryItem(ctx, t.tx, item)
}

func (t *txStore) DeleteDeliveryItem(ctx context.Context, id inventory.DeliveryItemID) error {
	return deleteDeliveryItem(ctx, t.tx, id)
}

func (t *txStore) GetDeliveryItem(ctx context.Context, id inventory.DeliveryItemID) (inventory.DeliveryItem, error) {
	return getDeliveryItem(ctx, t.tx, id)
}

func (t *txStore) ListDeliveryItems(ctx context.Context, deliveryID inventory.DeliveryID) ([]inventory.DeliveryItem, error) {
	return listDeliveryItems(ctx, t.tx, deliveryID)
}

func (t *txStore) ListDeliveryItemsByPart(ctx context.Context, partID inventory.PartID) ([]inventory.DeliveryItem, error) {
	return listDeliveryItemsByPart(ctx, t.tx, partID)
}

func (t *txStore) CreateJobPart(ctx context.Context, jp inventory.JobPart) error {
	return createJobPart(ctx, t.tx, jp)
}

func (t *txStore) UpdateJobPart(ctx context.Context, jp inventory.JobPart) error {
	return updateJobPart(ctx, t.tx, jp)
}

func (t *txStore) DeleteJobPart(ctx context.Context, id inventory.JobPartID) error {
	return deleteJobPart(ctx, t.tx, id)
}

func (t *txStore) GetJobPart(ctx context.Context, id inventory.JobPartID) (inventory.JobPart, error) {
	return getJobPart(ctx, t.tx, id)
}

func (t *txStore) ListJobParts(ctx context.Context, jobID inventory.JobID) ([]inventory.JobPart, error) {
	return listJobParts(ctx, t.tx, jobID)
}

func (t *txStore) ListJobPartsByPart(ctx context.Context, partID inventory.PartID) ([]inventory.JobPart, error) {
	return listJobPartsByPart(ctx, t.tx, partID)
}

func (t *txStore) AppendMovement(ctx context.Context, mv inventory.StockMovement) error {
	return appendMovement(ctx, t.tx, mv)
}

func (t *txStore) ListMovements(ctx context.Context, partID inventory.PartID) ([]inventory.StockMovement, error) {
	return listMovements(ctx, t.tx, partID)
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
