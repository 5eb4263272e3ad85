/*
Package sqlite provides a SQLite-backed implementation of the inventory stores.

PURPOSE:
  Implements inventory.Store (history, aggregates, items, documents, batches,
  transactions) on SQLite. The same patterns carry over to PostgreSQL with
  minor dialect changes.

KEY TABLES:
  movements:   History of inflow/outflow records (seq preserves insertion order)
  aggregates:  Per-identity cached balances, keyed by inventory.AggregateKey
  items:       Master inventory entries holding the authoritative stock field
  documents:   JSON business documents (customers, reports) by (collection, id)

INDEXES:
  - idx_movements_identity: Identity lookups (hot path for heal and fallback)
  - idx_movements_master:   MasterID lookups
  - idx_movements_report:   Report linkage

CONCURRENCY:
  A store mutex serializes writers, and the pool is capped at one connection.
  Transactions retry on SQLITE_BUSY/SQLITE_LOCKED up to MaxAttempts.

TIMESTAMPS:
  created_at is stored as (shape, seconds, nanos) so native times, epoch
  records, and absent values round-trip without losing their shape.

USAGE:
  store, err := sqlite.New("./data/inventory.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  healer := inventory.NewHealer(store, logger)

SEE ALSO:
  - inventory/store.go: Interface definitions
  - inventory/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/crm-inventory/inventory"
)

const defaultMaxAttempts = 5

// Store implements inventory.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex

	MaxAttempts int
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per-connection, and SQLite has
	// a single writer anyway.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, MaxAttempts: defaultMaxAttempts}
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
	-- Movement history
	CREATE TABLE IF NOT EXISTS movements (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		name_key TEXT NOT NULL,
		category_key TEXT NOT NULL,
		master_id TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		inflow TEXT,
		outflow TEXT,
		running_stock TEXT NOT NULL,
		created_shape TEXT NOT NULL DEFAULT '',
		created_seconds INTEGER NOT NULL DEFAULT 0,
		created_nanos INTEGER NOT NULL DEFAULT 0,
		direction TEXT,
		customer_id TEXT,
		report_id TEXT,
		note TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_movements_identity
		ON movements(name_key, category_key, kind);
	CREATE INDEX IF NOT EXISTS idx_movements_master
		ON movements(master_id) WHERE master_id <> '';
	CREATE INDEX IF NOT EXISTS idx_movements_report
		ON movements(report_id) WHERE report_id IS NOT NULL;

	-- Aggregates (meta records)
	CREATE TABLE IF NOT EXISTS aggregates (
		key TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		current_stock TEXT NOT NULL,
		total_inflow TEXT NOT NULL,
		total_outflow TEXT NOT NULL,
		last_healed_at TEXT
	);

	-- Master inventory items
	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		stock TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Business documents
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		body TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (collection, id)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// HISTORY STORE (inventory.HistoryStore)
// =============================================================================

const movementColumns = `id, name, category, master_id, kind, inflow, outflow, running_stock,
	created_shape, created_seconds, created_nanos, direction, customer_id, report_id, note`

// Save appends a movement, or replaces the one with the same ID in place.
func (s *Store) Save(ctx context.Context, m inventory.Movement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveMovement(ctx, s.db, m)
}

func saveMovement(ctx context.Context, db execer, m inventory.Movement) error {
	if m.ID == "" {
		return errors.New("movement id is required")
	}
	id := m.Identity()
	shape, sec, nanos := m.CreatedAt.Parts()

	query := `
		INSERT INTO movements
		(id, name, category, name_key, category_key, master_id, kind, inflow, outflow, running_stock,
		 created_shape, created_seconds, created_nanos, direction, customer_id, report_id, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			name_key = excluded.name_key,
			category_key = excluded.category_key,
			master_id = excluded.master_id,
			kind = excluded.kind,
			inflow = excluded.inflow,
			outflow = excluded.outflow,
			running_stock = excluded.running_stock,
			created_shape = excluded.created_shape,
			created_seconds = excluded.created_seconds,
			created_nanos = excluded.created_nanos,
			direction = excluded.direction,
			customer_id = excluded.customer_id,
			report_id = excluded.report_id,
			note = excluded.note
	`
	_, err := db.ExecContext(ctx, query,
		m.ID,
		m.Name,
		m.Category,
		id.Name,
		id.Category,
		id.MasterID,
		m.Kind,
		nullDecimal(m.Inflow),
		nullDecimal(m.Outflow),
		m.RunningStock.String(),
		shape,
		sec,
		nanos,
		nullString(string(m.Direction)),
		nullString(m.CustomerID),
		nullString(m.ReportID),
		nullString(m.Note),
	)
	if err != nil {
		return fmt.Errorf("failed to save movement: %w", err)
	}
	return nil
}

// Query returns matching movements in insertion order.
func (s *Store) Query(ctx context.Context, f inventory.Filter) ([]inventory.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if f.Identity != nil {
		id := f.Identity.Normalize()
		if id.MasterID != "" {
			where = append(where, "(master_id = ? OR (name_key = ? AND category_key = ?))")
			args = append(args, id.MasterID, id.Name, id.Category)
		} else {
			where = append(where, "name_key = ? AND category_key = ?")
			args = append(args, id.Name, id.Category)
		}
	}
	if len(f.Kinds) > 0 {
		marks := make([]string, len(f.Kinds))
		for i, k := range f.Kinds {
			marks[i] = "?"
			args = append(args, string(k))
		}
		where = append(where, "kind IN ("+strings.Join(marks, ", ")+")")
	}

	query := "SELECT " + movementColumns + " FROM movements"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq ASC"

	all, err := queryMovements(ctx, s.db, query, args...)
	if err != nil {
		return nil, err
	}

	// The SQL prefilter is coarse for MasterID identities; Accepts is exact.
	out := all[:0]
	for _, m := range all {
		if f.Accepts(m) {
			out = append(out, m)
		}
	}
	return out, nil
}

// Delete removes one movement. Administrative reset only.
func (s *Store) Delete(ctx context.Context, id inventory.MovementID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM movements WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete movement: %w", err)
	}
	return nil
}

// Identities lists distinct inventory-kind (name, category) pairs.
func (s *Store) Identities(ctx context.Context) ([]inventory.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT name_key, category_key
		FROM movements
		WHERE kind = ? AND name_key <> ''
		GROUP BY name_key, category_key
		ORDER BY MIN(seq)
	`, string(inventory.KindInventory))
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	defer rows.Close()

	var ids []inventory.Identity
	for rows.Next() {
		var name, category string
		if err := rows.Scan(&name, &category); err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		ids = append(ids, inventory.NewIdentity(name, category))
	}
	return ids, rows.Err()
}

func queryMovements(ctx context.Context, db queryer, query string, args ...any) ([]inventory.Movement, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()

	var movements []inventory.Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func scanMovement(rows *sql.Rows) (inventory.Movement, error) {
	var (
		m            inventory.Movement
		inflow       sql.NullString
		outflow      sql.NullString
		runningStock string
		shape        string
		seconds      int64
		nanos        int64
		direction    sql.NullString
		customerID   sql.NullString
		reportID     sql.NullString
		note         sql.NullString
	)

	err := rows.Scan(
		&m.ID, &m.Name, &m.Category, &m.MasterID, &m.Kind,
		&inflow, &outflow, &runningStock,
		&shape, &seconds, &nanos,
		&direction, &customerID, &reportID, &note,
	)
	if err != nil {
		return m, fmt.Errorf("failed to scan movement: %w", err)
	}

	m.Inflow = parseNullDecimal(inflow)
	m.Outflow = parseNullDecimal(outflow)
	m.RunningStock = parseDecimal(runningStock)
	m.CreatedAt = inventory.TimestampFromParts(shape, seconds, nanos)
	m.Direction = inventory.Direction(direction.String)
	m.CustomerID = customerID.String
	m.ReportID = reportID.String
	m.Note = note.String
	return m, nil
}

// =============================================================================
// AGGREGATE STORE (inventory.AggregateStore)
// =============================================================================

func (s *Store) GetAggregate(ctx context.Context, key string) (*inventory.Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAggregate(ctx, s.db, key)
}

func getAggregate(ctx context.Context, db queryer, key string) (*inventory.Aggregate, error) {
	var (
		a                                   inventory.Aggregate
		current, totalInflow, totalOutflow string
		lastHealed                          sql.NullString
	)
	err := db.QueryRowContext(ctx, `
		SELECT key, name, category, current_stock, total_inflow, total_outflow, last_healed_at
		FROM aggregates WHERE key = ?
	`, key).Scan(&a.Key, &a.Name, &a.Category, &current, &totalInflow, &totalOutflow, &lastHealed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get aggregate: %w", err)
	}

	a.CurrentStock = parseDecimal(current)
	a.TotalInflow = parseDecimal(totalInflow)
	a.TotalOutflow = parseDecimal(totalOutflow)
	if lastHealed.Valid {
		if t, err := time.Parse(time.RFC3339Nano, lastHealed.String); err == nil {
			a.LastHealedAt = &t
		}
	}
	return &a, nil
}

func (s *Store) UpsertAggregate(ctx context.Context, a inventory.Aggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertAggregate(ctx, s.db, a)
}

func upsertAggregate(ctx context.Context, db execer, a inventory.Aggregate) error {
	var lastHealed sql.NullString
	if a.LastHealedAt != nil {
		lastHealed = sql.NullString{String: a.LastHealedAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO aggregates (key, name, category, current_stock, total_inflow, total_outflow, last_healed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			current_stock = excluded.current_stock,
			total_inflow = excluded.total_inflow,
			total_outflow = excluded.total_outflow,
			last_healed_at = excluded.last_healed_at
	`, a.Key, a.Name, a.Category,
		a.CurrentStock.String(), a.TotalInflow.String(), a.TotalOutflow.String(), lastHealed)
	if err != nil {
		return fmt.Errorf("failed to upsert aggregate: %w", err)
	}
	return nil
}

// =============================================================================
// ITEMS & DOCUMENTS
// =============================================================================

func (s *Store) GetItem(ctx context.Context, id inventory.ItemID) (*inventory.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getItem(ctx, s.db, id)
}

func getItem(ctx context.Context, db queryer, id inventory.ItemID) (*inventory.Item, error) {
	var (
		it    inventory.Item
		stock string
	)
	err := db.QueryRowContext(ctx,
		"SELECT id, name, category, stock FROM items WHERE id = ?", id,
	).Scan(&it.ID, &it.Name, &it.Category, &stock)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	it.Stock = parseDecimal(stock)
	return &it, nil
}

func (s *Store) SaveItem(ctx context.Context, item inventory.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return putItem(ctx, s.db, item)
}

func putItem(ctx context.Context, db execer, item inventory.Item) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO items (id, name, category, stock, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			stock = excluded.stock,
			updated_at = excluded.updated_at
	`, item.ID, item.Name, item.Category, item.Stock.String(), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save item: %w", err)
	}
	return nil
}

func (s *Store) ListItems(ctx context.Context) ([]inventory.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, category, stock FROM items ORDER BY category, name")
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []inventory.Item
	for rows.Next() {
		var (
			it    inventory.Item
			stock string
		)
		if err := rows.Scan(&it.ID, &it.Name, &it.Category, &stock); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		it.Stock = parseDecimal(stock)
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *Store) GetDocument(ctx context.Context, ref inventory.DocRef, dst any) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getDocument(ctx, s.db, ref, dst)
}

func getDocument(ctx context.Context, db queryer, ref inventory.DocRef, dst any) (bool, error) {
	var body string
	err := db.QueryRowContext(ctx,
		"SELECT body FROM documents WHERE collection = ? AND id = ?", ref.Collection, ref.ID,
	).Scan(&body)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get document %s: %w", ref, err)
	}
	if err := json.Unmarshal([]byte(body), dst); err != nil {
		return true, fmt.Errorf("failed to decode document %s: %w", ref, err)
	}
	return true, nil
}

// =============================================================================
// BATCH (inventory.Batcher)
// =============================================================================

type batch struct {
	store      *Store
	stocks     map[inventory.MovementID]decimal.Decimal
	order      []inventory.MovementID
	aggregates []inventory.Aggregate
	committed  bool
}

func (s *Store) NewBatch() inventory.Batch {
	return &batch{store: s, stocks: make(map[inventory.MovementID]decimal.Decimal)}
}

func (b *batch) SetRunningStock(id inventory.MovementID, stock decimal.Decimal) {
	if _, ok := b.stocks[id]; !ok {
		b.order = append(b.order, id)
	}
	b.stocks[id] = stock
}

func (b *batch) UpsertAggregate(a inventory.Aggregate) {
	b.aggregates = append(b.aggregates, a)
}

// Commit applies every write in one SQL transaction. A missing movement
// fails the whole batch.
func (b *batch) Commit(ctx context.Context) error {
	if b.committed {
		return inventory.ErrBatchCommitted
	}
	s := b.store
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin batch: %w", err)
	}
	defer sqlTx.Rollback()

	for _, id := range b.order {
		res, err := sqlTx.ExecContext(ctx,
			"UPDATE movements SET running_stock = ? WHERE id = ?", b.stocks[id].String(), id)
		if err != nil {
			return fmt.Errorf("failed to update running stock: %w", err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return fmt.Errorf("batch commit: movement %s: %w", id, inventory.ErrDocumentNotFound)
		}
	}
	for _, a := range b.aggregates {
		if err := upsertAggregate(ctx, sqlTx, a); err != nil {
			return err
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	b.committed = true
	return nil
}

// =============================================================================
// TRANSACTIONS (inventory.TxStore)
// =============================================================================

// RunTransaction executes fn within a database transaction. Busy/locked
// errors re-run fn; any other error rolls back and is returned.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx inventory.Tx) error) error {
	attempts := s.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := s.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !isBusyError(err) {
			return err
		}
		last = fmt.Errorf("%w: %w", inventory.ErrConcurrentModification, err)
		if err := ctx.Err(); err != nil {
			return err
		}
		time.Sleep(time.Duration(attempt) * 10 * time.Millisecond)
	}
	return &inventory.RetriesExhaustedError{Attempts: attempts, Last: last}
}

func (s *Store) runOnce(ctx context.Context, fn func(ctx context.Context, tx inventory.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(ctx, &txStore{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", inventory.ErrTransactionFailed, err)
	}
	return nil
}

// txStore reads and writes through one *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetItem(ctx context.Context, id inventory.ItemID) (*inventory.Item, error) {
	return getItem(ctx, ts.tx, id)
}

func (ts *txStore) GetAggregate(ctx context.Context, key string) (*inventory.Aggregate, error) {
	return getAggregate(ctx, ts.tx, key)
}

func (ts *txStore) GetDocument(ctx context.Context, ref inventory.DocRef, dst any) (bool, error) {
	return getDocument(ctx, ts.tx, ref, dst)
}

func (ts *txStore) PutItem(ctx context.Context, item inventory.Item) error {
	return putItem(ctx, ts.tx, item)
}

func (ts *txStore) AppendMovement(ctx context.Context, m inventory.Movement) error {
	return saveMovement(ctx, ts.tx, m)
}

func (ts *txStore) PutAggregate(ctx context.Context, a inventory.Aggregate) error {
	return upsertAggregate(ctx, ts.tx, a)
}

func (ts *txStore) PutDocument(ctx context.Context, ref inventory.DocRef, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", ref, err)
	}
	_, err = ts.tx.ExecContext(ctx, `
		INSERT INTO documents (collection, id, body, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			body = excluded.body,
			updated_at = excluded.updated_at
	`, ref.Collection, ref.ID, string(body), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to put document %s: %w", ref, err)
	}
	return nil
}

func (ts *txStore) DeleteDocument(ctx context.Context, ref inventory.DocRef) error {
	_, err := ts.tx.ExecContext(ctx,
		"DELETE FROM documents WHERE collection = ? AND id = ?", ref.Collection, ref.ID)
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", ref, err)
	}
	return nil
}

// =============================================================================
// ADMIN
// =============================================================================

// ResetInventory zeroes every aggregate and item stock and deletes
// inventory-kind movements in one SQL transaction.
func (s *Store) ResetInventory(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin reset: %w", err)
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx, `
		UPDATE aggregates
		SET current_stock = '0', total_inflow = '0', total_outflow = '0', last_healed_at = NULL
	`); err != nil {
		return 0, fmt.Errorf("failed to reset aggregates: %w", err)
	}

	res, err := sqlTx.ExecContext(ctx, "DELETE FROM movements WHERE kind = ?", string(inventory.KindInventory))
	if err != nil {
		return 0, fmt.Errorf("failed to delete movements: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted movements: %w", err)
	}

	if _, err := sqlTx.ExecContext(ctx, "UPDATE items SET stock = '0'"); err != nil {
		return 0, fmt.Errorf("failed to reset item stock: %w", err)
	}

	if err := sqlTx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: reset: %w", inventory.ErrTransactionFailed, err)
	}
	return deleted, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDecimal(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Decimal.String(), Valid: true}
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseNullDecimal(s sql.NullString) decimal.NullDecimal {
	if !s.Valid || s.String == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

func isBusyError(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
}
