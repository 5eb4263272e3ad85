// Package store provides in-memory implementations of the inventory stores.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/warp/crm-inventory/inventory"
)

// DefaultMaxAttempts matches the retry budget of hosted document stores.
const DefaultMaxAttempts = 5

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements inventory.Store. Transactions are optimistic: every
// document read is versioned, and a commit whose read set changed is retried.
type Memory struct {
	mu sync.RWMutex

	movements  []inventory.Movement
	movementAt map[inventory.MovementID]int
	aggregates map[string]inventory.Aggregate
	items      map[inventory.ItemID]inventory.Item
	documents  map[inventory.DocRef][]byte

	// versions of every transactionally readable record, keyed by path
	versions map[string]int64

	MaxAttempts int

	// commitHook, when set, runs at the start of every commit (batch or
	// transaction). A non-nil error aborts the commit.
	commitHook func() error
}

func NewMemory() *Memory {
	return &Memory{
		movementAt:  make(map[inventory.MovementID]int),
		aggregates:  make(map[string]inventory.Aggregate),
		items:       make(map[inventory.ItemID]inventory.Item),
		documents:   make(map[inventory.DocRef][]byte),
		versions:    make(map[string]int64),
		MaxAttempts: DefaultMaxAttempts,
	}
}

// SetCommitHook installs a fault-injection hook run before each commit.
func (m *Memory) SetCommitHook(fn func() error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitHook = fn
}

func itemPath(id inventory.ItemID) string { return "items/" + string(id) }

func aggregatePath(key string) string { return "aggregates/" + key }

func documentPath(ref inventory.DocRef) string { return "documents/" + ref.String() }

func (m *Memory) bumpLocked(path string) { m.versions[path]++ }

// =============================================================================
// HISTORY
// =============================================================================

func (m *Memory) Query(_ context.Context, f inventory.Filter) ([]inventory.Movement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []inventory.Movement
	for _, mv := range m.movements {
		if f.Accepts(mv) {
			result = append(result, mv)
		}
	}
	return result, nil
}

func (m *Memory) Save(_ context.Context, mv inventory.Movement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked(mv)
}

func (m *Memory) saveLocked(mv inventory.Movement) error {
	if mv.ID == "" {
		return errors.New("movement id is required")
	}
	if i, ok := m.movementAt[mv.ID]; ok {
		m.movements[i] = mv
		return nil
	}
	m.movementAt[mv.ID] = len(m.movements)
	m.movements = append(m.movements, mv)
	return nil
}

func (m *Memory) Delete(_ context.Context, id inventory.MovementID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.movementAt[id]
	if !ok {
		return nil
	}
	m.movements = append(m.movements[:i], m.movements[i+1:]...)
	delete(m.movementAt, id)
	for j := i; j < len(m.movements); j++ {
		m.movementAt[m.movements[j].ID] = j
	}
	return nil
}

func (m *Memory) Identities(_ context.Context) ([]inventory.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var ids []inventory.Identity
	for _, mv := range m.movements {
		if !mv.IsInventory() {
			continue
		}
		id := inventory.NewIdentity(mv.Name, mv.Category)
		if id.Name == "" {
			continue
		}
		k := id.AggregateKey()
		if seen[k] {
			continue
		}
		seen[k] = true
		ids = append(ids, id)
	}
	return ids, nil
}

// =============================================================================
// AGGREGATES
// =============================================================================

func (m *Memory) GetAggregate(_ context.Context, key string) (*inventory.Aggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.aggregates[key]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *Memory) UpsertAggregate(_ context.Context, a inventory.Aggregate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aggregates[a.Key] = a
	m.bumpLocked(aggregatePath(a.Key))
	return nil
}

// =============================================================================
// RESET
// =============================================================================

// ResetInventory zeroes aggregates and items and drops inventory-kind history
// under one lock. A failing commit hook leaves everything untouched.
func (m *Memory) ResetInventory(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.commitHook != nil {
		if err := m.commitHook(); err != nil {
			return 0, fmt.Errorf("%w: %w", inventory.ErrTransactionFailed, err)
		}
	}

	for k, a := range m.aggregates {
		a.CurrentStock = decimal.Zero
		a.TotalInflow = decimal.Zero
		a.TotalOutflow = decimal.Zero
		a.LastHealedAt = nil
		m.aggregates[k] = a
		m.bumpLocked(aggregatePath(k))
	}

	kept := m.movements[:0]
	var deleted int64
	for _, mv := range m.movements {
		if mv.IsInventory() {
			deleted++
			continue
		}
		kept = append(kept, mv)
	}
	m.movements = kept
	m.movementAt = make(map[inventory.MovementID]int, len(kept))
	for i, mv := range kept {
		m.movementAt[mv.ID] = i
	}

	for id, it := range m.items {
		it.Stock = decimal.Zero
		m.items[id] = it
		m.bumpLocked(itemPath(id))
	}
	return deleted, nil
}

// =============================================================================
// ITEMS & DOCUMENTS
// =============================================================================

func (m *Memory) GetItem(_ context.Context, id inventory.ItemID) (*inventory.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	return &it, nil
}

func (m *Memory) SaveItem(_ context.Context, item inventory.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = item
	m.bumpLocked(itemPath(item.ID))
	return nil
}

func (m *Memory) ListItems(_ context.Context) ([]inventory.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]inventory.Item, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, it)
	}
	return out, nil
}

func (m *Memory) GetDocument(_ context.Context, ref inventory.DocRef, dst any) (bool, error) {
	m.mu.RLock()
	body, ok := m.documents[ref]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(body, dst)
}

// =============================================================================
// BATCH
// =============================================================================

type memBatch struct {
	parent     *Memory
	stocks     []stockUpdate
	aggregates []inventory.Aggregate
	committed  bool
}

type stockUpdate struct {
	id    inventory.MovementID
	stock decimal.Decimal
}

func (m *Memory) NewBatch() inventory.Batch {
	return &memBatch{parent: m}
}

func (b *memBatch) SetRunningStock(id inventory.MovementID, stock decimal.Decimal) {
	b.stocks = append(b.stocks, stockUpdate{id: id, stock: stock})
}

func (b *memBatch) UpsertAggregate(a inventory.Aggregate) {
	b.aggregates = append(b.aggregates, a)
}

// Commit validates every write before applying any of them.
func (b *memBatch) Commit(_ context.Context) error {
	if b.committed {
		return inventory.ErrBatchCommitted
	}
	m := b.parent
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.commitHook != nil {
		if err := m.commitHook(); err != nil {
			return fmt.Errorf("batch commit: %w", err)
		}
	}
	for _, u := range b.stocks {
		if _, ok := m.movementAt[u.id]; !ok {
			return fmt.Errorf("batch commit: movement %s: %w", u.id, inventory.ErrDocumentNotFound)
		}
	}

	for _, u := range b.stocks {
		m.movements[m.movementAt[u.id]].RunningStock = u.stock
	}
	for _, a := range b.aggregates {
		m.aggregates[a.Key] = a
		m.bumpLocked(aggregatePath(a.Key))
	}
	b.committed = true
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// RunTransaction executes fn optimistically. Reads record versions; writes are
// buffered. At commit, a changed read set discards the writes and re-runs fn.
func (m *Memory) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx inventory.Tx) error) error {
	attempts := m.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx := &memTx{parent: m, reads: make(map[string]int64)}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		err := m.commit(tx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, inventory.ErrConcurrentModification) {
			return fmt.Errorf("%w: %w", inventory.ErrTransactionFailed, err)
		}
		last = err
	}
	return &inventory.RetriesExhaustedError{Attempts: attempts, Last: last}
}

func (m *Memory) commit(tx *memTx) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.commitHook != nil {
		if err := m.commitHook(); err != nil {
			return err
		}
	}
	for path, v := range tx.reads {
		if m.versions[path] != v {
			return fmt.Errorf("%s: %w", path, inventory.ErrConcurrentModification)
		}
	}
	for _, w := range tx.writes {
		if err := w(m); err != nil {
			// Writes are validated before buffering; this is unreachable for
			// the writes memTx produces.
			return err
		}
	}
	return nil
}

type memTx struct {
	parent *Memory
	reads  map[string]int64
	writes []func(*Memory) error
}

func (t *memTx) observe(path string) {
	if _, ok := t.reads[path]; !ok {
		t.reads[path] = t.parent.versions[path]
	}
}

func (t *memTx) GetItem(_ context.Context, id inventory.ItemID) (*inventory.Item, error) {
	m := t.parent
	m.mu.RLock()
	defer m.mu.RUnlock()
	t.observe(itemPath(id))
	it, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	return &it, nil
}

func (t *memTx) GetAggregate(_ context.Context, key string) (*inventory.Aggregate, error) {
	m := t.parent
	m.mu.RLock()
	defer m.mu.RUnlock()
	t.observe(aggregatePath(key))
	a, ok := m.aggregates[key]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (t *memTx) GetDocument(_ context.Context, ref inventory.DocRef, dst any) (bool, error) {
	m := t.parent
	m.mu.RLock()
	t.observe(documentPath(ref))
	body, ok := m.documents[ref]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(body, dst)
}

func (t *memTx) PutItem(_ context.Context, item inventory.Item) error {
	t.writes = append(t.writes, func(m *Memory) error {
		m.items[item.ID] = item
		m.bumpLocked(itemPath(item.ID))
		return nil
	})
	return nil
}

func (t *memTx) AppendMovement(_ context.Context, mv inventory.Movement) error {
	if mv.ID == "" {
		return errors.New("movement id is required")
	}
	t.writes = append(t.writes, func(m *Memory) error {
		return m.saveLocked(mv)
	})
	return nil
}

func (t *memTx) PutAggregate(_ context.Context, a inventory.Aggregate) error {
	t.writes = append(t.writes, func(m *Memory) error {
		m.aggregates[a.Key] = a
		m.bumpLocked(aggregatePath(a.Key))
		return nil
	})
	return nil
}

func (t *memTx) PutDocument(_ context.Context, ref inventory.DocRef, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ref, err)
	}
	t.writes = append(t.writes, func(m *Memory) error {
		m.documents[ref] = body
		m.bumpLocked(documentPath(ref))
		return nil
	})
	return nil
}

func (t *memTx) DeleteDocument(_ context.Context, ref inventory.DocRef) error {
	t.writes = append(t.writes, func(m *Memory) error {
		delete(m.documents, ref)
		m.bumpLocked(documentPath(ref))
		return nil
	})
	return nil
}
