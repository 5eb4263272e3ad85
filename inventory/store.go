/*
store.go - Persistence contracts for history, aggregates, items, and documents

PURPOSE:
  Defines the interface between the engine and the backing document store.
  Any store with atomic multi-key transactions and all-or-nothing batches
  satisfies it.

KEY INTERFACES:
  HistoryStore:   Movement records (append, correct, administrative delete)
  AggregateStore: Per-identity cached balances
  Batcher:        All-or-nothing multi-write commits (used by the Healer)
  TxStore:        Read-then-write transactions with retry (used by the Applier)
  Resetter:       Atomic administrative reset

MUTATION DISCIPLINE:
  - Movements are appended, and corrected in place only by the Healer.
  - Movements are deleted only by an administrative reset.
  - Aggregates are fully replaced on every heal.

IMPLEMENTATIONS:
  - inventory/store/memory.go: In-memory, optimistic transactions
  - store/sqlite/sqlite.go: SQLite via database/sql

SEE ALSO:
  - tx.go: Read-before-write guard applied to every transaction
*/
package inventory

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// HISTORY STORE
// =============================================================================

// Filter selects movements. A nil Identity selects every identity; an empty
// Kinds slice selects every kind.
type Filter struct {
	Identity *Identity
	Kinds    []Kind
}

// Accepts reports whether m passes the filter.
func (f Filter) Accepts(m Movement) bool {
	if f.Identity != nil && !f.Identity.Matches(m) {
		return false
	}
	if len(f.Kinds) == 0 {
		return true
	}
	for _, k := range f.Kinds {
		if m.Kind == k {
			return true
		}
	}
	return false
}

// InventoryOf selects inventory-kind movements of one identity.
func InventoryOf(id Identity) Filter {
	id = id.Normalize()
	return Filter{Identity: &id, Kinds: []Kind{KindInventory}}
}

type HistoryStore interface {
	// Query returns matching movements in insertion order.
	Query(ctx context.Context, f Filter) ([]Movement, error)

	// Save appends m, or replaces the stored record with the same ID.
	Save(ctx context.Context, m Movement) error

	// Delete removes a movement. Administrative reset only.
	Delete(ctx context.Context, id MovementID) error

	// Identities lists the distinct (name, category) pairs of inventory-kind
	// movements.
	Identities(ctx context.Context) ([]Identity, error)
}

// =============================================================================
// AGGREGATE STORE
// =============================================================================

type AggregateStore interface {
	// GetAggregate returns nil, nil when no aggregate exists for key.
	GetAggregate(ctx context.Context, key string) (*Aggregate, error)

	// UpsertAggregate creates or replaces the aggregate at a.Key.
	UpsertAggregate(ctx context.Context, a Aggregate) error
}

// =============================================================================
// BATCH - All-or-nothing multi-write
// =============================================================================

// Batch buffers writes until Commit. Either every write is durable after
// Commit returns nil, or none is.
type Batch interface {
	SetRunningStock(id MovementID, stock decimal.Decimal)
	UpsertAggregate(a Aggregate)
	Commit(ctx context.Context) error
}

type Batcher interface {
	NewBatch() Batch
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// DocRef addresses a business document (customer, report) stored as JSON.
type DocRef struct {
	Collection string
	ID         string
}

func (r DocRef) String() string { return r.Collection + "/" + r.ID }

// Tx is the handle passed to a transaction function. Reads observe a
// consistent snapshot; writes become visible only on commit.
type Tx interface {
	// Reads. GetItem and GetAggregate return nil, nil when absent.
	GetItem(ctx context.Context, id ItemID) (*Item, error)
	GetAggregate(ctx context.Context, key string) (*Aggregate, error)
	GetDocument(ctx context.Context, ref DocRef, dst any) (bool, error)

	// Writes.
	PutItem(ctx context.Context, item Item) error
	AppendMovement(ctx context.Context, m Movement) error
	PutAggregate(ctx context.Context, a Aggregate) error
	PutDocument(ctx context.Context, ref DocRef, v any) error
	DeleteDocument(ctx context.Context, ref DocRef) error
}

// TxStore runs fn atomically. On a conflicting concurrent write the store
// re-runs fn from scratch; when retries are exhausted it returns an error
// wrapping ErrTransactionFailed. An error returned by fn aborts without retry.
type TxStore interface {
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// =============================================================================
// ITEMS & DOCUMENTS - Non-transactional access for collaborators
// =============================================================================

type ItemStore interface {
	GetItem(ctx context.Context, id ItemID) (*Item, error)
	SaveItem(ctx context.Context, item Item) error
	ListItems(ctx context.Context) ([]Item, error)
}

type DocumentStore interface {
	GetDocument(ctx context.Context, ref DocRef, dst any) (bool, error)
}

// =============================================================================
// RESET
// =============================================================================

// Resetter wipes inventory state in one commit: every aggregate is zeroed with
// LastHealedAt cleared, every inventory-kind movement is deleted, and every
// item's stock is set to zero. Other kinds are kept. Either all of it happens
// or none does, so a reader never sees zeroed aggregates next to old history.
type Resetter interface {
	ResetInventory(ctx context.Context) (deletedMovements int64, err error)
}

// Store is everything a full backend provides.
type Store interface {
	HistoryStore
	AggregateStore
	Batcher
	TxStore
	ItemStore
	DocumentStore
	Resetter
}
