/*
Package inventory provides the stock reconciliation and self-healing engine.

PURPOSE:
  Maintains a running stock balance derived from an append-mostly history of
  inflow/outflow movements, keeps a denormalized aggregate ("meta" record) in
  sync with that history, and repairs drift on demand.

KEY CONCEPTS IN THIS FILE (types.go):
  - Movement: One inventory-affecting event (inbound or outbound)
  - Aggregate: Cached balance for one item identity (fast reads)
  - Item: Master inventory entry owning the authoritative stock field
  - Kind: Only KindInventory movements participate in balance math

DESIGN PRINCIPLES:
  1. History is authoritative: the aggregate is a cache that may lag
  2. Precision: quantities are decimal.Decimal, never float64
  3. Repair, don't trust: Healer replays history and rewrites drift
  4. All-or-nothing: every multi-record write is a batch or a transaction

USAGE:
  healer := inventory.NewHealer(store, nil)
  res, err := healer.Heal(ctx, inventory.HealInput{
      Identity: inventory.NewIdentity("마커", "소모품"),
  })

SEE ALSO:
  - heal.go: Reconciliation engine
  - applier.go: Transactional movement applier
  - store.go: Persistence contracts
*/
package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MOVEMENT - One inflow/outflow event in the history
// =============================================================================

type MovementID string

// Kind classifies a history record. Only KindInventory counts toward stock.
type Kind string

const (
	KindInventory Kind = "inventory"
	KindProduct   Kind = "product"
	KindDivider   Kind = "divider"
)

// Direction records why a movement was written.
type Direction string

const (
	DirectionDeduct  Direction = "deduct"  // stock consumed by a business event
	DirectionRestore Direction = "restore" // consumption reversed
	DirectionAdjust  Direction = "adjust"  // manual admin correction
)

func (d Direction) Valid() bool {
	switch d {
	case DirectionDeduct, DirectionRestore, DirectionAdjust:
		return true
	}
	return false
}

// Movement is one record in the History Store.
//
// Inflow and Outflow are nullable; a null value counts as zero. RunningStock
// is the balance the record claimed when it was written and is the only field
// the Healer rewrites.
type Movement struct {
	ID           MovementID
	Name         string
	Category     string
	MasterID     string
	Kind         Kind
	Inflow       decimal.NullDecimal
	Outflow      decimal.NullDecimal
	RunningStock decimal.Decimal
	CreatedAt    Timestamp

	// Linkage
	Direction  Direction
	CustomerID string
	ReportID   string
	Note       string
}

// InflowValue returns the inflow, treating null as zero.
func (m Movement) InflowValue() decimal.Decimal {
	if !m.Inflow.Valid {
		return decimal.Zero
	}
	return m.Inflow.Decimal
}

// OutflowValue returns the outflow, treating null as zero.
func (m Movement) OutflowValue() decimal.Decimal {
	if !m.Outflow.Valid {
		return decimal.Zero
	}
	return m.Outflow.Decimal
}

// Delta is inflow minus outflow.
func (m Movement) Delta() decimal.Decimal {
	return m.InflowValue().Sub(m.OutflowValue())
}

func (m Movement) IsInventory() bool { return m.Kind == KindInventory }

// Identity returns the identity this record belongs to.
func (m Movement) Identity() Identity {
	return Identity{Name: m.Name, Category: m.Category, MasterID: m.MasterID}.Normalize()
}

// Qty wraps a decimal as a non-null movement quantity.
func Qty(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// QtyInt is Qty for integer literals.
func QtyInt(n int64) decimal.NullDecimal {
	return Qty(decimal.NewFromInt(n))
}

// =============================================================================
// AGGREGATE - Denormalized balance per identity
// =============================================================================

// Aggregate caches the balance of one identity. After a heal,
// CurrentStock == TotalInflow - TotalOutflow. Between a movement write and the
// next heal it may diverge from the history.
type Aggregate struct {
	Key          string
	Name         string
	Category     string
	CurrentStock decimal.Decimal
	TotalInflow  decimal.Decimal
	TotalOutflow decimal.Decimal
	LastHealedAt *time.Time
}

// Balanced reports whether CurrentStock equals TotalInflow - TotalOutflow.
func (a Aggregate) Balanced() bool {
	return a.CurrentStock.Equal(a.TotalInflow.Sub(a.TotalOutflow))
}

// =============================================================================
// ITEM - Master inventory entry
// =============================================================================

type ItemID string

// Item holds the authoritative stock field mutated by the Applier.
// Movements written by the Applier carry the item's ID as MasterID.
type Item struct {
	ID       ItemID
	Name     string
	Category string
	Stock    decimal.Decimal
}

func (i Item) Identity() Identity {
	return Identity{Name: i.Name, Category: i.Category, MasterID: string(i.ID)}.Normalize()
}
