/*
applier.go - Transactional movement applier

PURPOSE:
  Entry point for business events that move stock: a report consuming parts,
  a customer registration consuming stock, a deleted report giving parts back.
  The stock adjustment and the business write commit together or not at all.

TRANSACTION SHAPE:
  Read phase (all reads, nothing written yet):
    1. Operation.Read: business reads; may contribute lines (e.g. the parts
       recorded on a report that is about to be deleted)
    2. Every affected item
    3. Every affected aggregate
  Write phase:
    4. Per item: new stock, one movement record, aggregate update
    5. Operation.Write: business writes (report, customer step, deletion)

  Reads after writes fail with ErrReadAfterWrite (see tx.go).

FAILURE SEMANTICS:
  Conflicting concurrent commits are retried by the store; fn is re-run from
  scratch each attempt. Callers observe full success or an error with no
  partial effects.

OPENING STOCK:
  New items are created through OpenItem, which records the opening stock as
  an inflow movement. A missing aggregate therefore starts at zero: the
  history is the only source of the balance.

SEE ALSO:
  - crm/service.go: Report submission and deletion
  - heal.go: Repairs any drift between item stock, aggregate, and history
*/
package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Line is one item and the quantity to move.
type Line struct {
	ItemID   ItemID
	Quantity decimal.Decimal
}

// Operation describes one business event.
type Operation struct {
	Direction  Direction
	Lines      []Line
	CustomerID string
	ReportID   string
	Note       string

	// Read runs first inside the transaction. Lines it returns are applied
	// in addition to Lines.
	Read func(ctx context.Context, tx Tx) ([]Line, error)

	// Write runs after every stock write, inside the same transaction.
	Write func(ctx context.Context, tx Tx) error
}

type ApplyResult struct {
	Items     []Item
	Movements []Movement
}

// Applier runs Operations against a TxStore.
type Applier struct {
	Store  TxStore
	Logger *logrus.Logger
	Now    Clock
	NewID  func() MovementID
}

func NewApplier(store TxStore, logger *logrus.Logger) *Applier {
	return &Applier{
		Store:  store,
		Logger: orDiscard(logger),
		Now:    time.Now,
		NewID:  func() MovementID { return MovementID(uuid.NewString()) },
	}
}

// Apply deducts or restores stock for op.Lines and runs the business write,
// atomically. DirectionDeduct subtracts, DirectionRestore adds.
func (a *Applier) Apply(ctx context.Context, op Operation) (*ApplyResult, error) {
	if op.Direction != DirectionDeduct && op.Direction != DirectionRestore {
		return nil, fmt.Errorf("apply: %w: %q", ErrInvalidDirection, op.Direction)
	}
	if _, err := mergeLines(op.Lines); err != nil {
		return nil, fmt.Errorf("apply: %w", err)
	}

	var result *ApplyResult
	err := a.Store.RunTransaction(ctx, func(ctx context.Context, raw Tx) error {
		res, err := a.run(ctx, Guard(raw), op)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	orDiscard(a.Logger).WithFields(logrus.Fields{
		"direction":   op.Direction,
		"customer_id": op.CustomerID,
		"report_id":   op.ReportID,
		"lines":       len(result.Movements),
	}).Info("apply: committed")
	return result, nil
}

// Reverse is Apply with DirectionRestore: the deletion path of a report that
// consumed stock. op.Write typically deletes the report.
func (a *Applier) Reverse(ctx context.Context, op Operation) (*ApplyResult, error) {
	op.Direction = DirectionRestore
	return a.Apply(ctx, op)
}

type plannedItem struct {
	item  Item
	qty   decimal.Decimal
	after decimal.Decimal
}

func (a *Applier) run(ctx context.Context, tx Tx, op Operation) (*ApplyResult, error) {
	// ---- read phase ----
	lines := op.Lines
	if op.Read != nil {
		extra, err := op.Read(ctx, tx)
		if err != nil {
			return nil, err
		}
		lines = append(append([]Line(nil), op.Lines...), extra...)
	}
	merged, err := mergeLines(lines)
	if err != nil {
		return nil, err
	}

	planned := make([]plannedItem, 0, len(merged))
	for _, l := range merged {
		item, err := tx.GetItem(ctx, l.ItemID)
		if err != nil {
			return nil, fmt.Errorf("read item %s: %w", l.ItemID, err)
		}
		if item == nil {
			return nil, &ItemNotFoundError{ItemID: l.ItemID}
		}
		planned = append(planned, plannedItem{item: *item, qty: l.Quantity})
	}

	aggregates := make(map[string]*Aggregate)
	var aggOrder []string
	for _, p := range planned {
		key := p.item.Identity().AggregateKey()
		if _, seen := aggregates[key]; seen {
			continue
		}
		agg, err := tx.GetAggregate(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("read aggregate %s: %w", key, err)
		}
		if agg == nil {
			agg = emptyAggregate(p.item.Identity())
		}
		aggregates[key] = agg
		aggOrder = append(aggOrder, key)
	}

	// ---- write phase ----
	now := a.now()
	result := &ApplyResult{}
	for i := range planned {
		p := &planned[i]
		id := p.item.Identity()
		m := Movement{
			ID:         a.newID(),
			Name:       id.Name,
			Category:   id.Category,
			MasterID:   string(p.item.ID),
			Kind:       KindInventory,
			CreatedAt:  NativeTime(now),
			Direction:  op.Direction,
			CustomerID: op.CustomerID,
			ReportID:   op.ReportID,
			Note:       op.Note,
		}
		agg := aggregates[id.AggregateKey()]
		if op.Direction == DirectionDeduct {
			p.after = p.item.Stock.Sub(p.qty)
			m.Outflow = Qty(p.qty)
			agg.TotalOutflow = agg.TotalOutflow.Add(p.qty)
			agg.CurrentStock = agg.CurrentStock.Sub(p.qty)
		} else {
			p.after = p.item.Stock.Add(p.qty)
			m.Inflow = Qty(p.qty)
			agg.TotalInflow = agg.TotalInflow.Add(p.qty)
			agg.CurrentStock = agg.CurrentStock.Add(p.qty)
		}
		m.RunningStock = p.after

		updated := p.item
		updated.Stock = p.after
		if err := tx.PutItem(ctx, updated); err != nil {
			return nil, fmt.Errorf("write item %s: %w", updated.ID, err)
		}
		if err := tx.AppendMovement(ctx, m); err != nil {
			return nil, fmt.Errorf("append movement for %s: %w", updated.ID, err)
		}
		result.Items = append(result.Items, updated)
		result.Movements = append(result.Movements, m)
	}
	for _, key := range aggOrder {
		if err := tx.PutAggregate(ctx, *aggregates[key]); err != nil {
			return nil, fmt.Errorf("write aggregate %s: %w", key, err)
		}
	}

	if op.Write != nil {
		if err := op.Write(ctx, tx); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// OpenItem creates item and records its opening stock as an inflow movement,
// with the aggregate update, in one transaction. An item's stock is only ever
// set this way or by movements, so replaying the history reproduces it.
func (a *Applier) OpenItem(ctx context.Context, item Item, note string) (*ApplyResult, error) {
	if item.ID == "" {
		return nil, fmt.Errorf("open item: %w: empty item id", ErrInvalidQuantity)
	}
	if item.Stock.IsNegative() {
		return nil, fmt.Errorf("open item %s: %w: opening stock %s", item.ID, ErrInvalidQuantity, item.Stock)
	}
	id := item.Identity()
	if id.Name == "" {
		return nil, fmt.Errorf("open item %s: %w: name is required", item.ID, ErrInvalidIdentity)
	}
	item.Name, item.Category = id.Name, id.Category

	var result *ApplyResult
	err := a.Store.RunTransaction(ctx, func(ctx context.Context, raw Tx) error {
		tx := Guard(raw)
		existing, err := tx.GetItem(ctx, item.ID)
		if err != nil {
			return fmt.Errorf("read item %s: %w", item.ID, err)
		}
		if existing != nil {
			return fmt.Errorf("open item %s: %w", item.ID, ErrItemExists)
		}
		key := id.AggregateKey()
		agg, err := tx.GetAggregate(ctx, key)
		if err != nil {
			return fmt.Errorf("read aggregate %s: %w", key, err)
		}
		if agg == nil {
			agg = emptyAggregate(id)
		}

		res := &ApplyResult{Items: []Item{item}}
		if err := tx.PutItem(ctx, item); err != nil {
			return fmt.Errorf("write item %s: %w", item.ID, err)
		}
		if item.Stock.IsPositive() {
			agg.TotalInflow = agg.TotalInflow.Add(item.Stock)
			agg.CurrentStock = agg.CurrentStock.Add(item.Stock)
			m := Movement{
				ID:           a.newID(),
				Name:         id.Name,
				Category:     id.Category,
				MasterID:     string(item.ID),
				Kind:         KindInventory,
				Inflow:       Qty(item.Stock),
				RunningStock: agg.CurrentStock,
				CreatedAt:    NativeTime(a.now()),
				Direction:    DirectionAdjust,
				Note:         note,
			}
			if err := tx.AppendMovement(ctx, m); err != nil {
				return fmt.Errorf("append opening movement for %s: %w", item.ID, err)
			}
			if err := tx.PutAggregate(ctx, *agg); err != nil {
				return fmt.Errorf("write aggregate %s: %w", key, err)
			}
			res.Movements = append(res.Movements, m)
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	orDiscard(a.Logger).WithFields(logrus.Fields{
		"item_id": item.ID,
		"stock":   item.Stock.String(),
	}).Info("apply: item opened")
	return result, nil
}

func emptyAggregate(id Identity) *Aggregate {
	return &Aggregate{
		Key:          id.AggregateKey(),
		Name:         id.Name,
		Category:     id.Category,
		CurrentStock: decimal.Zero,
		TotalInflow:  decimal.Zero,
		TotalOutflow: decimal.Zero,
	}
}

// mergeLines sums quantities per item, keeping first-seen order, and drops
// zero lines. Negative quantities are rejected.
func mergeLines(lines []Line) ([]Line, error) {
	idx := make(map[ItemID]int, len(lines))
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		if l.ItemID == "" {
			return nil, fmt.Errorf("%w: empty item id", ErrInvalidQuantity)
		}
		if l.Quantity.IsNegative() {
			return nil, fmt.Errorf("%w: %s for item %s", ErrInvalidQuantity, l.Quantity, l.ItemID)
		}
		if l.Quantity.IsZero() {
			continue
		}
		if i, ok := idx[l.ItemID]; ok {
			out[i].Quantity = out[i].Quantity.Add(l.Quantity)
			continue
		}
		idx[l.ItemID] = len(out)
		out = append(out, l)
	}
	return out, nil
}

func (a *Applier) now() time.Time {
	if a.Now == nil {
		return time.Now().UTC()
	}
	return a.Now().UTC()
}

func (a *Applier) newID() MovementID {
	if a.NewID == nil {
		return MovementID(uuid.NewString())
	}
	return a.NewID()
}
