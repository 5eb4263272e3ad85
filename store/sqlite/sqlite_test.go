package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/crm-inventory/inventory"
	"github.com/warp/crm-inventory/store/sqlite"
)

var fixedNow = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(filepath.Join(t.TempDir(), "inventory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func dec(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func movement(id, name, category string, in, out, running, at int64) inventory.Movement {
	return inventory.Movement{
		ID:           inventory.MovementID(id),
		Name:         name,
		Category:     category,
		Kind:         inventory.KindInventory,
		Inflow:       inventory.QtyInt(in),
		Outflow:      inventory.QtyInt(out),
		RunningStock: dec(running),
		CreatedAt:    inventory.EpochRecord(at, 0),
	}
}

var marker = inventory.NewIdentity("마커", "소모품")

// =============================================================================
// HISTORY
// =============================================================================

func TestSQLite_MovementRoundTripKeepsShapes(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	native := movement("native", "마커", "소모품", 5, 0, 5, 0)
	native.CreatedAt = inventory.NativeTime(fixedNow.Add(123))
	native.Outflow = decimal.NullDecimal{}
	native.Direction = inventory.DirectionRestore
	native.ReportID = "rep-1"

	epoch := movement("epoch", "마커", "소모품", 0, 2, 3, 1700000000)
	absent := movement("absent", "마커", "소모품", 1, 0, 4, 0)
	absent.CreatedAt = inventory.AbsentTime()

	for _, m := range []inventory.Movement{native, epoch, absent} {
		require.NoError(t, s.Save(ctx, m))
	}

	got, err := s.Query(ctx, inventory.InventoryOf(marker))
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, inventory.MovementID("native"), got[0].ID)
	assert.False(t, got[0].Outflow.Valid, "null outflow survives")
	assert.Equal(t, "5", got[0].Inflow.Decimal.String())
	assert.Equal(t, native.CreatedAt.String(), got[0].CreatedAt.String())
	assert.Equal(t, inventory.DirectionRestore, got[0].Direction)
	assert.Equal(t, "rep-1", got[0].ReportID)

	shape, sec, _ := got[1].CreatedAt.Parts()
	assert.Equal(t, inventory.TimestampShapeEpoch, shape)
	assert.Equal(t, int64(1700000000), sec)

	assert.True(t, got[2].CreatedAt.IsAbsent())
}

func TestSQLite_SaveReplacesInPlace(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, movement("m1", "마커", "소모품", 1, 0, 1, 1)))
	require.NoError(t, s.Save(ctx, movement("m2", "마커", "소모품", 1, 0, 2, 2)))

	edited := movement("m1", "마커", "소모품", 9, 0, 9, 1)
	require.NoError(t, s.Save(ctx, edited))

	got, err := s.Query(ctx, inventory.InventoryOf(marker))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, inventory.MovementID("m1"), got[0].ID, "insertion order is kept")
	assert.Equal(t, "9", got[0].Inflow.Decimal.String())
}

func TestSQLite_QueryMatchesTrimmedIdentityAndKind(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	product := movement("p1", "마커", "소모품", 100, 0, 0, 3)
	product.Kind = inventory.KindProduct

	require.NoError(t, s.Save(ctx, movement("m1", " 마커 ", "소모품", 1, 0, 1, 1)))
	require.NoError(t, s.Save(ctx, movement("m2", "마커", "비품", 1, 0, 1, 2)))
	require.NoError(t, s.Save(ctx, product))

	got, err := s.Query(ctx, inventory.InventoryOf(marker))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, inventory.MovementID("m1"), got[0].ID)

	ids, err := s.Identities(ctx)
	require.NoError(t, err)
	assert.Equal(t, []inventory.Identity{
		inventory.NewIdentity("마커", "소모품"),
		inventory.NewIdentity("마커", "비품"),
	}, ids)
}

// =============================================================================
// BATCH
// =============================================================================

func TestSQLite_BatchIsAllOrNothing(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, movement("m1", "마커", "소모품", 5, 0, 0, 1)))

	b := s.NewBatch()
	b.SetRunningStock("m1", dec(5))
	b.SetRunningStock("ghost", dec(7))
	b.UpsertAggregate(inventory.Aggregate{Key: marker.AggregateKey(), Name: "마커", Category: "소모품", CurrentStock: dec(5)})

	err := b.Commit(ctx)
	require.ErrorIs(t, err, inventory.ErrDocumentNotFound)

	got, err := s.Query(ctx, inventory.InventoryOf(marker))
	require.NoError(t, err)
	assert.Equal(t, "0", got[0].RunningStock.String())

	agg, err := s.GetAggregate(ctx, marker.AggregateKey())
	require.NoError(t, err)
	assert.Nil(t, agg)
}

func TestSQLite_HealEndToEnd(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, movement("m1", "마커", "소모품", 20, 5, 10, 1)))
	require.NoError(t, s.Save(ctx, movement("m2", "마커", "소모품", 10, 3, 10, 2)))

	h := inventory.NewHealer(s, nil)
	h.Now = func() time.Time { return fixedNow }

	res, err := h.Heal(ctx, inventory.HealInput{Identity: marker})
	require.NoError(t, err)
	assert.Equal(t, "22", res.CurrentStock.String())

	got, err := s.Query(ctx, inventory.InventoryOf(marker))
	require.NoError(t, err)
	assert.Equal(t, "15", got[0].RunningStock.String())
	assert.Equal(t, "22", got[1].RunningStock.String())

	agg, err := s.GetAggregate(ctx, marker.AggregateKey())
	require.NoError(t, err)
	require.NotNil(t, agg)
	assert.Equal(t, "30", agg.TotalInflow.String())
	assert.Equal(t, "8", agg.TotalOutflow.String())
	require.NotNil(t, agg.LastHealedAt)
	assert.True(t, agg.LastHealedAt.Equal(fixedNow))

	reader := inventory.NewReader(s, nil)
	stock, err := reader.LatestStock(ctx, marker)
	require.NoError(t, err)
	assert.Equal(t, "22", stock.String())
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestSQLite_TransactionRollsBackOnError(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveItem(ctx, inventory.Item{ID: "X", Name: "마커", Category: "소모품", Stock: dec(50)}))

	a := inventory.NewApplier(s, nil)
	boom := errors.New("business write failed")
	_, err := a.Apply(ctx, inventory.Operation{
		Direction: inventory.DirectionDeduct,
		Lines:     []inventory.Line{{ItemID: "X", Quantity: dec(10)}},
		Write: func(ctx context.Context, tx inventory.Tx) error {
			if err := tx.PutDocument(ctx, inventory.DocRef{Collection: "reports", ID: "r1"}, map[string]string{"id": "r1"}); err != nil {
				return err
			}
			return boom
		},
	})
	require.ErrorIs(t, err, boom)

	item, err := s.GetItem(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, "50", item.Stock.String())

	ms, err := s.Query(ctx, inventory.Filter{})
	require.NoError(t, err)
	assert.Empty(t, ms)

	var doc map[string]string
	found, err := s.GetDocument(ctx, inventory.DocRef{Collection: "reports", ID: "r1"}, &doc)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSQLite_ApplyCommitsEverything(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveItem(ctx, inventory.Item{ID: "X", Name: "마커", Category: "소모품", Stock: dec(50)}))

	a := inventory.NewApplier(s, nil)
	ref := inventory.DocRef{Collection: "reports", ID: "r1"}
	_, err := a.Apply(ctx, inventory.Operation{
		Direction: inventory.DirectionDeduct,
		Lines:     []inventory.Line{{ItemID: "X", Quantity: dec(10)}},
		ReportID:  "r1",
		Write: func(ctx context.Context, tx inventory.Tx) error {
			return tx.PutDocument(ctx, ref, map[string]string{"id": "r1"})
		},
	})
	require.NoError(t, err)

	item, err := s.GetItem(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, "40", item.Stock.String())

	ms, err := s.Query(ctx, inventory.Filter{})
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, "X", ms[0].MasterID)
	assert.Equal(t, "10", ms[0].Outflow.Decimal.String())

	var doc map[string]string
	found, err := s.GetDocument(ctx, ref, &doc)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "r1", doc["id"])
}

func TestSQLite_ResetInventoryWipesInventoryStateTogether(t *testing.T) {
	// GIVEN: inventory history, a product record, a healed aggregate, and an item
	s := newStore(t)
	ctx := context.Background()
	product := movement("p1", "마커", "소모품", 1, 0, 1, 3)
	product.Kind = inventory.KindProduct
	require.NoError(t, s.Save(ctx, movement("m1", "마커", "소모품", 1, 0, 1, 1)))
	require.NoError(t, s.Save(ctx, product))
	healed := fixedNow
	require.NoError(t, s.UpsertAggregate(ctx, inventory.Aggregate{
		Key: marker.AggregateKey(), Name: "마커", Category: "소모품",
		CurrentStock: dec(1), TotalInflow: dec(1), LastHealedAt: &healed,
	}))
	require.NoError(t, s.SaveItem(ctx, inventory.Item{ID: "X", Name: "마커", Category: "소모품", Stock: dec(50)}))

	// WHEN: the inventory is reset
	n, err := s.ResetInventory(ctx)
	require.NoError(t, err)

	// THEN: only the inventory-kind movement is gone
	assert.Equal(t, int64(1), n)
	ms, err := s.Query(ctx, inventory.Filter{})
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, inventory.KindProduct, ms[0].Kind)

	// AND: the aggregate and the item are zeroed
	agg, err := s.GetAggregate(ctx, marker.AggregateKey())
	require.NoError(t, err)
	require.NotNil(t, agg)
	assert.True(t, agg.CurrentStock.IsZero())
	assert.True(t, agg.TotalInflow.IsZero())
	assert.Nil(t, agg.LastHealedAt)

	item, err := s.GetItem(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, "0", item.Stock.String())
}
