package inventory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/crm-inventory/inventory"
	"github.com/warp/crm-inventory/inventory/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var fixedNow = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

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

func newHealer(t *testing.T) (*inventory.Healer, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	h := inventory.NewHealer(mem, nil)
	h.Now = clock
	return h, mem
}

func seed(t *testing.T, mem *store.Memory, ms ...inventory.Movement) {
	t.Helper()
	for _, m := range ms {
		require.NoError(t, mem.Save(context.Background(), m))
	}
}

func runningStocks(t *testing.T, mem *store.Memory, id inventory.Identity) []string {
	t.Helper()
	ms, err := mem.Query(context.Background(), inventory.InventoryOf(id))
	require.NoError(t, err)
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.RunningStock.String()
	}
	return out
}

var marker = inventory.NewIdentity("마커", "소모품")

// =============================================================================
// SCENARIOS
// =============================================================================

func TestHeal_CorrectsDriftedRunningStock(t *testing.T) {
	// GIVEN: Two movements whose stored running stock is wrong ([10, 10])
	// WHEN: Healing the identity
	// THEN: Running stock becomes [15, 22] and the aggregate is {22, 30, 8}
	h, mem := newHealer(t)
	ctx := context.Background()
	seed(t, mem,
		movement("m1", "마커", "소모품", 20, 5, 10, 1),
		movement("m2", "마커", "소모품", 10, 3, 10, 2),
	)

	res, err := h.Heal(ctx, inventory.HealInput{Identity: marker})
	require.NoError(t, err)

	assert.True(t, res.CurrentStock.Equal(dec(22)))
	assert.True(t, res.TotalInflow.Equal(dec(30)))
	assert.True(t, res.TotalOutflow.Equal(dec(8)))
	assert.Len(t, res.Corrections, 2)
	assert.Equal(t, []string{"15", "22"}, runningStocks(t, mem, marker))

	agg, err := mem.GetAggregate(ctx, marker.AggregateKey())
	require.NoError(t, err)
	require.NotNil(t, agg)
	assert.True(t, agg.CurrentStock.Equal(dec(22)))
	assert.True(t, agg.TotalInflow.Equal(dec(30)))
	assert.True(t, agg.TotalOutflow.Equal(dec(8)))
	require.NotNil(t, agg.LastHealedAt)
	assert.Equal(t, fixedNow, *agg.LastHealedAt)
}

// =============================================================================
// PROPERTIES
// =============================================================================

func TestHeal_IsIdempotent(t *testing.T) {
	h, mem := newHealer(t)
	ctx := context.Background()
	seed(t, mem,
		movement("m1", "마커", "소모품", 20, 0, 0, 5),
		movement("m2", "마커", "소모품", 0, 7, 0, 1),
		movement("m3", "마커", "소모품", 4, 1, 99, 3),
	)

	first, err := h.Heal(ctx, inventory.HealInput{Identity: marker})
	require.NoError(t, err)
	second, err := h.Heal(ctx, inventory.HealInput{Identity: marker})
	require.NoError(t, err)

	assert.True(t, first.CurrentStock.Equal(second.CurrentStock))
	assert.True(t, first.TotalInflow.Equal(second.TotalInflow))
	assert.True(t, first.TotalOutflow.Equal(second.TotalOutflow))
	assert.NotEmpty(t, first.Corrections)
	assert.Empty(t, second.Corrections, "second heal must stage zero corrections")
}

func TestHeal_PrefixSumInvariant(t *testing.T) {
	// Insertion order differs from timestamp order; the invariant holds in
	// timestamp order.
	h, mem := newHealer(t)
	ctx := context.Background()
	seed(t, mem,
		movement("late", "마커", "소모품", 0, 4, 0, 30),
		movement("early", "마커", "소모품", 10, 0, 0, 10),
		movement("mid", "마커", "소모품", 5, 2, 0, 20),
	)

	_, err := h.Heal(ctx, inventory.HealInput{Identity: marker})
	require.NoError(t, err)

	ms, err := mem.Query(ctx, inventory.InventoryOf(marker))
	require.NoError(t, err)
	ordered := inventory.SortByCreatedAt(ms, clock)

	running := decimal.Zero
	for _, m := range ordered {
		running = running.Add(m.Delta())
		assert.True(t, m.RunningStock.Equal(running), "record %s: got %s want %s", m.ID, m.RunningStock, running)
	}

	agg, err := mem.GetAggregate(ctx, marker.AggregateKey())
	require.NoError(t, err)
	assert.True(t, agg.Balanced())
	assert.True(t, agg.CurrentStock.Equal(dec(9)))
}

func TestHeal_IdentityIsolation(t *testing.T) {
	// Same category, overlapping names: only the exact pair counts.
	h, mem := newHealer(t)
	ctx := context.Background()
	seed(t, mem,
		movement("a1", "마커", "소모품", 10, 0, 0, 1),
		movement("b1", "마커 리필", "소모품", 100, 0, 0, 2),
		movement("c1", "마커", "비품", 50, 0, 0, 3),
	)

	res, err := h.Heal(ctx, inventory.HealInput{Identity: marker})
	require.NoError(t, err)
	assert.True(t, res.CurrentStock.Equal(dec(10)))

	other, err := mem.GetAggregate(ctx, inventory.NewIdentity("마커 리필", "소모품").AggregateKey())
	require.NoError(t, err)
	assert.Nil(t, other, "healing A must not publish B's aggregate")
}

func TestHeal_ExcludesProductAndDividerKinds(t *testing.T) {
	h, mem := newHealer(t)
	ctx := context.Background()

	product := movement("p1", "마커", "소모품", 500, 0, 0, 2)
	product.Kind = inventory.KindProduct
	divider := movement("d1", "마커", "소모품", 0, 300, 0, 3)
	divider.Kind = inventory.KindDivider

	seed(t, mem, movement("m1", "마커", "소모품", 8, 1, 0, 1), product, divider)

	res, err := h.Heal(ctx, inventory.HealInput{Identity: marker})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Records)
	assert.True(t, res.CurrentStock.Equal(dec(7)))

	all, err := mem.Query(ctx, inventory.Filter{})
	require.NoError(t, err)
	for _, m := range all {
		if !m.IsInventory() {
			assert.True(t, m.RunningStock.IsZero(), "non-inventory record %s must not be corrected", m.ID)
		}
	}
}

func TestHeal_EmptyHistory(t *testing.T) {
	t.Run("no aggregate is a no-op", func(t *testing.T) {
		h, mem := newHealer(t)
		res, err := h.Heal(context.Background(), inventory.HealInput{Identity: marker})
		require.NoError(t, err)
		assert.True(t, res.CurrentStock.IsZero())
		assert.True(t, res.TotalInflow.IsZero())
		assert.True(t, res.TotalOutflow.IsZero())

		agg, err := mem.GetAggregate(context.Background(), marker.AggregateKey())
		require.NoError(t, err)
		assert.Nil(t, agg)
	})

	t.Run("existing aggregate is zeroed", func(t *testing.T) {
		h, mem := newHealer(t)
		ctx := context.Background()
		require.NoError(t, mem.UpsertAggregate(ctx, inventory.Aggregate{
			Key:          marker.AggregateKey(),
			Name:         marker.Name,
			Category:     marker.Category,
			CurrentStock: dec(40),
			TotalInflow:  dec(50),
			TotalOutflow: dec(10),
		}))

		res, err := h.Heal(ctx, inventory.HealInput{Identity: marker})
		require.NoError(t, err)
		assert.True(t, res.CurrentStock.IsZero())

		agg, err := mem.GetAggregate(ctx, marker.AggregateKey())
		require.NoError(t, err)
		require.NotNil(t, agg)
		assert.True(t, agg.CurrentStock.IsZero())
		assert.True(t, agg.TotalInflow.IsZero())
		assert.True(t, agg.TotalOutflow.IsZero())
	})
}

// =============================================================================
// INPUT MODES & FAILURES
// =============================================================================

func TestHeal_WithPatchedCandidates(t *testing.T) {
	// GIVEN: The caller edited m2 (outflow 3 → 6) and holds a stale list
	// WHEN: Healing with the stale list plus the edited record as patch
	// THEN: The replay uses the patched values
	h, mem := newHealer(t)
	ctx := context.Background()

	m1 := movement("m1", "마커", "소모품", 20, 5, 15, 1)
	m2 := movement("m2", "마커", "소모품", 10, 3, 22, 2)
	seed(t, mem, m1, m2)

	edited := m2
	edited.Outflow = inventory.QtyInt(6)
	require.NoError(t, mem.Save(ctx, edited))

	res, err := h.Heal(ctx, inventory.HealInput{
		Identity:   marker,
		Candidates: []inventory.Movement{m1, m2},
		Patch:      &edited,
	})
	require.NoError(t, err)
	assert.True(t, res.CurrentStock.Equal(dec(19)))
	assert.Equal(t, []string{"15", "19"}, runningStocks(t, mem, marker))
}

func TestHeal_CommitFailureLeavesNothingDurable(t *testing.T) {
	h, mem := newHealer(t)
	ctx := context.Background()
	seed(t, mem,
		movement("m1", "마커", "소모품", 20, 5, 10, 1),
		movement("m2", "마커", "소모품", 10, 3, 10, 2),
	)

	boom := errors.New("backend unavailable")
	mem.SetCommitHook(func() error { return boom })

	_, err := h.Heal(ctx, inventory.HealInput{Identity: marker})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, []string{"10", "10"}, runningStocks(t, mem, marker))
	agg, err := mem.GetAggregate(ctx, marker.AggregateKey())
	require.NoError(t, err)
	assert.Nil(t, agg)

	// Retrying the whole pass succeeds.
	mem.SetCommitHook(nil)
	res, err := h.Heal(ctx, inventory.HealInput{Identity: marker})
	require.NoError(t, err)
	assert.True(t, res.CurrentStock.Equal(dec(22)))
}

func TestHeal_CorrectionForUnknownRecordFailsWholeBatch(t *testing.T) {
	// A candidate that was never persisted cannot be corrected; the batch
	// must fail as a unit.
	h, mem := newHealer(t)
	ctx := context.Background()
	stored := movement("m1", "마커", "소모품", 20, 5, 10, 1)
	seed(t, mem, stored)

	ghost := movement("ghost", "마커", "소모품", 1, 0, 0, 2)
	_, err := h.Heal(ctx, inventory.HealInput{
		Identity:   marker,
		Candidates: []inventory.Movement{stored, ghost},
	})
	require.ErrorIs(t, err, inventory.ErrDocumentNotFound)
	assert.Equal(t, []string{"10"}, runningStocks(t, mem, marker))
}

func TestHeal_EqualTimestampsKeepInputOrder(t *testing.T) {
	h, mem := newHealer(t)
	ctx := context.Background()

	a := movement("a", "마커", "소모품", 10, 0, 0, 0)
	a.CreatedAt = inventory.AbsentTime()
	b := movement("b", "마커", "소모품", 0, 4, 0, 0)
	b.CreatedAt = inventory.AbsentTime()
	seed(t, mem, a, b)

	_, err := h.Heal(ctx, inventory.HealInput{Identity: marker})
	require.NoError(t, err)
	assert.Equal(t, []string{"10", "6"}, runningStocks(t, mem, marker))
}

func TestHeal_RequiresName(t *testing.T) {
	h, _ := newHealer(t)
	_, err := h.Heal(context.Background(), inventory.HealInput{Identity: inventory.NewIdentity("  ", "소모품")})
	assert.ErrorIs(t, err, inventory.ErrInvalidIdentity)
}

func TestHealAll_HealsEveryIdentity(t *testing.T) {
	h, mem := newHealer(t)
	h.Locker = inventory.NewLocalLocker()
	ctx := context.Background()
	seed(t, mem,
		movement("a1", "마커", "소모품", 20, 5, 0, 1),
		movement("b1", "토너", "소모품", 3, 0, 0, 1),
		movement("b2", "토너", "소모품", 0, 1, 0, 2),
		movement("a2", "마커", "소모품", 10, 3, 0, 2),
	)

	results, err := h.HealAll(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)

	got := map[string]string{}
	for _, r := range results {
		got[r.Identity.Name] = r.CurrentStock.String()
	}
	assert.Equal(t, map[string]string{"마커": "22", "토너": "2"}, got)
}

func TestHeal_MastersSharingNameAndCategoryConverge(t *testing.T) {
	// GIVEN: Two items (X, Y) recorded under the same name and category
	// WHEN: Alternating HealAll and a heal addressed by MasterID Y
	// THEN: Both paths publish the same group balance and, after the first
	//       pass, stage no corrections
	h, mem := newHealer(t)
	ctx := context.Background()
	a := movement("a", "마커", "소모품", 20, 0, 0, 1)
	a.MasterID = "X"
	b := movement("b", "마커", "소모품", 5, 0, 0, 2)
	b.MasterID = "Y"
	seed(t, mem, a, b)

	byMaster := inventory.Identity{Name: "마커", Category: "소모품", MasterID: "Y"}

	first, err := h.HealAll(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "25", first[0].CurrentStock.String())

	for round := 0; round < 3; round++ {
		res, err := h.Heal(ctx, inventory.HealInput{Identity: byMaster})
		require.NoError(t, err)
		assert.Equal(t, "25", res.CurrentStock.String())
		assert.Empty(t, res.Corrections, "round %d", round)

		all, err := h.HealAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, all[0].Corrections, "round %d", round)

		agg, err := mem.GetAggregate(ctx, marker.AggregateKey())
		require.NoError(t, err)
		require.NotNil(t, agg)
		assert.Equal(t, "25", agg.CurrentStock.String())
	}
	assert.Equal(t, []string{"20", "25"}, runningStocks(t, mem, marker))
}
