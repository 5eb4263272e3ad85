package inventory_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/warp/crm-inventory/inventory"
)

func TestCalculateInitialStock_SumsMatchingHistory(t *testing.T) {
	// GIVEN: One existing record with net delta +7
	// WHEN: Adding a new inflow of 5
	// THEN: Initial stock is 12
	existing := []inventory.Movement{movement("m1", "마커", "소모품", 10, 3, 7, 1)}

	got := inventory.CalculateInitialStock("마커", "소모품", existing, dec(5), "")

	assert.True(t, got.Equal(dec(12)), "got %s", got)
}

func TestCalculateInitialStock_TrimsNameAndCategory(t *testing.T) {
	existing := []inventory.Movement{movement("m1", " 마커 ", "소모품\t", 4, 0, 4, 1)}

	got := inventory.CalculateInitialStock("마커", " 소모품", existing, dec(1), "")

	assert.True(t, got.Equal(dec(5)), "got %s", got)
}

func TestCalculateInitialStock_IgnoresOtherIdentitiesAndKinds(t *testing.T) {
	product := movement("p1", "마커", "소모품", 100, 0, 0, 1)
	product.Kind = inventory.KindProduct
	existing := []inventory.Movement{
		movement("m1", "마커", "소모품", 6, 1, 5, 1),
		movement("m2", "마커", "비품", 40, 0, 40, 2),
		movement("m3", "Marker", "소모품", 40, 0, 40, 3),
		product,
	}

	got := inventory.CalculateInitialStock("마커", "소모품", existing, dec(0), "")

	assert.True(t, got.Equal(dec(5)), "got %s", got)
}

func TestCalculateInitialStock_MasterIDOverridesName(t *testing.T) {
	// The item was renamed; both records share the master id.
	old := movement("m1", "보드마커", "소모품", 10, 0, 10, 1)
	old.MasterID = "item-7"
	renamed := movement("m2", "마커", "소모품", 0, 2, 8, 2)
	renamed.MasterID = "item-7"
	unrelated := movement("m3", "마커", "소모품", 50, 0, 50, 3)

	got := inventory.CalculateInitialStock("마커", "소모품", []inventory.Movement{old, renamed, unrelated}, dec(3), "item-7")

	assert.True(t, got.Equal(dec(11)), "got %s", got)
}

func TestCalculateInitialStock_NullFlowsCountAsZero(t *testing.T) {
	m := movement("m1", "마커", "소모품", 0, 0, 0, 1)
	m.Inflow = inventory.QtyInt(9)
	m.Outflow.Valid = false

	got := inventory.CalculateInitialStock("마커", "소모품", []inventory.Movement{m}, dec(1), "")

	assert.True(t, got.Equal(dec(10)), "got %s", got)
}

func TestReplayHistory_OrdersByNormalizedTime(t *testing.T) {
	native := movement("native", "마커", "소모품", 0, 2, 0, 0)
	native.CreatedAt = inventory.NativeTime(fixedNow.Add(-time.Second))
	epoch := movement("epoch", "마커", "소모품", 5, 0, 0, fixedNow.Add(-time.Minute).Unix())
	absent := movement("absent", "마커", "소모품", 1, 0, 0, 0)
	absent.CreatedAt = inventory.AbsentTime()

	r := inventory.ReplayHistory([]inventory.Movement{absent, native, epoch}, clock)

	ids := make([]inventory.MovementID, len(r.Ordered))
	for i, m := range r.Ordered {
		ids[i] = m.ID
	}
	assert.Equal(t, []inventory.MovementID{"epoch", "native", "absent"}, ids)
	assert.Equal(t, "5", r.Running[0].String())
	assert.Equal(t, "3", r.Running[1].String())
	assert.Equal(t, "4", r.Running[2].String())
	assert.True(t, r.CurrentStock.Equal(r.TotalInflow.Sub(r.TotalOutflow)))
}
