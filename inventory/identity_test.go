package inventory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/crm-inventory/inventory"
)

func TestAggregateKey_NoSeparatorCollisions(t *testing.T) {
	// With a plain "name_category" key these two pairs would collide.
	a := inventory.AggregateKey("A_B", "C")
	b := inventory.AggregateKey("A", "B_C")
	assert.NotEqual(t, a, b)

	c := inventory.AggregateKey("a|1:b", "")
	d := inventory.AggregateKey("a", "b")
	assert.NotEqual(t, c, d)
}

func TestAggregateKey_TrimsWhitespace(t *testing.T) {
	assert.Equal(t, inventory.AggregateKey("마커", "소모품"), inventory.AggregateKey("  마커", "소모품\n"))
	assert.Equal(t, inventory.AggregateKey("마커", "소모품"), inventory.NewIdentity(" 마커 ", " 소모품").AggregateKey())
}

func TestIdentity_MatchesIsCaseSensitive(t *testing.T) {
	id := inventory.NewIdentity("Toner", "Supplies")

	assert.True(t, id.Matches(movement("m1", " Toner", "Supplies ", 1, 0, 1, 1)))
	assert.False(t, id.Matches(movement("m2", "toner", "Supplies", 1, 0, 1, 1)))
	assert.False(t, id.Matches(movement("m3", "Toner", "supplies", 1, 0, 1, 1)))
}

func TestIdentity_MasterIDDecidesWhenBothSidesHaveOne(t *testing.T) {
	id := inventory.Identity{Name: "Toner", Category: "Supplies", MasterID: "item-1"}

	renamed := movement("m1", "Black Toner", "Supplies", 1, 0, 1, 1)
	renamed.MasterID = "item-1"
	assert.True(t, id.Matches(renamed))

	other := movement("m2", "Toner", "Supplies", 1, 0, 1, 1)
	other.MasterID = "item-2"
	assert.False(t, id.Matches(other))

	legacy := movement("m3", "Toner", "Supplies", 1, 0, 1, 1)
	assert.True(t, id.Matches(legacy), "records without a master id fall back to name and category")
}

func TestIdentity_Valid(t *testing.T) {
	assert.False(t, inventory.NewIdentity("  ", "x").Valid())
	assert.True(t, inventory.NewIdentity("마커", "").Valid())
	assert.True(t, inventory.Identity{MasterID: "item-1"}.Valid())
}
