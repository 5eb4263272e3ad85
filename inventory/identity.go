package inventory

import (
	"strconv"
	"strings"
)

// =============================================================================
// IDENTITY - Which logical stock-keeping unit a record belongs to
// =============================================================================

// Identity names one trackable item: a trimmed (Name, Category) pair and,
// optionally, a stable MasterID that survives renames.
//
// Matching is case-sensitive. Only surrounding whitespace is ignored.
type Identity struct {
	Name     string
	Category string
	MasterID string
}

func NewIdentity(name, category string) Identity {
	return Identity{Name: name, Category: category}.Normalize()
}

// Normalize trims surrounding whitespace from every field.
func (id Identity) Normalize() Identity {
	return Identity{
		Name:     strings.TrimSpace(id.Name),
		Category: strings.TrimSpace(id.Category),
		MasterID: strings.TrimSpace(id.MasterID),
	}
}

// Group is the identity that heals, aggregates, and stock reads work on: the
// trimmed (name, category) pair. Items sharing a name and category share one
// aggregate, whatever their MasterIDs; MasterID only narrows
// CalculateInitialStock and links adjustments to items.
func (id Identity) Group() Identity {
	n := id.Normalize()
	n.MasterID = ""
	return n
}

func (id Identity) Valid() bool {
	n := id.Normalize()
	return n.MasterID != "" || n.Name != ""
}

// Matches reports whether m belongs to this identity. When both sides carry a
// MasterID it alone decides; otherwise the trimmed (name, category) pair does.
func (id Identity) Matches(m Movement) bool {
	a := id.Normalize()
	b := m.Identity()
	if a.MasterID != "" && b.MasterID != "" {
		return a.MasterID == b.MasterID
	}
	return a.Name == b.Name && a.Category == b.Category
}

// AggregateKey is the deterministic key of the identity's aggregate record.
//
// Format: "meta:" + len(name) + ":" + name + "|" + len(category) + ":" + category,
// with lengths in bytes of the trimmed values. Length prefixes make the
// encoding injective, so no choice of separator characters in names can collide.
func (id Identity) AggregateKey() string {
	return AggregateKey(id.Name, id.Category)
}

const aggregateKeyPrefix = "meta:"

func AggregateKey(name, category string) string {
	name = strings.TrimSpace(name)
	category = strings.TrimSpace(category)

	var b strings.Builder
	b.Grow(len(aggregateKeyPrefix) + len(name) + len(category) + 8)
	b.WriteString(aggregateKeyPrefix)
	b.WriteString(strconv.Itoa(len(name)))
	b.WriteByte(':')
	b.WriteString(name)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(len(category)))
	b.WriteByte(':')
	b.WriteString(category)
	return b.String()
}

func (id Identity) String() string {
	n := id.Normalize()
	if n.MasterID != "" {
		return n.Name + "/" + n.Category + " (" + n.MasterID + ")"
	}
	return n.Name + "/" + n.Category
}
