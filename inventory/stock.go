/*
stock.go - Balance math over movement histories

PURPOSE:
  Pure functions shared by the Healer, the Reader, and callers that hold a
  history in memory. No I/O happens here.

  CalculateInitialStock: cheap, uncontended path used to pre-populate a new
                         record's RunningStock at write time.
  Replay:                expensive, authoritative path used by the Healer.

EXAMPLE:
  Existing history for ("마커","소모품"): +20 -5, +10 -3
  Replay → running [15, 22], inflow 30, outflow 8, current 22
  CalculateInitialStock(..., newInflow=5) → 27
*/
package inventory

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CalculateInitialStock returns the balance a new movement should carry:
// the net delta of every matching existing record plus newInflow.
//
// With a masterID, records match on MasterID alone (any kind). Without one,
// records match on trimmed (name, category) and must be inventory kind.
func CalculateInitialStock(name, category string, existing []Movement, newInflow decimal.Decimal, masterID string) decimal.Decimal {
	name = strings.TrimSpace(name)
	category = strings.TrimSpace(category)
	masterID = strings.TrimSpace(masterID)

	total := decimal.Zero
	for _, m := range existing {
		if masterID != "" {
			if strings.TrimSpace(m.MasterID) != masterID {
				continue
			}
		} else {
			if !m.IsInventory() {
				continue
			}
			if strings.TrimSpace(m.Name) != name || strings.TrimSpace(m.Category) != category {
				continue
			}
		}
		total = total.Add(m.Delta())
	}
	return total.Add(newInflow)
}

// SortByCreatedAt returns a copy of ms ordered by normalized CreatedAt.
// The sort is stable: records with equal timestamps keep their input order.
func SortByCreatedAt(ms []Movement, now Clock) []Movement {
	type keyed struct {
		at float64
		m  Movement
	}
	// Absent timestamps all resolve to the same instant.
	if now == nil {
		now = time.Now
	}
	fixed := now()
	clock := func() time.Time { return fixed }

	ks := make([]keyed, len(ms))
	for i, m := range ms {
		ks[i] = keyed{at: m.CreatedAt.EpochSeconds(clock), m: m}
	}
	sort.SliceStable(ks, func(i, j int) bool { return ks[i].at < ks[j].at })

	out := make([]Movement, len(ks))
	for i, k := range ks {
		out[i] = k.m
	}
	return out
}

// Replay is the result of walking an ordered history.
type Replay struct {
	Ordered      []Movement
	Running      []decimal.Decimal // Running[i] is the prefix balance through Ordered[i]
	CurrentStock decimal.Decimal
	TotalInflow  decimal.Decimal
	TotalOutflow decimal.Decimal
}

// ReplayHistory sorts ms and accumulates the running balance. Callers are
// expected to have filtered ms to one identity's inventory-kind records.
func ReplayHistory(ms []Movement, now Clock) Replay {
	r := Replay{
		Ordered:      SortByCreatedAt(ms, now),
		CurrentStock: decimal.Zero,
		TotalInflow:  decimal.Zero,
		TotalOutflow: decimal.Zero,
	}
	r.Running = make([]decimal.Decimal, len(r.Ordered))
	for i, m := range r.Ordered {
		in, out := m.InflowValue(), m.OutflowValue()
		r.TotalInflow = r.TotalInflow.Add(in)
		r.TotalOutflow = r.TotalOutflow.Add(out)
		r.CurrentStock = r.CurrentStock.Add(in).Sub(out)
		r.Running[i] = r.CurrentStock
	}
	return r
}

// SumHistory returns Σinflow − Σoutflow over the inventory-kind records of ms
// that belong to id. Order does not matter.
func SumHistory(id Identity, ms []Movement) decimal.Decimal {
	f := InventoryOf(id)
	total := decimal.Zero
	for _, m := range ms {
		if f.Accepts(m) {
			total = total.Add(m.Delta())
		}
	}
	return total
}
