/*
Package crm implements the customer/report side of the CRM on top of the
inventory engine.

PURPOSE:
  Customers move through a sales pipeline (inquiry → demo → purchase →
  install → after-service). Every visit is recorded as a Report on the
  customer's timeline, and a report may consume parts from inventory.

KEY CONCEPTS:
  - Customer: Pipeline position and last activity date
  - Report: One timeline entry; its consumed parts are deducted from stock
  - Part: An item on a report and what was done with it

STOCK EFFECTS:
  Submitting a report deducts every consumed part. Deleting it restores them.
  Both run in one transaction with the report and customer writes, via
  inventory.Applier.

STORAGE:
  Customers and reports are JSON documents in the "customers" and "reports"
  collections of the inventory store.

SEE ALSO:
  - service.go: Transactional operations
  - inventory/applier.go: The stock side of every operation
*/
package crm

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/crm-inventory/inventory"
)

const (
	CustomersCollection = "customers"
	ReportsCollection   = "reports"
)

func customerRef(id string) inventory.DocRef {
	return inventory.DocRef{Collection: CustomersCollection, ID: id}
}

func reportRef(id string) inventory.DocRef {
	return inventory.DocRef{Collection: ReportsCollection, ID: id}
}

// =============================================================================
// PIPELINE STEPS
// =============================================================================

// Step is a pipeline position. Report types share the same vocabulary: a
// report of type "demo" moves the customer to the demo step.
type Step string

const (
	StepInquiry  Step = "inquiry"
	StepDemo     Step = "demo"
	StepPurchase Step = "purchase"
	StepInstall  Step = "install"
	StepAS       Step = "as" // after-service
)

var stepRank = map[Step]int{
	StepInquiry:  1,
	StepDemo:     2,
	StepPurchase: 3,
	StepInstall:  4,
	StepAS:       5,
}

func (s Step) Valid() bool {
	_, ok := stepRank[s]
	return ok
}

// After reports whether s is further along the pipeline than o.
func (s Step) After(o Step) bool {
	return stepRank[s] > stepRank[o]
}

// =============================================================================
// CUSTOMER
// =============================================================================

type Customer struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Phone          string    `json:"phone,omitempty"`
	Address        string    `json:"address,omitempty"`
	CurrentStep    Step      `json:"currentStep"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Record moves the customer forward to the report's step (never backward)
// and bumps the last activity date when the report is newer.
func (c *Customer) Record(r Report) {
	if r.Type.After(c.CurrentStep) {
		c.CurrentStep = r.Type
	}
	if r.Date.After(c.LastActivityAt) {
		c.LastActivityAt = r.Date
	}
}

// =============================================================================
// REPORT
// =============================================================================

// PartAction says what happened to a part during a visit.
type PartAction string

const (
	ActionConsume PartAction = "consume" // installed, sold, or used up
	ActionRestock PartAction = "restock" // prepared part put into a customer's unit
	ActionInspect PartAction = "inspect" // checked only; no stock effect
)

func (a PartAction) Valid() bool {
	return a == ActionConsume || a == ActionRestock || a == ActionInspect
}

// MovesStock reports whether the part left the warehouse. Deleting the report
// gives exactly these parts back.
func (a PartAction) MovesStock() bool {
	return a == ActionConsume || a == ActionRestock
}

type Part struct {
	ItemID   inventory.ItemID `json:"itemId"`
	Quantity decimal.Decimal  `json:"quantity"`
	Action   PartAction       `json:"action"`
}

type Report struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customerId"`
	Type       Step      `json:"type"`
	Date       time.Time `json:"date"`
	Memo       string    `json:"memo,omitempty"`
	Parts      []Part    `json:"parts,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ConsumedLines returns the stock lines the report deducted.
func (r Report) ConsumedLines() []inventory.Line {
	var lines []inventory.Line
	for _, p := range r.Parts {
		if !p.Action.MovesStock() {
			continue
		}
		lines = append(lines, inventory.Line{ItemID: p.ItemID, Quantity: p.Quantity})
	}
	return lines
}
