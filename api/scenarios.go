/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	data for demos and manual testing of the heal and report flows.

AVAILABLE SCENARIOS:

	drifted-history:   Two consumables whose stored running stock is wrong;
	                   heal repairs them
	report-lifecycle:  A stocked filter, a customer, and an install report
	                   that consumed 10; delete the report to restore stock
	mixed-timestamps:  History written by three client generations (native
	                   time, epoch record, missing); heal orders them

HOW SCENARIOS WORK:
 1. Reset inventory (zero aggregates and item stock, drop inventory history)
 2. Open master items with fixed IDs, or restock them after a reset
 3. Write history records and business documents

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "drifted-history"}

NOTE:

	Scenarios reset inventory history. Only use in development/demo
	environments.

SEE ALSO:
  - handlers.go: ResetInventory, HealStock handlers
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/crm-inventory/crm"
	"github.com/warp/crm-inventory/inventory"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "drifted-history",
		Name:        "Drifted History",
		Description: "Running stock on two consumables no longer matches their history",
	},
	{
		ID:          "report-lifecycle",
		Name:        "Report Lifecycle",
		Description: "An install report consumed 10 filters; deleting it restores them",
	},
	{
		ID:          "mixed-timestamps",
		Name:        "Mixed Timestamps",
		Description: "History records with native, epoch, and missing creation times",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.scenarioMu.Lock()
	current := h.currentScenario
	h.scenarioMu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets inventory and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	var load func(context.Context) error
	switch req.ScenarioID {
	case "drifted-history":
		load = h.loadDriftedHistoryScenario
	case "report-lifecycle":
		load = h.loadReportLifecycleScenario
	case "mixed-timestamps":
		load = h.loadMixedTimestampsScenario
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.scenarioMu.Lock()
	defer h.scenarioMu.Unlock()

	ctx := r.Context()
	if _, err := h.Service.ResetInventory(ctx); err != nil {
		h.writeDomainError(w, "LoadScenario", "Failed to reset inventory", err)
		return
	}
	h.currentScenario = ""

	if err := load(ctx); err != nil {
		h.writeDomainError(w, "LoadScenario", fmt.Sprintf("Failed to load scenario %s", req.ScenarioID), err)
		return
	}
	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadDriftedHistoryScenario(ctx context.Context) error {
	base := time.Now().UTC().Add(-72 * time.Hour)
	records := []inventory.Movement{
		scenarioMovement("drift-1", "마커", "소모품", 20, 5, 10, base),
		scenarioMovement("drift-2", "마커", "소모품", 10, 3, 10, base.Add(24*time.Hour)),
		scenarioMovement("drift-3", "토너", "소모품", 12, 0, 0, base),
		scenarioMovement("drift-4", "토너", "소모품", 0, 10, 12, base.Add(48*time.Hour)),
	}
	return h.saveAll(ctx, records)
}

func (h *Handler) loadReportLifecycleScenario(ctx context.Context) error {
	item := inventory.Item{ID: "filter-x", Name: "정수필터", Category: "부품", Stock: decimal.NewFromInt(50)}
	existing, err := h.Store.GetItem(ctx, item.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		if _, err := h.Service.CreateItem(ctx, item); err != nil {
			return err
		}
	} else if missing := item.Stock.Sub(existing.Stock); missing.IsPositive() {
		// Reset zeroed the item; bring it back to 50 through the history.
		_, err := h.Service.AdjustStock(ctx, crm.AdjustInput{
			Name:     item.Name,
			Category: item.Category,
			MasterID: string(item.ID),
			Inflow:   missing,
			Note:     "opening stock",
		})
		if err != nil {
			return err
		}
	}

	c, err := h.Service.RegisterCustomer(ctx, crm.CustomerInput{Name: "데모 고객", Step: crm.StepPurchase})
	if err != nil {
		return err
	}
	_, err = h.Service.SubmitReport(ctx, crm.ReportInput{
		CustomerID: c.ID,
		Type:       crm.StepInstall,
		Memo:       "정수기 설치",
		Parts:      []crm.Part{{ItemID: item.ID, Quantity: decimal.NewFromInt(10), Action: crm.ActionConsume}},
	})
	return err
}

func (h *Handler) loadMixedTimestampsScenario(ctx context.Context) error {
	now := time.Now().UTC()

	epoch := scenarioMovement("ts-epoch", "케이블", "비품", 5, 0, 0, now)
	epoch.CreatedAt = inventory.EpochRecord(now.Add(-time.Hour).Unix(), 0)

	native := scenarioMovement("ts-native", "케이블", "비품", 0, 2, 0, now.Add(-time.Minute))

	absent := scenarioMovement("ts-absent", "케이블", "비품", 1, 0, 0, now)
	absent.CreatedAt = inventory.AbsentTime()

	// Inserted out of order on purpose.
	return h.saveAll(ctx, []inventory.Movement{absent, native, epoch})
}

func (h *Handler) saveAll(ctx context.Context, ms []inventory.Movement) error {
	for _, m := range ms {
		if err := h.Store.Save(ctx, m); err != nil {
			return fmt.Errorf("save %s: %w", m.ID, err)
		}
	}
	return nil
}

func scenarioMovement(id, name, category string, in, out, running int64, at time.Time) inventory.Movement {
	m := inventory.Movement{
		ID:           inventory.MovementID(id),
		Name:         name,
		Category:     category,
		Kind:         inventory.KindInventory,
		RunningStock: decimal.NewFromInt(running),
		CreatedAt:    inventory.NativeTime(at),
	}
	if in != 0 {
		m.Inflow = inventory.QtyInt(in)
	}
	if out != 0 {
		m.Outflow = inventory.QtyInt(out)
	}
	return m
}
