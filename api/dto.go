/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Request types carry validator/v10 struct tags and are checked by
  Handler.decode before any handler logic runs. Quantities are decimals and
  are range-checked by the service layer.

QUANTITIES:
  Every quantity is a decimal string in responses ("12.5"). Requests accept
  either a JSON number or a string.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/crm-inventory/crm"
	"github.com/warp/crm-inventory/inventory"
)

// =============================================================================
// STOCK
// =============================================================================

type StockDTO struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Stock    string `json:"stock"`
}

type HealRequest struct {
	Name     string `json:"name" validate:"required"`
	Category string `json:"category"`
	MasterID string `json:"master_id"`
}

type CorrectionDTO struct {
	ID   string `json:"id"`
	From string `json:"from"`
	To   string `json:"to"`
}

type HealResultDTO struct {
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	Key          string          `json:"key"`
	Records      int             `json:"records"`
	CurrentStock string          `json:"current_stock"`
	TotalInflow  string          `json:"total_inflow"`
	TotalOutflow string          `json:"total_outflow"`
	Corrections  []CorrectionDTO `json:"corrections"`
	HealedAt     *string         `json:"healed_at,omitempty"`
}

type HealAllResponse struct {
	Healed  int             `json:"healed"`
	Results []HealResultDTO `json:"results"`
}

func toHealResultDTO(r *inventory.HealResult) HealResultDTO {
	dto := HealResultDTO{
		Name:         r.Identity.Name,
		Category:     r.Identity.Category,
		Key:          r.Key,
		Records:      r.Records,
		CurrentStock: r.CurrentStock.String(),
		TotalInflow:  r.TotalInflow.String(),
		TotalOutflow: r.TotalOutflow.String(),
		Corrections:  make([]CorrectionDTO, len(r.Corrections)),
	}
	for i, c := range r.Corrections {
		dto.Corrections[i] = CorrectionDTO{ID: string(c.ID), From: c.From.String(), To: c.To.String()}
	}
	if r.HealedAt != nil {
		dto.HealedAt = strPtr(r.HealedAt.Format(time.RFC3339))
	}
	return dto
}

// =============================================================================
// MOVEMENTS
// =============================================================================

type MovementDTO struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Category     string              `json:"category"`
	MasterID     string              `json:"master_id,omitempty"`
	Kind         string              `json:"kind"`
	Inflow       *string             `json:"inflow"`
	Outflow      *string             `json:"outflow"`
	RunningStock string              `json:"running_stock"`
	CreatedAt    inventory.Timestamp `json:"created_at"`
	Direction    string              `json:"direction,omitempty"`
	CustomerID   string              `json:"customer_id,omitempty"`
	ReportID     string              `json:"report_id,omitempty"`
	Note         string              `json:"note,omitempty"`
}

func toMovementDTO(m inventory.Movement) MovementDTO {
	return MovementDTO{
		ID:           string(m.ID),
		Name:         m.Name,
		Category:     m.Category,
		MasterID:     m.MasterID,
		Kind:         string(m.Kind),
		Inflow:       nullDecimalPtr(m.Inflow),
		Outflow:      nullDecimalPtr(m.Outflow),
		RunningStock: m.RunningStock.String(),
		CreatedAt:    m.CreatedAt,
		Direction:    string(m.Direction),
		CustomerID:   m.CustomerID,
		ReportID:     m.ReportID,
		Note:         m.Note,
	}
}

// AdjustmentRequest is an administrative inflow/outflow record.
type AdjustmentRequest struct {
	Name     string          `json:"name" validate:"required"`
	Category string          `json:"category"`
	MasterID string          `json:"master_id"`
	Inflow   decimal.Decimal `json:"inflow"`
	Outflow  decimal.Decimal `json:"outflow"`
	Note     string          `json:"note" validate:"max=500"`
}

type AdjustmentResponse struct {
	Movement MovementDTO    `json:"movement"`
	Heal     *HealResultDTO `json:"heal,omitempty"`
}

// =============================================================================
// ITEMS
// =============================================================================

type CreateItemRequest struct {
	ID       string          `json:"id" validate:"required,max=64"`
	Name     string          `json:"name" validate:"required"`
	Category string          `json:"category"`
	Stock    decimal.Decimal `json:"stock"`
}

type ItemDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Stock    string `json:"stock"`
}

func toItemDTO(it inventory.Item) ItemDTO {
	return ItemDTO{ID: string(it.ID), Name: it.Name, Category: it.Category, Stock: it.Stock.String()}
}

// =============================================================================
// CUSTOMERS & REPORTS
// =============================================================================

type PartRequest struct {
	ItemID   string          `json:"item_id" validate:"required"`
	Quantity decimal.Decimal `json:"quantity"`
	Action   string          `json:"action" validate:"required,oneof=consume restock inspect"`
}

type CreateCustomerRequest struct {
	Name    string        `json:"name" validate:"required,max=100"`
	Phone   string        `json:"phone" validate:"max=30"`
	Address string        `json:"address"`
	Step    string        `json:"step" validate:"omitempty,oneof=inquiry demo purchase install as"`
	Parts   []PartRequest `json:"parts" validate:"dive"`
}

type SubmitReportRequest struct {
	CustomerID string        `json:"customer_id" validate:"required"`
	Type       string        `json:"type" validate:"required,oneof=inquiry demo purchase install as"`
	Date       string        `json:"date"` // RFC3339 or YYYY-MM-DD; empty means now
	Memo       string        `json:"memo" validate:"max=2000"`
	Parts      []PartRequest `json:"parts" validate:"dive"`
}

type CustomerDTO struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Phone          string `json:"phone,omitempty"`
	Address        string `json:"address,omitempty"`
	CurrentStep    string `json:"current_step"`
	LastActivityAt string `json:"last_activity_at"`
}

func toCustomerDTO(c crm.Customer) CustomerDTO {
	return CustomerDTO{
		ID:             c.ID,
		Name:           c.Name,
		Phone:          c.Phone,
		Address:        c.Address,
		CurrentStep:    string(c.CurrentStep),
		LastActivityAt: c.LastActivityAt.Format(time.RFC3339),
	}
}

type PartDTO struct {
	ItemID   string `json:"item_id"`
	Quantity string `json:"quantity"`
	Action   string `json:"action"`
}

type ReportDTO struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	Type       string    `json:"type"`
	Date       string    `json:"date"`
	Memo       string    `json:"memo,omitempty"`
	Parts      []PartDTO `json:"parts"`
}

func toReportDTO(r crm.Report) ReportDTO {
	dto := ReportDTO{
		ID:         r.ID,
		CustomerID: r.CustomerID,
		Type:       string(r.Type),
		Date:       r.Date.Format(time.RFC3339),
		Memo:       r.Memo,
		Parts:      make([]PartDTO, len(r.Parts)),
	}
	for i, p := range r.Parts {
		dto.Parts[i] = PartDTO{ItemID: string(p.ItemID), Quantity: p.Quantity.String(), Action: string(p.Action)}
	}
	return dto
}

func toParts(reqs []PartRequest) []crm.Part {
	parts := make([]crm.Part, len(reqs))
	for i, p := range reqs {
		parts[i] = crm.Part{ItemID: inventory.ItemID(p.ItemID), Quantity: p.Quantity, Action: crm.PartAction(p.Action)}
	}
	return parts
}

// =============================================================================
// ADMIN & ERRORS
// =============================================================================

type ResetResponse struct {
	Status           string `json:"status"`
	DeletedMovements int64  `json:"deleted_movements"`
}

// ErrorResponse is returned for every non-2xx response. Fields maps request
// fields to the validation rule they failed.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func nullDecimalPtr(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	return strPtr(d.Decimal.String())
}

func strPtr(s string) *string {
	return &s
}
