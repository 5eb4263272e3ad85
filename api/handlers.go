/*
handlers.go - HTTP API handlers for the CRM inventory service

PURPOSE:
  Exposes the stock engine and the CRM report service via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Stock:
    GET    /api/stock?name=&category=      Fast read (aggregate, history fallback)
    POST   /api/stock/heal                 Heal one identity
    POST   /api/stock/heal-all             Heal every identity

  Movements:
    GET    /api/movements?name=&category=  History for one identity
    POST   /api/movements                  Administrative adjustment

  Items:
    POST   /api/items                      Create master item
    GET    /api/items                      List items
    GET    /api/items/{id}                 Get item

  Customers & reports:
    POST   /api/customers                  Register customer (+ consumed parts)
    GET    /api/customers/{id}
    POST   /api/reports                    Submit report (deducts parts)
    GET    /api/reports/{id}
    DELETE /api/reports/{id}               Delete report (restores parts)

  Admin:
    POST   /api/admin/reset                Zero aggregates, drop inventory history

  Scenarios:
    GET    /api/scenarios                  List demo scenarios
    POST   /api/scenarios/load             Reset and load a demo scenario

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Item, customer, or report not found
  - 409: Transaction kept conflicting; the client may retry
  - 500: Internal errors (logged)

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
  - crm/service.go: Report and customer operations
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/warp/crm-inventory/crm"
	"github.com/warp/crm-inventory/inventory"
	"github.com/warp/crm-inventory/logging"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   inventory.Store
	Service *crm.Service
	Reader  *inventory.Reader
	Logger  *logrus.Logger

	validate *validator.Validate

	// Track currently loaded demo scenario
	scenarioMu      sync.Mutex
	currentScenario string
}

// NewHandler creates a handler over store. The service's Healer is shared
// with the heal endpoints, so a Locker set on it applies to both.
func NewHandler(store inventory.Store, svc *crm.Service, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if svc == nil {
		svc = crm.NewService(store, logger)
	}
	return &Handler{
		Store:    store,
		Service:  svc,
		Reader:   inventory.NewReader(store, logger),
		Logger:   logger,
		validate: validator.New(),
	}
}

// =============================================================================
// STOCK HANDLERS
// =============================================================================

// GetStock returns the latest stock for one identity.
func (h *Handler) GetStock(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFromQuery(w, r)
	if !ok {
		return
	}

	stock, err := h.Reader.LatestStock(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "GetStock", "Failed to read stock", err)
		return
	}

	writeJSON(w, http.StatusOK, StockDTO{Name: id.Name, Category: id.Category, Stock: stock.String()})
}

// HealStock reconciles one identity's history and aggregate.
func (h *Handler) HealStock(w http.ResponseWriter, r *http.Request) {
	var req HealRequest
	if !h.decode(w, r, &req) {
		return
	}

	id := inventory.Identity{Name: req.Name, Category: req.Category, MasterID: req.MasterID}
	res, err := h.Service.Healer.Heal(r.Context(), inventory.HealInput{Identity: id})
	if err != nil {
		h.writeDomainError(w, "HealStock", "Failed to heal stock", err)
		return
	}

	writeJSON(w, http.StatusOK, toHealResultDTO(res))
}

// HealAllStock heals every identity in the history.
func (h *Handler) HealAllStock(w http.ResponseWriter, r *http.Request) {
	results, err := h.Service.Healer.HealAll(r.Context())
	if err != nil {
		h.writeDomainError(w, "HealAllStock", "Failed to heal stock", err)
		return
	}

	resp := HealAllResponse{Healed: len(results), Results: make([]HealResultDTO, len(results))}
	for i, res := range results {
		resp.Results[i] = toHealResultDTO(res)
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// MOVEMENT HANDLERS
// =============================================================================

// ListMovements returns the inventory history of one identity, in insertion
// order.
func (h *Handler) ListMovements(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFromQuery(w, r)
	if !ok {
		return
	}

	ms, err := h.Store.Query(r.Context(), inventory.InventoryOf(id))
	if err != nil {
		h.writeDomainError(w, "ListMovements", "Failed to list movements", err)
		return
	}

	dtos := make([]MovementDTO, len(ms))
	for i, m := range ms {
		dtos[i] = toMovementDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAdjustment records an administrative inflow/outflow.
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.Service.AdjustStock(r.Context(), crm.AdjustInput{
		Name:     req.Name,
		Category: req.Category,
		MasterID: req.MasterID,
		Inflow:   req.Inflow,
		Outflow:  req.Outflow,
		Note:     req.Note,
	})
	if err != nil {
		h.writeDomainError(w, "CreateAdjustment", "Failed to create adjustment", err)
		return
	}

	resp := AdjustmentResponse{Movement: toMovementDTO(res.Movement)}
	if res.Heal != nil {
		dto := toHealResultDTO(res.Heal)
		resp.Heal = &dto
	}
	writeJSON(w, http.StatusCreated, resp)
}

// =============================================================================
// ITEM HANDLERS
// =============================================================================

// CreateItem registers a master item and records its opening stock in the
// history.
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Stock.IsNegative() {
		writeError(w, http.StatusBadRequest, "Stock must not be negative", nil)
		return
	}

	item, err := h.Service.CreateItem(r.Context(), inventory.Item{
		ID:       inventory.ItemID(req.ID),
		Name:     req.Name,
		Category: req.Category,
		Stock:    req.Stock,
	})
	if err != nil {
		h.writeDomainError(w, "CreateItem", "Failed to create item", err)
		return
	}

	writeJSON(w, http.StatusCreated, toItemDTO(*item))
}

func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Store.ListItems(r.Context())
	if err != nil {
		h.writeDomainError(w, "ListItems", "Failed to list items", err)
		return
	}

	dtos := make([]ItemDTO, len(items))
	for i, it := range items {
		dtos[i] = toItemDTO(it)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	item, err := h.Store.GetItem(r.Context(), inventory.ItemID(id))
	if err != nil {
		h.writeDomainError(w, "GetItem", "Failed to get item", err)
		return
	}
	if item == nil {
		writeError(w, http.StatusNotFound, "Item not found", nil)
		return
	}

	writeJSON(w, http.StatusOK, toItemDTO(*item))
}

// =============================================================================
// CUSTOMER & REPORT HANDLERS
// =============================================================================

func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req CreateCustomerRequest
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.Service.RegisterCustomer(r.Context(), crm.CustomerInput{
		Name:    req.Name,
		Phone:   req.Phone,
		Address: req.Address,
		Step:    crm.Step(req.Step),
		Parts:   toParts(req.Parts),
	})
	if err != nil {
		h.writeDomainError(w, "CreateCustomer", "Failed to register customer", err)
		return
	}

	writeJSON(w, http.StatusCreated, toCustomerDTO(*c))
}

func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := h.Service.GetCustomer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "GetCustomer", "Failed to get customer", err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerDTO(*c))
}

// SubmitReport records a visit and deducts its consumed parts.
func (h *Handler) SubmitReport(w http.ResponseWriter, r *http.Request) {
	var req SubmitReportRequest
	if !h.decode(w, r, &req) {
		return
	}

	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use RFC3339 or YYYY-MM-DD)", err)
		return
	}

	report, err := h.Service.SubmitReport(r.Context(), crm.ReportInput{
		CustomerID: req.CustomerID,
		Type:       crm.Step(req.Type),
		Date:       date,
		Memo:       req.Memo,
		Parts:      toParts(req.Parts),
	})
	if err != nil {
		h.writeDomainError(w, "SubmitReport", "Failed to submit report", err)
		return
	}

	writeJSON(w, http.StatusCreated, toReportDTO(*report))
}

func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.Service.GetReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "GetReport", "Failed to get report", err)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(*report))
}

// DeleteReport removes a report and restores its consumed parts.
func (h *Handler) DeleteReport(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteReport(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeDomainError(w, "DeleteReport", "Failed to delete report", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// ResetInventory zeroes every aggregate and item stock and deletes inventory
// history in one commit.
func (h *Handler) ResetInventory(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.ResetInventory(r.Context())
	if err != nil {
		h.writeDomainError(w, "ResetInventory", "Failed to reset inventory", err)
		return
	}
	writeJSON(w, http.StatusOK, ResetResponse{Status: "ok", DeletedMovements: res.DeletedMovements})
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads a JSON body into dst and validates it. On failure it writes
// the 400 response and returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:  "Validation failed",
				Fields: validationFields(verrs),
			})
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func validationFields(verrs validator.ValidationErrors) map[string]string {
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return fields
}

func identityFromQuery(w http.ResponseWriter, r *http.Request) (inventory.Identity, bool) {
	q := r.URL.Query()
	id := inventory.Identity{
		Name:     q.Get("name"),
		Category: q.Get("category"),
		MasterID: q.Get("master_id"),
	}.Normalize()
	if id.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return id, false
	}
	return id, true
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// writeDomainError maps engine and service errors to HTTP status codes.
// Unexpected errors are logged.
func (h *Handler) writeDomainError(w http.ResponseWriter, funcName, message string, err error) {
	switch {
	case errors.Is(err, inventory.ErrItemExists):
		writeError(w, http.StatusConflict, message, err)
	case errors.Is(err, crm.ErrInvalidInput), inventory.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case inventory.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case inventory.IsRetryable(err):
		writeError(w, http.StatusConflict, message, err)
	default:
		logging.LogError(h.Logger, "api", funcName, message, nil, err)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
