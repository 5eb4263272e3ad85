package crm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/crm-inventory/inventory"
)

var (
	ErrCustomerNotFound = fmt.Errorf("customer %w", inventory.ErrDocumentNotFound)
	ErrReportNotFound   = fmt.Errorf("report %w", inventory.ErrDocumentNotFound)

	// ErrInvalidInput is returned for requests the service refuses before
	// touching the store.
	ErrInvalidInput = errors.New("invalid input")
)

// =============================================================================
// SERVICE - Report lifecycle with transactional stock effects
// =============================================================================

type Service struct {
	Store   inventory.Store
	Applier *inventory.Applier
	Healer  *inventory.Healer
	Logger  *logrus.Logger
	Now     inventory.Clock
	NewID   func() string
}

func NewService(store inventory.Store, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		Store:   store,
		Applier: inventory.NewApplier(store, logger),
		Healer:  inventory.NewHealer(store, logger),
		Logger:  logger,
		Now:     time.Now,
		NewID:   uuid.NewString,
	}
}

// =============================================================================
// REPORTS
// =============================================================================

type ReportInput struct {
	CustomerID string
	Type       Step
	Date       time.Time
	Memo       string
	Parts      []Part
}

// SubmitReport records a visit. In one transaction it writes the report,
// advances the customer's pipeline step and last activity date, and deducts
// every consumed part.
func (s *Service) SubmitReport(ctx context.Context, in ReportInput) (*Report, error) {
	if err := validateReport(in); err != nil {
		return nil, err
	}

	now := s.now()
	report := Report{
		ID:         s.NewID(),
		CustomerID: in.CustomerID,
		Type:       in.Type,
		Date:       in.Date,
		Memo:       in.Memo,
		Parts:      in.Parts,
		CreatedAt:  now,
	}
	if report.Date.IsZero() {
		report.Date = now
	}

	var customer Customer
	_, err := s.Applier.Apply(ctx, inventory.Operation{
		Direction:  inventory.DirectionDeduct,
		Lines:      report.ConsumedLines(),
		CustomerID: report.CustomerID,
		ReportID:   report.ID,
		Note:       "report:" + string(report.Type),
		Read: func(ctx context.Context, tx inventory.Tx) ([]inventory.Line, error) {
			customer = Customer{}
			found, err := tx.GetDocument(ctx, customerRef(report.CustomerID), &customer)
			if err != nil {
				return nil, fmt.Errorf("read customer: %w", err)
			}
			if !found {
				return nil, fmt.Errorf("%w: %s", ErrCustomerNotFound, report.CustomerID)
			}
			return nil, nil
		},
		Write: func(ctx context.Context, tx inventory.Tx) error {
			if err := tx.PutDocument(ctx, reportRef(report.ID), report); err != nil {
				return err
			}
			customer.Record(report)
			return tx.PutDocument(ctx, customerRef(customer.ID), customer)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("submit report: %w", err)
	}
	return &report, nil
}

// DeleteReport removes a report and gives its consumed parts back to stock,
// in one transaction.
func (s *Service) DeleteReport(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: report id is required", ErrInvalidInput)
	}

	_, err := s.Applier.Reverse(ctx, inventory.Operation{
		ReportID: id,
		Note:     "report deleted",
		Read: func(ctx context.Context, tx inventory.Tx) ([]inventory.Line, error) {
			var r Report
			found, err := tx.GetDocument(ctx, reportRef(id), &r)
			if err != nil {
				return nil, fmt.Errorf("read report: %w", err)
			}
			if !found {
				return nil, fmt.Errorf("%w: %s", ErrReportNotFound, id)
			}
			return r.ConsumedLines(), nil
		},
		Write: func(ctx context.Context, tx inventory.Tx) error {
			return tx.DeleteDocument(ctx, reportRef(id))
		},
	})
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	return nil
}

func (s *Service) GetReport(ctx context.Context, id string) (*Report, error) {
	var r Report
	found, err := s.Store.GetDocument(ctx, reportRef(id), &r)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	return &r, nil
}

func validateReport(in ReportInput) error {
	if strings.TrimSpace(in.CustomerID) == "" {
		return fmt.Errorf("%w: customer id is required", ErrInvalidInput)
	}
	if !in.Type.Valid() {
		return fmt.Errorf("%w: unknown report type %q", ErrInvalidInput, in.Type)
	}
	return validateParts(in.Parts)
}

func validateParts(parts []Part) error {
	for i, p := range parts {
		if p.ItemID == "" {
			return fmt.Errorf("%w: part %d has no item", ErrInvalidInput, i)
		}
		if !p.Action.Valid() {
			return fmt.Errorf("%w: part %d has unknown action %q", ErrInvalidInput, i, p.Action)
		}
		if !p.Quantity.IsPositive() {
			return fmt.Errorf("%w: part %d quantity must be positive", ErrInvalidInput, i)
		}
	}
	return nil
}

// =============================================================================
// CUSTOMERS
// =============================================================================

type CustomerInput struct {
	Name    string
	Phone   string
	Address string
	Step    Step

	// Parts consumed at registration (e.g. a unit delivered on signup).
	Parts []Part
}

// RegisterCustomer creates a customer and deducts any consumed parts in the
// same transaction.
func (s *Service) RegisterCustomer(ctx context.Context, in CustomerInput) (*Customer, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	step := in.Step
	if step == "" {
		step = StepInquiry
	}
	if !step.Valid() {
		return nil, fmt.Errorf("%w: unknown step %q", ErrInvalidInput, step)
	}
	if err := validateParts(in.Parts); err != nil {
		return nil, err
	}

	now := s.now()
	customer := Customer{
		ID:             s.NewID(),
		Name:           strings.TrimSpace(in.Name),
		Phone:          in.Phone,
		Address:        in.Address,
		CurrentStep:    step,
		LastActivityAt: now,
		CreatedAt:      now,
	}
	lines := Report{Parts: in.Parts}.ConsumedLines()

	_, err := s.Applier.Apply(ctx, inventory.Operation{
		Direction:  inventory.DirectionDeduct,
		Lines:      lines,
		CustomerID: customer.ID,
		Note:       "customer registered",
		Write: func(ctx context.Context, tx inventory.Tx) error {
			return tx.PutDocument(ctx, customerRef(customer.ID), customer)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("register customer: %w", err)
	}
	return &customer, nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	var c Customer
	found, err := s.Store.GetDocument(ctx, customerRef(id), &c)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrCustomerNotFound, id)
	}
	return &c, nil
}

// =============================================================================
// ITEMS
// =============================================================================

// CreateItem registers a master item. Its stock is written to the history as
// an opening inflow in the same transaction, so a heal agrees with the item.
func (s *Service) CreateItem(ctx context.Context, item inventory.Item) (*inventory.Item, error) {
	item.ID = inventory.ItemID(strings.TrimSpace(string(item.ID)))
	if item.ID == "" {
		return nil, fmt.Errorf("%w: item id is required", ErrInvalidInput)
	}

	res, err := s.Applier.OpenItem(ctx, item, "opening stock")
	if err != nil {
		return nil, err
	}
	return &res.Items[0], nil
}

// =============================================================================
// ADMIN STOCK ADJUSTMENT
// =============================================================================

type AdjustInput struct {
	Name     string
	Category string
	MasterID string
	Inflow   decimal.Decimal
	Outflow  decimal.Decimal
	Note     string
}

type AdjustResult struct {
	Movement inventory.Movement
	Heal     *inventory.HealResult
}

// AdjustStock records an administrative inflow/outflow for an identity.
//
// The record's running stock is pre-populated from the existing history
// (CalculateInitialStock), then the identity is healed so the aggregate and
// every running stock reflect the new record. When MasterID names an item,
// the item's stock moves by the same delta in the same transaction.
func (s *Service) AdjustStock(ctx context.Context, in AdjustInput) (*AdjustResult, error) {
	id := inventory.Identity{Name: in.Name, Category: in.Category, MasterID: in.MasterID}.Normalize()
	if id.Name == "" {
		return nil, fmt.Errorf("%w: name is required", inventory.ErrInvalidIdentity)
	}
	if in.Inflow.IsNegative() || in.Outflow.IsNegative() {
		return nil, fmt.Errorf("%w: inflow and outflow must not be negative", inventory.ErrInvalidQuantity)
	}
	if in.Inflow.IsZero() && in.Outflow.IsZero() {
		return nil, fmt.Errorf("%w: nothing to adjust", inventory.ErrInvalidQuantity)
	}

	existing, err := s.Store.Query(ctx, inventory.Filter{Identity: &id})
	if err != nil {
		return nil, fmt.Errorf("adjust stock: load history: %w", err)
	}
	delta := in.Inflow.Sub(in.Outflow)

	m := inventory.Movement{
		ID:           inventory.MovementID(s.NewID()),
		Name:         id.Name,
		Category:     id.Category,
		MasterID:     id.MasterID,
		Kind:         inventory.KindInventory,
		RunningStock: inventory.CalculateInitialStock(id.Name, id.Category, existing, delta, id.MasterID),
		CreatedAt:    inventory.NativeTime(s.now()),
		Direction:    inventory.DirectionAdjust,
		Note:         in.Note,
	}
	if !in.Inflow.IsZero() {
		m.Inflow = inventory.Qty(in.Inflow)
	}
	if !in.Outflow.IsZero() {
		m.Outflow = inventory.Qty(in.Outflow)
	}

	err = s.Store.RunTransaction(ctx, func(ctx context.Context, raw inventory.Tx) error {
		tx := inventory.Guard(raw)
		var item *inventory.Item
		if id.MasterID != "" {
			var err error
			if item, err = tx.GetItem(ctx, inventory.ItemID(id.MasterID)); err != nil {
				return err
			}
		}
		if item != nil {
			updated := *item
			updated.Stock = updated.Stock.Add(delta)
			if err := tx.PutItem(ctx, updated); err != nil {
				return err
			}
		}
		return tx.AppendMovement(ctx, m)
	})
	if err != nil {
		return nil, fmt.Errorf("adjust stock: %w", err)
	}

	res, err := s.Healer.Heal(ctx, inventory.HealInput{Identity: id})
	if err != nil {
		// The record is durable; the next heal pass will pick it up.
		s.logger().WithError(err).WithField("identity", id.String()).Warn("adjust stock: heal after adjustment failed")
		return &AdjustResult{Movement: m}, nil
	}
	return &AdjustResult{Movement: m, Heal: res}, nil
}

// =============================================================================
// ADMIN RESET
// =============================================================================

type ResetResult struct {
	DeletedMovements int64
}

// ResetInventory zeroes every aggregate and item stock and deletes all
// inventory-kind history in one store commit. Product and divider records
// are kept.
func (s *Service) ResetInventory(ctx context.Context) (*ResetResult, error) {
	deleted, err := s.Store.ResetInventory(ctx)
	if err != nil {
		return nil, fmt.Errorf("reset inventory: %w", err)
	}

	s.logger().WithField("deleted_movements", deleted).Warn("inventory reset")
	return &ResetResult{DeletedMovements: deleted}, nil
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *Service) logger() *logrus.Logger {
	if s.Logger == nil {
		return logrus.StandardLogger()
	}
	return s.Logger
}
