// Package inventory owns the product catalogue and its stock ledger.
package inventory

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/muraguri00/zalora-luxury/internal/app/domain/audit"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/product"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/profile"
	"github.com/muraguri00/zalora-luxury/internal/app/events"
	"github.com/muraguri00/zalora-luxury/internal/app/metrics"
	"github.com/muraguri00/zalora-luxury/internal/app/services/auditlog"
	"github.com/muraguri00/zalora-luxury/internal/app/storage"
	apperrors "github.com/muraguri00/zalora-luxury/internal/errors"
	"github.com/muraguri00/zalora-luxury/pkg/logger"
)

// Service manages products and stock.
type Service struct {
	store  storage.ProductStore
	audit  auditlog.Recorder
	events events.Publisher
	log    *logger.Logger
}

// New constructs an inventory service.
func New(store storage.ProductStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("inventory")
	}
	return &Service{store: store, audit: auditlog.Discard, events: events.Discard, log: log}
}

// AttachObservers wires the audit recorder and event publisher. Nil values
// leave the current ones in place.
func (s *Service) AttachObservers(rec auditlog.Recorder, pub events.Publisher) {
	if rec != nil {
		s.audit = rec
	}
	if pub != nil {
		s.events = pub
	}
}

// ProductInput carries the fields of a new product.
type ProductInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image_url"`
	Category    string          `json:"category"`
	Stock       int             `json:"stock"`
	Status      product.Status  `json:"status"`
	// StoreID is honoured for admins only; store owners always create
	// products for their own store.
	StoreID string `json:"store_id"`
}

// ProductPatch carries a partial product update. Nil fields are unchanged.
type ProductPatch struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	ImageURL    *string          `json:"image_url"`
	Category    *string          `json:"category"`
	Status      *product.Status  `json:"status"`
}

func requireStoreRole(p *profile.Principal, op string) error {
	if p == nil {
		return apperrors.NewAuthenticationRequiredError(op)
	}
	if p.Role != profile.RoleStore && p.Role != profile.RoleAdmin {
		return &apperrors.ForbiddenError{Resource: "product", ActorID: p.UserID, Reason: "store or admin role required"}
	}
	return nil
}

// CreateProduct adds a product to the principal's store.
func (s *Service) CreateProduct(ctx context.Context, principal *profile.Principal, in ProductInput) (product.Product, error) {
	if err := requireStoreRole(principal, "inventory.create_product"); err != nil {
		return product.Product{}, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return product.Product{}, apperrors.RequiredError("name")
	}
	if in.Price.IsNegative() {
		return product.Product{}, apperrors.NewValidationError("price", "must not be negative")
	}
	if in.Stock < 0 {
		return product.Product{}, apperrors.NewValidationError("stock", "must not be negative")
	}
	if in.Stock > product.MaxStock {
		return product.Product{}, apperrors.NewValidationError("stock", fmt.Sprintf("must not exceed %d", product.MaxStock))
	}
	if in.Status == "" {
		in.Status = product.StatusActive
	} else if !in.Status.Valid() {
		return product.Product{}, apperrors.NewValidationError("status", "must be active or inactive")
	}

	storeID := principal.StoreIdentity()
	if principal.IsAdmin() && strings.TrimSpace(in.StoreID) != "" {
		storeID = strings.TrimSpace(in.StoreID)
	}

	created, err := s.store.CreateProduct(ctx, product.Product{
		Name:        in.Name,
		Description: strings.TrimSpace(in.Description),
		Price:       in.Price,
		ImageURL:    strings.TrimSpace(in.ImageURL),
		Category:    strings.TrimSpace(in.Category),
		StoreID:     storeID,
		Stock:       in.Stock,
		Status:      in.Status,
	})
	if err != nil {
		return product.Product{}, apperrors.WrapStore("products.insert", err)
	}
	s.log.WithField("product_id", created.ID).WithField("store_id", storeID).Info("product created")
	return created, nil
}

// UpdateProduct applies patch to a product the principal manages. Stock is
// never changed here.
func (s *Service) UpdateProduct(ctx context.Context, principal *profile.Principal, id string, patch ProductPatch) (product.Product, error) {
	p, err := s.managed(ctx, principal, id, "inventory.update_product")
	if err != nil {
		return product.Product{}, err
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return product.Product{}, apperrors.RequiredError("name")
		}
		p.Name = name
	}
	if patch.Description != nil {
		p.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Price != nil {
		if patch.Price.IsNegative() {
			return product.Product{}, apperrors.NewValidationError("price", "must not be negative")
		}
		p.Price = *patch.Price
	}
	if patch.ImageURL != nil {
		p.ImageURL = strings.TrimSpace(*patch.ImageURL)
	}
	if patch.Category != nil {
		p.Category = strings.TrimSpace(*patch.Category)
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return product.Product{}, apperrors.NewValidationError("status", "must be active or inactive")
		}
		p.Status = *patch.Status
	}
	updated, err := s.store.UpdateProduct(ctx, p)
	return updated, apperrors.WrapStore("products.update", err)
}

// DeleteProduct removes a product the principal manages.
func (s *Service) DeleteProduct(ctx context.Context, principal *profile.Principal, id string) error {
	if _, err := s.managed(ctx, principal, id, "inventory.delete_product"); err != nil {
		return err
	}
	if err := s.store.DeleteProduct(ctx, id); err != nil {
		return apperrors.WrapStore("products.delete", err)
	}
	s.log.WithField("product_id", id).WithField("user_id", principal.UserID).Info("product deleted")
	return nil
}

// GetProduct returns a product by id.
func (s *Service) GetProduct(ctx context.Context, id string) (product.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return product.Product{}, apperrors.RequiredError("product_id")
	}
	p, err := s.store.GetProduct(ctx, id)
	return p, apperrors.WrapStore("products.get", err)
}

// ListProducts lists the catalogue newest first.
func (s *Service) ListProducts(ctx context.Context, filter product.Filter) ([]product.Product, error) {
	products, err := s.store.ListProducts(ctx, filter)
	return products, apperrors.WrapStore("products.list", err)
}

// Available resolves productID and checks that quantity units can be
// reserved right now. It does not reserve anything.
func (s *Service) Available(ctx context.Context, productID string, quantity int) (product.Product, error) {
	if quantity <= 0 {
		return product.Product{}, apperrors.NewValidationError("quantity", "must be positive")
	}
	p, err := s.GetProduct(ctx, productID)
	if err != nil {
		return product.Product{}, err
	}
	if p.Status != product.StatusActive {
		return product.Product{}, apperrors.NewInvalidStateError("product", p.ID, string(p.Status), "order")
	}
	if quantity > p.Stock {
		return product.Product{}, apperrors.NewInsufficientStockError(p.ID, quantity, p.Stock)
	}
	return p, nil
}

// Decrement atomically removes quantity units. A repeated idempotency key
// returns the current product without decrementing again.
func (s *Service) Decrement(ctx context.Context, principal *profile.Principal, productID string, quantity int, idempotencyKey string) (product.Product, error) {
	if quantity <= 0 {
		return product.Product{}, apperrors.NewValidationError("quantity", "must be positive")
	}
	return s.adjust(ctx, principal, product.Adjustment{
		ProductID:      productID,
		Delta:          -quantity,
		Reason:         product.ReasonAdjust,
		IdempotencyKey: strings.TrimSpace(idempotencyKey),
	}, "inventory.decrement")
}

// Increment atomically adds quantity units.
func (s *Service) Increment(ctx context.Context, principal *profile.Principal, productID string, quantity int, reason product.Reason, reference string) (product.Product, error) {
	if quantity <= 0 {
		return product.Product{}, apperrors.NewValidationError("quantity", "must be positive")
	}
	if quantity > product.MaxStock {
		return product.Product{}, apperrors.NewValidationError("quantity", fmt.Sprintf("must not exceed %d", product.MaxStock))
	}
	if reason == "" {
		reason = product.ReasonRestock
	}
	return s.adjust(ctx, principal, product.Adjustment{
		ProductID: productID,
		Delta:     quantity,
		Reason:    reason,
		Reference: reference,
	}, "inventory.increment")
}

func (s *Service) adjust(ctx context.Context, principal *profile.Principal, adj product.Adjustment, op string) (product.Product, error) {
	if _, err := s.managed(ctx, principal, adj.ProductID, op); err != nil {
		return product.Product{}, err
	}
	p, err := s.store.AdjustStock(ctx, adj)
	if err != nil {
		return product.Product{}, apperrors.WrapStore("products.adjust_stock", err)
	}
	metrics.RecordStockAdjustment(string(adj.Reason))
	s.stockChanged(ctx, principal, p, adj.Delta, string(adj.Reason))
	return p, nil
}

// SetStock overwrites the stock of a product the principal manages.
func (s *Service) SetStock(ctx context.Context, principal *profile.Principal, productID string, quantity int) (product.Product, error) {
	if quantity < 0 {
		return product.Product{}, apperrors.NewValidationError("stock", "must not be negative")
	}
	if quantity > product.MaxStock {
		return product.Product{}, apperrors.NewValidationError("stock", fmt.Sprintf("must not exceed %d", product.MaxStock))
	}
	before, err := s.managed(ctx, principal, productID, "inventory.set_stock")
	if err != nil {
		return product.Product{}, err
	}
	p, err := s.store.SetStock(ctx, productID, quantity, "set_by:"+principal.UserID)
	if err != nil {
		return product.Product{}, apperrors.WrapStore("products.set_stock", err)
	}
	metrics.RecordStockAdjustment(string(product.ReasonRestock))
	s.stockChanged(ctx, principal, p, p.Stock-before.Stock, string(product.ReasonRestock))
	return p, nil
}

// Movements returns the stock audit trail of a product, newest first.
func (s *Service) Movements(ctx context.Context, principal *profile.Principal, productID string) ([]product.Movement, error) {
	if _, err := s.managed(ctx, principal, productID, "inventory.movements"); err != nil {
		return nil, err
	}
	moves, err := s.store.ListMovements(ctx, productID)
	return moves, apperrors.WrapStore("stock_movements.list", err)
}

func (s *Service) managed(ctx context.Context, principal *profile.Principal, id, op string) (product.Product, error) {
	if err := requireStoreRole(principal, op); err != nil {
		return product.Product{}, err
	}
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return product.Product{}, err
	}
	if !principal.ManagesStore(p.StoreID) {
		return product.Product{}, &apperrors.ForbiddenError{Resource: "product", ID: id, ActorID: principal.UserID, Reason: "not the owning store"}
	}
	return p, nil
}

func (s *Service) stockChanged(ctx context.Context, principal *profile.Principal, p product.Product, delta int, reason string) {
	s.log.WithField("product_id", p.ID).
		WithField("delta", delta).
		WithField("stock", p.Stock).
		WithField("reason", reason).
		Info("stock changed")
	s.audit.Record(ctx, audit.Entry{
		ActorID:    principal.UserID,
		Action:     audit.ActionStockSet,
		EntityType: "product",
		EntityID:   p.ID,
		Details:    map[string]string{"reason": reason, "stock": strconv.Itoa(p.Stock), "delta": strconv.Itoa(delta)},
	})
	s.events.Publish(events.Event{
		Type:     events.StockChanged,
		EntityID: p.ID,
		StoreID:  p.StoreID,
		Payload:  map[string]any{"stock": p.Stock, "delta": delta},
		At:       time.Now().UTC(),
	})
}
