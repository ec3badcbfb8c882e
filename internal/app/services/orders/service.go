// Package orders implements the order lifecycle: placement with stock
// reservation, status transitions, cancellation and statistics.
package orders

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/muraguri00/zalora-luxury/internal/app/domain/audit"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/order"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/product"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/profile"
	"github.com/muraguri00/zalora-luxury/internal/app/events"
	"github.com/muraguri00/zalora-luxury/internal/app/metrics"
	"github.com/muraguri00/zalora-luxury/internal/app/services/auditlog"
	"github.com/muraguri00/zalora-luxury/internal/app/storage"
	apperrors "github.com/muraguri00/zalora-luxury/internal/errors"
	"github.com/muraguri00/zalora-luxury/pkg/logger"
)

// Catalog resolves products for ordering. *inventory.Service satisfies it.
type Catalog interface {
	// Available returns the product when quantity units can be reserved now.
	Available(ctx context.Context, productID string, quantity int) (product.Product, error)
	GetProduct(ctx context.Context, id string) (product.Product, error)
}

// Service manages orders.
type Service struct {
	store   storage.OrderStore
	catalog Catalog
	audit   auditlog.Recorder
	events  events.Publisher
	log     *logger.Logger
}

// New constructs an order service.
func New(store storage.OrderStore, catalog Catalog, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("orders")
	}
	return &Service{store: store, catalog: catalog, audit: auditlog.Discard, events: events.Discard, log: log}
}

// AttachObservers wires the audit recorder and event publisher.
func (s *Service) AttachObservers(rec auditlog.Recorder, pub events.Publisher) {
	if rec != nil {
		s.audit = rec
	}
	if pub != nil {
		s.events = pub
	}
}

// CreateInput describes an order request.
type CreateInput struct {
	ProductID      string  `json:"product_id"`
	Quantity       int     `json:"quantity"`
	PaymentProof   *string `json:"payment_proof,omitempty"`
	IdempotencyKey string  `json:"idempotency_key,omitempty"`
}

// View is an order as presented to callers, with the store's commission.
type View struct {
	order.Order
	Commission decimal.Decimal `json:"commission"`
}

// WithCommission decorates o for display.
func WithCommission(o order.Order) View {
	return View{Order: o, Commission: CommissionFor(o.TotalAmount)}
}

// CommissionFor returns the store's share of total. It is never persisted.
func CommissionFor(total decimal.Decimal) decimal.Decimal {
	return order.Commission(total)
}

// Create places an order for the principal. The stock reservation and the
// order insert happen in one storage unit.
func (s *Service) Create(ctx context.Context, principal *profile.Principal, in CreateInput) (order.Order, error) {
	if principal == nil {
		return order.Order{}, apperrors.NewAuthenticationRequiredError("orders.create")
	}
	in.ProductID = strings.TrimSpace(in.ProductID)
	if in.ProductID == "" {
		return order.Order{}, apperrors.RequiredError("product_id")
	}
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)

	p, err := s.catalog.Available(ctx, in.ProductID, in.Quantity)
	if err != nil {
		// A retried request may find the stock its first attempt reserved
		// already gone; let the store resolve the key.
		if in.IdempotencyKey == "" || !apperrors.IsInsufficientStock(err) {
			s.recordFailure(err)
			return order.Order{}, err
		}
		if p, err = s.catalog.GetProduct(ctx, in.ProductID); err != nil {
			s.recordFailure(err)
			return order.Order{}, err
		}
	}

	id := uuid.NewString()
	start := time.Now()
	placed, err := s.store.PlaceOrder(ctx, order.Order{
		ID:             id,
		UserID:         principal.UserID,
		ProductID:      p.ID,
		StoreID:        p.StoreID,
		Quantity:       in.Quantity,
		TotalAmount:    p.Price.Mul(decimal.NewFromInt(int64(in.Quantity))),
		PaymentProof:   in.PaymentProof,
		IdempotencyKey: in.IdempotencyKey,
	})
	metrics.RecordStoreOperation("orders.place", time.Since(start), err)
	if err != nil {
		s.recordFailure(err)
		return order.Order{}, apperrors.WrapStore("orders.place", err)
	}

	if placed.ID != id {
		metrics.RecordOrderPlaced("replayed")
		s.log.WithField("order_id", placed.ID).WithField("idempotency_key", in.IdempotencyKey).Info("order replayed")
		return placed, nil
	}
	metrics.RecordOrderPlaced("created")
	s.log.WithField("order_id", placed.ID).
		WithField("product_id", placed.ProductID).
		WithField("quantity", placed.Quantity).
		WithField("total", placed.TotalAmount.String()).
		Info("order created")
	s.audit.Record(ctx, audit.Entry{
		ActorID:    principal.UserID,
		Action:     audit.ActionOrderCreated,
		EntityType: "order",
		EntityID:   placed.ID,
		Details: map[string]string{
			"product_id": placed.ProductID,
			"quantity":   strconv.Itoa(placed.Quantity),
			"total":      placed.TotalAmount.String(),
		},
	})
	s.publish(events.OrderCreated, placed)
	return placed, nil
}

func (s *Service) recordFailure(err error) {
	if apperrors.IsInsufficientStock(err) {
		metrics.RecordOrderPlaced("insufficient_stock")
		return
	}
	metrics.RecordOrderPlaced("failed")
}

// UpdateStatus moves an order along the lifecycle. Moving to cancelled runs
// the cancellation path so stock is returned. The write only lands while the
// stored status is still the one that was read.
func (s *Service) UpdateStatus(ctx context.Context, principal *profile.Principal, id string, to order.Status, paymentProof *string) (order.Order, error) {
	o, err := s.load(ctx, principal, id, "orders.update_status")
	if err != nil {
		return order.Order{}, err
	}
	if !principal.ManagesStore(o.StoreID) {
		return order.Order{}, &apperrors.ForbiddenError{Resource: "order", ID: id, ActorID: principal.UserID, Reason: "only the owning store or an admin may change status"}
	}
	if err := order.Transition(o.ID, o.Status, to); err != nil {
		return order.Order{}, err
	}
	if to == order.StatusCancelled {
		return s.cancel(ctx, principal, o)
	}

	updated, err := s.store.TransitionOrder(ctx, o.ID, o.Status, to, paymentProof)
	if err != nil {
		return order.Order{}, apperrors.WrapStore("orders.transition", err)
	}
	metrics.RecordOrderTransition(string(to))
	s.log.WithField("order_id", o.ID).WithField("from", o.Status).WithField("to", to).Info("order status changed")
	s.audit.Record(ctx, audit.Entry{
		ActorID:    principal.UserID,
		Action:     audit.ActionOrderStatusChanged,
		EntityType: "order",
		EntityID:   o.ID,
		Details:    map[string]string{"from": string(o.Status), "to": string(to)},
	})
	s.publish(events.OrderStatusChanged, updated)
	return updated, nil
}

// Cancel cancels a pending order and returns its quantity to stock. The
// purchaser, the owning store and admins may cancel.
func (s *Service) Cancel(ctx context.Context, principal *profile.Principal, id string) (order.Order, error) {
	o, err := s.load(ctx, principal, id, "orders.cancel")
	if err != nil {
		return order.Order{}, err
	}
	if !principal.Owns(o.UserID) && !principal.ManagesStore(o.StoreID) {
		return order.Order{}, &apperrors.ForbiddenError{Resource: "order", ID: id, ActorID: principal.UserID, Reason: "not the purchaser or owning store"}
	}
	if o.Status != order.StatusPending {
		return order.Order{}, apperrors.NewInvalidStateError("order", o.ID, string(o.Status), "cancel")
	}
	return s.cancel(ctx, principal, o)
}

func (s *Service) cancel(ctx context.Context, principal *profile.Principal, o order.Order) (order.Order, error) {
	cancelled, err := s.store.CancelOrder(ctx, o.ID)
	if err != nil {
		return order.Order{}, apperrors.WrapStore("orders.cancel", err)
	}
	metrics.RecordOrderTransition(string(order.StatusCancelled))
	metrics.RecordStockAdjustment(string(product.ReasonCancel))
	s.log.WithField("order_id", o.ID).WithField("quantity", o.Quantity).Info("order cancelled")
	s.audit.Record(ctx, audit.Entry{
		ActorID:    principal.UserID,
		Action:     audit.ActionOrderCancelled,
		EntityType: "order",
		EntityID:   o.ID,
		Details:    map[string]string{"restored": strconv.Itoa(o.Quantity), "product_id": o.ProductID},
	})
	s.publish(events.OrderCancelled, cancelled)
	return cancelled, nil
}

// Get returns an order visible to the principal.
func (s *Service) Get(ctx context.Context, principal *profile.Principal, id string) (order.Order, error) {
	o, err := s.load(ctx, principal, id, "orders.get")
	if err != nil {
		return order.Order{}, err
	}
	if !principal.Owns(o.UserID) && !principal.ManagesStore(o.StoreID) {
		return order.Order{}, apperrors.NewForbiddenError("order", id, principal.UserID)
	}
	return o, nil
}

// List returns orders visible to the principal, newest first. Customers are
// limited to their purchases and stores to their own store, unless a store
// asks for its own purchases.
func (s *Service) List(ctx context.Context, principal *profile.Principal, filter order.Filter) ([]order.Order, error) {
	if principal == nil {
		return nil, apperrors.NewAuthenticationRequiredError("orders.list")
	}
	filter, err := scope(principal, filter)
	if err != nil {
		return nil, err
	}
	orders, err := s.store.ListOrders(ctx, filter)
	return orders, apperrors.WrapStore("orders.list", err)
}

func scope(principal *profile.Principal, filter order.Filter) (order.Filter, error) {
	switch principal.Role {
	case profile.RoleAdmin:
	case profile.RoleStore:
		if filter.UserID == principal.UserID {
			filter.StoreID = ""
			break
		}
		filter.StoreID = principal.StoreIdentity()
	default:
		filter.UserID = principal.UserID
		filter.StoreID = ""
	}
	if filter.Status != "" {
		if _, ok := order.ParseStatus(string(filter.Status)); !ok {
			return order.Filter{}, apperrors.NewValidationError("status", "unknown status "+string(filter.Status))
		}
	}
	return filter, nil
}

// Stats aggregates orders by status. Admins may scope to any store or none;
// store owners always get their own store.
func (s *Service) Stats(ctx context.Context, principal *profile.Principal, storeID string) (order.Stats, error) {
	if principal == nil {
		return order.Stats{}, apperrors.NewAuthenticationRequiredError("orders.stats")
	}
	switch {
	case principal.IsAdmin():
	case principal.IsStore():
		storeID = principal.StoreIdentity()
	default:
		return order.Stats{}, &apperrors.ForbiddenError{Resource: "order stats", ActorID: principal.UserID, Reason: "store or admin role required"}
	}
	orders, err := s.store.ListOrders(ctx, order.Filter{StoreID: strings.TrimSpace(storeID)})
	if err != nil {
		return order.Stats{}, apperrors.WrapStore("orders.stats", err)
	}
	return order.Summarize(orders), nil
}

func (s *Service) load(ctx context.Context, principal *profile.Principal, id, op string) (order.Order, error) {
	if principal == nil {
		return order.Order{}, apperrors.NewAuthenticationRequiredError(op)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return order.Order{}, apperrors.RequiredError("order_id")
	}
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return order.Order{}, apperrors.WrapStore("orders.get", err)
	}
	return o, nil
}

func (s *Service) publish(kind string, o order.Order) {
	s.events.Publish(events.Event{
		Type:     kind,
		EntityID: o.ID,
		StoreID:  o.StoreID,
		UserID:   o.UserID,
		Payload:  WithCommission(o),
		At:       o.UpdatedAt,
	})
}
