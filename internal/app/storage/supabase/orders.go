package supabase

import (
	"context"

	"github.com/google/uuid"

	"github.com/muraguri00/zalora-luxury/internal/app/domain/order"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/product"
	apperrors "github.com/muraguri00/zalora-luxury/internal/errors"
	"github.com/muraguri00/zalora-luxury/supabase/client"
)

type placePayload struct {
	Order order.Order `json:"order"`
}

type cancelPayload struct {
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func reservation(o order.Order) product.Adjustment {
	return product.Adjustment{
		ProductID:      o.ProductID,
		Delta:          -o.Quantity,
		Reason:         product.ReasonOrder,
		Reference:      o.ID,
		IdempotencyKey: "order:" + o.ID,
	}
}

func rollback(o order.Order) product.Adjustment {
	return product.Adjustment{
		ProductID:      o.ProductID,
		Delta:          o.Quantity,
		Reason:         product.ReasonAdjust,
		Reference:      o.ID,
		IdempotencyKey: "order-rollback:" + o.ID,
	}
}

func restock(p cancelPayload) product.Adjustment {
	return product.Adjustment{
		ProductID:      p.ProductID,
		Delta:          p.Quantity,
		Reason:         product.ReasonCancel,
		Reference:      p.OrderID,
		IdempotencyKey: "cancel:" + p.OrderID,
	}
}

func (s *Store) orderByKey(ctx context.Context, userID, key string) (order.Order, bool, error) {
	var rows []order.Order
	resp, err := s.db.From(tableOrders).Select("*").
		Eq("user_id", userID).
		Eq("idempotency_key", key).
		Limit(1).
		Execute(ctx)
	if err := decode("orders.lookup", resp, err, &rows); err != nil {
		return order.Order{}, false, err
	}
	if len(rows) == 0 {
		return order.Order{}, false, nil
	}
	return rows[0], true, nil
}

// PlaceOrder reserves stock, then inserts the order. If the insert fails the
// reservation is released before returning.
func (s *Store) PlaceOrder(ctx context.Context, o order.Order) (order.Order, error) {
	if o.IdempotencyKey != "" {
		existing, ok, err := s.orderByKey(ctx, o.UserID, o.IdempotencyKey)
		if err != nil {
			return order.Order{}, err
		}
		if ok {
			return existing, nil
		}
	}
	if o.Quantity <= 0 {
		return order.Order{}, apperrors.NewValidationError("quantity", "must be positive")
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := s.now()
	o.Status = order.StatusPending
	o.CreatedAt = now
	o.UpdatedAt = now

	in, err := s.beginIntent(ctx, kindPlaceOrder, placePayload{Order: o})
	if err != nil {
		return order.Order{}, err
	}
	if _, err := s.AdjustStock(ctx, reservation(o)); err != nil {
		s.finish(ctx, in.ID, intentCompensated, err)
		return order.Order{}, err
	}
	s.advance(ctx, in.ID, stepReserved)

	var rows []order.Order
	resp, err := s.db.From(tableOrders).ExecuteInsert(ctx, o)
	if err := decode("orders.insert", resp, err, &rows); err != nil {
		if _, relErr := s.AdjustStock(ctx, rollback(o)); relErr != nil {
			s.log.WithError(relErr).WithField("order_id", o.ID).Warn("reservation not released, the sweeper will retry")
			return order.Order{}, err
		}
		s.finish(ctx, in.ID, intentCompensated, err)
		if o.IdempotencyKey != "" && client.IsCode(err, client.CodeUniqueViolation) {
			if existing, ok, lookupErr := s.orderByKey(ctx, o.UserID, o.IdempotencyKey); lookupErr == nil && ok {
				return existing, nil
			}
		}
		return order.Order{}, err
	}
	s.finish(ctx, in.ID, intentDone, nil)
	return first(rows, "order", o.ID)
}

func (s *Store) resolvePlacement(ctx context.Context, p placePayload) (string, error) {
	if _, err := s.GetOrder(ctx, p.Order.ID); err == nil {
		return intentDone, nil
	} else if !apperrors.IsNotFound(err) {
		return "", err
	}
	reserved, err := s.movementExists(ctx, reservation(p.Order).IdempotencyKey)
	if err != nil {
		return "", err
	}
	if reserved {
		if _, err := s.AdjustStock(ctx, rollback(p.Order)); err != nil && !apperrors.IsNotFound(err) {
			return "", err
		}
	}
	return intentCompensated, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (order.Order, error) {
	var rows []order.Order
	if err := s.fetch(ctx, tableOrders, id, &rows); err != nil {
		return order.Order{}, err
	}
	return first(rows, "order", id)
}

func (s *Store) ListOrders(ctx context.Context, filter order.Filter) ([]order.Order, error) {
	q := s.db.From(tableOrders).Select("*")
	if filter.UserID != "" {
		q.Eq("user_id", filter.UserID)
	}
	if filter.StoreID != "" {
		q.Eq("store_id", filter.StoreID)
	}
	if filter.Status != "" {
		q.Eq("status", filter.Status)
	}
	resp, err := q.Order("created_at", false).Execute(ctx)
	rows := []order.Order{}
	if err := decode("orders.list", resp, err, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// casStatus patches the order only while its status is still from.
func (s *Store) casStatus(ctx context.Context, id string, from order.Status, patch map[string]any, operation string) (order.Order, error) {
	patch["updated_at"] = ts(s.now())
	var rows []order.Order
	resp, err := s.db.From(tableOrders).Eq("id", id).Eq("status", from).ExecuteUpdate(ctx, patch)
	if err := decode("orders.update_status", resp, err, &rows); err != nil {
		return order.Order{}, err
	}
	if len(rows) > 0 {
		return rows[0], nil
	}
	current, err := s.GetOrder(ctx, id)
	if err != nil {
		return order.Order{}, err
	}
	return order.Order{}, apperrors.NewInvalidStateError("order", id, string(current.Status), operation)
}

func (s *Store) TransitionOrder(ctx context.Context, id string, from, to order.Status, paymentProof *string) (order.Order, error) {
	patch := map[string]any{"status": to}
	if paymentProof != nil {
		patch["payment_proof"] = *paymentProof
	}
	return s.casStatus(ctx, id, from, patch, "move to "+string(to))
}

// CancelOrder flips a pending order to cancelled, then restores its stock.
// A failed restore leaves the intent open for the sweeper to roll forward.
func (s *Store) CancelOrder(ctx context.Context, id string) (order.Order, error) {
	current, err := s.GetOrder(ctx, id)
	if err != nil {
		return order.Order{}, err
	}
	if current.Status != order.StatusPending {
		return order.Order{}, apperrors.NewInvalidStateError("order", id, string(current.Status), "cancel")
	}
	payload := cancelPayload{OrderID: id, ProductID: current.ProductID, Quantity: current.Quantity}
	in, err := s.beginIntent(ctx, kindCancelOrder, payload)
	if err != nil {
		return order.Order{}, err
	}

	cancelled, err := s.casStatus(ctx, id, order.StatusPending, map[string]any{"status": order.StatusCancelled}, "cancel")
	if err != nil {
		s.finish(ctx, in.ID, intentCompensated, err)
		return order.Order{}, err
	}
	s.advance(ctx, in.ID, stepCancelled)

	if _, err := s.AdjustStock(ctx, restock(payload)); err != nil && !apperrors.IsNotFound(err) {
		s.log.WithError(err).WithField("order_id", id).WithField("intent_id", in.ID).Warn("stock not restored, the sweeper will retry")
		return cancelled, nil
	}
	s.finish(ctx, in.ID, intentDone, nil)
	return cancelled, nil
}

func (s *Store) resolveCancellation(ctx context.Context, p cancelPayload) (string, error) {
	o, err := s.GetOrder(ctx, p.OrderID)
	if apperrors.IsNotFound(err) {
		return intentCompensated, nil
	}
	if err != nil {
		return "", err
	}
	if o.Status != order.StatusCancelled {
		return intentCompensated, nil
	}
	if _, err := s.AdjustStock(ctx, restock(p)); err != nil && !apperrors.IsNotFound(err) {
		return "", err
	}
	return intentDone, nil
}
