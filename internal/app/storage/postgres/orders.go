package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/muraguri00/zalora-luxury/internal/app/domain/order"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/product"
	apperrors "github.com/muraguri00/zalora-luxury/internal/errors"
)

const orderColumns = `id, user_id, product_id, store_id, quantity, total_amount, status, payment_proof,
	COALESCE(idempotency_key, '') AS idempotency_key, created_at, updated_at`

func (s *Store) PlaceOrder(ctx context.Context, o order.Order) (order.Order, error) {
	if o.IdempotencyKey != "" {
		existing, err := s.orderByKey(ctx, s.db, o.UserID, o.IdempotencyKey)
		if err != nil || existing != nil {
			return derefOrder(existing), err
		}
	}
	if o.Quantity <= 0 {
		return order.Order{}, apperrors.NewValidationError("quantity", "must be positive")
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}

	err := s.withTx(ctx, "orders.place", func(tx *sqlx.Tx) error {
		if _, err := s.adjustStockTx(ctx, tx, product.Adjustment{
			ProductID:      o.ProductID,
			Delta:          -o.Quantity,
			Reason:         product.ReasonOrder,
			Reference:      o.ID,
			IdempotencyKey: "order:" + o.ID,
		}); err != nil {
			return err
		}
		now := s.now()
		o.Status = order.StatusPending
		o.CreatedAt = now
		o.UpdatedAt = now
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (id, user_id, product_id, store_id, quantity, total_amount, status,
				payment_proof, idempotency_key, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11)
		`, o.ID, o.UserID, o.ProductID, o.StoreID, o.Quantity, o.TotalAmount, o.Status,
			o.PaymentProof, o.IdempotencyKey, o.CreatedAt, o.UpdatedAt)
		return apperrors.WrapStore("orders.insert", err)
	})
	if err != nil && o.IdempotencyKey != "" && isUniqueViolation(err) {
		// A concurrent request with the same key committed first.
		existing, lookupErr := s.orderByKey(ctx, s.db, o.UserID, o.IdempotencyKey)
		if lookupErr == nil && existing != nil {
			return *existing, nil
		}
	}
	if err != nil {
		return order.Order{}, err
	}
	return o, nil
}

func (s *Store) orderByKey(ctx context.Context, q sqlx.QueryerContext, userID, key string) (*order.Order, error) {
	var o order.Order
	err := sqlx.GetContext(ctx, q, &o,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 AND idempotency_key = $2`, userID, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.WrapStore("orders.lookup_key", err)
	}
	return &o, nil
}

func derefOrder(o *order.Order) order.Order {
	if o == nil {
		return order.Order{}
	}
	return *o
}

func (s *Store) GetOrder(ctx context.Context, id string) (order.Order, error) {
	var o order.Order
	err := getOne(ctx, s.db, &o, "orders.get", "order", id,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return o, err
}

func (s *Store) ListOrders(ctx context.Context, filter order.Filter) ([]order.Order, error) {
	var w where
	if filter.UserID != "" {
		w.add("user_id = $%d", filter.UserID)
	}
	if filter.StoreID != "" {
		w.add("store_id = $%d", filter.StoreID)
	}
	if filter.Status != "" {
		w.add("status = $%d", filter.Status)
	}
	out := []order.Order{}
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+orderColumns+` FROM orders`+w.String()+` ORDER BY created_at DESC`, w.args...)
	if err != nil {
		return nil, apperrors.WrapStore("orders.list", err)
	}
	return out, nil
}

func (s *Store) TransitionOrder(ctx context.Context, id string, from, to order.Status, paymentProof *string) (order.Order, error) {
	var o order.Order
	err := s.db.GetContext(ctx, &o, `
		UPDATE orders SET status = $1, payment_proof = COALESCE($2, payment_proof), updated_at = $3
		WHERE id = $4 AND status = $5
		RETURNING `+orderColumns, to, paymentProof, s.now(), id, from)
	if errors.Is(err, sql.ErrNoRows) {
		return order.Order{}, s.staleOrder(ctx, s.db, id, "move to "+string(to))
	}
	if err != nil {
		return order.Order{}, apperrors.WrapStore("orders.transition", err)
	}
	return o, nil
}

// staleOrder explains why a conditional status update matched no row.
func (s *Store) staleOrder(ctx context.Context, q sqlx.QueryerContext, id, op string) error {
	var status order.Status
	err := sqlx.GetContext(ctx, q, &status, `SELECT status FROM orders WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NewNotFoundError("order", id)
	}
	if err != nil {
		return apperrors.WrapStore("orders.get", err)
	}
	return apperrors.NewInvalidStateError("order", id, string(status), op)
}

func (s *Store) CancelOrder(ctx context.Context, id string) (order.Order, error) {
	var o order.Order
	err := s.withTx(ctx, "orders.cancel", func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &o, `
			UPDATE orders SET status = $1, updated_at = $2
			WHERE id = $3 AND status = $4
			RETURNING `+orderColumns, order.StatusCancelled, s.now(), id, order.StatusPending)
		if errors.Is(err, sql.ErrNoRows) {
			return s.staleOrder(ctx, tx, id, "cancel")
		}
		if err != nil {
			return apperrors.WrapStore("orders.cancel", err)
		}

		_, err = s.adjustStockTx(ctx, tx, product.Adjustment{
			ProductID:      o.ProductID,
			Delta:          o.Quantity,
			Reason:         product.ReasonCancel,
			Reference:      o.ID,
			IdempotencyKey: "cancel:" + o.ID,
		})
		if apperrors.IsNotFound(err) {
			// The product was deleted after the order was placed.
			return nil
		}
		return err
	})
	if err != nil {
		return order.Order{}, err
	}
	return o, nil
}
