package supabase

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/muraguri00/zalora-luxury/internal/app/domain/product"
	apperrors "github.com/muraguri00/zalora-luxury/internal/errors"
	"github.com/muraguri00/zalora-luxury/supabase/client"
)

var errStockContention = errors.New("stock changed concurrently on every attempt")

func (s *Store) CreateProduct(ctx context.Context, p product.Product) (product.Product, error) {
	if p.Stock < 0 {
		return product.Product{}, apperrors.NewValidationError("stock", "must not be negative")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := s.now()
	p.CreatedAt = now
	p.UpdatedAt = now

	var rows []product.Product
	resp, err := s.db.From(tableProducts).ExecuteInsert(ctx, p)
	if err := decode("products.insert", resp, err, &rows); err != nil {
		return product.Product{}, err
	}
	return first(rows, "product", p.ID)
}

func (s *Store) UpdateProduct(ctx context.Context, p product.Product) (product.Product, error) {
	patch := map[string]any{
		"name":        p.Name,
		"description": p.Description,
		"price":       p.Price,
		"image_url":   p.ImageURL,
		"category":    p.Category,
		"store_id":    p.StoreID,
		"status":      p.Status,
		"updated_at":  ts(s.now()),
	}
	var rows []product.Product
	resp, err := s.db.From(tableProducts).Eq("id", p.ID).ExecuteUpdate(ctx, patch)
	if err := decode("products.update", resp, err, &rows); err != nil {
		return product.Product{}, err
	}
	return first(rows, "product", p.ID)
}

func (s *Store) GetProduct(ctx context.Context, id string) (product.Product, error) {
	var rows []product.Product
	if err := s.fetch(ctx, tableProducts, id, &rows); err != nil {
		return product.Product{}, err
	}
	return first(rows, "product", id)
}

func (s *Store) ListProducts(ctx context.Context, filter product.Filter) ([]product.Product, error) {
	q := s.db.From(tableProducts).Select("*")
	if filter.Category != "" {
		q.Eq("category", filter.Category)
	}
	if filter.Status != "" {
		q.Eq("status", filter.Status)
	}
	if filter.StoreID != "" {
		q.Eq("store_id", filter.StoreID)
	}
	resp, err := q.Order("created_at", false).Execute(ctx)
	rows := []product.Product{}
	if err := decode("products.list", resp, err, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	return s.remove(ctx, tableProducts, "product", id)
}

func (s *Store) AdjustStock(ctx context.Context, adj product.Adjustment) (product.Product, error) {
	if s.rpc.Load() {
		p, handled, err := s.adjustStockRPC(ctx, adj)
		if handled {
			return p, err
		}
	}
	return s.adjustStockCAS(ctx, adj)
}

// adjustStockRPC calls adjust_stock. handled is false when the function is
// not deployed; RPC is then disabled for the life of the store.
func (s *Store) adjustStockRPC(ctx context.Context, adj product.Adjustment) (p product.Product, handled bool, err error) {
	params := map[string]any{
		"p_product_id":      adj.ProductID,
		"p_delta":           adj.Delta,
		"p_reason":          adj.Reason,
		"p_reference":       nullable(adj.Reference),
		"p_idempotency_key": nullable(adj.IdempotencyKey),
	}
	resp, err := s.db.RPC(ctx, "adjust_stock", params)
	if err != nil {
		return product.Product{}, true, apperrors.WrapStore("products.adjust_stock", err)
	}
	if apiErr := resp.Error(); apiErr != nil {
		switch {
		case client.IsCode(apiErr, client.CodeNoFunction):
			s.rpc.Store(false)
			s.log.Warn("adjust_stock function missing, using compare-and-swap")
			return product.Product{}, false, nil
		case client.IsCode(apiErr, client.CodeRaisedNoData):
			return product.Product{}, true, apperrors.NewNotFoundError("product", adj.ProductID)
		case client.IsCode(apiErr, client.CodeOutOfRange):
			return product.Product{}, true, apperrors.NewValidationError("quantity", fmt.Sprintf("stock would exceed %d", product.MaxStock))
		case client.IsCode(apiErr, client.CodeCheckViolation):
			current, err := s.GetProduct(ctx, adj.ProductID)
			if err != nil {
				return product.Product{}, true, err
			}
			return product.Product{}, true, apperrors.NewInsufficientStockError(adj.ProductID, -adj.Delta, current.Stock)
		}
		return product.Product{}, true, apperrors.WrapStore("products.adjust_stock", apiErr)
	}
	if err := resp.JSON(&p); err != nil {
		return product.Product{}, true, apperrors.WrapStore("products.adjust_stock.decode", err)
	}
	return p, true, nil
}

// adjustStockCAS reads the product and patches it filtered on the stock it
// read. An empty patch result means another writer got there first.
func (s *Store) adjustStockCAS(ctx context.Context, adj product.Adjustment) (product.Product, error) {
	for attempt := 0; attempt < s.casAttempts; attempt++ {
		current, err := s.GetProduct(ctx, adj.ProductID)
		if err != nil {
			return product.Product{}, err
		}
		if adj.IdempotencyKey != "" {
			seen, err := s.movementExists(ctx, adj.IdempotencyKey)
			if err != nil {
				return product.Product{}, err
			}
			if seen {
				return current, nil
			}
		}
		next, err := adj.Apply(current.Stock)
		if err != nil {
			return product.Product{}, err
		}

		updated, swapped, err := s.swapStock(ctx, current, next)
		if err != nil {
			return product.Product{}, err
		}
		if !swapped {
			continue
		}

		if err := s.insertMovement(ctx, adj); err != nil {
			if client.IsCode(err, client.CodeUniqueViolation) {
				// A concurrent call with the same key recorded first; undo ours.
				if _, undoErr := s.adjustStockCAS(ctx, product.Adjustment{ProductID: adj.ProductID, Delta: -adj.Delta, Reason: product.ReasonAdjust, Reference: "undo:" + adj.IdempotencyKey}); undoErr != nil {
					return product.Product{}, undoErr
				}
				return s.GetProduct(ctx, adj.ProductID)
			}
			s.log.WithError(err).WithField("product_id", adj.ProductID).Warn("stock movement not recorded")
		}
		return updated, nil
	}
	return product.Product{}, apperrors.WrapStore("products.adjust_stock", errStockContention)
}

func (s *Store) swapStock(ctx context.Context, current product.Product, next int) (product.Product, bool, error) {
	var rows []product.Product
	resp, err := s.db.From(tableProducts).
		Eq("id", current.ID).
		Eq("stock", current.Stock).
		ExecuteUpdate(ctx, map[string]any{"stock": next, "updated_at": ts(s.now())})
	if err := decode("products.swap_stock", resp, err, &rows); err != nil {
		return product.Product{}, false, err
	}
	if len(rows) == 0 {
		return product.Product{}, false, nil
	}
	return rows[0], true, nil
}

func (s *Store) movementExists(ctx context.Context, key string) (bool, error) {
	var rows []product.Movement
	resp, err := s.db.From(tableMovements).Select("id").Eq("idempotency_key", key).Limit(1).Execute(ctx)
	if err := decode("stock_movements.lookup", resp, err, &rows); err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// insertMovement returns the raw *client.APIError so callers can detect a
// duplicate idempotency key.
func (s *Store) insertMovement(ctx context.Context, adj product.Adjustment) error {
	m := product.Movement{
		ID:             uuid.NewString(),
		ProductID:      adj.ProductID,
		Delta:          adj.Delta,
		Reason:         adj.Reason,
		Reference:      adj.Reference,
		IdempotencyKey: adj.IdempotencyKey,
		CreatedAt:      s.now(),
	}
	resp, err := s.db.From(tableMovements).ExecuteInsert(ctx, m)
	if err != nil {
		return err
	}
	return resp.Error()
}

func (s *Store) SetStock(ctx context.Context, id string, quantity int, reference string) (product.Product, error) {
	if quantity < 0 {
		return product.Product{}, apperrors.NewValidationError("stock", "must not be negative")
	}
	for attempt := 0; attempt < s.casAttempts; attempt++ {
		current, err := s.GetProduct(ctx, id)
		if err != nil {
			return product.Product{}, err
		}
		updated, swapped, err := s.swapStock(ctx, current, quantity)
		if err != nil {
			return product.Product{}, err
		}
		if !swapped {
			continue
		}
		adj := product.Adjustment{ProductID: id, Delta: quantity - current.Stock, Reason: product.ReasonRestock, Reference: reference}
		if err := s.insertMovement(ctx, adj); err != nil {
			s.log.WithError(err).WithField("product_id", id).Warn("stock movement not recorded")
		}
		return updated, nil
	}
	return product.Product{}, apperrors.WrapStore("products.set_stock", errStockContention)
}

func (s *Store) ListMovements(ctx context.Context, productID string) ([]product.Movement, error) {
	resp, err := s.db.From(tableMovements).Select("*").Eq("product_id", productID).Order("created_at", false).Execute(ctx)
	rows := []product.Movement{}
	if err := decode("stock_movements.list", resp, err, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
