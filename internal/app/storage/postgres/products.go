package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/muraguri00/zalora-luxury/internal/app/domain/product"
	apperrors "github.com/muraguri00/zalora-luxury/internal/errors"
)

const productColumns = `id, name, description, price, image_url, category, store_id, stock, status, created_at, updated_at`

const movementColumns = `id, product_id, delta, reason, COALESCE(reference, '') AS reference,
	COALESCE(idempotency_key, '') AS idempotency_key, created_at`

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

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (:id, :name, :description, :price, :image_url, :category, :store_id, :stock, :status, :created_at, :updated_at)
	`, p)
	if err != nil {
		return product.Product{}, apperrors.WrapStore("products.insert", err)
	}
	return p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, p product.Product) (product.Product, error) {
	var out product.Product
	err := getOne(ctx, s.db, &out, "products.update", "product", p.ID, `
		UPDATE products
		SET name = $2, description = $3, price = $4, image_url = $5, category = $6,
			store_id = $7, status = $8, updated_at = $9
		WHERE id = $1
		RETURNING `+productColumns,
		p.ID, p.Name, p.Description, p.Price, p.ImageURL, p.Category, p.StoreID, p.Status, s.now())
	return out, err
}

func (s *Store) GetProduct(ctx context.Context, id string) (product.Product, error) {
	return getProduct(ctx, s.db, id)
}

func getProduct(ctx context.Context, q sqlx.QueryerContext, id string) (product.Product, error) {
	var p product.Product
	err := getOne(ctx, q, &p, "products.get", "product", id,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	return p, err
}

func (s *Store) ListProducts(ctx context.Context, filter product.Filter) ([]product.Product, error) {
	var w where
	if filter.Category != "" {
		w.add("category = $%d", filter.Category)
	}
	if filter.Status != "" {
		w.add("status = $%d", filter.Status)
	}
	if filter.StoreID != "" {
		w.add("store_id = $%d", filter.StoreID)
	}
	out := []product.Product{}
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+productColumns+` FROM products`+w.String()+` ORDER BY created_at DESC`, w.args...)
	if err != nil {
		return nil, apperrors.WrapStore("products.list", err)
	}
	return out, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	return execOne(ctx, s.db, "products.delete", "product", id, `DELETE FROM products WHERE id = $1`, id)
}

func (s *Store) AdjustStock(ctx context.Context, adj product.Adjustment) (product.Product, error) {
	var out product.Product
	err := s.withTx(ctx, "products.adjust_stock", func(tx *sqlx.Tx) error {
		var err error
		out, err = s.adjustStockTx(ctx, tx, adj)
		return err
	})
	return out, err
}

// adjustStockTx applies the delta with a conditional update so stock never
// goes below zero, then records the movement in the same transaction.
func (s *Store) adjustStockTx(ctx context.Context, tx *sqlx.Tx, adj product.Adjustment) (product.Product, error) {
	if adj.IdempotencyKey != "" {
		var seen bool
		if err := tx.GetContext(ctx, &seen,
			`SELECT EXISTS (SELECT 1 FROM stock_movements WHERE idempotency_key = $1)`, adj.IdempotencyKey); err != nil {
			return product.Product{}, apperrors.WrapStore("stock_movements.lookup", err)
		}
		if seen {
			return getProduct(ctx, tx, adj.ProductID)
		}
	}

	now := s.now()
	var p product.Product
	err := tx.GetContext(ctx, &p, `
		UPDATE products SET stock = stock + $1, updated_at = $2
		WHERE id = $3 AND stock + $1 >= 0
		RETURNING `+productColumns, adj.Delta, now, adj.ProductID)
	if errors.Is(err, sql.ErrNoRows) {
		var available int
		switch err := tx.GetContext(ctx, &available, `SELECT stock FROM products WHERE id = $1`, adj.ProductID); {
		case errors.Is(err, sql.ErrNoRows):
			return product.Product{}, apperrors.NewNotFoundError("product", adj.ProductID)
		case err != nil:
			return product.Product{}, apperrors.WrapStore("products.get", err)
		}
		return product.Product{}, apperrors.NewInsufficientStockError(adj.ProductID, -adj.Delta, available)
	}
	if pqCode(err) == codeNumericOutOfRange {
		return product.Product{}, apperrors.NewValidationError("quantity", fmt.Sprintf("stock would exceed %d", product.MaxStock))
	}
	if err != nil {
		return product.Product{}, apperrors.WrapStore("products.adjust_stock", err)
	}

	if err := insertMovement(ctx, tx, adj, now); err != nil {
		return product.Product{}, err
	}
	return p, nil
}

func insertMovement(ctx context.Context, tx *sqlx.Tx, adj product.Adjustment, at interface{}) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO stock_movements (id, product_id, delta, reason, reference, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7)
	`, uuid.NewString(), adj.ProductID, adj.Delta, adj.Reason, adj.Reference, adj.IdempotencyKey, at)
	return apperrors.WrapStore("stock_movements.insert", err)
}

func (s *Store) SetStock(ctx context.Context, id string, quantity int, reference string) (product.Product, error) {
	if quantity < 0 {
		return product.Product{}, apperrors.NewValidationError("stock", "must not be negative")
	}
	var out product.Product
	err := s.withTx(ctx, "products.set_stock", func(tx *sqlx.Tx) error {
		var previous int
		err := tx.GetContext(ctx, &previous, `SELECT stock FROM products WHERE id = $1 FOR UPDATE`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NewNotFoundError("product", id)
		}
		if err != nil {
			return apperrors.WrapStore("products.get", err)
		}
		now := s.now()
		if err := tx.GetContext(ctx, &out, `
			UPDATE products SET stock = $1, updated_at = $2 WHERE id = $3
			RETURNING `+productColumns, quantity, now, id); err != nil {
			return apperrors.WrapStore("products.set_stock", err)
		}
		return insertMovement(ctx, tx, product.Adjustment{
			ProductID: id,
			Delta:     quantity - previous,
			Reason:    product.ReasonRestock,
			Reference: reference,
		}, now)
	})
	return out, err
}

func (s *Store) ListMovements(ctx context.Context, productID string) ([]product.Movement, error) {
	out := []product.Movement{}
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+movementColumns+` FROM stock_movements WHERE product_id = $1 ORDER BY created_at DESC`, productID)
	if err != nil {
		return nil, apperrors.WrapStore("stock_movements.list", err)
	}
	return out, nil
}
