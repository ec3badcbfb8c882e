package product

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/muraguri00/zalora-luxury/internal/errors"
)

// MaxStock is the largest stock a product can hold. It matches the INTEGER
// stock column.
const MaxStock = math.MaxInt32

// Status controls whether a product is listed in the catalogue.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

func (s Status) Valid() bool { return s == StatusActive || s == StatusInactive }

// Product is a sellable item owned by a single store account.
type Product struct {
	ID          string          `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description" db:"description"`
	Price       decimal.Decimal `json:"price" db:"price"`
	ImageURL    string          `json:"image_url" db:"image_url"`
	Category    string          `json:"category" db:"category"`
	StoreID     string          `json:"store_id" db:"store_id"`
	Stock       int             `json:"stock" db:"stock"`
	Status      Status          `json:"status" db:"status"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// Filter narrows catalogue listings. Empty fields match everything.
type Filter struct {
	Category string
	Status   Status
	StoreID  string
}

// Matches reports whether p satisfies f.
func (f Filter) Matches(p Product) bool {
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.StoreID != "" && p.StoreID != f.StoreID {
		return false
	}
	return true
}

// Reason classifies a stock movement.
type Reason string

const (
	ReasonOrder   Reason = "order"
	ReasonCancel  Reason = "cancel"
	ReasonRestock Reason = "restock"
	ReasonAdjust  Reason = "adjust"
)

// Movement is one entry of a product's stock audit trail. Delta is negative
// for reservations and positive for releases and restocks.
type Movement struct {
	ID             string    `json:"id" db:"id"`
	ProductID      string    `json:"product_id" db:"product_id"`
	Delta          int       `json:"delta" db:"delta"`
	Reason         Reason    `json:"reason" db:"reason"`
	Reference      string    `json:"reference,omitempty" db:"reference"`
	IdempotencyKey string    `json:"idempotency_key,omitempty" db:"idempotency_key"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Adjustment describes a relative stock change.
type Adjustment struct {
	ProductID      string
	Delta          int
	Reason         Reason
	Reference      string
	IdempotencyKey string
}

// Apply returns stock with the delta added. The result stays within
// [0, MaxStock].
func (a Adjustment) Apply(stock int) (int, error) {
	if a.Delta < 0 && stock+a.Delta < 0 {
		return 0, apperrors.NewInsufficientStockError(a.ProductID, -a.Delta, stock)
	}
	if a.Delta > 0 && stock > MaxStock-a.Delta {
		return 0, apperrors.NewValidationError("quantity", fmt.Sprintf("stock would exceed %d", MaxStock))
	}
	return stock + a.Delta, nil
}
