package order

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Order records a purchase of a single product. TotalAmount is the price
// snapshot taken at creation and is never recomputed.
type Order struct {
	ID             string          `json:"id" db:"id"`
	UserID         string          `json:"user_id" db:"user_id"`
	ProductID      string          `json:"product_id" db:"product_id"`
	StoreID        string          `json:"store_id" db:"store_id"`
	Quantity       int             `json:"quantity" db:"quantity"`
	TotalAmount    decimal.Decimal `json:"total_amount" db:"total_amount"`
	Status         Status          `json:"status" db:"status"`
	PaymentProof   *string         `json:"payment_proof,omitempty" db:"payment_proof"`
	IdempotencyKey string          `json:"idempotency_key,omitempty" db:"idempotency_key"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// Filter narrows order listings. Empty fields match everything.
type Filter struct {
	UserID  string
	StoreID string
	Status  Status
}

func (f Filter) Matches(o Order) bool {
	if f.UserID != "" && o.UserID != f.UserID {
		return false
	}
	if f.StoreID != "" && o.StoreID != f.StoreID {
		return false
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	return true
}

// Stats aggregates orders by status. Revenue sums completed orders only.
type Stats struct {
	Total      int             `json:"total"`
	Pending    int             `json:"pending"`
	Processing int             `json:"processing"`
	Completed  int             `json:"completed"`
	Cancelled  int             `json:"cancelled"`
	Revenue    decimal.Decimal `json:"revenue"`
}

// MarshalJSON writes Revenue as a JSON number.
func (s Stats) MarshalJSON() ([]byte, error) {
	type plain Stats
	return json.Marshal(struct {
		plain
		Revenue json.Number `json:"revenue"`
	}{plain: plain(s), Revenue: json.Number(s.Revenue.String())})
}

// Add folds o into the aggregate.
func (s *Stats) Add(o Order) {
	s.Total++
	switch o.Status {
	case StatusPending:
		s.Pending++
	case StatusProcessing:
		s.Processing++
	case StatusCompleted:
		s.Completed++
		s.Revenue = s.Revenue.Add(o.TotalAmount)
	case StatusCancelled:
		s.Cancelled++
	}
}

// Summarize computes Stats over orders.
func Summarize(orders []Order) Stats {
	stats := Stats{Revenue: decimal.Zero}
	for _, o := range orders {
		stats.Add(o)
	}
	return stats
}

// CommissionRate is the store's share of an order total.
var CommissionRate = decimal.NewFromInt(20).Div(decimal.NewFromInt(100))

// Commission returns the store's earned share of total, rounded to cents.
func Commission(total decimal.Decimal) decimal.Decimal {
	return total.Mul(CommissionRate).Round(2)
}
