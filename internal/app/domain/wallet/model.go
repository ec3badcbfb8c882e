package wallet

import (
	"strings"
	"time"
)

// DefaultType is used when a wallet is created without a type label.
const DefaultType = "Bitcoin"

// Setting is a payment destination advertised for deposits. At most one
// setting per Type is active.
type Setting struct {
	ID        string    `json:"id" db:"id"`
	Address   string    `json:"wallet_address" db:"wallet_address"`
	Type      string    `json:"wallet_type" db:"wallet_type"`
	QRCodeURL *string   `json:"qr_code_url,omitempty" db:"qr_code_url"`
	Active    bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Filter narrows wallet listings. Type matches case-insensitively.
type Filter struct {
	ActiveOnly bool
	Type       string
}

func (f Filter) Matches(s Setting) bool {
	if f.ActiveOnly && !s.Active {
		return false
	}
	if f.Type != "" && !strings.EqualFold(s.Type, f.Type) {
		return false
	}
	return true
}
