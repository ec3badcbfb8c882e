package storage

import (
	"context"
	"time"

	"github.com/muraguri00/zalora-luxury/internal/app/domain/application"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/audit"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/order"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/product"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/profile"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/wallet"
)

// ProductStore persists the catalogue and owns the stock primitives. All
// listings are ordered newest first.
type ProductStore interface {
	CreateProduct(ctx context.Context, p product.Product) (product.Product, error)
	// UpdateProduct persists every field except Stock.
	UpdateProduct(ctx context.Context, p product.Product) (product.Product, error)
	GetProduct(ctx context.Context, id string) (product.Product, error)
	ListProducts(ctx context.Context, filter product.Filter) ([]product.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	// AdjustStock applies adj.Delta as one atomic step and records a
	// movement. A delta that would take stock below zero fails with
	// InsufficientStockError and changes nothing. A repeated non-empty
	// IdempotencyKey is a no-op that returns the current product.
	AdjustStock(ctx context.Context, adj product.Adjustment) (product.Product, error)
	// SetStock overwrites stock and records the difference as a restock movement.
	SetStock(ctx context.Context, id string, quantity int, reference string) (product.Product, error)
	ListMovements(ctx context.Context, productID string) ([]product.Movement, error)
}

// OrderStore persists orders. Writes that touch stock run in the same unit
// as the order write.
type OrderStore interface {
	// PlaceOrder inserts o and reserves o.Quantity units of o.ProductID
	// together. When an order with the same UserID and IdempotencyKey exists
	// it is returned unchanged and nothing is reserved.
	PlaceOrder(ctx context.Context, o order.Order) (order.Order, error)
	GetOrder(ctx context.Context, id string) (order.Order, error)
	ListOrders(ctx context.Context, filter order.Filter) ([]order.Order, error)
	// TransitionOrder moves the order to `to` only while its stored status is
	// still `from`. A non-nil paymentProof replaces the stored one.
	TransitionOrder(ctx context.Context, id string, from, to order.Status, paymentProof *string) (order.Order, error)
	// CancelOrder cancels a pending order and returns its quantity to stock
	// together.
	CancelOrder(ctx context.Context, id string) (order.Order, error)
}

// ApplicationStore persists store applications.
type ApplicationStore interface {
	// CreateApplication fails with DuplicatePendingApplicationError when the
	// applicant already has a pending application.
	CreateApplication(ctx context.Context, a application.Application) (application.Application, error)
	GetApplication(ctx context.Context, id string) (application.Application, error)
	ListApplications(ctx context.Context, filter application.Filter) ([]application.Application, error)
	// ReviewApplication records the review of a pending application. On
	// approval the applicant's profile role becomes store in the same unit.
	ReviewApplication(ctx context.Context, id string, review application.Review) (application.Application, error)
}

// WalletStore persists wallet settings and keeps at most one active setting
// per wallet type.
type WalletStore interface {
	// CreateWallet inserts s. When s.Active, every other wallet of the same
	// type is deactivated in the same unit.
	CreateWallet(ctx context.Context, s wallet.Setting) (wallet.Setting, error)
	// UpdateWallet persists Address, Type and QRCodeURL. An active wallet
	// moved to another type deactivates the active wallets of that type.
	UpdateWallet(ctx context.Context, s wallet.Setting) (wallet.Setting, error)
	GetWallet(ctx context.Context, id string) (wallet.Setting, error)
	ListWallets(ctx context.Context, filter wallet.Filter) ([]wallet.Setting, error)
	DeleteWallet(ctx context.Context, id string) error

	// ActivateWallet deactivates every wallet of the target's type and
	// activates the target as one unit.
	ActivateWallet(ctx context.Context, id string) (wallet.Setting, error)
	DeactivateWallet(ctx context.Context, id string) (wallet.Setting, error)
	DeactivateWalletsOfType(ctx context.Context, walletType string) (int, error)
	ActiveWallet(ctx context.Context, walletType string) (wallet.Setting, error)
}

// ProfileStore persists user profiles.
type ProfileStore interface {
	CreateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error)
	// UpdateProfile persists Email, FullName and StoreID.
	UpdateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error)
	GetProfile(ctx context.Context, id string) (profile.Profile, error)
	ListProfiles(ctx context.Context, filter profile.Filter) ([]profile.Profile, error)
	SetRole(ctx context.Context, id string, role profile.Role) (profile.Profile, error)
	DeleteProfile(ctx context.Context, id string) error
}

// AuditStore appends and lists audit entries, newest first.
type AuditStore interface {
	AppendAudit(ctx context.Context, e audit.Entry) (audit.Entry, error)
	ListAudit(ctx context.Context, filter audit.Filter) ([]audit.Entry, error)
}

// Reconciler is implemented by backends that complete multi-step writes
// through an intent log rather than a database transaction.
type Reconciler interface {
	Reconcile(ctx context.Context, olderThan time.Duration) (ReconcileReport, error)
}

// ReconcileReport summarises one reconciliation sweep.
type ReconcileReport struct {
	Scanned     int
	Completed   int
	Compensated int
	Failed      int
}
