package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/muraguri00/zalora-luxury/internal/app/domain/application"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/audit"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/order"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/product"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/profile"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/wallet"
	"github.com/muraguri00/zalora-luxury/internal/app/storage"
	apperrors "github.com/muraguri00/zalora-luxury/internal/errors"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use; every multi-record write happens under one lock, which
// gives it the same all-or-nothing behaviour as the SQL backend.
type Store struct {
	mu sync.RWMutex

	products     map[string]product.Product
	productOrder []string
	movements    map[string][]product.Movement
	stockKeys    map[string]struct{}

	orders     map[string]order.Order
	orderOrder []string
	orderKeys  map[string]string

	applications     map[string]application.Application
	applicationOrder []string

	wallets     map[string]wallet.Setting
	walletOrder []string

	profiles     map[string]profile.Profile
	profileOrder []string

	auditLog []audit.Entry

	now func() time.Time
}

var _ storage.ProductStore = (*Store)(nil)
var _ storage.OrderStore = (*Store)(nil)
var _ storage.ApplicationStore = (*Store)(nil)
var _ storage.WalletStore = (*Store)(nil)
var _ storage.ProfileStore = (*Store)(nil)
var _ storage.AuditStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		products:     make(map[string]product.Product),
		movements:    make(map[string][]product.Movement),
		stockKeys:    make(map[string]struct{}),
		orders:       make(map[string]order.Order),
		orderKeys:    make(map[string]string),
		applications: make(map[string]application.Application),
		wallets:      make(map[string]wallet.Setting),
		profiles:     make(map[string]profile.Profile),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the timestamp source. Intended for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}

// ProductStore implementation -------------------------------------------------

func (s *Store) CreateProduct(_ context.Context, p product.Product) (product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	} else if _, exists := s.products[p.ID]; exists {
		return product.Product{}, apperrors.WrapStore("products.insert", errDuplicate("product", p.ID))
	}
	if p.Stock < 0 {
		return product.Product{}, apperrors.NewValidationError("stock", "must not be negative")
	}
	now := s.now()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.products[p.ID] = p
	s.productOrder = append(s.productOrder, p.ID)
	return p, nil
}

func (s *Store) UpdateProduct(_ context.Context, p product.Product) (product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[p.ID]
	if !ok {
		return product.Product{}, apperrors.NewNotFoundError("product", p.ID)
	}
	p.Stock = existing.Stock
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = s.now()
	s.products[p.ID] = p
	return p, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return product.Product{}, apperrors.NewNotFoundError("product", id)
	}
	return p, nil
}

func (s *Store) ListProducts(_ context.Context, filter product.Filter) ([]product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]product.Product, 0, len(s.productOrder))
	for i := len(s.productOrder) - 1; i >= 0; i-- {
		p := s.products[s.productOrder[i]]
		if filter.Matches(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return apperrors.NewNotFoundError("product", id)
	}
	delete(s.products, id)
	s.productOrder = removeID(s.productOrder, id)
	return nil
}

func (s *Store) AdjustStock(_ context.Context, adj product.Adjustment) (product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.adjustStockLocked(adj)
}

func (s *Store) adjustStockLocked(adj product.Adjustment) (product.Product, error) {
	p, ok := s.products[adj.ProductID]
	if !ok {
		return product.Product{}, apperrors.NewNotFoundError("product", adj.ProductID)
	}
	if adj.IdempotencyKey != "" {
		if _, seen := s.stockKeys[adj.IdempotencyKey]; seen {
			return p, nil
		}
	}
	next, err := adj.Apply(p.Stock)
	if err != nil {
		return product.Product{}, err
	}
	now := s.now()
	p.Stock = next
	p.UpdatedAt = now
	s.products[p.ID] = p
	s.recordMovementLocked(adj, now)
	return p, nil
}

func (s *Store) recordMovementLocked(adj product.Adjustment, at time.Time) {
	if adj.IdempotencyKey != "" {
		s.stockKeys[adj.IdempotencyKey] = struct{}{}
	}
	s.movements[adj.ProductID] = append(s.movements[adj.ProductID], product.Movement{
		ID:             uuid.NewString(),
		ProductID:      adj.ProductID,
		Delta:          adj.Delta,
		Reason:         adj.Reason,
		Reference:      adj.Reference,
		IdempotencyKey: adj.IdempotencyKey,
		CreatedAt:      at,
	})
}

func (s *Store) SetStock(_ context.Context, id string, quantity int, reference string) (product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return product.Product{}, apperrors.NewNotFoundError("product", id)
	}
	if quantity < 0 {
		return product.Product{}, apperrors.NewValidationError("stock", "must not be negative")
	}
	now := s.now()
	delta := quantity - p.Stock
	p.Stock = quantity
	p.UpdatedAt = now
	s.products[id] = p
	s.recordMovementLocked(product.Adjustment{ProductID: id, Delta: delta, Reason: product.ReasonRestock, Reference: reference}, now)
	return p, nil
}

func (s *Store) ListMovements(_ context.Context, productID string) ([]product.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.movements[productID]
	out := make([]product.Movement, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		out = append(out, src[i])
	}
	return out, nil
}

// OrderStore implementation ---------------------------------------------------

func orderKey(userID, key string) string {
	return userID + "\x00" + key
}

func (s *Store) PlaceOrder(_ context.Context, o order.Order) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.IdempotencyKey != "" {
		if id, ok := s.orderKeys[orderKey(o.UserID, o.IdempotencyKey)]; ok {
			return s.orders[id], nil
		}
	}
	if o.Quantity <= 0 {
		return order.Order{}, apperrors.NewValidationError("quantity", "must be positive")
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}

	if _, err := s.adjustStockLocked(product.Adjustment{
		ProductID:      o.ProductID,
		Delta:          -o.Quantity,
		Reason:         product.ReasonOrder,
		Reference:      o.ID,
		IdempotencyKey: "order:" + o.ID,
	}); err != nil {
		return order.Order{}, err
	}

	now := s.now()
	o.Status = order.StatusPending
	o.CreatedAt = now
	o.UpdatedAt = now
	s.orders[o.ID] = o
	s.orderOrder = append(s.orderOrder, o.ID)
	if o.IdempotencyKey != "" {
		s.orderKeys[orderKey(o.UserID, o.IdempotencyKey)] = o.ID
	}
	return o, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return order.Order{}, apperrors.NewNotFoundError("order", id)
	}
	return o, nil
}

func (s *Store) ListOrders(_ context.Context, filter order.Filter) ([]order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]order.Order, 0, len(s.orderOrder))
	for i := len(s.orderOrder) - 1; i >= 0; i-- {
		o := s.orders[s.orderOrder[i]]
		if filter.Matches(o) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *Store) TransitionOrder(_ context.Context, id string, from, to order.Status, paymentProof *string) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return order.Order{}, apperrors.NewNotFoundError("order", id)
	}
	if o.Status != from {
		return order.Order{}, apperrors.NewInvalidStateError("order", id, string(o.Status), "move to "+string(to))
	}
	o.Status = to
	if paymentProof != nil {
		proof := *paymentProof
		o.PaymentProof = &proof
	}
	o.UpdatedAt = s.now()
	s.orders[id] = o
	return o, nil
}

func (s *Store) CancelOrder(_ context.Context, id string) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return order.Order{}, apperrors.NewNotFoundError("order", id)
	}
	if o.Status != order.StatusPending {
		return order.Order{}, apperrors.NewInvalidStateError("order", id, string(o.Status), "cancel")
	}
	if _, ok := s.products[o.ProductID]; ok {
		if _, err := s.adjustStockLocked(product.Adjustment{
			ProductID: o.ProductID,
			Delta:     o.Quantity,
			Reason:    product.ReasonCancel,
			Reference: o.ID,
		}); err != nil {
			return order.Order{}, err
		}
	}
	o.Status = order.StatusCancelled
	o.UpdatedAt = s.now()
	s.orders[id] = o
	return o, nil
}

// ApplicationStore implementation ---------------------------------------------

func (s *Store) CreateApplication(_ context.Context, a application.Application) (application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.applications {
		if existing.UserID == a.UserID && existing.Status == application.StatusPending {
			return application.Application{}, apperrors.NewDuplicatePendingApplicationError(a.UserID)
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := s.now()
	a.Status = application.StatusPending
	a.CreatedAt = now
	a.UpdatedAt = now
	s.applications[a.ID] = a
	s.applicationOrder = append(s.applicationOrder, a.ID)
	return a, nil
}

func (s *Store) GetApplication(_ context.Context, id string) (application.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.applications[id]
	if !ok {
		return application.Application{}, apperrors.NewNotFoundError("store application", id)
	}
	return a, nil
}

func (s *Store) ListApplications(_ context.Context, filter application.Filter) ([]application.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]application.Application, 0, len(s.applicationOrder))
	for i := len(s.applicationOrder) - 1; i >= 0; i-- {
		a := s.applications[s.applicationOrder[i]]
		if filter.Matches(a) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) ReviewApplication(_ context.Context, id string, review application.Review) (application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.applications[id]
	if !ok {
		return application.Application{}, apperrors.NewNotFoundError("store application", id)
	}
	if review.ReviewedAt.IsZero() {
		review.ReviewedAt = s.now()
	}
	reviewed, err := a.Apply(review)
	if err != nil {
		return application.Application{}, err
	}

	if reviewed.Status == application.StatusApproved {
		p, ok := s.profiles[a.UserID]
		if !ok {
			return application.Application{}, apperrors.NewNotFoundError("profile", a.UserID)
		}
		p.Role = profile.RoleStore
		p.UpdatedAt = review.ReviewedAt
		s.profiles[p.ID] = p
	}
	s.applications[id] = reviewed
	return reviewed, nil
}

// WalletStore implementation --------------------------------------------------

func (s *Store) deactivateTypeLocked(walletType, exceptID string, at time.Time) int {
	count := 0
	for id, w := range s.wallets {
		if id == exceptID || !w.Active || !strings.EqualFold(w.Type, walletType) {
			continue
		}
		w.Active = false
		w.UpdatedAt = at
		s.wallets[id] = w
		count++
	}
	return count
}

func (s *Store) CreateWallet(_ context.Context, w wallet.Setting) (wallet.Setting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w.ID == "" {
		w.ID = uuid.NewString()
	} else if _, exists := s.wallets[w.ID]; exists {
		return wallet.Setting{}, apperrors.WrapStore("wallet_settings.insert", errDuplicate("wallet", w.ID))
	}
	now := s.now()
	if w.Active {
		s.deactivateTypeLocked(w.Type, w.ID, now)
	}
	w.CreatedAt = now
	w.UpdatedAt = now
	s.wallets[w.ID] = w
	s.walletOrder = append(s.walletOrder, w.ID)
	return w, nil
}

func (s *Store) UpdateWallet(_ context.Context, w wallet.Setting) (wallet.Setting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.wallets[w.ID]
	if !ok {
		return wallet.Setting{}, apperrors.NewNotFoundError("wallet", w.ID)
	}
	now := s.now()
	if existing.Active && !strings.EqualFold(existing.Type, w.Type) {
		s.deactivateTypeLocked(w.Type, w.ID, now)
	}
	existing.Address = w.Address
	existing.Type = w.Type
	existing.QRCodeURL = w.QRCodeURL
	existing.UpdatedAt = now
	s.wallets[w.ID] = existing
	return existing, nil
}

func (s *Store) GetWallet(_ context.Context, id string) (wallet.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wallets[id]
	if !ok {
		return wallet.Setting{}, apperrors.NewNotFoundError("wallet", id)
	}
	return w, nil
}

func (s *Store) ListWallets(_ context.Context, filter wallet.Filter) ([]wallet.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]wallet.Setting, 0, len(s.walletOrder))
	for i := len(s.walletOrder) - 1; i >= 0; i-- {
		w := s.wallets[s.walletOrder[i]]
		if filter.Matches(w) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *Store) DeleteWallet(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wallets[id]; !ok {
		return apperrors.NewNotFoundError("wallet", id)
	}
	delete(s.wallets, id)
	s.walletOrder = removeID(s.walletOrder, id)
	return nil
}

func (s *Store) ActivateWallet(_ context.Context, id string) (wallet.Setting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[id]
	if !ok {
		return wallet.Setting{}, apperrors.NewNotFoundError("wallet", id)
	}
	now := s.now()
	s.deactivateTypeLocked(w.Type, id, now)
	w.Active = true
	w.UpdatedAt = now
	s.wallets[id] = w
	return w, nil
}

func (s *Store) DeactivateWallet(_ context.Context, id string) (wallet.Setting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[id]
	if !ok {
		return wallet.Setting{}, apperrors.NewNotFoundError("wallet", id)
	}
	w.Active = false
	w.UpdatedAt = s.now()
	s.wallets[id] = w
	return w, nil
}

func (s *Store) DeactivateWalletsOfType(_ context.Context, walletType string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deactivateTypeLocked(walletType, "", s.now()), nil
}

func (s *Store) ActiveWallet(_ context.Context, walletType string) (wallet.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.walletOrder) - 1; i >= 0; i-- {
		w := s.wallets[s.walletOrder[i]]
		if w.Active && strings.EqualFold(w.Type, walletType) {
			return w, nil
		}
	}
	return wallet.Setting{}, apperrors.NewNotFoundError("active wallet", walletType)
}

// ProfileStore implementation -------------------------------------------------

func (s *Store) CreateProfile(_ context.Context, p profile.Profile) (profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	} else if _, exists := s.profiles[p.ID]; exists {
		return profile.Profile{}, apperrors.WrapStore("user_profiles.insert", errDuplicate("profile", p.ID))
	}
	if p.Role == "" {
		p.Role = profile.RoleCustomer
	}
	now := s.now()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.profiles[p.ID] = p
	s.profileOrder = append(s.profileOrder, p.ID)
	return p, nil
}

func (s *Store) UpdateProfile(_ context.Context, p profile.Profile) (profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.profiles[p.ID]
	if !ok {
		return profile.Profile{}, apperrors.NewNotFoundError("profile", p.ID)
	}
	existing.Email = p.Email
	existing.FullName = p.FullName
	existing.StoreID = p.StoreID
	existing.UpdatedAt = s.now()
	s.profiles[p.ID] = existing
	return existing, nil
}

func (s *Store) GetProfile(_ context.Context, id string) (profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[id]
	if !ok {
		return profile.Profile{}, apperrors.NewNotFoundError("profile", id)
	}
	return p, nil
}

func (s *Store) ListProfiles(_ context.Context, filter profile.Filter) ([]profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]profile.Profile, 0, len(s.profileOrder))
	for i := len(s.profileOrder) - 1; i >= 0; i-- {
		p := s.profiles[s.profileOrder[i]]
		if filter.Role != "" && p.Role != filter.Role {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) SetRole(_ context.Context, id string, role profile.Role) (profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[id]
	if !ok {
		return profile.Profile{}, apperrors.NewNotFoundError("profile", id)
	}
	p.Role = role
	p.UpdatedAt = s.now()
	s.profiles[id] = p
	return p, nil
}

func (s *Store) DeleteProfile(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[id]; !ok {
		return apperrors.NewNotFoundError("profile", id)
	}
	delete(s.profiles, id)
	s.profileOrder = removeID(s.profileOrder, id)
	return nil
}

// AuditStore implementation ---------------------------------------------------

func (s *Store) AppendAudit(_ context.Context, e audit.Entry) (audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	if e.Details != nil {
		details := make(map[string]string, len(e.Details))
		for k, v := range e.Details {
			details[k] = v
		}
		e.Details = details
	}
	s.auditLog = append(s.auditLog, e)
	return e, nil
}

func (s *Store) ListAudit(_ context.Context, filter audit.Filter) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]audit.Entry, 0)
	for i := len(s.auditLog) - 1; i >= 0; i-- {
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
		if filter.Matches(s.auditLog[i]) {
			out = append(out, s.auditLog[i])
		}
	}
	return out, nil
}

type duplicateError struct {
	resource string
	id       string
}

func (e duplicateError) Error() string {
	return e.resource + " " + e.id + " already exists"
}

func errDuplicate(resource, id string) error {
	return duplicateError{resource: resource, id: id}
}
