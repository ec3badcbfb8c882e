// Package wallets manages the payment destinations advertised for deposits.
// At most one wallet per type is active at any time.
package wallets

import (
	"context"
	"strings"

	"github.com/muraguri00/zalora-luxury/internal/app/domain/audit"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/profile"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/wallet"
	"github.com/muraguri00/zalora-luxury/internal/app/events"
	"github.com/muraguri00/zalora-luxury/internal/app/metrics"
	"github.com/muraguri00/zalora-luxury/internal/app/services/auditlog"
	"github.com/muraguri00/zalora-luxury/internal/app/storage"
	apperrors "github.com/muraguri00/zalora-luxury/internal/errors"
	"github.com/muraguri00/zalora-luxury/pkg/logger"
)

// WarnQRUnavailable is surfaced when a wallet was saved without a QR image.
const WarnQRUnavailable = "qr code could not be generated; wallet saved without one"

// Service manages wallet settings.
type Service struct {
	store  storage.WalletStore
	qr     QRGenerator
	audit  auditlog.Recorder
	events events.Publisher
	log    *logger.Logger
}

// New constructs a wallet service. A nil generator disables QR generation.
func New(store storage.WalletStore, qr QRGenerator, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("wallets")
	}
	return &Service{store: store, qr: qr, audit: auditlog.Discard, events: events.Discard, log: log}
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

// CreateInput describes a new wallet. Active defaults to true.
type CreateInput struct {
	Address   string  `json:"wallet_address"`
	Type      string  `json:"wallet_type"`
	QRCodeURL *string `json:"qr_code_url,omitempty"`
	Active    *bool   `json:"is_active,omitempty"`
}

// UpdateInput is a partial wallet update. Nil fields are unchanged.
type UpdateInput struct {
	Address   *string `json:"wallet_address,omitempty"`
	Type      *string `json:"wallet_type,omitempty"`
	QRCodeURL *string `json:"qr_code_url,omitempty"`
}

// CreateResult carries the saved wallet and any recoverable warnings.
type CreateResult struct {
	Wallet   wallet.Setting `json:"wallet"`
	Warnings []string       `json:"warnings,omitempty"`
}

// Create saves a wallet. When it is active, the other wallets of its type are
// deactivated in the same store call. QR failures never block creation.
func (s *Service) Create(ctx context.Context, principal *profile.Principal, in CreateInput) (CreateResult, error) {
	if err := requireAdmin(principal, "wallets.create"); err != nil {
		return CreateResult{}, err
	}
	address := strings.TrimSpace(in.Address)
	if address == "" {
		return CreateResult{}, apperrors.RequiredError("wallet_address")
	}
	walletType := strings.TrimSpace(in.Type)
	if walletType == "" {
		walletType = wallet.DefaultType
	}
	active := true
	if in.Active != nil {
		active = *in.Active
	}

	var result CreateResult
	qr := trimmed(in.QRCodeURL)
	if qr == nil {
		var warned bool
		qr, warned = s.generate(ctx, address)
		if warned {
			result.Warnings = append(result.Warnings, WarnQRUnavailable)
		}
	}

	created, err := s.store.CreateWallet(ctx, wallet.Setting{Address: address, Type: walletType, QRCodeURL: qr, Active: active})
	if err != nil {
		return CreateResult{}, apperrors.WrapStore("wallet_settings.insert", err)
	}
	result.Wallet = created
	if active {
		metrics.RecordWalletActivation()
	}
	s.log.WithField("wallet_id", created.ID).WithField("wallet_type", walletType).WithField("active", active).Info("wallet created")
	s.changed(ctx, principal, audit.ActionWalletCreated, created)
	return result, nil
}

// generate returns the QR reference for address. The bool reports a failure
// that was recovered from.
func (s *Service) generate(ctx context.Context, address string) (*string, bool) {
	if s.qr == nil {
		return nil, false
	}
	ref, err := s.qr.Generate(ctx, address)
	if err != nil {
		metrics.RecordQRFailure()
		s.log.WithError(err).WithField("wallet_address", address).Warn("qr generation failed")
		return nil, true
	}
	return &ref, false
}

// Update changes the address, type or QR reference of a wallet. A new address
// without an explicit QR reference gets a regenerated code.
func (s *Service) Update(ctx context.Context, principal *profile.Principal, id string, in UpdateInput) (CreateResult, error) {
	if err := requireAdmin(principal, "wallets.update"); err != nil {
		return CreateResult{}, err
	}
	current, err := s.get(ctx, id)
	if err != nil {
		return CreateResult{}, err
	}

	var result CreateResult
	next := current
	if in.Address != nil {
		address := strings.TrimSpace(*in.Address)
		if address == "" {
			return CreateResult{}, apperrors.RequiredError("wallet_address")
		}
		if address != current.Address && in.QRCodeURL == nil {
			var warned bool
			next.QRCodeURL, warned = s.generate(ctx, address)
			if warned {
				result.Warnings = append(result.Warnings, WarnQRUnavailable)
			}
		}
		next.Address = address
	}
	if in.Type != nil {
		walletType := strings.TrimSpace(*in.Type)
		if walletType == "" {
			return CreateResult{}, apperrors.RequiredError("wallet_type")
		}
		next.Type = walletType
	}
	if in.QRCodeURL != nil {
		next.QRCodeURL = trimmed(in.QRCodeURL)
	}

	updated, err := s.store.UpdateWallet(ctx, next)
	if err != nil {
		return CreateResult{}, apperrors.WrapStore("wallet_settings.update", err)
	}
	result.Wallet = updated
	s.changed(ctx, principal, audit.ActionWalletUpdated, updated)
	return result, nil
}

// Activate makes id the only active wallet of its type, atomically.
func (s *Service) Activate(ctx context.Context, principal *profile.Principal, id string) (wallet.Setting, error) {
	if err := requireAdmin(principal, "wallets.activate"); err != nil {
		return wallet.Setting{}, err
	}
	w, err := s.store.ActivateWallet(ctx, strings.TrimSpace(id))
	if err != nil {
		return wallet.Setting{}, apperrors.WrapStore("wallet_settings.activate", err)
	}
	metrics.RecordWalletActivation()
	s.log.WithField("wallet_id", w.ID).WithField("wallet_type", w.Type).Info("wallet activated")
	s.changed(ctx, principal, audit.ActionWalletActivated, w)
	return w, nil
}

// ToggleActive sets the active flag. Activating goes through Activate so the
// single-active rule holds.
func (s *Service) ToggleActive(ctx context.Context, principal *profile.Principal, id string, active bool) (wallet.Setting, error) {
	if active {
		return s.Activate(ctx, principal, id)
	}
	if err := requireAdmin(principal, "wallets.deactivate"); err != nil {
		return wallet.Setting{}, err
	}
	w, err := s.store.DeactivateWallet(ctx, strings.TrimSpace(id))
	if err != nil {
		return wallet.Setting{}, apperrors.WrapStore("wallet_settings.deactivate", err)
	}
	s.log.WithField("wallet_id", w.ID).Info("wallet deactivated")
	s.changed(ctx, principal, audit.ActionWalletDeactivated, w)
	return w, nil
}

// DeactivateAllOfType clears the active flag on every wallet of walletType
// and returns how many changed.
func (s *Service) DeactivateAllOfType(ctx context.Context, principal *profile.Principal, walletType string) (int, error) {
	if err := requireAdmin(principal, "wallets.deactivate_type"); err != nil {
		return 0, err
	}
	walletType = strings.TrimSpace(walletType)
	if walletType == "" {
		return 0, apperrors.RequiredError("wallet_type")
	}
	n, err := s.store.DeactivateWalletsOfType(ctx, walletType)
	if err != nil {
		return 0, apperrors.WrapStore("wallet_settings.deactivate_type", err)
	}
	s.log.WithField("wallet_type", walletType).WithField("count", n).Info("wallets deactivated")
	if n > 0 {
		s.audit.Record(ctx, audit.Entry{
			ActorID:    principal.UserID,
			Action:     audit.ActionWalletDeactivated,
			EntityType: "wallet_type",
			EntityID:   walletType,
		})
		s.events.Publish(events.Event{Type: events.WalletChanged, EntityID: walletType})
	}
	return n, nil
}

// ActiveByType returns the active wallet of walletType. Anonymous callers may
// read it.
func (s *Service) ActiveByType(ctx context.Context, walletType string) (wallet.Setting, error) {
	walletType = strings.TrimSpace(walletType)
	if walletType == "" {
		walletType = wallet.DefaultType
	}
	w, err := s.store.ActiveWallet(ctx, walletType)
	return w, apperrors.WrapStore("wallet_settings.active", err)
}

// Get returns a wallet by id.
func (s *Service) Get(ctx context.Context, principal *profile.Principal, id string) (wallet.Setting, error) {
	if principal == nil {
		return wallet.Setting{}, apperrors.NewAuthenticationRequiredError("wallets.get")
	}
	return s.get(ctx, id)
}

func (s *Service) get(ctx context.Context, id string) (wallet.Setting, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return wallet.Setting{}, apperrors.RequiredError("wallet_id")
	}
	w, err := s.store.GetWallet(ctx, id)
	return w, apperrors.WrapStore("wallet_settings.get", err)
}

// List returns wallets newest first.
func (s *Service) List(ctx context.Context, principal *profile.Principal, filter wallet.Filter) ([]wallet.Setting, error) {
	if principal == nil {
		return nil, apperrors.NewAuthenticationRequiredError("wallets.list")
	}
	wallets, err := s.store.ListWallets(ctx, filter)
	return wallets, apperrors.WrapStore("wallet_settings.list", err)
}

// Delete removes a wallet.
func (s *Service) Delete(ctx context.Context, principal *profile.Principal, id string) error {
	if err := requireAdmin(principal, "wallets.delete"); err != nil {
		return err
	}
	w, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteWallet(ctx, w.ID); err != nil {
		return apperrors.WrapStore("wallet_settings.delete", err)
	}
	s.log.WithField("wallet_id", w.ID).Info("wallet deleted")
	s.changed(ctx, principal, audit.ActionWalletDeleted, w)
	return nil
}

func (s *Service) changed(ctx context.Context, principal *profile.Principal, action audit.Action, w wallet.Setting) {
	s.audit.Record(ctx, audit.Entry{
		ActorID:    principal.UserID,
		Action:     action,
		EntityType: "wallet",
		EntityID:   w.ID,
		Details:    map[string]string{"wallet_type": w.Type},
	})
	s.events.Publish(events.Event{Type: events.WalletChanged, EntityID: w.ID, Payload: w, At: w.UpdatedAt})
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func requireAdmin(p *profile.Principal, op string) error {
	if p == nil {
		return apperrors.NewAuthenticationRequiredError(op)
	}
	if !p.IsAdmin() {
		return &apperrors.ForbiddenError{Resource: "wallet", ActorID: p.UserID, Reason: "admin role required"}
	}
	return nil
}
