// Package profiles is the role and profile directory.
package profiles

import (
	"context"
	"strings"

	"github.com/muraguri00/zalora-luxury/internal/app/domain/audit"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/profile"
	"github.com/muraguri00/zalora-luxury/internal/app/events"
	"github.com/muraguri00/zalora-luxury/internal/app/services/auditlog"
	"github.com/muraguri00/zalora-luxury/internal/app/storage"
	apperrors "github.com/muraguri00/zalora-luxury/internal/errors"
	"github.com/muraguri00/zalora-luxury/pkg/logger"
)

// Service reads and maintains user profiles.
type Service struct {
	store  storage.ProfileStore
	audit  auditlog.Recorder
	events events.Publisher
	log    *logger.Logger
}

// New constructs a profile service.
func New(store storage.ProfileStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("profiles")
	}
	return &Service{store: store, audit: auditlog.Discard, events: events.Discard, log: log}
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

// GetByID returns a profile. Users read their own; admins read any.
func (s *Service) GetByID(ctx context.Context, principal *profile.Principal, id string) (profile.Profile, error) {
	if principal == nil {
		return profile.Profile{}, apperrors.NewAuthenticationRequiredError("profiles.get")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return profile.Profile{}, apperrors.RequiredError("user_id")
	}
	if !principal.Owns(id) {
		return profile.Profile{}, apperrors.NewForbiddenError("profile", id, principal.UserID)
	}
	p, err := s.store.GetProfile(ctx, id)
	return p, apperrors.WrapStore("user_profiles.get", err)
}

// GetCurrent returns the principal's own profile.
func (s *Service) GetCurrent(ctx context.Context, principal *profile.Principal) (profile.Profile, error) {
	if principal == nil {
		return profile.Profile{}, apperrors.NewAuthenticationRequiredError("profiles.current")
	}
	return s.GetByID(ctx, principal, principal.UserID)
}

// EnsureProfile returns the principal's profile, creating a customer profile
// the first time an identity is seen.
func (s *Service) EnsureProfile(ctx context.Context, principal *profile.Principal, email string) (profile.Profile, error) {
	if principal == nil || principal.UserID == "" {
		return profile.Profile{}, apperrors.NewAuthenticationRequiredError("profiles.ensure")
	}
	p, err := s.store.GetProfile(ctx, principal.UserID)
	if err == nil {
		return p, nil
	}
	if !apperrors.IsNotFound(err) {
		return profile.Profile{}, apperrors.WrapStore("user_profiles.get", err)
	}

	created, err := s.store.CreateProfile(ctx, profile.Profile{
		ID:    principal.UserID,
		Email: strings.ToLower(strings.TrimSpace(email)),
		Role:  profile.RoleCustomer,
	})
	if err != nil {
		// Another request may have created it first.
		if existing, getErr := s.store.GetProfile(ctx, principal.UserID); getErr == nil {
			return existing, nil
		}
		return profile.Profile{}, apperrors.WrapStore("user_profiles.insert", err)
	}
	s.log.WithField("user_id", created.ID).Info("profile created")
	return created, nil
}

// UpdateProfile applies the non-nil fields. Users update themselves; admins
// update anyone.
func (s *Service) UpdateProfile(ctx context.Context, principal *profile.Principal, userID string, fields profile.Fields) (profile.Profile, error) {
	current, err := s.GetByID(ctx, principal, userID)
	if err != nil {
		return profile.Profile{}, err
	}
	if fields.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*fields.Email))
		if !profile.ValidEmail(email) {
			return profile.Profile{}, apperrors.NewValidationError("email", "is not a valid email address")
		}
		current.Email = email
	}
	if fields.FullName != nil {
		name := strings.TrimSpace(*fields.FullName)
		if name == "" {
			current.FullName = nil
		} else {
			current.FullName = &name
		}
	}
	updated, err := s.store.UpdateProfile(ctx, current)
	return updated, apperrors.WrapStore("user_profiles.update", err)
}

// UpdateRole overwrites a user's role. Admin only.
func (s *Service) UpdateRole(ctx context.Context, principal *profile.Principal, userID string, role profile.Role) (profile.Profile, error) {
	if err := requireAdmin(principal, "profiles.update_role"); err != nil {
		return profile.Profile{}, err
	}
	role, ok := profile.ParseRole(string(role))
	if !ok {
		return profile.Profile{}, apperrors.NewValidationError("role", "must be customer, store or admin")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return profile.Profile{}, apperrors.RequiredError("user_id")
	}
	updated, err := s.store.SetRole(ctx, userID, role)
	if err != nil {
		return profile.Profile{}, apperrors.WrapStore("user_profiles.set_role", err)
	}
	s.log.WithField("user_id", userID).WithField("role", role).WithField("actor", principal.UserID).Info("role changed")
	s.audit.Record(ctx, audit.Entry{
		ActorID:    principal.UserID,
		Action:     audit.ActionRoleChanged,
		EntityType: "profile",
		EntityID:   userID,
		Details:    map[string]string{"role": string(role)},
	})
	s.events.Publish(events.Event{Type: events.ProfileRoleChanged, EntityID: userID, UserID: userID, Payload: map[string]string{"role": string(role)}, At: updated.UpdatedAt})
	return updated, nil
}

// List returns profiles newest first, optionally narrowed to one role. Admin
// only.
func (s *Service) List(ctx context.Context, principal *profile.Principal, filter profile.Filter) ([]profile.Profile, error) {
	if err := requireAdmin(principal, "profiles.list"); err != nil {
		return nil, err
	}
	if filter.Role != "" && !filter.Role.Valid() {
		return nil, apperrors.NewValidationError("role", "must be customer, store or admin")
	}
	profiles, err := s.store.ListProfiles(ctx, filter)
	return profiles, apperrors.WrapStore("user_profiles.list", err)
}

func (s *Service) StoreOwners(ctx context.Context, principal *profile.Principal) ([]profile.Profile, error) {
	return s.List(ctx, principal, profile.Filter{Role: profile.RoleStore})
}

func (s *Service) Customers(ctx context.Context, principal *profile.Principal) ([]profile.Profile, error) {
	return s.List(ctx, principal, profile.Filter{Role: profile.RoleCustomer})
}

// Stats counts profiles by role. Admin only.
func (s *Service) Stats(ctx context.Context, principal *profile.Principal) (profile.Stats, error) {
	profiles, err := s.List(ctx, principal, profile.Filter{})
	if err != nil {
		return profile.Stats{}, err
	}
	var stats profile.Stats
	for _, p := range profiles {
		stats.Total++
		switch p.Role {
		case profile.RoleCustomer:
			stats.Customers++
		case profile.RoleStore:
			stats.Stores++
		case profile.RoleAdmin:
			stats.Admins++
		}
	}
	return stats, nil
}

// Delete removes a profile. Admin only; admins cannot delete themselves.
func (s *Service) Delete(ctx context.Context, principal *profile.Principal, userID string) error {
	if err := requireAdmin(principal, "profiles.delete"); err != nil {
		return err
	}
	userID = strings.TrimSpace(userID)
	if userID == principal.UserID {
		return apperrors.NewValidationError("user_id", "cannot delete your own profile")
	}
	if err := s.store.DeleteProfile(ctx, userID); err != nil {
		return apperrors.WrapStore("user_profiles.delete", err)
	}
	s.log.WithField("user_id", userID).WithField("actor", principal.UserID).Info("profile deleted")
	s.audit.Record(ctx, audit.Entry{
		ActorID:    principal.UserID,
		Action:     audit.ActionProfileDeleted,
		EntityType: "profile",
		EntityID:   userID,
	})
	return nil
}

func requireAdmin(p *profile.Principal, op string) error {
	if p == nil {
		return apperrors.NewAuthenticationRequiredError(op)
	}
	if !p.IsAdmin() {
		return &apperrors.ForbiddenError{Resource: "profile", ActorID: p.UserID, Reason: "admin role required"}
	}
	return nil
}
