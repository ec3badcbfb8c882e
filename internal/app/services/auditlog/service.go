// Package auditlog records and serves the audit trail of state-changing
// operations.
package auditlog

import (
	"context"

	"github.com/muraguri00/zalora-luxury/internal/app/domain/audit"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/profile"
	"github.com/muraguri00/zalora-luxury/internal/app/storage"
	apperrors "github.com/muraguri00/zalora-luxury/internal/errors"
	"github.com/muraguri00/zalora-luxury/pkg/logger"
)

// Recorder appends audit entries. Record never fails the caller.
type Recorder interface {
	Record(ctx context.Context, e audit.Entry)
}

// Discard drops every entry.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(context.Context, audit.Entry) {}

// Service writes entries to a primary store and optional mirrors.
type Service struct {
	store   storage.AuditStore
	mirrors []storage.AuditStore
	log     *logger.Logger
}

// New creates an audit service on store. Mirrors receive a copy of every
// entry; their failures are logged only.
func New(store storage.AuditStore, log *logger.Logger, mirrors ...storage.AuditStore) *Service {
	if log == nil {
		log = logger.NewDefault("audit")
	}
	return &Service{store: store, mirrors: mirrors, log: log}
}

func (s *Service) Record(ctx context.Context, e audit.Entry) {
	stored, err := s.store.AppendAudit(ctx, e)
	if err != nil {
		s.log.WithError(err).WithField("action", e.Action).WithField("entity_id", e.EntityID).Warn("append audit entry")
		return
	}
	for _, m := range s.mirrors {
		if _, err := m.AppendAudit(ctx, stored); err != nil {
			s.log.WithError(err).WithField("action", e.Action).Warn("mirror audit entry")
		}
	}
}

// List returns entries newest first. Admin only.
func (s *Service) List(ctx context.Context, principal *profile.Principal, filter audit.Filter) ([]audit.Entry, error) {
	if principal == nil {
		return nil, apperrors.NewAuthenticationRequiredError("audit.list")
	}
	if !principal.IsAdmin() {
		return nil, apperrors.NewForbiddenError("audit log", "", principal.UserID)
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	entries, err := s.store.ListAudit(ctx, filter)
	return entries, apperrors.WrapStore("audit_log.list", err)
}
