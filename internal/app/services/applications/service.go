// Package applications implements store applications: submission, admin
// review and the role promotion that follows approval.
package applications

import (
	"context"
	"strings"
	"time"

	"github.com/muraguri00/zalora-luxury/internal/app/domain/application"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/audit"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/profile"
	"github.com/muraguri00/zalora-luxury/internal/app/events"
	"github.com/muraguri00/zalora-luxury/internal/app/metrics"
	"github.com/muraguri00/zalora-luxury/internal/app/services/auditlog"
	"github.com/muraguri00/zalora-luxury/internal/app/storage"
	apperrors "github.com/muraguri00/zalora-luxury/internal/errors"
	"github.com/muraguri00/zalora-luxury/pkg/logger"
)

// Service manages store applications.
type Service struct {
	store  storage.ApplicationStore
	audit  auditlog.Recorder
	events events.Publisher
	log    *logger.Logger
	now    func() time.Time
}

// New constructs an application service.
func New(store storage.ApplicationStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("applications")
	}
	return &Service{
		store:  store,
		audit:  auditlog.Discard,
		events: events.Discard,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
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

func normalize(in application.BusinessFields) (application.BusinessFields, error) {
	in.BusinessName = strings.TrimSpace(in.BusinessName)
	in.BusinessEmail = strings.ToLower(strings.TrimSpace(in.BusinessEmail))
	in.BusinessPhone = strings.TrimSpace(in.BusinessPhone)
	in.BusinessAddress = strings.TrimSpace(in.BusinessAddress)
	if in.BusinessLicense != nil {
		license := strings.TrimSpace(*in.BusinessLicense)
		if license == "" {
			in.BusinessLicense = nil
		} else {
			in.BusinessLicense = &license
		}
	}

	switch {
	case in.BusinessName == "":
		return in, apperrors.RequiredError("business_name")
	case in.BusinessEmail == "":
		return in, apperrors.RequiredError("business_email")
	case !profile.ValidEmail(in.BusinessEmail):
		return in, apperrors.NewValidationError("business_email", "is not a valid email address")
	case in.BusinessPhone == "":
		return in, apperrors.RequiredError("business_phone")
	case in.BusinessAddress == "":
		return in, apperrors.RequiredError("business_address")
	}
	return in, nil
}

// Create submits an application for the principal. A second submission while
// one is pending fails with DuplicatePendingApplicationError.
func (s *Service) Create(ctx context.Context, principal *profile.Principal, fields application.BusinessFields) (application.Application, error) {
	if principal == nil {
		return application.Application{}, apperrors.NewAuthenticationRequiredError("applications.create")
	}
	fields, err := normalize(fields)
	if err != nil {
		return application.Application{}, err
	}

	created, err := s.store.CreateApplication(ctx, application.Application{
		UserID:          principal.UserID,
		BusinessName:    fields.BusinessName,
		BusinessEmail:   fields.BusinessEmail,
		BusinessPhone:   fields.BusinessPhone,
		BusinessAddress: fields.BusinessAddress,
		BusinessLicense: fields.BusinessLicense,
	})
	if err != nil {
		return application.Application{}, apperrors.WrapStore("store_applications.insert", err)
	}

	s.log.WithField("application_id", created.ID).WithField("user_id", principal.UserID).Info("store application submitted")
	s.audit.Record(ctx, audit.Entry{
		ActorID:    principal.UserID,
		Action:     audit.ActionApplicationSubmitted,
		EntityType: "store_application",
		EntityID:   created.ID,
		Details:    map[string]string{"business_name": created.BusinessName},
	})
	s.events.Publish(events.Event{Type: events.ApplicationCreated, EntityID: created.ID, UserID: created.UserID, At: created.CreatedAt})
	return created, nil
}

// Review records an admin's decision. Approval promotes the applicant to the
// store role in the same storage unit.
func (s *Service) Review(ctx context.Context, principal *profile.Principal, id string, decision application.Status, notes *string) (application.Application, error) {
	if err := requireAdmin(principal, "applications.review"); err != nil {
		return application.Application{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return application.Application{}, apperrors.RequiredError("application_id")
	}
	if decision != application.StatusApproved && decision != application.StatusRejected {
		return application.Application{}, apperrors.NewValidationError("status", "must be approved or rejected")
	}
	if notes != nil {
		trimmed := strings.TrimSpace(*notes)
		notes = &trimmed
	}

	reviewed, err := s.store.ReviewApplication(ctx, id, application.Review{
		Decision:   decision,
		ReviewerID: principal.UserID,
		Notes:      notes,
		ReviewedAt: s.now(),
	})
	if err != nil {
		return application.Application{}, apperrors.WrapStore("store_applications.review", err)
	}

	metrics.RecordApplicationReview(string(decision))
	s.log.WithField("application_id", id).
		WithField("decision", decision).
		WithField("reviewer", principal.UserID).
		Info("store application reviewed")
	s.audit.Record(ctx, audit.Entry{
		ActorID:    principal.UserID,
		Action:     audit.ActionApplicationReviewed,
		EntityType: "store_application",
		EntityID:   id,
		Details:    map[string]string{"decision": string(decision), "applicant": reviewed.UserID},
	})
	if decision == application.StatusApproved {
		s.audit.Record(ctx, audit.Entry{
			ActorID:    principal.UserID,
			Action:     audit.ActionRoleChanged,
			EntityType: "profile",
			EntityID:   reviewed.UserID,
			Details:    map[string]string{"role": string(profile.RoleStore), "application_id": id},
		})
		s.events.Publish(events.Event{Type: events.ProfileRoleChanged, EntityID: reviewed.UserID, UserID: reviewed.UserID, Payload: map[string]string{"role": string(profile.RoleStore)}})
	}
	s.events.Publish(events.Event{Type: events.ApplicationReviewed, EntityID: id, UserID: reviewed.UserID, Payload: reviewed})
	return reviewed, nil
}

// Get returns an application visible to the principal: the applicant's own or
// any for admins.
func (s *Service) Get(ctx context.Context, principal *profile.Principal, id string) (application.Application, error) {
	if principal == nil {
		return application.Application{}, apperrors.NewAuthenticationRequiredError("applications.get")
	}
	a, err := s.store.GetApplication(ctx, strings.TrimSpace(id))
	if err != nil {
		return application.Application{}, apperrors.WrapStore("store_applications.get", err)
	}
	if !principal.Owns(a.UserID) {
		return application.Application{}, apperrors.NewForbiddenError("store application", id, principal.UserID)
	}
	return a, nil
}

// List returns applications newest first. Non-admins only see their own.
func (s *Service) List(ctx context.Context, principal *profile.Principal, filter application.Filter) ([]application.Application, error) {
	if principal == nil {
		return nil, apperrors.NewAuthenticationRequiredError("applications.list")
	}
	if !principal.IsAdmin() {
		filter.UserID = principal.UserID
	}
	apps, err := s.store.ListApplications(ctx, filter)
	return apps, apperrors.WrapStore("store_applications.list", err)
}

// Latest returns the principal's most recent application.
func (s *Service) Latest(ctx context.Context, principal *profile.Principal) (application.Application, error) {
	apps, err := s.List(ctx, principal, application.Filter{UserID: principalID(principal)})
	if err != nil {
		return application.Application{}, err
	}
	if len(apps) == 0 {
		return application.Application{}, apperrors.NewNotFoundError("store application", "for user "+principal.UserID)
	}
	return apps[0], nil
}

// Stats counts applications by status. Admin only.
func (s *Service) Stats(ctx context.Context, principal *profile.Principal) (application.Stats, error) {
	if err := requireAdmin(principal, "applications.stats"); err != nil {
		return application.Stats{}, err
	}
	apps, err := s.store.ListApplications(ctx, application.Filter{})
	if err != nil {
		return application.Stats{}, apperrors.WrapStore("store_applications.stats", err)
	}
	return application.Summarize(apps), nil
}

func principalID(p *profile.Principal) string {
	if p == nil {
		return ""
	}
	return p.UserID
}

func requireAdmin(p *profile.Principal, op string) error {
	if p == nil {
		return apperrors.NewAuthenticationRequiredError(op)
	}
	if !p.IsAdmin() {
		return &apperrors.ForbiddenError{Resource: "store application", ActorID: p.UserID, Reason: "admin role required"}
	}
	return nil
}
