package supabase

import (
	"context"

	"github.com/google/uuid"

	"github.com/muraguri00/zalora-luxury/internal/app/domain/application"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/profile"
	apperrors "github.com/muraguri00/zalora-luxury/internal/errors"
	"github.com/muraguri00/zalora-luxury/supabase/client"
)

type reviewPayload struct {
	ApplicationID string `json:"application_id"`
	UserID        string `json:"user_id"`
}

// CreateApplication relies on the partial unique index over pending
// applications per user; the lookup before the insert keeps the common case
// off the error path.
func (s *Store) CreateApplication(ctx context.Context, a application.Application) (application.Application, error) {
	pending, err := s.ListApplications(ctx, application.Filter{UserID: a.UserID, Status: application.StatusPending})
	if err != nil {
		return application.Application{}, err
	}
	if len(pending) > 0 {
		return application.Application{}, apperrors.NewDuplicatePendingApplicationError(a.UserID)
	}

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := s.now()
	a.Status = application.StatusPending
	a.CreatedAt = now
	a.UpdatedAt = now

	var rows []application.Application
	resp, err := s.db.From(tableApplications).ExecuteInsert(ctx, a)
	if err := decode("store_applications.insert", resp, err, &rows); err != nil {
		if client.IsCode(err, client.CodeUniqueViolation) {
			return application.Application{}, apperrors.NewDuplicatePendingApplicationError(a.UserID)
		}
		return application.Application{}, err
	}
	return first(rows, "store application", a.ID)
}

func (s *Store) GetApplication(ctx context.Context, id string) (application.Application, error) {
	var rows []application.Application
	if err := s.fetch(ctx, tableApplications, id, &rows); err != nil {
		return application.Application{}, err
	}
	return first(rows, "store application", id)
}

func (s *Store) ListApplications(ctx context.Context, filter application.Filter) ([]application.Application, error) {
	q := s.db.From(tableApplications).Select("*")
	if filter.UserID != "" {
		q.Eq("user_id", filter.UserID)
	}
	if filter.Status != "" {
		q.Eq("status", filter.Status)
	}
	resp, err := q.Order("created_at", false).Execute(ctx)
	rows := []application.Application{}
	if err := decode("store_applications.list", resp, err, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ReviewApplication records the decision while the application is still
// pending. Approval then promotes the applicant; an interrupted promotion is
// rolled forward by the sweeper.
func (s *Store) ReviewApplication(ctx context.Context, id string, review application.Review) (application.Application, error) {
	current, err := s.GetApplication(ctx, id)
	if err != nil {
		return application.Application{}, err
	}
	if review.ReviewedAt.IsZero() {
		review.ReviewedAt = s.now()
	}
	reviewed, err := current.Apply(review)
	if err != nil {
		return application.Application{}, err
	}

	approve := reviewed.Status == application.StatusApproved
	var in intent
	if approve {
		if _, err := s.GetProfile(ctx, current.UserID); err != nil {
			return application.Application{}, err
		}
		if in, err = s.beginIntent(ctx, kindReviewApplication, reviewPayload{ApplicationID: id, UserID: current.UserID}); err != nil {
			return application.Application{}, err
		}
	}

	patch := map[string]any{
		"status":       reviewed.Status,
		"reviewed_by":  reviewed.ReviewedBy,
		"review_notes": reviewed.ReviewNotes,
		"reviewed_at":  ts(*reviewed.ReviewedAt),
		"updated_at":   ts(reviewed.UpdatedAt),
	}
	var rows []application.Application
	resp, err := s.db.From(tableApplications).Eq("id", id).Eq("status", application.StatusPending).ExecuteUpdate(ctx, patch)
	if err := decode("store_applications.review", resp, err, &rows); err != nil {
		if approve {
			s.finish(ctx, in.ID, intentCompensated, err)
		}
		return application.Application{}, err
	}
	if len(rows) == 0 {
		latest, err := s.GetApplication(ctx, id)
		if approve {
			s.finish(ctx, in.ID, intentCompensated, nil)
		}
		if err != nil {
			return application.Application{}, err
		}
		return application.Application{}, apperrors.NewInvalidStateError("store application", id, string(latest.Status), "review")
	}
	if !approve {
		return rows[0], nil
	}

	s.advance(ctx, in.ID, stepReviewed)
	if _, err := s.SetRole(ctx, current.UserID, profile.RoleStore); err != nil {
		s.log.WithError(err).WithField("user_id", current.UserID).WithField("intent_id", in.ID).Warn("role not promoted, the sweeper will retry")
		return rows[0], nil
	}
	s.finish(ctx, in.ID, intentDone, nil)
	return rows[0], nil
}

func (s *Store) resolveReview(ctx context.Context, p reviewPayload) (string, error) {
	a, err := s.GetApplication(ctx, p.ApplicationID)
	if apperrors.IsNotFound(err) {
		return intentCompensated, nil
	}
	if err != nil {
		return "", err
	}
	if a.Status != application.StatusApproved {
		return intentCompensated, nil
	}
	if _, err := s.SetRole(ctx, p.UserID, profile.RoleStore); err != nil {
		return "", err
	}
	return intentDone, nil
}
