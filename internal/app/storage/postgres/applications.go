package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/muraguri00/zalora-luxury/internal/app/domain/application"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/profile"
	apperrors "github.com/muraguri00/zalora-luxury/internal/errors"
)

const applicationColumns = `id, user_id, business_name, business_email, business_phone, business_address,
	business_license, status, reviewed_by, review_notes, reviewed_at, created_at, updated_at`

// CreateApplication relies on the partial unique index over pending
// applications per user to reject a second pending row.
func (s *Store) CreateApplication(ctx context.Context, a application.Application) (application.Application, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := s.now()
	a.Status = application.StatusPending
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO store_applications (`+applicationColumns+`)
		VALUES (:id, :user_id, :business_name, :business_email, :business_phone, :business_address,
			:business_license, :status, :reviewed_by, :review_notes, :reviewed_at, :created_at, :updated_at)
	`, a)
	if isUniqueViolation(err) {
		return application.Application{}, apperrors.NewDuplicatePendingApplicationError(a.UserID)
	}
	if err != nil {
		return application.Application{}, apperrors.WrapStore("store_applications.insert", err)
	}
	return a, nil
}

func (s *Store) GetApplication(ctx context.Context, id string) (application.Application, error) {
	var a application.Application
	err := getOne(ctx, s.db, &a, "store_applications.get", "store application", id,
		`SELECT `+applicationColumns+` FROM store_applications WHERE id = $1`, id)
	return a, err
}

func (s *Store) ListApplications(ctx context.Context, filter application.Filter) ([]application.Application, error) {
	var w where
	if filter.Status != "" {
		w.add("status = $%d", filter.Status)
	}
	if filter.UserID != "" {
		w.add("user_id = $%d", filter.UserID)
	}
	out := []application.Application{}
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+applicationColumns+` FROM store_applications`+w.String()+` ORDER BY created_at DESC`, w.args...)
	if err != nil {
		return nil, apperrors.WrapStore("store_applications.list", err)
	}
	return out, nil
}

func (s *Store) ReviewApplication(ctx context.Context, id string, review application.Review) (application.Application, error) {
	if review.ReviewedAt.IsZero() {
		review.ReviewedAt = s.now()
	}
	var reviewed application.Application
	err := s.withTx(ctx, "store_applications.review", func(tx *sqlx.Tx) error {
		var current application.Application
		if err := getOne(ctx, tx, &current, "store_applications.get", "store application", id,
			`SELECT `+applicationColumns+` FROM store_applications WHERE id = $1 FOR UPDATE`, id); err != nil {
			return err
		}
		var err error
		if reviewed, err = current.Apply(review); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE store_applications
			SET status = $1, reviewed_by = $2, review_notes = $3, reviewed_at = $4, updated_at = $5
			WHERE id = $6
		`, reviewed.Status, reviewed.ReviewedBy, reviewed.ReviewNotes, reviewed.ReviewedAt, reviewed.UpdatedAt, id); err != nil {
			return apperrors.WrapStore("store_applications.update", err)
		}
		if reviewed.Status != application.StatusApproved {
			return nil
		}
		return execOne(ctx, tx, "user_profiles.set_role", "profile", current.UserID,
			`UPDATE user_profiles SET role = $1, updated_at = $2 WHERE id = $3`,
			profile.RoleStore, review.ReviewedAt, current.UserID)
	})
	if err != nil {
		return application.Application{}, err
	}
	return reviewed, nil
}
