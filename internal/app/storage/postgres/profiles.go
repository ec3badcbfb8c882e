package postgres

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/muraguri00/zalora-luxury/internal/app/domain/audit"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/profile"
	apperrors "github.com/muraguri00/zalora-luxury/internal/errors"
)

const profileColumns = `id, email, full_name, role, store_id, created_at, updated_at`

func (s *Store) CreateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Role == "" {
		p.Role = profile.RoleCustomer
	}
	now := s.now()
	p.CreatedAt = now
	p.UpdatedAt = now
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO user_profiles (`+profileColumns+`)
		VALUES (:id, :email, :full_name, :role, :store_id, :created_at, :updated_at)
	`, p)
	if err != nil {
		return profile.Profile{}, apperrors.WrapStore("user_profiles.insert", err)
	}
	return p, nil
}

func (s *Store) UpdateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error) {
	var out profile.Profile
	err := getOne(ctx, s.db, &out, "user_profiles.update", "profile", p.ID, `
		UPDATE user_profiles SET email = $1, full_name = $2, store_id = $3, updated_at = $4
		WHERE id = $5
		RETURNING `+profileColumns, p.Email, p.FullName, p.StoreID, s.now(), p.ID)
	return out, err
}

func (s *Store) GetProfile(ctx context.Context, id string) (profile.Profile, error) {
	var p profile.Profile
	err := getOne(ctx, s.db, &p, "user_profiles.get", "profile", id,
		`SELECT `+profileColumns+` FROM user_profiles WHERE id = $1`, id)
	return p, err
}

func (s *Store) ListProfiles(ctx context.Context, filter profile.Filter) ([]profile.Profile, error) {
	var w where
	if filter.Role != "" {
		w.add("role = $%d", filter.Role)
	}
	out := []profile.Profile{}
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+profileColumns+` FROM user_profiles`+w.String()+` ORDER BY created_at DESC`, w.args...)
	if err != nil {
		return nil, apperrors.WrapStore("user_profiles.list", err)
	}
	return out, nil
}

func (s *Store) SetRole(ctx context.Context, id string, role profile.Role) (profile.Profile, error) {
	var out profile.Profile
	err := getOne(ctx, s.db, &out, "user_profiles.set_role", "profile", id, `
		UPDATE user_profiles SET role = $1, updated_at = $2 WHERE id = $3
		RETURNING `+profileColumns, role, s.now(), id)
	return out, err
}

func (s *Store) DeleteProfile(ctx context.Context, id string) error {
	return execOne(ctx, s.db, "user_profiles.delete", "profile", id, `DELETE FROM user_profiles WHERE id = $1`, id)
}

// auditRow is audit.Entry with details kept as raw jsonb.
type auditRow struct {
	ID         string       `db:"id"`
	ActorID    string       `db:"actor_id"`
	Action     audit.Action `db:"action"`
	EntityType string       `db:"entity_type"`
	EntityID   string       `db:"entity_id"`
	Details    []byte       `db:"details"`
	CreatedAt  time.Time    `db:"created_at"`
}

func (r auditRow) entry() audit.Entry {
	e := audit.Entry{
		ID:         r.ID,
		ActorID:    r.ActorID,
		Action:     r.Action,
		EntityType: r.EntityType,
		EntityID:   r.EntityID,
		CreatedAt:  r.CreatedAt,
	}
	if len(r.Details) > 0 {
		_ = json.Unmarshal(r.Details, &e.Details)
	}
	return e
}

func (s *Store) AppendAudit(ctx context.Context, e audit.Entry) (audit.Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	var details []byte
	if len(e.Details) > 0 {
		var err error
		if details, err = json.Marshal(e.Details); err != nil {
			return audit.Entry{}, apperrors.WrapStore("audit_log.encode", err)
		}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, actor_id, action, entity_type, entity_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.ActorID, e.Action, e.EntityType, e.EntityID, details, e.CreatedAt)
	if err != nil {
		return audit.Entry{}, apperrors.WrapStore("audit_log.insert", err)
	}
	return e, nil
}

func (s *Store) ListAudit(ctx context.Context, filter audit.Filter) ([]audit.Entry, error) {
	var w where
	if filter.EntityType != "" {
		w.add("entity_type = $%d", filter.EntityType)
	}
	if filter.EntityID != "" {
		w.add("entity_id = $%d", filter.EntityID)
	}
	if filter.ActorID != "" {
		w.add("actor_id = $%d", filter.ActorID)
	}
	query := `SELECT id, actor_id, action, entity_type, entity_id, details, created_at FROM audit_log` +
		w.String() + ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		w.args = append(w.args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(w.args))
	}
	var rows []auditRow
	if err := s.db.SelectContext(ctx, &rows, query, w.args...); err != nil {
		return nil, apperrors.WrapStore("audit_log.list", err)
	}
	out := make([]audit.Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.entry())
	}
	return out, nil
}
