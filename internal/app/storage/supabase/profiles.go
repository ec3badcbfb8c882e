package supabase

import (
	"context"

	"github.com/google/uuid"

	"github.com/muraguri00/zalora-luxury/internal/app/domain/audit"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/profile"
)

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

	var rows []profile.Profile
	resp, err := s.db.From(tableProfiles).ExecuteInsert(ctx, p)
	if err := decode("user_profiles.insert", resp, err, &rows); err != nil {
		return profile.Profile{}, err
	}
	return first(rows, "profile", p.ID)
}

func (s *Store) UpdateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error) {
	return s.patchProfile(ctx, p.ID, "user_profiles.update", map[string]any{
		"email":     p.Email,
		"full_name": p.FullName,
		"store_id":  p.StoreID,
	})
}

func (s *Store) patchProfile(ctx context.Context, id, op string, patch map[string]any) (profile.Profile, error) {
	patch["updated_at"] = ts(s.now())
	var rows []profile.Profile
	resp, err := s.db.From(tableProfiles).Eq("id", id).ExecuteUpdate(ctx, patch)
	if err := decode(op, resp, err, &rows); err != nil {
		return profile.Profile{}, err
	}
	return first(rows, "profile", id)
}

func (s *Store) GetProfile(ctx context.Context, id string) (profile.Profile, error) {
	var rows []profile.Profile
	if err := s.fetch(ctx, tableProfiles, id, &rows); err != nil {
		return profile.Profile{}, err
	}
	return first(rows, "profile", id)
}

func (s *Store) ListProfiles(ctx context.Context, filter profile.Filter) ([]profile.Profile, error) {
	q := s.db.From(tableProfiles).Select("*")
	if filter.Role != "" {
		q.Eq("role", filter.Role)
	}
	resp, err := q.Order("created_at", false).Execute(ctx)
	rows := []profile.Profile{}
	if err := decode("user_profiles.list", resp, err, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) SetRole(ctx context.Context, id string, role profile.Role) (profile.Profile, error) {
	return s.patchProfile(ctx, id, "user_profiles.set_role", map[string]any{"role": role})
}

func (s *Store) DeleteProfile(ctx context.Context, id string) error {
	return s.remove(ctx, tableProfiles, "profile", id)
}

func (s *Store) AppendAudit(ctx context.Context, e audit.Entry) (audit.Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	resp, err := s.db.From(tableAudit).ExecuteInsert(ctx, e)
	if err := check("audit_log.insert", resp, err); err != nil {
		return audit.Entry{}, err
	}
	return e, nil
}

func (s *Store) ListAudit(ctx context.Context, filter audit.Filter) ([]audit.Entry, error) {
	q := s.db.From(tableAudit).Select("*")
	if filter.EntityType != "" {
		q.Eq("entity_type", filter.EntityType)
	}
	if filter.EntityID != "" {
		q.Eq("entity_id", filter.EntityID)
	}
	if filter.ActorID != "" {
		q.Eq("actor_id", filter.ActorID)
	}
	q.Order("created_at", false)
	if filter.Limit > 0 {
		q.Limit(filter.Limit)
	}
	resp, err := q.Execute(ctx)
	rows := []audit.Entry{}
	if err := decode("audit_log.list", resp, err, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
