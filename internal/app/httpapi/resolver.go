package httpapi

import (
	"context"
	"strings"

	"github.com/muraguri00/zalora-luxury/internal/app/domain/profile"
	"github.com/muraguri00/zalora-luxury/internal/app/services/profiles"
	"github.com/muraguri00/zalora-luxury/internal/middleware"
)

// ProfileResolver turns verified identities into principals, creating a
// customer profile for identities seen for the first time.
type ProfileResolver struct {
	profiles *profiles.Service
	admins   map[string]struct{}
}

var _ middleware.PrincipalResolver = (*ProfileResolver)(nil)

// NewProfileResolver creates a resolver. adminIDs are promoted to admin
// regardless of their stored role.
func NewProfileResolver(svc *profiles.Service, adminIDs []string) *ProfileResolver {
	admins := make(map[string]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		if id = strings.TrimSpace(id); id != "" {
			admins[id] = struct{}{}
		}
	}
	return &ProfileResolver{profiles: svc, admins: admins}
}

func (r *ProfileResolver) Resolve(ctx context.Context, id middleware.Identity) (*profile.Principal, error) {
	p, err := r.profiles.EnsureProfile(ctx, &profile.Principal{UserID: id.UserID, Email: id.Email}, id.Email)
	if err != nil {
		return nil, err
	}
	principal := &profile.Principal{UserID: p.ID, Email: p.Email, Role: p.Role}
	if p.StoreID != nil {
		principal.StoreID = *p.StoreID
	}
	if _, ok := r.admins[p.ID]; ok {
		principal.Role = profile.RoleAdmin
	}
	return principal, nil
}

// ParseAdminIDs splits a comma separated ADMIN_USER_IDS value.
func ParseAdminIDs(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
