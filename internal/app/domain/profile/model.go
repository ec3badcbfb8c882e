package profile

import (
	"regexp"
	"strings"
	"time"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidEmail reports whether s has the shape of an email address.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// Role is the access level attached to a user profile.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleStore    Role = "store"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleStore, RoleAdmin:
		return true
	}
	return false
}

// ParseRole normalises a role string. The second return is false for unknown roles.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}

// Profile is the directory record for an authenticated identity. ID is shared
// with the auth principal.
type Profile struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	FullName  *string   `json:"full_name,omitempty" db:"full_name"`
	Role      Role      `json:"role" db:"role"`
	StoreID   *string   `json:"store_id,omitempty" db:"store_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Fields holds the mutable subset of a profile. Nil fields are left unchanged.
type Fields struct {
	FullName *string `json:"full_name,omitempty"`
	Email    *string `json:"email,omitempty"`
}

// Filter narrows profile listings.
type Filter struct {
	Role Role
}

// Stats counts profiles by role.
type Stats struct {
	Total     int `json:"total"`
	Customers int `json:"customers"`
	Stores    int `json:"stores"`
	Admins    int `json:"admins"`
}

// Principal is the authenticated identity an operation executes on behalf of.
type Principal struct {
	UserID  string
	Email   string
	Role    Role
	StoreID string
}

// StoreIdentity is the store id products and orders of this principal carry.
// It defaults to the user id.
func (p *Principal) StoreIdentity() string {
	if p == nil {
		return ""
	}
	if p.StoreID != "" {
		return p.StoreID
	}
	return p.UserID
}

// ManagesStore reports whether the principal may administer storeID's
// catalogue and orders.
func (p *Principal) ManagesStore(storeID string) bool {
	if p == nil {
		return false
	}
	return p.Role == RoleAdmin || (p.Role == RoleStore && p.StoreIdentity() == storeID)
}

func (p *Principal) IsAdmin() bool { return p != nil && p.Role == RoleAdmin }
func (p *Principal) IsStore() bool { return p != nil && p.Role == RoleStore }

// Owns reports whether the principal is the given user, or an admin.
func (p *Principal) Owns(userID string) bool {
	return p != nil && (p.Role == RoleAdmin || p.UserID == userID)
}
