package application

import (
	"strings"
	"time"

	apperrors "github.com/muraguri00/zalora-luxury/internal/errors"
)

// Status is the review state of a store application.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ParseDecision accepts the two review outcomes.
func ParseDecision(s string) (Status, bool) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	return st, st == StatusApproved || st == StatusRejected
}

// Application is a request by a customer to be promoted to a store account.
type Application struct {
	ID              string     `json:"id" db:"id"`
	UserID          string     `json:"user_id" db:"user_id"`
	BusinessName    string     `json:"business_name" db:"business_name"`
	BusinessEmail   string     `json:"business_email" db:"business_email"`
	BusinessPhone   string     `json:"business_phone" db:"business_phone"`
	BusinessAddress string     `json:"business_address" db:"business_address"`
	BusinessLicense *string    `json:"business_license,omitempty" db:"business_license"`
	Status          Status     `json:"status" db:"status"`
	ReviewedBy      *string    `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewNotes     *string    `json:"review_notes,omitempty" db:"review_notes"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty" db:"reviewed_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// BusinessFields is the applicant-supplied part of an application.
type BusinessFields struct {
	BusinessName    string  `json:"business_name"`
	BusinessEmail   string  `json:"business_email"`
	BusinessPhone   string  `json:"business_phone"`
	BusinessAddress string  `json:"business_address"`
	BusinessLicense *string `json:"business_license,omitempty"`
}

// Review is the outcome recorded by an admin.
type Review struct {
	Decision   Status
	ReviewerID string
	Notes      *string
	ReviewedAt time.Time
}

// Apply validates the review against the current state and returns the
// reviewed copy.
func (a Application) Apply(r Review) (Application, error) {
	if a.Status != StatusPending {
		return Application{}, apperrors.NewInvalidStateError("store application", a.ID, string(a.Status), "review")
	}
	if r.Decision != StatusApproved && r.Decision != StatusRejected {
		return Application{}, apperrors.NewValidationError("status", "must be approved or rejected")
	}
	reviewer := r.ReviewerID
	at := r.ReviewedAt
	a.Status = r.Decision
	a.ReviewedBy = &reviewer
	a.ReviewNotes = r.Notes
	a.ReviewedAt = &at
	a.UpdatedAt = at
	return a, nil
}

// Filter narrows application listings.
type Filter struct {
	Status Status
	UserID string
}

func (f Filter) Matches(a Application) bool {
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.UserID != "" && a.UserID != f.UserID {
		return false
	}
	return true
}

// Stats counts applications by status.
type Stats struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

func Summarize(apps []Application) Stats {
	var s Stats
	for _, a := range apps {
		s.Total++
		switch a.Status {
		case StatusPending:
			s.Pending++
		case StatusApproved:
			s.Approved++
		case StatusRejected:
			s.Rejected++
		}
	}
	return s
}
