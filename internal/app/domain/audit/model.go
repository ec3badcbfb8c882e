// Package audit holds the append-only trail of privileged and state-changing
// operations.
package audit

import "time"

type Action string

const (
	ActionOrderCreated         Action = "order.created"
	ActionOrderStatusChanged   Action = "order.status_changed"
	ActionOrderCancelled       Action = "order.cancelled"
	ActionStockSet             Action = "product.stock_set"
	ActionApplicationSubmitted Action = "application.submitted"
	ActionApplicationReviewed  Action = "application.reviewed"
	ActionRoleChanged          Action = "profile.role_changed"
	ActionProfileDeleted       Action = "profile.deleted"
	ActionWalletCreated        Action = "wallet.created"
	ActionWalletUpdated        Action = "wallet.updated"
	ActionWalletActivated      Action = "wallet.activated"
	ActionWalletDeactivated    Action = "wallet.deactivated"
	ActionWalletDeleted        Action = "wallet.deleted"
)

// Entry is one audit record.
type Entry struct {
	ID         string            `json:"id" db:"id" bson:"_id"`
	ActorID    string            `json:"actor_id" db:"actor_id" bson:"actor_id"`
	Action     Action            `json:"action" db:"action" bson:"action"`
	EntityType string            `json:"entity_type" db:"entity_type" bson:"entity_type"`
	EntityID   string            `json:"entity_id" db:"entity_id" bson:"entity_id"`
	Details    map[string]string `json:"details,omitempty" db:"-" bson:"details,omitempty"`
	CreatedAt  time.Time         `json:"created_at" db:"created_at" bson:"created_at"`
}

// Filter narrows audit listings.
type Filter struct {
	EntityType string
	EntityID   string
	ActorID    string
	Limit      int
}

func (f Filter) Matches(e Entry) bool {
	if f.EntityType != "" && e.EntityType != f.EntityType {
		return false
	}
	if f.EntityID != "" && e.EntityID != f.EntityID {
		return false
	}
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	return true
}
