package order

import (
	"strings"

	apperrors "github.com/muraguri00/zalora-luxury/internal/errors"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCompleted},
	StatusCompleted:  nil,
	StatusCancelled:  nil,
}

// ParseStatus normalises s. The second return is false for unknown statuses.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	_, ok := transitions[st]
	return st, ok
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates moving order id from -> to.
func Transition(id string, from, to Status) error {
	if _, ok := transitions[to]; !ok {
		return apperrors.NewValidationError("status", "unknown status "+string(to))
	}
	if !CanTransition(from, to) {
		return apperrors.NewInvalidStateError("order", id, string(from), "move to "+string(to))
	}
	return nil
}
