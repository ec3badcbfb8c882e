// Package events fans domain events out to dashboard subscribers.
package events

import (
	"sync"
	"time"

	"github.com/muraguri00/zalora-luxury/pkg/logger"
)

// Event types published by the managers.
const (
	OrderCreated        = "order.created"
	OrderStatusChanged  = "order.status_changed"
	OrderCancelled      = "order.cancelled"
	StockChanged        = "product.stock_changed"
	ApplicationCreated  = "application.created"
	ApplicationReviewed = "application.reviewed"
	WalletChanged       = "wallet.changed"
	ProfileRoleChanged  = "profile.role_changed"
)

// Event is one domain change. StoreID and UserID scope delivery: admins see
// everything, store owners see events for their store, customers see events
// about themselves.
type Event struct {
	Type     string    `json:"type"`
	EntityID string    `json:"entity_id"`
	StoreID  string    `json:"store_id,omitempty"`
	UserID   string    `json:"user_id,omitempty"`
	Payload  any       `json:"payload,omitempty"`
	Source   string    `json:"source,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher accepts events. Publish must not block.
type Publisher interface {
	Publish(Event)
}

// Discard drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}

type subscriber struct {
	ch     chan Event
	accept func(Event) bool
}

// Hub is an in-process Publisher with buffered per-subscriber queues. A slow
// subscriber loses events rather than stalling publishers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int
	buffer int
	log    *logger.Logger
}

// NewHub creates a hub whose subscribers each buffer up to buffer events.
func NewHub(buffer int, log *logger.Logger) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	if log == nil {
		log = logger.NewDefault("events")
	}
	return &Hub{subs: make(map[int]*subscriber), buffer: buffer, log: log}
}

func (h *Hub) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, sub := range h.subs {
		if sub.accept != nil && !sub.accept(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			h.log.WithField("subscriber", id).WithField("event", e.Type).Debug("subscriber queue full, dropping event")
		}
	}
}

// Subscribe registers a subscriber. accept may be nil to receive everything.
// The returned cancel func closes the channel and is safe to call twice.
func (h *Hub) Subscribe(accept func(Event) bool) (<-chan Event, func()) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	sub := &subscriber{ch: make(chan Event, h.buffer), accept: accept}
	h.subs[id] = sub
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Subscribers reports the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
