package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/muraguri00/zalora-luxury/internal/app/domain/profile"
	"github.com/muraguri00/zalora-luxury/internal/app/events"
	apperrors "github.com/muraguri00/zalora-luxury/internal/errors"
)

const (
	eventWriteWait  = 10 * time.Second
	eventPongWait   = 60 * time.Second
	eventPingPeriod = 50 * time.Second
)

// eventFilter scopes delivery to what the principal may see.
func eventFilter(p *profile.Principal) func(events.Event) bool {
	if p.IsAdmin() {
		return nil
	}
	store := p.StoreIdentity()
	return func(e events.Event) bool {
		return e.StoreID == store || e.UserID == p.UserID
	}
}

func (h *handler) events(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if p == nil {
		h.writeError(w, r, apperrors.NewAuthenticationRequiredError("events.subscribe"))
		return
	}
	if !p.IsAdmin() && !p.IsStore() {
		h.writeError(w, r, &apperrors.ForbiddenError{Resource: "events", ActorID: p.UserID, Reason: "store or admin role required"})
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || h.origins.Allows(origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ch, cancel := h.app.Events.Subscribe(eventFilter(p))
	defer cancel()
	h.log.WithField("user_id", p.UserID).Debug("event subscriber connected")

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(eventPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(eventPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(eventPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
