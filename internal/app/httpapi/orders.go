package httpapi

import (
	"net/http"

	"github.com/muraguri00/zalora-luxury/internal/app/domain/order"
	"github.com/muraguri00/zalora-luxury/internal/app/idempotency"
	"github.com/muraguri00/zalora-luxury/internal/app/services/orders"
	apperrors "github.com/muraguri00/zalora-luxury/internal/errors"
)

func (h *handler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := order.Filter{
		UserID:  q.Get("user_id"),
		StoreID: q.Get("store_id"),
	}
	if raw := q.Get("status"); raw != "" {
		status, ok := order.ParseStatus(raw)
		if !ok {
			h.writeError(w, r, apperrors.NewValidationError("status", "unknown order status"))
			return
		}
		filter.Status = status
	}
	list, err := h.app.Orders.List(r.Context(), principal(r), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	views := make([]orders.View, 0, len(list))
	for _, o := range list {
		views = append(views, orders.WithCommission(o))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var in orders.CreateInput
	if err := decodeJSON(r.Body, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	if in.IdempotencyKey == "" {
		in.IdempotencyKey = r.Header.Get(idempotency.Header)
	}
	o, err := h.app.Orders.Create(r.Context(), principal(r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, orders.WithCommission(o))
}

func (h *handler) orderStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.app.Orders.Stats(r.Context(), principal(r), r.URL.Query().Get("store_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.app.Orders.Get(r.Context(), principal(r), pathID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders.WithCommission(o))
}

func (h *handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Status       string  `json:"status"`
		PaymentProof *string `json:"payment_proof,omitempty"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}
	status, ok := order.ParseStatus(payload.Status)
	if !ok {
		h.writeError(w, r, apperrors.NewValidationError("status", "unknown order status"))
		return
	}
	o, err := h.app.Orders.UpdateStatus(r.Context(), principal(r), pathID(r), status, payload.PaymentProof)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders.WithCommission(o))
}

func (h *handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.app.Orders.Cancel(r.Context(), principal(r), pathID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders.WithCommission(o))
}
