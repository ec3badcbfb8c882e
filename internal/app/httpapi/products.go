package httpapi

import (
	"net/http"

	"github.com/muraguri00/zalora-luxury/internal/app/domain/product"
	"github.com/muraguri00/zalora-luxury/internal/app/services/inventory"
)

func (h *handler) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := product.Filter{
		Category: q.Get("category"),
		Status:   product.Status(q.Get("status")),
		StoreID:  q.Get("store_id"),
	}
	products, err := h.app.Inventory.ListProducts(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var in inventory.ProductInput
	if err := decodeJSON(r.Body, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.app.Inventory.CreateProduct(r.Context(), principal(r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.app.Inventory.GetProduct(r.Context(), pathID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var patch inventory.ProductPatch
	if err := decodeJSON(r.Body, &patch); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.app.Inventory.UpdateProduct(r.Context(), principal(r), pathID(r), patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Inventory.DeleteProduct(r.Context(), principal(r), pathID(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) setStock(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Stock int `json:"stock"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.app.Inventory.SetStock(r.Context(), principal(r), pathID(r), payload.Stock)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) listMovements(w http.ResponseWriter, r *http.Request) {
	moves, err := h.app.Inventory.Movements(r.Context(), principal(r), pathID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, moves)
}
