package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/muraguri00/zalora-luxury/internal/app/domain/wallet"
	"github.com/muraguri00/zalora-luxury/internal/app/services/wallets"
)

func (h *handler) listWallets(w http.ResponseWriter, r *http.Request) {
	activeOnly, err := queryBool(r, "active")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	filter := wallet.Filter{ActiveOnly: activeOnly, Type: r.URL.Query().Get("type")}
	list, err := h.app.Wallets.List(r.Context(), principal(r), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) createWallet(w http.ResponseWriter, r *http.Request) {
	var in wallets.CreateInput
	if err := decodeJSON(r.Body, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.app.Wallets.Create(r.Context(), principal(r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *handler) activeWallet(w http.ResponseWriter, r *http.Request) {
	ws, err := h.app.Wallets.ActiveByType(r.Context(), mux.Vars(r)["type"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (h *handler) getWallet(w http.ResponseWriter, r *http.Request) {
	ws, err := h.app.Wallets.Get(r.Context(), principal(r), pathID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (h *handler) updateWallet(w http.ResponseWriter, r *http.Request) {
	var in wallets.UpdateInput
	if err := decodeJSON(r.Body, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.app.Wallets.Update(r.Context(), principal(r), pathID(r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) deleteWallet(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Wallets.Delete(r.Context(), principal(r), pathID(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) activateWallet(w http.ResponseWriter, r *http.Request) {
	ws, err := h.app.Wallets.Activate(r.Context(), principal(r), pathID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (h *handler) deactivateWallet(w http.ResponseWriter, r *http.Request) {
	ws, err := h.app.Wallets.ToggleActive(r.Context(), principal(r), pathID(r), false)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (h *handler) deactivateWalletType(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Type string `json:"wallet_type"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}
	n, err := h.app.Wallets.DeactivateAllOfType(r.Context(), principal(r), payload.Type)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deactivated": n})
}
