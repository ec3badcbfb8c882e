package httpapi

import (
	"net/http"

	"github.com/muraguri00/zalora-luxury/internal/app/domain/profile"
	apperrors "github.com/muraguri00/zalora-luxury/internal/errors"
)

func (h *handler) listProfiles(w http.ResponseWriter, r *http.Request) {
	var filter profile.Filter
	if raw := r.URL.Query().Get("role"); raw != "" {
		role, ok := profile.ParseRole(raw)
		if !ok {
			h.writeError(w, r, apperrors.NewValidationError("role", "unknown role"))
			return
		}
		filter.Role = role
	}
	list, err := h.app.Profiles.List(r.Context(), principal(r), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) currentProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.app.Profiles.GetCurrent(r.Context(), principal(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) profileStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.app.Profiles.Stats(r.Context(), principal(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handler) getProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.app.Profiles.GetByID(r.Context(), principal(r), pathID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var fields profile.Fields
	if err := decodeJSON(r.Body, &fields); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.app.Profiles.UpdateProfile(r.Context(), principal(r), pathID(r), fields)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) deleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Profiles.Delete(r.Context(), principal(r), pathID(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) updateRole(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Role string `json:"role"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}
	role, ok := profile.ParseRole(payload.Role)
	if !ok {
		h.writeError(w, r, apperrors.NewValidationError("role", "unknown role"))
		return
	}
	p, err := h.app.Profiles.UpdateRole(r.Context(), principal(r), pathID(r), role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
