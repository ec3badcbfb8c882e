package httpapi

import (
	"net/http"

	"github.com/muraguri00/zalora-luxury/internal/app/domain/application"
	apperrors "github.com/muraguri00/zalora-luxury/internal/errors"
)

func (h *handler) listApplications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := application.Filter{
		Status: application.Status(q.Get("status")),
		UserID: q.Get("user_id"),
	}
	apps, err := h.app.Applications.List(r.Context(), principal(r), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apps)
}

func (h *handler) createApplication(w http.ResponseWriter, r *http.Request) {
	var fields application.BusinessFields
	if err := decodeJSON(r.Body, &fields); err != nil {
		h.writeError(w, r, err)
		return
	}
	a, err := h.app.Applications.Create(r.Context(), principal(r), fields)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *handler) myApplication(w http.ResponseWriter, r *http.Request) {
	a, err := h.app.Applications.Latest(r.Context(), principal(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *handler) applicationStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.app.Applications.Stats(r.Context(), principal(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handler) getApplication(w http.ResponseWriter, r *http.Request) {
	a, err := h.app.Applications.Get(r.Context(), principal(r), pathID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *handler) reviewApplication(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Decision string  `json:"decision"`
		Notes    *string `json:"notes,omitempty"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}
	decision, ok := application.ParseDecision(payload.Decision)
	if !ok {
		h.writeError(w, r, apperrors.NewValidationError("decision", "must be approved or rejected"))
		return
	}
	a, err := h.app.Applications.Review(r.Context(), principal(r), pathID(r), decision, payload.Notes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
