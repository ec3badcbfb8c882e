package httpapi

import (
	"net/http"

	"github.com/muraguri00/zalora-luxury/internal/app/domain/audit"
)

const (
	defaultAuditLimit = 200
	maxAuditLimit     = 1000
)

func (h *handler) listAudit(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if limit == 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	q := r.URL.Query()
	filter := audit.Filter{
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		ActorID:    q.Get("actor_id"),
		Limit:      limit,
	}
	entries, err := h.app.Audit.List(r.Context(), principal(r), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
