package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"contact-sync/internal/auth"
	"contact-sync/internal/models"
)

type resolveRequest struct {
	Resolution string `json:"resolution" validate:"required,resolution"`
}

// ListConflicts returns the caller's unresolved conflicts
// @Summary List sync conflicts
// @Tags carddav
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.CardDavConflict
// @Router /api/carddav/conflicts [get]
func (h *Handlers) ListConflicts(w http.ResponseWriter, r *http.Request) {
	conflicts, err := h.conflicts.List(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if conflicts == nil {
		conflicts = []*models.CardDavConflict{}
	}
	writeJSON(w, http.StatusOK, conflicts)
}

// ResolveConflict applies keep_local, keep_remote or merged to one conflict
// @Summary Resolve a sync conflict
// @Tags carddav
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conflict ID"
// @Param body body resolveRequest true "Resolution"
// @Success 200 {object} models.CardDavConflict
// @Failure 400 {object} errorResponse "Unknown resolution"
// @Failure 403 {object} errorResponse "Conflict belongs to another user"
// @Failure 404 {object} errorResponse "Conflict not found"
// @Failure 409 {object} errorResponse "Conflict already resolved"
// @Router /api/carddav/conflicts/{id}/resolve [post]
func (h *Handlers) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	resolved, err := h.conflicts.Resolve(r.Context(), auth.UserID(r.Context()), mux.Vars(r)["id"], req.Resolution)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}
