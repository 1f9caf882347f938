package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"contact-sync/internal/auth"
	"contact-sync/internal/common/logging"
	"contact-sync/internal/merge"
)

type mergeRequest struct {
	SecondaryID string                `json:"secondary_id" validate:"required"`
	Overrides   *merge.FieldOverrides `json:"overrides,omitempty"`
}

type mergeResponse struct {
	PersonID string `json:"person_id"`
}

// MergePeople folds the secondary person into the one in the path
// @Summary Merge two people
// @Description Moves every detail of secondary_id onto the person in the path, applies overrides and soft-deletes the secondary.
// @Tags people
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Primary person ID"
// @Param body body mergeRequest true "Secondary person and field overrides"
// @Success 200 {object} mergeResponse
// @Failure 400 {object} errorResponse "Invalid merge"
// @Failure 404 {object} errorResponse "Person not found"
// @Router /api/people/{id}/merge [post]
func (h *Handlers) MergePeople(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	primaryID := mux.Vars(r)["id"]
	personID, err := h.merge.Merge(r.Context(), auth.UserID(r.Context()), primaryID, req.SecondaryID, req.Overrides)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.WithContext(r.Context()).Info("People merged",
		logging.String("primary_id", primaryID),
		logging.String("secondary_id", req.SecondaryID))
	writeJSON(w, http.StatusOK, mergeResponse{PersonID: personID})
}
