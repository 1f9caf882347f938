package handlers

import (
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"contact-sync/internal/auth"
	"contact-sync/internal/common/errors"
	"contact-sync/internal/common/logging"
	"contact-sync/internal/common/pagination"
)

// ListImports returns one page of the cards waiting for an explicit import
// @Summary List pending imports
// @Tags imports
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Success 200 {object} pagination.Response[models.CardDavPendingImport]
// @Router /api/carddav/imports [get]
func (h *Handlers) ListImports(w http.ResponseWriter, r *http.Request) {
	pending, err := h.sync.ListPending(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pagination.Slice(pending, pagination.ParseParams(r)))
}

// UploadImport stages every card of an uploaded .vcf file
// @Summary Upload a vCard file
// @Description Accepts a multipart form with a "file" field or a raw text/vcard body. Every card is staged as a pending import.
// @Tags imports
// @Accept multipart/form-data
// @Accept text/vcard
// @Produce json
// @Security BearerAuth
// @Success 201 {array} models.CardDavPendingImport
// @Failure 400 {object} errorResponse "No parseable cards"
// @Router /api/carddav/imports [post]
func (h *Handlers) UploadImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	text, err := readUpload(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	staged, err := h.sync.StageUpload(r.Context(), auth.UserID(r.Context()), text)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.WithContext(r.Context()).Info("vCard file staged", logging.Int("cards", len(staged)))
	writeJSON(w, http.StatusCreated, staged)
}

func readUpload(r *http.Request) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		file, _, err := r.FormFile("file")
		if err != nil {
			return "", errors.ValidationError("multipart upload needs a 'file' field").WithCause(err)
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return "", errors.ValidationError("failed to read upload").WithCause(err)
		}
		return string(data), nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return "", errors.ValidationError("failed to read upload").WithCause(err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", errors.ValidationError("upload is empty")
	}
	return string(data), nil
}

// ImportPending turns one pending import into a person
// @Summary Import a pending card
// @Tags imports
// @Produce json
// @Security BearerAuth
// @Param id path string true "Pending import ID"
// @Success 201 {object} models.Person
// @Failure 404 {object} errorResponse "Pending import not found"
// @Router /api/carddav/imports/{id} [post]
func (h *Handlers) ImportPending(w http.ResponseWriter, r *http.Request) {
	person, err := h.sync.ImportPending(r.Context(), auth.UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, person)
}

// DismissPending drops a pending import without importing it.
func (h *Handlers) DismissPending(w http.ResponseWriter, r *http.Request) {
	if err := h.sync.DismissPending(r.Context(), auth.UserID(r.Context()), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
