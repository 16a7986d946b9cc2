package handler

import (
	"net/http"

	"github.com/gorilla/mux"
)

type emptyTrashResponse struct {
	Deleted int `json:"deleted"`
}

// TrashDocument moves a document to the trash.
func (h *DocumentHandler) TrashDocument(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	rec, err := h.documents.Trash(r.Context(), mux.Vars(r)["id"], owner)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// RestoreDocument takes a document back out of the trash.
func (h *DocumentHandler) RestoreDocument(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	rec, err := h.documents.Restore(r.Context(), mux.Vars(r)["id"], owner)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ListTrash pages through the caller's trash with the same query parameters
// as ListDocuments.
func (h *DocumentHandler) ListTrash(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	filter, err := parseListFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.documents.ListTrash(r.Context(), owner, filter)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeList(w, res, filter)
}

// DeleteTrashItem permanently deletes one trashed document.
func (h *DocumentHandler) DeleteTrashItem(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	if err := h.documents.DeleteForever(r.Context(), mux.Vars(r)["id"], owner); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EmptyTrash permanently deletes everything in the caller's trash.
func (h *DocumentHandler) EmptyTrash(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	n, err := h.documents.EmptyTrash(r.Context(), owner)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, emptyTrashResponse{Deleted: n})
}
