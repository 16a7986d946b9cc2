// Package handler provides HTTP handlers for the API.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Phucdanghoc/File-store-sub000/internal/domain"
	"github.com/Phucdanghoc/File-store-sub000/internal/service"

	"github.com/gorilla/mux"
)

// multipartOverhead is the allowance for form fields on top of the file itself.
const multipartOverhead = 1 << 20

// DocumentService is the persistence surface the document endpoints need.
type DocumentService interface {
	Save(ctx context.Context, in service.SaveInput) (*domain.DocumentRecord, error)
	Stat(ctx context.Context, id, ownerID string) (*domain.DocumentRecord, error)
	Get(ctx context.Context, id, ownerID string) (*domain.DocumentRecord, []byte, error)
	PresignURL(ctx context.Context, id, ownerID string, ttl time.Duration) (string, error)
	UpdateMetadata(ctx context.Context, id, ownerID string, patch domain.MetadataPatch) (*domain.DocumentRecord, error)
	Delete(ctx context.Context, id, ownerID string) error
	List(ctx context.Context, ownerID string, filter domain.ListFilter) (*domain.ListResult, error)

	Trash(ctx context.Context, id, ownerID string) (*domain.DocumentRecord, error)
	Restore(ctx context.Context, id, ownerID string) (*domain.DocumentRecord, error)
	ListTrash(ctx context.Context, ownerID string, filter domain.ListFilter) (*domain.ListResult, error)
	DeleteForever(ctx context.Context, id, ownerID string) error
	EmptyTrash(ctx context.Context, ownerID string) (int, error)
}

// DocumentHandler handles document-related HTTP requests
type DocumentHandler struct {
	documents   DocumentService
	maxFileSize int64
	logger      domain.Logger
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(documents DocumentService, maxFileSize int64, logger domain.Logger) *DocumentHandler {
	return &DocumentHandler{
		documents:   documents,
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

type listResponse struct {
	Items  []*domain.DocumentRecord `json:"items"`
	Total  int                      `json:"total"`
	Limit  int                      `json:"limit"`
	Offset int                      `json:"offset"`
}

type urlResponse struct {
	URL       string     `json:"url"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// UploadDocument stores a multipart "file" part with optional category,
// title, description and JSON metadata fields.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+multipartOverhead)
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "File is required")
		return
	}
	defer file.Close()

	if header.Size > h.maxFileSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("File too large. Maximum size is %d bytes.", h.maxFileSize))
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read file")
		return
	}

	var metadata map[string]interface{}
	if raw := strings.TrimSpace(r.FormValue("metadata")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			writeError(w, http.StatusBadRequest, "metadata must be a JSON object")
			return
		}
	}

	rec, err := h.documents.Save(r.Context(), service.SaveInput{
		OwnerID:     owner,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Category:    domain.Category(strings.ToLower(strings.TrimSpace(r.FormValue("category")))),
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Data:        data,
		Metadata:    metadata,
	})
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// ListDocuments pages through the caller's records.
func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	filter, err := parseListFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.documents.List(r.Context(), owner, filter)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeList(w, res, filter)
}

func writeList(w http.ResponseWriter, res *domain.ListResult, filter domain.ListFilter) {
	filter = filter.Normalize()
	items := res.Items
	if items == nil {
		items = make([]*domain.DocumentRecord, 0)
	}
	writeJSON(w, http.StatusOK, listResponse{Items: items, Total: res.Total, Limit: filter.Limit, Offset: filter.Offset})
}

func parseListFilter(r *http.Request) (domain.ListFilter, error) {
	q := r.URL.Query()
	filter := domain.ListFilter{
		Category:    domain.Category(strings.ToLower(q.Get("category"))),
		Search:      q.Get("q"),
		SourceJobID: q.Get("source_job_id"),
		SortBy:      q.Get("sort"),
	}
	switch strings.ToLower(q.Get("order")) {
	case "", "desc":
		filter.Desc = true
	case "asc":
	default:
		return filter, fmt.Errorf("order must be asc or desc")
	}
	var err error
	if filter.Limit, err = queryInt(q.Get("limit")); err != nil {
		return filter, fmt.Errorf("limit must be an integer")
	}
	if filter.Offset, err = queryInt(q.Get("offset")); err != nil {
		return filter, fmt.Errorf("offset must be an integer")
	}
	if v := q.Get("created_before"); v != "" {
		if filter.CreatedBefore, err = time.Parse(time.RFC3339, v); err != nil {
			return filter, fmt.Errorf("created_before must be an RFC 3339 timestamp")
		}
	}
	return filter, nil
}

func queryInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// GetDocument returns a record's metadata.
func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	rec, err := h.documents.Stat(r.Context(), mux.Vars(r)["id"], owner)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GetContent streams a record's bytes as an attachment.
func (h *DocumentHandler) GetContent(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	rec, data, err := h.documents.Get(r.Context(), mux.Vars(r)["id"], owner)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	etag := `"` + rec.Checksum + `"`
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	contentType := rec.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.OriginalFilename))
	w.Header().Set("ETag", etag)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Debug("Client went away during download", "id", rec.ID, "error", err.Error())
	}
}

// GetURL returns a presigned download URL; ttl is an optional duration.
func (h *DocumentHandler) GetURL(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	var ttl time.Duration
	if v := r.URL.Query().Get("ttl"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "ttl must be a positive duration")
			return
		}
		ttl = d
	}
	url, err := h.documents.PresignURL(r.Context(), mux.Vars(r)["id"], owner, ttl)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	resp := urlResponse{URL: url}
	if ttl > 0 {
		expires := time.Now().UTC().Add(ttl)
		resp.ExpiresAt = &expires
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpdateDocument patches title, description or metadata.
func (h *DocumentHandler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	var patch domain.MetadataPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	rec, err := h.documents.UpdateMetadata(r.Context(), mux.Vars(r)["id"], owner, patch)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DeleteDocument permanently deletes a live document and its content.
func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	if err := h.documents.Delete(r.Context(), mux.Vars(r)["id"], owner); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
