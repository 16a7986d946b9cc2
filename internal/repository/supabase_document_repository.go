package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Phucdanghoc/File-store-sub000/internal/domain"

	"github.com/supabase-community/postgrest-go"
)

const (
	documentsTable = "documents"
	// updateRetries bounds optimistic version retries under concurrent patches.
	updateRetries = 3
)

// SupabaseDocumentRepository is a MetadataCatalog over the documents table
// exposed by Supabase's PostgREST API.
type SupabaseDocumentRepository struct {
	supabaseClient domain.SupabaseClient
	logger         domain.Logger
}

// NewSupabaseDocumentRepository creates a new Supabase document repository
func NewSupabaseDocumentRepository(supabaseClient domain.SupabaseClient, logger domain.Logger) *SupabaseDocumentRepository {
	return &SupabaseDocumentRepository{
		supabaseClient: supabaseClient,
		logger:         logger,
	}
}

func (r *SupabaseDocumentRepository) table() (*postgrest.QueryBuilder, error) {
	client := r.supabaseClient.DB()
	if client == nil {
		return nil, fmt.Errorf("supabase client not initialized")
	}
	return client.From(documentsTable), nil
}

// Insert a new record
func (r *SupabaseDocumentRepository) Insert(ctx context.Context, record *domain.DocumentRecord) error {
	q, err := r.table()
	if err != nil {
		return err
	}
	_, _, err = q.Insert(recordToRow(record), false, "", "", "").Execute()
	if err != nil {
		if isPostgrestDuplicate(err) {
			return domain.ErrDuplicateKey
		}
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

// Get a record by (id, owner)
func (r *SupabaseDocumentRepository) Get(ctx context.Context, id, ownerID string) (*domain.DocumentRecord, error) {
	q, err := r.table()
	if err != nil {
		return nil, err
	}
	data, _, err := q.Select("*", "", false).
		Eq("id", id).
		Eq("owner_id", ownerID).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	rows, err := decodeRows(data)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound
	}
	return rowToRecord(rows[0]), nil
}

// Update applies patch guarded by the version read just before, retrying
// when a concurrent patch won the race.
func (r *SupabaseDocumentRepository) Update(ctx context.Context, id, ownerID string, patch domain.MetadataPatch, now time.Time) (*domain.DocumentRecord, error) {
	for attempt := 0; attempt < updateRetries; attempt++ {
		current, err := r.Get(ctx, id, ownerID)
		if err != nil {
			return nil, err
		}
		expected := current.Version
		patch.Apply(current, now)

		q, err := r.table()
		if err != nil {
			return nil, err
		}
		data, _, err := q.Update(map[string]interface{}{
			"title":       current.Title,
			"description": current.Description,
			"metadata":    current.Metadata,
			"version":     current.Version,
			"updated_at":  current.UpdatedAt.UTC().Format(time.RFC3339Nano),
		}, "representation", "").
			Eq("id", id).
			Eq("owner_id", ownerID).
			Eq("version", strconv.Itoa(expected)).
			Execute()
		if err != nil {
			return nil, fmt.Errorf("failed to update document: %w", err)
		}
		rows, err := decodeRows(data)
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			return rowToRecord(rows[0]), nil
		}
		r.logger.Debug("Document version moved during update, retrying", "document_id", id, "attempt", attempt+1)
	}
	return nil, fmt.Errorf("failed to update document %s: concurrent modification", id)
}

// Delete removes the row and returns it so the caller knows which blob to drop.
func (r *SupabaseDocumentRepository) Delete(ctx context.Context, id, ownerID string) (*domain.DocumentRecord, error) {
	q, err := r.table()
	if err != nil {
		return nil, err
	}
	data, _, err := q.Delete("representation", "").
		Eq("id", id).
		Eq("owner_id", ownerID).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to delete document: %w", err)
	}
	rows, err := decodeRows(data)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound
	}
	return rowToRecord(rows[0]), nil
}

// SetTrashed moves the row in or out of the trash, matching only rows in the
// opposite state.
func (r *SupabaseDocumentRepository) SetTrashed(ctx context.Context, id, ownerID string, trashedAt *time.Time, now time.Time) (*domain.DocumentRecord, error) {
	q, err := r.table()
	if err != nil {
		return nil, err
	}
	values := map[string]interface{}{
		"trashed_at": nil,
		"updated_at": now.UTC().Format(time.RFC3339Nano),
	}
	if trashedAt != nil {
		values["trashed_at"] = trashedAt.UTC().Format(time.RFC3339Nano)
	}
	fb := q.Update(values, "representation", "").
		Eq("id", id).
		Eq("owner_id", ownerID)
	if trashedAt != nil {
		fb = fb.Is("trashed_at", "null")
	} else {
		fb = fb.Not("trashed_at", "is", "null")
	}
	data, _, err := fb.Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to update document trash state: %w", err)
	}
	rows, err := decodeRows(data)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound
	}
	return rowToRecord(rows[0]), nil
}

// List returns one page of the owner's records plus the exact total.
func (r *SupabaseDocumentRepository) List(ctx context.Context, ownerID string, filter domain.ListFilter) (*domain.ListResult, error) {
	filter = filter.Normalize()
	q, err := r.table()
	if err != nil {
		return nil, err
	}

	fb := q.Select("*", "exact", false).Eq("owner_id", ownerID)
	if filter.Trashed {
		fb = fb.Not("trashed_at", "is", "null")
	} else {
		fb = fb.Is("trashed_at", "null")
	}
	if filter.Category != "" {
		fb = fb.Eq("category", string(filter.Category))
	}
	if filter.SourceJobID != "" {
		fb = fb.Eq("source_job_id", filter.SourceJobID)
	}
	if !filter.CreatedBefore.IsZero() {
		fb = fb.Lt("created_at", filter.CreatedBefore.UTC().Format(time.RFC3339Nano))
	}
	if filter.Search != "" {
		pattern := "*" + escapeOrValue(filter.Search) + "*"
		fb = fb.Or(fmt.Sprintf("title.ilike.%[1]s,description.ilike.%[1]s,original_filename.ilike.%[1]s", pattern), "")
	}
	data, count, err := fb.
		Order(filter.SortBy, &postgrest.OrderOpts{Ascending: !filter.Desc}).
		Order("id", &postgrest.OrderOpts{Ascending: !filter.Desc}).
		Range(filter.Offset, filter.Offset+filter.Limit-1, "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	rows, err := decodeRows(data)
	if err != nil {
		return nil, err
	}

	items := make([]*domain.DocumentRecord, 0, len(rows))
	for _, row := range rows {
		items = append(items, rowToRecord(row))
	}
	return &domain.ListResult{Items: items, Total: int(count)}, nil
}

func decodeRows(data []byte) ([]map[string]interface{}, error) {
	var rows []map[string]interface{}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return rows, nil
}

func recordToRow(rec *domain.DocumentRecord) map[string]interface{} {
	row := map[string]interface{}{
		"id":                rec.ID,
		"storage_key":       rec.StorageKey,
		"category":          string(rec.Category),
		"owner_id":          rec.OwnerID,
		"title":             rec.Title,
		"description":       rec.Description,
		"original_filename": rec.OriginalFilename,
		"size_bytes":        rec.SizeBytes,
		"content_type":      rec.ContentType,
		"checksum":          rec.Checksum,
		"metadata":          rec.Metadata,
		"version":           rec.Version,
		"created_at":        rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":        rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if rec.Metadata == nil {
		row["metadata"] = map[string]interface{}{}
	}
	if rec.SourceJobID != "" {
		row["source_job_id"] = rec.SourceJobID
	}
	if rec.TrashedAt != nil {
		row["trashed_at"] = rec.TrashedAt.UTC().Format(time.RFC3339Nano)
	}
	return row
}

func rowToRecord(row map[string]interface{}) *domain.DocumentRecord {
	rec := &domain.DocumentRecord{
		ID:               getString(row, "id"),
		StorageKey:       getString(row, "storage_key"),
		Category:         domain.Category(getString(row, "category")),
		OwnerID:          getString(row, "owner_id"),
		Title:            getString(row, "title"),
		Description:      getString(row, "description"),
		OriginalFilename: getString(row, "original_filename"),
		SizeBytes:        getInt64(row, "size_bytes"),
		ContentType:      getString(row, "content_type"),
		Checksum:         getString(row, "checksum"),
		Version:          int(getInt64(row, "version")),
		SourceJobID:      getString(row, "source_job_id"),
		CreatedAt:        getTime(row, "created_at"),
		UpdatedAt:        getTime(row, "updated_at"),
	}
	if m, ok := row["metadata"].(map[string]interface{}); ok && len(m) > 0 {
		rec.Metadata = m
	}
	if t := getTime(row, "trashed_at"); !t.IsZero() {
		rec.TrashedAt = &t
	}
	return rec
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok && val != nil {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func getInt64(data map[string]interface{}, key string) int64 {
	switch v := data[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

func getTime(data map[string]interface{}, key string) time.Time {
	s := getString(data, key)
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	// timestamptz without zone suffix
	if t, err := time.Parse("2006-01-02T15:04:05.999999", s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

// escapeOrValue strips characters that carry meaning inside a PostgREST or= list.
func escapeOrValue(s string) string {
	return strings.NewReplacer(",", " ", "(", " ", ")", " ", "*", " ").Replace(s)
}

func isPostgrestDuplicate(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "23505") || strings.Contains(strings.ToLower(msg), "duplicate key")
}
