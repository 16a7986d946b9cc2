package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/Phucdanghoc/File-store-sub000/internal/domain"
)

func TestRecordRowMapping(t *testing.T) {
	created := time.Date(2024, 2, 3, 4, 5, 6, 789000000, time.UTC)
	rec := &domain.DocumentRecord{
		ID:               "id-1",
		StorageKey:       "pdf/id-1/a.pdf",
		Category:         domain.CategoryPDF,
		OwnerID:          "u1",
		Title:            "A",
		OriginalFilename: "a.pdf",
		SizeBytes:        1234,
		ContentType:      "application/pdf",
		Checksum:         "abc",
		Version:          3,
		SourceJobID:      "job-1",
		CreatedAt:        created,
		UpdatedAt:        created,
	}

	row := recordToRow(rec)
	if _, ok := row["metadata"].(map[string]interface{}); !ok {
		t.Errorf("Expected empty metadata object, got %T", row["metadata"])
	}

	// Simulate the JSON decode PostgREST responses go through.
	row["size_bytes"] = float64(1234)
	row["version"] = float64(3)

	got := rowToRecord(row)
	if got.ID != rec.ID || got.StorageKey != rec.StorageKey || got.Category != rec.Category {
		t.Errorf("Expected identity fields to survive, got %+v", got)
	}
	if got.SizeBytes != 1234 || got.Version != 3 {
		t.Errorf("Expected numeric fields 1234/3, got %d/%d", got.SizeBytes, got.Version)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("Expected created_at %v, got %v", created, got.CreatedAt)
	}
	if got.SourceJobID != "job-1" {
		t.Errorf("Expected source job id job-1, got %s", got.SourceJobID)
	}
	if got.Metadata != nil {
		t.Errorf("Expected nil metadata for empty object, got %v", got.Metadata)
	}
	if got.TrashedAt != nil {
		t.Errorf("Expected live record, got trashed_at %v", got.TrashedAt)
	}

	trashedAt := created.Add(time.Hour)
	rec.TrashedAt = &trashedAt
	got = rowToRecord(recordToRow(rec))
	if got.TrashedAt == nil || !got.TrashedAt.Equal(trashedAt) {
		t.Errorf("Expected trashed_at %v, got %v", trashedAt, got.TrashedAt)
	}
}

func TestGetTime_WithoutZone(t *testing.T) {
	got := getTime(map[string]interface{}{"t": "2024-02-03T04:05:06.123456"}, "t")
	want := time.Date(2024, 2, 3, 4, 5, 6, 123456000, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
	if !getTime(map[string]interface{}{}, "t").IsZero() {
		t.Error("Expected zero time for missing key")
	}
}

func TestEscapeOrValue(t *testing.T) {
	if got := escapeOrValue("a,b(c)*"); got != "a b c  " {
		t.Errorf("Expected separators stripped, got %q", got)
	}
}

func TestSupabaseErrorClassifiers(t *testing.T) {
	if !isPostgrestDuplicate(errors.New(`(23505) duplicate key value violates unique constraint`)) {
		t.Error("Expected duplicate key to be detected")
	}
	if isPostgrestDuplicate(errors.New("timeout")) {
		t.Error("Expected timeout not to be a duplicate")
	}
	if !isStorageNotFound(errors.New("Object not found")) {
		t.Error("Expected not found to be detected")
	}
	if !isStorageConflict(errors.New("The resource already exists")) {
		t.Error("Expected conflict to be detected")
	}
}
