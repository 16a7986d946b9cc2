package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Phucdanghoc/File-store-sub000/internal/domain"
	apperrors "github.com/Phucdanghoc/File-store-sub000/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSave_GetRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	data := []byte("%PDF-1.4 quarterly numbers")

	rec, err := f.coord.Save(ctx, SaveInput{
		OwnerID:  ownerA,
		Filename: "Q1 report.pdf",
		Data:     data,
		Metadata: map[string]interface{}{"team": "finance"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryPDF, rec.Category)
	assert.Equal(t, 1, rec.Version)
	assert.Equal(t, "Q1 report.pdf", rec.Title)
	assert.Equal(t, "application/pdf", rec.ContentType)
	assert.True(t, strings.HasPrefix(rec.StorageKey, "pdf/"+rec.ID+"/"))
	assert.True(t, strings.HasSuffix(rec.StorageKey, "/Q1_report.pdf"))

	got, body, err := f.coord.Get(ctx, rec.ID, ownerA)
	require.NoError(t, err)
	assert.Equal(t, data, body)
	sum := sha256.Sum256(body)
	assert.Equal(t, hex.EncodeToString(sum[:]), got.Checksum)
	assert.Equal(t, "finance", got.Metadata["team"])
}

func TestSave_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   SaveInput
	}{
		{"missing owner", SaveInput{Filename: "a.txt", Data: []byte("x")}},
		{"missing filename", SaveInput{OwnerID: ownerA, Data: []byte("x")}},
		{"empty file", SaveInput{OwnerID: ownerA, Filename: "a.txt"}},
		{"too large", SaveInput{OwnerID: ownerA, Filename: "a.txt", Data: bytes.Repeat([]byte("x"), 1<<20+1)}},
		{"unknown category", SaveInput{OwnerID: ownerA, Filename: "a.txt", Data: []byte("x"), Category: "video"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.coord.Save(ctx, tt.in)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation), "got %v", err)
		})
	}
	assert.Equal(t, 0, f.objects.Len())
}

func TestSave_ConcurrentIdenticalSavesAreDistinct(t *testing.T) {
	f := newFixture(t)
	const n = 20

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ids  = map[string]bool{}
		keys = map[string]bool{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := f.coord.Save(context.Background(), SaveInput{OwnerID: ownerA, Filename: "same.txt", Data: []byte("same bytes")})
			if err != nil {
				t.Errorf("Save failed: %v", err)
				return
			}
			mu.Lock()
			ids[rec.ID] = true
			keys[rec.StorageKey] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, ids, n)
	assert.Len(t, keys, n)
	assert.Equal(t, n, f.objects.Len())
}

func TestSave_BlobFailureWritesNoRow(t *testing.T) {
	f := newFixture(t)
	f.objects.set(func(o *faultyObjects) { o.failPut = true })

	_, err := f.coord.Save(context.Background(), SaveInput{OwnerID: ownerA, Filename: "a.txt", Data: []byte("x")})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeStorage))

	res, err := f.coord.List(context.Background(), ownerA, domain.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)
}

func TestSave_CatalogFailureCompensates(t *testing.T) {
	f := newFixture(t)
	f.catalog.failInsert = true

	_, err := f.coord.Save(context.Background(), SaveInput{OwnerID: ownerA, Filename: "a.txt", Data: []byte("x")})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeStorage))
	assert.Equal(t, 0, f.objects.Len(), "blob must be removed again")

	orphans, err := f.ledger.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

func TestSave_FailedCompensationIsLedgered(t *testing.T) {
	f := newFixture(t)
	f.catalog.failInsert = true
	f.objects.set(func(o *faultyObjects) { o.failDelete = true })

	_, err := f.coord.Save(context.Background(), SaveInput{OwnerID: ownerA, Filename: "a.txt", Data: []byte("x")})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeStorage))

	orphans, err := f.ledger.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, testBucket, orphans[0].Bucket)
	assert.True(t, f.objects.Exists(orphans[0].Bucket, orphans[0].Key))
	assert.Contains(t, orphans[0].Reason, "compensation failed")
	assert.True(t, f.logger.Contains("Orphaned blob recorded"))
}

func TestSave_LedgerFailureIsLoggedNotEscalated(t *testing.T) {
	f := newFixture(t)
	f.catalog.failInsert = true
	f.ledger.failRecord = true
	f.objects.set(func(o *faultyObjects) { o.failDelete = true })

	_, err := f.coord.Save(context.Background(), SaveInput{OwnerID: ownerA, Filename: "a.txt", Data: []byte("x")})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeStorage))
	assert.True(t, f.logger.Contains("Failed to record orphaned blob"))
}

func TestGet_OwnerScoped(t *testing.T) {
	f := newFixture(t)
	rec := f.save(t, ownerA, "a.txt", []byte("mine"))

	_, _, err := f.coord.Get(context.Background(), rec.ID, ownerB)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, _, err = f.coord.Get(context.Background(), "does-not-exist", ownerA)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func TestGet_MissingBlobIsStorageError(t *testing.T) {
	f := newFixture(t)
	rec := f.save(t, ownerA, "a.txt", []byte("x"))
	require.NoError(t, f.objects.MemoryObjectStore.Delete(context.Background(), testBucket, rec.StorageKey))

	_, _, err := f.coord.Get(context.Background(), rec.ID, ownerA)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeStorage))
	assert.True(t, f.logger.Contains("Catalog row without blob"))
}

func TestDelete_ThenGetIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.save(t, ownerA, "a.txt", []byte("x"))

	err := f.coord.Delete(ctx, rec.ID, ownerB)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound), "foreign owner must not delete")

	require.NoError(t, f.coord.Delete(ctx, rec.ID, ownerA))
	f.settle(t)

	_, _, err = f.coord.Get(ctx, rec.ID, ownerA)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
	assert.False(t, f.objects.Exists(testBucket, rec.StorageKey))

	err = f.coord.Delete(ctx, rec.ID, ownerA)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func TestDelete_BlobFailureIsLedgered(t *testing.T) {
	f := newFixture(t)
	rec := f.save(t, ownerA, "a.txt", []byte("x"))
	f.objects.set(func(o *faultyObjects) { o.failDelete = true })

	require.NoError(t, f.coord.Delete(context.Background(), rec.ID, ownerA))
	f.settle(t)

	flagged, err := f.ledger.Contains(context.Background(), testBucket, rec.StorageKey)
	require.NoError(t, err)
	assert.True(t, flagged)
}

func TestTrash_HidesRecordUntilRestored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.save(t, ownerA, "a.txt", []byte("x"))

	_, err := f.coord.Trash(ctx, rec.ID, ownerB)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound), "foreign owner must not trash")

	trashed, err := f.coord.Trash(ctx, rec.ID, ownerA)
	require.NoError(t, err)
	require.NotNil(t, trashed.TrashedAt)

	_, _, err = f.coord.Get(ctx, rec.ID, ownerA)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
	_, err = f.coord.PresignURL(ctx, rec.ID, ownerA, 0)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
	title := "renamed"
	_, err = f.coord.UpdateMetadata(ctx, rec.ID, ownerA, domain.MetadataPatch{Title: &title})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
	_, err = f.coord.Trash(ctx, rec.ID, ownerA)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound), "already trashed")

	live, err := f.coord.List(ctx, ownerA, domain.ListFilter{})
	require.NoError(t, err)
	assert.Zero(t, live.Total)
	trash, err := f.coord.ListTrash(ctx, ownerA, domain.ListFilter{})
	require.NoError(t, err)
	require.Len(t, trash.Items, 1)
	assert.Equal(t, rec.ID, trash.Items[0].ID)
	assert.True(t, f.objects.Exists(testBucket, rec.StorageKey))

	restored, err := f.coord.Restore(ctx, rec.ID, ownerA)
	require.NoError(t, err)
	assert.Nil(t, restored.TrashedAt)
	_, data, err := f.coord.Get(ctx, rec.ID, ownerA)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)

	_, err = f.coord.Restore(ctx, rec.ID, ownerA)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound), "restoring a live record")
}

func TestDeleteForever_OnlyTrashedRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.save(t, ownerA, "a.txt", []byte("x"))

	err := f.coord.DeleteForever(ctx, rec.ID, ownerA)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound), "live records are not in the trash")
	assert.True(t, f.objects.Exists(testBucket, rec.StorageKey))

	_, err = f.coord.Trash(ctx, rec.ID, ownerA)
	require.NoError(t, err)
	require.NoError(t, f.coord.DeleteForever(ctx, rec.ID, ownerA))
	f.settle(t)

	assert.False(t, f.objects.Exists(testBucket, rec.StorageKey))
	_, err = f.coord.Restore(ctx, rec.ID, ownerA)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func TestEmptyTrash(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var trashed []*domain.DocumentRecord
	for i := 0; i < domain.MaxListLimit+5; i++ {
		rec := f.save(t, ownerA, fmt.Sprintf("t%03d.txt", i), []byte("x"))
		_, err := f.coord.Trash(ctx, rec.ID, ownerA)
		require.NoError(t, err)
		trashed = append(trashed, rec)
	}
	kept := f.save(t, ownerA, "kept.txt", []byte("x"))
	theirs := f.save(t, ownerB, "theirs.txt", []byte("x"))
	_, err := f.coord.Trash(ctx, theirs.ID, ownerB)
	require.NoError(t, err)

	n, err := f.coord.EmptyTrash(ctx, ownerA)
	require.NoError(t, err)
	assert.Equal(t, domain.MaxListLimit+5, n)
	f.settle(t)

	for _, rec := range trashed {
		assert.False(t, f.objects.Exists(testBucket, rec.StorageKey))
	}
	_, err = f.coord.Stat(ctx, kept.ID, ownerA)
	assert.NoError(t, err)
	other, err := f.coord.ListTrash(ctx, ownerB, domain.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, other.Total)
}

func TestUpdateMetadata(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.save(t, ownerA, "a.txt", []byte("x"))

	_, err := f.coord.UpdateMetadata(ctx, rec.ID, ownerA, domain.MetadataPatch{})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	blank := "  "
	_, err = f.coord.UpdateMetadata(ctx, rec.ID, ownerA, domain.MetadataPatch{Title: &blank})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	title := "Renamed"
	updated, err := f.coord.UpdateMetadata(ctx, rec.ID, ownerA, domain.MetadataPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, rec.StorageKey, updated.StorageKey)
	assert.Equal(t, rec.Checksum, updated.Checksum)

	_, err = f.coord.UpdateMetadata(ctx, rec.ID, ownerB, domain.MetadataPatch{Title: &title})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func TestList_ValidatesFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.save(t, ownerA, fmt.Sprintf("f%d.txt", i), []byte("x"))
	}
	f.save(t, ownerB, "theirs.txt", []byte("x"))

	res, err := f.coord.List(ctx, ownerA, domain.ListFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	assert.Len(t, res.Items, 2)

	_, err = f.coord.List(ctx, ownerA, domain.ListFilter{SortBy: "owner_id"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	_, err = f.coord.List(ctx, ownerA, domain.ListFilter{Category: "video"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	_, err = f.coord.List(ctx, ownerA, domain.ListFilter{Offset: -1})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	f.catalog.failList = true
	_, err = f.coord.List(ctx, ownerA, domain.ListFilter{})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeStorage))
}

func TestPresignURL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.save(t, ownerA, "a.txt", []byte("x"))

	url, err := f.coord.PresignURL(ctx, rec.ID, ownerA, 0)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "memory://"+testBucket+"/"))

	_, err = f.coord.PresignURL(ctx, rec.ID, ownerB, time.Minute)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))

	_, err = f.coord.PresignURL(ctx, rec.ID, ownerA, 8*24*time.Hour)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func TestBucketFor_PerCategory(t *testing.T) {
	f := newFixture(t)
	f.coord.cfg.Buckets[domain.CategoryArchive] = "archives"

	rec := f.save(t, ownerA, "bundle.zip", []byte("PK\x03\x04 not really"))
	assert.True(t, f.objects.Exists("archives", rec.StorageKey))

	_, body, err := f.coord.Get(context.Background(), rec.ID, ownerA)
	require.NoError(t, err)
	assert.Equal(t, []byte("PK\x03\x04 not really"), body)
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"report.pdf":              "report.pdf",
		"../../etc/passwd":        "passwd",
		`C:\Users\me\file.docx`:   "file.docx",
		"my file (final).txt":     "my_file__final_.txt",
		".hidden":                 "hidden",
		"":                        "file",
		"résumé.pdf":              "résumé.pdf",
		strings.Repeat("a", 300):  strings.Repeat("a", maxFilenameLength),
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeFilename(in), in)
	}
}
