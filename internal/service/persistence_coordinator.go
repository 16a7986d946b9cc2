package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/Phucdanghoc/File-store-sub000/internal/archive"
	"github.com/Phucdanghoc/File-store-sub000/internal/domain"
	apperrors "github.com/Phucdanghoc/File-store-sub000/pkg/errors"

	"github.com/google/uuid"
)

const (
	defaultPresignTTL = 15 * time.Minute
	maxPresignTTL     = 7 * 24 * time.Hour
	compensateTimeout = 30 * time.Second
	maxFilenameLength = 200
	// DefaultBucketKey selects the bucket used for categories without their own.
	DefaultBucketKey domain.Category = "default"
)

// CoordinatorConfig holds the tunables of a PersistenceCoordinator.
type CoordinatorConfig struct {
	// Buckets maps a category to its bucket. DefaultBucketKey is the fallback.
	Buckets     map[domain.Category]string
	MaxFileSize int64
	PresignTTL  time.Duration
}

// CoordinatorDeps are the stores and helpers a coordinator drives.
type CoordinatorDeps struct {
	Objects domain.ObjectStore
	Catalog domain.MetadataCatalog
	Jobs    domain.JobStatusStore
	Queue   domain.JobQueue
	Ledger  domain.OrphanLedger
	Tasks   *TaskRunner
	Engine  *archive.Engine
	Metrics *Metrics
	Logger  domain.Logger
}

// PersistenceCoordinator keeps the object store and the metadata catalog
// consistent: a record exists if and only if its blob exists.
type PersistenceCoordinator struct {
	objects domain.ObjectStore
	catalog domain.MetadataCatalog
	jobs    domain.JobStatusStore
	queue   domain.JobQueue
	ledger  domain.OrphanLedger
	tasks   *TaskRunner
	engine  *archive.Engine
	metrics *Metrics
	logger  domain.Logger
	cfg     CoordinatorConfig
	now     func() time.Time
}

// NewPersistenceCoordinator creates a coordinator.
func NewPersistenceCoordinator(deps CoordinatorDeps, cfg CoordinatorConfig) *PersistenceCoordinator {
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = defaultPresignTTL
	}
	if deps.Engine == nil {
		deps.Engine = archive.NewEngine()
	}
	if deps.Metrics == nil {
		deps.Metrics = InitMetrics(nil)
	}
	return &PersistenceCoordinator{
		objects: deps.Objects,
		catalog: deps.Catalog,
		jobs:    deps.Jobs,
		queue:   deps.Queue,
		ledger:  deps.Ledger,
		tasks:   deps.Tasks,
		engine:  deps.Engine,
		metrics: deps.Metrics,
		logger:  deps.Logger,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SaveInput describes a document to persist.
type SaveInput struct {
	OwnerID     string
	Filename    string
	ContentType string
	Category    domain.Category
	Title       string
	Description string
	Data        []byte
	Metadata    map[string]interface{}
	SourceJobID string
}

func (c *PersistenceCoordinator) bucketFor(category domain.Category) string {
	if b, ok := c.cfg.Buckets[category]; ok && b != "" {
		return b
	}
	return c.cfg.Buckets[DefaultBucketKey]
}

// Save writes the blob first and the catalog row second. If the row cannot
// be written the blob is deleted again; a blob that survives that delete is
// recorded in the orphan ledger.
func (c *PersistenceCoordinator) Save(ctx context.Context, in SaveInput) (*domain.DocumentRecord, error) {
	if strings.TrimSpace(in.OwnerID) == "" {
		return nil, apperrors.NewValidationError("owner is required")
	}
	if strings.TrimSpace(in.Filename) == "" {
		return nil, apperrors.NewValidationError("filename is required")
	}
	if len(in.Data) == 0 {
		return nil, apperrors.NewValidationError("file is empty")
	}
	if c.cfg.MaxFileSize > 0 && int64(len(in.Data)) > c.cfg.MaxFileSize {
		return nil, apperrors.NewValidationError("file exceeds maximum size",
			fmt.Sprintf("%d bytes > %d bytes", len(in.Data), c.cfg.MaxFileSize))
	}

	category := in.Category
	if category == "" {
		category = domain.DetectCategory(in.Filename)
	}
	if !category.Valid() {
		return nil, apperrors.NewValidationError("unknown category", string(category))
	}
	bucket := c.bucketFor(category)
	if bucket == "" {
		return nil, apperrors.NewInternalError("no bucket configured", fmt.Errorf("category %s", category))
	}

	filename := SanitizeFilename(in.Filename)
	id := uuid.NewString()
	key := fmt.Sprintf("%s/%s/%s", category, id, filename)
	sum := sha256.Sum256(in.Data)
	contentType := detectContentType(filename, in.ContentType, in.Data)

	if err := c.objects.Put(ctx, bucket, key, in.Data, contentType); err != nil {
		c.metrics.SaveFailures.WithLabelValues("blob").Inc()
		c.logger.Error("Failed to write blob", err, "bucket", bucket, "key", key)
		return nil, apperrors.NewStorageError("failed to store document", err)
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = in.Filename
	}
	now := c.now()
	rec := &domain.DocumentRecord{
		ID:               id,
		StorageKey:       key,
		Category:         category,
		OwnerID:          in.OwnerID,
		Title:            title,
		Description:      in.Description,
		OriginalFilename: in.Filename,
		SizeBytes:        int64(len(in.Data)),
		ContentType:      contentType,
		Checksum:         hex.EncodeToString(sum[:]),
		Metadata:         in.Metadata,
		Version:          1,
		SourceJobID:      in.SourceJobID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := c.catalog.Insert(ctx, rec); err != nil {
		c.metrics.SaveFailures.WithLabelValues("catalog").Inc()
		c.logger.Error("Failed to insert catalog row, compensating", err, "document_id", id, "key", key)
		c.compensate(ctx, bucket, key)
		return nil, apperrors.NewStorageError("failed to record document metadata", err)
	}

	c.metrics.DocumentsSaved.WithLabelValues(string(category)).Inc()
	c.metrics.BytesStored.Add(float64(rec.SizeBytes))
	c.logger.Info("Document saved", "document_id", id, "owner_id", in.OwnerID, "category", category, "size", rec.SizeBytes)
	return rec, nil
}

// compensate removes a blob whose catalog row was never written. It runs on a
// context detached from the caller's so a cancelled request still cleans up.
func (c *PersistenceCoordinator) compensate(ctx context.Context, bucket, key string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensateTimeout)
	defer cancel()

	err := c.objects.Delete(cctx, bucket, key)
	if err == nil || errors.Is(err, domain.ErrBlobNotFound) {
		c.metrics.Compensations.WithLabelValues("ok").Inc()
		return
	}
	c.metrics.Compensations.WithLabelValues("failed").Inc()
	c.logger.Error("Compensating delete failed", err, "bucket", bucket, "key", key)
	c.recordOrphan(cctx, bucket, key, "compensation failed: "+err.Error())
}

func (c *PersistenceCoordinator) recordOrphan(ctx context.Context, bucket, key, reason string) {
	orphan := domain.Orphan{Bucket: bucket, Key: key, Reason: reason, Attempts: 1, RecordedAt: c.now()}
	if err := c.ledger.Record(ctx, orphan); err != nil {
		c.logger.Error("Failed to record orphaned blob", err, "bucket", bucket, "key", key)
		return
	}
	c.metrics.OrphansRecorded.Inc()
	c.logger.Warn("Orphaned blob recorded", "bucket", bucket, "key", key, "reason", reason)
}

// Stat returns the record without reading its blob. A trashed record is
// not found until it is restored.
func (c *PersistenceCoordinator) Stat(ctx context.Context, id, ownerID string) (*domain.DocumentRecord, error) {
	rec, err := c.catalog.Get(ctx, id, ownerID)
	if err != nil {
		return nil, catalogError(err, "document")
	}
	if rec.Trashed() {
		return nil, notFound("document not found")
	}
	return rec, nil
}

// Get returns the record and its bytes. A record whose blob is missing is an
// invariant violation and surfaces as a storage error.
func (c *PersistenceCoordinator) Get(ctx context.Context, id, ownerID string) (*domain.DocumentRecord, []byte, error) {
	rec, err := c.Stat(ctx, id, ownerID)
	if err != nil {
		return nil, nil, err
	}
	bucket := c.bucketFor(rec.Category)
	data, err := c.objects.Get(ctx, bucket, rec.StorageKey)
	if err != nil {
		if errors.Is(err, domain.ErrBlobNotFound) {
			c.logger.Error("Catalog row without blob", err, "document_id", id, "bucket", bucket, "key", rec.StorageKey)
		}
		return nil, nil, apperrors.NewStorageError("failed to read document content", err)
	}
	return rec, data, nil
}

// PresignURL returns a time-limited download URL for the owner's document.
func (c *PersistenceCoordinator) PresignURL(ctx context.Context, id, ownerID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = c.cfg.PresignTTL
	}
	if ttl > maxPresignTTL {
		return "", apperrors.NewValidationError("expiry too long", "maximum is 7 days")
	}
	rec, err := c.Stat(ctx, id, ownerID)
	if err != nil {
		return "", err
	}
	url, err := c.objects.PresignGet(ctx, c.bucketFor(rec.Category), rec.StorageKey, ttl)
	if err != nil {
		return "", apperrors.NewStorageError("failed to sign document url", err)
	}
	return url, nil
}

// Delete removes the catalog row, then schedules the blob delete. A blob
// that cannot be deleted is recorded in the orphan ledger.
func (c *PersistenceCoordinator) Delete(ctx context.Context, id, ownerID string) error {
	rec, err := c.catalog.Delete(ctx, id, ownerID)
	if err != nil {
		return catalogError(err, "document")
	}
	c.metrics.DocumentsDeleted.Inc()
	c.logger.Info("Document deleted", "document_id", id, "owner_id", ownerID)

	bucket := c.bucketFor(rec.Category)
	deleteBlob := func(tctx context.Context) error {
		err := c.objects.Delete(tctx, bucket, rec.StorageKey)
		if err == nil || errors.Is(err, domain.ErrBlobNotFound) {
			return nil
		}
		c.recordOrphan(tctx, bucket, rec.StorageKey, "delete failed: "+err.Error())
		return err
	}
	if c.tasks == nil || !c.tasks.Go(ctx, "blob-delete", deleteBlob) {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensateTimeout)
		defer cancel()
		_ = deleteBlob(cctx)
	}
	return nil
}

// Trash moves a live record to the trash. The blob is kept so the record
// can be restored.
func (c *PersistenceCoordinator) Trash(ctx context.Context, id, ownerID string) (*domain.DocumentRecord, error) {
	now := c.now()
	rec, err := c.catalog.SetTrashed(ctx, id, ownerID, &now, now)
	if err != nil {
		return nil, catalogError(err, "document")
	}
	c.metrics.DocumentsTrashed.Inc()
	c.logger.Info("Document moved to trash", "document_id", id, "owner_id", ownerID)
	return rec, nil
}

// Restore takes a record back out of the trash.
func (c *PersistenceCoordinator) Restore(ctx context.Context, id, ownerID string) (*domain.DocumentRecord, error) {
	rec, err := c.catalog.SetTrashed(ctx, id, ownerID, nil, c.now())
	if err != nil {
		return nil, catalogError(err, "trash item")
	}
	c.logger.Info("Document restored from trash", "document_id", id, "owner_id", ownerID)
	return rec, nil
}

// ListTrash returns one page of the owner's trashed records.
func (c *PersistenceCoordinator) ListTrash(ctx context.Context, ownerID string, filter domain.ListFilter) (*domain.ListResult, error) {
	filter.Trashed = true
	return c.List(ctx, ownerID, filter)
}

// DeleteForever permanently removes a trashed record and its blob.
func (c *PersistenceCoordinator) DeleteForever(ctx context.Context, id, ownerID string) error {
	rec, err := c.catalog.Get(ctx, id, ownerID)
	if err != nil {
		return catalogError(err, "trash item")
	}
	if !rec.Trashed() {
		return notFound("trash item not found")
	}
	return c.Delete(ctx, id, ownerID)
}

// EmptyTrash permanently removes every trashed record of the owner.
func (c *PersistenceCoordinator) EmptyTrash(ctx context.Context, ownerID string) (int, error) {
	filter := domain.ListFilter{Trashed: true, SortBy: domain.SortByCreatedAt, Limit: domain.MaxListLimit}
	deleted := 0
	for {
		page, err := c.catalog.List(ctx, ownerID, filter)
		if err != nil {
			return deleted, apperrors.NewStorageError("failed to list trash", err)
		}
		if len(page.Items) == 0 {
			break
		}
		for _, rec := range page.Items {
			if err := c.Delete(ctx, rec.ID, ownerID); err != nil {
				if apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
					continue
				}
				return deleted, err
			}
			deleted++
		}
	}
	c.logger.Info("Trash emptied", "owner_id", ownerID, "deleted", deleted)
	return deleted, nil
}

// UpdateMetadata patches non-content fields and bumps the version.
func (c *PersistenceCoordinator) UpdateMetadata(ctx context.Context, id, ownerID string, patch domain.MetadataPatch) (*domain.DocumentRecord, error) {
	if patch.Empty() {
		return nil, apperrors.NewValidationError("nothing to update")
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return nil, apperrors.NewValidationError("title cannot be empty")
	}
	if _, err := c.Stat(ctx, id, ownerID); err != nil {
		return nil, err
	}
	rec, err := c.catalog.Update(ctx, id, ownerID, patch, c.now())
	if err != nil {
		return nil, catalogError(err, "document")
	}
	return rec, nil
}

// List returns one page of the owner's records.
func (c *PersistenceCoordinator) List(ctx context.Context, ownerID string, filter domain.ListFilter) (*domain.ListResult, error) {
	if filter.Category != "" && !filter.Category.Valid() {
		return nil, apperrors.NewValidationError("unknown category", string(filter.Category))
	}
	switch filter.SortBy {
	case "", domain.SortByCreatedAt, domain.SortByTitle, domain.SortBySize:
	default:
		return nil, apperrors.NewValidationError("unknown sort key", filter.SortBy)
	}
	if filter.Offset < 0 || filter.Limit < 0 {
		return nil, apperrors.NewValidationError("offset and limit must not be negative")
	}
	res, err := c.catalog.List(ctx, ownerID, filter)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to list documents", err)
	}
	return res, nil
}

// ResultsForJob returns every record produced by jobID.
func (c *PersistenceCoordinator) ResultsForJob(ctx context.Context, ownerID, jobID string) ([]*domain.DocumentRecord, error) {
	var out []*domain.DocumentRecord
	filter := domain.ListFilter{SourceJobID: jobID, SortBy: domain.SortByCreatedAt, Limit: domain.MaxListLimit}
	for {
		page, err := c.catalog.List(ctx, ownerID, filter)
		if err != nil {
			return nil, apperrors.NewStorageError("failed to list job results", err)
		}
		out = append(out, page.Items...)
		filter.Offset += len(page.Items)
		if len(page.Items) == 0 || filter.Offset >= page.Total {
			return out, nil
		}
	}
}

// DiscardJobResults deletes records left behind by an interrupted run of jobID.
func (c *PersistenceCoordinator) DiscardJobResults(ctx context.Context, ownerID, jobID string) (int, error) {
	recs, err := c.ResultsForJob(ctx, ownerID, jobID)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, rec := range recs {
		if err := c.Delete(ctx, rec.ID, ownerID); err != nil {
			if apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
				continue
			}
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// catalogError maps a catalog failure onto the caller-facing error kinds.
func catalogError(err error, what string) error {
	if errors.Is(err, domain.ErrNotFound) {
		return notFound(what + " not found")
	}
	return apperrors.NewStorageError("failed to access "+what+" catalog", err)
}

func notFound(message string) *apperrors.AppError {
	e := apperrors.NewNotFoundError(message)
	e.Cause = domain.ErrNotFound
	return e
}

// SanitizeFilename reduces name to a safe final path element.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Base(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if len(out) > maxFilenameLength {
		ext := path.Ext(out)
		if len(ext) > 20 {
			ext = ""
		}
		out = strings.ToValidUTF8(out[:maxFilenameLength-len(ext)], "") + ext
	}
	if out == "" || out == "_" {
		return "file"
	}
	return out
}

func detectContentType(filename, declared string, data []byte) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	switch {
	case strings.HasSuffix(strings.ToLower(filename), ".tar.gz"):
		return "application/gzip"
	case strings.HasSuffix(strings.ToLower(filename), ".tar.zst"):
		return "application/zstd"
	}
	if t := mime.TypeByExtension(path.Ext(filename)); t != "" {
		return t
	}
	return http.DetectContentType(data)
}
