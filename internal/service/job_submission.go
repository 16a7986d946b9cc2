package service

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/Phucdanghoc/File-store-sub000/internal/archive"
	"github.com/Phucdanghoc/File-store-sub000/internal/domain"
	apperrors "github.com/Phucdanghoc/File-store-sub000/pkg/errors"

	"github.com/google/uuid"
)

// Job parameter names.
const (
	ParamOutputFilename = "output_filename"
	ParamTargetFormat   = "target_format"
	ParamPassword       = "password"
	ParamFormat         = "format"
	ParamLevel          = "level"
	ParamFiles          = "files"
	ParamCharset        = "charset"
	ParamMaxLength      = "max_length"
	ParamDays           = "days"
	ParamCategory       = "category"
	ParamDPI            = "dpi"
	ParamPages          = "pages"
)

const (
	defaultCleanupDays = 30
	targetFormatPDF    = "pdf"
	targetFormatPNG    = "png"
)

// SubmitJob validates req, records the job as queued and publishes it. The
// job exists in the status store before any worker can see the message.
func (c *PersistenceCoordinator) SubmitJob(ctx context.Context, req domain.JobRequest) (*domain.Job, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, apperrors.NewValidationError("owner is required")
	}
	if !req.Type.Valid() {
		return nil, apperrors.NewValidationError("unknown job type", string(req.Type))
	}
	params, err := c.validateJob(ctx, req)
	if err != nil {
		return nil, err
	}

	now := c.now()
	job := &domain.Job{
		ID:              uuid.NewString(),
		Type:            req.Type,
		OwnerID:         req.OwnerID,
		TargetRecordIDs: append([]string{}, req.TargetRecordIDs...),
		Parameters:      params,
		Status:          domain.JobStatusQueued,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := c.jobs.Create(ctx, job); err != nil {
		return nil, apperrors.NewStorageError("failed to create job", err)
	}

	if err := c.queue.Publish(ctx, domain.NewJobMessage(job)); err != nil {
		c.logger.Error("Failed to publish job", err, "job_id", job.ID, "type", job.Type)
		job.MarkFailed("storage: dispatch failed", c.now())
		if uerr := c.jobs.UpdateStatus(context.WithoutCancel(ctx), job, domain.JobStatusQueued); uerr != nil {
			c.logger.Error("Failed to mark undispatched job failed", uerr, "job_id", job.ID)
		}
		return nil, apperrors.NewStorageError("failed to dispatch job", err)
	}

	c.metrics.JobsSubmitted.WithLabelValues(string(job.Type)).Inc()
	c.logger.Info("Job submitted", "job_id", job.ID, "type", job.Type, "owner_id", job.OwnerID, "targets", len(job.TargetRecordIDs))
	return job, nil
}

// PollStatus returns the owner's view of a job.
func (c *PersistenceCoordinator) PollStatus(ctx context.Context, jobID, ownerID string) (*domain.JobStatusResponse, error) {
	job, err := c.jobs.Get(ctx, jobID, ownerID)
	if err != nil {
		return nil, catalogError(err, "job")
	}
	return job.StatusResponse(), nil
}

// validateJob checks targets and type-specific parameters and returns the
// normalized parameters stored with the job.
func (c *PersistenceCoordinator) validateJob(ctx context.Context, req domain.JobRequest) (map[string]interface{}, error) {
	in := domain.Params(req.Parameters)
	out := make(map[string]interface{}, len(req.Parameters))
	for k, v := range req.Parameters {
		out[k] = v
	}

	seen := make(map[string]bool, len(req.TargetRecordIDs))
	for _, id := range req.TargetRecordIDs {
		if seen[id] {
			return nil, apperrors.NewValidationError("duplicate target record", id)
		}
		seen[id] = true
	}

	switch req.Type {
	case domain.JobTypeMerge:
		if len(req.TargetRecordIDs) < 2 {
			return nil, apperrors.NewValidationError("merge needs at least two documents")
		}
		recs, err := c.targets(ctx, req)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			if rec.Category != domain.CategoryPDF {
				return nil, apperrors.NewValidationError("merge accepts only pdf documents", rec.ID)
			}
		}

	case domain.JobTypeConvert:
		if len(req.TargetRecordIDs) != 1 {
			return nil, apperrors.NewValidationError("convert needs exactly one document")
		}
		recs, err := c.targets(ctx, req)
		if err != nil {
			return nil, err
		}
		target := strings.ToLower(in.String(ParamTargetFormat, ""))
		if target == "" {
			return nil, apperrors.NewValidationError("target_format is required")
		}
		if target == targetFormatPDF {
			if !IsConvertibleImage(recs[0]) {
				return nil, apperrors.NewUnsupportedFormatError("only png and jpeg images convert to pdf", domain.ErrUnsupportedFormat)
			}
			out[ParamTargetFormat] = targetFormatPDF
			break
		}
		if target == targetFormatPNG {
			if recs[0].Category != domain.CategoryPDF {
				return nil, apperrors.NewUnsupportedFormatError("only pdf documents render to png", domain.ErrUnsupportedFormat)
			}
			dpi, err := in.Int(ParamDPI, DefaultRenderDPI)
			if err != nil {
				return nil, apperrors.NewValidationError("dpi must be an integer")
			}
			if dpi < MinRenderDPI || dpi > MaxRenderDPI {
				return nil, apperrors.NewValidationError("dpi out of range", fmt.Sprintf("%d..%d", MinRenderDPI, MaxRenderDPI))
			}
			pages, err := in.Ints(ParamPages)
			if err != nil {
				return nil, apperrors.NewValidationError("pages must be a list of page numbers")
			}
			out[ParamTargetFormat] = targetFormatPNG
			out[ParamDPI] = dpi
			if pages != nil {
				out[ParamPages] = pages
			}
			break
		}
		format, err := archive.ParseFormat(target)
		if err != nil {
			return nil, err
		}
		if recs[0].Category != domain.CategoryArchive {
			return nil, apperrors.NewUnsupportedFormatError("only archives convert to "+string(format), domain.ErrUnsupportedFormat)
		}
		out[ParamTargetFormat] = string(format)

	case domain.JobTypeCompress:
		if len(req.TargetRecordIDs) == 0 {
			return nil, apperrors.NewValidationError("compress needs at least one document")
		}
		format, err := archive.ParseFormat(in.String(ParamFormat, string(archive.FormatZip)))
		if err != nil {
			return nil, err
		}
		level, err := in.Int(ParamLevel, archive.DefaultLevel)
		if err != nil {
			return nil, apperrors.NewValidationError("level must be an integer")
		}
		if level < archive.MinCompressLevel || level > archive.MaxCompressLevel {
			return nil, apperrors.NewValidationError("compression level out of range", fmt.Sprintf("%d..%d", archive.MinCompressLevel, archive.MaxCompressLevel))
		}
		if in.String(ParamPassword, "") != "" && !format.SupportsPassword() {
			return nil, apperrors.NewUnsupportedFormatError(string(format)+" does not support passwords", domain.ErrUnsupportedFormat)
		}
		if _, err := c.targets(ctx, req); err != nil {
			return nil, err
		}
		out[ParamFormat] = string(format)
		out[ParamLevel] = level

	case domain.JobTypeExtract, domain.JobTypeCrackPassword:
		if len(req.TargetRecordIDs) != 1 {
			return nil, apperrors.NewValidationError(string(req.Type) + " needs exactly one archive")
		}
		if req.Type == domain.JobTypeCrackPassword {
			maxLength, err := in.Int(ParamMaxLength, 0)
			if err != nil {
				return nil, apperrors.NewValidationError("max_length must be an integer")
			}
			charset, err := c.engine.ValidateCrack(in.String(ParamCharset, ""), maxLength)
			if err != nil {
				return nil, err
			}
			out[ParamCharset] = charset
			out[ParamMaxLength] = maxLength
		}
		recs, err := c.targets(ctx, req)
		if err != nil {
			return nil, err
		}
		if recs[0].Category != domain.CategoryArchive {
			return nil, apperrors.NewUnsupportedFormatError("document is not an archive", domain.ErrUnsupportedFormat)
		}

	case domain.JobTypeCleanup:
		if len(req.TargetRecordIDs) != 0 {
			return nil, apperrors.NewValidationError("cleanup takes no target documents")
		}
		days, err := in.Int(ParamDays, defaultCleanupDays)
		if err != nil || days < 1 {
			return nil, apperrors.NewValidationError("days must be a positive integer")
		}
		if cat := domain.Category(in.String(ParamCategory, "")); cat != "" && !cat.Valid() {
			return nil, apperrors.NewValidationError("unknown category", string(cat))
		}
		out[ParamDays] = days
	}
	return out, nil
}

// targets loads every target record for the owner, in request order.
func (c *PersistenceCoordinator) targets(ctx context.Context, req domain.JobRequest) ([]*domain.DocumentRecord, error) {
	recs := make([]*domain.DocumentRecord, 0, len(req.TargetRecordIDs))
	for _, id := range req.TargetRecordIDs {
		rec, err := c.Stat(ctx, id, req.OwnerID)
		if err != nil {
			if apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
				return nil, notFound("document " + id + " not found")
			}
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// IsConvertibleImage reports whether rec is a png or jpeg image.
func IsConvertibleImage(rec *domain.DocumentRecord) bool {
	switch rec.ContentType {
	case "image/png", "image/jpeg":
		return true
	}
	switch strings.ToLower(path.Ext(rec.OriginalFilename)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}
