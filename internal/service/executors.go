package service

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/Phucdanghoc/File-store-sub000/internal/archive"
	"github.com/Phucdanghoc/File-store-sub000/internal/domain"
	apperrors "github.com/Phucdanghoc/File-store-sub000/pkg/errors"

	"golang.org/x/sync/errgroup"
)

const compressReadWorkers = 4

// Outcome is what a successful executor hands back to the worker.
type Outcome struct {
	RecordIDs []string
	Result    map[string]interface{}
}

// Executor runs one job type. Records it creates must be saved with the
// job's id as SourceJobID so an interrupted run can be discarded.
type Executor func(ctx context.Context, job *domain.Job) (*Outcome, error)

// executorSet holds the collaborators shared by every executor.
type executorSet struct {
	coord   *PersistenceCoordinator
	engine  *archive.Engine
	pdf     *PDFProcessor
	metrics *Metrics
	logger  domain.Logger
	now     func() time.Time
}

// NewExecutors returns the executor for every job type.
func NewExecutors(coord *PersistenceCoordinator, engine *archive.Engine, pdf *PDFProcessor, logger domain.Logger) map[domain.JobType]Executor {
	s := &executorSet{
		coord:   coord,
		engine:  engine,
		pdf:     pdf,
		metrics: coord.metrics,
		logger:  logger,
		now:     coord.now,
	}
	return map[domain.JobType]Executor{
		domain.JobTypeMerge:         s.merge,
		domain.JobTypeConvert:       s.convert,
		domain.JobTypeCompress:      s.compress,
		domain.JobTypeExtract:       s.extract,
		domain.JobTypeCrackPassword: s.crack,
		domain.JobTypeCleanup:       s.cleanup,
	}
}

func (s *executorSet) load(ctx context.Context, job *domain.Job, id string) (*domain.DocumentRecord, []byte, error) {
	return s.coord.Get(ctx, id, job.OwnerID)
}

func (s *executorSet) save(ctx context.Context, job *domain.Job, filename, contentType string, data []byte, meta map[string]interface{}) (*domain.DocumentRecord, error) {
	return s.coord.Save(ctx, SaveInput{
		OwnerID:     job.OwnerID,
		Filename:    filename,
		ContentType: contentType,
		Data:        data,
		Metadata:    meta,
		SourceJobID: job.ID,
	})
}

func (s *executorSet) merge(ctx context.Context, job *domain.Job) (*Outcome, error) {
	docs := make([][]byte, 0, len(job.TargetRecordIDs))
	for _, id := range job.TargetRecordIDs {
		_, data, err := s.load(ctx, job, id)
		if err != nil {
			return nil, err
		}
		docs = append(docs, data)
	}
	merged, err := s.pdf.Merge(docs)
	if err != nil {
		return nil, err
	}

	meta := map[string]interface{}{"source_record_ids": job.TargetRecordIDs}
	if pages, err := s.pdf.PageCount(merged); err == nil {
		meta["pages"] = pages
	}
	name := withExtension(domain.Params(job.Parameters).String(ParamOutputFilename, "merged.pdf"), ".pdf")
	rec, err := s.save(ctx, job, name, "application/pdf", merged, meta)
	if err != nil {
		return nil, err
	}
	return &Outcome{RecordIDs: []string{rec.ID}}, nil
}

func (s *executorSet) convert(ctx context.Context, job *domain.Job) (*Outcome, error) {
	params := domain.Params(job.Parameters)
	src, data, err := s.load(ctx, job, job.TargetRecordIDs[0])
	if err != nil {
		return nil, err
	}
	meta := map[string]interface{}{"source_record_id": src.ID}
	base := stripArchiveExt(src.OriginalFilename)

	target := params.String(ParamTargetFormat, "")
	if target == targetFormatPDF {
		if !IsConvertibleImage(src) {
			return nil, apperrors.NewUnsupportedFormatError("only png and jpeg images convert to pdf", domain.ErrUnsupportedFormat)
		}
		out, err := s.pdf.ImagesToPDF([][]byte{data})
		if err != nil {
			return nil, err
		}
		rec, err := s.save(ctx, job, base+".pdf", "application/pdf", out, meta)
		if err != nil {
			return nil, err
		}
		return &Outcome{RecordIDs: []string{rec.ID}}, nil
	}

	if target == targetFormatPNG {
		return s.renderPages(ctx, job, src, data)
	}

	format, err := archive.ParseFormat(target)
	if err != nil {
		return nil, err
	}
	files, err := s.engine.Extract(data, params.String(ParamPassword, ""), nil)
	if err != nil {
		return nil, err
	}
	out, err := s.engine.Compress(files, format, "", archive.DefaultLevel)
	if err != nil {
		return nil, err
	}
	meta["entries"] = len(files)
	rec, err := s.save(ctx, job, base+format.Extension(), format.ContentType(), out, meta)
	if err != nil {
		return nil, err
	}
	return &Outcome{RecordIDs: []string{rec.ID}}, nil
}

// renderPages stores one png record per rendered page of a pdf.
func (s *executorSet) renderPages(ctx context.Context, job *domain.Job, src *domain.DocumentRecord, data []byte) (*Outcome, error) {
	params := domain.Params(job.Parameters)
	dpi, err := params.Int(ParamDPI, DefaultRenderDPI)
	if err != nil {
		return nil, apperrors.NewValidationError("dpi must be an integer")
	}
	pages, err := params.Ints(ParamPages)
	if err != nil {
		return nil, apperrors.NewValidationError("pages must be a list of page numbers")
	}
	rendered, err := s.pdf.RenderPages(ctx, data, pages, dpi)
	if err != nil {
		return nil, err
	}

	base := stripArchiveExt(src.OriginalFilename)
	ids := make([]string, 0, len(rendered))
	for _, page := range rendered {
		meta := map[string]interface{}{"source_record_id": src.ID, "page_number": page.Number, "dpi": dpi}
		name := fmt.Sprintf("%s_page_%d.png", base, page.Number)
		rec, err := s.save(ctx, job, name, "image/png", page.Data, meta)
		if err != nil {
			return nil, err
		}
		ids = append(ids, rec.ID)
	}
	return &Outcome{RecordIDs: ids, Result: map[string]interface{}{"pages": len(ids)}}, nil
}

func (s *executorSet) compress(ctx context.Context, job *domain.Job) (*Outcome, error) {
	params := domain.Params(job.Parameters)
	format, err := archive.ParseFormat(params.String(ParamFormat, string(archive.FormatZip)))
	if err != nil {
		return nil, err
	}
	level, err := params.Int(ParamLevel, archive.DefaultLevel)
	if err != nil {
		return nil, apperrors.NewValidationError("level must be an integer")
	}

	files := make([]archive.File, len(job.TargetRecordIDs))
	names := make([]string, len(job.TargetRecordIDs))
	sem := make(chan struct{}, compressReadWorkers)
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range job.TargetRecordIDs {
		i, id := i, id
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				return gctx.Err()
			}
			rec, data, err := s.load(gctx, job, id)
			if err != nil {
				return err
			}
			names[i] = SanitizeFilename(rec.OriginalFilename)
			files[i] = archive.File{Data: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, name := range uniqueNames(names) {
		files[i].Name = name
	}

	out, err := s.engine.Compress(files, format, params.String(ParamPassword, ""), level)
	if err != nil {
		return nil, err
	}
	name := withExtension(params.String(ParamOutputFilename, "archive"), format.Extension())
	meta := map[string]interface{}{
		"source_record_ids": job.TargetRecordIDs,
		"entries":           len(files),
		"encrypted":         params.String(ParamPassword, "") != "",
	}
	rec, err := s.save(ctx, job, name, format.ContentType(), out, meta)
	if err != nil {
		return nil, err
	}
	return &Outcome{RecordIDs: []string{rec.ID}}, nil
}

func (s *executorSet) extract(ctx context.Context, job *domain.Job) (*Outcome, error) {
	params := domain.Params(job.Parameters)
	src, data, err := s.load(ctx, job, job.TargetRecordIDs[0])
	if err != nil {
		return nil, err
	}
	files, err := s.engine.Extract(data, params.String(ParamPassword, ""), params.Strings(ParamFiles))
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(files))
	skipped := 0
	for _, f := range files {
		if len(f.Data) == 0 {
			s.logger.Debug("Skipping empty archive entry", "job_id", job.ID, "entry", f.Name)
			skipped++
			continue
		}
		meta := map[string]interface{}{"source_record_id": src.ID, "archive_path": f.Name}
		rec, err := s.save(ctx, job, path.Base(f.Name), "", f.Data, meta)
		if err != nil {
			return nil, err
		}
		ids = append(ids, rec.ID)
	}
	return &Outcome{RecordIDs: ids, Result: map[string]interface{}{
		"extracted": len(ids),
		"skipped":   skipped,
	}}, nil
}

func (s *executorSet) crack(ctx context.Context, job *domain.Job) (*Outcome, error) {
	params := domain.Params(job.Parameters)
	maxLength, err := params.Int(ParamMaxLength, 0)
	if err != nil {
		return nil, apperrors.NewValidationError("max_length must be an integer")
	}
	_, data, err := s.load(ctx, job, job.TargetRecordIDs[0])
	if err != nil {
		return nil, err
	}

	res, err := s.engine.CrackPassword(ctx, data, params.String(ParamCharset, ""), maxLength)
	if res != nil {
		s.metrics.CrackAttempts.Add(float64(res.Attempts))
	}
	if err != nil {
		return nil, err
	}
	if !res.Found {
		return nil, apperrors.NewProcessingError("password not found",
			fmt.Errorf("%d candidates up to length %d exhausted", res.Attempts, maxLength))
	}
	s.logger.Info("Archive password recovered", "job_id", job.ID, "attempts", res.Attempts)
	return &Outcome{Result: map[string]interface{}{
		"password": res.Password,
		"attempts": res.Attempts,
	}}, nil
}

func (s *executorSet) cleanup(ctx context.Context, job *domain.Job) (*Outcome, error) {
	params := domain.Params(job.Parameters)
	days, err := params.Int(ParamDays, defaultCleanupDays)
	if err != nil || days < 1 {
		return nil, apperrors.NewValidationError("days must be a positive integer")
	}
	cutoff := s.now().AddDate(0, 0, -days)
	filter := domain.ListFilter{
		Category:      domain.Category(params.String(ParamCategory, "")),
		CreatedBefore: cutoff,
		SortBy:        domain.SortByCreatedAt,
		Limit:         domain.MaxListLimit,
	}

	trashed := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := s.coord.List(ctx, job.OwnerID, filter)
		if err != nil {
			return nil, err
		}
		if len(page.Items) == 0 {
			break
		}
		for _, rec := range page.Items {
			if _, err := s.coord.Trash(ctx, rec.ID, job.OwnerID); err != nil {
				if apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
					continue
				}
				return nil, err
			}
			trashed++
		}
	}
	s.logger.Info("Cleanup finished", "job_id", job.ID, "owner_id", job.OwnerID, "trashed", trashed)
	return &Outcome{Result: map[string]interface{}{
		"trashed": trashed,
		"cutoff":  cutoff.Format(time.RFC3339),
	}}, nil
}

// uniqueNames suffixes repeated names so every archive entry is distinct.
func uniqueNames(names []string) []string {
	out := make([]string, len(names))
	used := make(map[string]bool, len(names))
	for i, name := range names {
		candidate := name
		ext := path.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		for n := 1; used[candidate]; n++ {
			candidate = fmt.Sprintf("%s_%d%s", stem, n, ext)
		}
		used[candidate] = true
		out[i] = candidate
	}
	return out
}

func withExtension(name, ext string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "output"
	}
	if strings.HasSuffix(strings.ToLower(name), ext) {
		return name
	}
	return name + ext
}

func stripArchiveExt(name string) string {
	lower := strings.ToLower(name)
	for _, ext := range []string{".tar.gz", ".tar.zst", ".tgz", ".zip", ".png", ".jpeg", ".jpg"} {
		if strings.HasSuffix(lower, ext) {
			return name[:len(name)-len(ext)]
		}
	}
	return strings.TrimSuffix(name, path.Ext(name))
}
