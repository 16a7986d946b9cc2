package service

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"io"
	"sync"

	"github.com/Phucdanghoc/File-store-sub000/internal/domain"
	apperrors "github.com/Phucdanghoc/File-store-sub000/pkg/errors"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var pdfcpuConfigOnce sync.Once

// PDFProcessor merges PDFs, turns images into PDFs and rasterizes pages,
// all in memory.
type PDFProcessor struct {
	logger domain.Logger
}

// NewPDFProcessor creates a new PDF processor
func NewPDFProcessor(logger domain.Logger) *PDFProcessor {
	pdfcpuConfigOnce.Do(api.DisableConfigDir)
	return &PDFProcessor{
		logger: logger,
	}
}

func (p *PDFProcessor) config() *model.Configuration {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}

// Merge concatenates the documents in order.
func (p *PDFProcessor) Merge(docs [][]byte) ([]byte, error) {
	if len(docs) < 2 {
		return nil, apperrors.NewValidationError("merge needs at least two documents")
	}
	readers := make([]io.ReadSeeker, 0, len(docs))
	for _, d := range docs {
		readers = append(readers, bytes.NewReader(d))
	}
	var out bytes.Buffer
	if err := api.MergeRaw(readers, &out, false, p.config()); err != nil {
		p.logger.Error("PDF merge failed", err, "documents", len(docs))
		return nil, apperrors.NewProcessingError("failed to merge pdf documents", err)
	}
	return out.Bytes(), nil
}

// ImagesToPDF renders each image onto its own page of a new document.
func (p *PDFProcessor) ImagesToPDF(images [][]byte) ([]byte, error) {
	if len(images) == 0 {
		return nil, apperrors.NewValidationError("no images to convert")
	}
	readers := make([]io.Reader, 0, len(images))
	for _, img := range images {
		readers = append(readers, bytes.NewReader(img))
	}
	var out bytes.Buffer
	if err := api.ImportImages(nil, &out, readers, pdfcpu.DefaultImportConfig(), p.config()); err != nil {
		p.logger.Error("Image to PDF conversion failed", err, "images", len(images))
		return nil, apperrors.NewProcessingError("failed to convert image to pdf", err)
	}
	return out.Bytes(), nil
}

// PageCount returns the number of pages in doc.
func (p *PDFProcessor) PageCount(doc []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(doc), p.config())
	if err != nil {
		return 0, fmt.Errorf("failed to count pages: %w", err)
	}
	return n, nil
}

// Page render bounds, in dots per inch.
const (
	DefaultRenderDPI = 150
	MinRenderDPI     = 72
	MaxRenderDPI     = 600
)

// RenderedPage is one page rasterized to PNG. Number is 1-based.
type RenderedPage struct {
	Number int
	Data   []byte
}

// RenderPages rasterizes the given 1-based pages of doc to PNG at dpi.
// Page numbers outside the document are ignored; an empty selection renders
// every page.
func (p *PDFProcessor) RenderPages(ctx context.Context, doc []byte, pages []int, dpi int) ([]RenderedPage, error) {
	if dpi < MinRenderDPI || dpi > MaxRenderDPI {
		return nil, apperrors.NewValidationError("dpi out of range", fmt.Sprintf("dpi must be between %d and %d", MinRenderDPI, MaxRenderDPI))
	}
	fdoc, err := fitz.NewFromMemory(doc)
	if err != nil {
		return nil, apperrors.NewValidationError("document is not a readable pdf", err.Error())
	}
	defer fdoc.Close()

	total := fdoc.NumPage()
	selected := make([]int, 0, total)
	if len(pages) == 0 {
		for n := 1; n <= total; n++ {
			selected = append(selected, n)
		}
	}
	for _, n := range pages {
		if n >= 1 && n <= total {
			selected = append(selected, n)
		}
	}
	if len(selected) == 0 {
		return nil, apperrors.NewValidationError("no requested page exists", fmt.Sprintf("document has %d pages", total))
	}

	out := make([]RenderedPage, 0, len(selected))
	for _, n := range selected {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := fdoc.ImageDPI(n-1, float64(dpi))
		if err != nil {
			p.logger.Warn("Failed to render PDF page", "page", n, "total", total, "error", err.Error())
			return nil, apperrors.NewProcessingError(fmt.Sprintf("failed to render page %d", n), err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, apperrors.NewProcessingError(fmt.Sprintf("failed to encode page %d", n), err)
		}
		p.logger.Debug("PDF page rendered", "page", n, "total", total, "bytes", buf.Len())
		out = append(out, RenderedPage{Number: n, Data: buf.Bytes()})
	}
	return out, nil
}
