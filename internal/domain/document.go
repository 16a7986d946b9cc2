package domain

import (
	"path"
	"strings"
	"time"
)

// Category groups stored files; each category maps to its own bucket.
type Category string

const (
	CategoryPDF     Category = "pdf"
	CategoryWord    Category = "word"
	CategoryExcel   Category = "excel"
	CategoryFile    Category = "file"
	CategoryArchive Category = "archive"
)

// Categories lists every known category in a stable order.
var Categories = []Category{CategoryPDF, CategoryWord, CategoryExcel, CategoryFile, CategoryArchive}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

var categoryByExtension = map[string]Category{
	".pdf":     CategoryPDF,
	".doc":     CategoryWord,
	".docx":    CategoryWord,
	".odt":     CategoryWord,
	".rtf":     CategoryWord,
	".xls":     CategoryExcel,
	".xlsx":    CategoryExcel,
	".csv":     CategoryExcel,
	".ods":     CategoryExcel,
	".zip":     CategoryArchive,
	".tgz":     CategoryArchive,
	".gz":      CategoryArchive,
	".zst":     CategoryArchive,
	".7z":      CategoryArchive,
	".rar":     CategoryArchive,
	".tar":     CategoryArchive,
	".tar.gz":  CategoryArchive,
	".tar.zst": CategoryArchive,
}

// DetectCategory picks a category from the filename extension.
func DetectCategory(filename string) Category {
	name := strings.ToLower(path.Base(filename))
	for _, compound := range []string{".tar.gz", ".tar.zst"} {
		if strings.HasSuffix(name, compound) {
			return CategoryArchive
		}
	}
	if c, ok := categoryByExtension[path.Ext(name)]; ok {
		return c
	}
	return CategoryFile
}

// DocumentRecord is the catalog row describing one stored blob.
// A record exists if and only if its blob exists at StorageKey.
type DocumentRecord struct {
	ID               string                 `json:"id"`
	StorageKey       string                 `json:"storage_key"`
	Category         Category               `json:"category"`
	OwnerID          string                 `json:"owner_id"`
	Title            string                 `json:"title"`
	Description      string                 `json:"description,omitempty"`
	OriginalFilename string                 `json:"original_filename"`
	SizeBytes        int64                  `json:"size_bytes"`
	ContentType      string                 `json:"content_type"`
	Checksum         string                 `json:"checksum"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	Version          int                    `json:"version"`
	SourceJobID      string                 `json:"source_job_id,omitempty"`
	TrashedAt        *time.Time             `json:"trashed_at,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// Trashed reports whether r sits in its owner's trash.
func (r *DocumentRecord) Trashed() bool {
	return r.TrashedAt != nil
}

// Clone returns a copy that shares no mutable state with r.
func (r *DocumentRecord) Clone() *DocumentRecord {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Metadata != nil {
		cp.Metadata = make(map[string]interface{}, len(r.Metadata))
		for k, v := range r.Metadata {
			cp.Metadata[k] = v
		}
	}
	if r.TrashedAt != nil {
		t := *r.TrashedAt
		cp.TrashedAt = &t
	}
	return &cp
}

// MetadataPatch carries the non-content fields a caller may change.
// Nil fields are left untouched.
type MetadataPatch struct {
	Title       *string                `json:"title,omitempty"`
	Description *string                `json:"description,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p MetadataPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Metadata == nil
}

// Apply writes the patch onto r, bumping Version and UpdatedAt.
func (p MetadataPatch) Apply(r *DocumentRecord, now time.Time) {
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.Metadata != nil {
		r.Metadata = p.Metadata
	}
	r.Version++
	r.UpdatedAt = now
}

// Sort keys accepted by ListFilter.
const (
	SortByCreatedAt = "created_at"
	SortByTitle     = "title"
	SortBySize      = "size_bytes"
)

const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

// ListFilter narrows a catalog listing. OwnerID is always applied.
// Trashed selects the trash instead of the live records; the two never mix.
type ListFilter struct {
	Trashed       bool
	Category      Category
	Search        string
	SourceJobID   string
	CreatedBefore time.Time
	SortBy        string
	Desc          bool
	Offset        int
	Limit         int
}

// Normalize fills defaults and clamps paging values.
func (f ListFilter) Normalize() ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	switch f.SortBy {
	case SortByCreatedAt, SortByTitle, SortBySize:
	case "":
		f.SortBy = SortByCreatedAt
		f.Desc = true
	default:
		f.SortBy = SortByCreatedAt
	}
	return f
}

// Matches reports whether r satisfies the filter's predicates (paging excluded).
func (f ListFilter) Matches(r *DocumentRecord) bool {
	if r.Trashed() != f.Trashed {
		return false
	}
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	if f.SourceJobID != "" && r.SourceJobID != f.SourceJobID {
		return false
	}
	if !f.CreatedBefore.IsZero() && !r.CreatedAt.Before(f.CreatedBefore) {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(r.Title), q) &&
			!strings.Contains(strings.ToLower(r.Description), q) &&
			!strings.Contains(strings.ToLower(r.OriginalFilename), q) {
			return false
		}
	}
	return true
}

// ListResult is one page of records plus the total matching count.
type ListResult struct {
	Items []*DocumentRecord `json:"items"`
	Total int               `json:"total"`
}
