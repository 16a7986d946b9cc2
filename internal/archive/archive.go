// Package archive compresses, extracts and password-searches archives.
//
// Supported formats are zip (optionally AES-256 encrypted), tar.gz and
// tar.zst. Unencrypted output is byte-for-byte reproducible for the same
// input files, format and level.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/Phucdanghoc/File-store-sub000/internal/domain"
	apperrors "github.com/Phucdanghoc/File-store-sub000/pkg/errors"
)

// Format identifies an archive container.
type Format string

const (
	FormatZip    Format = "zip"
	FormatTarGz  Format = "tar.gz"
	FormatTarZst Format = "tar.zst"
)

// SupportsPassword reports whether the format can carry encryption.
func (f Format) SupportsPassword() bool {
	return f == FormatZip
}

// Extension is the filename suffix for the format, dot included.
func (f Format) Extension() string {
	return "." + string(f)
}

// ContentType is the MIME type stored alongside archives of this format.
func (f Format) ContentType() string {
	switch f {
	case FormatZip:
		return "application/zip"
	case FormatTarGz:
		return "application/gzip"
	case FormatTarZst:
		return "application/zstd"
	default:
		return "application/octet-stream"
	}
}

// ParseFormat accepts the canonical names plus a few aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "zip":
		return FormatZip, nil
	case "tar.gz", "tgz", "gz", "gzip":
		return FormatTarGz, nil
	case "tar.zst", "zst", "zstd":
		return FormatTarZst, nil
	default:
		return "", apperrors.NewUnsupportedFormatError(
			fmt.Sprintf("archive format %q is not supported", s), domain.ErrUnsupportedFormat)
	}
}

var (
	magicZip      = []byte("PK\x03\x04")
	magicZipEmpty = []byte("PK\x05\x06")
	magicGzip     = []byte{0x1f, 0x8b}
	magicZstd     = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// DetectFormat sniffs the container from its leading bytes.
func DetectFormat(data []byte) (Format, error) {
	switch {
	case bytes.HasPrefix(data, magicZip), bytes.HasPrefix(data, magicZipEmpty):
		return FormatZip, nil
	case bytes.HasPrefix(data, magicGzip):
		return FormatTarGz, nil
	case bytes.HasPrefix(data, magicZstd):
		return FormatTarZst, nil
	default:
		return "", apperrors.NewUnsupportedFormatError("unrecognized archive format", domain.ErrUnsupportedFormat)
	}
}

// File is one archive member.
type File struct {
	Name string
	Data []byte
}

// Info summarizes an archive without extracting it.
type Info struct {
	Format    Format   `json:"format"`
	Entries   int      `json:"entries"`
	Encrypted bool     `json:"encrypted"`
	Names     []string `json:"names"`
}

// epoch is stamped on every entry so repeated runs produce identical bytes.
var epoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

const (
	DefaultLevel      = 6
	DefaultCharset    = "abcdefghijklmnopqrstuvwxyz0123456789"
	DefaultMaxCeiling = 6
	MinCompressLevel  = 0
	MaxCompressLevel  = 9
)

// Engine runs archive operations. It holds no per-call state and is safe for
// concurrent use.
type Engine struct {
	ceiling        int
	defaultCharset string
	maxEntry       int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithCrackCeiling caps the maxLength accepted by ValidateCrack.
func WithCrackCeiling(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.ceiling = n
		}
	}
}

// WithDefaultCharset sets the charset used when a request omits one.
func WithDefaultCharset(charset string) Option {
	return func(e *Engine) {
		if charset != "" {
			e.defaultCharset = charset
		}
	}
}

// WithMaxEntrySize bounds the decompressed size of a single extracted entry.
// Zero or less leaves entries unbounded.
func WithMaxEntrySize(n int64) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxEntry = n
		}
	}
}

// NewEngine creates an Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		ceiling:        DefaultMaxCeiling,
		defaultCharset: DefaultCharset,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CrackCeiling returns the largest maxLength the engine accepts.
func (e *Engine) CrackCeiling() int {
	return e.ceiling
}

// DefaultCharset returns the charset substituted for an omitted one.
func (e *Engine) DefaultCharset() string {
	return e.defaultCharset
}

// Compress packs files into a new archive. A password is only accepted for
// formats that support encryption. Encrypted zip entries are always deflated
// at the default level; level is validated but otherwise ignored for them.
func (e *Engine) Compress(files []File, format Format, password string, level int) ([]byte, error) {
	if len(files) == 0 {
		return nil, apperrors.NewValidationError("at least one file is required")
	}
	if level < MinCompressLevel || level > MaxCompressLevel {
		return nil, apperrors.NewValidationError("compression level out of range",
			fmt.Sprintf("level must be between %d and %d", MinCompressLevel, MaxCompressLevel))
	}
	if password != "" && !format.SupportsPassword() {
		return nil, apperrors.NewUnsupportedFormatError(
			fmt.Sprintf("%s archives cannot be password protected", format), domain.ErrUnsupportedFormat)
	}
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		name := cleanName(f.Name)
		if name == "" {
			return nil, apperrors.NewValidationError("archive entry name is empty")
		}
		if _, dup := seen[name]; dup {
			return nil, apperrors.NewValidationError("duplicate archive entry", name)
		}
		seen[name] = struct{}{}
	}

	switch format {
	case FormatZip:
		if password != "" {
			return writeEncryptedZip(files, password)
		}
		return writeZip(files, level)
	case FormatTarGz, FormatTarZst:
		return writeTar(files, format, level)
	default:
		return nil, apperrors.NewUnsupportedFormatError(
			fmt.Sprintf("archive format %q is not supported", format), domain.ErrUnsupportedFormat)
	}
}

// Extract unpacks data. selection limits the result to the named entries;
// a name missing from the archive is a validation error, and so is an entry
// that decompresses past the engine's entry size limit.
func (e *Engine) Extract(data []byte, password string, selection []string) ([]File, error) {
	format, err := DetectFormat(data)
	if err != nil {
		return nil, err
	}

	var files []File
	switch format {
	case FormatZip:
		files, err = readZip(data, password, selection, e.maxEntry)
	default:
		files, err = readTar(data, format, selection, e.maxEntry)
	}
	if err != nil {
		return nil, err
	}
	if err := checkSelection(files, selection); err != nil {
		return nil, err
	}
	return files, nil
}

// Inspect reports format, entry names and whether any entry is encrypted.
func (e *Engine) Inspect(data []byte) (*Info, error) {
	format, err := DetectFormat(data)
	if err != nil {
		return nil, err
	}
	if format == FormatZip {
		return inspectZip(data)
	}
	return inspectTar(data, format)
}

var errEntryTooLarge = errors.New("archive entry exceeds size limit")

// readLimited reads r to EOF, failing with errEntryTooLarge once more than
// max bytes come out. max <= 0 reads without a bound.
func readLimited(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, errEntryTooLarge
	}
	return data, nil
}

func entryTooLarge(name string, max int64) error {
	return apperrors.NewValidationError("archive entry is too large",
		fmt.Sprintf("%s decompresses past %d bytes", name, max))
}

func checkSelection(files []File, selection []string) error {
	if len(selection) == 0 {
		return nil
	}
	found := make(map[string]struct{}, len(files))
	for _, f := range files {
		found[f.Name] = struct{}{}
	}
	var missing []string
	for _, name := range selection {
		if _, ok := found[cleanName(name)]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return apperrors.NewValidationError("files not found in archive", strings.Join(missing, ", "))
	}
	return nil
}

func selected(name string, selection []string) bool {
	if len(selection) == 0 {
		return true
	}
	for _, s := range selection {
		if cleanName(s) == name {
			return true
		}
	}
	return false
}

// cleanName normalizes an entry name to a relative slash path.
func cleanName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Clean("/" + name)
	return strings.TrimPrefix(name, "/")
}
