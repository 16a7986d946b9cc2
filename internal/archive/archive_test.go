package archive

import (
	"errors"
	"testing"

	"github.com/Phucdanghoc/File-store-sub000/internal/domain"
	apperrors "github.com/Phucdanghoc/File-store-sub000/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFiles() []File {
	return []File{
		{Name: "a.txt", Data: []byte("alpha alpha alpha")},
		{Name: "docs/b.pdf", Data: []byte("%PDF-1.4 fake body")},
	}
}

func TestCompressExtract_RoundTrip(t *testing.T) {
	engine := NewEngine()

	for _, format := range []Format{FormatZip, FormatTarGz, FormatTarZst} {
		t.Run(string(format), func(t *testing.T) {
			data, err := engine.Compress(sampleFiles(), format, "", DefaultLevel)
			require.NoError(t, err)

			detected, err := DetectFormat(data)
			require.NoError(t, err)
			assert.Equal(t, format, detected)

			files, err := engine.Extract(data, "", nil)
			require.NoError(t, err)
			assert.Equal(t, sampleFiles(), files)
		})
	}
}

func TestCompress_Deterministic(t *testing.T) {
	engine := NewEngine()

	for _, format := range []Format{FormatZip, FormatTarGz, FormatTarZst} {
		t.Run(string(format), func(t *testing.T) {
			first, err := engine.Compress(sampleFiles(), format, "", 9)
			require.NoError(t, err)
			second, err := engine.Compress(sampleFiles(), format, "", 9)
			require.NoError(t, err)
			assert.Equal(t, first, second)
		})
	}
}

func TestCompress_StoreLevel(t *testing.T) {
	engine := NewEngine()
	data, err := engine.Compress(sampleFiles(), FormatZip, "", 0)
	require.NoError(t, err)

	files, err := engine.Extract(data, "", nil)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestCompress_Validation(t *testing.T) {
	engine := NewEngine()

	tests := []struct {
		name     string
		files    []File
		format   Format
		password string
		level    int
		wantType apperrors.ErrorType
	}{
		{"no files", nil, FormatZip, "", 6, apperrors.ErrorTypeValidation},
		{"level too high", sampleFiles(), FormatZip, "", 10, apperrors.ErrorTypeValidation},
		{"level negative", sampleFiles(), FormatZip, "", -1, apperrors.ErrorTypeValidation},
		{"password on tar.gz", sampleFiles(), FormatTarGz, "secret", 6, apperrors.ErrorTypeUnsupportedFormat},
		{"password on tar.zst", sampleFiles(), FormatTarZst, "secret", 6, apperrors.ErrorTypeUnsupportedFormat},
		{"unknown format", sampleFiles(), Format("rar"), "", 6, apperrors.ErrorTypeUnsupportedFormat},
		{"duplicate names", []File{{Name: "x"}, {Name: "./x"}}, FormatZip, "", 6, apperrors.ErrorTypeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Compress(tt.files, tt.format, tt.password, tt.level)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, tt.wantType), "got %v", err)
			assert.True(t, apperrors.IsValidation(err))
		})
	}
}

func TestExtract_Encrypted(t *testing.T) {
	engine := NewEngine()
	data, err := engine.Compress(sampleFiles(), FormatZip, "s3cret", DefaultLevel)
	require.NoError(t, err)

	_, err = engine.Extract(data, "", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypePasswordProtected))
	assert.True(t, errors.Is(err, domain.ErrPasswordProtected))

	_, err = engine.Extract(data, "nope", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeWrongPassword))
	assert.True(t, errors.Is(err, domain.ErrWrongPassword))

	files, err := engine.Extract(data, "s3cret", nil)
	require.NoError(t, err)
	assert.Equal(t, sampleFiles(), files)
}

func TestCompress_EncryptedAtAnyLevel(t *testing.T) {
	engine := NewEngine()

	for _, level := range []int{1, 9} {
		data, err := engine.Compress(sampleFiles(), FormatZip, "s3cret", level)
		require.NoError(t, err, "level %d", level)

		info, err := engine.Inspect(data)
		require.NoError(t, err)
		assert.True(t, info.Encrypted)

		files, err := engine.Extract(data, "s3cret", nil)
		require.NoError(t, err, "level %d", level)
		assert.Equal(t, sampleFiles(), files)
	}
}

func TestExtract_EntrySizeLimit(t *testing.T) {
	bomb := []File{{Name: "zeros.bin", Data: make([]byte, 1<<20)}}
	limited := NewEngine(WithMaxEntrySize(64 << 10))

	for _, format := range []Format{FormatZip, FormatTarGz, FormatTarZst} {
		t.Run(string(format), func(t *testing.T) {
			data, err := NewEngine().Compress(bomb, format, "", MaxCompressLevel)
			require.NoError(t, err)
			require.Less(t, len(data), 64<<10)

			_, err = limited.Extract(data, "", nil)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

			files, err := NewEngine(WithMaxEntrySize(2 << 20)).Extract(data, "", nil)
			require.NoError(t, err)
			require.Len(t, files, 1)
			assert.Len(t, files[0].Data, 1<<20)
		})
	}

	t.Run("encrypted zip", func(t *testing.T) {
		data, err := NewEngine().Compress(bomb, FormatZip, "pw", DefaultLevel)
		require.NoError(t, err)

		_, err = limited.Extract(data, "pw", nil)
		require.Error(t, err)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	})
}

func TestExtract_Selection(t *testing.T) {
	engine := NewEngine()
	data, err := engine.Compress(sampleFiles(), FormatTarGz, "", DefaultLevel)
	require.NoError(t, err)

	files, err := engine.Extract(data, "", []string{"docs/b.pdf"})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "docs/b.pdf", files[0].Name)

	_, err = engine.Extract(data, "", []string{"missing.txt"})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func TestExtract_NotAnArchive(t *testing.T) {
	_, err := NewEngine().Extract([]byte("plain text"), "", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeUnsupportedFormat))
}

func TestInspect(t *testing.T) {
	engine := NewEngine()

	plain, err := engine.Compress(sampleFiles(), FormatTarZst, "", DefaultLevel)
	require.NoError(t, err)
	info, err := engine.Inspect(plain)
	require.NoError(t, err)
	assert.Equal(t, FormatTarZst, info.Format)
	assert.Equal(t, 2, info.Entries)
	assert.False(t, info.Encrypted)

	locked, err := engine.Compress(sampleFiles(), FormatZip, "pw", DefaultLevel)
	require.NoError(t, err)
	info, err = engine.Inspect(locked)
	require.NoError(t, err)
	assert.True(t, info.Encrypted)
	assert.Equal(t, []string{"a.txt", "docs/b.pdf"}, info.Names)
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{
		"zip":     FormatZip,
		".ZIP":    FormatZip,
		"tgz":     FormatTarGz,
		"tar.gz":  FormatTarGz,
		"zstd":    FormatTarZst,
		"tar.zst": FormatTarZst,
	}
	for in, want := range tests {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFormat("7z")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeUnsupportedFormat))
}
