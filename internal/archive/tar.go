package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"

	apperrors "github.com/Phucdanghoc/File-store-sub000/pkg/errors"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

func writeTar(files []File, format Format, level int) ([]byte, error) {
	var buf bytes.Buffer
	cw, err := newCompressor(&buf, format, level)
	if err != nil {
		return nil, err
	}

	tw := tar.NewWriter(cw)
	for _, f := range files {
		hdr := &tar.Header{
			Typeflag: tar.TypeReg,
			Name:     cleanName(f.Name),
			Mode:     0o644,
			Size:     int64(len(f.Data)),
			ModTime:  epoch,
			Format:   tar.FormatPAX,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, apperrors.NewProcessingError("failed to add tar entry", err)
		}
		if _, err := tw.Write(f.Data); err != nil {
			return nil, apperrors.NewProcessingError("failed to write tar entry", err)
		}
	}
	if err := tw.Close(); err != nil {
		return nil, apperrors.NewProcessingError("failed to finalize tar", err)
	}
	if err := cw.Close(); err != nil {
		return nil, apperrors.NewProcessingError("failed to finalize compression", err)
	}
	return buf.Bytes(), nil
}

func newCompressor(w io.Writer, format Format, level int) (io.WriteCloser, error) {
	switch format {
	case FormatTarGz:
		gw, err := gzip.NewWriterLevel(w, level)
		if err != nil {
			return nil, apperrors.NewValidationError("invalid gzip level", err.Error())
		}
		return gw, nil
	case FormatTarZst:
		zw, err := zstd.NewWriter(w,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
			zstd.WithEncoderConcurrency(1),
		)
		if err != nil {
			return nil, apperrors.NewProcessingError("failed to create zstd encoder", err)
		}
		return zw, nil
	default:
		return nil, fmt.Errorf("archive: %s is not a tar format", format)
	}
}

func newDecompressor(data []byte, format Format) (io.ReadCloser, error) {
	switch format {
	case FormatTarGz:
		gr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, apperrors.NewValidationError("archive is corrupt", err.Error())
		}
		return gr, nil
	case FormatTarZst:
		zr, err := zstd.NewReader(bytes.NewReader(data), zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, apperrors.NewValidationError("archive is corrupt", err.Error())
		}
		return zr.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("archive: %s is not a tar format", format)
	}
}

// walkTar calls fn for every regular file in the archive.
func walkTar(data []byte, format Format, fn func(hdr *tar.Header, r io.Reader) error) error {
	rc, err := newDecompressor(data, format)
	if err != nil {
		return err
	}
	defer rc.Close()

	tr := tar.NewReader(rc)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return apperrors.NewValidationError("archive is corrupt", err.Error())
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if err := fn(hdr, tr); err != nil {
			return err
		}
	}
}

func readTar(data []byte, format Format, selection []string, maxEntry int64) ([]File, error) {
	var files []File
	err := walkTar(data, format, func(hdr *tar.Header, r io.Reader) error {
		name := cleanName(hdr.Name)
		if !selected(name, selection) {
			return nil
		}
		if maxEntry > 0 && hdr.Size > maxEntry {
			return entryTooLarge(name, maxEntry)
		}
		content, err := readLimited(r, maxEntry)
		if errors.Is(err, errEntryTooLarge) {
			return entryTooLarge(name, maxEntry)
		}
		if err != nil {
			return apperrors.NewValidationError("archive entry is corrupt", fmt.Sprintf("%s: %v", name, err))
		}
		files = append(files, File{Name: name, Data: content})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func inspectTar(data []byte, format Format) (*Info, error) {
	info := &Info{Format: format}
	err := walkTar(data, format, func(hdr *tar.Header, _ io.Reader) error {
		info.Entries++
		info.Names = append(info.Names, cleanName(hdr.Name))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}
