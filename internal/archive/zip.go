package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/Phucdanghoc/File-store-sub000/internal/domain"
	apperrors "github.com/Phucdanghoc/File-store-sub000/pkg/errors"

	"github.com/klauspost/compress/flate"
	kzip "github.com/klauspost/compress/zip"
	yzip "github.com/yeka/zip"
)

func flateCompressor(level int) func(io.Writer) (io.WriteCloser, error) {
	return func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, level)
	}
}

func zipMethod(level int) uint16 {
	if level == 0 {
		return kzip.Store
	}
	return kzip.Deflate
}

func writeZip(files []File, level int) ([]byte, error) {
	var buf bytes.Buffer
	zw := kzip.NewWriter(&buf)
	zw.RegisterCompressor(kzip.Deflate, flateCompressor(level))

	for _, f := range files {
		hdr := &kzip.FileHeader{
			Name:     cleanName(f.Name),
			Method:   zipMethod(level),
			Modified: epoch,
		}
		hdr.SetMode(0o644)
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return nil, apperrors.NewProcessingError("failed to add zip entry", err)
		}
		if _, err := w.Write(f.Data); err != nil {
			return nil, apperrors.NewProcessingError("failed to write zip entry", err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, apperrors.NewProcessingError("failed to finalize zip", err)
	}
	return buf.Bytes(), nil
}

// writeEncryptedZip always deflates at the package default level.
func writeEncryptedZip(files []File, password string) ([]byte, error) {
	var buf bytes.Buffer
	zw := yzip.NewWriter(&buf)

	for _, f := range files {
		w, err := zw.Encrypt(cleanName(f.Name), password, yzip.AES256Encryption)
		if err != nil {
			return nil, apperrors.NewProcessingError("failed to add encrypted zip entry", err)
		}
		if _, err := w.Write(f.Data); err != nil {
			return nil, apperrors.NewProcessingError("failed to write encrypted zip entry", err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, apperrors.NewProcessingError("failed to finalize zip", err)
	}
	return buf.Bytes(), nil
}

func openZip(data []byte) (*yzip.Reader, error) {
	zr, err := yzip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, apperrors.NewValidationError("archive is corrupt", err.Error())
	}
	return zr, nil
}

func readZip(data []byte, password string, selection []string, maxEntry int64) ([]File, error) {
	zr, err := openZip(data)
	if err != nil {
		return nil, err
	}

	var files []File
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		name := cleanName(zf.Name)
		if !selected(name, selection) {
			continue
		}
		if zf.IsEncrypted() {
			if password == "" {
				return nil, apperrors.NewPasswordProtectedError("archive is encrypted", domain.ErrPasswordProtected)
			}
			zf.SetPassword(password)
		}
		content, err := readZipEntry(zf, maxEntry)
		if err != nil {
			if errors.Is(err, errEntryTooLarge) {
				return nil, entryTooLarge(name, maxEntry)
			}
			if zf.IsEncrypted() {
				return nil, apperrors.NewWrongPasswordError("password does not open the archive", domain.ErrWrongPassword)
			}
			return nil, apperrors.NewValidationError("archive entry is corrupt", fmt.Sprintf("%s: %v", name, err))
		}
		files = append(files, File{Name: name, Data: content})
	}
	return files, nil
}

// readZipEntry reads to EOF so the AES authentication code is verified.
func readZipEntry(zf *yzip.File, maxEntry int64) ([]byte, error) {
	rc, err := zf.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return readLimited(rc, maxEntry)
}

func inspectZip(data []byte) (*Info, error) {
	zr, err := openZip(data)
	if err != nil {
		return nil, err
	}
	info := &Info{Format: FormatZip}
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		info.Entries++
		info.Names = append(info.Names, cleanName(zf.Name))
		if zf.IsEncrypted() {
			info.Encrypted = true
		}
	}
	return info, nil
}

// smallestEncrypted returns the cheapest entry to test candidate passwords against.
func smallestEncrypted(zr *yzip.Reader) *yzip.File {
	var best *yzip.File
	for _, zf := range zr.File {
		if !zf.IsEncrypted() || zf.FileInfo().IsDir() {
			continue
		}
		if best == nil || zf.CompressedSize64 < best.CompressedSize64 {
			best = zf
		}
	}
	return best
}
