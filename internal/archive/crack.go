package archive

import (
	"context"
	"fmt"
	"io"

	apperrors "github.com/Phucdanghoc/File-store-sub000/pkg/errors"

	yzip "github.com/yeka/zip"
)

// CrackResult is the outcome of a password search.
type CrackResult struct {
	Password  string `json:"password,omitempty"`
	Found     bool   `json:"found"`
	Attempts  int64  `json:"attempts"`
	Exhausted bool   `json:"exhausted"`
}

// ValidateCrack checks search bounds before a job is accepted and returns the
// effective charset: the default when empty input, duplicates dropped.
func (e *Engine) ValidateCrack(charset string, maxLength int) (string, error) {
	if charset == "" {
		charset = e.defaultCharset
	}
	if maxLength < 1 {
		return "", apperrors.NewValidationError("max_length must be at least 1")
	}
	if maxLength > e.ceiling {
		return "", apperrors.NewValidationError("max_length exceeds the allowed ceiling",
			fmt.Sprintf("max_length %d > %d", maxLength, e.ceiling))
	}
	normalized := dedupeRunes(charset)
	if normalized == "" {
		return "", apperrors.NewValidationError("charset must not be empty")
	}
	return normalized, nil
}

// SearchSpace is the number of candidates for the given bounds, saturating
// at the int64 maximum.
func SearchSpace(charsetSize, maxLength int) int64 {
	const maxInt64 = int64(^uint64(0) >> 1)
	var total, pow int64 = 0, 1
	for k := 1; k <= maxLength; k++ {
		if pow > maxInt64/int64(charsetSize) {
			return maxInt64
		}
		pow *= int64(charsetSize)
		if total > maxInt64-pow {
			return maxInt64
		}
		total += pow
	}
	return total
}

// CrackPassword tries every candidate over charset, shortest first and
// lexicographic in charset order within a length, and stops at the first
// password that opens the archive. ctx is checked before each attempt.
func (e *Engine) CrackPassword(ctx context.Context, data []byte, charset string, maxLength int) (*CrackResult, error) {
	charset, err := e.ValidateCrack(charset, maxLength)
	if err != nil {
		return nil, err
	}
	info, err := e.Inspect(data)
	if err != nil {
		return nil, err
	}
	if !info.Format.SupportsPassword() {
		return nil, apperrors.NewValidationError("archive is not encrypted", string(info.Format)+" archives carry no password")
	}
	if !info.Encrypted {
		return nil, apperrors.NewValidationError("archive is not encrypted")
	}
	zr, err := openZip(data)
	if err != nil {
		return nil, err
	}
	target := smallestEncrypted(zr)

	result := &CrackResult{}
	err = candidates([]rune(charset), maxLength, func(candidate string) bool {
		if ctx.Err() != nil {
			return false
		}
		result.Attempts++
		target.SetPassword(candidate)
		if tryEntry(target) {
			result.Password = candidate
			result.Found = true
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !result.Found {
		return result, ctxErr
	}
	result.Exhausted = !result.Found
	return result, nil
}

// tryEntry reports whether the entry decrypts and authenticates cleanly.
func tryEntry(zf *yzip.File) bool {
	rc, err := zf.Open()
	if err != nil {
		return false
	}
	defer rc.Close()
	_, err = io.Copy(io.Discard, rc)
	return err == nil
}

// candidates enumerates strings over alphabet in increasing length; within a
// length the order is lexicographic by alphabet position. visit returns false
// to stop.
func candidates(alphabet []rune, maxLength int, visit func(string) bool) error {
	if len(alphabet) == 0 {
		return apperrors.NewValidationError("charset must not be empty")
	}
	for length := 1; length <= maxLength; length++ {
		idx := make([]int, length)
		buf := make([]rune, length)
		for {
			for i, j := range idx {
				buf[i] = alphabet[j]
			}
			if !visit(string(buf)) {
				return nil
			}
			pos := length - 1
			for pos >= 0 {
				idx[pos]++
				if idx[pos] < len(alphabet) {
					break
				}
				idx[pos] = 0
				pos--
			}
			if pos < 0 {
				break
			}
		}
	}
	return nil
}

func dedupeRunes(s string) string {
	seen := make(map[rune]struct{}, len(s))
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return string(out)
}
