package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Phucdanghoc/File-store-sub000/internal/domain"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GCSObjectStore stores blobs in Google Cloud Storage.
type GCSObjectStore struct {
	client *storage.Client
	logger domain.Logger
}

// NewGCSClient creates a storage client using application default credentials.
func NewGCSClient(ctx context.Context) (*storage.Client, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return client, nil
}

// NewGCSObjectStore wraps an existing storage client.
func NewGCSObjectStore(client *storage.Client, logger domain.Logger) *GCSObjectStore {
	return &GCSObjectStore{client: client, logger: logger}
}

// Put writes the object only if the key is unused.
func (s *GCSObjectStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	w := s.client.Bucket(bucket).Object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write GCS object: %w", err)
	}
	if err := w.Close(); err != nil {
		if isPreconditionFailed(err) {
			return domain.ErrDuplicateKey
		}
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

func (s *GCSObjectStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	r, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, domain.ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to open GCS object: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read GCS object: %w", err)
	}
	return data, nil
}

func (s *GCSObjectStore) Delete(ctx context.Context, bucket, key string) error {
	if err := s.client.Bucket(bucket).Object(key).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return domain.ErrBlobNotFound
		}
		return fmt.Errorf("failed to delete GCS object: %w", err)
	}
	return nil
}

func (s *GCSObjectStore) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	if _, err := s.client.Bucket(bucket).Object(key).Attrs(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return "", domain.ErrBlobNotFound
		}
		return "", fmt.Errorf("failed to stat GCS object: %w", err)
	}
	url, err := s.client.Bucket(bucket).SignedURL(key, &storage.SignedURLOptions{
		Method:  http.MethodGet,
		Expires: time.Now().Add(ttl),
		Scheme:  storage.SigningSchemeV4,
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign GCS url: %w", err)
	}
	return url, nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
