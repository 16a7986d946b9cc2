package repository

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Phucdanghoc/File-store-sub000/internal/domain"

	storage_go "github.com/supabase-community/storage-go"
)

// SupabaseObjectStore stores blobs in Supabase Storage buckets.
type SupabaseObjectStore struct {
	supabaseClient domain.SupabaseClient
	logger         domain.Logger
}

// NewSupabaseObjectStore creates a new Supabase-backed object store
func NewSupabaseObjectStore(supabaseClient domain.SupabaseClient, logger domain.Logger) *SupabaseObjectStore {
	return &SupabaseObjectStore{
		supabaseClient: supabaseClient,
		logger:         logger,
	}
}

func (s *SupabaseObjectStore) storage() (*storage_go.Client, error) {
	client := s.supabaseClient.DB()
	if client == nil || client.Storage == nil {
		return nil, fmt.Errorf("supabase client not initialized")
	}
	return client.Storage, nil
}

// Put uploads without upsert so an existing key is never overwritten.
func (s *SupabaseObjectStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	st, err := s.storage()
	if err != nil {
		return err
	}
	upsert := false
	_, err = st.UploadFile(bucket, key, bytes.NewReader(data), storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		if isStorageConflict(err) {
			return domain.ErrDuplicateKey
		}
		return fmt.Errorf("failed to upload object: %w", err)
	}
	return nil
}

func (s *SupabaseObjectStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	st, err := s.storage()
	if err != nil {
		return nil, err
	}
	data, err := st.DownloadFile(bucket, key)
	if err != nil {
		if isStorageNotFound(err) {
			return nil, domain.ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to download object: %w", err)
	}
	return data, nil
}

func (s *SupabaseObjectStore) Delete(ctx context.Context, bucket, key string) error {
	st, err := s.storage()
	if err != nil {
		return err
	}
	removed, err := st.RemoveFile(bucket, []string{key})
	if err != nil {
		if isStorageNotFound(err) {
			return domain.ErrBlobNotFound
		}
		return fmt.Errorf("failed to remove object: %w", err)
	}
	// Storage answers 200 with an empty list when nothing matched.
	if len(removed) == 0 {
		return domain.ErrBlobNotFound
	}
	return nil
}

func (s *SupabaseObjectStore) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	st, err := s.storage()
	if err != nil {
		return "", err
	}
	resp, err := st.CreateSignedUrl(bucket, key, int(ttl.Seconds()))
	if err != nil {
		if isStorageNotFound(err) {
			return "", domain.ErrBlobNotFound
		}
		return "", fmt.Errorf("failed to sign object url: %w", err)
	}
	return resp.SignedURL, nil
}

func isStorageNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "404")
}

func isStorageConflict(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate") || strings.Contains(msg, "409")
}
