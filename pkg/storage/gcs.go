package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStore keeps objects in a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore builds a client. A custom endpoint and a service-account JSON in
// SecretKey are used when present; otherwise application default credentials apply.
func NewGCSStore(ctx context.Context, spec Spec) (*GCSStore, error) {
	if spec.Bucket == "" {
		return nil, fmt.Errorf("storage: gcp requires bucket")
	}
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if spec.URL != "" {
		opts = append(opts, option.WithEndpoint(spec.URL))
	}
	if spec.SecretKey != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(spec.SecretKey)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSStore{client: client, bucket: spec.Bucket}, nil
}

// Name implements ObjectStore.
func (s *GCSStore) Name() string { return TypeGCP }

// Upload implements ObjectStore.
func (s *GCSStore) Upload(ctx context.Context, key string, r io.Reader, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("write gcs object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close gcs writer %s: %w", key, err)
	}
	return nil
}

// Download implements ObjectStore.
func (s *GCSStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read gcs object %s: %w", key, err)
	}
	return r, nil
}

// Delete implements ObjectStore.
func (s *GCSStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete gcs object %s: %w", key, err)
	}
	return nil
}
