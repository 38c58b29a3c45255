package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

const defaultAzureContainer = "answers"

// AzureStore keeps objects in an Azure Blob Storage container.
type AzureStore struct {
	client    *azblob.Client
	container string
}

// NewAzureStore builds a client from the connection string carried in SecretKey.
// Bucket names the container and defaults to "answers".
func NewAzureStore(spec Spec) (*AzureStore, error) {
	if spec.SecretKey == "" {
		return nil, fmt.Errorf("storage: azure requires a connection string")
	}
	client, err := azblob.NewClientFromConnectionString(spec.SecretKey, nil)
	if err != nil {
		return nil, fmt.Errorf("create azure client: %w", err)
	}
	container := spec.Bucket
	if container == "" {
		container = defaultAzureContainer
	}
	return &AzureStore{client: client, container: container}, nil
}

// Name implements ObjectStore.
func (s *AzureStore) Name() string { return TypeAzure }

// Upload implements ObjectStore.
func (s *AzureStore) Upload(ctx context.Context, key string, r io.Reader, contentType string) error {
	var opts *azblob.UploadStreamOptions
	if contentType != "" {
		opts = &azblob.UploadStreamOptions{HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType}}
	}
	if _, err := s.client.UploadStream(ctx, s.container, key, r, opts); err != nil {
		return fmt.Errorf("upload azure blob %s: %w", key, err)
	}
	return nil
}

// Download implements ObjectStore.
func (s *AzureStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, key, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("download azure blob %s: %w", key, err)
	}
	return resp.Body, nil
}

// Delete implements ObjectStore.
func (s *AzureStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteBlob(ctx, s.container, key, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
		return fmt.Errorf("delete azure blob %s: %w", key, err)
	}
	return nil
}
