package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrObjectNotFound is returned when a key does not exist in the store.
var ErrObjectNotFound = errors.New("storage: object not found")

// ObjectStore is the object-store handle answers and answer files are written to.
type ObjectStore interface {
	Name() string
	Upload(ctx context.Context, key string, r io.Reader, contentType string) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

const (
	TypeLocal = "local"
	TypeAWS   = "aws"
	TypeGCP   = "gcp"
	TypeAzure = "azure"
)

// Spec describes how to reach one object store.
type Spec struct {
	Type      string
	Dir       string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	URL       string
}

// Open builds the store described by spec.
func Open(ctx context.Context, spec Spec) (ObjectStore, error) {
	switch strings.ToLower(spec.Type) {
	case "", TypeLocal:
		return NewLocalStorage(spec.Dir)
	case TypeAWS:
		return NewS3Store(spec)
	case TypeGCP:
		return NewGCSStore(ctx, spec)
	case TypeAzure:
		return NewAzureStore(spec)
	default:
		return nil, fmt.Errorf("storage: unsupported type %q", spec.Type)
	}
}

// ObjectKey builds the key of an answer file.
func ObjectKey(appletID, respondentID, fileID, filename string) string {
	return strings.Join([]string{appletID, respondentID, fileID, sanitizeFilename(filename)}, "/")
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.ReplaceAll(name, "..", "")
	if name == "" {
		return "file"
	}
	return name
}
