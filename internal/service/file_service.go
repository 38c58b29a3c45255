package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/applets-core/internal/dto"
	"github.com/noah-isme/applets-core/internal/models"
	appErrors "github.com/noah-isme/applets-core/pkg/errors"
	"github.com/noah-isme/applets-core/pkg/storage"
)

type fileSigner interface {
	Generate(appletID, key string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (appletID, key string, expiresAt time.Time, err error)
}

// FileUpload carries upload metadata and the stream reader.
type FileUpload struct {
	Filename string
	Size     int64
	MimeType string
	Content  io.ReadSeeker
}

// FileDownload bundles an object stream with its metadata.
type FileDownload struct {
	Content   io.ReadCloser
	Filename  string
	MimeType  string
	ExpiresAt time.Time
}

// FileServiceConfig holds upload limits.
type FileServiceConfig struct {
	MaxFileSize  int64
	AllowedMIMEs []string
}

// FileService stores answer attachments in the object store the applet's workspace routes to.
type FileService struct {
	roles   roleReader
	router  routeResolver
	signer  fileSigner
	logger  *zap.Logger
	cfg     FileServiceConfig
	mimeSet map[string]struct{}
}

// NewFileService constructs the service. An empty MIME list accepts every type.
func NewFileService(roles roleReader, router routeResolver, signer fileSigner, logger *zap.Logger, cfg FileServiceConfig) *FileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 50 * 1024 * 1024
	}
	mimeSet := make(map[string]struct{}, len(cfg.AllowedMIMEs))
	for _, mt := range cfg.AllowedMIMEs {
		mimeSet[strings.ToLower(mt)] = struct{}{}
	}
	return &FileService{roles: roles, router: router, signer: signer, logger: logger, cfg: cfg, mimeSet: mimeSet}
}

// Upload writes the file under {applet}/{respondent}/{uuid}/{filename} and returns a download token.
func (s *FileService) Upload(ctx context.Context, principal models.Principal, appletID string, upload FileUpload) (*dto.FileUploadResult, error) {
	if err := s.requireAccess(ctx, principal, appletID); err != nil {
		return nil, err
	}
	if upload.Content == nil || upload.Size <= 0 {
		return nil, appErrors.WithPath(appErrors.ErrValidation, "file is required", "file")
	}
	if upload.Size > s.cfg.MaxFileSize {
		return nil, appErrors.WithPath(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes limit", s.cfg.MaxFileSize), "file")
	}
	mimeType, err := detectMime(upload)
	if err != nil {
		return nil, err
	}
	if len(s.mimeSet) > 0 {
		if _, allowed := s.mimeSet[strings.ToLower(mimeType)]; !allowed {
			return nil, appErrors.WithPath(appErrors.ErrValidation, "mime type not allowed", "file")
		}
	}

	route, err := s.router.Resolve(ctx, appletID)
	if err != nil {
		return nil, err
	}
	key := storage.ObjectKey(appletID, principal.UserID, uuid.NewString(), upload.Filename)
	if err := route.Store.Upload(ctx, key, upload.Content, mimeType); err != nil {
		s.logger.Error("answer file upload failed", zap.String("applet_id", appletID), zap.String("store", route.Store.Name()), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "object store is unavailable")
	}

	token, expiresAt, err := s.signer.Generate(appletID, key)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download token")
	}
	return &dto.FileUploadResult{Key: key, Token: token, ExpiresAt: expiresAt}, nil
}

// Download opens the object a token was issued for.
func (s *FileService) Download(ctx context.Context, principal models.Principal, appletID, token string) (*FileDownload, error) {
	tokenApplet, key, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrAccessDenied, "invalid or expired token")
	}
	if tokenApplet != appletID {
		return nil, appErrors.Clone(appErrors.ErrAccessDenied, "token mismatch")
	}
	if err := s.requireAccess(ctx, principal, appletID); err != nil {
		return nil, err
	}

	route, err := s.router.Resolve(ctx, appletID)
	if err != nil {
		return nil, err
	}
	body, err := route.Store.Download(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "object store is unavailable")
	}

	filename := path.Base(key)
	mimeType := mime.TypeByExtension(path.Ext(filename))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return &FileDownload{Content: body, Filename: filename, MimeType: mimeType, ExpiresAt: expiresAt}, nil
}

func (s *FileService) requireAccess(ctx context.Context, principal models.Principal, appletID string) error {
	roles, err := s.roles.RolesFor(ctx, principal.UserID, appletID)
	if err != nil {
		return persistError(err, "failed to load applet roles")
	}
	if len(roles) == 0 {
		return appErrors.Clone(appErrors.ErrAccessDenied, "no access to applet")
	}
	return nil
}

func detectMime(upload FileUpload) (string, error) {
	if upload.MimeType != "" && upload.MimeType != "application/octet-stream" {
		return upload.MimeType, nil
	}
	header := make([]byte, 512)
	n, err := upload.Content.Read(header)
	if err != nil && err != io.EOF {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect file")
	}
	if _, err := upload.Content.Seek(0, io.SeekStart); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset upload stream")
	}
	if n == 0 {
		return "", appErrors.WithPath(appErrors.ErrValidation, "empty file", "file")
	}
	return http.DetectContentType(header[:n]), nil
}
