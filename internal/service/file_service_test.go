package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/applets-core/internal/models"
	appErrors "github.com/noah-isme/applets-core/pkg/errors"
	"github.com/noah-isme/applets-core/pkg/storage"
)

type stubRoles map[string][]models.AppletRole

func (s stubRoles) RolesFor(ctx context.Context, userID, appletID string) ([]models.AppletRole, error) {
	return s[userID], nil
}

type failingObjectStore struct {
	*memoryObjectStore
}

func (failingObjectStore) Upload(ctx context.Context, key string, r io.Reader, contentType string) error {
	return errors.New("bucket unreachable")
}

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func newFileFixture(t *testing.T, allowed ...string) (*FileService, *memoryObjectStore, *staticRouter) {
	t.Helper()
	store := newMemoryObjectStore("memory")
	router := &staticRouter{route: &Route{Store: store}}
	roles := stubRoles{
		"respondent-1": {models.RoleRespondent},
		"reviewer-1":   {models.RoleReviewer},
	}
	svc := NewFileService(roles, router, storage.NewSignedURLSigner("files-secret", time.Hour), nil, FileServiceConfig{
		MaxFileSize:  1024,
		AllowedMIMEs: allowed,
	})
	return svc, store, router
}

func TestFileServiceUploadAndDownload(t *testing.T) {
	svc, store, _ := newFileFixture(t, "image/png")
	respondent := models.Principal{UserID: "respondent-1"}

	result, err := svc.Upload(context.Background(), respondent, "applet-1", FileUpload{
		Filename: "../drawing.png",
		Size:     int64(len(pngHeader)),
		Content:  bytes.NewReader(pngHeader),
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.Key, "applet-1/respondent-1/"))
	assert.True(t, strings.HasSuffix(result.Key, "/drawing.png"))
	assert.Equal(t, "image/png", store.types[result.Key])
	assert.Equal(t, pngHeader, store.objects[result.Key])

	download, err := svc.Download(context.Background(), models.Principal{UserID: "reviewer-1"}, "applet-1", result.Token)
	require.NoError(t, err)
	defer download.Content.Close()
	body, err := io.ReadAll(download.Content)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, body)
	assert.Equal(t, "drawing.png", download.Filename)
	assert.Equal(t, "image/png", download.MimeType)
}

func TestFileServiceUploadRejects(t *testing.T) {
	tests := []struct {
		name      string
		principal string
		upload    FileUpload
		want      *appErrors.Error
	}{
		{name: "no role", principal: "stranger", upload: FileUpload{Filename: "a.png", Size: 16, Content: bytes.NewReader(pngHeader)}, want: appErrors.ErrAccessDenied},
		{name: "missing file", principal: "respondent-1", upload: FileUpload{Filename: "a.png"}, want: appErrors.ErrValidation},
		{name: "too large", principal: "respondent-1", upload: FileUpload{Filename: "a.png", Size: 4096, Content: bytes.NewReader(pngHeader)}, want: appErrors.ErrValidation},
		{name: "type not allowed", principal: "respondent-1", upload: FileUpload{Filename: "a.txt", Size: 5, Content: strings.NewReader("hello")}, want: appErrors.ErrValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, store, _ := newFileFixture(t, "image/png")
			_, err := svc.Upload(context.Background(), models.Principal{UserID: tc.principal}, "applet-1", tc.upload)
			assert.ErrorIs(t, err, tc.want)
			assert.Empty(t, store.objects)
		})
	}
}

func TestFileServiceUploadStorageUnavailable(t *testing.T) {
	svc, _, router := newFileFixture(t)
	router.route.Store = failingObjectStore{newMemoryObjectStore("broken")}

	_, err := svc.Upload(context.Background(), models.Principal{UserID: "respondent-1"}, "applet-1", FileUpload{
		Filename: "note.txt",
		Size:     5,
		Content:  strings.NewReader("hello"),
	})
	assert.ErrorIs(t, err, appErrors.ErrStorageUnavailable)
}

func TestFileServiceDownloadRejects(t *testing.T) {
	svc, _, _ := newFileFixture(t)
	signer := storage.NewSignedURLSigner("files-secret", time.Hour)
	reviewer := models.Principal{UserID: "reviewer-1"}

	_, err := svc.Download(context.Background(), reviewer, "applet-1", "garbage")
	assert.ErrorIs(t, err, appErrors.ErrAccessDenied)

	other, _, err := signer.Generate("applet-2", "applet-2/r/f/a.png")
	require.NoError(t, err)
	_, err = svc.Download(context.Background(), reviewer, "applet-1", other)
	assert.ErrorIs(t, err, appErrors.ErrAccessDenied)

	missing, _, err := signer.Generate("applet-1", "applet-1/r/f/gone.png")
	require.NoError(t, err)
	_, err = svc.Download(context.Background(), reviewer, "applet-1", missing)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.Download(context.Background(), models.Principal{UserID: "stranger"}, "applet-1", missing)
	assert.ErrorIs(t, err, appErrors.ErrAccessDenied)
}
