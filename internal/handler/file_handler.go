package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/applets-core/internal/dto"
	"github.com/noah-isme/applets-core/internal/models"
	"github.com/noah-isme/applets-core/internal/service"
	appErrors "github.com/noah-isme/applets-core/pkg/errors"
	"github.com/noah-isme/applets-core/pkg/response"
)

type fileService interface {
	Upload(ctx context.Context, principal models.Principal, appletID string, upload service.FileUpload) (*dto.FileUploadResult, error)
	Download(ctx context.Context, principal models.Principal, appletID, token string) (*service.FileDownload, error)
}

// FileHandler manages answer attachment endpoints.
type FileHandler struct {
	service fileService
}

// NewFileHandler constructs the handler.
func NewFileHandler(service fileService) *FileHandler {
	return &FileHandler{service: service}
}

// Upload godoc
// @Summary Upload an answer file
// @Tags Files
// @Accept multipart/form-data
// @Produce json
// @Param applet_id path string true "Applet ID"
// @Param file formData file true "Attachment"
// @Success 201 {object} response.SingleEnvelope
// @Failure 400 {object} response.ErrorEnvelope
// @Router /file/{applet_id}/upload [post]
func (h *FileHandler) Upload(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.WithPath(appErrors.ErrValidation, "file is required", "file"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer src.Close()

	reader, ok := src.(io.ReadSeeker)
	if !ok {
		buf, readErr := io.ReadAll(src)
		if readErr != nil {
			response.Error(c, appErrors.Wrap(readErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to buffer file"))
			return
		}
		reader = bytes.NewReader(buf)
	}
	upload := service.FileUpload{
		Filename: fileHeader.Filename,
		Size:     fileHeader.Size,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Content:  reader,
	}
	result, err := h.service.Upload(c.Request.Context(), principal, c.Param("applet_id"), upload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Download godoc
// @Summary Download an answer file
// @Tags Files
// @Produce octet-stream
// @Param applet_id path string true "Applet ID"
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Failure 403 {object} response.ErrorEnvelope
// @Router /file/{applet_id}/download [get]
func (h *FileHandler) Download(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	token := c.Query("token")
	if strings.TrimSpace(token) == "" {
		response.Error(c, appErrors.WithPath(appErrors.ErrValidation, "token is required", "token"))
		return
	}
	result, err := h.service.Download(c.Request.Context(), principal, c.Param("applet_id"), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.Content.Close() //nolint:errcheck
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, -1, result.MimeType, result.Content, nil)
}
