package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/applets-core/internal/dto"
	"github.com/noah-isme/applets-core/internal/models"
	"github.com/noah-isme/applets-core/pkg/response"
)

type appletService interface {
	Create(ctx context.Context, principal models.Principal, payload dto.AppletPayload) (*dto.AppletResult, error)
	Update(ctx context.Context, principal models.Principal, appletID string, payload dto.AppletPayload) (*dto.AppletResult, error)
	Get(ctx context.Context, principal models.Principal, appletID string) (*models.AppletTree, error)
	GetVersion(ctx context.Context, principal models.Principal, appletID, version string) (*models.AppletHistoryTree, error)
	ListVersions(ctx context.Context, principal models.Principal, appletID string) ([]models.AppletVersion, error)
	Delete(ctx context.Context, principal models.Principal, appletID string) error
}

// AppletHandler exposes applet authoring endpoints.
type AppletHandler struct {
	service appletService
}

// NewAppletHandler builds a new handler.
func NewAppletHandler(service appletService) *AppletHandler {
	return &AppletHandler{service: service}
}

// Create godoc
// @Summary Create applet
// @Tags Applets
// @Accept json
// @Produce json
// @Param payload body dto.AppletPayload true "Applet"
// @Success 201 {object} response.SingleEnvelope
// @Failure 400 {object} response.ErrorEnvelope
// @Router /applets [post]
func (h *AppletHandler) Create(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	var payload dto.AppletPayload
	if !bindJSON(c, &payload) {
		return
	}
	result, err := h.service.Create(c.Request.Context(), principal, payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Update godoc
// @Summary Update applet
// @Description Saves the full applet and writes a new history version.
// @Tags Applets
// @Accept json
// @Produce json
// @Param id path string true "Applet ID"
// @Param payload body dto.AppletPayload true "Applet"
// @Success 200 {object} response.SingleEnvelope
// @Failure 400 {object} response.ErrorEnvelope
// @Failure 403 {object} response.ErrorEnvelope
// @Router /applets/{id} [put]
func (h *AppletHandler) Update(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	var payload dto.AppletPayload
	if !bindJSON(c, &payload) {
		return
	}
	result, err := h.service.Update(c.Request.Context(), principal, c.Param("id"), payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Single(c, http.StatusOK, result)
}

// Get godoc
// @Summary Get applet
// @Tags Applets
// @Produce json
// @Param id path string true "Applet ID"
// @Success 200 {object} response.SingleEnvelope
// @Failure 404 {object} response.ErrorEnvelope
// @Router /applets/{id} [get]
func (h *AppletHandler) Get(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	tree, err := h.service.Get(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Single(c, http.StatusOK, tree)
}

// GetVersion godoc
// @Summary Get applet snapshot
// @Tags Applets
// @Produce json
// @Param id path string true "Applet ID"
// @Param version path string true "Version"
// @Success 200 {object} response.SingleEnvelope
// @Failure 404 {object} response.ErrorEnvelope
// @Router /applets/{id}/versions/{version} [get]
func (h *AppletHandler) GetVersion(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	tree, err := h.service.GetVersion(c.Request.Context(), principal, c.Param("id"), c.Param("version"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Single(c, http.StatusOK, tree)
}

// ListVersions godoc
// @Summary List applet versions
// @Tags Applets
// @Produce json
// @Param id path string true "Applet ID"
// @Success 200 {object} response.MultiEnvelope
// @Router /applets/{id}/versions [get]
func (h *AppletHandler) ListVersions(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	versions, err := h.service.ListVersions(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Multi(c, http.StatusOK, versions, len(versions))
}

// Delete godoc
// @Summary Soft delete applet
// @Tags Applets
// @Param id path string true "Applet ID"
// @Success 204
// @Failure 403 {object} response.ErrorEnvelope
// @Router /applets/{id} [delete]
func (h *AppletHandler) Delete(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), principal, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
