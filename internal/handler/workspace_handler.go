package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/applets-core/internal/dto"
	"github.com/noah-isme/applets-core/internal/models"
	"github.com/noah-isme/applets-core/pkg/response"
)

type workspaceService interface {
	GetArbitrary(ctx context.Context, principal models.Principal, ownerID string) (*models.ArbitraryServerView, error)
	SetArbitrary(ctx context.Context, principal models.Principal, ownerID string, req dto.ArbitraryServerRequest) (*models.ArbitraryServerView, error)
}

// WorkspaceHandler manages a workspace's arbitrary-server block.
type WorkspaceHandler struct {
	service workspaceService
}

// NewWorkspaceHandler builds a new handler.
func NewWorkspaceHandler(service workspaceService) *WorkspaceHandler {
	return &WorkspaceHandler{service: service}
}

// GetArbitrary godoc
// @Summary Get arbitrary server settings
// @Description Secrets are never returned.
// @Tags Workspaces
// @Produce json
// @Param owner_id path string true "Workspace owner ID"
// @Success 200 {object} response.SingleEnvelope
// @Router /workspaces/{owner_id}/arbitrary [get]
func (h *WorkspaceHandler) GetArbitrary(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	view, err := h.service.GetArbitrary(c.Request.Context(), principal, c.Param("owner_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Single(c, http.StatusOK, view)
}

// SetArbitrary godoc
// @Summary Set arbitrary server settings
// @Tags Workspaces
// @Accept json
// @Produce json
// @Param owner_id path string true "Workspace owner ID"
// @Param payload body dto.ArbitraryServerRequest true "Arbitrary server block"
// @Success 200 {object} response.SingleEnvelope
// @Failure 400 {object} response.ErrorEnvelope
// @Router /workspaces/{owner_id}/arbitrary [put]
func (h *WorkspaceHandler) SetArbitrary(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	var req dto.ArbitraryServerRequest
	if !bindJSON(c, &req) {
		return
	}
	view, err := h.service.SetArbitrary(c.Request.Context(), principal, c.Param("owner_id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Single(c, http.StatusOK, view)
}
