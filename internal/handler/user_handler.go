package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/applets-core/internal/dto"
	"github.com/noah-isme/applets-core/internal/models"
	"github.com/noah-isme/applets-core/pkg/response"
)

type userService interface {
	Get(ctx context.Context, principal models.Principal) (*models.User, error)
	ChangePassword(ctx context.Context, principal models.Principal, req dto.ChangePasswordRequest) error
}

// UserHandler exposes the caller's own account.
type UserHandler struct {
	service userService
}

// NewUserHandler builds a new handler.
func NewUserHandler(service userService) *UserHandler {
	return &UserHandler{service: service}
}

// Me godoc
// @Summary Get current user
// @Tags Users
// @Produce json
// @Success 200 {object} response.SingleEnvelope
// @Router /users/me [get]
func (h *UserHandler) Me(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	user, err := h.service.Get(c.Request.Context(), principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Single(c, http.StatusOK, user)
}

// ChangePassword godoc
// @Summary Change password
// @Description Starts reencryption of the caller's answers; 409 while a previous run is in progress.
// @Tags Users
// @Accept json
// @Param payload body dto.ChangePasswordRequest true "Passwords"
// @Success 204
// @Failure 400 {object} response.ErrorEnvelope
// @Failure 409 {object} response.ErrorEnvelope
// @Router /users/me/password [put]
func (h *UserHandler) ChangePassword(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	var req dto.ChangePasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.service.ChangePassword(c.Request.Context(), principal, req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
