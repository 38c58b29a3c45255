package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/applets-core/internal/middleware"
	"github.com/noah-isme/applets-core/internal/models"
	appErrors "github.com/noah-isme/applets-core/pkg/errors"
	"github.com/noah-isme/applets-core/pkg/response"
)

// principalFromContext returns the caller, writing 401 when the request is anonymous.
func principalFromContext(c *gin.Context) (models.Principal, bool) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return models.Principal{}, false
	}
	return principal, true
}

// bindJSON decodes the body, mapping decode failures to a schema error.
func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrSchema.Code, appErrors.ErrSchema.Status, "request body does not match schema"))
		return false
	}
	return true
}
