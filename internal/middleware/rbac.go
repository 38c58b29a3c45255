package middleware

import (
	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/applets-core/pkg/errors"
	"github.com/noah-isme/applets-core/pkg/response"
)

// RequireSelf only lets a request through when the path parameter names the caller.
// Applet-level roles are checked by the services.
func RequireSelf(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFrom(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if target := c.Param(param); target == "" || target != principal.UserID {
			response.Error(c, appErrors.Clone(appErrors.ErrAccessDenied, "only the workspace owner may do this"))
			c.Abort()
			return
		}
		c.Next()
	}
}
