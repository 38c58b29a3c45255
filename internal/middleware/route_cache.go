package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/applets-core/internal/service"
)

// RouteCache scopes decrypted workspace blocks to the lifetime of one request.
func RouteCache() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(service.WithRouteCache(c.Request.Context()))
		c.Next()
	}
}
