package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/applets-core/internal/models"
	appErrors "github.com/noah-isme/applets-core/pkg/errors"
	"github.com/noah-isme/applets-core/pkg/response"
)

// ContextUserKey is the gin context key storing access token claims.
const ContextUserKey = "currentUser"

type tokenValidator interface {
	Validate(token string) (*models.AccessClaims, error)
}

// JWT protects routes by requiring a valid bearer access token.
func JWT(validator tokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := validator.Validate(strings.TrimSpace(token))
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

// PrincipalFrom returns the caller attached by JWT.
func PrincipalFrom(c *gin.Context) (models.Principal, bool) {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return models.Principal{}, false
	}
	claims, ok := value.(*models.AccessClaims)
	if !ok || claims == nil {
		return models.Principal{}, false
	}
	return claims.Principal(), true
}
