package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/applets-core/internal/models"
	"github.com/noah-isme/applets-core/internal/service"
	"github.com/noah-isme/applets-core/pkg/config"
)

type recordingObserver struct {
	paths    []string
	statuses []int
}

func (o *recordingObserver) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	o.paths = append(o.paths, path)
	o.statuses = append(o.statuses, status)
}

func newProtectedRouter(t *testing.T) (*gin.Engine, *service.TokenValidator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	validator := service.NewTokenValidator(config.JWTConfig{Secret: "secret", Issuer: "applets"})
	r := gin.New()
	r.Use(JWT(validator))
	r.GET("/me", func(c *gin.Context) {
		principal, ok := PrincipalFrom(c)
		require.True(t, ok)
		c.String(http.StatusOK, principal.UserID)
	})
	r.PUT("/workspaces/:owner_id/arbitrary", RequireSelf("owner_id"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r, validator
}

func TestJWTAttachesPrincipal(t *testing.T) {
	r, validator := newProtectedRouter(t)
	token, _, err := validator.Issue(models.Principal{UserID: "user-1"}, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", w.Body.String())
}

func TestJWTRejectsMissingOrMalformed(t *testing.T) {
	r, _ := newProtectedRouter(t)
	for _, header := range []string{"", "Basic abc", "Bearer ", "Bearer nope"} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
		assert.Contains(t, w.Body.String(), `"result"`)
	}
}

func TestRequireSelf(t *testing.T) {
	r, validator := newProtectedRouter(t)
	token, _, err := validator.Issue(models.Principal{UserID: "owner-1"}, time.Hour)
	require.NoError(t, err)

	cases := map[string]int{
		"/workspaces/owner-1/arbitrary": http.StatusNoContent,
		"/workspaces/owner-2/arbitrary": http.StatusForbidden,
	}
	for path, want := range cases {
		req := httptest.NewRequest(http.MethodPut, path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, path)
	}
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	observer := &recordingObserver{}
	r := gin.New()
	r.Use(Metrics(observer), RouteCache())
	r.GET("/applets/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/applets/abc", "/nowhere"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	assert.Equal(t, []string{"/applets/:id", "unmatched"}, observer.paths)
	assert.Equal(t, []int{http.StatusOK, http.StatusNotFound}, observer.statuses)
}
