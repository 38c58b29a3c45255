package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/applets-core/pkg/errors"
)

// SingleEnvelope wraps one result object.
type SingleEnvelope struct {
	Result interface{} `json:"result"`
}

// MultiEnvelope wraps a result list with its total count.
type MultiEnvelope struct {
	Result interface{} `json:"result"`
	Count  int         `json:"count"`
}

// ErrorEnvelope lists every problem attached to a failed request.
type ErrorEnvelope struct {
	Result []appErrors.Detail `json:"result"`
}

// Single sends a `{"result": ...}` response.
func Single(c *gin.Context, status int, data interface{}) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(status, SingleEnvelope{Result: data})
}

// Multi sends a `{"result": [...], "count": n}` response.
func Multi(c *gin.Context, status int, data interface{}, count int) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(status, MultiEnvelope{Result: data, Count: count})
}

// Created responds with HTTP 201 Created.
func Created(c *gin.Context, data interface{}) {
	Single(c, http.StatusCreated, data)
}

// Error sends an error response converting the error to the common structure.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(appErr.Status, ErrorEnvelope{Result: appErr.Entries()})
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
