package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dfworx/chat-backend/pkg/apperror"
)

// Error codes carried in Body.Code for domain errors.
const (
	CodeValidation     = "validation_error"
	CodeNotFound       = "not_found"
	CodeConflict       = "conflict"
	CodeTenantMismatch = "tenant_mismatch"
	CodeInternal       = "internal_error"
)

// Body is the standard API response envelope.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
	Field   string      `json:"field,omitempty"`
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Created sends a 201 JSON response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// Accepted sends a 202 JSON response with data.
func Accepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, Body{Success: true, Data: data})
}

// NoContent sends 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// BadRequest sends 400 with error message.
func BadRequest(c *gin.Context, err string) {
	c.JSON(http.StatusBadRequest, Body{Success: false, Error: err, Code: CodeValidation})
}

// Unauthorized sends 401.
func Unauthorized(c *gin.Context, err string) {
	c.JSON(http.StatusUnauthorized, Body{Success: false, Error: err})
}

// Forbidden sends 403.
func Forbidden(c *gin.Context, err string) {
	c.JSON(http.StatusForbidden, Body{Success: false, Error: err})
}

// NotFound sends 404.
func NotFound(c *gin.Context, err string) {
	c.JSON(http.StatusNotFound, Body{Success: false, Error: err, Code: CodeNotFound})
}

// Conflict sends 409.
func Conflict(c *gin.Context, err string) {
	c.JSON(http.StatusConflict, Body{Success: false, Error: err, Code: CodeConflict})
}

// TooManyRequests sends 429.
func TooManyRequests(c *gin.Context, err string) {
	c.JSON(http.StatusTooManyRequests, Body{Success: false, Error: err})
}

// ServiceUnavailable sends 503.
func ServiceUnavailable(c *gin.Context, err string) {
	c.JSON(http.StatusServiceUnavailable, Body{Success: false, Error: err})
}

// Internal sends 500.
func Internal(c *gin.Context, err string) {
	c.JSON(http.StatusInternalServerError, Body{Success: false, Error: err, Code: CodeInternal})
}

// Error maps a domain error to its HTTP status. Not-found errors read as
// "no longer available" so stale links degrade politely. Anything that is
// not a domain error is reported as a generic 500 with fallback as message;
// the caller logs the cause.
func Error(c *gin.Context, err error, fallback string) {
	var (
		validation *apperror.ValidationError
		notFound   *apperror.NotFoundError
		conflict   *apperror.ConflictError
		tenant     *apperror.TenantMismatchError
	)
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, Body{Error: validation.Message, Code: CodeValidation, Field: validation.Field})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, Body{Error: notFound.Entity + " is no longer available", Code: CodeNotFound})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, Body{Error: conflict.Message, Code: CodeConflict, Field: conflict.Field})
	case errors.As(err, &tenant):
		c.JSON(http.StatusForbidden, Body{Error: tenant.Message, Code: CodeTenantMismatch})
	default:
		Internal(c, fallback)
	}
}
