package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dfworx/chat-backend/internal/auth"
	"github.com/dfworx/chat-backend/internal/tenant"
	"github.com/dfworx/chat-backend/pkg/response"
)

const (
	// ContextScope is the key for the caller's tenant.Scope in gin context.
	ContextScope = "scope"
	// ContextUserID is the key for user ID in gin context.
	ContextUserID = "user_id"
	// ContextOrganizationID is the key for the organization ID in gin context.
	ContextOrganizationID = "organization_id"
	// ContextUserRole is the key for user role in gin context.
	ContextUserRole = "user_role"
)

// JWT returns a middleware that validates the bearer token and stores the
// caller's scope in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		SetScope(c, claims.Scope())
		c.Next()
	}
}

// SetScope stores sc in the request context.
func SetScope(c *gin.Context, sc tenant.Scope) {
	c.Set(ContextScope, sc)
	c.Set(ContextUserID, sc.UserID)
	c.Set(ContextOrganizationID, sc.OrganizationID)
	c.Set(ContextUserRole, sc.Role)
}

// Scope returns the caller's scope set by JWT.
func Scope(c *gin.Context) (tenant.Scope, bool) {
	v, ok := c.Get(ContextScope)
	if !ok {
		return tenant.Scope{}, false
	}
	sc, ok := v.(tenant.Scope)
	return sc, ok
}

// MustScope returns the caller's scope or aborts with 401 when JWT did not
// run.
func MustScope(c *gin.Context) (tenant.Scope, bool) {
	sc, ok := Scope(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		c.Abort()
	}
	return sc, ok
}
