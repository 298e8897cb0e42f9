package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/dfworx/chat-backend/internal/models"
	"github.com/dfworx/chat-backend/internal/tenant"
	"github.com/dfworx/chat-backend/pkg/response"
)

// RequireRole returns a middleware that allows only the given roles.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{})
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		sc, ok := Scope(c)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		if _, ok := allowed[sc.Role]; !ok {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}

// AllowDeleted reports whether the caller may read tombstoned messages.
// Only moderators and above may; others get a 403 and the request is
// aborted.
func AllowDeleted(c *gin.Context, sc tenant.Scope, requested bool) bool {
	if !requested || sc.Role.CanModerate() {
		return true
	}
	response.Forbidden(c, "include_deleted requires a moderator role")
	c.Abort()
	return false
}
