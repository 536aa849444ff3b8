package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/yasgmp/gmpauthz/internal/services"
	"github.com/yasgmp/gmpauthz/pkg/errors"
	"github.com/yasgmp/gmpauthz/pkg/response"
)

// RequirePermission lets the request through only when the authenticated user
// holds code. Store failures render as 503 rather than a denial.
func RequirePermission(checker services.PermissionChecker, code string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		allowed, err := checker.HasPermission(c.Request.Context(), actor.UserID, code)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		if !allowed {
			response.Error(c, errors.Denied(actor.UserID, code))
			c.Abort()
			return
		}
		c.Next()
	}
}
