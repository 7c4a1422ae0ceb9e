package middleware

import (
	"net/http"

	"eventreg/internal/pkg/authz"
	"eventreg/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

// RequirePermission rejects callers lacking perm. Must run after JWTAuth.
func RequirePermission(perm authz.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _, ok := Actor(c)
		if !ok {
			response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
			c.Abort()
			return
		}

		if !user.Can(perm) {
			response.Error(c, http.StatusForbidden, "FORBIDDEN", "Access denied: insufficient permissions")
			c.Abort()
			return
		}

		c.Next()
	}
}
