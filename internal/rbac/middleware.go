package rbac

import (
	"net/http"

	"identity-api/internal/auth"

	"github.com/gin-gonic/gin"
)

// RequireAuthenticated only checks that auth.RequireAccessToken ran and succeeded.
func RequireAuthenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := auth.UserID(c.Request.Context()); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Next()
	}
}

// RequireAnyRole allows access if any role claim of the caller is in allowed.
// Roles are compared as a set; claim order is irrelevant.
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		roles, err := auth.Roles(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		for _, r := range roles {
			if _, ok := allowedSet[r]; ok {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}
