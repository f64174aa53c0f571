package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"studio/backend/internal/domain"
)

// RequireRole 要求特定角色，需放在 RequireAuth 之后
func RequireRole(allowedRoles ...domain.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFromContext(c)
		if !ok {
			abortWithError(c, http.StatusUnauthorized, "Access token required")
			return
		}

		for _, role := range allowedRoles {
			if domain.UserRole(claims.Role) == role {
				c.Next()
				return
			}
		}

		abortWithError(c, http.StatusForbidden, "Admin access required")
	}
}

// RequireAdmin 要求管理员权限
func RequireAdmin() gin.HandlerFunc {
	return RequireRole(domain.RoleAdmin)
}
