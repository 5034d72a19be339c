package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vinakademin/vinakademin-backend/models"
)

// RequireRoles must run after AuthMiddleware.
func RequireRoles(allowedRoles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := models.UserRole(c.GetString(CtxRole))
		if role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Kunde inte avgöra användarens roll"})
			return
		}
		for _, allowed := range allowedRoles {
			if role == allowed {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Du har inte behörighet till den här resursen"})
	}
}

// RequireStaff allows admins and instructors.
func RequireStaff() gin.HandlerFunc {
	return RequireRoles(models.RoleAdmin, models.RoleInstructor)
}
