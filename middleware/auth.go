package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vinakademin/vinakademin-backend/config"
	"github.com/vinakademin/vinakademin-backend/models"
	"github.com/vinakademin/vinakademin-backend/utils"
)

// Context keys set by the auth middlewares.
const (
	CtxUserID = "user_id"
	CtxRole   = "role"
	CtxClaims = "claims"
)

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	// iOS clients send X-Auth-Token
	if authHeader == "" {
		authHeader = c.GetHeader("X-Auth-Token")
	}
	if authHeader == "" {
		return "", false
	}
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// AuthMiddleware requires a valid user token and an active account.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Saknar eller ogiltig Authorization-header"})
			return
		}

		claims, err := utils.VerifyToken(token)
		if err != nil || claims.IsParticipantToken() || claims.UserID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Ogiltig eller utgången token"})
			return
		}

		var user models.User
		if err := config.DB.Select("id", "role", "active").First(&user, "id = ?", claims.UserID).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Användaren hittades inte"})
			return
		}
		if !user.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Kontot är spärrat"})
			return
		}

		// the role in the database wins over the one in an older token
		c.Set(CtxUserID, user.ID.String())
		c.Set(CtxRole, string(user.Role))
		c.Set(CtxClaims, claims)
		c.Next()
	}
}

// OptionalAuthMiddleware identifies the caller when a valid token is sent
// and lets anonymous requests through otherwise. Participant tokens are
// exposed through CtxClaims only.
func OptionalAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.Next()
			return
		}
		claims, err := utils.VerifyToken(token)
		if err != nil {
			c.Next()
			return
		}
		c.Set(CtxClaims, claims)
		if claims.IsParticipantToken() || claims.UserID == "" {
			c.Next()
			return
		}

		var user models.User
		if err := config.DB.Select("id", "role", "active").First(&user, "id = ?", claims.UserID).Error; err == nil && user.Active {
			c.Set(CtxUserID, user.ID.String())
			c.Set(CtxRole, string(user.Role))
		}
		c.Next()
	}
}

// ClaimsFrom returns the verified token claims, if any.
func ClaimsFrom(c *gin.Context) *utils.Claims {
	v, ok := c.Get(CtxClaims)
	if !ok {
		return nil
	}
	claims, _ := v.(*utils.Claims)
	return claims
}
