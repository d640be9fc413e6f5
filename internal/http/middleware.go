package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/tokenmeter/tokenmeter/internal/security"

	"github.com/gin-gonic/gin"
)

// AdminAuthMiddleware validates the admin bearer token and injects the
// admin identity into the request context.
func AdminAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		token := header
		if idx := strings.Index(header, " "); idx >= 0 && strings.EqualFold(header[:idx], "bearer") {
			token = strings.TrimSpace(header[idx+1:])
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		claims, errParse := security.ParseAdminToken(secret, token)
		if errParse != nil {
			if errors.Is(errParse, security.ErrExpiredToken) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token expired"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("adminID", claims.AdminID)
		c.Set("adminUsername", claims.Username)
		c.Next()
	}
}
