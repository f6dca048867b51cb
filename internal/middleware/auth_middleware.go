package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ArowuTest/telegram-marketing-backend/internal/observability"
	"github.com/ArowuTest/telegram-marketing-backend/pkg/jwt"
	"github.com/gin-gonic/gin"
	gojwt "github.com/golang-jwt/jwt/v5"
)

// Context keys set for authenticated requests
const (
	ContextAdminID    = "adminID"
	ContextAdminEmail = "adminEmail"
	ContextAdminRole  = "adminRole"
)

// JWTAuthMiddleware creates a gin middleware for admin JWT authentication.
func JWTAuthMiddleware(tokens *jwt.TokenService, logger *observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const bearerSchema = "Bearer "
		ctx := c.Request.Context()

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			return
		}
		if !strings.HasPrefix(authHeader, bearerSchema) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header must start with Bearer "})
			return
		}

		claims, err := tokens.Parse(strings.TrimSpace(authHeader[len(bearerSchema):]))
		if err != nil {
			logger.Warn(ctx, fmt.Sprintf("token rejected: %v", err))
			if errors.Is(err, gojwt.ErrTokenExpired) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token has expired"})
			} else {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			}
			return
		}

		c.Set(ContextAdminID, claims.Subject)
		c.Set(ContextAdminEmail, claims.Email)
		c.Set(ContextAdminRole, claims.Role)
		c.Request = c.Request.WithContext(observability.WithFields(ctx, observability.Field{Key: "admin_id", Value: claims.Subject}))
		c.Next()
	}
}

// RequireRole rejects authenticated admins whose role is not in roles
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ContextAdminRole)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
	}
}
