package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"referral-engine/internal/logging"
)

const (
	contextAccountID = "account_id"
	contextEmail     = "email"
)

// AuthMiddleware validates JWT tokens and protects routes
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")

		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
			})
			return
		}

		// Extract token from "Bearer <token>" format
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid authorization header format. Expected: Bearer <token>",
			})
			return
		}

		claims, err := ValidateToken(parts[1])
		if err != nil {
			logging.Logger.Debug("token validation failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}

		c.Set(contextAccountID, claims.AccountID)
		c.Set(contextEmail, claims.Email)

		c.Next()
	}
}

// GetAccountID retrieves the account ID from the context
func GetAccountID(c *gin.Context) (uint, bool) {
	accountID, exists := c.Get(contextAccountID)
	if !exists {
		return 0, false
	}

	id, ok := accountID.(uint)
	return id, ok
}

// GetEmail retrieves the token email from the context
func GetEmail(c *gin.Context) (string, bool) {
	email, exists := c.Get(contextEmail)
	if !exists {
		return "", false
	}

	value, ok := email.(string)
	return value, ok
}
