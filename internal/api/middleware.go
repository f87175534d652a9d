package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"tastebud/internal/auth"
	"tastebud/internal/platform/logger"
)

const userIDKey = "user_id"

// TokenValidator checks bearer tokens.
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.Claims, error)
}

// RequireAuth accepts "Authorization: Bearer <jwt>" and stores the token's
// user id in the gin context.
func RequireAuth(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing bearer token"})
			return
		}

		claims, err := tokens.ValidateToken(strings.TrimSpace(token))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		c.Set(userIDKey, claims.UserID)
		c.Next()
	}
}

// RequestLogger logs one line per request through zap.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		kv := []interface{}{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
		}
		if userID := c.GetString(userIDKey); userID != "" {
			kv = append(kv, "user_id", userID)
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			log.Error("request", kv...)
		case c.Writer.Status() >= http.StatusBadRequest:
			log.Warn("request", kv...)
		default:
			log.Debug("request", kv...)
		}
	}
}
