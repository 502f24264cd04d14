package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"pr-reaction-bridge/internal/log"
	"pr-reaction-bridge/internal/models"
)

// APIKeyHeader carries the admin key for the read endpoints.
const APIKeyHeader = "X-API-Key"

// APIKeyAuth rejects requests whose X-API-Key does not match key.
// An empty key disables the check.
func APIKeyAuth(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		provided := c.GetHeader(APIKeyHeader)
		if provided == "" {
			log.Warn(ctx, "Missing API key for admin request", "path", c.Request.URL.Path)
			abortWithError(c, http.StatusUnauthorized, "authentication required")
			return
		}

		if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
			log.Warn(ctx, "Invalid API key for admin request", "path", c.Request.URL.Path)
			abortWithError(c, http.StatusUnauthorized, "authentication failed")
			return
		}

		c.Next()
	}
}

func abortWithError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, models.APIError{Message: message, StatusCode: status})
}
