package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"pr-reaction-bridge/internal/log"
)

// LoggingMiddleware adds trace IDs and structured logging to requests.
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := traceIDFromRequest(c)

		c.Set(string(log.TraceIDKey), traceID)
		c.Header("X-Trace-ID", traceID)
		c.Request = c.Request.WithContext(log.WithTraceID(c.Request.Context(), traceID))

		startTime := time.Now()
		logger := log.WithContext(c)
		logger.Debug("Request started",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"user_agent", c.Request.UserAgent(),
			"remote_addr", c.ClientIP(),
		)

		c.Next()

		// Handlers may have attached fields to the request context.
		log.WithContext(c).Info("Request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_seconds", time.Since(startTime).Seconds(),
		)
	}
}

// traceIDFromRequest prefers the Cloud Run trace header ("TRACE_ID/SPAN_ID;o=1"), then
// X-Trace-ID, and generates one otherwise.
func traceIDFromRequest(c *gin.Context) string {
	if header := c.GetHeader("X-Cloud-Trace-Context"); header != "" {
		if traceID, _, found := strings.Cut(header, "/"); found {
			return traceID
		}
		return header
	}
	if traceID := c.GetHeader("X-Trace-ID"); traceID != "" {
		return traceID
	}
	return uuid.New().String()
}
