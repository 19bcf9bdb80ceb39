// Package middleware provides the HTTP middleware chain: correlation
// IDs, structured request logging, and panic recovery.
package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lablink/lablink/internal/telemetry"
)

// CorrelationIDHeader is the request/response header carrying the
// correlation ID.
const CorrelationIDHeader = "X-Correlation-ID"

// CorrelationID propagates the caller's correlation ID, generating one
// when absent, and echoes it on the response.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(CorrelationIDHeader)
		if correlationID == "" {
			correlationID = telemetry.NewCorrelationID()
		}

		ctx := telemetry.WithCorrelationID(c.Request.Context(), correlationID)
		c.Request = c.Request.WithContext(ctx)
		c.Header(CorrelationIDHeader, correlationID)

		c.Next()
	}
}

// RequestLogging logs one structured line per request with method,
// path, status, and duration.
func RequestLogging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger := telemetry.LogFromContext(c.Request.Context()).WithFields(map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"client_ip":   c.ClientIP(),
		})

		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error("Request failed")
		} else {
			logger.Info("Request completed")
		}
	}
}

// Recovery converts handler panics into a 500 response instead of
// tearing down the connection.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				telemetry.LogFromContext(c.Request.Context()).WithFields(map[string]interface{}{
					"panic_value": fmt.Sprintf("%v", r),
					"stack_trace": string(debug.Stack()),
				}).Error("Panic recovered in handler")

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Internal server error",
				})
			}
		}()

		c.Next()
	}
}
