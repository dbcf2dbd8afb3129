package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/foodlens/quotagate/internal/logging"
	"github.com/foodlens/quotagate/internal/metrics"
)

// RequestIDKey is the gin context key carrying the request ID.
const RequestIDKey = "request_id"

// Logger middleware assigns each request an ID, logs it and records
// HTTP metrics.
func Logger(log *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(RequestIDKey, requestID)
		c.Header("X-Request-ID", requestID)

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		log.WithRequestID(requestID).
			LogHTTPRequest(c.Request.Method, path, c.ClientIP(), status, latency)

		metrics.RecordHTTPRequest(c.Request.Method, c.FullPath(), strconv.Itoa(status), latency.Seconds())
	}
}
