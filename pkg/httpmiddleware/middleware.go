package httpmiddleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shimonpozd/astra-sub000/internal/models"
	"github.com/shimonpozd/astra-sub000/pkg/logger"
	"github.com/shimonpozd/astra-sub000/pkg/ratelimiter"
)

// TraceIDKey is the context key under which the request trace id is
// stored.
const TraceIDKey = "trace_id"

// RateLimit rejects requests when the process-wide limiter has no
// capacity left. This is the coarse admission gate in front of the
// per-user accounting done by the service layer.
func RateLimit(limiter ratelimiter.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

// RequestLogger assigns each request a trace id and logs method, path,
// status and latency after the handler completes.
func RequestLogger(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader("X-Trace-Id")
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Set(TraceIDKey, traceID)
		c.Header("X-Trace-Id", traceID)

		start := time.Now()
		c.Next()

		log := logger.New(serviceName, traceID, "").WithRequest(models.RequestInfo{
			Method:     c.Request.Method,
			Path:       c.Request.URL.Path,
			RemoteAddr: c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
		}).WithPayload(map[string]interface{}{
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
		})

		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Error("request completed")
		} else {
			log.Info("request completed")
		}
	}
}
