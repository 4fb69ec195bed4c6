package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// requestLogger logs one slog record per request.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"remote_addr", c.ClientIP(),
		}
		switch {
		case c.Writer.Status() >= 500:
			logger.Error("HTTP request", append(attrs, "error", c.Errors.String())...)
		case c.Writer.Status() >= 400:
			logger.Warn("HTTP request", append(attrs, "error", c.Errors.String())...)
		default:
			logger.Info("HTTP request", attrs...)
		}
	}
}
