package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// healthTimeout bounds the store health check behind /health.
const healthTimeout = 3 * time.Second

// HealthChecker is implemented by the retrieval service and the stores.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// healthHandler reports 200 when the store answers and 503 otherwise.
func healthHandler(checker HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		response := HealthResponse{Timestamp: time.Now().UTC().Format(time.RFC3339)}
		if err := checker.Health(ctx); err != nil {
			_ = c.Error(err)
			response.Status = "unavailable"
			response.Store = "disconnected"
			c.JSON(http.StatusServiceUnavailable, response)
			return
		}

		response.Status = "ok"
		response.Store = "connected"
		c.JSON(http.StatusOK, response)
	}
}
