package middlewares

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/janhq/persona-sim/pkg/observability/middleware"
	"github.com/janhq/persona-sim/services/simulation-api/internal/infrastructure/metrics"
)

// MetricsMiddleware records Prometheus request metrics per route template.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		metrics.RecordRequest(
			c.Request.Method,
			middleware.Route(c),
			strconv.Itoa(c.Writer.Status()),
			time.Since(start).Seconds(),
		)
	}
}
