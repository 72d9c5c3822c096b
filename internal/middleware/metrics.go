package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/guidancehub/referral-api/internal/service"
)

// Metrics records latency and count per route. The route template is
// used as the path label so /referrals/:id stays one series.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" || path == "/metrics" {
			return
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
