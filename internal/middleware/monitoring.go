package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"autoreply/backend/internal/monitoring"
)

// HTTPMetrics HTTP 指标中间件；metrics 为 nil 时直接放行
func HTTPMetrics(metrics *monitoring.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metrics == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.RecordHTTPRequest(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
			time.Since(start),
		)
	}
}
