package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"qrtrack/internal/metrics"
)

// Metrics records request counts and latency per route pattern.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		metrics.APIRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		metrics.APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
