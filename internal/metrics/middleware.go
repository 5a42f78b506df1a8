package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const unmatchedRoute = "unmatched"

// RequestMetrics records request counts, in-flight requests and latency per route template.
func RequestMetrics(manager *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if manager == nil {
			c.Next()
			return
		}

		manager.GaugeRequests.Inc()
		begin := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		manager.GaugeRequests.Dec()
		manager.HistRequestDuration.WithLabelValues(route).Observe(time.Since(begin).Seconds())
		manager.CounterRequests.With(
			prometheus.Labels{
				"method": c.Request.Method,
				"route":  route,
				"status": strconv.Itoa(c.Writer.Status()),
			},
		).Inc()
	}
}
