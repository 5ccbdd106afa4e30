package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/casemind/internal/infrastructure/monitoring/prometheus"
)

// unmatchedRoute labels requests that hit no route, keeping path cardinality
// bounded.
const unmatchedRoute = "unmatched"

// Metrics records request counts, latency and sizes labelled by the route
// template rather than the raw path.
func Metrics(m *prometheus.AppMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		active := m.HTTPActiveRequests.WithLabelValues(c.Request.Method, route)
		active.Inc()
		start := time.Now()
		defer active.Dec()

		c.Next()

		prometheus.RecordHTTPRequest(m, c.Request.Method, route, c.Writer.Status(),
			time.Since(start), c.Request.ContentLength, int64(max(c.Writer.Size(), 0)))
	}
}

//Personal.AI order the ending
