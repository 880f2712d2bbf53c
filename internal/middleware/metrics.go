package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/foodforall-dc/delivery-api/internal/service"
)

const unmatchedRoute = "unmatched"

// Metrics records request count and duration per route template. Requests for the skipped routes
// (typically /metrics itself) are not recorded. Event streams are counted when they close but
// their duration is left out of the latency histogram.
func Metrics(metricsSvc *service.MetricsService, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, route := range skip {
		skipped[route] = struct{}{}
	}
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		route := c.FullPath()
		if _, ok := skipped[route]; ok {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		if route == "" {
			// Unknown routes share one label.
			route = unmatchedRoute
		}
		if strings.HasPrefix(c.Writer.Header().Get("Content-Type"), "text/event-stream") {
			metricsSvc.CountHTTPRequest(c.Request.Method, route, c.Writer.Status())
			return
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
