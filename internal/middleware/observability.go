package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"resale/internal/monitor"
)

// TraceIDHeader echoes the trace id of the request span
const TraceIDHeader = "X-Trace-ID"

// Tracing opens a server span per request and propagates it through the
// request context.
func Tracing(tracer *monitor.Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.StartHTTPSpan(c.Request.Context(), routeOf(c), c.Request)
		c.Request = c.Request.WithContext(ctx)
		if id := monitor.TraceID(ctx); id != "" {
			c.Header(TraceIDHeader, id)
		}

		c.Next()

		for _, e := range c.Errors {
			tracer.RecordError(span, e.Err)
		}
		tracer.EndHTTPSpan(span, c.Writer.Status())
	}
}

// Metrics records method, route, status and latency of every request
func Metrics(mc *monitor.MetricsCollector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		mc.RecordHTTPRequest(c.Request.Method, routeOf(c), c.Writer.Status(), time.Since(start), c.Writer.Size())
	}
}

// routeOf uses the route template so ids do not explode label cardinality
func routeOf(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unmatched"
}
