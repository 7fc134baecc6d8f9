// Package metrics registers the process-wide Prometheus collectors. They are
// exposed on /metrics through promhttp.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campustrack_http_requests_total",
		Help: "HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "campustrack_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campustrack_verification_decisions_total",
		Help: "Committed verification decisions by kind and outcome.",
	}, []string{"kind", "status"})

	AnalyticsFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campustrack_analytics_recompute_failures_total",
		Help: "Analytics recomputations that failed and were handed to the worker.",
	})

	ScoringFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campustrack_scoring_fallback_total",
		Help: "CV scores served by the heuristic after the primary scorer failed.",
	})

	Uploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campustrack_uploads_total",
		Help: "File uploads by storage backend and outcome.",
	}, []string{"backend", "outcome"})

	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campustrack_submissions_total",
		Help: "Submissions created by kind.",
	}, []string{"kind"})

	QueueMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campustrack_queue_messages_total",
		Help: "Queue messages by type and outcome.",
	}, []string{"type", "outcome"})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campustrack_rate_limited_total",
		Help: "Requests rejected by the rate limiter.",
	})
)

// GinMiddleware records request counts and latency by route template.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}
