package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Labels stay bounded: path is the registered route, never the raw URL,
// unless no route matched.
var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_http_requests_total",
			Help: "HTTP requests served by the dashboard API.",
		},
		[]string{"method", "path", "status"},
	)

	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dashboard_http_request_duration_seconds",
			Help:    "Duration of dashboard API requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dashboard_http_requests_inflight",
		Help: "Dashboard API requests currently being served.",
	})

	// decisions counts moderator decisions by outcome: sent, failed or replayed.
	decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_decisions_total",
			Help: "Moderator decisions handled by the API.",
		},
		[]string{"decision", "result"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, decisions)
}

// Metrics instruments every request with the counters above. Mount
// promhttp.Handler on /metrics next to it.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		httpReqs.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// ObserveDecision records the outcome of one accept/skip decision.
func ObserveDecision(decision, result string) {
	decisions.WithLabelValues(decision, result).Inc()
}
