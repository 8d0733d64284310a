package pushapi

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// apiReqs counts push API calls by operation and outcome. The status label
	// is the HTTP code, or "error" when no response was received.
	apiReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_api_requests_total",
			Help: "Total number of push API requests.",
		},
		[]string{"op", "status"},
	)

	apiLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "push_api_request_duration_seconds",
			Help:    "Duration of push API requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// apiPages counts feed pages merged into an accumulator.
	apiPages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "push_api_pages_total",
			Help: "Total number of push feed pages fetched and merged.",
		},
	)
)

func init() {
	prometheus.MustRegister(apiReqs, apiLat, apiPages)
}
