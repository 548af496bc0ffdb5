package www

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests served.",
		},
		[]string{"route", "method", "status"},
	)
	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	readingsStoredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "priceplan_readings_stored_total",
			Help: "Total number of electricity readings accepted.",
		},
	)
	recommendationsPushedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "priceplan_recommendations_pushed_total",
			Help: "Total number of recommendation updates sent to websocket subscribers.",
		},
	)
)

func observeHTTPRequest(route, method string, status int, dur time.Duration) {
	httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	httpRequestDurationSeconds.WithLabelValues(route, method).Observe(dur.Seconds())
}
