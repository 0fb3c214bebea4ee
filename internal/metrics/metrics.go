// Package metrics exposes the relay server's plain-HTTP metrics
// handler (spec.md §4.9: "counters for blobs_stored, sends, rejections,
// active_connections ... not part of the wire protocol"), grounded on
// the teacher's promauto Counter/CounterVec/Gauge/Histogram pattern and
// its MetricsMiddleware/Handler shape.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal and HTTPRequestDuration cover the relay's own
	// plain endpoints (/health, /metrics); the /ws endpoint is
	// upgraded before MetricsMiddleware would observe a response code,
	// so its traffic is counted separately via the VauchiRelay* metrics
	// below.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vauchi_http_requests_total",
			Help: "Total number of HTTP requests to the relay's plain endpoints",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vauchi_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Relay server metrics (spec.md §4.9: "Counters for blobs_stored,
	// sends, rejections, active_connections exposed via a plain HTTP
	// handler; not part of the wire protocol").
	VauchiRelayBlobsStoredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vauchi_relay_blobs_stored_total",
			Help: "Total number of envelopes queued to the blob store for an offline recipient",
		},
	)

	VauchiRelaySendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vauchi_relay_sends_total",
			Help: "Total number of envelopes routed, by delivery path",
		},
		[]string{"path"}, // local, queued, fanout_error
	)

	VauchiRelayRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vauchi_relay_rejections_total",
			Help: "Total number of connections or sends rejected",
		},
		[]string{"reason"}, // rate_limit, connection_limit
	)

	VauchiRelayActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vauchi_relay_active_connections",
			Help: "Current number of live relay connections on this instance",
		},
	)
)

// MetricsMiddleware wraps HTTP handlers with request count/latency
// metrics.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: 200}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := r.URL.Path

		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Handler returns the Prometheus metrics handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
