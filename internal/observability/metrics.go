package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wirekit",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"app", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wirekit",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"app", "method", "path", "status"},
	)

	decodedRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wirekit",
			Subsystem: "decode",
			Name:      "records_total",
			Help:      "Records decoded from capture input.",
		},
		[]string{"source", "link"},
	)
	decodedBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wirekit",
			Subsystem: "decode",
			Name:      "bytes_total",
			Help:      "Captured bytes decoded.",
		},
		[]string{"source"},
	)
	decodeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wirekit",
			Subsystem: "decode",
			Name:      "failures_total",
			Help:      "Decode failures by stage.",
		},
		[]string{"source", "stage"},
	)
	decodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wirekit",
			Subsystem: "decode",
			Name:      "record_duration_seconds",
			Help:      "Time spent decoding one record.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		},
		[]string{"source"},
	)
	encodedRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wirekit",
			Subsystem: "output",
			Name:      "records_total",
			Help:      "Records written by output format.",
		},
		[]string{"format"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, decodedRecords, decodedBytes, decodeFailures, decodeDuration, encodedRecords)
	})
}

func RecordHTTPRequest(app, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(app, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(app, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordDecoded(source, link string, size int, duration time.Duration) {
	RegisterMetrics()
	decodedRecords.WithLabelValues(source, link).Inc()
	decodedBytes.WithLabelValues(source).Add(float64(size))
	decodeDuration.WithLabelValues(source).Observe(duration.Seconds())
}

func RecordDecodeFailure(source, stage string) {
	RegisterMetrics()
	decodeFailures.WithLabelValues(source, stage).Inc()
}

func RecordEncoded(format string) {
	RegisterMetrics()
	encodedRecords.WithLabelValues(format).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}
