// Package metrics exposes Prometheus collectors for the crawler.
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
	fetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_fetch_attempts_total",
			Help: "Total number of page fetch attempts, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	rateLimitHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_rate_limit_hits_total",
		Help: "The total number of times the crawler was rate limited.",
	})

	directoryPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_directory_pages_total",
			Help: "Directory pages walked during discovery, labeled by status.",
		},
		[]string{"status"},
	)

	urlsDiscoveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_urls_discovered_total",
		Help: "Record URLs newly added to the pending set.",
	})

	recordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_records_total",
			Help: "Record pages processed during extraction, labeled by status.",
		},
		[]string{"status"},
	)

	checkpointSavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_checkpoint_saves_total",
			Help: "Checkpoint and record collection writes, labeled by file and result.",
		},
		[]string{"file", "result"},
	)

	inFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crawler_in_flight_fetches",
		Help: "Record fetches currently holding a concurrency slot.",
	})

	pendingURLs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crawler_pending_urls",
		Help: "URLs discovered but not yet extracted.",
	})

	rateLimitDelaySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crawler_rate_limit_delays_seconds",
		Help:    "Histogram of request rate limiter wait durations.",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_status_http_requests_total",
			Help: "Requests served by the status server, labeled by method, route and code.",
		},
		[]string{"method", "route", "code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crawler_status_http_request_duration_seconds",
			Help:    "Latency of status server requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetchAttempt counts a single fetch attempt.
func ObserveFetchAttempt(outcome string) {
	fetchAttemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRateLimitHit counts an HTTP 429 response.
func ObserveRateLimitHit() {
	rateLimitHitsTotal.Inc()
}

// ObserveDirectoryPage counts a walked directory page.
func ObserveDirectoryPage(status string) {
	directoryPagesTotal.WithLabelValues(status).Inc()
}

// AddDiscovered counts newly discovered record URLs.
func AddDiscovered(n int) {
	if n > 0 {
		urlsDiscoveredTotal.Add(float64(n))
	}
}

// ObserveRecord counts a processed record URL.
func ObserveRecord(status string) {
	recordsTotal.WithLabelValues(status).Inc()
}

// ObserveSave counts a persistence attempt.
func ObserveSave(file string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	checkpointSavesTotal.WithLabelValues(file, result).Inc()
}

// IncInFlight increments the in-flight gauge.
func IncInFlight() {
	inFlight.Inc()
}

// DecInFlight decrements the in-flight gauge.
func DecInFlight() {
	inFlight.Dec()
}

// SetPending records the current pending URL count.
func SetPending(n int) {
	pendingURLs.Set(float64(n))
}

// ObserveRateLimitDelay records the seconds spent waiting on the request limiter.
func ObserveRateLimitDelay(seconds float64) {
	rateLimitDelaySeconds.Observe(seconds)
}

// ObserveHTTPRequest records one status server request.
func ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
