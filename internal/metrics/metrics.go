// Package metrics exposes Prometheus collectors for the catalog crawler.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	quakePeriodsTotal           *prometheus.CounterVec
	quakeRowsTotal              *prometheus.CounterVec
	quakeFetchDurationSeconds   *prometheus.HistogramVec
	quakeSnapshotsTotal         *prometheus.CounterVec
	quakeNotificationsTotal     *prometheus.CounterVec
	quakeActiveWorkers          prometheus.Gauge
	quakeRateLimitDelaysSeconds *prometheus.HistogramVec
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		quakePeriodsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quake_periods_total",
				Help: "Total number of backfill periods processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		quakeRowsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quake_rows_total",
				Help: "Total number of extracted rows, labeled by mode and result (parsed or dropped).",
			},
			[]string{"mode", "result"},
		)

		quakeFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quake_fetch_duration_seconds",
				Help:    "Histogram of source fetch latencies, labeled by mode.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"mode"},
		)

		quakeSnapshotsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quake_snapshots_total",
				Help: "Total number of live snapshot requests, labeled by result.",
			},
			[]string{"result"},
		)

		quakeNotificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quake_notifications_total",
				Help: "Total number of shard notifications, labeled by result.",
			},
			[]string{"result"},
		)

		quakeActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "quake_active_workers",
				Help: "Number of backfill workers currently processing a period.",
			},
		)

		quakeRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quake_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeHost extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeHost(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObservePeriod counts one processed backfill period.
func ObservePeriod(outcome string) {
	Init()
	quakePeriodsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRows counts parsed and dropped rows for a fetch.
func ObserveRows(mode string, parsed, dropped int) {
	Init()
	if parsed > 0 {
		quakeRowsTotal.WithLabelValues(mode, "parsed").Add(float64(parsed))
	}
	if dropped > 0 {
		quakeRowsTotal.WithLabelValues(mode, "dropped").Add(float64(dropped))
	}
}

// ObserveFetch records the latency of one source fetch.
func ObserveFetch(mode string, duration time.Duration) {
	Init()
	quakeFetchDurationSeconds.WithLabelValues(mode).Observe(duration.Seconds())
}

// ObserveSnapshot counts one live snapshot request.
func ObserveSnapshot(result string) {
	Init()
	quakeSnapshotsTotal.WithLabelValues(result).Inc()
}

// ObserveNotification counts one shard notification attempt.
func ObserveNotification(result string) {
	Init()
	quakeNotificationsTotal.WithLabelValues(result).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	quakeActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	quakeActiveWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	quakeRateLimitDelaysSeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
