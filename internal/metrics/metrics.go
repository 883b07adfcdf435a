// Package metrics exposes Prometheus collectors for the frontier service.
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
	frontierClaimedTotal       *prometheus.CounterVec
	frontierOutcomesTotal      *prometheus.CounterVec
	frontierRegisteredTotal    prometheus.Counter
	frontierSweptTotal         prometheus.Counter
	frontierActiveWorkers      prometheus.Gauge
	frontierRateLimitSeconds   *prometheus.HistogramVec
	searchRequestsTotal        *prometheus.CounterVec
	searchExpansionSize        prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		frontierClaimedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frontier_claimed_total",
				Help: "Total crawl targets claimed, labeled by domain.",
			},
			[]string{"domain"},
		)

		frontierOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frontier_outcomes_total",
				Help: "Total fetch outcomes recorded, labeled by resulting status.",
			},
			[]string{"status"},
		)

		frontierRegisteredTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "frontier_registered_total",
				Help: "Total new URLs registered into the frontier.",
			},
		)

		frontierSweptTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "frontier_sweep_reclaimed_total",
				Help: "Total crawl leases reclaimed by the sweeper.",
			},
		)

		frontierActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "frontier_active_workers",
				Help: "Number of workers currently fetching a claimed target.",
			},
		)

		frontierRateLimitSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "frontier_rate_limit_delays_seconds",
				Help:    "Histogram of per-domain politeness wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		searchRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_requests_total",
				Help: "Total search requests, labeled by result.",
			},
			[]string{"result"},
		)

		searchExpansionSize = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_expansion_size",
				Help:    "Histogram of expanded query set sizes per search.",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
			},
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

// SanitizeDomain sanitizes a URL or hostname to a lowercase hostname
// label. It returns "unknown" if the value is invalid.
func SanitizeDomain(raw string) string {
	if !strings.HasPrefix(raw, "http") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveClaimed counts claimed targets per domain.
func ObserveClaimed(domain string, count int) {
	frontierClaimedTotal.WithLabelValues(SanitizeDomain(domain)).Add(float64(count))
}

// ObserveOutcome counts a recorded outcome by the status it produced.
func ObserveOutcome(status string) {
	frontierOutcomesTotal.WithLabelValues(status).Inc()
}

// ObserveRegistered counts newly registered URLs.
func ObserveRegistered(count int) {
	if count > 0 {
		frontierRegisteredTotal.Add(float64(count))
	}
}

// ObserveSwept counts reclaimed leases.
func ObserveSwept(count int) {
	if count > 0 {
		frontierSweptTotal.Add(float64(count))
	}
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	frontierActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	frontierActiveWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a politeness wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	frontierRateLimitSeconds.WithLabelValues(SanitizeDomain(domain)).Observe(duration.Seconds())
}

// ObserveSearch counts one search request and its expansion fan-out.
func ObserveSearch(result string, expansions int) {
	searchRequestsTotal.WithLabelValues(result).Inc()
	if expansions > 0 {
		searchExpansionSize.Observe(float64(expansions))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
