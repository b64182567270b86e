// Package metrics holds the Prometheus collectors for the game core and
// the HTTP surface.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	Operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hexidle_operations_total",
			Help: "Core operations by name and outcome",
		},
		[]string{"op", "outcome"},
	)
	OperationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hexidle_operation_seconds",
			Help:    "Core operation latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
	SettledSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hexidle_settled_elapsed_seconds",
			Help:    "Elapsed time credited per settlement, after the offline cap",
			Buckets: []float64{1, 10, 60, 600, 3600, 6 * 3600, 24 * 3600},
		},
	)
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hexidle_http_requests_total",
			Help: "HTTP requests by route pattern and status",
		},
		[]string{"route", "status"},
	)
	HTTPSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hexidle_http_request_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hexidle_rate_limited_total",
			Help: "Requests rejected by the per-player rate limiter",
		},
		[]string{"route"},
	)
	FeedClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hexidle_feed_clients",
			Help: "Connected map feed subscribers",
		},
	)
	LeaderboardCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hexidle_leaderboard_cache_total",
			Help: "Leaderboard cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(Operations)
	prometheus.MustRegister(OperationSeconds)
	prometheus.MustRegister(SettledSeconds)
	prometheus.MustRegister(HTTPRequests)
	prometheus.MustRegister(HTTPSeconds)
	prometheus.MustRegister(RateLimited)
	prometheus.MustRegister(FeedClients)
	prometheus.MustRegister(LeaderboardCache)
}

// Observer feeds game service outcomes into the collectors.
type Observer struct{}

func (Observer) ObserveOperation(op, outcome string, seconds float64) {
	Operations.WithLabelValues(op, outcome).Inc()
	OperationSeconds.WithLabelValues(op).Observe(seconds)
}

func (Observer) ObserveSettle(elapsedSeconds float64) {
	SettledSeconds.Observe(elapsedSeconds)
}

// ObserveHTTP records one finished request. route should be the router
// pattern, not the raw path, to keep label cardinality bounded.
func ObserveHTTP(route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	HTTPSeconds.WithLabelValues(route).Observe(elapsed.Seconds())
}
