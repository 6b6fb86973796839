// Package metrics defines the Prometheus metrics exported by the
// credential service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Token issuance metrics

	// TokenRequests tracks token requests by protocol version and outcome
	TokenRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scenegrid",
			Subsystem: "token",
			Name:      "requests_total",
			Help:      "Total MQTT token requests",
		},
		[]string{"version", "outcome"}, // outcome: success, denied, invalid, unresolved, upgrade_required, error
	)

	// TokenIssueDuration tracks end-to-end token issuance duration
	TokenIssueDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scenegrid",
			Subsystem: "token",
			Name:      "issue_duration_seconds",
			Help:      "Time to evaluate permissions and sign a token",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"version"},
	)

	// ConferenceTokens tracks tokens issued with conferencing claims
	ConferenceTokens = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scenegrid",
			Subsystem: "token",
			Name:      "conference_total",
			Help:      "Total tokens carrying video conference claims",
		},
	)

	// Permission store metrics

	// PermLookups tracks permission store lookups by kind and result
	PermLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scenegrid",
			Subsystem: "perms",
			Name:      "lookups_total",
			Help:      "Total permission store lookups",
		},
		[]string{"kind", "result"}, // result: hit, miss, error
	)

	// Persistence adapter metrics

	// PersistLookups tracks persisted-object store lookups
	PersistLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scenegrid",
			Subsystem: "persist",
			Name:      "lookups_total",
			Help:      "Total persisted-object store lookups",
		},
		[]string{"query", "result"}, // result: success, degraded
	)

	// PersistBreakerState tracks the persistence circuit breaker state
	// 0 = closed (healthy), 1 = open (tripped), 2 = half-open (testing)
	PersistBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "scenegrid",
			Subsystem: "persist",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
	)

	// HTTP metrics

	// HTTPRequests tracks HTTP requests by route and status
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scenegrid",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests served",
		},
		[]string{"route", "status_code"},
	)

	// HTTPDuration tracks HTTP request duration by route
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scenegrid",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"route"},
	)

	// HTTPRateLimited tracks requests rejected by the rate limiter
	HTTPRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scenegrid",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Total requests rejected by the rate limiter",
		},
	)

	// Scene maintenance metrics

	// SceneMutations tracks scene permission record changes
	SceneMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scenegrid",
			Subsystem: "scenes",
			Name:      "mutations_total",
			Help:      "Total scene permission record mutations",
		},
		[]string{"op", "result"}, // op: create, update, delete
	)
)

// Circuit breaker state values for PersistBreakerState
const (
	BreakerClosed   = 0
	BreakerOpen     = 1
	BreakerHalfOpen = 2
)
