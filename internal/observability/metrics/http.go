package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TrustRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trust_requests_total",
			Help: "Total number of trust API requests",
		},
		[]string{"method", "path"},
	)

	TrustRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trust_requests_in_flight",
			Help: "Number of trust API requests currently being processed",
		},
	)

	TrustRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trust_request_duration_seconds",
			Help:    "Duration of trust API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	SessionTokensIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_tokens_issued_total",
			Help: "Total number of session tokens issued by origin",
		},
		[]string{"origin"},
	)

	JWTValidationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jwt_validations_total",
			Help: "Total number of JWT validations",
		},
	)

	JWTValidationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jwt_validations_failed_total",
			Help: "Total number of failed JWT validations by reason",
		},
		[]string{"reason"},
	)
)
