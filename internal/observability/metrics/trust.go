package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_sent_total",
			Help: "Total number of stored messages by consent outcome",
		},
		[]string{"consent"},
	)

	MessagesRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_rejected_total",
			Help: "Total number of refused sends by error code",
		},
		[]string{"code"},
	)

	MessageDuplicatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "message_duplicates_total",
			Help: "Total number of idempotent resubmissions answered from storage",
		},
	)

	SignatureVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signature_verifications_total",
			Help: "Total number of signature verifications by policy and reason",
		},
		[]string{"policy", "reason"},
	)

	ConsentTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consent_transitions_total",
			Help: "Total number of consent state transitions",
		},
		[]string{"from_state", "to_state", "trigger"},
	)

	RotationAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rotation_attempts_total",
			Help: "Total number of key rotation attempts by outcome",
		},
		[]string{"result", "reason"},
	)

	TTLStoreCleanupDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ttl_store_cleanup_deleted_total",
			Help: "Total number of expired TTL entries removed by the cleanup job",
		},
		[]string{"store"},
	)

	RealtimeConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_connections_active",
			Help: "Number of active realtime websocket connections",
		},
	)

	RealtimeDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_deliveries_total",
			Help: "Total number of realtime pushes by type and result",
		},
		[]string{"type", "result"},
	)

	RealtimeDisconnections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_disconnections_total",
			Help: "Total number of realtime disconnections",
		},
		[]string{"reason"},
	)
)
