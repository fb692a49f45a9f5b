// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NotificationsQueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_queued_total",
			Help: "Total number of notifications accepted into the queue",
		},
		[]string{"channel"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total number of notifications handed off to a provider",
		},
		[]string{"channel"},
	)

	NotificationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Total number of notifications that exhausted retries",
		},
		[]string{"channel", "error_code"},
	)

	NotificationsExpired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_expired_total",
			Help: "Total number of notifications expired before delivery",
		},
		[]string{"channel"},
	)

	NotificationRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_retries_total",
			Help: "Total number of delivery retries scheduled",
		},
		[]string{"channel"},
	)

	PreferenceBlocks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_preference_blocks_total",
			Help: "Total number of notifications blocked by recipient preferences",
		},
		[]string{"channel", "reason"},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notification_queue_depth",
			Help: "Number of pending queue items per channel",
		},
		[]string{"channel"},
	)

	ProviderSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "notification_provider_send_duration_seconds",
			Help: "Duration of provider send calls in seconds",
		},
		[]string{"channel"},
	)

	CircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notification_circuit_state",
			Help: "Circuit breaker state per channel (0=closed, 1=half-open, 2=open)",
		},
		[]string{"channel"},
	)
)
