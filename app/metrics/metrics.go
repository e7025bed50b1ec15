// Package metrics holds the Prometheus collectors for campaign delivery,
// webhook intake and the background task queue.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whatsapp_messages_sent_total",
			Help: "Outbound template messages by provider outcome",
		},
		[]string{"result"},
	)

	providerLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "whatsapp_provider_request_duration_seconds",
			Help:    "WhatsApp Cloud API call latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	webhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whatsapp_webhook_events_total",
			Help: "Webhook status events by type and processing outcome",
		},
		[]string{"event_type", "outcome"},
	)

	queueTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_tasks_total",
			Help: "Background tasks handled by kind and result",
		},
		[]string{"kind", "result"},
	)

	queueTaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_task_duration_seconds",
			Help:    "Background task handling time",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	campaignTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_status_transitions_total",
			Help: "Campaign lifecycle transitions by target status",
		},
		[]string{"status"},
	)
)

func MessageSent(result string) {
	messagesSent.WithLabelValues(result).Inc()
}

func ProviderRequest(operation string, started time.Time) {
	providerLatency.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

func WebhookEvent(eventType, outcome string) {
	webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func QueueTask(kind, result string, started time.Time) {
	queueTasks.WithLabelValues(kind, result).Inc()
	queueTaskDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

func CampaignTransition(status string) {
	campaignTransitions.WithLabelValues(status).Inc()
}
