// Package observability wires tracing and the pipeline's Prometheus
// collectors.
//
// Label values are drawn from small closed sets (interaction kind, outcome,
// channel, queue name) so cardinality stays bounded.
package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	// WebhookRequests counts webhook requests by result
	// (queued|ping|unauthorized|bad_request|error).
	WebhookRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pollcord_webhook_requests_total",
			Help: "Interaction webhook requests by result.",
		},
		[]string{"result"},
	)

	// Interactions counts processed interactions by kind (command|component)
	// and outcome (ok|rejected|expired|unhandled|error|duplicate|dropped).
	Interactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pollcord_interactions_total",
			Help: "Interactions processed by the worker.",
		},
		[]string{"kind", "outcome"},
	)

	// CardSyncs counts card sync runs by outcome
	// (unchanged|created|edited|deleted|pending|skipped).
	CardSyncs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pollcord_card_sync_total",
			Help: "Poll card synchronizations by outcome.",
		},
		[]string{"outcome"},
	)

	// Notifications counts per-channel deliveries (in_app|email|chat) by
	// outcome (ok|skipped|error, plus queued for mail put on the outbox).
	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pollcord_notifications_total",
			Help: "Notification deliveries by channel and outcome.",
		},
		[]string{"channel", "outcome"},
	)

	// QueueTasks counts queue task executions by queue and outcome
	// (ok|retry|dead).
	QueueTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pollcord_queue_tasks_total",
			Help: "Queue task executions by queue and outcome.",
		},
		[]string{"queue", "outcome"},
	)

	// QueueLatency observes how late a task started relative to its due time.
	QueueLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pollcord_queue_start_delay_seconds",
			Help:    "Delay between a task becoming due and a worker claiming it.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"queue"},
	)
)

func init() {
	prometheus.MustRegister(WebhookRequests, Interactions, CardSyncs, Notifications, QueueTasks, QueueLatency)
}
