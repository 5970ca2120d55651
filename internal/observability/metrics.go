package observability

import "github.com/prometheus/client_golang/prometheus"

// Pipeline metrics shared by the gateway components. Label values are fixed
// small sets so cardinality stays bounded.
var (
	// UpdatesTotal counts inbound webhook updates by intake outcome:
	// accepted, invalid, duplicate, history_duplicate.
	UpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_updates_total",
			Help: "Inbound Telegram updates by intake outcome.",
		},
		[]string{"result"},
	)

	// LateOutcomesTotal counts updates already counted as accepted that the
	// background task ended early: unresolved, history_duplicate.
	LateOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_late_outcomes_total",
			Help: "Deferred updates stopped in the background by outcome.",
		},
		[]string{"result"},
	)

	// RetryEnqueuedTotal counts interactions appended to the retry file.
	RetryEnqueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "retry_enqueued_total",
			Help: "Failed User Service writes appended to the retry queue.",
		},
	)

	// RetryFlushTotal counts retry lines processed by flushes:
	// replayed, failed, corrupt, skipped (unknown type).
	RetryFlushTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_flush_items_total",
			Help: "Retry queue lines processed during flushes by result.",
		},
		[]string{"result"},
	)

	// BackgroundTasksTotal counts worker pool tasks: ok, error, panic, rejected.
	BackgroundTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "background_tasks_total",
			Help: "Background tasks by outcome.",
		},
		[]string{"result"},
	)

	// UpstreamCallsTotal counts outbound calls by service, operation and outcome (ok, error).
	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_calls_total",
			Help: "Outbound calls to the User Service, Agent Service and Telegram.",
		},
		[]string{"service", "op", "outcome"},
	)

	// RateLimitedTotal counts admin requests rejected by the rate limiter.
	RateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "admin_rate_limited_total",
			Help: "Admin API requests rejected with 429.",
		},
	)

	// DeliveriesTotal counts reply deliveries by status (sent, failed).
	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_deliveries_total",
			Help: "Replies delivered to Telegram by status.",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		UpdatesTotal,
		LateOutcomesTotal,
		RetryEnqueuedTotal,
		RetryFlushTotal,
		BackgroundTasksTotal,
		UpstreamCallsTotal,
		RateLimitedTotal,
		DeliveriesTotal,
	)
}

// ObserveCall records the outcome of one outbound call.
func ObserveCall(service, op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	UpstreamCallsTotal.WithLabelValues(service, op, outcome).Inc()
}
