package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HttpRequestsTotal counts HTTP requests served by the web server.
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of http requests handled by the service.",
		},
		[]string{"path", "method", "code"},
	)

	// QueriesSubmittedTotal counts queries received from client sessions.
	QueriesSubmittedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broker_queries_submitted_total",
			Help: "Total number of queries submitted by client sessions.",
		},
	)

	// DispatchesTotal counts tasks handed to workers.
	DispatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broker_dispatches_total",
			Help: "Total number of tasks dispatched to workers.",
		},
	)

	// DeliveryFailuresTotal counts task deliveries the transport refused.
	DeliveryFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broker_delivery_failures_total",
			Help: "Total number of task deliveries that failed at the transport.",
		},
	)

	// CompletionsTotal counts completion callbacks by outcome (delivered/dropped).
	CompletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_completions_total",
			Help: "Total number of completion callbacks processed.",
		},
		[]string{"outcome"},
	)

	// DiagnosticsTotal counts tolerated anomalies by kind.
	DiagnosticsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_diagnostics_total",
			Help: "Total number of diagnostics reported, by kind.",
		},
		[]string{"kind"},
	)

	// QueueLength is the number of tasks waiting for a worker.
	QueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broker_queue_length",
			Help: "Number of tasks waiting for an idle worker.",
		},
	)

	// ActiveAssignments is the number of dispatched tasks awaiting completion.
	ActiveAssignments = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broker_active_assignments",
			Help: "Number of dispatched tasks awaiting a completion callback.",
		},
	)

	// StaleAssignments is the number of assignments older than the audit threshold.
	StaleAssignments = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broker_stale_assignments",
			Help: "Number of active assignments older than the abandoned-task threshold.",
		},
	)

	// Workers is the number of registered workers by status.
	Workers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "broker_workers",
			Help: "Number of registered workers, by status.",
		},
		[]string{"status"},
	)

	// OpenSessions is the number of connected client sessions.
	OpenSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broker_open_sessions",
			Help: "Number of connected client sessions.",
		},
	)

	// CredentialPoolSize is the number of usable upstream credentials.
	CredentialPoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broker_credential_pool_size",
			Help: "Number of enabled upstream credentials in the pool.",
		},
	)

	// CredentialSelectionsTotal counts how often each credential was handed out.
	CredentialSelectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_credential_selections_total",
			Help: "Total number of times each credential was selected for a task.",
		},
		[]string{"credential_id"},
	)

	// TaskExecutionTotal counts task executions inside a worker, by status (success/failed).
	TaskExecutionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_task_executions_total",
			Help: "Total number of tasks executed by this worker.",
		},
		[]string{"executor", "status"},
	)
)
