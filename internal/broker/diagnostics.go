package broker

import (
	"context"
	"fmt"
	"log/slog"

	"query-broker/internal/domain"
	"query-broker/internal/metrics"
)

// DiagnosticReporter turns tolerated anomalies into log lines, metrics and event-stream
// messages.
type DiagnosticReporter struct {
	logger *slog.Logger
	events domain.EventPublisher
}

// NewDiagnosticReporter creates a reporter. events may be nil.
func NewDiagnosticReporter(events domain.EventPublisher, logger *slog.Logger) *DiagnosticReporter {
	return &DiagnosticReporter{
		logger: logger.With("component", "diagnostics"),
		events: events,
	}
}

// Report records one diagnostic.
func (r *DiagnosticReporter) Report(ctx context.Context, d domain.Diagnostic) {
	metrics.DiagnosticsTotal.WithLabelValues(string(d.Kind)).Inc()
	r.logger.Warn("broker diagnostic",
		"kind", string(d.Kind),
		"worker_id", d.WorkerID,
		"session_id", d.SessionID,
		"detail", d.Detail,
	)
	if r.events != nil {
		r.events.PublishEvent(ctx, fmt.Sprintf("diagnostic %s: %s", d.Kind, d.Detail))
	}
}
