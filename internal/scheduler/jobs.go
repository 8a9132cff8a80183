package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"query-broker/internal/domain"
	"query-broker/internal/metrics"
)

// Job names.
const (
	CredentialReloadJob   = "credential-reload"
	AbandonedTaskAuditJob = "abandoned-task-audit"
)

// CredentialReloader refreshes the credential pool from its source.
type CredentialReloader interface {
	Reload(ctx context.Context) error
}

// CredentialReload returns a job that reloads credentials. Failures keep the old pool.
func CredentialReload(r CredentialReloader) JobFunc {
	return r.Reload
}

// AssignmentSource lists assignments older than a threshold.
type AssignmentSource interface {
	StaleAssignments(olderThan time.Duration) []domain.ActiveAssignment
}

// DiagnosticSink records a diagnostic.
type DiagnosticSink interface {
	Report(ctx context.Context, d domain.Diagnostic)
}

// AbandonedTaskAudit finds assignments that have waited longer than olderThan for a
// completion. It never requeues anything: each stale assignment is reported once and
// the stale count is exported as a gauge.
type AbandonedTaskAudit struct {
	source    AssignmentSource
	diag      DiagnosticSink
	olderThan time.Duration
	now       func() time.Time

	mu       sync.Mutex
	reported map[domain.TaskKey]struct{}
}

// NewAbandonedTaskAudit creates the audit job.
func NewAbandonedTaskAudit(source AssignmentSource, diag DiagnosticSink, olderThan time.Duration) *AbandonedTaskAudit {
	return &AbandonedTaskAudit{
		source:    source,
		diag:      diag,
		olderThan: olderThan,
		now:       time.Now,
		reported:  make(map[domain.TaskKey]struct{}),
	}
}

// Run performs one audit pass.
func (a *AbandonedTaskAudit) Run(ctx context.Context) error {
	stale := a.source.StaleAssignments(a.olderThan)
	metrics.StaleAssignments.Set(float64(len(stale)))

	a.mu.Lock()
	defer a.mu.Unlock()

	current := make(map[domain.TaskKey]struct{}, len(stale))
	for _, s := range stale {
		current[s.Key] = struct{}{}
		if _, seen := a.reported[s.Key]; seen {
			continue
		}
		a.diag.Report(ctx, domain.Diagnostic{
			Kind:      domain.DiagAbandonedTask,
			WorkerID:  s.WorkerID,
			SessionID: s.SessionID,
			Detail:    fmt.Sprintf("task %s on worker %s has had no completion for %s", s.Key, s.WorkerID, a.now().Sub(s.DispatchedAt).Round(time.Second)),
		})
	}
	a.reported = current
	return nil
}
