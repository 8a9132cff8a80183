package domain

// DiagnosticKind names a condition the broker tolerates but reports.
type DiagnosticKind string

const (
	DiagUnknownWorkerStatus  DiagnosticKind = "unknown_worker_status"
	DiagUnroutableCompletion DiagnosticKind = "unroutable_completion"
	DiagUnknownAssignment    DiagnosticKind = "unknown_assignment"
	DiagEmptyCredentialPool  DiagnosticKind = "empty_credential_pool"
	DiagStatusConflict       DiagnosticKind = "status_conflict"
	DiagCredentialLoadFailed DiagnosticKind = "credential_load_failed"
	DiagTaskRejected         DiagnosticKind = "task_rejected"
	DiagAbandonedTask        DiagnosticKind = "abandoned_task"
)

// Diagnostic is a structured record of a tolerated anomaly. Emitting one never changes
// how the triggering event is handled.
type Diagnostic struct {
	Kind      DiagnosticKind
	WorkerID  string
	SessionID string
	Detail    string
}
