package domain

// CompletionRecord is what a worker reports when it finishes a task.
type CompletionRecord struct {
	WorkerID            string `json:"worker_id" validate:"required"`
	SessionID           string `json:"session_id" validate:"required"`
	QueryTimestamp      int64  `json:"query_timestamp"`
	OriginalQuery       string `json:"original_query"`
	AIResponse          string `json:"ai_response"`
	ProcessingTimeMs    int64  `json:"processing_time_ms" validate:"gte=0"`
	CompletionTimestamp int64  `json:"completion_timestamp"`
}

// Key returns the identity of the task this record completes.
func (r CompletionRecord) Key() TaskKey {
	return TaskKey{SessionID: r.SessionID, SubmittedAt: r.QueryTimestamp}
}

// CompletionAck is returned to the worker.
type CompletionAck struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
