package domain

// ResponseReady is delivered to a session when a worker finishes its task.
type ResponseReady struct {
	Query          string `json:"query"`
	Response       string `json:"response"`
	WorkerID       string `json:"worker_id"`
	ProcessingTime int64  `json:"processing_time"`
	Timestamp      int64  `json:"timestamp"`
}

// Queued tells a session its task is waiting and where it sits in the queue.
type Queued struct {
	Position int `json:"queue_position"`
}

// TaskRejected tells a session its task was dropped without being dispatched.
type TaskRejected struct {
	Query  string `json:"query"`
	Reason string `json:"reason"`
}

// ResultSink is the destination for everything the broker sends to one client session.
// Implementations must not block; the broker calls them outside its state lock but on
// the goroutine handling the triggering event.
type ResultSink interface {
	SendResponse(ResponseReady) error
	SendQueued(Queued) error
	SendRejected(TaskRejected) error
}

// SubmitQuery is what a client sends to ask a question.
type SubmitQuery struct {
	Query      string `json:"query" validate:"required,max=16384"`
	APIKey     string `json:"api_key,omitempty"`
	Capability string `json:"capability,omitempty" validate:"max=64"`
}
