package domain

import "context"

// TaskDeliverer hands a task to a specific worker. Delivery is best-effort.
type TaskDeliverer interface {
	DeliverTask(ctx context.Context, task *TaskDelivery) error
}

// LogEvent is one entry on the shared event stream.
type LogEvent struct {
	Timestamp int64  `json:"timestamp"`
	Source    string `json:"source"`
	Message   string `json:"message" validate:"required"`
}

// EventPublisher writes to the event stream observers listen on. Publishing is
// best-effort and never affects dispatch state.
type EventPublisher interface {
	PublishEvent(ctx context.Context, msg string)
}
