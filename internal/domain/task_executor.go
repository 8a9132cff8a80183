package domain

import "context"

// TaskExecutor produces an answer for a delivered query. It runs inside a worker.
type TaskExecutor interface {
	Execute(ctx context.Context, task *TaskDelivery) (output string, err error)
}
