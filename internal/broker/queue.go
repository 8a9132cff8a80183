package broker

import "query-broker/internal/domain"

// TaskQueue is the FIFO backlog of tasks that have not been dispatched yet.
// It is not safe for concurrent use.
type TaskQueue struct {
	items []domain.Task
}

// NewTaskQueue creates an empty queue.
func NewTaskQueue() *TaskQueue {
	return &TaskQueue{items: make([]domain.Task, 0, 16)}
}

// Enqueue appends a task and returns the queue length afterwards, which is the task's
// 1-based position.
func (q *TaskQueue) Enqueue(t domain.Task) int {
	q.items = append(q.items, t)
	return len(q.items)
}

// DequeueOldest removes and returns the head of the queue.
func (q *TaskQueue) DequeueOldest() (domain.Task, bool) {
	if len(q.items) == 0 {
		return domain.Task{}, false
	}
	t := q.items[0]
	q.items[0] = domain.Task{}
	q.items = q.items[1:]
	return t, true
}

// DequeueFirst removes and returns the oldest task that match allows.
func (q *TaskQueue) DequeueFirst(match func(domain.Task) bool) (domain.Task, bool) {
	if match == nil {
		return q.DequeueOldest()
	}
	for i, t := range q.items {
		if !match(t) {
			continue
		}
		q.items = append(q.items[:i], q.items[i+1:]...)
		return t, true
	}
	return domain.Task{}, false
}

// Len returns the number of waiting tasks.
func (q *TaskQueue) Len() int {
	return len(q.items)
}

// Snapshot returns a copy of the waiting tasks, oldest first.
func (q *TaskQueue) Snapshot() []domain.Task {
	out := make([]domain.Task, len(q.items))
	copy(out, q.items)
	return out
}
