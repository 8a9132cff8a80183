package broker

import (
	"time"

	"query-broker/internal/domain"
)

// Registry tracks every worker that has ever registered, in registration order.
// It is not safe for concurrent use; the Dispatcher serializes access to it.
type Registry struct {
	order   []*domain.Worker
	workers map[string]*domain.Worker
}

// NewRegistry creates an empty worker registry.
func NewRegistry() *Registry {
	return &Registry{workers: make(map[string]*domain.Worker)}
}

// Register upserts a worker. A re-registration overwrites the capability and status
// but keeps the worker's original position in the ordering.
func (r *Registry) Register(id, capability string, status domain.WorkerStatus, now time.Time) {
	if w, ok := r.workers[id]; ok {
		w.Capability = capability
		w.Status = status
		w.LastSeen = now
		return
	}
	w := &domain.Worker{
		ID:           id,
		Capability:   capability,
		Status:       status,
		RegisteredAt: now,
		LastSeen:     now,
	}
	r.workers[id] = w
	r.order = append(r.order, w)
}

// SetStatus updates a known worker's status and last-seen time. It reports false and
// changes nothing when the worker has never registered.
func (r *Registry) SetStatus(id string, status domain.WorkerStatus, now time.Time) bool {
	w, ok := r.workers[id]
	if !ok {
		return false
	}
	w.Status = status
	w.LastSeen = now
	return true
}

// Touch records that a known worker was heard from without changing its status.
func (r *Registry) Touch(id string, now time.Time) bool {
	w, ok := r.workers[id]
	if !ok {
		return false
	}
	w.LastSeen = now
	return true
}

// FindIdle returns the first idle worker in registration order that accept allows.
// A nil accept matches any worker. The choice never considers past load.
func (r *Registry) FindIdle(accept func(domain.Worker) bool) (string, bool) {
	for _, w := range r.order {
		if w.Status != domain.WorkerStatusIdle {
			continue
		}
		if accept != nil && !accept(*w) {
			continue
		}
		return w.ID, true
	}
	return "", false
}

// Get returns a copy of the worker with the given id.
func (r *Registry) Get(id string) (domain.Worker, bool) {
	w, ok := r.workers[id]
	if !ok {
		return domain.Worker{}, false
	}
	return *w, true
}

// Snapshot returns copies of all workers in registration order.
func (r *Registry) Snapshot() []domain.Worker {
	out := make([]domain.Worker, 0, len(r.order))
	for _, w := range r.order {
		out = append(out, *w)
	}
	return out
}

// CountByStatus returns how many workers are in each status.
func (r *Registry) CountByStatus() map[domain.WorkerStatus]int {
	counts := map[domain.WorkerStatus]int{
		domain.WorkerStatusIdle: 0,
		domain.WorkerStatusBusy: 0,
	}
	for _, w := range r.order {
		counts[w.Status]++
	}
	return counts
}
