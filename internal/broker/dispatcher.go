package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"query-broker/internal/domain"
	"query-broker/internal/metrics"
)

// ErrUnknownSession is returned when a query arrives for a session that is not open.
var ErrUnknownSession = errors.New("unknown session")

// Options tunes dispatch behavior.
type Options struct {
	// CallbackEndpoint is the address workers send their completion to.
	CallbackEndpoint string
	// EmptyCredentialPolicy applies when a task has no override and the pool is empty.
	EmptyCredentialPolicy domain.EmptyCredentialPolicy
	// CapabilityMatching restricts a task that names a capability to workers that
	// declared the same capability. Off by default: any idle worker takes any task.
	CapabilityMatching bool
}

// SubmitOutcome describes what happened to a newly submitted query.
type SubmitOutcome struct {
	Key        domain.TaskKey
	Dispatched bool
	WorkerID   string
	Position   int // 1-based queue position when not dispatched
	Rejected   bool
}

// Stats is a point-in-time view of the dispatcher state.
type Stats struct {
	Workers     []domain.Worker           `json:"workers"`
	QueueLength int                       `json:"queue_length"`
	Active      []domain.ActiveAssignment `json:"active_assignments"`
	Sessions    int                       `json:"sessions"`
	Credentials int                       `json:"credentials"`
	Strategy    domain.Strategy           `json:"credential_strategy"`
}

// Dispatcher matches queued tasks to idle workers. Every inbound event takes the same
// lock for the whole of its state transition; outbound calls run after it is released.
type Dispatcher struct {
	mu       sync.Mutex
	registry *Registry
	queue    *TaskQueue
	sessions *SessionRouter
	pool     *CredentialPool
	active   map[domain.TaskKey]*domain.ActiveAssignment
	byWorker map[string]domain.TaskKey

	deliverer domain.TaskDeliverer
	events    domain.EventPublisher
	diag      *DiagnosticReporter
	opts      Options
	now       func() time.Time
	logger    *slog.Logger
}

// NewDispatcher wires the dispatcher to its state holders and outbound collaborators.
// events may be nil.
func NewDispatcher(
	registry *Registry,
	queue *TaskQueue,
	sessions *SessionRouter,
	pool *CredentialPool,
	deliverer domain.TaskDeliverer,
	events domain.EventPublisher,
	opts Options,
	logger *slog.Logger,
) *Dispatcher {
	if opts.EmptyCredentialPolicy == "" {
		opts.EmptyCredentialPolicy = domain.EmptyCredentialProceed
	}
	return &Dispatcher{
		registry:  registry,
		queue:     queue,
		sessions:  sessions,
		pool:      pool,
		active:    make(map[domain.TaskKey]*domain.ActiveAssignment),
		byWorker:  make(map[string]domain.TaskKey),
		deliverer: deliverer,
		events:    events,
		diag:      NewDiagnosticReporter(events, logger),
		opts:      opts,
		now:       time.Now,
		logger:    logger.With("component", "dispatcher"),
	}
}

func (d *Dispatcher) publish(fx *effects, format string, args ...any) {
	if d.events == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	fx.add(func(ctx context.Context) { d.events.PublishEvent(ctx, msg) })
}

func (d *Dispatcher) report(fx *effects, diag domain.Diagnostic) {
	fx.add(func(ctx context.Context) { d.diag.Report(ctx, diag) })
}

// RegisterWorker records a worker announcement and gives it work if any is waiting.
func (d *Dispatcher) RegisterWorker(ctx context.Context, id, capability string, status domain.WorkerStatus) {
	var fx effects
	d.mu.Lock()
	now := d.now()
	if status == domain.WorkerStatusIdle {
		if key, ok := d.byWorker[id]; ok {
			status = domain.WorkerStatusBusy
			d.report(&fx, domain.Diagnostic{
				Kind:     domain.DiagStatusConflict,
				WorkerID: id,
				Detail:   fmt.Sprintf("worker re-registered idle while assigned task %s", key),
			})
		}
	}
	d.registry.Register(id, capability, status, now)
	d.logger.Info("worker registered", "worker_id", id, "capability", capability, "status", string(status))
	d.publish(&fx, "Worker %s (%s) registered and available", id, capability)
	d.rematchLocked(&fx)
	d.observeLocked()
	d.mu.Unlock()

	fx.run(ctx)
}

// UpdateWorkerStatus applies a worker's self-reported status. Reports for workers that
// never registered are ignored. An idle report from a worker that still holds an
// assignment does not free it; only the completion does.
func (d *Dispatcher) UpdateWorkerStatus(ctx context.Context, id string, status domain.WorkerStatus) {
	var fx effects
	d.mu.Lock()
	now := d.now()
	switch {
	case !d.registry.Touch(id, now):
		d.report(&fx, domain.Diagnostic{
			Kind:     domain.DiagUnknownWorkerStatus,
			WorkerID: id,
			Detail:   fmt.Sprintf("status %q from unregistered worker ignored", status),
		})
	case status == domain.WorkerStatusIdle && d.holdsAssignmentLocked(id):
		d.report(&fx, domain.Diagnostic{
			Kind:     domain.DiagStatusConflict,
			WorkerID: id,
			Detail:   fmt.Sprintf("idle report ignored while assigned task %s", d.byWorker[id]),
		})
	default:
		d.registry.SetStatus(id, status, now)
		if status == domain.WorkerStatusIdle {
			d.logger.Info("worker available", "worker_id", id)
			d.rematchLocked(&fx)
		}
	}
	d.observeLocked()
	d.mu.Unlock()

	fx.run(ctx)
}

// OpenSession registers a client's result sink and returns its session id.
func (d *Dispatcher) OpenSession(ctx context.Context, sink domain.ResultSink) string {
	var fx effects
	d.mu.Lock()
	id := d.sessions.Create(sink)
	d.publish(&fx, "New web session connected: %s", id)
	metrics.OpenSessions.Set(float64(d.sessions.Len()))
	d.mu.Unlock()

	d.logger.Info("session opened", "session_id", id)
	fx.run(ctx)
	return id
}

// CloseSession forgets a session. Tasks it already submitted keep running and their
// results are dropped on arrival.
func (d *Dispatcher) CloseSession(ctx context.Context, id string) {
	var fx effects
	d.mu.Lock()
	d.sessions.Remove(id)
	d.publish(&fx, "Web session disconnected: %s", id)
	metrics.OpenSessions.Set(float64(d.sessions.Len()))
	d.mu.Unlock()

	d.logger.Info("session closed", "session_id", id)
	fx.run(ctx)
}

// Submit takes a new query from a session. It is dispatched straight to an idle worker
// when there is one; otherwise it is queued and the session is told its position.
func (d *Dispatcher) Submit(ctx context.Context, sessionID, query, apiKey, capability string) (SubmitOutcome, error) {
	var fx effects
	d.mu.Lock()
	sink, ok := d.sessions.Lookup(sessionID)
	if !ok {
		d.mu.Unlock()
		return SubmitOutcome{}, fmt.Errorf("submit query for session %s: %w", sessionID, ErrUnknownSession)
	}

	now := d.now()
	task := domain.Task{
		SessionID:   sessionID,
		Query:       query,
		APIKey:      apiKey,
		Capability:  capability,
		SubmittedAt: d.sessions.NextSubmission(sessionID, now.UnixMilli()),
	}
	outcome := SubmitOutcome{Key: task.Key()}
	d.publish(&fx, "Master received query from session %s", sessionID)
	metrics.QueriesSubmittedTotal.Inc()

	if workerID, found := d.registry.FindIdle(d.acceptFor(task)); found {
		if d.assignLocked(workerID, task, &fx) {
			outcome.Dispatched = true
			outcome.WorkerID = workerID
		} else {
			outcome.Rejected = true
		}
	} else {
		outcome.Position = d.queue.Enqueue(task)
		d.logger.Info("task queued", "session_id", sessionID, "pending", outcome.Position)
		position := outcome.Position
		fx.add(func(context.Context) {
			if err := sink.SendQueued(domain.Queued{Position: position}); err != nil {
				d.logger.Warn("failed to notify session of queue position", "session_id", sessionID, "error", err)
			}
		})
	}
	d.observeLocked()
	d.mu.Unlock()

	fx.run(ctx)
	return outcome, nil
}

// Stats returns a snapshot of the dispatcher state.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	active := make([]domain.ActiveAssignment, 0, len(d.active))
	for _, a := range d.active {
		active = append(active, *a)
	}
	return Stats{
		Workers:     d.registry.Snapshot(),
		QueueLength: d.queue.Len(),
		Active:      active,
		Sessions:    d.sessions.Len(),
		Credentials: d.pool.Size(),
		Strategy:    d.pool.Strategy(),
	}
}

// StaleAssignments returns assignments dispatched more than olderThan ago. The broker
// never times tasks out; this only feeds reporting.
func (d *Dispatcher) StaleAssignments(olderThan time.Duration) []domain.ActiveAssignment {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := d.now().Add(-olderThan)
	var out []domain.ActiveAssignment
	for _, a := range d.active {
		if a.DispatchedAt.Before(cutoff) {
			out = append(out, *a)
		}
	}
	return out
}

func (d *Dispatcher) holdsAssignmentLocked(workerID string) bool {
	_, ok := d.byWorker[workerID]
	return ok
}

// acceptFor returns the worker filter for a task, or nil when matching is
// capability-blind.
func (d *Dispatcher) acceptFor(t domain.Task) func(domain.Worker) bool {
	if !d.opts.CapabilityMatching || t.Capability == "" {
		return nil
	}
	return func(w domain.Worker) bool { return w.Capability == t.Capability }
}

// rematchLocked keeps pairing the oldest waiting task with an idle worker until one
// side runs out.
func (d *Dispatcher) rematchLocked(fx *effects) {
	for d.queue.Len() > 0 {
		if !d.matchOnceLocked(fx) {
			return
		}
	}
}

func (d *Dispatcher) matchOnceLocked(fx *effects) bool {
	if !d.opts.CapabilityMatching {
		workerID, ok := d.registry.FindIdle(nil)
		if !ok {
			return false
		}
		task, _ := d.queue.DequeueOldest()
		d.assignLocked(workerID, task, fx)
		return true
	}

	for _, w := range d.registry.Snapshot() {
		if w.Status != domain.WorkerStatusIdle {
			continue
		}
		task, ok := d.queue.DequeueFirst(func(t domain.Task) bool {
			return t.Capability == "" || t.Capability == w.Capability
		})
		if ok {
			d.assignLocked(w.ID, task, fx)
			return true
		}
	}
	return false
}

// assignLocked binds task to workerID. It reports false when the task was dropped
// because no credential was available under the reject policy; the worker then stays
// idle.
func (d *Dispatcher) assignLocked(workerID string, task domain.Task, fx *effects) bool {
	apiKey, credentialID := task.APIKey, ""
	if apiKey == "" {
		if c, ok := d.pool.Next(); ok {
			apiKey, credentialID = c.Secret, c.ID
		} else if !d.handleEmptyPoolLocked(task, fx) {
			return false
		}
	}

	now := d.now()
	d.registry.SetStatus(workerID, domain.WorkerStatusBusy, now)
	key := task.Key()
	d.active[key] = &domain.ActiveAssignment{
		Key:          key,
		WorkerID:     workerID,
		SessionID:    task.SessionID,
		Query:        task.Query,
		CredentialID: credentialID,
		DispatchedAt: now,
	}
	d.byWorker[workerID] = key
	metrics.DispatchesTotal.Inc()

	d.logger.Info("assigning task to worker", "worker_id", workerID, "session_id", task.SessionID, "task", key.String(), "credential_id", credentialID)
	d.publish(fx, "Master assigned task to worker %s for session %s", workerID, task.SessionID)

	delivery := &domain.TaskDelivery{
		WorkerID:         workerID,
		SessionID:        task.SessionID,
		Query:            task.Query,
		APIKey:           apiKey,
		CallbackEndpoint: d.opts.CallbackEndpoint,
		Timestamp:        task.SubmittedAt,
	}
	fx.add(func(ctx context.Context) {
		if err := d.deliverer.DeliverTask(ctx, delivery); err != nil {
			metrics.DeliveryFailuresTotal.Inc()
			d.logger.Error("failed to deliver task", "worker_id", workerID, "task", key.String(), "error", err)
		}
	})
	return true
}

// handleEmptyPoolLocked applies the empty credential policy and reports whether the
// dispatch may go ahead without a credential.
func (d *Dispatcher) handleEmptyPoolLocked(task domain.Task, fx *effects) bool {
	d.report(fx, domain.Diagnostic{
		Kind:      domain.DiagEmptyCredentialPool,
		SessionID: task.SessionID,
		Detail:    fmt.Sprintf("no credential available, policy %s", d.opts.EmptyCredentialPolicy),
	})
	if d.opts.EmptyCredentialPolicy != domain.EmptyCredentialReject {
		return true
	}

	d.report(fx, domain.Diagnostic{
		Kind:      domain.DiagTaskRejected,
		SessionID: task.SessionID,
		Detail:    fmt.Sprintf("task %s dropped: no credential available", task.Key()),
	})
	if sink, ok := d.sessions.Lookup(task.SessionID); ok {
		rejected := domain.TaskRejected{Query: task.Query, Reason: "no credential available"}
		fx.add(func(context.Context) {
			if err := sink.SendRejected(rejected); err != nil {
				d.logger.Warn("failed to notify session of rejection", "session_id", task.SessionID, "error", err)
			}
		})
	}
	return false
}

func (d *Dispatcher) observeLocked() {
	metrics.QueueLength.Set(float64(d.queue.Len()))
	metrics.ActiveAssignments.Set(float64(len(d.active)))
	for status, n := range d.registry.CountByStatus() {
		metrics.Workers.WithLabelValues(string(status)).Set(float64(n))
	}
}
