package broker

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"query-broker/internal/domain"
	"query-broker/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeDeliverer struct {
	mu    sync.Mutex
	tasks []domain.TaskDelivery
	err   error
}

func (f *fakeDeliverer) DeliverTask(_ context.Context, task *domain.TaskDelivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, *task)
	return f.err
}

func (f *fakeDeliverer) delivered() []domain.TaskDelivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.TaskDelivery, len(f.tasks))
	copy(out, f.tasks)
	return out
}

func (f *fakeDeliverer) last(t *testing.T) domain.TaskDelivery {
	t.Helper()
	tasks := f.delivered()
	if len(tasks) == 0 {
		t.Fatalf("expected at least one delivered task")
	}
	return tasks[len(tasks)-1]
}

type fakeEvents struct {
	mu   sync.Mutex
	msgs []string
}

func (f *fakeEvents) PublishEvent(_ context.Context, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
}

func (f *fakeEvents) contains(msg string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.msgs {
		if m == msg {
			return true
		}
	}
	return false
}

type fakeSink struct {
	mu        sync.Mutex
	responses []domain.ResponseReady
	queued    []domain.Queued
	rejected  []domain.TaskRejected
}

func (s *fakeSink) SendResponse(r domain.ResponseReady) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, r)
	return nil
}

func (s *fakeSink) SendQueued(q domain.Queued) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued = append(s.queued, q)
	return nil
}

func (s *fakeSink) SendRejected(r domain.TaskRejected) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected = append(s.rejected, r)
	return nil
}

// harness wires a dispatcher to fakes and a manual clock.
type harness struct {
	d      *Dispatcher
	c      *CompletionHandler
	pool   *CredentialPool
	deliv  *fakeDeliverer
	events *fakeEvents
	now    time.Time
}

func newHarness(t *testing.T, opts Options, creds ...domain.Credential) *harness {
	t.Helper()
	logger := discardLogger()
	pool := NewCredentialPool("", logger)
	if len(creds) > 0 {
		pool.Load(&domain.CredentialSet{Keys: creds, Strategy: domain.StrategyRoundRobin})
	}
	if opts.CallbackEndpoint == "" {
		opts.CallbackEndpoint = "master:50051"
	}

	h := &harness{
		pool:   pool,
		deliv:  &fakeDeliverer{},
		events: &fakeEvents{},
		now:    time.UnixMilli(1_700_000_000_000),
	}
	h.d = NewDispatcher(NewRegistry(), NewTaskQueue(), NewSessionRouter(), pool, h.deliv, h.events, opts, logger)
	h.d.now = func() time.Time { return h.now }
	h.c = NewCompletionHandler(h.d, logger)
	return h
}

func (h *harness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

func (h *harness) worker(t *testing.T, id string) domain.Worker {
	t.Helper()
	h.d.mu.Lock()
	defer h.d.mu.Unlock()
	w, ok := h.d.registry.Get(id)
	if !ok {
		t.Fatalf("worker %s not registered", id)
	}
	return w
}

// completionFor builds the record a worker would send back for a delivered task.
func completionFor(task domain.TaskDelivery, response string) domain.CompletionRecord {
	return domain.CompletionRecord{
		WorkerID:            task.WorkerID,
		SessionID:           task.SessionID,
		QueryTimestamp:      task.Timestamp,
		OriginalQuery:       task.Query,
		AIResponse:          response,
		ProcessingTimeMs:    120,
		CompletionTimestamp: task.Timestamp + 120,
	}
}

func diagCount(kind domain.DiagnosticKind) float64 {
	return testutil.ToFloat64(metrics.DiagnosticsTotal.WithLabelValues(string(kind)))
}

func key(id, secret string) domain.Credential {
	return domain.Credential{ID: id, Provider: "gemini", Secret: secret, Owner: "test", Enabled: true}
}
