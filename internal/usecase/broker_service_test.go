package usecase

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"query-broker/internal/broker"
	"query-broker/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingDeliverer struct {
	mu    sync.Mutex
	tasks []domain.TaskDelivery
}

func (r *recordingDeliverer) DeliverTask(_ context.Context, task *domain.TaskDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, *task)
	return nil
}

type nopSink struct {
	mu        sync.Mutex
	responses []domain.ResponseReady
}

func (s *nopSink) SendResponse(r domain.ResponseReady) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, r)
	return nil
}
func (s *nopSink) SendQueued(domain.Queued) error { return nil }
func (s *nopSink) SendRejected(domain.TaskRejected) error { return nil }

func newTestService(t *testing.T) (*BrokerService, *recordingDeliverer) {
	t.Helper()
	logger := discardLogger()
	deliv := &recordingDeliverer{}
	pool := broker.NewCredentialPool("env-secret", logger)
	pool.Load(nil)
	d := broker.NewDispatcher(broker.NewRegistry(), broker.NewTaskQueue(), broker.NewSessionRouter(), pool, deliv, nil, broker.Options{CallbackEndpoint: "master:50051"}, logger)
	return NewBrokerService(d, broker.NewCompletionHandler(d, logger), logger), deliv
}

func TestBrokerServiceRejectsInvalidWorkerEvents(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"registration without id", func() error {
			return svc.RegisterWorker(ctx, &domain.WorkerRegistration{Language: "Go"})
		}},
		{"registration with bad status", func() error {
			return svc.RegisterWorker(ctx, &domain.WorkerRegistration{WorkerID: "w1", Status: "sleeping"})
		}},
		{"status without status", func() error {
			return svc.UpdateWorkerStatus(ctx, &domain.WorkerStatusUpdate{WorkerID: "w1"})
		}},
		{"status with bad status", func() error {
			return svc.UpdateWorkerStatus(ctx, &domain.WorkerStatusUpdate{WorkerID: "w1", Status: "gone"})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
	if n := len(svc.Stats(ctx).Workers); n != 0 {
		t.Fatalf("invalid events must not register workers, got %d", n)
	}
}

func TestBrokerServiceEndToEnd(t *testing.T) {
	svc, deliv := newTestService(t)
	ctx := context.Background()

	// Workers that omit status on registration start idle.
	if err := svc.RegisterWorker(ctx, &domain.WorkerRegistration{WorkerID: "w1", Language: "Go"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	sink := &nopSink{}
	sid := svc.OpenSession(ctx, sink)

	if _, err := svc.SubmitQuery(ctx, sid, &domain.SubmitQuery{}); err == nil {
		t.Fatalf("empty query must be rejected")
	}
	out, err := svc.SubmitQuery(ctx, sid, &domain.SubmitQuery{Query: "hello"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !out.Dispatched {
		t.Fatalf("expected dispatch, got %+v", out)
	}
	if len(deliv.tasks) != 1 || deliv.tasks[0].APIKey != "env-secret" {
		t.Fatalf("expected fallback credential on delivery, got %+v", deliv.tasks)
	}

	task := deliv.tasks[0]
	ack := svc.CompleteTask(ctx, &domain.CompletionRecord{
		WorkerID:            task.WorkerID,
		SessionID:           task.SessionID,
		QueryTimestamp:      task.Timestamp,
		OriginalQuery:       task.Query,
		AIResponse:          "hi",
		ProcessingTimeMs:    5,
		CompletionTimestamp: task.Timestamp + 5,
	})
	if !ack.Success || ack.Message != "result received" {
		t.Fatalf("unexpected ack: %+v", ack)
	}
	if len(sink.responses) != 1 || sink.responses[0].Response != "hi" {
		t.Fatalf("expected response delivered, got %+v", sink.responses)
	}

	svc.CloseSession(ctx, sid)
	if svc.Stats(ctx).Sessions != 0 {
		t.Fatalf("expected session closed")
	}
}

func TestBrokerServiceAcknowledgesMalformedCompletion(t *testing.T) {
	svc, _ := newTestService(t)
	ack := svc.CompleteTask(context.Background(), &domain.CompletionRecord{AIResponse: "orphan"})
	if !ack.Success {
		t.Fatalf("completions are always acknowledged")
	}
	if !strings.HasPrefix(ack.Message, "result ignored") {
		t.Fatalf("expected ignored message, got %q", ack.Message)
	}
}
