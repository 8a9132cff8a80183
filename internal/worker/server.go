package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"query-broker/internal/domain"
	"query-broker/internal/infra/redis"
	"query-broker/internal/metrics"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Bus is the pub/sub surface the worker needs.
type Bus interface {
	Publisher
	PublishEvent(ctx context.Context, msg string)
	SubscribeAndThen(ctx context.Context, ready func(ctx context.Context) error, handle redis.Handler, topics ...string) error
}

// ResultSender returns a completion to the broker endpoint named in the task.
type ResultSender interface {
	SendResult(ctx context.Context, endpoint string, rec *domain.CompletionRecord) (domain.CompletionAck, error)
}

// Options tunes a worker.
type Options struct {
	WorkerID      string
	ExecutorName  string
	SimulateDelay time.Duration
}

// Server receives tasks from the bus, runs them one at a time and reports results.
type Server struct {
	bus      Bus
	topics   redis.Topics
	registry *Registry
	executor domain.TaskExecutor
	sender   ResultSender
	opts     Options
	validate *validator.Validate
	now      func() time.Time
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewServer creates a new worker.
func NewServer(bus Bus, topics redis.Topics, registry *Registry, executor domain.TaskExecutor, sender ResultSender, opts Options, logger *slog.Logger) *Server {
	return &Server{
		bus:      bus,
		topics:   topics,
		registry: registry,
		executor: executor,
		sender:   sender,
		opts:     opts,
		validate: validator.New(),
		now:      time.Now,
		logger:   logger.With("component", "worker", "worker_id", opts.WorkerID),
		tracer:   otel.Tracer("query-broker-worker"),
	}
}

// Run subscribes to the worker's task topic, registers once the subscription is live
// and processes tasks until ctx is cancelled. The broker may hand over a task as soon
// as it sees the registration, so the order matters.
func (s *Server) Run(ctx context.Context) error {
	return s.bus.SubscribeAndThen(ctx, s.announce, s.HandleTask, s.topics.Tasks(s.opts.WorkerID))
}

func (s *Server) announce(ctx context.Context) error {
	if err := s.registry.Register(ctx); err != nil {
		return err
	}
	s.bus.PublishEvent(ctx, fmt.Sprintf("Worker %s registered", s.opts.WorkerID))
	return nil
}

// HandleTask decodes one task message and runs it. Tasks run on the subscription's
// goroutine, so a worker never holds more than one.
func (s *Server) HandleTask(ctx context.Context, topic string, payload []byte) {
	var task domain.TaskDelivery
	if err := json.Unmarshal(payload, &task); err != nil {
		s.logger.Error("failed to decode task", "topic", topic, "error", err)
		return
	}
	if err := s.validate.Struct(&task); err != nil {
		s.logger.Error("invalid task", "topic", topic, "error", err)
		return
	}
	if task.WorkerID != s.opts.WorkerID {
		s.logger.Warn("task addressed to another worker", "target", task.WorkerID)
		return
	}
	s.runTask(ctx, &task)
}

func (s *Server) runTask(ctx context.Context, task *domain.TaskDelivery) {
	ctx, span := s.tracer.Start(ctx, "worker.runTask", trace.WithAttributes(
		attribute.String("session.id", task.SessionID),
		attribute.Int64("task.timestamp", task.Timestamp),
	))
	defer span.End()

	logger := s.logger.With("session_id", task.SessionID, "task_timestamp", task.Timestamp)
	s.bus.PublishEvent(ctx, fmt.Sprintf("Worker %s processing task for session %s", s.opts.WorkerID, task.SessionID))
	s.setStatus(ctx, domain.WorkerStatusBusy)
	defer s.setStatus(ctx, domain.WorkerStatusIdle)

	start := s.now()
	output := s.execute(ctx, task, logger, span)
	finished := s.now()

	rec := &domain.CompletionRecord{
		WorkerID:            s.opts.WorkerID,
		SessionID:           task.SessionID,
		QueryTimestamp:      task.Timestamp,
		OriginalQuery:       task.Query,
		AIResponse:          output,
		ProcessingTimeMs:    finished.Sub(start).Milliseconds(),
		CompletionTimestamp: finished.UnixMilli(),
	}

	ack, err := s.sender.SendResult(ctx, task.CallbackEndpoint, rec)
	if err != nil {
		logger.Error("failed to send result", "endpoint", task.CallbackEndpoint, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send result")
		s.bus.PublishEvent(ctx, fmt.Sprintf("Worker %s failed to send result: %v", s.opts.WorkerID, err))
		return
	}
	logger.Info("result delivered", "ack", ack.Message, "processing_time_ms", rec.ProcessingTimeMs)
	s.bus.PublishEvent(ctx, fmt.Sprintf("Worker %s sent result via gRPC: %s", s.opts.WorkerID, ack.Message))
}

// execute runs the executor. A failure becomes the response text, so the session always
// hears back.
func (s *Server) execute(ctx context.Context, task *domain.TaskDelivery, logger *slog.Logger, span trace.Span) string {
	if s.opts.SimulateDelay > 0 {
		s.bus.PublishEvent(ctx, fmt.Sprintf("Worker %s simulating processing for %s", s.opts.WorkerID, s.opts.SimulateDelay))
		select {
		case <-ctx.Done():
		case <-time.After(s.opts.SimulateDelay):
		}
	}

	output, err := s.executor.Execute(ctx, task)
	if err != nil {
		logger.Error("task execution failed", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "task execution failed")
		metrics.TaskExecutionTotal.WithLabelValues(s.opts.ExecutorName, "failed").Inc()
		s.bus.PublishEvent(ctx, fmt.Sprintf("Worker %s error while processing: %v", s.opts.WorkerID, err))
		return "Error: " + err.Error()
	}
	metrics.TaskExecutionTotal.WithLabelValues(s.opts.ExecutorName, "success").Inc()
	return output
}

func (s *Server) setStatus(ctx context.Context, status domain.WorkerStatus) {
	if err := s.registry.SetStatus(ctx, status); err != nil {
		s.logger.Warn("failed to report status", "status", string(status), "error", err)
	}
}
