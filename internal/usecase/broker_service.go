package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"query-broker/internal/broker"
	"query-broker/internal/domain"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// BrokerService is the entry point every inbound adapter goes through. It validates
// payloads and traces each event before handing it to the dispatcher.
type BrokerService struct {
	dispatcher *broker.Dispatcher
	completion *broker.CompletionHandler
	validate   *validator.Validate
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewBrokerService creates a new BrokerService instance.
func NewBrokerService(dispatcher *broker.Dispatcher, completion *broker.CompletionHandler, logger *slog.Logger) *BrokerService {
	return &BrokerService{
		dispatcher: dispatcher,
		completion: completion,
		validate:   validator.New(),
		logger:     logger.With("component", "broker-service"),
		tracer:     otel.Tracer("query-broker-usecase"),
	}
}

// RegisterWorker handles a worker registration event.
func (s *BrokerService) RegisterWorker(ctx context.Context, reg *domain.WorkerRegistration) error {
	ctx, span := s.tracer.Start(ctx, "service.RegisterWorker")
	defer span.End()

	if err := s.validate.Struct(reg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid registration")
		return fmt.Errorf("invalid worker registration: %w", err)
	}
	span.SetAttributes(attribute.String("worker.id", reg.WorkerID), attribute.String("worker.language", reg.Language))

	status, err := domain.ParseWorkerStatus(reg.Status)
	if err != nil {
		span.RecordError(err)
		return err
	}
	s.dispatcher.RegisterWorker(ctx, reg.WorkerID, reg.Language, status)
	return nil
}

// UpdateWorkerStatus handles a worker status event.
func (s *BrokerService) UpdateWorkerStatus(ctx context.Context, upd *domain.WorkerStatusUpdate) error {
	ctx, span := s.tracer.Start(ctx, "service.UpdateWorkerStatus")
	defer span.End()

	if err := s.validate.Struct(upd); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid status update")
		return fmt.Errorf("invalid worker status update: %w", err)
	}
	span.SetAttributes(attribute.String("worker.id", upd.WorkerID), attribute.String("worker.status", upd.Status))

	status, err := domain.ParseWorkerStatus(upd.Status)
	if err != nil {
		span.RecordError(err)
		return err
	}
	s.dispatcher.UpdateWorkerStatus(ctx, upd.WorkerID, status)
	return nil
}

// OpenSession registers a new client connection.
func (s *BrokerService) OpenSession(ctx context.Context, sink domain.ResultSink) string {
	ctx, span := s.tracer.Start(ctx, "service.OpenSession")
	defer span.End()

	id := s.dispatcher.OpenSession(ctx, sink)
	span.SetAttributes(attribute.String("session.id", id))
	return id
}

// CloseSession forgets a client connection.
func (s *BrokerService) CloseSession(ctx context.Context, sessionID string) {
	ctx, span := s.tracer.Start(ctx, "service.CloseSession", trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	s.dispatcher.CloseSession(ctx, sessionID)
}

// SubmitQuery accepts a query from a client session.
func (s *BrokerService) SubmitQuery(ctx context.Context, sessionID string, q *domain.SubmitQuery) (broker.SubmitOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "service.SubmitQuery", trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	if err := s.validate.Struct(q); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid query")
		return broker.SubmitOutcome{}, fmt.Errorf("invalid query: %w", err)
	}

	outcome, err := s.dispatcher.Submit(ctx, sessionID, q.Query, q.APIKey, q.Capability)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit query")
		return outcome, err
	}
	span.SetAttributes(
		attribute.String("task.key", outcome.Key.String()),
		attribute.Bool("task.dispatched", outcome.Dispatched),
		attribute.Int("task.queue_position", outcome.Position),
	)
	return outcome, nil
}

// CompleteTask handles a worker's completion callback. Invalid records are still
// acknowledged; they are logged and dropped.
func (s *BrokerService) CompleteTask(ctx context.Context, rec *domain.CompletionRecord) domain.CompletionAck {
	ctx, span := s.tracer.Start(ctx, "service.CompleteTask")
	defer span.End()

	if err := s.validate.Struct(rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid completion")
		s.logger.Warn("ignoring malformed completion", "error", err)
		return domain.CompletionAck{Success: true, Message: "result ignored: " + err.Error()}
	}
	span.SetAttributes(
		attribute.String("worker.id", rec.WorkerID),
		attribute.String("session.id", rec.SessionID),
		attribute.Int64("task.processing_time_ms", rec.ProcessingTimeMs),
	)
	return s.completion.Complete(ctx, *rec)
}

// Stats returns the current dispatcher state.
func (s *BrokerService) Stats(ctx context.Context) broker.Stats {
	_, span := s.tracer.Start(ctx, "service.Stats")
	defer span.End()
	return s.dispatcher.Stats()
}
