package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"query-broker/internal/domain"
	"query-broker/internal/infra/redis"
)

// Publisher sends JSON messages on the bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, v any) error
}

// Registry announces this worker and its status to the broker.
type Registry struct {
	bus      Publisher
	topics   redis.Topics
	workerID string
	language string
	logger   *slog.Logger
}

// NewRegistry creates a new worker registry.
func NewRegistry(bus Publisher, topics redis.Topics, workerID, language string, logger *slog.Logger) *Registry {
	return &Registry{
		bus:      bus,
		topics:   topics,
		workerID: workerID,
		language: language,
		logger:   logger,
	}
}

// Register announces the worker as idle and ready for tasks.
func (r *Registry) Register(ctx context.Context) error {
	reg := domain.WorkerRegistration{
		WorkerID:  r.workerID,
		Language:  r.language,
		Status:    string(domain.WorkerStatusIdle),
		Timestamp: time.Now().UnixMilli(),
	}
	if err := r.bus.Publish(ctx, r.topics.Register(), reg); err != nil {
		return fmt.Errorf("failed to register worker: %w", err)
	}
	r.logger.Info("worker registered successfully", "worker_id", r.workerID, "language", r.language)
	return nil
}

// SetStatus reports a status change.
func (r *Registry) SetStatus(ctx context.Context, status domain.WorkerStatus) error {
	upd := domain.WorkerStatusUpdate{
		WorkerID:  r.workerID,
		Status:    string(status),
		Timestamp: time.Now().UnixMilli(),
	}
	if err := r.bus.Publish(ctx, r.topics.Status(), upd); err != nil {
		return fmt.Errorf("failed to publish status %s: %w", status, err)
	}
	return nil
}

// Deregister reports the worker busy so the broker stops handing it work. The broker
// has no removal event; a later Register brings the worker back.
func (r *Registry) Deregister(ctx context.Context) error {
	r.logger.Info("deregistering worker", "worker_id", r.workerID)
	return r.SetStatus(ctx, domain.WorkerStatusBusy)
}
