package master

import (
	"context"
	"encoding/json"
	"log/slog"

	"query-broker/internal/domain"
	"query-broker/internal/infra/redis"
)

// WorkerEventService applies worker announcements to the broker state.
type WorkerEventService interface {
	RegisterWorker(ctx context.Context, reg *domain.WorkerRegistration) error
	UpdateWorkerStatus(ctx context.Context, upd *domain.WorkerStatusUpdate) error
}

// Subscriber delivers pub/sub messages until its context is cancelled.
type Subscriber interface {
	Subscribe(ctx context.Context, handle redis.Handler, topics ...string) error
}

// WorkerDiscovery listens on the bus for worker registrations, status changes and
// worker log lines.
type WorkerDiscovery struct {
	bus     Subscriber
	topics  redis.Topics
	service WorkerEventService
	source  string
	logger  *slog.Logger
}

// NewWorkerDiscovery creates a new discovery service. source is the name the broker
// publishes its own event-stream messages under; those are not echoed to the log.
func NewWorkerDiscovery(bus Subscriber, topics redis.Topics, service WorkerEventService, source string, logger *slog.Logger) *WorkerDiscovery {
	return &WorkerDiscovery{
		bus:     bus,
		topics:  topics,
		service: service,
		source:  source,
		logger:  logger.With("component", "worker-discovery"),
	}
}

// WatchWorkers consumes worker events until ctx is cancelled.
// This is a blocking call and should be run in a goroutine.
func (d *WorkerDiscovery) WatchWorkers(ctx context.Context) error {
	d.logger.Info("starting to watch for workers")
	err := d.bus.Subscribe(ctx, d.Handle, d.topics.Register(), d.topics.Status(), d.topics.Logs())
	d.logger.Info("stopped watching for workers")
	return err
}

// Handle dispatches one bus message by topic. Malformed payloads are logged and dropped.
func (d *WorkerDiscovery) Handle(ctx context.Context, topic string, payload []byte) {
	switch topic {
	case d.topics.Register():
		var reg domain.WorkerRegistration
		if err := json.Unmarshal(payload, &reg); err != nil {
			d.logger.Warn("dropping malformed registration", "error", err)
			return
		}
		if err := d.service.RegisterWorker(ctx, &reg); err != nil {
			d.logger.Warn("registration rejected", "worker_id", reg.WorkerID, "error", err)
			return
		}
		d.logger.Info("new worker discovered", "id", reg.WorkerID, "language", reg.Language)

	case d.topics.Status():
		var upd domain.WorkerStatusUpdate
		if err := json.Unmarshal(payload, &upd); err != nil {
			d.logger.Warn("dropping malformed status update", "error", err)
			return
		}
		if err := d.service.UpdateWorkerStatus(ctx, &upd); err != nil {
			d.logger.Warn("status update rejected", "worker_id", upd.WorkerID, "error", err)
		}

	case d.topics.Logs():
		var event domain.LogEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			d.logger.Debug("dropping malformed log event", "error", err)
			return
		}
		if event.Source == d.source {
			return
		}
		d.logger.Info("worker log", "source", event.Source, "message", event.Message, "timestamp", event.Timestamp)

	default:
		d.logger.Warn("message on unexpected topic", "topic", topic)
	}
}
