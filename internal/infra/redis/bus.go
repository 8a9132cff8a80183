package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"query-broker/internal/domain"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	minResubscribeDelay = 500 * time.Millisecond
	maxResubscribeDelay = 60 * time.Second
)

// Topics names the pub/sub channels shared by the broker and its workers.
type Topics struct {
	prefix string
}

// NewTopics builds topic names under prefix, e.g. "upb".
func NewTopics(prefix string) Topics {
	return Topics{prefix: prefix}
}

func (t Topics) Register() string { return t.prefix + "/workers/register" }
func (t Topics) Status() string   { return t.prefix + "/workers/status" }
func (t Topics) Logs() string     { return t.prefix + "/logs" }

// Tasks is the topic a single worker receives its tasks on.
func (t Topics) Tasks(workerID string) string {
	return t.prefix + "/workers/" + workerID + "/tasks"
}

// NewClient creates a Redis client whose connections retry with exponential backoff.
func NewClient(addr, password string, db int) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:            addr,
		Password:        password,
		DB:              db,
		MaxRetries:      5,
		MinRetryBackoff: 100 * time.Millisecond,
		MaxRetryBackoff: 5 * time.Second,
	})
}

// Handler receives one pub/sub message.
type Handler func(ctx context.Context, topic string, payload []byte)

// Bus publishes and consumes JSON messages over Redis pub/sub. Delivery is best-effort:
// a message published while nobody is subscribed is lost.
type Bus struct {
	rdb    *goredis.Client
	topics Topics
	source string
	logger *slog.Logger
	tracer trace.Tracer
}

// NewBus creates a bus. source is the name stamped on event-stream messages.
func NewBus(rdb *goredis.Client, topics Topics, source string, logger *slog.Logger) *Bus {
	return &Bus{
		rdb:    rdb,
		topics: topics,
		source: source,
		logger: logger.With("component", "redis-bus"),
		tracer: otel.Tracer("query-broker-bus"),
	}
}

// Topics returns the topic naming used by the bus.
func (b *Bus) Topics() Topics {
	return b.topics
}

// Publish marshals v as JSON and publishes it on topic.
func (b *Bus) Publish(ctx context.Context, topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message for %s: %w", topic, err)
	}
	if err := b.rdb.Publish(ctx, topic, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// DeliverTask publishes a task on the target worker's task topic.
func (b *Bus) DeliverTask(ctx context.Context, task *domain.TaskDelivery) error {
	topic := b.topics.Tasks(task.WorkerID)
	ctx, span := b.tracer.Start(ctx, "bus.DeliverTask", trace.WithAttributes(
		attribute.String("worker.id", task.WorkerID),
		attribute.String("session.id", task.SessionID),
		attribute.String("bus.topic", topic),
	))
	defer span.End()

	if err := b.Publish(ctx, topic, task); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish task")
		return err
	}
	return nil
}

// PublishEvent writes msg to the event stream. Failures are logged and otherwise ignored.
func (b *Bus) PublishEvent(ctx context.Context, msg string) {
	event := domain.LogEvent{
		Timestamp: time.Now().UnixMilli(),
		Source:    b.source,
		Message:   msg,
	}
	if err := b.Publish(ctx, b.topics.Logs(), event); err != nil {
		b.logger.Debug("dropped event-stream message", "error", err)
	}
}

// Subscribe consumes topics until ctx is cancelled, calling handle for every message.
// If the subscription cannot be established it is retried with exponential backoff;
// an established subscription reconnects on its own.
func (b *Bus) Subscribe(ctx context.Context, handle Handler, topics ...string) error {
	return b.SubscribeAndThen(ctx, nil, handle, topics...)
}

// SubscribeAndThen works like Subscribe but calls ready once, after Redis has confirmed
// the first subscription and before any message is handled. Messages published from
// that point on are not lost. An error from ready ends the subscription.
func (b *Bus) SubscribeAndThen(ctx context.Context, ready func(ctx context.Context) error, handle Handler, topics ...string) error {
	delay := minResubscribeDelay
	for {
		ps := b.rdb.Subscribe(ctx, topics...)
		if _, err := ps.Receive(ctx); err != nil {
			_ = ps.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Error("subscribe failed, retrying", "topics", topics, "retry_in", delay, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = min(delay*2, maxResubscribeDelay)
			continue
		}

		b.logger.Info("subscribed", "topics", topics)
		if ready != nil {
			if err := ready(ctx); err != nil {
				_ = ps.Close()
				return err
			}
			ready = nil
		}
		err := b.consume(ctx, ps, handle)
		_ = ps.Close()
		if err != nil {
			return err
		}
		delay = minResubscribeDelay
	}
}

func (b *Bus) consume(ctx context.Context, ps *goredis.PubSub, handle Handler) error {
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				b.logger.Warn("subscription channel closed, resubscribing")
				return nil
			}
			handle(ctx, msg.Channel, []byte(msg.Payload))
		}
	}
}

// Ping checks connectivity to Redis.
func (b *Bus) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}
