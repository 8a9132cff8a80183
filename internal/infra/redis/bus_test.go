package redis

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"query-broker/internal/domain"

	goredis "github.com/redis/go-redis/v9"
)

func TestTopics(t *testing.T) {
	topics := NewTopics("upb")
	tests := []struct {
		got, want string
	}{
		{topics.Register(), "upb/workers/register"},
		{topics.Status(), "upb/workers/status"},
		{topics.Logs(), "upb/logs"},
		{topics.Tasks("go-worker-1"), "upb/workers/go-worker-1/tasks"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func unreachableBus() *Bus {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	return NewBus(rdb, NewTopics("upb"), "master", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDeliverTaskReportsTransportFailure(t *testing.T) {
	bus := unreachableBus()
	defer bus.rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := bus.DeliverTask(ctx, &domain.TaskDelivery{WorkerID: "w1", SessionID: "s1", CallbackEndpoint: "master:50051"})
	if err == nil {
		t.Fatalf("expected delivery error against an unreachable server")
	}
	// Event-stream failures are swallowed.
	bus.PublishEvent(ctx, "hello")
}

func TestPublishRejectsUnencodableValue(t *testing.T) {
	bus := unreachableBus()
	defer bus.rdb.Close()

	if err := bus.Publish(context.Background(), "upb/logs", make(chan int)); err == nil {
		t.Fatalf("expected marshal error")
	}
}

func TestSubscribeStopsOnCancel(t *testing.T) {
	bus := unreachableBus()
	defer bus.rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	readyCalled := false
	ready := func(context.Context) error {
		readyCalled = true
		return nil
	}
	err := bus.SubscribeAndThen(ctx, ready, func(context.Context, string, []byte) {}, "upb/logs")
	if err == nil {
		t.Fatalf("expected context error")
	}
	if readyCalled {
		t.Fatalf("ready must not run before the subscription is confirmed")
	}
}
