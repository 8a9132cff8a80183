package etcd

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewClientRequiresEndpoints(t *testing.T) {
	if _, err := NewClient(nil, time.Second); !errors.Is(err, ErrNoEndpoints) {
		t.Fatalf("expected ErrNoEndpoints, got %v", err)
	}
}

func TestReachableReportsDownCluster(t *testing.T) {
	cli, err := NewClient([]string{"127.0.0.1:1"}, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer cli.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := Reachable(ctx, cli); err == nil {
		t.Fatalf("expected an error for an unreachable endpoint")
	}
}
