package etcd

import (
	"context"
	"errors"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// ErrNoEndpoints is returned when the credential source is etcd but no endpoint is set.
var ErrNoEndpoints = errors.New("etcd: no endpoints configured")

// NewClient creates the client the credential source reads and watches through.
// Connections are established lazily; use Reachable to check the cluster.
func NewClient(endpoints []string, timeout time.Duration) (*clientv3.Client, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:            endpoints,
		DialTimeout:          timeout,
		DialKeepAliveTime:    30 * time.Second,
		DialKeepAliveTimeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client for %v: %w", endpoints, err)
	}
	return cli, nil
}

// Reachable reports whether any configured endpoint answers a status request.
func Reachable(ctx context.Context, cli *clientv3.Client) error {
	var errs []error
	for _, ep := range cli.Endpoints() {
		if _, err := cli.Status(ctx, ep); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ep, err))
			continue
		}
		return nil
	}
	return errors.Join(errs...)
}
