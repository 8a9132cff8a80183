package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"query-broker/internal/domain"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// CallbackClient sends completions to whichever endpoint a task named. Connections are
// cached per endpoint.
type CallbackClient struct {
	mu       sync.Mutex
	conns    map[string]*grpc.ClientConn
	dialOpts []grpc.DialOption
	logger   *slog.Logger
}

// NewCallbackClient creates a client. Extra dial options are appended to the defaults.
func NewCallbackClient(logger *slog.Logger, opts ...grpc.DialOption) *CallbackClient {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		// Add OpenTelemetry Stats Handler for automatic trace propagation.
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}, opts...)
	return &CallbackClient{
		conns:    make(map[string]*grpc.ClientConn),
		dialOpts: dialOpts,
		logger:   logger.With("component", "grpc-callback-client"),
	}
}

// SendResult delivers rec to the callback service at endpoint.
func (c *CallbackClient) SendResult(ctx context.Context, endpoint string, rec *domain.CompletionRecord) (domain.CompletionAck, error) {
	conn, err := c.getOrCreateConn(endpoint)
	if err != nil {
		return domain.CompletionAck{}, err
	}

	in, err := recordToStruct(rec)
	if err != nil {
		return domain.CompletionAck{}, fmt.Errorf("failed to encode completion: %w", err)
	}
	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, sendResultMethod, in, out); err != nil {
		return domain.CompletionAck{}, fmt.Errorf("send result to %s: %w", endpoint, err)
	}

	var ack domain.CompletionAck
	if err := fromStruct(out, &ack); err != nil {
		return domain.CompletionAck{}, err
	}
	return ack, nil
}

func (c *CallbackClient) getOrCreateConn(endpoint string) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn, ok := c.conns[endpoint]; ok {
		return conn, nil
	}

	conn, err := grpc.NewClient(endpoint, c.dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to callback endpoint %s: %w", endpoint, err)
	}
	c.conns[endpoint] = conn
	c.logger.Info("created new gRPC client for callback endpoint", "endpoint", endpoint)
	return conn, nil
}

// Close closes every cached connection.
func (c *CallbackClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for endpoint, conn := range c.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.conns, endpoint)
	}
	return firstErr
}
