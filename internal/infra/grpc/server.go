package grpc

import (
	"context"
	"log/slog"

	"query-broker/internal/domain"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// CompletionService is what the callback server hands decoded completions to.
type CompletionService interface {
	CompleteTask(ctx context.Context, rec *domain.CompletionRecord) domain.CompletionAck
}

// CallbackServer implements WorkerCallbackServer on top of a CompletionService.
type CallbackServer struct {
	service CompletionService
	logger  *slog.Logger
}

// NewCallbackServer creates the completion callback endpoint.
func NewCallbackServer(service CompletionService, logger *slog.Logger) *CallbackServer {
	return &CallbackServer{
		service: service,
		logger:  logger.With("component", "grpc-callback-server"),
	}
}

// SendResult is the RPC method workers call when they finish a task.
func (s *CallbackServer) SendResult(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	rec, err := recordFromStruct(req)
	if err != nil {
		s.logger.Error("failed to decode completion", "error", err)
		return nil, status.Errorf(codes.InvalidArgument, "malformed completion: %v", err)
	}
	s.logger.Info("completion received", "worker_id", rec.WorkerID, "session_id", rec.SessionID)

	ack := s.service.CompleteTask(ctx, rec)
	out, err := toStruct(ack)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode ack: %v", err)
	}
	return out, nil
}

// NewServer creates a gRPC server with tracing and the callback service registered.
func NewServer(callback WorkerCallbackServer) *grpc.Server {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)
	RegisterWorkerCallbackServer(srv, callback)
	return srv
}
