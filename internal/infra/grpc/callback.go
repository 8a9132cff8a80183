// Package grpc carries worker completion callbacks over gRPC.
//
// The service is worker.WorkerCallback with a single unary method, SendResult. Requests
// and responses are google.protobuf.Struct messages whose fields mirror
// domain.CompletionRecord and domain.CompletionAck, so no generated code is needed on
// either side.
//
// The method path is the one declared in worker.proto, but the messages are not the
// typed ones that file defines. The wire formats are incompatible: a worker using
// generated TaskResult stubs cannot call this server. Workers must send Structs, as
// CallbackClient does.
package grpc

import (
	"context"
	"encoding/json"
	"fmt"

	"query-broker/internal/domain"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName      = "worker.WorkerCallback"
	sendResultMethod = "/worker.WorkerCallback/SendResult"
)

// WorkerCallbackServer is the server API for the WorkerCallback service.
type WorkerCallbackServer interface {
	SendResult(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var workerCallbackServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*WorkerCallbackServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SendResult",
			Handler:    sendResultHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "worker.proto",
}

// RegisterWorkerCallbackServer registers srv on s.
func RegisterWorkerCallbackServer(s grpc.ServiceRegistrar, srv WorkerCallbackServer) {
	s.RegisterService(&workerCallbackServiceDesc, srv)
}

func sendResultHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WorkerCallbackServer).SendResult(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: sendResultMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(WorkerCallbackServer).SendResult(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// toStruct converts a JSON-tagged value into a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// fromStruct decodes a Struct into a JSON-tagged value. Struct numbers are doubles,
// which hold millisecond timestamps exactly.
func fromStruct(s *structpb.Struct, v any) error {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %T: %w", v, err)
	}
	return nil
}

func recordToStruct(rec *domain.CompletionRecord) (*structpb.Struct, error) {
	return toStruct(rec)
}

func recordFromStruct(s *structpb.Struct) (*domain.CompletionRecord, error) {
	var rec domain.CompletionRecord
	if err := fromStruct(s, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
