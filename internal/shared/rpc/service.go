package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName        = "gotransform.v1.Coordinator"
	PullTaskMethod     = "/" + ServiceName + "/PullTask"
	ReportResultMethod = "/" + ServiceName + "/ReportResult"
	HeartbeatMethod    = "/" + ServiceName + "/Heartbeat"
)

// CoordinatorServer is implemented by the coordinator's gRPC endpoint.
type CoordinatorServer interface {
	PullTask(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ReportResult(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Heartbeat(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

func RegisterCoordinatorServer(s grpc.ServiceRegistrar, srv CoordinatorServer) {
	s.RegisterService(&ServiceDesc, srv)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CoordinatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PullTask", Handler: pullTaskHandler},
		{MethodName: "ReportResult", Handler: reportResultHandler},
		{MethodName: "Heartbeat", Handler: heartbeatHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gotransform/v1/coordinator",
}

func pullTaskHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CoordinatorServer).PullTask(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PullTaskMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CoordinatorServer).PullTask(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func reportResultHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CoordinatorServer).ReportResult(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ReportResultMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CoordinatorServer).ReportResult(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func heartbeatHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CoordinatorServer).Heartbeat(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: HeartbeatMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CoordinatorServer).Heartbeat(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// CoordinatorStub invokes the coordinator service over a client connection.
type CoordinatorStub struct {
	cc grpc.ClientConnInterface
}

func NewCoordinatorStub(cc grpc.ClientConnInterface) *CoordinatorStub {
	return &CoordinatorStub{cc: cc}
}

func (c *CoordinatorStub) PullTask(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, PullTaskMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CoordinatorStub) ReportResult(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ReportResultMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CoordinatorStub) Heartbeat(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, HeartbeatMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
