package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName полное имя gRPC-сервиса проверки плана и лимитов.
const ServiceName = "goflexconnect.usage.v1.UsageGate"

// Полные имена методов UsageGate.
const (
	ResolvePlanMethod = "/" + ServiceName + "/ResolvePlan"
	CheckLimitMethod  = "/" + ServiceName + "/CheckLimit"
)

// UsageGateServer серверная часть UsageGate.
// Запросы и ответы передаются как google.protobuf.Struct.
type UsageGateServer interface {
	ResolvePlan(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CheckLimit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// UsageGateServiceDesc описание сервиса для grpc.Server.RegisterService.
var UsageGateServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*UsageGateServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ResolvePlan",
			Handler:    resolvePlanHandler,
		},
		{
			MethodName: "CheckLimit",
			Handler:    checkLimitHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "goflexconnect/usage/v1/usage_gate.proto",
}

// RegisterUsageGateServer регистрирует реализацию UsageGate на сервере.
func RegisterUsageGateServer(s grpc.ServiceRegistrar, srv UsageGateServer) {
	s.RegisterService(&UsageGateServiceDesc, srv)
}

func resolvePlanHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(UsageGateServer).ResolvePlan(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ResolvePlanMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(UsageGateServer).ResolvePlan(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func checkLimitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(UsageGateServer).CheckLimit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: CheckLimitMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(UsageGateServer).CheckLimit(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
