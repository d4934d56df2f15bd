package adminrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceDesc wires Server's handler methods directly into a grpc.Server,
// standing in for the generated ServiceDesc a .proto toolchain would
// otherwise produce. HandlerType is the empty interface so grpc.Server's
// RegisterService type check (ss must implement HandlerType) is always
// satisfied without a generated service interface to implement.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: "rocketspeed.admin.v1.AdminService",
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Health", Handler: methodHandler((*Server).Health)},
		{MethodName: "Logs", Handler: methodHandler((*Server).Logs)},
		{MethodName: "TailSeqno", Handler: methodHandler((*Server).TailSeqno)},
		{MethodName: "Subscriptions", Handler: methodHandler((*Server).Subscriptions)},
		{MethodName: "CacheStat", Handler: methodHandler((*Server).CacheStat)},
		{MethodName: "CacheSetCapacity", Handler: methodHandler((*Server).CacheSetCapacity)},
		{MethodName: "CacheClear", Handler: methodHandler((*Server).CacheClear)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rocketspeed/admin/v1/admin.proto",
}

func methodHandler(fn func(*Server, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
		req := &structpb.Struct{}
		if err := dec(req); err != nil {
			return nil, err
		}
		return fn(srv.(*Server), ctx, req)
	}
}
