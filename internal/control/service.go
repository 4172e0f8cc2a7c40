// Package control exposes the batch runner over gRPC.
//
// The service is declared by hand and uses protobuf well-known types as
// messages, so no generated code is needed on either side:
//
//	StartBatch(Struct{ids, concurrency, all})  -> StringValue(task id)
//	ResumeBatch(Struct{ids, concurrency, all}) -> StringValue(task id)
//	StopBatch(StringValue)                     -> Empty
//	ForgetBatch(StringValue)                   -> Empty
//	BatchStatus(StringValue)                   -> Struct
//	Quota(Empty)                               -> Struct
package control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ServiceName = "gophenroll.control.BatchControl"

// BatchControlServer is implemented by *Server.
type BatchControlServer interface {
	StartBatch(ctx context.Context, in *structpb.Struct) (*wrapperspb.StringValue, error)
	ResumeBatch(ctx context.Context, in *structpb.Struct) (*wrapperspb.StringValue, error)
	StopBatch(ctx context.Context, in *wrapperspb.StringValue) (*emptypb.Empty, error)
	ForgetBatch(ctx context.Context, in *wrapperspb.StringValue) (*emptypb.Empty, error)
	BatchStatus(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error)
	Quota(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// unary builds the method descriptor for one request/response call.
func unary[Req proto.Message, Resp proto.Message](name string, newReq func() Req, call func(BatchControlServer, context.Context, Req) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(BatchControlServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(BatchControlServer), ctx, req.(Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func newStruct() *structpb.Struct        { return &structpb.Struct{} }
func newString() *wrapperspb.StringValue { return &wrapperspb.StringValue{} }
func newEmpty() *emptypb.Empty           { return &emptypb.Empty{} }

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BatchControlServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("StartBatch", newStruct, BatchControlServer.StartBatch),
		unary("ResumeBatch", newStruct, BatchControlServer.ResumeBatch),
		unary("StopBatch", newString, BatchControlServer.StopBatch),
		unary("ForgetBatch", newString, BatchControlServer.ForgetBatch),
		unary("BatchStatus", newString, BatchControlServer.BatchStatus),
		unary("Quota", newEmpty, BatchControlServer.Quota),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gophenroll/control.proto",
}

// RegisterBatchControlServer registers srv on s.
func RegisterBatchControlServer(s grpc.ServiceRegistrar, srv BatchControlServer) {
	s.RegisterService(&serviceDesc, srv)
}
