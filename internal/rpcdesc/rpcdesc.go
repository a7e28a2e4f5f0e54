// Package rpcdesc builds gRPC service descriptors for services whose
// messages are protobuf well-known types, so no generated stubs are needed.
package rpcdesc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
)

// Unary describes one unary method of service S. newReq allocates the
// request message the codec decodes into.
func Unary[S any, Req, Resp proto.Message](service, method string, newReq func() Req, call func(S, context.Context, Req) (Resp, error)) grpc.MethodDesc {
	fullMethod := FullMethod(service, method)
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(S), ctx, req.(Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// FullMethod returns the "/service/method" path used on the wire.
func FullMethod(service, method string) string {
	return "/" + service + "/" + method
}

// Invoke calls a unary method on conn.
func Invoke(ctx context.Context, conn grpc.ClientConnInterface, service, method string, in, out proto.Message) error {
	return conn.Invoke(ctx, FullMethod(service, method), in, out)
}
