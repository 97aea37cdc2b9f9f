package client

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// tokenHeader is the gRPC metadata key the agent's auth middleware reads
// the bearer token from.
const tokenHeader = "authorization"

// authInterceptor injects the configured bearer token into every
// outbound RPC's metadata, unary or streaming.
type authInterceptor struct {
	token string
}

func newAuthInterceptor(token string) *authInterceptor {
	return &authInterceptor{token: token}
}

func (a *authInterceptor) attach(ctx context.Context) context.Context {
	if a.token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, tokenHeader, "Bearer "+a.token)
}

// Unary returns a grpc.UnaryClientInterceptor that attaches the token.
func (a *authInterceptor) Unary() grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		return invoker(a.attach(ctx), method, req, reply, cc, opts...)
	}
}

// Stream returns a grpc.StreamClientInterceptor that attaches the token.
func (a *authInterceptor) Stream() grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		return streamer(a.attach(ctx), desc, cc, method, opts...)
	}
}
