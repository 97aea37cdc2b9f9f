package agentrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

const (
	serviceName = "synckit.Agent"

	methodActivateClient   = "/" + serviceName + "/ActivateClient"
	methodDeactivateClient = "/" + serviceName + "/DeactivateClient"
	methodAttachDocument   = "/" + serviceName + "/AttachDocument"
	methodDetachDocument   = "/" + serviceName + "/DetachDocument"
	methodPushPull         = "/" + serviceName + "/PushPull"
	methodWatchDocuments   = "/" + serviceName + "/WatchDocuments"
)

var watchDocumentsStreamDesc = grpc.StreamDesc{
	StreamName:    "WatchDocuments",
	ServerStreams: true,
}

// GRPCClient binds AgentClient to a real *grpc.ClientConn. Every call
// rides the "json" content-subtype codec registered in init, and every
// call option list includes CallContentSubtype so grpc picks that codec
// instead of the unavailable protobuf default.
type GRPCClient struct {
	cc *grpc.ClientConn
}

// NewGRPCClient wraps an already-dialed connection. Dialing (TLS
// selection, auth interceptor registration) is the caller's
// responsibility — see client.Dial in the parent module.
func NewGRPCClient(cc *grpc.ClientConn) *GRPCClient {
	return &GRPCClient{cc: cc}
}

func callOpts() []grpc.CallOption {
	return []grpc.CallOption{grpc.CallContentSubtype(jsonCodecName)}
}

func (g *GRPCClient) ActivateClient(ctx context.Context, req *ActivateClientRequest) (*ActivateClientResponse, error) {
	resp := &ActivateClientResponse{}
	if err := g.cc.Invoke(ctx, methodActivateClient, req, resp, callOpts()...); err != nil {
		return nil, err
	}
	return resp, nil
}

func (g *GRPCClient) DeactivateClient(ctx context.Context, req *DeactivateClientRequest) (*DeactivateClientResponse, error) {
	resp := &DeactivateClientResponse{}
	if err := g.cc.Invoke(ctx, methodDeactivateClient, req, resp, callOpts()...); err != nil {
		return nil, err
	}
	return resp, nil
}

func (g *GRPCClient) AttachDocument(ctx context.Context, req *AttachDocumentRequest) (*AttachDocumentResponse, error) {
	resp := &AttachDocumentResponse{}
	if err := g.cc.Invoke(ctx, methodAttachDocument, req, resp, callOpts()...); err != nil {
		return nil, err
	}
	return resp, nil
}

func (g *GRPCClient) DetachDocument(ctx context.Context, req *DetachDocumentRequest) (*DetachDocumentResponse, error) {
	resp := &DetachDocumentResponse{}
	if err := g.cc.Invoke(ctx, methodDetachDocument, req, resp, callOpts()...); err != nil {
		return nil, err
	}
	return resp, nil
}

func (g *GRPCClient) PushPull(ctx context.Context, req *PushPullRequest) (*PushPullResponse, error) {
	resp := &PushPullResponse{}
	if err := g.cc.Invoke(ctx, methodPushPull, req, resp, callOpts()...); err != nil {
		return nil, err
	}
	return resp, nil
}

func (g *GRPCClient) WatchDocuments(ctx context.Context, req *WatchDocumentsRequest) (WatchStream, error) {
	stream, err := g.cc.NewStream(ctx, &watchDocumentsStreamDesc, methodWatchDocuments, callOpts()...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &grpcWatchStream{stream: stream}, nil
}

type grpcWatchStream struct {
	stream grpc.ClientStream
}

func (w *grpcWatchStream) Recv() (*WatchDocumentsResponse, error) {
	resp := &WatchDocumentsResponse{}
	if err := w.stream.RecvMsg(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (w *grpcWatchStream) CloseSend() error {
	return w.stream.CloseSend()
}
