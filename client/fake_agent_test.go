package client

import (
	"context"
	"io"
	"sync"

	"github.com/loomdoc/synckit/internal/agentrpc"
)

// fakeWatchStream is a controllable agentrpc.WatchStream for tests: the
// test pushes frames or an error and the watch loop's reader goroutine
// observes them exactly as it would a real gRPC stream.
type fakeWatchStream struct {
	ctx    context.Context
	frames chan *agentrpc.WatchDocumentsResponse
	errs   chan error
	closed chan struct{}
	once   sync.Once
}

func newFakeWatchStream(ctx context.Context) *fakeWatchStream {
	return &fakeWatchStream{
		ctx:    ctx,
		frames: make(chan *agentrpc.WatchDocumentsResponse, 8),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (f *fakeWatchStream) Recv() (*agentrpc.WatchDocumentsResponse, error) {
	select {
	case fr, ok := <-f.frames:
		if !ok {
			return nil, io.EOF
		}
		return fr, nil
	case err := <-f.errs:
		return nil, err
	case <-f.closed:
		return nil, io.EOF
	case <-f.ctx.Done():
		return nil, f.ctx.Err()
	}
}

func (f *fakeWatchStream) CloseSend() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

// push delivers a frame to the stream's reader.
func (f *fakeWatchStream) push(resp *agentrpc.WatchDocumentsResponse) {
	f.frames <- resp
}

// fail ends the stream with err, simulating a transport drop.
func (f *fakeWatchStream) fail(err error) {
	f.errs <- err
}

// fakeAgent is a hand-written agentrpc.AgentClient used to drive the
// client package's test scenarios without a network.
type fakeAgent struct {
	mu sync.Mutex

	clientID []byte

	activateErr   error
	deactivateErr error
	attachErr     error
	detachErr     error
	pushPullErr   error
	watchErr      error

	attachResp   agentrpc.AttachDocumentResponse
	detachResp   agentrpc.DetachDocumentResponse
	pushPullResp agentrpc.PushPullResponse

	activateCalls   int
	deactivateCalls int
	attachCalls     int
	detachCalls     int
	pushPullCalls   int

	watchReqs []*agentrpc.WatchDocumentsRequest
	streams   []*fakeWatchStream

	// pushPullGate, when non-nil, holds PushPull "in flight" until it is
	// closed. pushPullInside, when non-nil, receives a signal the moment
	// PushPull is entered, before it blocks on the gate. Together they
	// let a test race something else against an outbound PushPull call.
	pushPullGate   chan struct{}
	pushPullInside chan struct{}
}

func (f *fakeAgent) ActivateClient(ctx context.Context, req *agentrpc.ActivateClientRequest) (*agentrpc.ActivateClientResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activateCalls++
	if f.activateErr != nil {
		return nil, f.activateErr
	}
	return &agentrpc.ActivateClientResponse{ClientID: f.clientID}, nil
}

func (f *fakeAgent) DeactivateClient(ctx context.Context, req *agentrpc.DeactivateClientRequest) (*agentrpc.DeactivateClientResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivateCalls++
	if f.deactivateErr != nil {
		return nil, f.deactivateErr
	}
	return &agentrpc.DeactivateClientResponse{}, nil
}

func (f *fakeAgent) AttachDocument(ctx context.Context, req *agentrpc.AttachDocumentRequest) (*agentrpc.AttachDocumentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attachCalls++
	if f.attachErr != nil {
		return nil, f.attachErr
	}
	resp := f.attachResp
	return &resp, nil
}

func (f *fakeAgent) DetachDocument(ctx context.Context, req *agentrpc.DetachDocumentRequest) (*agentrpc.DetachDocumentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detachCalls++
	if f.detachErr != nil {
		return nil, f.detachErr
	}
	resp := f.detachResp
	return &resp, nil
}

func (f *fakeAgent) PushPull(ctx context.Context, req *agentrpc.PushPullRequest) (*agentrpc.PushPullResponse, error) {
	f.mu.Lock()
	gate := f.pushPullGate
	inside := f.pushPullInside
	f.mu.Unlock()

	if inside != nil {
		select {
		case inside <- struct{}{}:
		default:
		}
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushPullCalls++
	if f.pushPullErr != nil {
		return nil, f.pushPullErr
	}
	resp := f.pushPullResp
	return &resp, nil
}

func (f *fakeAgent) WatchDocuments(ctx context.Context, req *agentrpc.WatchDocumentsRequest) (agentrpc.WatchStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watchErr != nil {
		return nil, f.watchErr
	}
	f.watchReqs = append(f.watchReqs, req)
	s := newFakeWatchStream(ctx)
	f.streams = append(f.streams, s)
	return s, nil
}

func (f *fakeAgent) pushPullCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushPullCalls
}

func (f *fakeAgent) watchCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.watchReqs)
}

func (f *fakeAgent) lastWatchReq() *agentrpc.WatchDocumentsRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.watchReqs) == 0 {
		return nil
	}
	return f.watchReqs[len(f.watchReqs)-1]
}

func (f *fakeAgent) lastStream() *fakeWatchStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.streams) == 0 {
		return nil
	}
	return f.streams[len(f.streams)-1]
}

func (f *fakeAgent) streamCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams)
}
