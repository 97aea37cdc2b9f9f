/*
 * Copyright 2025 The Synckit Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package client is the client-side coordination core of a real-time
// collaborative document service: it represents a single end user's
// session to a central coordinating agent and drives replication of
// that user's attached CRDT documents with remote peers.
//
// A Client is conceptually single-threaded cooperative: every mutation
// to its status, attachment registry, server identity, and watch-stream
// handle is serialized on Client.mu, so RPC and watch-stream callbacks
// take the same lock before touching shared state.
package client

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/loomdoc/synckit/document"
	"github.com/loomdoc/synckit/internal/agentrpc"
)

// Client represents a single user's session against the agent. It owns
// the attachment registry, drives the sync and watch loops once
// activated, and fans out session events to subscribers.
type Client struct {
	conn        *grpc.ClientConn
	rpc         agentrpc.AgentClient
	dialOptions []grpc.DialOption
	logger      *zap.Logger

	key      string
	metadata document.PresenceInfo
	token    string

	syncLoopPeriod time.Duration
	reconnectDelay time.Duration

	bus *eventBus

	mu           sync.Mutex
	status       Status
	id           []byte
	registry     map[string]*attachment
	cancelLoops  context.CancelFunc
	streamCancel context.CancelFunc
	reconnectTmr *time.Timer
	streamConn   bool
	watchRestart chan struct{}

	wg sync.WaitGroup

	// epoch is bumped on every Activate/Deactivate. Async work (RPC
	// completions, stream frames, reconnect timers) captures the epoch
	// current when it started and drops its result if the epoch has
	// since moved on — the late-arrival safety guard.
	epoch int64
}

// New creates a Client without dialing a server. Use Dial for the
// common case of creating and connecting in one step, or New followed
// by a manual transport wiring (useful in tests, which substitute a
// fake agentrpc.AgentClient).
func New(opts ...Option) (*Client, error) {
	o := options{
		syncLoopDuration:     defaultSyncLoopDuration,
		reconnectStreamDelay: defaultReconnectStreamDelay,
	}
	for _, opt := range opts {
		opt(&o)
	}

	key := o.key
	if key == "" {
		key = uuid.NewString()
	}

	metadata := o.metadata
	if metadata == nil {
		metadata = document.PresenceInfo{}
	}

	logger := o.logger
	if logger == nil {
		l, err := zap.NewProduction()
		if err != nil {
			return nil, fmt.Errorf("client: build default logger: %w", err)
		}
		logger = l
	}

	return &Client{
		dialOptions:    o.dialOptions,
		logger:         logger,
		key:            key,
		metadata:       metadata,
		token:          o.token,
		syncLoopPeriod: o.syncLoopDuration,
		reconnectDelay: o.reconnectStreamDelay,
		bus:            newEventBus(),
		registry:       make(map[string]*attachment),
		watchRestart:   make(chan struct{}, 1),
	}, nil
}

// Dial creates a Client and dials rpcAddr.
func Dial(rpcAddr string, opts ...Option) (*Client, error) {
	c, err := New(opts...)
	if err != nil {
		return nil, err
	}
	if err := c.Dial(rpcAddr); err != nil {
		return nil, err
	}
	return c, nil
}

// Dial connects this Client to rpcAddr over gRPC, wiring the auth
// interceptor so every outbound RPC and stream carries the configured
// bearer token.
func (c *Client) Dial(rpcAddr string, extra ...grpc.DialOption) error {
	interceptor := newAuthInterceptor(c.token)

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(interceptor.Unary()),
		grpc.WithStreamInterceptor(interceptor.Stream()),
	}
	dialOpts = append(dialOpts, c.dialOptions...)
	dialOpts = append(dialOpts, extra...)

	conn, err := grpc.NewClient(rpcAddr, dialOpts...)
	if err != nil {
		return fmt.Errorf("client: dial %s: %w", rpcAddr, err)
	}

	c.conn = conn
	c.rpc = agentrpc.NewGRPCClient(conn)
	return nil
}

// WithTLS builds a Dial-time grpc.DialOption from a certificate file,
// for callers that need TLS instead of the insecure default transport.
func WithTLS(certFile, serverNameOverride string) (grpc.DialOption, error) {
	creds, err := credentials.NewClientTLSFromFile(certFile, serverNameOverride)
	if err != nil {
		return nil, fmt.Errorf("client: load TLS credentials: %w", err)
	}
	return grpc.WithTransportCredentials(creds), nil
}

// Close deactivates the Client and closes its underlying connection, if
// any: deactivate first so the agent sees a clean DeactivateClient
// before the socket goes away.
func (c *Client) Close() error {
	if err := c.Deactivate(context.Background()); err != nil {
		return err
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Activate registers this Client with the agent. It is idempotent when
// already Activated. On success it stores the agent-assigned identity,
// transitions to Activated, starts the sync and watch loops, and
// publishes StatusChangedEvent(Activated).
func (c *Client) Activate(ctx context.Context) error {
	c.mu.Lock()
	if c.status == StatusActivated {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	resp, err := c.rpc.ActivateClient(ctx, &agentrpc.ActivateClientRequest{ClientKey: c.key})
	if err != nil {
		c.logger.Error("activate failed", zap.String("op", opActivate), zap.Error(err))
		return fmt.Errorf("client: activate: %w", err)
	}

	epoch := atomic.AddInt64(&c.epoch, 1)
	loopCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.id = resp.ClientID
	c.status = StatusActivated
	c.cancelLoops = cancel
	c.mu.Unlock()

	c.wg.Add(2)
	go c.runSyncLoop(loopCtx, epoch)
	go c.runWatchLoop(loopCtx, epoch)

	c.bus.Publish(StatusChangedEvent{Status: StatusActivated})
	return nil
}

// Deactivate releases this Client's identity with the agent. It is
// idempotent when already Deactivated. The watch stream (if any) is
// cancelled synchronously; in-flight push-pulls are allowed to
// complete, but their results are discarded by the epoch guard before
// they can publish events.
func (c *Client) Deactivate(ctx context.Context) error {
	c.mu.Lock()
	if c.status == StatusDeactivated {
		c.mu.Unlock()
		return nil
	}
	id := c.id
	cancel := c.cancelLoops
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	_, err := c.rpc.DeactivateClient(ctx, &agentrpc.DeactivateClientRequest{ClientID: id})
	if err != nil {
		c.logger.Error("deactivate failed", zap.String("op", opDeactivate), zap.Error(err))
		return fmt.Errorf("client: deactivate: %w", err)
	}

	atomic.AddInt64(&c.epoch, 1)

	c.mu.Lock()
	c.status = StatusDeactivated
	c.id = nil
	c.streamConn = false
	c.cancelLoops = nil
	c.mu.Unlock()

	c.bus.Publish(StatusChangedEvent{Status: StatusDeactivated})
	return nil
}

// Attach attaches doc to this Client. If manualSync is false (the
// common case), the sync and watch loops drive this document
// autonomously; if true, only explicit Sync calls move data.
func (c *Client) Attach(ctx context.Context, doc document.Handle, manualSync bool) error {
	c.mu.Lock()
	if c.status != StatusActivated {
		c.mu.Unlock()
		return ErrClientNotActive
	}
	if _, exists := c.registry[doc.Key()]; exists {
		c.mu.Unlock()
		return ErrAlreadyAttached
	}
	id := c.id
	c.mu.Unlock()

	doc.SetActor(hex.EncodeToString(id))

	pack, err := doc.CreateChangePack()
	if err != nil {
		return fmt.Errorf("client: attach %s: create change pack: %w", doc.Key(), err)
	}

	resp, err := c.rpc.AttachDocument(ctx, &agentrpc.AttachDocumentRequest{ClientID: id, ChangePack: pack})
	if err != nil {
		c.logger.Error("attach failed", zap.String("op", opAttach), zap.String("key", doc.Key()), zap.Error(err))
		return fmt.Errorf("client: attach %s: %w", doc.Key(), err)
	}

	if err := doc.ApplyChangePack(resp.ChangePack); err != nil {
		return fmt.Errorf("client: attach %s: apply change pack: %w", doc.Key(), err)
	}

	c.mu.Lock()
	c.registry[doc.Key()] = newAttachment(doc, !manualSync)
	c.mu.Unlock()

	c.triggerWatchRestart()
	return nil
}

// Detach detaches doc from this Client. A watch frame referencing a
// document detached just before it arrives is dropped silently by the
// demultiplexer's registry lookup.
func (c *Client) Detach(ctx context.Context, doc document.Handle) error {
	c.mu.Lock()
	if c.status != StatusActivated {
		c.mu.Unlock()
		return ErrClientNotActive
	}
	if _, ok := c.registry[doc.Key()]; !ok {
		c.mu.Unlock()
		return ErrDocumentNotAttached
	}
	id := c.id
	c.mu.Unlock()

	pack, err := doc.CreateChangePack()
	if err != nil {
		return fmt.Errorf("client: detach %s: create change pack: %w", doc.Key(), err)
	}

	resp, err := c.rpc.DetachDocument(ctx, &agentrpc.DetachDocumentRequest{ClientID: id, ChangePack: pack})
	if err != nil {
		c.logger.Error("detach failed", zap.String("op", opDetach), zap.String("key", doc.Key()), zap.Error(err))
		return fmt.Errorf("client: detach %s: %w", doc.Key(), err)
	}

	if err := doc.ApplyChangePack(resp.ChangePack); err != nil {
		return fmt.Errorf("client: detach %s: apply change pack: %w", doc.Key(), err)
	}

	c.mu.Lock()
	delete(c.registry, doc.Key())
	c.mu.Unlock()

	c.triggerWatchRestart()
	return nil
}

// Sync triggers one push-pull for every attached document, realtime or
// manual — unlike the sync loop, which only ever touches realtime-sync
// attachments, the public Sync call is exhaustive. It resolves with the
// synced document keys once all complete; if any sub-sync fails it
// publishes DocumentSyncedEvent(SyncStatusFailed) exactly once and
// returns the first error.
func (c *Client) Sync(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	if c.status != StatusActivated {
		c.mu.Unlock()
		return nil, ErrClientNotActive
	}
	atts := make(map[string]*attachment, len(c.registry))
	for k, a := range c.registry {
		atts[k] = a
	}
	c.mu.Unlock()

	if len(atts) == 0 {
		return nil, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	keys := make([]string, 0, len(atts))
	for k, a := range atts {
		k, a := k, a
		keys = append(keys, k)
		g.Go(func() error { return c.pushPull(gctx, k, a) })
	}

	if err := g.Wait(); err != nil {
		c.bus.Publish(DocumentSyncedEvent{Status: SyncStatusFailed, Err: err})
		return nil, err
	}
	return keys, nil
}

// Subscribe registers observer as a hot subscriber of this Client's
// session events. Returned unsubscribe removes it; observers never
// receive events published before they subscribed.
func (c *Client) Subscribe(observer func(Event)) (unsubscribe func()) {
	return c.bus.Subscribe(observer)
}

// ID returns the hex-encoded agent-assigned identity, or "" while
// Deactivated.
func (c *Client) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.id == nil {
		return ""
	}
	return hex.EncodeToString(c.id)
}

// Key returns the caller-supplied or generated local key.
func (c *Client) Key() string {
	return c.key
}

// StatusNow returns the current Session state.
func (c *Client) StatusNow() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Metadata returns a copy of the presence metadata advertised to peers.
func (c *Client) Metadata() document.PresenceInfo {
	return c.metadata.Clone()
}

// IsActive reports whether the Client is currently Activated.
func (c *Client) IsActive() bool {
	return c.StatusNow() == StatusActivated
}

func (c *Client) currentEpoch() int64 {
	return atomic.LoadInt64(&c.epoch)
}

func (c *Client) epochCurrent(epoch int64) bool {
	return c.currentEpoch() == epoch
}
