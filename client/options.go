package client

import (
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/loomdoc/synckit/document"
)

const (
	defaultSyncLoopDuration     = 50 * time.Millisecond
	defaultReconnectStreamDelay = 1000 * time.Millisecond
)

// options collects the values every Option mutates. New starts from the
// default durations and applies each Option over them; the key,
// metadata and logger get their defaults when left empty.
type options struct {
	key                  string
	metadata             document.PresenceInfo
	token                string
	syncLoopDuration     time.Duration
	reconnectStreamDelay time.Duration
	logger               *zap.Logger
	dialOptions          []grpc.DialOption
}

// Option configures a Client constructed by New or Dial.
type Option func(*options)

// WithKey sets the client's local key. If unset, New generates a fresh
// UUID.
func WithKey(key string) Option {
	return func(o *options) { o.key = key }
}

// WithMetadata sets the presence metadata advertised to peers.
func WithMetadata(metadata document.PresenceInfo) Option {
	return func(o *options) { o.metadata = metadata }
}

// WithToken sets the bearer token injected on every outbound RPC.
func WithToken(token string) Option {
	return func(o *options) { o.token = token }
}

// WithSyncLoopDuration overrides the sync loop's connected-state tick
// period (default 50ms).
func WithSyncLoopDuration(d time.Duration) Option {
	return func(o *options) { o.syncLoopDuration = d }
}

// WithReconnectStreamDelay overrides the watch-stream reconnect backoff,
// which doubles as the sync loop's degraded-mode tick period while the
// stream is down (default 1000ms).
func WithReconnectStreamDelay(d time.Duration) Option {
	return func(o *options) { o.reconnectStreamDelay = d }
}

// WithLogger overrides the default zap.NewProduction() logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithDialOptions appends extra grpc.DialOption values used by Dial,
// e.g. TLS transport credentials.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *options) { o.dialOptions = append(o.dialOptions, opts...) }
}
