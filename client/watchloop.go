package client

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/loomdoc/synckit/document"
	"github.com/loomdoc/synckit/internal/agentrpc"
)

// runWatchLoop is event-driven, not self-periodic: it (re)starts on
// activation, on every attach/detach (via the single-slot watchRestart
// channel), and on stream loss (via the reconnect timer arming another
// restart).
func (c *Client) runWatchLoop(ctx context.Context, epoch int64) {
	defer c.wg.Done()

	c.triggerWatchRestart()

	for {
		select {
		case <-ctx.Done():
			c.teardownWatchStream()
			return
		case <-c.watchRestart:
			c.startWatch(ctx, epoch)
		}
	}
}

// triggerWatchRestart posts a restart request. The channel is
// single-slot: a restart already pending absorbs this one, which is
// correct because startWatch always recomputes the key set from the
// live registry rather than from whatever triggered the restart.
func (c *Client) triggerWatchRestart() {
	select {
	case c.watchRestart <- struct{}{}:
	default:
	}
}

// startWatch performs one "start" of the watch loop: tear down any
// previous stream and reconnect timer, bail out if deactivated or if
// there is nothing realtime to watch, then open a fresh WatchDocuments
// stream and hand it to a reader goroutine.
func (c *Client) startWatch(ctx context.Context, epoch int64) {
	c.teardownWatchStream()

	if !c.epochCurrent(epoch) || !c.IsActive() {
		return
	}

	keys := c.realtimeKeys()
	if len(keys) == 0 {
		return
	}

	c.mu.Lock()
	id := c.id
	metadata := c.metadata
	c.mu.Unlock()

	streamCtx, cancel := context.WithCancel(ctx)

	stream, err := c.rpc.WatchDocuments(streamCtx, &agentrpc.WatchDocumentsRequest{
		ClientID:     id,
		Metadata:     metadata,
		DocumentKeys: toDocKeys(keys),
	})
	if err != nil {
		cancel()
		c.logger.Error("watch stream open failed", zap.Error(err))
		c.scheduleReconnect(epoch)
		return
	}

	c.mu.Lock()
	c.streamCancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go c.readWatchStream(streamCtx, stream, cancel, epoch, keys)
}

// readWatchStream drains frames from an open stream until it ends,
// publishing StreamStatusChangedEvent(Connected) on the first frame and
// routing every frame through the demultiplexer. A stream ended by its
// own context being cancelled (a restart or Deactivate) is not treated
// as a loss: no Disconnected event and no reconnect.
func (c *Client) readWatchStream(ctx context.Context, stream agentrpc.WatchStream, cancel context.CancelFunc, epoch int64, keys []string) {
	defer c.wg.Done()
	defer cancel()

	connectedPublished := false
	for {
		resp, err := stream.Recv()
		if err != nil {
			if ctx.Err() == nil {
				c.handleStreamEnd(epoch)
			}
			return
		}

		if !connectedPublished {
			connectedPublished = true
			c.mu.Lock()
			c.streamConn = true
			c.mu.Unlock()
			if c.epochCurrent(epoch) {
				c.bus.Publish(StreamStatusChangedEvent{Status: StreamConnected})
			}
		}

		c.handleWatchFrame(epoch, keys, resp)
	}
}

// handleStreamEnd implements the watch stream's onEnd/onError handler:
// drop the stream handle, publish Disconnected, and schedule a restart
// after reconnectDelay.
func (c *Client) handleStreamEnd(epoch int64) {
	if !c.epochCurrent(epoch) {
		return
	}

	c.mu.Lock()
	c.streamCancel = nil
	c.streamConn = false
	c.mu.Unlock()

	c.bus.Publish(StreamStatusChangedEvent{Status: StreamDisconnected})
	c.scheduleReconnect(epoch)
}

// scheduleReconnect arms a timer that requests a watch-loop restart
// after reconnectDelay. teardownWatchStream stops this timer on the
// next start.
func (c *Client) scheduleReconnect(epoch int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.reconnectTmr != nil {
		c.reconnectTmr.Stop()
	}
	c.reconnectTmr = time.AfterFunc(c.reconnectDelay, func() {
		if atomic.LoadInt64(&c.epoch) != epoch {
			return
		}
		c.triggerWatchRestart()
	})
}

// teardownWatchStream cancels any open stream and clears any armed
// reconnect timer.
func (c *Client) teardownWatchStream() {
	c.mu.Lock()
	cancel := c.streamCancel
	c.streamCancel = nil
	timer := c.reconnectTmr
	c.reconnectTmr = nil
	c.streamConn = false
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if timer != nil {
		timer.Stop()
	}
}

// realtimeKeys returns the document keys currently in realtime-sync
// mode — the subscribed key set a watch stream is opened against.
func (c *Client) realtimeKeys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.registry))
	for key, att := range c.registry {
		if att.realtimeSync {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func toDocKeys(keys []string) []document.Key {
	out := make([]document.Key, len(keys))
	for i, k := range keys {
		out[i] = document.Key(k)
	}
	return out
}
