package client

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// runSyncLoop is a single cooperative task per activation that
// periodically pushes local changes and pulls remote ones for every
// realtime-sync attachment. It exits as soon as ctx is cancelled, which
// happens synchronously from Deactivate.
func (c *Client) runSyncLoop(ctx context.Context, epoch int64) {
	defer c.wg.Done()

	delay := c.syncLoopPeriod
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		if !c.epochCurrent(epoch) {
			return
		}

		connected := c.isStreamConnected()
		if err := c.syncTick(epoch); err != nil {
			delay = c.reconnectDelay
			continue
		}

		if connected {
			delay = c.syncLoopPeriod
		} else {
			// No watch stream means no remote-dirty signal, so the
			// degraded-mode cadence doubles as the sync tick.
			delay = c.reconnectDelay
		}
	}
}

// syncTick runs one sync-loop iteration: select realtime attachments
// with local or remote-pending changes, clear remoteDirty before
// issuing each push-pull so a change arriving mid-RPC re-triggers a
// follow-up sync, then run all selected push-pulls concurrently.
//
// Push-pulls are issued on a context derived independently of the sync
// loop's own lifecycle, not the ctx the loop selects on: a document's
// local changes are already drained into the outbound change pack by
// the time the RPC is sent, so a Deactivate racing this tick must let
// the RPC complete rather than cancel it out from under those changes.
// The epoch guard below is what discards a stale result instead.
func (c *Client) syncTick(epoch int64) error {
	type selected struct {
		key string
		att *attachment
	}

	c.mu.Lock()
	var picks []selected
	for key, att := range c.registry {
		if !att.realtimeSync {
			continue
		}
		if att.doc.HasLocalChanges() || att.remoteDirty {
			att.remoteDirty = false
			picks = append(picks, selected{key: key, att: att})
		}
	}
	c.mu.Unlock()

	if len(picks) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(context.Background())
	for _, p := range picks {
		p := p
		g.Go(func() error { return c.pushPull(gctx, p.key, p.att) })
	}

	if err := g.Wait(); err != nil {
		if c.epochCurrent(epoch) {
			c.bus.Publish(DocumentSyncedEvent{Status: SyncStatusFailed, Err: err})
		}
		return err
	}
	return nil
}

func (c *Client) isStreamConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streamConn
}
