package client

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/loomdoc/synckit/internal/agentrpc"
)

// pushPull performs one push-pull round for a single document: snapshot
// local changes, send them with the current checkpoint, apply whatever
// the agent sends back. a.syncMu totally orders this document's
// push-pulls against each other regardless of whether the caller is the
// sync loop or a manual Sync call.
//
// On success it publishes DocumentSyncedEvent(SyncStatusSynced) unless
// the Client has since deactivated. On failure it returns the error
// without publishing anything — the caller (Sync or the sync loop) is
// responsible for the batch-level SyncFailed event.
func (c *Client) pushPull(ctx context.Context, key string, a *attachment) error {
	a.syncMu.Lock()
	defer a.syncMu.Unlock()

	pack, err := a.doc.CreateChangePack()
	if err != nil {
		return fmt.Errorf("client: pushpull %s: create change pack: %w", key, err)
	}

	c.mu.Lock()
	id := c.id
	c.mu.Unlock()

	c.logger.Debug("pushpull: sending local changes",
		zap.String("op", opPushPull),
		zap.String("key", key),
		zap.Int("localSize", pack.Ops),
	)

	resp, err := c.rpc.PushPull(ctx, &agentrpc.PushPullRequest{ClientID: id, ChangePack: pack})
	if err != nil {
		c.logger.Error("pushpull failed", zap.String("op", opPushPull), zap.String("key", key), zap.Error(err))
		return fmt.Errorf("client: pushpull %s: %w", key, err)
	}

	if err := a.doc.ApplyChangePack(resp.ChangePack); err != nil {
		c.logger.Error("pushpull apply failed", zap.String("op", opPushPull), zap.String("key", key), zap.Error(err))
		return fmt.Errorf("client: pushpull %s: apply change pack: %w", key, err)
	}

	if c.IsActive() {
		c.bus.Publish(DocumentSyncedEvent{Status: SyncStatusSynced})
	}
	return nil
}
