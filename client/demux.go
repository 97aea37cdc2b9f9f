package client

import (
	"go.uber.org/zap"

	"github.com/loomdoc/synckit/document"
	"github.com/loomdoc/synckit/internal/agentrpc"
)

// handleWatchFrame is the watch event demultiplexer. keys is the key
// set the owning stream was opened with; it is used to compute the
// PeersChanged payload and is independent of whatever the registry
// looks like by the time a given frame arrives.
func (c *Client) handleWatchFrame(epoch int64, keys []string, resp *agentrpc.WatchDocumentsResponse) {
	if !c.epochCurrent(epoch) {
		return
	}

	switch {
	case resp.Init != nil:
		c.handleInitFrame(keys, resp.Init)
	case resp.Event != nil:
		c.handleEventFrame(keys, resp.Event)
	}
}

// handleInitFrame applies the Initialization frame: overwrite each
// named document's peer set, then publish one PeersChanged event
// covering every key currently in the stream's key set.
func (c *Client) handleInitFrame(keys []string, init *agentrpc.InitializationFrame) {
	c.mu.Lock()
	for docKey, peers := range init.PeersByDoc {
		att, ok := c.registry[docKey]
		if !ok {
			// Detached before the stream's first frame arrived; drop.
			continue
		}
		peerMap := make(map[string]document.PresenceInfo, len(peers))
		for _, p := range peers {
			peerMap[p.PeerID] = p.Metadata.Clone()
		}
		att.peers = peerMap
	}
	snapshot := c.peersSnapshotLocked(keys)
	c.mu.Unlock()

	c.bus.Publish(PeersChangedEvent{PeersByDoc: snapshot})
}

// handleEventFrame applies one subsequent Event frame: peer-set
// mutations always precede the Session event they cause.
func (c *Client) handleEventFrame(keys []string, ev *agentrpc.EventFrame) {
	if ev.ServerTime != nil {
		c.logger.Debug("watch event",
			zap.String("type", string(ev.Type)),
			zap.String("publisher", ev.Publisher.PeerID),
			zap.Time("serverTime", ev.ServerTime.AsTime()),
		)
	}

	switch ev.Type {
	case agentrpc.DocumentsWatched:
		c.mu.Lock()
		for _, k := range ev.DocumentKeys {
			if att, ok := c.registry[string(k)]; ok {
				att.peers[ev.Publisher.PeerID] = ev.Publisher.Metadata.Clone()
			}
		}
		snapshot := c.peersSnapshotLocked(keys)
		c.mu.Unlock()
		c.bus.Publish(PeersChangedEvent{PeersByDoc: snapshot})

	case agentrpc.DocumentsUnwatched:
		c.mu.Lock()
		for _, k := range ev.DocumentKeys {
			if att, ok := c.registry[string(k)]; ok {
				delete(att.peers, ev.Publisher.PeerID)
			}
		}
		snapshot := c.peersSnapshotLocked(keys)
		c.mu.Unlock()
		c.bus.Publish(PeersChangedEvent{PeersByDoc: snapshot})

	case agentrpc.DocumentsChanged:
		c.mu.Lock()
		affected := make([]string, 0, len(ev.DocumentKeys))
		for _, k := range ev.DocumentKeys {
			if att, ok := c.registry[string(k)]; ok {
				att.remoteDirty = true
				affected = append(affected, string(k))
			}
		}
		c.mu.Unlock()
		if len(affected) > 0 {
			c.bus.Publish(DocumentsChangedEvent{Keys: affected})
		}
	}
}

// peersSnapshotLocked builds the PeersChanged payload for keys. Callers
// must hold c.mu. Every per-peer metadata map is cloned so a subscriber
// holding the event cannot observe (or corrupt) future registry
// mutations.
func (c *Client) peersSnapshotLocked(keys []string) map[string]map[string]document.PresenceInfo {
	out := make(map[string]map[string]document.PresenceInfo, len(keys))
	for _, key := range keys {
		peers := make(map[string]document.PresenceInfo)
		if att, ok := c.registry[key]; ok {
			for id, md := range att.peers {
				peers[id] = md.Clone()
			}
		}
		out[key] = peers
	}
	return out
}
