package client

import (
	"sync"

	"github.com/loomdoc/synckit/document"
)

// attachment is one per attached document. It is mutated only by
// Attach/Detach and the watch demultiplexer, and is never exposed to
// callers directly.
type attachment struct {
	doc document.Handle

	// realtimeSync is true when the sync and watch loops drive this
	// document; false means only explicit Sync calls push/pull it.
	realtimeSync bool

	// peers is the set of remote clients co-editing this document,
	// keyed by peer id. Mutated by the watch demultiplexer on the
	// session's logical thread (guarded by Client.mu).
	peers map[string]document.PresenceInfo

	// remoteDirty is set when a DocumentsChanged frame names this
	// document and cleared by the sync loop immediately before it
	// issues the resulting push-pull.
	remoteDirty bool

	// syncMu serializes push-pulls for this one document so that a
	// manual Sync() call and a concurrent sync-loop tick can never race
	// on the same document's ApplyChangePack.
	syncMu sync.Mutex
}

func newAttachment(doc document.Handle, realtimeSync bool) *attachment {
	return &attachment{
		doc:          doc,
		realtimeSync: realtimeSync,
		peers:        make(map[string]document.PresenceInfo),
	}
}
