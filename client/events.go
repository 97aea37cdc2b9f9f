package client

import "github.com/loomdoc/synckit/document"

// Event is the closed sum type of a session event. Each concrete type
// below implements it via an unexported marker method — the idiomatic Go
// substitute for a tagged union.
type Event interface {
	isSessionEvent()
}

// StatusChangedEvent fires whenever the Client transitions between
// Deactivated and Activated.
type StatusChangedEvent struct {
	Status Status
}

func (StatusChangedEvent) isSessionEvent() {}

// DocumentsChangedEvent fires when a DocumentsChanged watch frame
// arrives, naming the realtime-sync attachments it marked dirty. It
// carries no change data — it is an edge that wakes the sync loop.
type DocumentsChangedEvent struct {
	Keys []string
}

func (DocumentsChangedEvent) isSessionEvent() {}

// PeersChangedEvent fires whenever the peer set of any watched document
// changes, carrying the full peer map for every key in the stream's
// current key set.
type PeersChangedEvent struct {
	PeersByDoc map[string]map[string]document.PresenceInfo
}

func (PeersChangedEvent) isSessionEvent() {}

// StreamStatusChangedEvent fires on watch-stream connect/disconnect.
type StreamStatusChangedEvent struct {
	Status StreamStatus
}

func (StreamStatusChangedEvent) isSessionEvent() {}

// DocumentSyncedEvent reports a sync outcome. SyncStatusSynced fires once
// per successful document push-pull; SyncStatusFailed fires once per
// failed batch (manual Sync call or one sync-loop iteration). Err is
// populated only when Status is SyncStatusFailed.
type DocumentSyncedEvent struct {
	Status SyncStatus
	Err    error
}

func (DocumentSyncedEvent) isSessionEvent() {}
