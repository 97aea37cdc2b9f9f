// Package document defines the boundary between the client core and the
// CRDT engine it replicates. The engine itself — operation transformation,
// tombstone GC, wire serialization of change packs — is out of scope for
// this module; Handle is the contract the core consumes, and Doc is a
// minimal stand-in used by the demo CLI and the test suite.
package document

import (
	"fmt"
	"sync"
)

// Key is the stable identifier of a document within an agent.
type Key string

// DocumentKey is the richer key object the wire layer uses; in a full
// CRDT engine it would also carry a project/collection scope.
type DocumentKey struct {
	Key Key
}

func (k DocumentKey) String() string {
	return string(k.Key)
}

// ChangePack is an opaque batch of CRDT operations plus a monotone
// checkpoint, exchanged with the agent. The core never inspects its
// contents beyond the checkpoint and operation count used for logging.
type ChangePack struct {
	DocumentKey Key
	Checkpoint  int64
	Ops         int
}

// PresenceInfo is the per-peer metadata advertised alongside a document
// attachment (display name, color, cursor position, ...).
type PresenceInfo map[string]string

// Clone returns a shallow copy safe to hand to callers outside the
// session's logical thread.
func (p PresenceInfo) Clone() PresenceInfo {
	if p == nil {
		return nil
	}
	out := make(PresenceInfo, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Handle is the external collaborator contract a CRDT document must
// satisfy to be attached to a Client.
type Handle interface {
	// SetActor binds the document's CRDT actor to the client's
	// server-assigned identity. Called by Attach before the
	// AttachDocument request is sent.
	SetActor(actorID string)

	// Key returns the document's stable key.
	Key() string

	// DocumentKey returns the richer key object used on the wire.
	DocumentKey() DocumentKey

	// CreateChangePack drains unsynced local changes into a
	// transmittable pack carrying a monotone checkpoint.
	CreateChangePack() (ChangePack, error)

	// ApplyChangePack applies a remote pack to local state.
	ApplyChangePack(ChangePack) error

	// HasLocalChanges reports whether there are unsynced local edits.
	HasLocalChanges() bool
}

// Doc is a minimal reference Handle. It is not a CRDT: it tracks an
// operation counter and a checkpoint so that the client core's control
// flow (attach/detach/push-pull idempotency) is exercisable and
// testable without a real document engine.
type Doc struct {
	mu    sync.Mutex
	key   Key
	actor string

	checkpoint int64
	pending    int
}

// New creates a Doc identified by key. The key must be unique per
// attachment within a single client.
func New(key Key) *Doc {
	return &Doc{key: key}
}

// Edit records a local operation, marking the document dirty for the
// next push-pull. It stands in for whatever mutation API a real CRDT
// document would expose (object.Set, text.Edit, ...).
func (d *Doc) Edit() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending++
}

func (d *Doc) SetActor(actorID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.actor = actorID
}

func (d *Doc) Actor() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.actor
}

func (d *Doc) Key() string {
	return string(d.key)
}

func (d *Doc) DocumentKey() DocumentKey {
	return DocumentKey{Key: d.key}
}

func (d *Doc) CreateChangePack() (ChangePack, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pack := ChangePack{
		DocumentKey: d.key,
		Checkpoint:  d.checkpoint,
		Ops:         d.pending,
	}
	d.pending = 0
	return pack, nil
}

func (d *Doc) ApplyChangePack(pack ChangePack) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if pack.Checkpoint < d.checkpoint {
		return fmt.Errorf("document %q: stale checkpoint %d < %d", d.key, pack.Checkpoint, d.checkpoint)
	}
	d.checkpoint = pack.Checkpoint
	return nil
}

func (d *Doc) HasLocalChanges() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending > 0
}
