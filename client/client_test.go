package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loomdoc/synckit/document"
)

func newTestClient(t *testing.T, fake *fakeAgent, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithSyncLoopDuration(5 * time.Millisecond),
		WithReconnectStreamDelay(20 * time.Millisecond),
		WithLogger(zap.NewNop()),
	}
	c, err := New(append(base, opts...)...)
	require.NoError(t, err)
	c.rpc = fake
	return c
}

// S1: happy path activation.
func TestActivate_HappyPath(t *testing.T) {
	fake := &fakeAgent{clientID: []byte{0xca, 0xfe}}
	c := newTestClient(t, fake)

	var events []Event
	unsubscribe := c.Subscribe(func(e Event) { events = append(events, e) })
	defer unsubscribe()

	require.NoError(t, c.Activate(context.Background()))

	assert.Equal(t, 1, fake.activateCalls)
	assert.Equal(t, "cafe", c.ID())
	assert.True(t, c.IsActive())
	require.Len(t, events, 1)
	sc, ok := events[0].(StatusChangedEvent)
	require.True(t, ok)
	assert.Equal(t, StatusActivated, sc.Status)

	require.NoError(t, c.Deactivate(context.Background()))
}

// Activate is idempotent.
func TestActivate_Idempotent(t *testing.T) {
	fake := &fakeAgent{clientID: []byte{0x01}}
	c := newTestClient(t, fake)

	require.NoError(t, c.Activate(context.Background()))
	require.NoError(t, c.Activate(context.Background()))
	assert.Equal(t, 1, fake.activateCalls)

	require.NoError(t, c.Deactivate(context.Background()))
}

func TestActivate_RPCFailureLeavesStateUnchanged(t *testing.T) {
	fake := &fakeAgent{activateErr: errors.New("boom")}
	c := newTestClient(t, fake)

	err := c.Activate(context.Background())
	require.Error(t, err)
	assert.False(t, c.IsActive())
}

// S2: attach without activation.
func TestAttach_WithoutActivation(t *testing.T) {
	fake := &fakeAgent{}
	c := newTestClient(t, fake)

	var events []Event
	c.Subscribe(func(e Event) { events = append(events, e) })

	d := document.New("doc-1")
	err := c.Attach(context.Background(), d, false)

	require.ErrorIs(t, err, ErrClientNotActive)
	assert.Equal(t, 0, fake.attachCalls)
	assert.Empty(t, events)
}

func TestDeactivate_Idempotent(t *testing.T) {
	fake := &fakeAgent{clientID: []byte{0x01}}
	c := newTestClient(t, fake)

	require.NoError(t, c.Deactivate(context.Background()))
	assert.Equal(t, 0, fake.deactivateCalls)

	require.NoError(t, c.Activate(context.Background()))
	require.NoError(t, c.Deactivate(context.Background()))
	require.NoError(t, c.Deactivate(context.Background()))
	assert.Equal(t, 1, fake.deactivateCalls)
}

// After Deactivate, invariant 1: no watch stream open, sync loop not
// scheduled. We approximate this by asserting no further RPCs happen
// once we wait past several would-be tick periods.
func TestDeactivate_StopsLoops(t *testing.T) {
	fake := &fakeAgent{clientID: []byte{0x01}}
	c := newTestClient(t, fake)

	require.NoError(t, c.Activate(context.Background()))
	d := document.New("doc-1")
	require.NoError(t, c.Attach(context.Background(), d, false))

	require.Eventually(t, func() bool { return fake.watchCallCount() >= 1 }, time.Second, time.Millisecond)

	require.NoError(t, c.Deactivate(context.Background()))

	pushPullsAtDeactivate := fake.pushPullCallCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, pushPullsAtDeactivate, fake.pushPullCallCount())
}

// Attach then Detach restores the registry to empty.
func TestAttachDetach_RoundTrip(t *testing.T) {
	fake := &fakeAgent{clientID: []byte{0x01}}
	c := newTestClient(t, fake)
	require.NoError(t, c.Activate(context.Background()))

	d := document.New("doc-1")
	require.NoError(t, c.Attach(context.Background(), d, false))
	c.mu.Lock()
	_, attached := c.registry["doc-1"]
	c.mu.Unlock()
	require.True(t, attached)

	require.NoError(t, c.Detach(context.Background(), d))
	c.mu.Lock()
	_, stillThere := c.registry["doc-1"]
	registryLen := len(c.registry)
	c.mu.Unlock()
	assert.False(t, stillThere)
	assert.Zero(t, registryLen)

	require.NoError(t, c.Deactivate(context.Background()))
}

func TestDetach_NotAttached(t *testing.T) {
	fake := &fakeAgent{clientID: []byte{0x01}}
	c := newTestClient(t, fake)
	require.NoError(t, c.Activate(context.Background()))

	d := document.New("doc-1")
	err := c.Detach(context.Background(), d)
	require.ErrorIs(t, err, ErrDocumentNotAttached)

	require.NoError(t, c.Deactivate(context.Background()))
}

// Sync() touches every attachment, including manual-sync ones, unlike
// the sync loop which only ever touches realtime attachments.
func TestSync_TouchesManualAndRealtimeAttachments(t *testing.T) {
	fake := &fakeAgent{clientID: []byte{0x01}}
	c := newTestClient(t, fake)
	require.NoError(t, c.Activate(context.Background()))

	realtimeDoc := document.New("realtime-doc")
	manualDoc := document.New("manual-doc")
	require.NoError(t, c.Attach(context.Background(), realtimeDoc, false))
	require.NoError(t, c.Attach(context.Background(), manualDoc, true))

	before := fake.pushPullCallCount()
	keys, err := c.Sync(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"realtime-doc", "manual-doc"}, keys)
	assert.Equal(t, before+2, fake.pushPullCallCount())

	require.NoError(t, c.Deactivate(context.Background()))
}

// The sync loop only ever touches realtime-sync attachments: a
// manual-sync document with local changes never gets an automatic
// push-pull.
func TestSyncLoop_SkipsManualAttachments(t *testing.T) {
	fake := &fakeAgent{clientID: []byte{0x01}}
	c := newTestClient(t, fake, WithSyncLoopDuration(2*time.Millisecond))
	require.NoError(t, c.Activate(context.Background()))

	manualDoc := document.New("manual-doc")
	require.NoError(t, c.Attach(context.Background(), manualDoc, true))
	manualDoc.Edit()

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 0, fake.pushPullCallCount())

	require.NoError(t, c.Deactivate(context.Background()))
}

func TestSync_FailurePublishesSyncFailedOnce(t *testing.T) {
	fake := &fakeAgent{clientID: []byte{0x01}, pushPullErr: errors.New("transport down")}
	c := newTestClient(t, fake)
	require.NoError(t, c.Activate(context.Background()))

	var failedCount int
	c.Subscribe(func(e Event) {
		if se, ok := e.(DocumentSyncedEvent); ok && se.Status == SyncStatusFailed {
			failedCount++
		}
	})

	d := document.New("doc-1")
	require.NoError(t, c.Attach(context.Background(), d, true))

	_, err := c.Sync(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, failedCount)

	require.NoError(t, c.Deactivate(context.Background()))
}

// Deactivate must not abort a push-pull the sync loop already has in
// flight: the local changes it carries were drained out of the document
// before the RPC was sent, so cancelling the RPC would lose them
// outright instead of merely discarding a late result.
func TestDeactivate_DoesNotCancelInFlightPushPull(t *testing.T) {
	fake := &fakeAgent{clientID: []byte{0x01}}
	fake.pushPullGate = make(chan struct{})
	fake.pushPullInside = make(chan struct{}, 1)

	c := newTestClient(t, fake, WithSyncLoopDuration(2*time.Millisecond))
	require.NoError(t, c.Activate(context.Background()))

	d := document.New("doc-1")
	require.NoError(t, c.Attach(context.Background(), d, false))
	d.Edit()

	select {
	case <-fake.pushPullInside:
	case <-time.After(time.Second):
		t.Fatal("sync loop never issued a push-pull")
	}

	require.NoError(t, c.Deactivate(context.Background()))

	close(fake.pushPullGate)

	require.Eventually(t, func() bool { return fake.pushPullCallCount() == 1 }, time.Second, time.Millisecond)
	assert.False(t, d.HasLocalChanges(), "the pending edit must have been sent, not discarded")
}

func TestSubscribe_NoReplay(t *testing.T) {
	fake := &fakeAgent{clientID: []byte{0x01}}
	c := newTestClient(t, fake)
	require.NoError(t, c.Activate(context.Background()))

	var seen []Event
	c.Subscribe(func(e Event) { seen = append(seen, e) })

	assert.Empty(t, seen, "a subscriber must not see events published before it subscribed")

	require.NoError(t, c.Deactivate(context.Background()))
	require.Len(t, seen, 1)
	_, ok := seen[0].(StatusChangedEvent)
	assert.True(t, ok)
}
