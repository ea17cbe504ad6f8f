package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thanhvo2104/admitq/internal/models"
	"github.com/thanhvo2104/admitq/pkg/logger"
)

func newTestHub(bufSize int, idle time.Duration) Hub {
	return NewHub(bufSize, idle, logger.InitializeTestZapLogger())
}

func TestOpenAndPush(t *testing.T) {
	h := newTestHub(4, time.Minute)
	defer h.Shutdown()

	ch := h.Open("e-1")
	h.Push("e-1", models.NotificationEvent{Kind: models.EventCalled, EntryID: "e-1"})

	select {
	case ev := <-ch:
		assert.Equal(t, models.EventCalled, ev.Kind)
		assert.Equal(t, "e-1", ev.EntryID)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestPush_UnknownEntryIsNoOp(t *testing.T) {
	h := newTestHub(4, time.Minute)
	defer h.Shutdown()

	// Must not panic or block.
	h.Push("nobody", models.NotificationEvent{Kind: models.EventCalled})
}

func TestOpen_ReconnectReplacesChannel(t *testing.T) {
	h := newTestHub(4, time.Minute)
	defer h.Shutdown()

	old := h.Open("e-1")
	fresh := h.Open("e-1")

	// The superseded channel is closed so its reader can tear down.
	select {
	case _, ok := <-old:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("old channel not closed on reconnect")
	}

	h.Push("e-1", models.NotificationEvent{Kind: models.EventPositionUpdate})
	select {
	case ev := <-fresh:
		assert.Equal(t, models.EventPositionUpdate, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("fresh channel got nothing")
	}
}

func TestPush_StalledConsumerIsDropped(t *testing.T) {
	h := newTestHub(1, time.Minute)
	defer h.Shutdown()

	ch := h.Open("e-1")

	// Fill the buffer, then overflow it.
	h.Push("e-1", models.NotificationEvent{Kind: models.EventPositionUpdate})
	h.Push("e-1", models.NotificationEvent{Kind: models.EventPositionUpdate})

	// One buffered event, then the close from the drop.
	_, ok := <-ch
	require.True(t, ok)
	_, ok = <-ch
	assert.False(t, ok, "stalled channel must be closed")

	// The entry is gone; pushing again must not panic.
	h.Push("e-1", models.NotificationEvent{Kind: models.EventPositionUpdate})
}

func TestClose_RemovesSubscriber(t *testing.T) {
	h := newTestHub(4, time.Minute)
	defer h.Shutdown()

	ch := h.Open("e-1")
	h.Close("e-1")

	_, ok := <-ch
	assert.False(t, ok)
}

func TestJanitor_ExpiresIdleChannels(t *testing.T) {
	h := newTestHub(4, 50*time.Millisecond)
	defer h.Shutdown()

	ch := h.Open("e-1")

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "idle channel should be closed by the janitor")
	case <-time.After(5 * time.Second):
		t.Fatal("janitor never expired the idle channel")
	}
}

func TestWatchAndBroadcast(t *testing.T) {
	h := newTestHub(4, time.Minute)
	defer h.Shutdown()

	ch1, cancel1 := h.Watch("r-1")
	ch2, cancel2 := h.Watch("r-1")
	defer cancel2()

	h.Broadcast("r-1", models.NotificationEvent{Kind: models.EventQueueChanged, ResourceID: "r-1"})

	for _, ch := range []<-chan models.NotificationEvent{ch1, ch2} {
		select {
		case ev := <-ch:
			assert.Equal(t, models.EventQueueChanged, ev.Kind)
		case <-time.After(time.Second):
			t.Fatal("watcher missed broadcast")
		}
	}

	// A cancelled watcher stops receiving and its channel closes.
	cancel1()
	_, ok := <-ch1
	assert.False(t, ok)

	h.Broadcast("r-1", models.NotificationEvent{Kind: models.EventQueueChanged})
	select {
	case ev := <-ch2:
		assert.Equal(t, models.EventQueueChanged, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("surviving watcher missed broadcast")
	}
}

func TestBroadcast_OtherResourceUnaffected(t *testing.T) {
	h := newTestHub(4, time.Minute)
	defer h.Shutdown()

	ch, cancel := h.Watch("r-2")
	defer cancel()

	h.Broadcast("r-1", models.NotificationEvent{Kind: models.EventQueueChanged})

	select {
	case <-ch:
		t.Fatal("watcher received an event for a different resource")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestShutdown_ClosesAllChannels(t *testing.T) {
	h := newTestHub(4, time.Minute)

	entry := h.Open("e-1")
	watch, _ := h.Watch("r-1")

	h.Shutdown()

	_, ok := <-entry
	assert.False(t, ok)
	_, ok = <-watch
	assert.False(t, ok)
}
