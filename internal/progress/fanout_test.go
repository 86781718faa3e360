package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Replaya/internal/replay"
)

func TestFanoutDeliversToAllSubscribers(t *testing.T) {
	f := NewFanout()
	a := f.Subscribe()
	b := f.Subscribe()
	defer f.Unsubscribe(a)
	defer f.Unsubscribe(b)

	require.NoError(t, f.PublishProgress(replay.Snapshot{ReplayID: "r1", Progress: 42}))

	for _, ch := range []chan Event{a, b} {
		select {
		case ev := <-ch:
			assert.Equal(t, "progress", ev.Kind)
			assert.Equal(t, 42, ev.Snapshot.Progress)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the event")
		}
	}
}

func TestFanoutStatusEvents(t *testing.T) {
	f := NewFanout()
	ch := f.Subscribe()
	defer f.Unsubscribe(ch)

	require.NoError(t, f.PublishStatus(replay.Snapshot{Status: replay.StatusCompleted}))

	ev := <-ch
	assert.Equal(t, "status", ev.Kind)
	assert.Equal(t, replay.StatusCompleted, ev.Snapshot.Status)
}

func TestFanoutDropsWhenSubscriberIsFull(t *testing.T) {
	f := NewFanout()
	ch := f.Subscribe()
	defer f.Unsubscribe(ch)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			f.PublishProgress(replay.Snapshot{Progress: i})
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestFanoutUnsubscribeClosesChannel(t *testing.T) {
	f := NewFanout()
	ch := f.Subscribe()
	f.Unsubscribe(ch)

	_, open := <-ch
	assert.False(t, open)

	// Publishing after unsubscribe is a no-op.
	require.NoError(t, f.PublishProgress(replay.Snapshot{}))
	f.Unsubscribe(ch)
}
