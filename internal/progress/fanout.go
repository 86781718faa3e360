package progress

import (
	"sync"

	"Replaya/internal/replay"
)

// Event is one item on a fanout subscription.
type Event struct {
	Kind     string          `json:"kind"` // "progress" or "status"
	Snapshot replay.Snapshot `json:"snapshot"`
}

// Fanout is an in-process replay.ProgressSink that copies every event to
// all current subscribers. Slow subscribers drop events instead of
// blocking the supervisor.
type Fanout struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func NewFanout() *Fanout {
	return &Fanout{subs: make(map[chan Event]struct{})}
}

// Subscribe returns a buffered channel of events. The caller must
// Unsubscribe when done.
func (f *Fanout) Subscribe() chan Event {
	ch := make(chan Event, 16)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()
	return ch
}

func (f *Fanout) Unsubscribe(ch chan Event) {
	f.mu.Lock()
	if _, ok := f.subs[ch]; ok {
		delete(f.subs, ch)
		close(ch)
	}
	f.mu.Unlock()
}

func (f *Fanout) PublishProgress(snap replay.Snapshot) error {
	f.broadcast(Event{Kind: "progress", Snapshot: snap})
	return nil
}

func (f *Fanout) PublishStatus(snap replay.Snapshot) error {
	f.broadcast(Event{Kind: "status", Snapshot: snap})
	return nil
}

func (f *Fanout) broadcast(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
