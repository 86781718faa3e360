// Package logbuffer keeps the most recent log entries in memory and fans
// them out to live subscribers, so operators can follow the service log
// without access to the process output.
package logbuffer

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Entry is one captured log record.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// Stats describes the state of the buffer.
type Stats struct {
	Buffered    int `json:"total_logs_buffered"`
	Subscribers int `json:"connected_clients"`
}

// Buffer is a fixed-size ring of recent log entries with subscriber fanout.
// Slow subscribers lose entries instead of blocking the logger.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
	max     int
	subs    map[chan Entry]struct{}
}

// New creates a Buffer retaining at most max entries.
func New(max int) *Buffer {
	if max <= 0 {
		max = 500
	}
	return &Buffer{
		max:  max,
		subs: make(map[chan Entry]struct{}),
	}
}

// Add appends an entry and broadcasts it to all subscribers.
func (b *Buffer) Add(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = append(b.entries, e)
	if len(b.entries) > b.max {
		b.entries = b.entries[len(b.entries)-b.max:]
	}

	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Subscriber not keeping up; drop rather than block.
		}
	}
}

// Recent returns up to n of the newest entries, oldest first.
func (b *Buffer) Recent(n int) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 || n > len(b.entries) {
		n = len(b.entries)
	}
	out := make([]Entry, n)
	copy(out, b.entries[len(b.entries)-n:])
	return out
}

// Subscribe registers a new subscriber channel. The caller must drain it
// and call Unsubscribe when done.
func (b *Buffer) Subscribe() chan Entry {
	ch := make(chan Entry, 64)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (b *Buffer) Unsubscribe(ch chan Entry) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Stats returns the current buffer statistics.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{Buffered: len(b.entries), Subscribers: len(b.subs)}
}

// Hook adapts the buffer into a logrus hook so every log call lands here.
type Hook struct {
	buffer *Buffer
}

// NewHook creates a logrus hook feeding the given buffer.
func NewHook(buffer *Buffer) *Hook {
	return &Hook{buffer: buffer}
}

// Levels reports the levels the hook captures.
func (h *Hook) Levels() []logrus.Level {
	return []logrus.Level{
		logrus.ErrorLevel,
		logrus.WarnLevel,
		logrus.InfoLevel,
	}
}

// Fire records one log entry into the buffer.
func (h *Hook) Fire(entry *logrus.Entry) error {
	h.buffer.Add(Entry{
		Timestamp: entry.Time,
		Level:     entry.Level.String(),
		Message:   entry.Message,
	})
	return nil
}
