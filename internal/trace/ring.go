package trace

import (
	"io"
	"sync"
)

// RingTracer keeps the last events in memory for a dump after a crash.
type RingTracer struct {
	gate

	mu     sync.RWMutex
	events []Event
	next   int // write position
	count  int // stored events, at most len(events)
}

// NewRingTracer keeps up to capacity events (4096 when not positive).
func NewRingTracer(capacity int, level Level) *RingTracer {
	if capacity <= 0 {
		capacity = 4096
	}
	return &RingTracer{gate: gate{level: level}, events: make([]Event, capacity)}
}

// Emit stores ev. Heartbeats pass any level.
func (t *RingTracer) Emit(ev *Event) {
	if !t.admits(ev) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events[t.next] = *ev
	t.next = (t.next + 1) % len(t.events)
	if t.count < len(t.events) {
		t.count++
	}
}

// Tail returns up to n most recent events, oldest first; n <= 0 means all.
func (t *RingTracer) Tail(n int) []Event {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n <= 0 || n > t.count {
		n = t.count
	}
	out := make([]Event, n)
	start := t.next - n
	if start < 0 {
		start += len(t.events)
	}
	for i := range out {
		out[i] = t.events[(start+i)%len(t.events)]
	}
	return out
}

// Snapshot returns every stored event, oldest first.
func (t *RingTracer) Snapshot() []Event {
	return t.Tail(0)
}

// Dump writes every stored event.
func (t *RingTracer) Dump(w io.Writer, format Format) error {
	return t.DumpTail(w, format, 0)
}

// DumpTail writes the n most recent events.
func (t *RingTracer) DumpTail(w io.Writer, format Format, n int) error {
	for _, ev := range t.Tail(n) {
		if _, err := w.Write(FormatEvent(&ev, format)); err != nil {
			return err
		}
	}
	return nil
}

func (t *RingTracer) Flush() error { return nil }
func (t *RingTracer) Close() error { return nil }
