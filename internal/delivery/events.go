package delivery

import (
	"sync"

	"proctor/internal/session"
	"proctor/pkg/logging"
)

// defaultEventBuffer is the channel depth given to subscribers that do
// not ask for one.
const defaultEventBuffer = 64

// Broadcaster fans session events out to subscribers. Sends never
// block: a subscriber whose buffer is full loses the event, with a
// warning, rather than stalling the driver.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan session.Event
	nextID int
	closed bool
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan session.Event)}
}

// Subscribe registers a new subscriber and returns its channel plus a
// cancel function. Cancel is idempotent and closes the channel.
func (b *Broadcaster) Subscribe(buffer int) (<-chan session.Event, func()) {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan session.Event, buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber without blocking.
// The sends happen under the lock so a concurrent cancel or Close can
// never close a channel mid-send.
func (b *Broadcaster) Publish(ev session.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			logging.Warn("Events", "subscriber buffer full, dropping %s event for session %s", ev.Op, ev.Session)
		}
	}
}

// Close closes every subscriber channel. Publishing after Close is a
// no-op.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
