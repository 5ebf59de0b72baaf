package room

import (
	"sync"

	"blackball/internal/domain"
)

// Broadcaster fans engine results out to every connection subscribed to a
// room. Delivery is best-effort: a subscriber whose buffer is full misses
// the message rather than stalling the authority loop.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan domain.Result
	nextID int
	buffer int
	closed bool
}

func NewBroadcaster(buffer int) *Broadcaster {
	return &Broadcaster{
		subs:   make(map[int]chan domain.Result),
		buffer: buffer,
	}
}

// Subscribe registers a new receiver. The returned cancel func must be
// called when the connection goes away; it is safe to call more than once.
func (b *Broadcaster) Subscribe() (<-chan domain.Result, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan domain.Result, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Publish delivers to all current subscribers, dropping on full buffers.
func (b *Broadcaster) Publish(r domain.Result) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- r:
		default:
		}
	}
}

// Close tears down every subscription. Further Publish calls are no-ops.
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
