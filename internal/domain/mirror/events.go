package mirror

import "sync"

// broadcaster fans job snapshots out to subscribers. A subscriber whose
// buffer is full misses the event; publishing never blocks the pipeline.
type broadcaster struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Snapshot
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]chan Snapshot)}
}

func (b *broadcaster) subscribe(buf int) (<-chan Snapshot, func()) {
	if buf < 1 {
		buf = 1
	}
	ch := make(chan Snapshot, buf)

	b.mu.Lock()
	key := b.next
	b.next++
	b.subs[key] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, key)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *broadcaster) publish(snap Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

func (b *broadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Subscribe returns a channel receiving a snapshot on every job state
// change, and a function that ends the subscription and closes the channel.
func (s *Service) Subscribe(buf int) (<-chan Snapshot, func()) {
	return s.events.subscribe(buf)
}
