package realtime

import (
	"context"
	"sync"
	"sync/atomic"
)

// MemoryBroker fans out payloads to subscribers in the same process.
type MemoryBroker struct {
	mu      sync.RWMutex
	subs    map[string]map[*memorySubscription]struct{}
	dropped atomic.Int64
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[*memorySubscription]struct{})}
}

func (b *MemoryBroker) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	targets := make([]*memorySubscription, 0, len(b.subs[channel]))
	for s := range b.subs[channel] {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		if !s.deliver(payload) {
			b.dropped.Add(1)
		}
	}
	return nil
}

// Dropped reports how many payloads were discarded for full subscribers.
func (b *MemoryBroker) Dropped() int64 {
	return b.dropped.Load()
}

func (b *MemoryBroker) Subscribe(_ context.Context, channel string) (Subscription, error) {
	s := &memorySubscription{
		broker:  b,
		channel: channel,
		ch:      make(chan []byte, 64),
		done:    make(chan struct{}),
	}
	b.mu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*memorySubscription]struct{})
	}
	b.subs[channel][s] = struct{}{}
	b.mu.Unlock()
	return s, nil
}

// Subscribers reports how many live subscriptions a channel has.
func (b *MemoryBroker) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

func (b *MemoryBroker) remove(s *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[s.channel], s)
	if len(b.subs[s.channel]) == 0 {
		delete(b.subs, s.channel)
	}
}

type memorySubscription struct {
	broker  *MemoryBroker
	channel string

	mu     sync.Mutex
	closed bool
	ch     chan []byte
	done   chan struct{}
	once   sync.Once
}

// deliver never blocks the publisher. A subscriber whose buffer is full
// loses the payload, as with Redis Pub/Sub; readers poll to recover.
func (s *memorySubscription) deliver(payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- payload:
		return true
	default:
		return false
	}
}

func (s *memorySubscription) C() <-chan []byte { return s.ch }

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.broker.remove(s)
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
	return nil
}
