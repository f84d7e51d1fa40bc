package docstore

import (
	"context"
	"sync"
)

// Change identifies a committed write.
type Change struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
}

// Bus fans change notifications out to listeners. Subscriber callbacks run
// on the publishing goroutine and must not block.
type Bus interface {
	Publish(ctx context.Context, c Change) error
	Subscribe(fn func(Change)) (cancel func())
	Close() error
}

// LocalBus is an in-process Bus.
type LocalBus struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(Change)
}

// NewLocalBus returns an empty in-process bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[int]func(Change))}
}

// Publish delivers c to every current subscriber.
func (b *LocalBus) Publish(_ context.Context, c Change) error {
	b.mu.RLock()
	fns := make([]func(Change), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
	return nil
}

// Subscribe registers fn until cancel is called.
func (b *LocalBus) Subscribe(fn func(Change)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Len returns the number of subscribers.
func (b *LocalBus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close drops all subscribers.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	b.subs = make(map[int]func(Change))
	b.mu.Unlock()
	return nil
}
