package realtime

import (
	"context"
	"errors"
	"sync"
)

// MemoryStore is an in-process Store with the same semantics as RedisStore.
// A single mutex serializes every commit, which trivially satisfies the
// per-key linearizability the contract demands.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
	subs map[string][]*memorySub
}

type memorySub struct {
	ch     chan []byte
	closed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string][]byte),
		subs: make(map[string][]*memorySub),
	}
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.data[key]), nil
}

func (m *MemoryStore) CompareAndSwap(ctx context.Context, key string, fn Mutation) (CASResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := fn(clone(m.data[key]))
	if errors.Is(err, ErrAbort) {
		return CASResult{Committed: false}, nil
	}
	if err != nil {
		return CASResult{}, err
	}
	m.commit(key, next)
	return CASResult{Committed: true, Value: clone(next)}, nil
}

func (m *MemoryStore) AtomicUpdate(ctx context.Context, muts map[string]Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Stage everything first so a failing mutation leaves no partial write.
	staged := make(map[string][]byte, len(muts))
	for key, fn := range muts {
		next, err := fn(clone(m.data[key]))
		if err != nil {
			return err
		}
		staged[key] = next
	}
	for key, next := range staged {
		m.commit(key, next)
	}
	return nil
}

// commit stores the value and notifies subscribers. Caller holds mu.
func (m *MemoryStore) commit(key string, next []byte) {
	if next == nil {
		delete(m.data, key)
	} else {
		m.data[key] = clone(next)
	}
	for _, sub := range m.subs[key] {
		if sub.closed {
			continue
		}
		select {
		case sub.ch <- clone(next):
		default:
			// Slow subscriber; drop rather than block the store.
		}
	}
}

func (m *MemoryStore) Subscribe(ctx context.Context, key string) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub := &memorySub{ch: make(chan []byte, 16)}
	sub.ch <- clone(m.data[key]) // current value first
	m.subs[key] = append(m.subs[key], sub)

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub.closed {
			return
		}
		sub.closed = true
		list := m.subs[key]
		for i, s := range list {
			if s == sub {
				m.subs[key] = append(list[:i], list[i+1:]...)
				break
			}
		}
		close(sub.ch)
	}
	return &Subscription{C: sub.ch, cancel: cancel}, nil
}
