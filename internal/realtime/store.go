// Package realtime abstracts the shared mutable store that all clients
// coordinate through: per-key optimistic compare-and-swap, multi-key atomic
// updates and live value subscriptions. RedisStore is the production
// implementation; MemoryStore backs tests and single-node runs.
package realtime

import (
	"context"
	"errors"
)

var (
	// ErrAbort is returned by a Mutation to abort a compare-and-swap without
	// writing. Surfaced to the caller as Committed == false, not as an error.
	ErrAbort = errors.New("realtime: aborted")

	// ErrTransientStore signals the store was unreachable or a transaction
	// could not be committed after retries. Callers retry or degrade.
	ErrTransientStore = errors.New("realtime: store unavailable")
)

// Mutation transforms the current raw value of a key into its next value.
// A nil current value means the key is absent; returning nil deletes the key.
type Mutation func(cur []byte) ([]byte, error)

// Set is a Mutation that writes v regardless of the current value.
func Set(v []byte) Mutation {
	return func([]byte) ([]byte, error) { return v, nil }
}

// Delete is a Mutation that removes the key.
func Delete() Mutation {
	return func([]byte) ([]byte, error) { return nil, nil }
}

// CASResult reports the outcome of a compare-and-swap.
type CASResult struct {
	Committed bool
	Value     []byte // the value after the commit; nil if deleted or aborted
}

// Subscription delivers the current value of a key immediately, then every
// subsequent change (nil for deletion), until Close is called.
type Subscription struct {
	C      <-chan []byte
	cancel func()
}

// Close tears the subscription down. Safe to call more than once.
func (s *Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Store is the shared realtime store contract. Concurrent CompareAndSwap
// calls on one key are linearizable: internal conflicts are retried and never
// surfaced. AtomicUpdate applies every listed mutation or none of them.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	CompareAndSwap(ctx context.Context, key string, fn Mutation) (CASResult, error)
	AtomicUpdate(ctx context.Context, muts map[string]Mutation) error
	Subscribe(ctx context.Context, key string) (*Subscription, error)
}
