package realtime

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// casRetries bounds the optimistic retry loop on WATCH conflicts.
const casRetries = 32

// changeChannel is the pub/sub channel carrying change notifications for key.
func changeChannel(key string) string {
	return "rtevt:" + key
}

// tombstone is published when a key is deleted. Stored values are JSON
// objects, so a bare null never collides with a real value.
const tombstone = "null"

// RedisStore implements Store on a single Redis instance. Compare-and-swap
// uses WATCH/MULTI/EXEC and retries on TxFailedErr; AtomicUpdate runs all
// mutations under one watched transaction covering every listed key.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransientStore, err)
	}
	return val, nil
}

func (s *RedisStore) CompareAndSwap(ctx context.Context, key string, fn Mutation) (CASResult, error) {
	var res CASResult
	for i := 0; i < casRetries; i++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				cur = nil
			} else if err != nil {
				return err
			}

			next, err := fn(cur)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				writeAndNotify(ctx, pipe, key, next)
				return nil
			})
			if err == nil {
				res = CASResult{Committed: true, Value: next}
			}
			return err
		}, key)

		switch {
		case errors.Is(err, redis.TxFailedErr):
			continue // conflicting writer; retry with a fresh read
		case errors.Is(err, ErrAbort):
			return CASResult{Committed: false}, nil
		case err != nil:
			return CASResult{}, fmt.Errorf("%w: %v", ErrTransientStore, err)
		}
		return res, nil
	}
	return CASResult{}, fmt.Errorf("%w: cas on %q not committed after %d attempts", ErrTransientStore, key, casRetries)
}

func (s *RedisStore) AtomicUpdate(ctx context.Context, muts map[string]Mutation) error {
	if len(muts) == 0 {
		return nil
	}
	keys := make([]string, 0, len(muts))
	for k := range muts {
		keys = append(keys, k)
	}

	for i := 0; i < casRetries; i++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			staged := make(map[string][]byte, len(muts))
			for _, key := range keys {
				cur, err := tx.Get(ctx, key).Bytes()
				if errors.Is(err, redis.Nil) {
					cur = nil
				} else if err != nil {
					return err
				}
				next, err := muts[key](cur)
				if err != nil {
					return err
				}
				staged[key] = next
			}
			_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for key, next := range staged {
					writeAndNotify(ctx, pipe, key, next)
				}
				return nil
			})
			return err
		}, keys...)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransientStore, err)
		}
		return nil
	}
	return fmt.Errorf("%w: atomic update over %d keys not committed after %d attempts", ErrTransientStore, len(muts), casRetries)
}

func writeAndNotify(ctx context.Context, pipe redis.Pipeliner, key string, next []byte) {
	if next == nil {
		pipe.Del(ctx, key)
		pipe.Publish(ctx, changeChannel(key), tombstone)
		return
	}
	pipe.Set(ctx, key, next, 0)
	pipe.Publish(ctx, changeChannel(key), next)
}

func (s *RedisStore) Subscribe(ctx context.Context, key string) (*Subscription, error) {
	pubsub := s.rdb.Subscribe(ctx, changeChannel(key))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("%w: %v", ErrTransientStore, err)
	}

	out := make(chan []byte, 16)

	// Deliver the current value before forwarding changes. A change committed
	// between the subscribe and this read arrives twice; consumers dedupe by
	// reacting to transitions only.
	cur, err := s.Get(ctx, key)
	if err != nil {
		pubsub.Close()
		return nil, err
	}
	out <- cur

	done := make(chan struct{})
	go func() {
		defer close(out)
		ch := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var val []byte
				if msg.Payload != tombstone {
					val = []byte(msg.Payload)
				}
				select {
				case out <- val:
				default:
					log.Printf("WARNING: dropping realtime update for slow subscriber on %s", key)
				}
			}
		}
	}()

	cancel := func() {
		close(done)
		pubsub.Close()
	}
	return &Subscription{C: out, cancel: cancel}, nil
}
