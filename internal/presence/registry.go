// Package presence tracks who is online and owns the dead-man's switches:
// store writes pre-registered per connection that fire exactly once if that
// connection drops before they are cancelled.
package presence

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"gorandom/backend/internal/models"
	"gorandom/backend/internal/realtime"
)

// Registry keeps an explicit table of armed switches keyed by connection id,
// so arming and disarming are observable without a live network. At most one
// switch is armed per (connection, key); re-arming replaces the previous one.
type Registry struct {
	store realtime.Store

	mu    sync.Mutex
	armed map[string]map[string]realtime.Mutation // connID -> key -> pending write
}

func NewRegistry(store realtime.Store) *Registry {
	return &Registry{
		store: store,
		armed: make(map[string]map[string]realtime.Mutation),
	}
}

// MarkOnline flips the user's online flag to true.
func (r *Registry) MarkOnline(ctx context.Context, uid string) error {
	val, _ := json.Marshal(true)
	return r.store.AtomicUpdate(ctx, map[string]realtime.Mutation{
		realtime.UserOnlineKey(uid): realtime.Set(val),
	})
}

// MarkOffline flips the user's online flag to false, for graceful teardown.
func (r *Registry) MarkOffline(ctx context.Context, uid string) error {
	val, _ := json.Marshal(false)
	return r.store.AtomicUpdate(ctx, map[string]realtime.Mutation{
		realtime.UserOnlineKey(uid): realtime.Set(val),
	})
}

// ArmOffline registers fn to be applied to key when connID drops. A switch
// already armed for the same key is replaced, never duplicated.
func (r *Registry) ArmOffline(connID, key string, fn realtime.Mutation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.armed[connID] == nil {
		r.armed[connID] = make(map[string]realtime.Mutation)
	}
	r.armed[connID][key] = fn
}

// CancelOffline disarms the switch for key on connID, if any.
func (r *Registry) CancelOffline(connID, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.armed[connID], key)
}

// CancelAll disarms every switch registered for connID.
func (r *Registry) CancelAll(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.armed, connID)
}

// Armed reports whether a switch is currently armed for (connID, key).
func (r *Registry) Armed(connID, key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.armed[connID][key]
	return ok
}

// Fire applies every switch armed for connID in one all-or-nothing update and
// clears the table for that connection. Called by the hub when the websocket
// read pump exits.
func (r *Registry) Fire(ctx context.Context, connID string) error {
	r.mu.Lock()
	muts := r.armed[connID]
	delete(r.armed, connID)
	r.mu.Unlock()

	if len(muts) == 0 {
		return nil
	}
	if err := r.store.AtomicUpdate(ctx, muts); err != nil {
		log.Printf("ERROR: firing %d disconnect switches for conn %s: %v", len(muts), connID, err)
		return err
	}
	return nil
}

// OfflineStatusFallback is the status write armed for a connected user. If
// the user is mid-chat when the connection drops, the chatting reference is
// preserved so a reconnect can resume the session; the session's
// disconnectedBy switch carries the drop signal instead. In every other state
// the record becomes offline with a last-changed timestamp.
func OfflineStatusFallback(now func() int64) realtime.Mutation {
	return func(cur []byte) ([]byte, error) {
		status, err := models.DecodeStatus(cur)
		if err == nil && status.State == models.StateChatting {
			return cur, nil
		}
		s := models.Status{State: models.StateOffline, LastChanged: now()}
		return s.Encode(), nil
	}
}
