package chathub

import (
	"encoding/json"

	"gorandom/backend/internal/models"
	"gorandom/backend/internal/realtime"
)

// An interest queue is stored as a JSON object of waiting user ids, one key
// per interest tag: {"uid": true, ...}.

func decodeQueue(raw []byte) (map[string]bool, error) {
	if len(raw) == 0 {
		return make(map[string]bool), nil
	}
	var q map[string]bool
	if err := json.Unmarshal(raw, &q); err != nil {
		return nil, err
	}
	if q == nil {
		q = make(map[string]bool)
	}
	return q, nil
}

func encodeQueue(q map[string]bool) []byte {
	if len(q) == 0 {
		return nil // empty queue deletes the key
	}
	b, _ := json.Marshal(q)
	return b
}

// removeFromQueue builds a mutation deleting the given ids from a queue.
// Removing an id that is not present is a no-op.
func removeFromQueue(ids ...string) realtime.Mutation {
	return func(cur []byte) ([]byte, error) {
		q, err := decodeQueue(cur)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			delete(q, id)
		}
		return encodeQueue(q), nil
	}
}

// addToQueue builds a mutation enqueueing id, used to restore a candidate
// that was dequeued but could not be matched.
func addToQueue(id string) realtime.Mutation {
	return func(cur []byte) ([]byte, error) {
		q, err := decodeQueue(cur)
		if err != nil {
			return nil, err
		}
		q[id] = true
		return encodeQueue(q), nil
	}
}

// setDisconnectedBy marks the session as dropped by uid. Keeps a retired
// (deleted) session deleted.
func setDisconnectedBy(uid string) realtime.Mutation {
	return func(cur []byte) ([]byte, error) {
		sess, err := models.DecodeSession(cur)
		if err != nil {
			return nil, err
		}
		if sess == nil {
			return nil, nil
		}
		sess.DisconnectedBy = uid
		return sess.Encode(), nil
	}
}

// clearDisconnectedBy clears the flag only while it names uid, so a signal
// from the other participant is never wiped by accident.
func clearDisconnectedBy(uid string) realtime.Mutation {
	return func(cur []byte) ([]byte, error) {
		sess, err := models.DecodeSession(cur)
		if err != nil {
			return nil, err
		}
		if sess == nil || sess.DisconnectedBy != uid {
			return nil, realtime.ErrAbort
		}
		sess.DisconnectedBy = ""
		return sess.Encode(), nil
	}
}
