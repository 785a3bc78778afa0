package chathub

import (
	"context"
	"log"

	"gorandom/backend/internal/models"
	"gorandom/backend/internal/realtime"
)

// UIState is the client-facing projection of a status record.
type UIState string

const (
	UIIdle      UIState = "idle"
	UISearching UIState = "searching"
	UIChatting  UIState = "chatting"
)

// Transition is one observed change of a user's projected state, carrying the
// underlying status record for consumers that need the session reference.
type Transition struct {
	State  UIState
	Status models.Status
}

// Projector watches a user's authoritative status record and reports
// transitions only: incidental rewrites of the same tag (a repeated searching
// write, a duplicated pub/sub delivery) are swallowed. An absent record
// projects as idle, an offline record likewise.
type Projector struct {
	Store realtime.Store
}

func NewProjector(store realtime.Store) *Projector {
	return &Projector{Store: store}
}

// Watch subscribes to uid's status and invokes fn for every transition,
// starting with the current state. The returned stop function tears the
// subscription down; deliveries already buffered when it is called may still
// reach fn shortly after it returns.
func (p *Projector) Watch(ctx context.Context, uid string, fn func(Transition)) (func(), error) {
	sub, err := p.Store.Subscribe(ctx, realtime.UserStatusKey(uid))
	if err != nil {
		return nil, err
	}

	go func() {
		var last *Transition
		for raw := range sub.C {
			status, err := models.DecodeStatus(raw)
			if err != nil {
				log.Printf("WARNING: malformed status record for %s: %v", uid, err)
				continue
			}
			tr := Transition{State: projectState(status), Status: status}
			if last != nil && !transitioned(*last, tr) {
				continue
			}
			cp := tr
			last = &cp
			fn(tr)
		}
	}()
	return sub.Close, nil
}

func projectState(s models.Status) UIState {
	switch s.State {
	case models.StateChatting:
		return UIChatting
	case models.StateSearching:
		return UISearching
	default:
		return UIIdle
	}
}

// transitioned reports whether b is a real transition relative to a. Moving
// between two chatting records counts when the session changed (skip followed
// by an immediate rematch).
func transitioned(a, b Transition) bool {
	if a.State != b.State {
		return true
	}
	return b.State == UIChatting && a.Status.SessionID != b.Status.SessionID
}
