package chathub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"gorandom/backend/internal/models"
	"gorandom/backend/internal/presence"
	"gorandom/backend/internal/realtime"
	"gorandom/backend/internal/storage"
)

// Notifier pushes events to a connected user. Implemented by the hub.
type Notifier interface {
	SendToUser(uid string, evt models.ServerEvent)
}

// LifecycleService drives each participant's state machine
// (Idle -> Searching -> Chatting -> Idle, with Chatting -> Searching via
// Skip), reacting to user actions and to status/presence changes.
type LifecycleService struct {
	Store    realtime.Store
	Storage  storage.Storage
	Matcher  *MatcherService
	Presence *presence.Registry

	notify Notifier

	mu        sync.Mutex
	searching map[string][]string // uid -> tags joined by the in-flight search
	watchers  map[string]func()   // uid -> session watcher teardown
}

func NewLifecycleService(store realtime.Store, s storage.Storage, matcher *MatcherService, reg *presence.Registry) *LifecycleService {
	return &LifecycleService{
		Store:     store,
		Storage:   s,
		Matcher:   matcher,
		Presence:  reg,
		searching: make(map[string][]string),
		watchers:  make(map[string]func()),
	}
}

// SetNotifier wires the hub in after construction.
func (l *LifecycleService) SetNotifier(n Notifier) {
	l.notify = n
}

func (l *LifecycleService) send(uid string, evt models.ServerEvent) {
	if l.notify != nil {
		l.notify.SendToUser(uid, evt)
	}
}

// StartSearch moves the user from Idle to Searching and runs the matcher.
// Before any claim attempt, a dead-man's switch is armed per interest queue
// so a dropped connection never leaves a ghost entry waiting forever.
func (l *LifecycleService) StartSearch(ctx context.Context, connID, uid string, interests []string) error {
	tags := models.NormalizeInterests(interests)
	if len(tags) == 0 {
		return ErrNoInterests
	}

	if err := l.Storage.SaveUserInterests(ctx, uid, tags); err != nil {
		log.Printf("WARNING: persisting interests for %s: %v", uid, err)
	}

	if err := l.Store.AtomicUpdate(ctx, map[string]realtime.Mutation{
		realtime.UserStatusKey(uid): realtime.Set(models.Searching().Encode()),
	}); err != nil {
		return err
	}

	l.mu.Lock()
	l.searching[uid] = tags
	l.mu.Unlock()

	for _, tag := range tags {
		l.Presence.ArmOffline(connID, realtime.QueueKey(tag), removeFromQueue(uid))
	}

	result, err := l.Matcher.AttemptMatch(ctx, uid, tags)
	if err != nil {
		log.Printf("ERROR: match attempt for %s: %v", uid, err)
		l.send(uid, models.ServerEvent{Type: models.EvtError, Error: "reconnecting"})
		return err
	}
	// Both sides, initiator included, learn of a match through their own
	// status subscription; an unmatched caller simply stays enqueued.
	_ = result
	return nil
}

// CancelSearch is idempotent: cancelling a user who is not searching changes
// nothing. A cancel racing an in-flight claim loses gracefully: the status
// swap aborts and the already-committed match is delivered as usual.
func (l *LifecycleService) CancelSearch(ctx context.Context, connID, uid string) error {
	res, err := l.Store.CompareAndSwap(ctx, realtime.UserStatusKey(uid), func(cur []byte) ([]byte, error) {
		status, err := models.DecodeStatus(cur)
		if err != nil {
			return nil, err
		}
		if status.State != models.StateSearching {
			return nil, realtime.ErrAbort
		}
		return models.Idle().Encode(), nil
	})
	if err != nil {
		return err
	}

	l.mu.Lock()
	tags := l.searching[uid]
	delete(l.searching, uid)
	l.mu.Unlock()
	for _, tag := range tags {
		l.Presence.CancelOffline(connID, realtime.QueueKey(tag))
	}

	if !res.Committed || len(tags) == 0 {
		return nil
	}
	muts := make(map[string]realtime.Mutation, len(tags))
	for _, tag := range tags {
		muts[realtime.QueueKey(tag)] = removeFromQueue(uid)
	}
	return l.Store.AtomicUpdate(ctx, muts)
}

// EndChat clears status and session association for the caller only. The
// partner's session stays chatting until they observe a disconnect or skip
// signal and react themselves.
func (l *LifecycleService) EndChat(ctx context.Context, connID, uid string) error {
	status, err := l.currentStatus(ctx, uid)
	if err != nil {
		return err
	}
	if status.State != models.StateChatting {
		return nil
	}

	l.stopWatcher(uid)
	l.Presence.CancelOffline(connID, realtime.SessionKey(status.SessionID))

	if err := l.Store.AtomicUpdate(ctx, map[string]realtime.Mutation{
		realtime.UserStatusKey(uid): realtime.Set(models.Idle().Encode()),
		realtime.ClaimKey(uid):      realtime.Delete(),
	}); err != nil {
		return err
	}

	if err := l.Storage.CloseSession(ctx, status.SessionID); err != nil {
		log.Printf("ERROR: closing session audit row %s: %v", status.SessionID, err)
	}
	return nil
}

// Skip signals the partner by writing the skipper's id into the session's
// disconnectedBy field, clears the skipper's own status, then immediately
// re-enters the search with the same interests.
func (l *LifecycleService) Skip(ctx context.Context, connID, uid string) error {
	status, err := l.currentStatus(ctx, uid)
	if err != nil {
		return err
	}
	if status.State != models.StateChatting {
		return ErrNotChatting
	}
	sessionID := status.SessionID

	l.stopWatcher(uid)
	l.Presence.CancelOffline(connID, realtime.SessionKey(sessionID))

	// Mark first so the partner sees the signal before our status clears.
	if err := l.Store.AtomicUpdate(ctx, map[string]realtime.Mutation{
		realtime.SessionKey(sessionID): setDisconnectedBy(uid),
	}); err != nil {
		return err
	}
	if err := l.Store.AtomicUpdate(ctx, map[string]realtime.Mutation{
		realtime.UserStatusKey(uid): realtime.Set(models.Idle().Encode()),
		realtime.ClaimKey(uid):      realtime.Delete(),
	}); err != nil {
		return err
	}

	if err := l.Storage.CloseSession(ctx, sessionID); err != nil {
		log.Printf("ERROR: closing session audit row %s: %v", sessionID, err)
	}

	profile, err := l.Storage.GetProfile(ctx, uid)
	if err != nil {
		return fmt.Errorf("skip re-search for %s: %w", uid, err)
	}
	return l.StartSearch(ctx, connID, uid, profile.Interests)
}

// SendMessage appends a message to the live session and fans it out.
func (l *LifecycleService) SendMessage(ctx context.Context, uid, text string) error {
	status, err := l.currentStatus(ctx, uid)
	if err != nil {
		return err
	}
	if status.State != models.StateChatting {
		return ErrNotChatting
	}

	msg := &models.ChatHistory{
		SessionID: status.SessionID,
		SenderID:  uid,
		Content:   text,
		Type:      "text",
	}
	if err := l.Storage.SaveMessage(ctx, msg); err != nil {
		return err
	}

	evt := models.ServerEvent{
		Type:      models.EvtMessage,
		SessionID: status.SessionID,
		SenderID:  uid,
		Text:      text,
		At:        time.Now().UnixMilli(),
	}
	payload, _ := json.Marshal(evt)
	if err := l.Store.AtomicUpdate(ctx, map[string]realtime.Mutation{
		realtime.MessageKey(status.SessionID, fmt.Sprint(msg.ID)): realtime.Set(payload),
	}); err != nil {
		log.Printf("WARNING: publishing message %d to realtime store: %v", msg.ID, err)
	}

	l.send(uid, evt)
	l.send(status.PartnerID, evt)
	return nil
}

// Report files a moderation report against the current partner.
func (l *LifecycleService) Report(ctx context.Context, uid, reason, severity string) error {
	status, err := l.currentStatus(ctx, uid)
	if err != nil {
		return err
	}
	if status.State != models.StateChatting {
		return ErrNotChatting
	}
	return l.Storage.SaveReport(ctx, &models.Report{
		ReporterID: uid,
		ReportedID: status.PartnerID,
		SessionID:  status.SessionID,
		Reason:     reason,
		Severity:   severity,
	})
}

// Block blocks the current partner and ends the chat; the pair will never be
// matched again.
func (l *LifecycleService) Block(ctx context.Context, connID, uid string) error {
	status, err := l.currentStatus(ctx, uid)
	if err != nil {
		return err
	}
	if status.State != models.StateChatting {
		return ErrNotChatting
	}
	if err := l.Storage.BlockUser(ctx, uid, status.PartnerID); err != nil {
		return err
	}
	return l.EndChat(ctx, connID, uid)
}

// HandleStatusChange reacts to a projected transition of the user's own
// status record. This is how the passive half of a pair learns it was
// matched: its record flips to chatting without it ever calling the matcher.
func (l *LifecycleService) HandleStatusChange(ctx context.Context, connID, uid string, tr Transition) {
	switch tr.State {
	case UIChatting:
		l.onChatting(ctx, connID, uid, tr.Status)
	default:
		l.stopWatcher(uid)
		l.send(uid, models.ServerEvent{Type: models.EvtStatus, State: string(tr.State)})
	}
}

func (l *LifecycleService) onChatting(ctx context.Context, connID, uid string, status models.Status) {
	sessionID, partnerID := status.SessionID, status.PartnerID

	// Queue-entry switches are stale the moment a match lands.
	l.mu.Lock()
	tags := l.searching[uid]
	delete(l.searching, uid)
	l.mu.Unlock()
	for _, tag := range tags {
		l.Presence.CancelOffline(connID, realtime.QueueKey(tag))
	}

	partner, err := l.Storage.GetProfile(ctx, partnerID)
	if errors.Is(err, storage.ErrProfileNotFound) {
		log.Printf("WARNING: %v: user %s, session %s", ErrStaleSession, uid, sessionID)
		if err := l.Store.AtomicUpdate(ctx, map[string]realtime.Mutation{
			realtime.UserStatusKey(uid): realtime.Set(models.Idle().Encode()),
			realtime.ClaimKey(uid):      realtime.Delete(),
		}); err != nil {
			log.Printf("ERROR: resetting stale session for %s: %v", uid, err)
		}
		return
	}
	if err != nil {
		log.Printf("ERROR: partner profile for %s: %v", uid, err)
		l.send(uid, models.ServerEvent{Type: models.EvtError, Error: "reconnecting"})
		return
	}

	// Re-armed for every new session; a stale switch from a previous session
	// was cancelled when that session ended.
	l.Presence.ArmOffline(connID, realtime.SessionKey(sessionID), setDisconnectedBy(uid))

	// Reconnection: if our own drop marked the session, coming back clears it.
	if _, err := l.Store.CompareAndSwap(ctx, realtime.SessionKey(sessionID), clearDisconnectedBy(uid)); err != nil {
		log.Printf("ERROR: clearing disconnect flag for %s: %v", uid, err)
	}

	var shared []string
	if own, err := l.Storage.GetProfile(ctx, uid); err == nil {
		shared = models.SharedInterests(own.Interests, partner.Interests)
	}

	l.send(uid, models.ServerEvent{
		Type:            models.EvtMatchFound,
		State:           string(UIChatting),
		SessionID:       sessionID,
		PartnerID:       partnerID,
		PartnerName:     partner.Username,
		PartnerAvatar:   partner.Avatar,
		SharedInterests: shared,
	})

	l.watchSession(uid, sessionID, partnerID)
}

// watchSession observes the session's disconnectedBy field and the partner's
// online flag for the duration of the chat, surfacing partner-disconnected /
// partner-reconnected affordances and clearing the flag when the partner
// comes back while the session is still referenced.
func (l *LifecycleService) watchSession(uid, sessionID, partnerID string) {
	l.stopWatcher(uid)

	ctx, cancel := context.WithCancel(context.Background())
	sessSub, err := l.Store.Subscribe(ctx, realtime.SessionKey(sessionID))
	if err != nil {
		cancel()
		log.Printf("ERROR: session watch for %s: %v", uid, err)
		return
	}
	onlineSub, err := l.Store.Subscribe(ctx, realtime.UserOnlineKey(partnerID))
	if err != nil {
		sessSub.Close()
		cancel()
		log.Printf("ERROR: partner presence watch for %s: %v", uid, err)
		return
	}

	l.mu.Lock()
	l.watchers[uid] = func() {
		cancel()
		sessSub.Close()
		onlineSub.Close()
	}
	l.mu.Unlock()

	go func() {
		var lastDisconnectedBy string
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-sessSub.C:
				if !ok {
					return
				}
				sess, err := models.DecodeSession(raw)
				if err != nil || sess == nil {
					continue
				}
				d := sess.DisconnectedBy
				if d == lastDisconnectedBy {
					continue
				}
				lastDisconnectedBy = d
				switch d {
				case partnerID:
					l.send(uid, models.ServerEvent{
						Type:      models.EvtPartnerDisconnect,
						SessionID: sessionID,
						PartnerID: partnerID,
					})
				case "":
					l.send(uid, models.ServerEvent{
						Type:      models.EvtPartnerReconnected,
						SessionID: sessionID,
						PartnerID: partnerID,
					})
				}
			case raw, ok := <-onlineSub.C:
				if !ok {
					return
				}
				var online bool
				if json.Unmarshal(raw, &online) != nil {
					continue
				}
				if online && lastDisconnectedBy == partnerID {
					if _, err := l.Store.CompareAndSwap(ctx, realtime.SessionKey(sessionID), clearDisconnectedBy(partnerID)); err != nil {
						log.Printf("ERROR: clearing reconnect flag in %s: %v", sessionID, err)
					}
				}
			}
		}
	}()
}

// HandleDisconnect releases per-user bookkeeping after the hub fired the
// connection's dead-man's switches.
func (l *LifecycleService) HandleDisconnect(uid string) {
	l.mu.Lock()
	delete(l.searching, uid)
	l.mu.Unlock()
	l.stopWatcher(uid)
}

func (l *LifecycleService) stopWatcher(uid string) {
	l.mu.Lock()
	stop := l.watchers[uid]
	delete(l.watchers, uid)
	l.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (l *LifecycleService) currentStatus(ctx context.Context, uid string) (models.Status, error) {
	raw, err := l.Store.Get(ctx, realtime.UserStatusKey(uid))
	if err != nil {
		return models.Status{}, err
	}
	return models.DecodeStatus(raw)
}
