package chathub

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"gorandom/backend/internal/models"
	"gorandom/backend/internal/presence"
	"gorandom/backend/internal/realtime"
)

// command pairs a client command with the connection it came from.
type command struct {
	client Client
	cmd    models.ClientCommand
}

// ManagerService is the hub: it owns the set of connected clients, routes
// their commands into the lifecycle service, and turns connection teardown
// into dead-man's-switch firings.
type ManagerService struct {
	RegisterCh   chan Client
	UnregisterCh chan Client
	CommandCh    chan command

	Lifecycle *LifecycleService
	Presence  *presence.Registry
	Projector *Projector

	mu        sync.RWMutex
	clients   map[string]Client // by user id
	projStops map[string]func()
}

func NewManagerService(lifecycle *LifecycleService, reg *presence.Registry, projector *Projector) *ManagerService {
	m := &ManagerService{
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		CommandCh:    make(chan command, 64),
		Lifecycle:    lifecycle,
		Presence:     reg,
		Projector:    projector,
		clients:      make(map[string]Client),
		projStops:    make(map[string]func()),
	}
	lifecycle.SetNotifier(m)
	return m
}

// Run is the hub's main dispatcher goroutine.
func (m *ManagerService) Run(ctx context.Context) {
	log.Println("Chat hub started.")
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-m.RegisterCh:
			m.register(client)
		case client := <-m.UnregisterCh:
			m.unregister(client)
		case c := <-m.CommandCh:
			// Commands do store round-trips; never block the dispatcher.
			go m.dispatch(c)
		}
	}
}

func (m *ManagerService) register(client Client) {
	uid, connID := client.GetUserID(), client.GetConnID()

	m.mu.Lock()
	if old, ok := m.clients[uid]; ok {
		// A reconnect supersedes the previous connection.
		old.Close()
		if stop := m.projStops[uid]; stop != nil {
			stop()
		}
	}
	m.clients[uid] = client
	m.mu.Unlock()

	ctx := context.Background()
	if err := m.Presence.MarkOnline(ctx, uid); err != nil {
		log.Printf("ERROR: marking %s online: %v", uid, err)
	}

	// Base switches for the whole connection: the online flag drops and the
	// status record goes offline, unless the user is mid-chat, in which case
	// the chatting reference survives for reconnection.
	m.Presence.ArmOffline(connID, realtime.UserOnlineKey(uid), realtime.Set([]byte("false")))
	m.Presence.ArmOffline(connID, realtime.UserStatusKey(uid),
		presence.OfflineStatusFallback(func() int64 { return time.Now().UnixMilli() }))

	stop, err := m.Projector.Watch(ctx, uid, func(tr Transition) {
		m.Lifecycle.HandleStatusChange(context.Background(), connID, uid, tr)
	})
	if err != nil {
		log.Printf("ERROR: status watch for %s: %v", uid, err)
	} else {
		m.mu.Lock()
		m.projStops[uid] = stop
		m.mu.Unlock()
	}

	log.Printf("Client registered: user %s, conn %s", uid, connID)
}

func (m *ManagerService) unregister(client Client) {
	uid, connID := client.GetUserID(), client.GetConnID()

	m.mu.Lock()
	if m.clients[uid] != client {
		// A newer connection already replaced this one; its switches were
		// superseded too.
		m.mu.Unlock()
		m.Presence.CancelAll(connID)
		return
	}
	delete(m.clients, uid)
	stop := m.projStops[uid]
	delete(m.projStops, uid)
	// Close under the lock: SendToUser holds the read lock across its send,
	// so the channel can never be closed mid-send.
	client.Close()
	m.mu.Unlock()

	if stop != nil {
		stop()
	}

	if err := m.Presence.Fire(context.Background(), connID); err == nil {
		log.Printf("Client disconnected: user %s, conn %s", uid, connID)
	}
	m.Lifecycle.HandleDisconnect(uid)
}

func (m *ManagerService) dispatch(c command) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	uid, connID := c.client.GetUserID(), c.client.GetConnID()

	var err error
	switch c.cmd.Type {
	case models.CmdSearch:
		err = m.Lifecycle.StartSearch(ctx, connID, uid, c.cmd.Interests)
	case models.CmdCancel:
		err = m.Lifecycle.CancelSearch(ctx, connID, uid)
	case models.CmdSkip:
		err = m.Lifecycle.Skip(ctx, connID, uid)
	case models.CmdEnd:
		err = m.Lifecycle.EndChat(ctx, connID, uid)
	case models.CmdMessage:
		err = m.Lifecycle.SendMessage(ctx, uid, c.cmd.Text)
	case models.CmdReport:
		err = m.Lifecycle.Report(ctx, uid, c.cmd.Reason, c.cmd.Severity)
	case models.CmdBlock:
		err = m.Lifecycle.Block(ctx, connID, uid)
	default:
		log.Printf("WARNING: unknown command %q from %s", c.cmd.Type, uid)
		return
	}

	if err != nil {
		if !errors.Is(err, ErrNotChatting) && !errors.Is(err, ErrNoInterests) {
			log.Printf("ERROR: command %q for %s: %v", c.cmd.Type, uid, err)
		}
		m.SendToUser(uid, models.ServerEvent{Type: models.EvtError, Error: err.Error()})
	}
}

// Submit hands a client command to the dispatcher.
func (m *ManagerService) Submit(client Client, cmd models.ClientCommand) {
	m.CommandCh <- command{client: client, cmd: cmd}
}

// SendToUser pushes an event to a connected user, dropping it if the user is
// not connected to this node or their send buffer is full. The read lock is
// held across the non-blocking send: Close only ever runs under the write
// lock, so the send can never race the channel closing.
func (m *ManagerService) SendToUser(uid string, evt models.ServerEvent) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	client, ok := m.clients[uid]
	if !ok {
		return
	}
	select {
	case client.GetSendChannel() <- evt:
	default:
		log.Printf("WARNING: dropping event %q for slow client %s", evt.Type, uid)
	}
}
