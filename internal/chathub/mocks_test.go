package chathub_test

import (
	"context"
	"encoding/json"
	"sync"

	"gorandom/backend/internal/chathub"
	"gorandom/backend/internal/models"
	"gorandom/backend/internal/presence"
	"gorandom/backend/internal/realtime"

	"github.com/stretchr/testify/mock"
)

// MockStorage is a testify mock of the storage.Storage interface.
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) GetProfile(ctx context.Context, uid string) (*models.Profile, error) {
	args := m.Called(ctx, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

func (m *MockStorage) SaveUserIfNotExists(ctx context.Context, uid string) (*models.User, error) {
	args := m.Called(ctx, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStorage) SaveUserInterests(ctx context.Context, uid string, interests []string) error {
	args := m.Called(ctx, uid, interests)
	return args.Error(0)
}

func (m *MockStorage) SaveSession(ctx context.Context, rec *models.SessionRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockStorage) CloseSession(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *MockStorage) GetSessionRecord(ctx context.Context, sessionID string) (*models.SessionRecord, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SessionRecord), args.Error(1)
}

func (m *MockStorage) SaveMessage(ctx context.Context, msg *models.ChatHistory) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockStorage) GetChatHistory(ctx context.Context, sessionID string) ([]models.ChatHistory, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ChatHistory), args.Error(1)
}

func (m *MockStorage) SaveReport(ctx context.Context, r *models.Report) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockStorage) OpenReports(ctx context.Context) ([]models.Report, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Report), args.Error(1)
}

func (m *MockStorage) ResolveReport(ctx context.Context, reportID, status string) error {
	args := m.Called(ctx, reportID, status)
	return args.Error(0)
}

func (m *MockStorage) BlockUser(ctx context.Context, blockerID, blockedID string) error {
	args := m.Called(ctx, blockerID, blockedID)
	return args.Error(0)
}

func (m *MockStorage) IsBlocked(ctx context.Context, a, b string) (bool, error) {
	args := m.Called(ctx, a, b)
	return args.Bool(0), args.Error(1)
}

// recordingNotifier collects events pushed per user, replacing the hub.
type recordingNotifier struct {
	mu     sync.Mutex
	events map[string][]models.ServerEvent
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{events: make(map[string][]models.ServerEvent)}
}

func (n *recordingNotifier) SendToUser(uid string, evt models.ServerEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events[uid] = append(n.events[uid], evt)
}

func (n *recordingNotifier) eventsFor(uid string) []models.ServerEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]models.ServerEvent, len(n.events[uid]))
	copy(out, n.events[uid])
	return out
}

func (n *recordingNotifier) hasEvent(uid, evtType string) bool {
	for _, e := range n.eventsFor(uid) {
		if e.Type == evtType {
			return true
		}
	}
	return false
}

// testServices bundles a fully wired core over the in-memory store.
type testServices struct {
	store     *realtime.MemoryStore
	storage   *MockStorage
	registry  *presence.Registry
	matcher   *chathub.MatcherService
	lifecycle *chathub.LifecycleService
	notifier  *recordingNotifier
}

func newTestServices() *testServices {
	store := realtime.NewMemoryStore()
	storageMock := new(MockStorage)
	registry := presence.NewRegistry(store)
	matcher := chathub.NewMatcherService(store, storageMock)
	lifecycle := chathub.NewLifecycleService(store, storageMock, matcher, registry)
	notifier := newRecordingNotifier()
	lifecycle.SetNotifier(notifier)
	return &testServices{
		store:     store,
		storage:   storageMock,
		registry:  registry,
		matcher:   matcher,
		lifecycle: lifecycle,
		notifier:  notifier,
	}
}

// expectProfile wires the standard lookups for one user.
func (ts *testServices) expectProfile(uid, username string, interests ...string) {
	ts.storage.On("GetProfile", mock.Anything, uid).
		Return(&models.Profile{UID: uid, Username: username, Interests: interests}, nil).Maybe()
}

// expectUnblocked lets every block lookup pass.
func (ts *testServices) expectUnblocked() {
	ts.storage.On("IsBlocked", mock.Anything, mock.Anything, mock.Anything).
		Return(false, nil).Maybe()
}

// expectAudit accepts session audit writes.
func (ts *testServices) expectAudit() {
	ts.storage.On("SaveSession", mock.Anything, mock.Anything).Return(nil).Maybe()
	ts.storage.On("CloseSession", mock.Anything, mock.Anything).Return(nil).Maybe()
}

// queueMembers reads an interest queue directly from the store.
func (ts *testServices) queueMembers(tag string) map[string]bool {
	raw, _ := ts.store.Get(context.Background(), realtime.QueueKey(tag))
	if len(raw) == 0 {
		return map[string]bool{}
	}
	var q map[string]bool
	if err := json.Unmarshal(raw, &q); err != nil {
		return map[string]bool{}
	}
	return q
}

// statusOf reads a user's status record directly from the store.
func (ts *testServices) statusOf(uid string) models.Status {
	raw, _ := ts.store.Get(context.Background(), realtime.UserStatusKey(uid))
	status, _ := models.DecodeStatus(raw)
	return status
}

// sessionOf reads a session record directly from the store.
func (ts *testServices) sessionOf(sessionID string) *models.Session {
	raw, _ := ts.store.Get(context.Background(), realtime.SessionKey(sessionID))
	sess, _ := models.DecodeSession(raw)
	return sess
}
