package chathub_test

import (
	"sync"

	"gorandom/backend/internal/models"
)

type MockClient struct {
	userID      string
	connID      string
	RecvChannel chan models.ServerEvent

	closeOnce sync.Once
}

func newMockClient(userID, connID string) *MockClient {
	return &MockClient{
		userID:      userID,
		connID:      connID,
		RecvChannel: make(chan models.ServerEvent, 32),
	}
}

func (c *MockClient) GetUserID() string {
	return c.userID
}

func (c *MockClient) GetConnID() string {
	return c.connID
}

func (c *MockClient) GetSendChannel() chan<- models.ServerEvent {
	return c.RecvChannel
}

func (c *MockClient) Run() {
	// Not needed for testing
}

func (c *MockClient) Close() {
	c.closeOnce.Do(func() {
		close(c.RecvChannel)
	})
}
