package chathub

import "gorandom/backend/internal/models"

// Client is the interface for any type of connection. It abstracts the
// underlying transport, allowing the hub to manage client types uniformly.
type Client interface {
	// GetUserID returns the unique identifier for the user behind the client.
	GetUserID() string
	// GetConnID returns the identifier of this particular connection. One
	// user reconnecting gets a fresh ConnID; dead-man's switches are keyed
	// by it so a stale connection's switches never fire into a new session.
	GetConnID() string

	// GetSendChannel returns the channel the hub pushes events for this
	// specific client into. It is a send-only channel.
	GetSendChannel() chan<- models.ServerEvent

	// Run starts the client's read and write pumps.
	Run()
	// Close shuts down the client's connection and associated channels.
	Close()
}
