package chathub

import "marketchat/backend/internal/models"

// Client is one live, authenticated connection. It abstracts the transport
// so the hub can manage WebSocket connections and test doubles uniformly.
type Client interface {
	// GetConnID returns the identifier unique to this connection.
	GetConnID() string
	// GetIdentity returns the verified identity behind the connection.
	GetIdentity() models.Identity

	// GetSendChannel returns the channel the hub writes outbound events to.
	// The hub never blocks on it; a full buffer drops the event.
	GetSendChannel() chan<- models.Event

	// Run starts the client's read and write pumps.
	Run()
	// Close shuts the outbound side down. Safe to call more than once.
	Close()
}
