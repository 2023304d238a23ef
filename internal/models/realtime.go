package models

// EventType names both inbound commands and outbound notifications on a live connection.
type EventType string

// Inbound
const (
	EventJoin        EventType = "join"
	EventLeave       EventType = "leave"
	EventSend        EventType = "send"
	EventTypingStart EventType = "typing:start"
	EventTypingStop  EventType = "typing:stop"
	EventMarkRead    EventType = "mark_read"
)

// Outbound
const (
	EventConnected       EventType = "connected"
	EventJoined          EventType = "joined"
	EventLeft            EventType = "left"
	EventMessageSent     EventType = "message:sent"
	EventMessageReceived EventType = "message:received"
	EventTypingStarted   EventType = "typing:started"
	EventTypingStopped   EventType = "typing:stopped"
	EventMessagesRead    EventType = "messages:read"
	EventUserOnline      EventType = "user:online"
	EventUserOffline     EventType = "user:offline"
	EventError           EventType = "error"
)

// InboundEvent is what a client writes to its connection.
type InboundEvent struct {
	Type          EventType `json:"type"`
	ChatID        string    `json:"chat_id,omitempty"`
	Content       string    `json:"content,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// Event is what the gateway writes to a connection.
type Event struct {
	Type EventType `json:"type"`
	// ChatID is set for room scoped events.
	ChatID string `json:"chat_id,omitempty"`
	// UserID is the actor: typing party, reader, or presence subject.
	UserID     string   `json:"user_id,omitempty"`
	IsProvider bool     `json:"is_provider,omitempty"`
	Message    *Message `json:"message,omitempty"`
	// CorrelationID echoes the client token on acks and errors.
	CorrelationID string `json:"correlation_id,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Error         string `json:"error,omitempty"`
}

// ErrorEvent builds an error event for err.
func ErrorEvent(chatID, correlationID string, err error) Event {
	return Event{
		Type:          EventError,
		ChatID:        chatID,
		CorrelationID: correlationID,
		Reason:        ErrorReason(err),
		Error:         err.Error(),
	}
}
