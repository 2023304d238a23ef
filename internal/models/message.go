package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is one append-only entry of a chat. Timestamp is Unix milliseconds
// and strictly increases within a chat.
type Message struct {
	// MessageID is the unique identifier for the message (UUID).
	MessageID string `gorm:"primaryKey" json:"message_id"`
	// ChatID is the owning chat. Not a foreign key at the storage layer.
	ChatID string `gorm:"type:text;not null;uniqueIndex:idx_chat_ts,priority:1" json:"chat_id"`
	// SenderID is the identity that sent the message.
	SenderID string `gorm:"type:text;not null" json:"sender_id"`
	// IsProviderSender records the role the sender spoke in.
	IsProviderSender bool `gorm:"not null" json:"is_provider_sender"`
	// Content is the trimmed user text.
	Content string `gorm:"type:text;not null" json:"content"`
	// Timestamp is the sort and pagination key.
	Timestamp int64 `gorm:"not null;uniqueIndex:idx_chat_ts,priority:2,sort:desc" json:"timestamp"`
	// ReadByUser and ReadByProvider start opposite to the sender's role.
	ReadByUser     bool `gorm:"not null" json:"read_by_user"`
	ReadByProvider bool `gorm:"not null" json:"read_by_provider"`
}

// NewMessage builds a message whose read flags mark the sender's own side as read.
func NewMessage(chatID, senderID string, isProviderSender bool, content string, ts int64) *Message {
	return &Message{
		MessageID:        uuid.New().String(),
		ChatID:           chatID,
		SenderID:         senderID,
		IsProviderSender: isProviderSender,
		Content:          content,
		Timestamp:        ts,
		ReadByUser:       !isProviderSender,
		ReadByProvider:   isProviderSender,
	}
}

// SentAt converts Timestamp back to a time.Time.
func (m *Message) SentAt() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// MessagePage is one page of history, newest first.
// NextCursor is the oldest returned timestamp, nil when nothing older remains.
type MessagePage struct {
	Messages   []Message `json:"messages"`
	NextCursor *int64    `json:"next_cursor"`
}
