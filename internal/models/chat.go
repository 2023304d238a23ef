package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Chat is the durable conversation between exactly one client and one provider.
// At most one Chat exists per (UserID, ProviderID) pair.
type Chat struct {
	// ChatID is the unique identifier for the chat (UUID), assigned on creation.
	ChatID string `gorm:"primaryKey" json:"chat_id"`
	// UserID is the identity of the client side.
	UserID string `gorm:"type:text;not null;uniqueIndex:idx_chat_pair,priority:1" json:"user_id"`
	// ProviderID is the identity of the provider side.
	ProviderID string `gorm:"type:text;not null;uniqueIndex:idx_chat_pair,priority:2" json:"provider_id"`
	// CreatedAt is set once when the chat is created.
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	// LastMessage is the content of the most recent message, nil until the first send.
	LastMessage *string `gorm:"type:text" json:"last_message"`
	// LastMessageAt is the time of the most recent message.
	LastMessageAt *time.Time `gorm:"index" json:"last_message_at"`
	// UnreadCountUser counts provider messages the user has not read yet.
	UnreadCountUser int `gorm:"not null;default:0" json:"unread_count_user"`
	// UnreadCountProvider counts user messages the provider has not read yet.
	UnreadCountProvider int `gorm:"not null;default:0" json:"unread_count_provider"`
}

// NewChat returns a fresh chat for the pair with zero counters.
func NewChat(userID, providerID string, now time.Time) *Chat {
	return &Chat{
		ChatID:     uuid.New().String(),
		UserID:     userID,
		ProviderID: providerID,
		CreatedAt:  now,
	}
}

// BeforeCreate generates a UUID if ChatID is not set yet.
func (c *Chat) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ChatID == "" {
		c.ChatID = uuid.New().String()
	}
	return
}

// HasParty reports whether identity is one of the two parties.
func (c *Chat) HasParty(identity string) bool {
	return identity == c.UserID || identity == c.ProviderID
}

// RoleOf resolves the side identity speaks for inside this chat.
// The chat row decides; the credential flag only breaks the tie when the
// same identity sits on both sides.
func (c *Chat) RoleOf(identity string, credentialIsProvider bool) (isProvider bool, ok bool) {
	switch {
	case identity == c.UserID && identity == c.ProviderID:
		return credentialIsProvider, true
	case identity == c.ProviderID:
		return true, true
	case identity == c.UserID:
		return false, true
	}
	return false, false
}

// Counterpart returns the other party relative to the given side.
func (c *Chat) Counterpart(isProvider bool) string {
	if isProvider {
		return c.UserID
	}
	return c.ProviderID
}

// UnreadFor returns the unread counter owned by the given side.
func (c *Chat) UnreadFor(isProvider bool) int {
	if isProvider {
		return c.UnreadCountProvider
	}
	return c.UnreadCountUser
}

// ActivityAt is the sort key for chat lists: last message time, or creation time for empty chats.
func (c *Chat) ActivityAt() time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.CreatedAt
}

// ActivityBefore orders chat lists: most recent activity first, ties by ChatID.
func ActivityBefore(a, b *Chat) bool {
	ta, tb := a.ActivityAt(), b.ActivityAt()
	if !ta.Equal(tb) {
		return ta.After(tb)
	}
	return a.ChatID < b.ChatID
}

// ChatSummary is one row of a caller's chat list.
type ChatSummary struct {
	Chat
	// Role is the caller's side in this chat: "user" or "provider".
	Role            string  `json:"role"`
	CounterpartID   string  `json:"counterpart_id"`
	CounterpartName *string `json:"counterpart_name"`
	// CounterpartCategories are the provider's service categories when the counterpart is a provider.
	CounterpartCategories []string `json:"counterpart_categories,omitempty"`
	UnreadCount           int      `json:"unread_count"`
}

const (
	RoleUser     = "user"
	RoleProvider = "provider"
)

// RoleName maps the provider flag to its wire name.
func RoleName(isProvider bool) string {
	if isProvider {
		return RoleProvider
	}
	return RoleUser
}
