package storage

import (
	"context"
	"time"

	"marketchat/backend/internal/config"
	"marketchat/backend/internal/models"

	"gorm.io/gorm"
)

// Store is the Conversation Store: durable chats and their append-only messages.
// Every method fails with models.ErrNotFound when the chat does not exist;
// other errors are transient storage failures and are returned as-is.
type Store interface {
	// GetOrCreateChat returns the single chat for the pair, creating it on first contact.
	// Concurrent callers for the same pair converge on one chat.
	GetOrCreateChat(ctx context.Context, userID, providerID string) (*models.Chat, error)
	GetChatByID(ctx context.Context, chatID string) (*models.Chat, error)
	// ListChatsForUser and ListChatsForProvider order chats by most recent activity first.
	ListChatsForUser(ctx context.Context, userID string) ([]models.Chat, error)
	ListChatsForProvider(ctx context.Context, providerID string) ([]models.Chat, error)

	// AppendMessage persists the message and updates the chat summary and the
	// counterpart's unread counter atomically.
	AppendMessage(ctx context.Context, chatID, senderID string, isProviderSender bool, content string) (*models.Message, error)
	// ListMessages returns at most limit messages, newest first, strictly older than before when set.
	ListMessages(ctx context.Context, chatID string, limit int, before *int64) (*models.MessagePage, error)
	// MarkRead zeroes the reader's unread counter and flips the reader's per-message flags.
	MarkRead(ctx context.Context, chatID string, isProviderReader bool) error

	Migrate(ctx context.Context) error
}

// Service is the gorm/Postgres Store.
type Service struct {
	DB  *gorm.DB
	now func() time.Time
}

// GormConfig is the gorm configuration for store connections. Single
// statements run bare; multi-statement writes open their own transaction.
func GormConfig() *gorm.Config {
	return &gorm.Config{SkipDefaultTransaction: true}
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB) *Service {
	return &Service{
		DB:  db,
		now: time.Now,
	}
}

// NormalizeLimit clamps a requested page size into [1, MaxHistoryLimit].
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return config.DefaultHistoryLimit
	}
	if limit > config.MaxHistoryLimit {
		return config.MaxHistoryLimit
	}
	return limit
}

// nextTimestamp assigns the next message time for a chat in Unix ms.
// It never goes backwards and never repeats, even when the clock does.
func nextTimestamp(now time.Time, last *time.Time) int64 {
	ts := now.UnixMilli()
	if last != nil && last.UnixMilli() >= ts {
		ts = last.UnixMilli() + 1
	}
	return ts
}

// pageOf cuts a newest-first slice fetched with limit+1 rows into a page.
func pageOf(rows []models.Message, limit int) *models.MessagePage {
	page := &models.MessagePage{Messages: rows}
	if len(rows) > limit {
		page.Messages = rows[:limit]
		cursor := page.Messages[limit-1].Timestamp
		page.NextCursor = &cursor
	}
	if page.Messages == nil {
		page.Messages = []models.Message{}
	}
	return page
}

// unreadColumn names the counter owned by the given side.
func unreadColumn(isProvider bool) string {
	if isProvider {
		return "unread_count_provider"
	}
	return "unread_count_user"
}

// readFlagColumn names the per-message flag owned by the given side.
func readFlagColumn(isProvider bool) string {
	if isProvider {
		return "read_by_provider"
	}
	return "read_by_user"
}
