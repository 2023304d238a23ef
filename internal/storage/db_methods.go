package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketchat/backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Migrate creates the chats and messages tables with their indexes.
func (s *Service) Migrate(ctx context.Context) error {
	return s.DB.WithContext(ctx).AutoMigrate(&models.Chat{}, &models.Message{})
}

// GetOrCreateChat looks the pair up, inserts with ON CONFLICT DO NOTHING when
// absent, then re-reads so a racing creator's row wins.
func (s *Service) GetOrCreateChat(ctx context.Context, userID, providerID string) (*models.Chat, error) {
	db := s.DB.WithContext(ctx)

	chat, err := s.findPair(db, userID, providerID)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	fresh := models.NewChat(userID, providerID, s.now())
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "provider_id"}},
		DoNothing: true,
	}).Create(fresh).Error
	if err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}

	return s.findPair(db, userID, providerID)
}

func (s *Service) findPair(db *gorm.DB, userID, providerID string) (*models.Chat, error) {
	var chat models.Chat
	err := db.Where("user_id = ? AND provider_id = ?", userID, providerID).First(&chat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup chat pair: %w", err)
	}
	return &chat, nil
}

func (s *Service) GetChatByID(ctx context.Context, chatID string) (*models.Chat, error) {
	var chat models.Chat
	err := s.DB.WithContext(ctx).Where("chat_id = ?", chatID).First(&chat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chat %s: %w", chatID, err)
	}
	return &chat, nil
}

func (s *Service) ListChatsForUser(ctx context.Context, userID string) ([]models.Chat, error) {
	return s.listChats(ctx, "user_id", userID)
}

func (s *Service) ListChatsForProvider(ctx context.Context, providerID string) ([]models.Chat, error) {
	return s.listChats(ctx, "provider_id", providerID)
}

func (s *Service) listChats(ctx context.Context, column, identity string) ([]models.Chat, error) {
	var chats []models.Chat
	err := s.DB.WithContext(ctx).
		Where(column+" = ?", identity).
		Order("COALESCE(last_message_at, created_at) DESC, chat_id").
		Find(&chats).Error
	if err != nil {
		return nil, fmt.Errorf("list chats by %s: %w", column, err)
	}
	return chats, nil
}

// AppendMessage runs in one transaction with the chat row locked, so the
// timestamp, message row, summary and counter move together.
func (s *Service) AppendMessage(ctx context.Context, chatID, senderID string, isProviderSender bool, content string) (*models.Message, error) {
	var msg *models.Message

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var chat models.Chat
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("chat_id = ?", chatID).
			First(&chat).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ErrNotFound
		}
		if err != nil {
			return err
		}

		msg = models.NewMessage(chatID, senderID, isProviderSender, content, nextTimestamp(s.now(), chat.LastMessageAt))
		if err := tx.Create(msg).Error; err != nil {
			return err
		}

		counter := unreadColumn(!isProviderSender)
		return tx.Model(&models.Chat{}).
			Where("chat_id = ?", chatID).
			Updates(map[string]interface{}{
				"last_message":    content,
				"last_message_at": time.UnixMilli(msg.Timestamp),
				counter:           gorm.Expr(counter + " + 1"),
			}).Error
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("append message to %s: %w", chatID, err)
	}
	return msg, nil
}

func (s *Service) ListMessages(ctx context.Context, chatID string, limit int, before *int64) (*models.MessagePage, error) {
	if _, err := s.GetChatByID(ctx, chatID); err != nil {
		return nil, err
	}
	limit = NormalizeLimit(limit)

	q := s.DB.WithContext(ctx).Where("chat_id = ?", chatID)
	if before != nil {
		q = q.Where("timestamp < ?", *before)
	}

	var rows []models.Message
	if err := q.Order("timestamp DESC").Limit(limit + 1).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list messages for %s: %w", chatID, err)
	}
	return pageOf(rows, limit), nil
}

func (s *Service) MarkRead(ctx context.Context, chatID string, isProviderReader bool) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Chat{}).
			Where("chat_id = ?", chatID).
			Update(unreadColumn(isProviderReader), 0)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.ErrNotFound
		}

		flag := readFlagColumn(isProviderReader)
		return tx.Model(&models.Message{}).
			Where("chat_id = ? AND "+flag+" = ?", chatID, false).
			Update(flag, true).Error
	})
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("mark read %s: %w", chatID, err)
	}
	return err
}
