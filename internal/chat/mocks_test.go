package chat_test

import (
	"context"

	"marketchat/backend/internal/models"

	"github.com/stretchr/testify/mock"
)

// MockStore is a testify double for storage.Store.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetOrCreateChat(ctx context.Context, userID, providerID string) (*models.Chat, error) {
	args := m.Called(ctx, userID, providerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Chat), args.Error(1)
}

func (m *MockStore) GetChatByID(ctx context.Context, chatID string) (*models.Chat, error) {
	args := m.Called(ctx, chatID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Chat), args.Error(1)
}

func (m *MockStore) ListChatsForUser(ctx context.Context, userID string) ([]models.Chat, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Chat), args.Error(1)
}

func (m *MockStore) ListChatsForProvider(ctx context.Context, providerID string) ([]models.Chat, error) {
	args := m.Called(ctx, providerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Chat), args.Error(1)
}

func (m *MockStore) AppendMessage(ctx context.Context, chatID, senderID string, isProviderSender bool, content string) (*models.Message, error) {
	args := m.Called(ctx, chatID, senderID, isProviderSender, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockStore) ListMessages(ctx context.Context, chatID string, limit int, before *int64) (*models.MessagePage, error) {
	args := m.Called(ctx, chatID, limit, before)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MessagePage), args.Error(1)
}

func (m *MockStore) MarkRead(ctx context.Context, chatID string, isProviderReader bool) error {
	args := m.Called(ctx, chatID, isProviderReader)
	return args.Error(0)
}

func (m *MockStore) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockProfiles is a testify double for chat.ProfileResolver.
type MockProfiles struct {
	mock.Mock
}

func (m *MockProfiles) Profile(ctx context.Context, identity string, isProvider bool) (*models.Profile, error) {
	args := m.Called(ctx, identity, isProvider)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

// MockPublisher is a testify double for chat.EventPublisher.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishMessageSent(ctx context.Context, msg *models.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func strPtr(s string) *string { return &s }
