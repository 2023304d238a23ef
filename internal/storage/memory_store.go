package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"marketchat/backend/internal/models"
)

type pairKey struct {
	userID     string
	providerID string
}

// MemoryStore keeps chats and messages in process memory behind one lock.
// Used for STORE_DRIVER=memory and in tests.
type MemoryStore struct {
	mu       sync.RWMutex
	now      func() time.Time
	chats    map[string]*models.Chat
	pairs    map[pairKey]string
	messages map[string][]models.Message // chat id -> ascending by timestamp
}

// NewMemoryStore returns an empty store. A nil clock means time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:      now,
		chats:    make(map[string]*models.Chat),
		pairs:    make(map[pairKey]string),
		messages: make(map[string][]models.Message),
	}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) GetOrCreateChat(_ context.Context, userID, providerID string) (*models.Chat, error) {
	key := pairKey{userID: userID, providerID: providerID}

	s.mu.RLock()
	if id, ok := s.pairs[key]; ok {
		chat := *s.chats[id]
		s.mu.RUnlock()
		return &chat, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.pairs[key]; ok {
		chat := *s.chats[id]
		return &chat, nil
	}
	chat := models.NewChat(userID, providerID, s.now())
	s.chats[chat.ChatID] = chat
	s.pairs[key] = chat.ChatID
	out := *chat
	return &out, nil
}

func (s *MemoryStore) GetChatByID(_ context.Context, chatID string) (*models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chat, ok := s.chats[chatID]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := *chat
	return &out, nil
}

func (s *MemoryStore) ListChatsForUser(_ context.Context, userID string) ([]models.Chat, error) {
	return s.listChats(func(c *models.Chat) bool { return c.UserID == userID }), nil
}

func (s *MemoryStore) ListChatsForProvider(_ context.Context, providerID string) ([]models.Chat, error) {
	return s.listChats(func(c *models.Chat) bool { return c.ProviderID == providerID }), nil
}

func (s *MemoryStore) listChats(match func(*models.Chat) bool) []models.Chat {
	s.mu.RLock()
	out := make([]models.Chat, 0)
	for _, c := range s.chats {
		if match(c) {
			out = append(out, *c)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return models.ActivityBefore(&out[i], &out[j]) })
	return out
}

func (s *MemoryStore) AppendMessage(_ context.Context, chatID, senderID string, isProviderSender bool, content string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return nil, models.ErrNotFound
	}

	msg := models.NewMessage(chatID, senderID, isProviderSender, content, nextTimestamp(s.now(), chat.LastMessageAt))
	s.messages[chatID] = append(s.messages[chatID], *msg)

	last := content
	at := time.UnixMilli(msg.Timestamp)
	chat.LastMessage = &last
	chat.LastMessageAt = &at
	if isProviderSender {
		chat.UnreadCountUser++
	} else {
		chat.UnreadCountProvider++
	}
	return msg, nil
}

func (s *MemoryStore) ListMessages(_ context.Context, chatID string, limit int, before *int64) (*models.MessagePage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.chats[chatID]; !ok {
		return nil, models.ErrNotFound
	}
	limit = NormalizeLimit(limit)

	all := s.messages[chatID]
	rows := make([]models.Message, 0, limit+1)
	for i := len(all) - 1; i >= 0 && len(rows) <= limit; i-- {
		if before != nil && all[i].Timestamp >= *before {
			continue
		}
		rows = append(rows, all[i])
	}
	return pageOf(rows, limit), nil
}

func (s *MemoryStore) MarkRead(_ context.Context, chatID string, isProviderReader bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return models.ErrNotFound
	}
	if isProviderReader {
		chat.UnreadCountProvider = 0
	} else {
		chat.UnreadCountUser = 0
	}

	msgs := s.messages[chatID]
	for i := range msgs {
		if isProviderReader {
			msgs[i].ReadByProvider = true
		} else {
			msgs[i].ReadByUser = true
		}
	}
	return nil
}
