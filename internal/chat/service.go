// Package chat binds client/provider pairs to conversations and enforces who may read or write them.
package chat

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"marketchat/backend/internal/config"
	"marketchat/backend/internal/models"
	"marketchat/backend/internal/storage"

	"go.uber.org/zap"
)

const publishTimeout = 3 * time.Second

// EventPublisher receives every persisted message for downstream consumers.
type EventPublisher interface {
	PublishMessageSent(ctx context.Context, msg *models.Message) error
}

// ProfileResolver looks up the catalog profile of an identity; nil when unknown.
type ProfileResolver interface {
	Profile(ctx context.Context, identity string, isProvider bool) (*models.Profile, error)
}

// Sent is a persisted message plus the party it was addressed to.
type Sent struct {
	Message     *models.Message
	RecipientID string
}

type Service struct {
	store    storage.Store
	profiles ProfileResolver
	events   EventPublisher
	log      *zap.Logger
}

// NewService wires the coordinator. profiles and events may be nil.
func NewService(store storage.Store, profiles ProfileResolver, events EventPublisher, log *zap.Logger) *Service {
	return &Service{
		store:    store,
		profiles: profiles,
		events:   events,
		log:      log.Named("chat"),
	}
}

// ValidateContent trims content and checks it is 1..MaxContentLength characters.
func ValidateContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	n := utf8.RuneCountInString(trimmed)
	if n == 0 {
		return "", fmt.Errorf("%w: content is empty", models.ErrValidation)
	}
	if n > config.MaxContentLength {
		return "", fmt.Errorf("%w: content exceeds %d characters", models.ErrValidation, config.MaxContentLength)
	}
	return trimmed, nil
}

// OpenChat fetches the chat and checks the requester is one of its parties.
func (s *Service) OpenChat(ctx context.Context, requester models.Identity, chatID string) (*models.Chat, error) {
	chat, _, err := s.authorize(ctx, requester, chatID)
	return chat, err
}

// authorize returns the chat and the side the requester speaks for in it.
func (s *Service) authorize(ctx context.Context, requester models.Identity, chatID string) (*models.Chat, bool, error) {
	if chatID == "" {
		return nil, false, fmt.Errorf("%w: chat_id is required", models.ErrValidation)
	}
	chat, err := s.store.GetChatByID(ctx, chatID)
	if err != nil {
		return nil, false, err
	}
	isProvider, ok := chat.RoleOf(requester.ID, requester.IsProvider)
	if !ok {
		return nil, false, models.ErrForbidden
	}
	return chat, isProvider, nil
}

// SendMessage validates content, re-checks access and appends the message.
// Validation failures never reach the store.
func (s *Service) SendMessage(ctx context.Context, sender models.Identity, chatID, content string) (*Sent, error) {
	text, err := ValidateContent(content)
	if err != nil {
		return nil, err
	}
	chat, isProvider, err := s.authorize(ctx, sender, chatID)
	if err != nil {
		return nil, err
	}

	msg, err := s.store.AppendMessage(ctx, chat.ChatID, sender.ID, isProvider, text)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, msg)

	return &Sent{Message: msg, RecipientID: chat.Counterpart(isProvider)}, nil
}

func (s *Service) publish(ctx context.Context, msg *models.Message) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.events.PublishMessageSent(ctx, msg); err != nil {
		s.log.Warn("publish message.sent failed", zap.String("chat_id", msg.ChatID), zap.String("message_id", msg.MessageID), zap.Error(err))
	}
}

// MarkRead clears the requester's unread counter and reports which side read.
func (s *Service) MarkRead(ctx context.Context, reader models.Identity, chatID string) (bool, error) {
	chat, isProvider, err := s.authorize(ctx, reader, chatID)
	if err != nil {
		return false, err
	}
	if err := s.store.MarkRead(ctx, chat.ChatID, isProvider); err != nil {
		return false, err
	}
	return isProvider, nil
}

// ListMessages returns one history page for a party of the chat.
func (s *Service) ListMessages(ctx context.Context, requester models.Identity, chatID string, limit int, before *int64) (*models.MessagePage, error) {
	if _, _, err := s.authorize(ctx, requester, chatID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, chatID, storage.NormalizeLimit(limit), before)
}

// GetOrCreateChat fills the requester's own side when left blank and
// refuses pairs the requester is not part of.
func (s *Service) GetOrCreateChat(ctx context.Context, requester models.Identity, userID, providerID string) (*models.Chat, error) {
	userID, providerID = strings.TrimSpace(userID), strings.TrimSpace(providerID)
	if requester.IsProvider && providerID == "" {
		providerID = requester.ID
	}
	if !requester.IsProvider && userID == "" {
		userID = requester.ID
	}
	if userID == "" || providerID == "" {
		return nil, fmt.Errorf("%w: user_id and provider_id are required", models.ErrValidation)
	}
	if requester.ID != userID && requester.ID != providerID {
		return nil, models.ErrForbidden
	}
	return s.store.GetOrCreateChat(ctx, userID, providerID)
}

// ListForIdentity lists the caller's chats, most recent activity first.
// Providers also get the chats where they are the provider side; a chat
// where the caller is both parties is listed once.
func (s *Service) ListForIdentity(ctx context.Context, identity models.Identity) ([]models.ChatSummary, error) {
	chats, err := s.store.ListChatsForUser(ctx, identity.ID)
	if err != nil {
		return nil, err
	}
	if identity.IsProvider {
		provChats, err := s.store.ListChatsForProvider(ctx, identity.ID)
		if err != nil {
			return nil, err
		}
		chats = append(chats, provChats...)
	}

	seen := make(map[string]struct{}, len(chats))
	profiles := make(map[string]*models.Profile)
	out := make([]models.ChatSummary, 0, len(chats))
	for _, c := range chats {
		if _, dup := seen[c.ChatID]; dup {
			continue
		}
		seen[c.ChatID] = struct{}{}

		isProvider, _ := c.RoleOf(identity.ID, identity.IsProvider)
		counterpart := c.Counterpart(isProvider)
		key := models.RoleName(!isProvider) + ":" + counterpart
		profile, cached := profiles[key]
		if !cached {
			profile = s.resolveProfile(ctx, counterpart, !isProvider)
			profiles[key] = profile
		}

		summary := models.ChatSummary{
			Chat:          c,
			Role:          models.RoleName(isProvider),
			CounterpartID: counterpart,
			UnreadCount:   c.UnreadFor(isProvider),
		}
		if profile != nil {
			summary.CounterpartName = profile.Name
			summary.CounterpartCategories = profile.Categories
		}
		out = append(out, summary)
	}

	sort.Slice(out, func(i, j int) bool { return models.ActivityBefore(&out[i].Chat, &out[j].Chat) })
	return out, nil
}

func (s *Service) resolveProfile(ctx context.Context, identity string, isProvider bool) *models.Profile {
	if s.profiles == nil {
		return nil
	}
	profile, err := s.profiles.Profile(ctx, identity, isProvider)
	if err != nil {
		s.log.Warn("profile lookup failed", zap.String("identity", identity), zap.Error(err))
		return nil
	}
	return profile
}
