package chat_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"marketchat/backend/internal/chat"
	"marketchat/backend/internal/models"
	"marketchat/backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	u1 = models.Identity{ID: "U1"}
	p1 = models.Identity{ID: "P1", IsProvider: true}
	u2 = models.Identity{ID: "U2"}
)

func c1() *models.Chat {
	return &models.Chat{ChatID: "C1", UserID: "U1", ProviderID: "P1", CreatedAt: time.Now()}
}

func TestValidateContent(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain", "Hello", "Hello", false},
		{"trimmed", "  Hello \n", "Hello", false},
		{"empty", "", "", true},
		{"whitespace only", " \t\n ", "", true},
		{"exactly max", strings.Repeat("a", 5000), strings.Repeat("a", 5000), false},
		{"over max", strings.Repeat("a", 5001), "", true},
		{"multibyte counted as characters", strings.Repeat("ж", 5000), strings.Repeat("ж", 5000), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := chat.ValidateContent(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrValidation)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpenChat_AccessControl(t *testing.T) {
	store := new(MockStore)
	store.On("GetChatByID", mock.Anything, "C1").Return(c1(), nil)
	store.On("GetChatByID", mock.Anything, "missing").Return(nil, models.ErrNotFound)
	svc := chat.NewService(store, nil, nil, zaptest.NewLogger(t))
	ctx := context.Background()

	got, err := svc.OpenChat(ctx, u1, "C1")
	require.NoError(t, err)
	assert.Equal(t, "C1", got.ChatID)

	_, err = svc.OpenChat(ctx, p1, "C1")
	assert.NoError(t, err)

	_, err = svc.OpenChat(ctx, u2, "C1")
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = svc.OpenChat(ctx, u1, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSendMessage_PersistsAndPublishes(t *testing.T) {
	store := new(MockStore)
	pub := new(MockPublisher)
	msg := models.NewMessage("C1", "U1", false, "Hello", 1)

	store.On("GetChatByID", mock.Anything, "C1").Return(c1(), nil)
	store.On("AppendMessage", mock.Anything, "C1", "U1", false, "Hello").Return(msg, nil)
	pub.On("PublishMessageSent", mock.Anything, msg).Return(nil)

	svc := chat.NewService(store, nil, pub, zaptest.NewLogger(t))
	sent, err := svc.SendMessage(context.Background(), u1, "C1", "  Hello  ")

	require.NoError(t, err)
	assert.Equal(t, msg, sent.Message)
	assert.Equal(t, "P1", sent.RecipientID)
	store.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestSendMessage_RoleComesFromChatRow(t *testing.T) {
	store := new(MockStore)
	msg := models.NewMessage("C1", "P1", true, "hi", 1)
	store.On("GetChatByID", mock.Anything, "C1").Return(c1(), nil)
	store.On("AppendMessage", mock.Anything, "C1", "P1", true, "hi").Return(msg, nil)

	svc := chat.NewService(store, nil, nil, zaptest.NewLogger(t))
	// credential says user, but P1 is the provider side of C1
	sent, err := svc.SendMessage(context.Background(), models.Identity{ID: "P1"}, "C1", "hi")

	require.NoError(t, err)
	assert.Equal(t, "U1", sent.RecipientID)
}

func TestSendMessage_ValidationNeverReachesStore(t *testing.T) {
	store := new(MockStore)
	svc := chat.NewService(store, nil, nil, zaptest.NewLogger(t))

	_, err := svc.SendMessage(context.Background(), u1, "C1", strings.Repeat("x", 5001))

	assert.ErrorIs(t, err, models.ErrValidation)
	store.AssertNotCalled(t, "GetChatByID", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "AppendMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessage_ForbiddenNeverAppends(t *testing.T) {
	store := new(MockStore)
	store.On("GetChatByID", mock.Anything, "C1").Return(c1(), nil)
	svc := chat.NewService(store, nil, nil, zaptest.NewLogger(t))

	_, err := svc.SendMessage(context.Background(), u2, "C1", "let me in")

	assert.ErrorIs(t, err, models.ErrForbidden)
	store.AssertNotCalled(t, "AppendMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessage_StorageErrorPropagates(t *testing.T) {
	store := new(MockStore)
	pub := new(MockPublisher)
	boom := errors.New("db down")
	store.On("GetChatByID", mock.Anything, "C1").Return(c1(), nil)
	store.On("AppendMessage", mock.Anything, "C1", "U1", false, "Hello").Return(nil, boom)

	svc := chat.NewService(store, nil, pub, zaptest.NewLogger(t))
	_, err := svc.SendMessage(context.Background(), u1, "C1", "Hello")

	assert.ErrorIs(t, err, boom)
	pub.AssertNotCalled(t, "PublishMessageSent", mock.Anything, mock.Anything)
}

func TestSendMessage_PublishFailureDoesNotFailSend(t *testing.T) {
	store := new(MockStore)
	pub := new(MockPublisher)
	msg := models.NewMessage("C1", "U1", false, "Hello", 1)
	store.On("GetChatByID", mock.Anything, "C1").Return(c1(), nil)
	store.On("AppendMessage", mock.Anything, "C1", "U1", false, "Hello").Return(msg, nil)
	pub.On("PublishMessageSent", mock.Anything, msg).Return(errors.New("broker unavailable"))

	svc := chat.NewService(store, nil, pub, zaptest.NewLogger(t))
	sent, err := svc.SendMessage(context.Background(), u1, "C1", "Hello")

	require.NoError(t, err)
	assert.Equal(t, msg, sent.Message)
}

func TestMarkRead_UsesCallerSide(t *testing.T) {
	store := new(MockStore)
	store.On("GetChatByID", mock.Anything, "C1").Return(c1(), nil)
	store.On("MarkRead", mock.Anything, "C1", true).Return(nil)

	svc := chat.NewService(store, nil, nil, zaptest.NewLogger(t))
	isProvider, err := svc.MarkRead(context.Background(), p1, "C1")

	require.NoError(t, err)
	assert.True(t, isProvider)
	store.AssertCalled(t, "MarkRead", mock.Anything, "C1", true)
}

func TestListMessages_ClampsLimit(t *testing.T) {
	store := new(MockStore)
	page := &models.MessagePage{Messages: []models.Message{}}
	store.On("GetChatByID", mock.Anything, "C1").Return(c1(), nil)
	store.On("ListMessages", mock.Anything, "C1", 100, (*int64)(nil)).Return(page, nil)

	svc := chat.NewService(store, nil, nil, zaptest.NewLogger(t))
	got, err := svc.ListMessages(context.Background(), u1, "C1", 5000, nil)

	require.NoError(t, err)
	assert.Equal(t, page, got)
}

func TestGetOrCreateChat_FillsCallerSide(t *testing.T) {
	store := new(MockStore)
	store.On("GetOrCreateChat", mock.Anything, "U1", "P1").Return(c1(), nil)
	svc := chat.NewService(store, nil, nil, zaptest.NewLogger(t))
	ctx := context.Background()

	got, err := svc.GetOrCreateChat(ctx, u1, "", "P1")
	require.NoError(t, err)
	assert.Equal(t, "C1", got.ChatID)

	_, err = svc.GetOrCreateChat(ctx, p1, "U1", "")
	require.NoError(t, err)

	_, err = svc.GetOrCreateChat(ctx, u2, "U1", "P1")
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = svc.GetOrCreateChat(ctx, u1, "", "")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestListForIdentity_ProviderUnionDedupesAndNames(t *testing.T) {
	store := new(MockStore)
	profiles := new(MockProfiles)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	later := base.Add(time.Hour)

	self := models.Chat{ChatID: "S", UserID: "X", ProviderID: "X", CreatedAt: base}
	asProvider := models.Chat{ChatID: "A", UserID: "U1", ProviderID: "X", CreatedAt: base, LastMessageAt: &later, UnreadCountProvider: 3}
	asUser := models.Chat{ChatID: "B", UserID: "X", ProviderID: "P9", CreatedAt: base.Add(time.Minute), UnreadCountUser: 1}

	store.On("ListChatsForUser", mock.Anything, "X").Return([]models.Chat{self, asUser}, nil)
	store.On("ListChatsForProvider", mock.Anything, "X").Return([]models.Chat{asProvider, self}, nil)
	profiles.On("Profile", mock.Anything, "U1", false).Return(&models.Profile{Name: strPtr("Ada Lovelace")}, nil)
	profiles.On("Profile", mock.Anything, "P9", true).Return(nil, errors.New("catalog timeout"))
	profiles.On("Profile", mock.Anything, "X", false).Return(&models.Profile{Name: strPtr("Self")}, nil)

	svc := chat.NewService(store, profiles, nil, zaptest.NewLogger(t))
	got, err := svc.ListForIdentity(context.Background(), models.Identity{ID: "X", IsProvider: true})
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, "A", got[0].ChatID)
	assert.Equal(t, models.RoleProvider, got[0].Role)
	assert.Equal(t, 3, got[0].UnreadCount)
	if assert.NotNil(t, got[0].CounterpartName) {
		assert.Equal(t, "Ada Lovelace", *got[0].CounterpartName)
	}

	assert.Equal(t, "B", got[1].ChatID)
	assert.Equal(t, models.RoleUser, got[1].Role)
	assert.Equal(t, "P9", got[1].CounterpartID)
	assert.Nil(t, got[1].CounterpartName)

	assert.Equal(t, "S", got[2].ChatID)
	assert.Equal(t, models.RoleProvider, got[2].Role)
}

func TestListForIdentity_ProviderCounterpartCarriesCategories(t *testing.T) {
	store := new(MockStore)
	profiles := new(MockProfiles)
	store.On("ListChatsForUser", mock.Anything, "U1").Return([]models.Chat{*c1()}, nil)
	profiles.On("Profile", mock.Anything, "P1", true).
		Return(&models.Profile{Name: strPtr("Fix-It Co"), Categories: []string{"plumbing", "heating"}}, nil).Once()

	svc := chat.NewService(store, profiles, nil, zaptest.NewLogger(t))
	got, err := svc.ListForIdentity(context.Background(), u1)

	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].CounterpartName)
	assert.Equal(t, "Fix-It Co", *got[0].CounterpartName)
	assert.Equal(t, []string{"plumbing", "heating"}, got[0].CounterpartCategories)
	profiles.AssertExpectations(t)
}

func TestListForIdentity_PlainUserSkipsProviderSide(t *testing.T) {
	store := new(MockStore)
	store.On("ListChatsForUser", mock.Anything, "U1").Return([]models.Chat{*c1()}, nil)

	svc := chat.NewService(store, nil, nil, zaptest.NewLogger(t))
	got, err := svc.ListForIdentity(context.Background(), u1)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "P1", got[0].CounterpartID)
	store.AssertNotCalled(t, "ListChatsForProvider", mock.Anything, mock.Anything)
}

// TestService_WithMemoryStore runs the first-contact scenario end to end.
func TestService_WithMemoryStore(t *testing.T) {
	store := storage.NewMemoryStore(nil)
	svc := chat.NewService(store, nil, nil, zaptest.NewLogger(t))
	ctx := context.Background()

	c, err := svc.GetOrCreateChat(ctx, u1, "", "P1")
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, u1, c.ChatID, strings.Repeat("z", 5001))
	require.ErrorIs(t, err, models.ErrValidation)

	sent, err := svc.SendMessage(ctx, u1, c.ChatID, "Hello")
	require.NoError(t, err)

	opened, err := svc.OpenChat(ctx, p1, c.ChatID)
	require.NoError(t, err)
	assert.Equal(t, 1, opened.UnreadCountProvider)

	_, err = svc.MarkRead(ctx, p1, c.ChatID)
	require.NoError(t, err)

	page, err := svc.ListMessages(ctx, u1, c.ChatID, 10, nil)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, sent.Message.MessageID, page.Messages[0].MessageID)

	opened, _ = svc.OpenChat(ctx, p1, c.ChatID)
	assert.Zero(t, opened.UnreadCountProvider)
}
