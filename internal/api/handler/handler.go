package handler

import (
	"context"
	"net/http"

	"marketchat/backend/internal/chat"
	"marketchat/backend/internal/chathub"
	"marketchat/backend/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Chats is the coordinator surface the HTTP handlers use.
type Chats interface {
	GetOrCreateChat(ctx context.Context, requester models.Identity, userID, providerID string) (*models.Chat, error)
	ListForIdentity(ctx context.Context, identity models.Identity) ([]models.ChatSummary, error)
	OpenChat(ctx context.Context, requester models.Identity, chatID string) (*models.Chat, error)
	ListMessages(ctx context.Context, requester models.Identity, chatID string, limit int, before *int64) (*models.MessagePage, error)
	SendMessage(ctx context.Context, sender models.Identity, chatID, content string) (*chat.Sent, error)
	MarkRead(ctx context.Context, reader models.Identity, chatID string) (bool, error)
}

// Verifier turns a bearer credential into an identity.
type Verifier interface {
	Verify(token string) (models.Identity, error)
}

// BreakerState reports the offline hook's circuit breaker, if there is one.
type BreakerState interface {
	State() string
}

// Handler holds the ChatHub and everything the routes need.
type Handler struct {
	Hub      *chathub.ManagerService
	Chats    Chats
	Auth     Verifier
	Conn     chathub.ConnSettings
	Notifier BreakerState
	log      *zap.Logger
}

func NewHandler(hub *chathub.ManagerService, chats Chats, auth Verifier, conn chathub.ConnSettings, log *zap.Logger) *Handler {
	return &Handler{Hub: hub, Chats: chats, Auth: auth, Conn: conn, log: log.Named("http")}
}

// Register mounts every route on r.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/ws", h.ServeWebSocket)

	api := r.Group("/api", h.RequireIdentity())
	api.POST("/chats", h.CreateChat)
	api.GET("/chats", h.ListChats)
	api.GET("/chats/:id", h.GetChat)
	api.GET("/chats/:id/messages", h.ListMessages)
	api.POST("/chats/:id/messages", h.SendMessage)
	api.POST("/chats/:id/read", h.MarkRead)
}

func (h *Handler) Health(c *gin.Context) {
	body := gin.H{"status": "ok", "online": h.Hub.Presence.Count()}
	if h.Notifier != nil {
		body["offline_notifier"] = h.Notifier.State()
	}
	c.JSON(http.StatusOK, body)
}
