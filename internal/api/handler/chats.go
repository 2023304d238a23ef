package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"marketchat/backend/internal/models"

	"github.com/gin-gonic/gin"
)

type createChatRequest struct {
	UserID     string `json:"user_id"`
	ProviderID string `json:"provider_id"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

// CreateChat returns the pair's chat, creating it on first contact.
func (h *Handler) CreateChat(c *gin.Context) {
	var req createChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", models.ErrValidation, err))
		return
	}
	chat, err := h.Chats.GetOrCreateChat(c.Request.Context(), identityFrom(c), req.UserID, req.ProviderID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

func (h *Handler) ListChats(c *gin.Context) {
	chats, err := h.Chats.ListForIdentity(c.Request.Context(), identityFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

func (h *Handler) GetChat(c *gin.Context) {
	chat, err := h.Chats.OpenChat(c.Request.Context(), identityFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

// ListMessages serves ?limit=&before= history pages, newest first.
func (h *Handler) ListMessages(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.fail(c, fmt.Errorf("%w: limit must be a non-negative integer", models.ErrValidation))
			return
		}
		limit = n
	}

	var before *int64
	if raw := c.Query("before"); raw != "" {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.fail(c, fmt.Errorf("%w: before must be a millisecond timestamp", models.ErrValidation))
			return
		}
		before = &ts
	}

	page, err := h.Chats.ListMessages(c.Request.Context(), identityFrom(c), c.Param("id"), limit, before)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// SendMessage persists a message and fans it out to the live room.
func (h *Handler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", models.ErrValidation, err))
		return
	}

	sent, err := h.Chats.SendMessage(c.Request.Context(), identityFrom(c), c.Param("id"), req.Content)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.Hub.DeliverMessage(sent.Message, sent.RecipientID)
	c.JSON(http.StatusCreated, sent.Message)
}

// MarkRead clears the caller's unread counter and tells the room.
func (h *Handler) MarkRead(c *gin.Context) {
	identity := identityFrom(c)
	chatID := c.Param("id")

	isProvider, err := h.Chats.MarkRead(c.Request.Context(), identity, chatID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.Hub.DeliverRead(chatID, identity.ID, isProvider)
	c.JSON(http.StatusOK, gin.H{"chat_id": chatID, "reader_role": models.RoleName(isProvider)})
}
