package handler

import (
	"net/http"

	"marketchat/backend/internal/chathub"
	"marketchat/backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checks are left to the fronting proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket verifies the credential, then upgrades and hands the
// connection to the hub. A bad credential never reaches the upgrade.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	identity, err := h.Auth.Verify(bearerToken(c))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing credential", "reason": models.ReasonUnauthorized})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.log.Info("websocket upgrade failed", zap.String("user_id", identity.ID), zap.Error(err))
		return
	}

	client := chathub.NewWebSocketClient(conn, identity, h.Hub, h.Conn, h.log)
	h.Hub.Connect(c.Request.Context(), client)
	client.Run()
}
