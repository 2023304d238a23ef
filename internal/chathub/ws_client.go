package chathub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"marketchat/backend/internal/config"
	"marketchat/backend/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ConnSettings bounds one WebSocket connection.
type ConnSettings struct {
	WriteWait       time.Duration
	PongWait        time.Duration
	MaxMessageSize  int64
	EventsPerSecond float64
	EventBurst      int
}

func DefaultConnSettings() ConnSettings {
	return ConnSettings{
		WriteWait:       config.DefaultWriteWait,
		PongWait:        config.DefaultPongWait,
		MaxMessageSize:  config.DefaultMaxMessageSize,
		EventsPerSecond: config.DefaultEventsPerSec,
		EventBurst:      config.DefaultEventBurst,
	}
}

func (s ConnSettings) pingPeriod() time.Duration { return (s.PongWait * 9) / 10 }

// WebSocketClient implements Client over gorilla/websocket.
type WebSocketClient struct {
	ConnID   string
	Identity models.Identity
	Conn     *websocket.Conn
	Hub      *ManagerService
	Send     chan models.Event

	settings  ConnSettings
	limiter   *rate.Limiter
	throttled bool // touched by readPump only
	log       *zap.Logger
	closeOnce sync.Once
}

func NewWebSocketClient(conn *websocket.Conn, identity models.Identity, hub *ManagerService, settings ConnSettings, log *zap.Logger) *WebSocketClient {
	connID := uuid.New().String()
	return &WebSocketClient{
		ConnID:   connID,
		Identity: identity,
		Conn:     conn,
		Hub:      hub,
		Send:     make(chan models.Event, config.SendBufferSize),
		settings: settings,
		limiter:  rate.NewLimiter(rate.Limit(settings.EventsPerSecond), settings.EventBurst),
		log:      log.With(zap.String("conn_id", connID), zap.String("user_id", identity.ID)),
	}
}

func (c *WebSocketClient) GetConnID() string                   { return c.ConnID }
func (c *WebSocketClient) GetIdentity() models.Identity        { return c.Identity }
func (c *WebSocketClient) GetSendChannel() chan<- models.Event { return c.Send }

// Run starts the pumps.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close closes Send, which stops writePump and closes the socket.
func (c *WebSocketClient) Close() {
	c.closeOnce.Do(func() { close(c.Send) })
}

// readPump decodes client events and hands them to the hub. A missed pong
// or any read error ends the connection.
func (c *WebSocketClient) readPump() {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.Hub.Disconnect(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.settings.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.settings.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.settings.PongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Info("websocket read failed", zap.Error(err))
			}
			return
		}

		if in, ok := c.classify(raw); ok {
			c.Hub.Handle(ctx, c, in)
		}
	}
}

// classify turns one frame into a state machine input. The limiter is
// consulted before decoding so undecodable frames spend the budget too.
// Only the first frame of an over-limit streak is answered; the rest are
// dropped silently.
func (c *WebSocketClient) classify(raw []byte) (Input, bool) {
	if !c.limiter.Allow() {
		if c.throttled {
			return Input{}, false
		}
		c.throttled = true
		var ev models.InboundEvent
		_ = json.Unmarshal(raw, &ev)
		return Input{Kind: InputRateLimited, Event: ev}, true
	}
	c.throttled = false

	var ev models.InboundEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Input{Kind: InputMalformed}, true
	}
	return Input{Kind: InputEvent, Event: ev}, true
}

// writePump writes events from Send to the socket and keeps it alive with pings.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(c.settings.pingPeriod())
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.settings.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(ev); err != nil {
				c.log.Debug("websocket write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.settings.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
