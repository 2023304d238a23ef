package chathub

import (
	"context"
	"sync"
	"time"

	"marketchat/backend/internal/chat"
	"marketchat/backend/internal/config"
	"marketchat/backend/internal/models"
	"marketchat/backend/internal/presence"

	"go.uber.org/zap"
)

const (
	hookTimeout = 5 * time.Second
	// factQueueSize bounds presence facts waiting for the exporter.
	factQueueSize = 1024
)

// Coordinator is the slice of the chat service the gateway needs.
type Coordinator interface {
	OpenChat(ctx context.Context, requester models.Identity, chatID string) (*models.Chat, error)
	SendMessage(ctx context.Context, sender models.Identity, chatID, content string) (*chat.Sent, error)
	MarkRead(ctx context.Context, reader models.Identity, chatID string) (bool, error)
}

// OfflineNotifier is told about messages whose recipient has no live connection.
type OfflineNotifier interface {
	NotifyOffline(ctx context.Context, recipientID string, msg *models.Message) error
}

// connection pairs a client with its session. mu serialises all
// transitions of one connection; different connections never wait on each other.
type connection struct {
	mu      sync.Mutex
	client  Client
	session Session
}

// ManagerService is the realtime gateway hub: rooms, fan-out and presence.
type ManagerService struct {
	mu      sync.RWMutex
	Clients map[string]Client            // conn id -> client
	rooms   map[string]map[string]Client // chat id -> conn id -> client
	conns   map[string]*connection

	Chats     Coordinator
	Presence  *presence.Directory
	Publisher presence.Publisher
	Notifier  OfflineNotifier

	log *zap.Logger
	wg  sync.WaitGroup

	// facts carries presence facts to a single exporter goroutine so
	// Redis sees them in the order the directory applied them.
	facts     chan presence.Fact
	factsMu   sync.Mutex
	stopped   bool
	factsDone chan struct{}
	stopOnce  sync.Once
}

func NewManagerService(chats Coordinator, dir *presence.Directory, pub presence.Publisher, notifier OfflineNotifier, log *zap.Logger) *ManagerService {
	if pub == nil {
		pub = presence.Nop{}
	}
	m := &ManagerService{
		Clients:   make(map[string]Client),
		rooms:     make(map[string]map[string]Client),
		conns:     make(map[string]*connection),
		Chats:     chats,
		Presence:  dir,
		Publisher: pub,
		Notifier:  notifier,
		log:       log.Named("chathub"),
		facts:     make(chan presence.Fact, factQueueSize),
		factsDone: make(chan struct{}),
	}
	go m.exportPresence()
	return m
}

// Run refreshes exported presence until ctx ends. The caller owns Shutdown.
func (m *ManagerService) Run(ctx context.Context) {
	ticker := time.NewTicker(config.PresenceTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.Publisher.Refresh(ctx, m.Presence.Identities()); err != nil {
				m.log.Warn("presence refresh failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// Shutdown disconnects every live connection, drains the presence exporter
// and waits for background hooks. Only the first call does any work.
func (m *ManagerService) Shutdown() {
	m.stopOnce.Do(m.shutdown)
}

func (m *ManagerService) shutdown() {
	m.mu.RLock()
	conns := make([]*connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	for _, c := range conns {
		m.dispatch(context.Background(), c, Input{Kind: InputClosed})
	}

	m.factsMu.Lock()
	m.stopped = true
	close(m.facts)
	m.factsMu.Unlock()
	<-m.factsDone

	m.wg.Wait()
}

// Connect attaches an authenticated client and runs the connect transition.
func (m *ManagerService) Connect(ctx context.Context, client Client) {
	c := &connection{client: client, session: NewSession(client.GetConnID(), client.GetIdentity())}
	m.mu.Lock()
	m.conns[client.GetConnID()] = c
	m.mu.Unlock()

	m.dispatch(ctx, c, Input{Kind: InputAuthenticated})
}

// Handle feeds one input from a client into its state machine.
func (m *ManagerService) Handle(ctx context.Context, client Client, in Input) {
	m.mu.RLock()
	c, ok := m.conns[client.GetConnID()]
	m.mu.RUnlock()
	if !ok {
		return
	}
	m.dispatch(ctx, c, in)
}

// Disconnect runs the close transition. Redundant calls are no-ops.
func (m *ManagerService) Disconnect(client Client) {
	m.Handle(context.Background(), client, Input{Kind: InputClosed})
}

// SessionOf returns a copy of a connection's session.
func (m *ManagerService) SessionOf(connID string) (Session, bool) {
	m.mu.RLock()
	c, ok := m.conns[connID]
	m.mu.RUnlock()
	if !ok {
		return Session{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.clone(), true
}

// RoomSize counts connections subscribed to chatID.
func (m *ManagerService) RoomSize(chatID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms[chatID])
}

// dispatch drains a queue of inputs: each transition's effects may feed
// follow-up inputs (an access check result) back into the same connection.
func (m *ManagerService) dispatch(ctx context.Context, c *connection, first Input) {
	c.mu.Lock()
	defer c.mu.Unlock()

	queue := []Input{first}
	for len(queue) > 0 {
		in := queue[0]
		queue = queue[1:]

		var effects []Effect
		c.session, effects = Transition(c.session, in)
		for _, eff := range effects {
			if follow, ok := m.execute(ctx, c, eff); ok {
				queue = append(queue, follow)
			}
		}
	}
}

func (m *ManagerService) execute(ctx context.Context, c *connection, eff Effect) (Input, bool) {
	s := c.session
	switch eff.Kind {
	case EffectAttach:
		m.mu.Lock()
		m.Clients[s.ConnID] = c.client
		m.mu.Unlock()

	case EffectDetach:
		m.detach(c)

	case EffectRegisterPresence:
		m.registerPresence(ctx, s)

	case EffectUnregisterPresence:
		if m.Presence.Unregister(s.Identity.ID, s.ConnID) {
			m.broadcastAll(s.Identity.ID, models.Event{Type: models.EventUserOffline, UserID: s.Identity.ID, IsProvider: s.Identity.IsProvider})
			m.publishPresence(presence.NewFact(s.Identity.ID, s.Identity.IsProvider, false))
		}

	case EffectEmit:
		m.deliver(c.client, eff.Event)

	case EffectOpenChat:
		if _, err := m.Chats.OpenChat(ctx, s.Identity, eff.ChatID); err != nil {
			return Input{Kind: InputJoinDenied, ChatID: eff.ChatID, Err: err}, true
		}
		return Input{Kind: InputJoinGranted, ChatID: eff.ChatID}, true

	case EffectSubscribe:
		m.mu.Lock()
		room, ok := m.rooms[eff.ChatID]
		if !ok {
			room = make(map[string]Client)
			m.rooms[eff.ChatID] = room
		}
		room[s.ConnID] = c.client
		m.mu.Unlock()

	case EffectUnsubscribe:
		m.mu.Lock()
		m.leaveRoom(eff.ChatID, s.ConnID)
		m.mu.Unlock()

	case EffectMarkRead:
		isProvider, err := m.Chats.MarkRead(ctx, s.Identity, eff.ChatID)
		if err != nil {
			m.deliver(c.client, models.ErrorEvent(eff.ChatID, "", err))
			break
		}
		m.broadcast(eff.ChatID, s.ConnID, models.Event{Type: models.EventMessagesRead, ChatID: eff.ChatID, UserID: s.Identity.ID, IsProvider: isProvider})

	case EffectSend:
		m.send(ctx, c, eff)

	case EffectTyping:
		if _, err := m.Chats.OpenChat(ctx, s.Identity, eff.ChatID); err != nil {
			m.deliver(c.client, models.ErrorEvent(eff.ChatID, "", err))
			break
		}
		t := models.EventTypingStopped
		if eff.Typing {
			t = models.EventTypingStarted
		}
		m.broadcast(eff.ChatID, s.ConnID, models.Event{Type: t, ChatID: eff.ChatID, UserID: s.Identity.ID})
	}
	return Input{}, false
}

func (m *ManagerService) send(ctx context.Context, c *connection, eff Effect) {
	s := c.session
	sent, err := m.Chats.SendMessage(ctx, s.Identity, eff.ChatID, eff.Content)
	if err != nil {
		m.log.Info("send failed", zap.String("chat_id", eff.ChatID), zap.String("user_id", s.Identity.ID), zap.Error(err))
		m.deliver(c.client, models.ErrorEvent(eff.ChatID, eff.CorrelationID, err))
		return
	}

	m.deliver(c.client, models.Event{
		Type:          models.EventMessageSent,
		ChatID:        eff.ChatID,
		Message:       sent.Message,
		CorrelationID: eff.CorrelationID,
	})
	m.broadcast(eff.ChatID, s.ConnID, models.Event{Type: models.EventMessageReceived, ChatID: eff.ChatID, Message: sent.Message})
	m.notifyIfOffline(sent.RecipientID, sent.Message)
}

// DeliverMessage fans a message persisted outside a live connection out to its room.
func (m *ManagerService) DeliverMessage(msg *models.Message, recipientID string) {
	m.broadcast(msg.ChatID, "", models.Event{Type: models.EventMessageReceived, ChatID: msg.ChatID, Message: msg})
	m.notifyIfOffline(recipientID, msg)
}

// DeliverRead tells a room that one side has read the chat.
func (m *ManagerService) DeliverRead(chatID, readerID string, isProvider bool) {
	m.broadcast(chatID, "", models.Event{Type: models.EventMessagesRead, ChatID: chatID, UserID: readerID, IsProvider: isProvider})
}

func (m *ManagerService) notifyIfOffline(recipientID string, msg *models.Message) {
	if m.Notifier == nil || recipientID == "" || m.Presence.IsOnline(recipientID) {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
		defer cancel()
		if err := m.Notifier.NotifyOffline(ctx, recipientID, msg); err != nil {
			m.log.Warn("offline notification failed", zap.String("recipient", recipientID), zap.String("message_id", msg.MessageID), zap.Error(err))
		}
	}()
}

func (m *ManagerService) registerPresence(ctx context.Context, s Session) {
	replaced := m.Presence.Register(s.Identity.ID, s.ConnID, s.Identity.IsProvider)
	if replaced == "" {
		m.broadcastAll(s.Identity.ID, models.Event{Type: models.EventUserOnline, UserID: s.Identity.ID, IsProvider: s.Identity.IsProvider})
	} else {
		m.log.Debug("presence slot replaced", zap.String("user_id", s.Identity.ID), zap.String("old_conn", replaced), zap.String("new_conn", s.ConnID))
	}
	m.publishPresence(presence.NewFact(s.Identity.ID, s.Identity.IsProvider, true))
}

// publishPresence queues a fact for export. Facts after Shutdown are dropped.
func (m *ManagerService) publishPresence(fact presence.Fact) {
	m.factsMu.Lock()
	defer m.factsMu.Unlock()
	if m.stopped {
		return
	}
	m.facts <- fact
}

// exportPresence publishes queued facts one at a time, in queue order.
func (m *ManagerService) exportPresence() {
	defer close(m.factsDone)
	for fact := range m.facts {
		ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
		if err := m.Publisher.Publish(ctx, fact); err != nil {
			m.log.Warn("presence publish failed", zap.String("identity", fact.Identity), zap.String("status", fact.Status), zap.Error(err))
		}
		cancel()
	}
}

// detach removes the connection from every map and closes its outbound side.
func (m *ManagerService) detach(c *connection) {
	connID := c.client.GetConnID()

	m.mu.Lock()
	for chatID := range m.rooms {
		m.leaveRoom(chatID, connID)
	}
	delete(m.Clients, connID)
	delete(m.conns, connID)
	m.mu.Unlock()

	c.client.Close()
}

// leaveRoom must be called with m.mu held for writing.
func (m *ManagerService) leaveRoom(chatID, connID string) {
	room, ok := m.rooms[chatID]
	if !ok {
		return
	}
	delete(room, connID)
	if len(room) == 0 {
		delete(m.rooms, chatID)
	}
}

// deliver sends to one client if it is still attached.
func (m *ManagerService) deliver(client Client, ev models.Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Clients[client.GetConnID()] != client {
		return
	}
	m.trySend(client, ev)
}

// broadcast sends to every connection in the room except skipConnID.
func (m *ManagerService) broadcast(chatID, skipConnID string, ev models.Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for connID, client := range m.rooms[chatID] {
		if connID == skipConnID {
			continue
		}
		m.trySend(client, ev)
	}
}

// broadcastAll sends to every connection not owned by identity.
func (m *ManagerService) broadcastAll(identity string, ev models.Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, client := range m.Clients {
		if client.GetIdentity().ID == identity {
			continue
		}
		m.trySend(client, ev)
	}
}

// trySend never blocks; a slow consumer loses the event. Caller holds m.mu.
func (m *ManagerService) trySend(client Client, ev models.Event) {
	select {
	case client.GetSendChannel() <- ev:
	default:
		m.log.Warn("client buffer full, dropping event",
			zap.String("conn_id", client.GetConnID()),
			zap.String("user_id", client.GetIdentity().ID),
			zap.String("type", string(ev.Type)))
	}
}
