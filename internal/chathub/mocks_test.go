package chathub_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"marketchat/backend/internal/chat"
	"marketchat/backend/internal/models"
	"marketchat/backend/internal/presence"

	"github.com/stretchr/testify/mock"
)

// MockClient is a test double for the chathub.Client interface.
type MockClient struct {
	connID   string
	identity models.Identity
	send     chan models.Event
	once     sync.Once
}

func newMockClient(connID, userID string, isProvider bool) *MockClient {
	return &MockClient{
		connID:   connID,
		identity: models.Identity{ID: userID, IsProvider: isProvider},
		send:     make(chan models.Event, 64), // Buffered to prevent blocking in tests
	}
}

func (m *MockClient) GetConnID() string                   { return m.connID }
func (m *MockClient) GetIdentity() models.Identity        { return m.identity }
func (m *MockClient) GetSendChannel() chan<- models.Event { return m.send }
func (m *MockClient) Run()                                {}
func (m *MockClient) Close()                              { m.once.Do(func() { close(m.send) }) }

// next waits for the next event or fails the test.
func (m *MockClient) next(t *testing.T) models.Event {
	t.Helper()
	select {
	case ev, ok := <-m.send:
		if !ok {
			t.Fatalf("%s: channel closed", m.connID)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("%s: no event received", m.connID)
	}
	return models.Event{}
}

// expect skips events until one of type typ arrives.
func (m *MockClient) expect(t *testing.T, typ models.EventType) models.Event {
	t.Helper()
	for {
		ev := m.next(t)
		if ev.Type == typ {
			return ev
		}
	}
}

// drain returns everything currently buffered.
func (m *MockClient) drain() []models.Event {
	var out []models.Event
	for {
		select {
		case ev, ok := <-m.send:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

// MockNotifier is a testify double for chathub.OfflineNotifier.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyOffline(ctx context.Context, recipientID string, msg *models.Message) error {
	return m.Called(ctx, recipientID, msg).Error(0)
}

// MockPublisher is a testify double for presence.Publisher.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, fact presence.Fact) error {
	return m.Called(ctx, fact).Error(0)
}

func (m *MockPublisher) Refresh(ctx context.Context, identities []string) error {
	return m.Called(ctx, identities).Error(0)
}

// MockCoordinator is a testify double for chathub.Coordinator.
type MockCoordinator struct {
	mock.Mock
}

func (m *MockCoordinator) OpenChat(ctx context.Context, requester models.Identity, chatID string) (*models.Chat, error) {
	args := m.Called(ctx, requester, chatID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Chat), args.Error(1)
}

func (m *MockCoordinator) SendMessage(ctx context.Context, sender models.Identity, chatID, content string) (*chat.Sent, error) {
	args := m.Called(ctx, sender, chatID, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chat.Sent), args.Error(1)
}

func (m *MockCoordinator) MarkRead(ctx context.Context, reader models.Identity, chatID string) (bool, error) {
	args := m.Called(ctx, reader, chatID)
	return args.Bool(0), args.Error(1)
}
