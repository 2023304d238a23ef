// Package notify is the offline-notification hook: a fire-and-forget signal
// that a recipient without a live connection has a new message.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"marketchat/backend/internal/config"
	"marketchat/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const previewLength = 140

// Job is what the downstream push worker consumes.
type Job struct {
	RecipientID string `json:"recipient_id"`
	ChatID      string `json:"chat_id"`
	MessageID   string `json:"message_id"`
	SenderID    string `json:"sender_id"`
	Preview     string `json:"preview"`
	SentAt      int64  `json:"sent_at"`
}

func NewJob(recipientID string, msg *models.Message) Job {
	preview := []rune(msg.Content)
	if len(preview) > previewLength {
		preview = preview[:previewLength]
	}
	return Job{
		RecipientID: recipientID,
		ChatID:      msg.ChatID,
		MessageID:   msg.MessageID,
		SenderID:    msg.SenderID,
		Preview:     string(preview),
		SentAt:      msg.Timestamp,
	}
}

// Pusher appends an encoded job to a named queue.
type Pusher interface {
	Push(ctx context.Context, queue string, payload []byte) error
}

// RedisPusher pushes onto a Redis list.
type RedisPusher struct {
	Client *redis.Client
}

func (p RedisPusher) Push(ctx context.Context, queue string, payload []byte) error {
	return p.Client.LPush(ctx, queue, payload).Err()
}

// BreakerSettings tunes when the queue is considered down.
type BreakerSettings struct {
	MaxFailures uint32
	Interval    time.Duration
	Timeout     time.Duration
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{MaxFailures: 5, Interval: time.Minute, Timeout: 30 * time.Second}
}

// QueueNotifier enqueues jobs through a circuit breaker so a dead queue
// fails fast instead of stalling every send.
type QueueNotifier struct {
	pusher Pusher
	queue  string
	cb     *gobreaker.CircuitBreaker
}

func NewQueueNotifier(pusher Pusher, settings BreakerSettings, log *zap.Logger) *QueueNotifier {
	st := gobreaker.Settings{
		Name:        "offline-notify",
		MaxRequests: 1,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Info("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	return &QueueNotifier{pusher: pusher, queue: config.OfflineNotificationQueue, cb: gobreaker.NewCircuitBreaker(st)}
}

// NewRedisNotifier is the production hook.
func NewRedisNotifier(client *redis.Client, log *zap.Logger) *QueueNotifier {
	return NewQueueNotifier(RedisPusher{Client: client}, DefaultBreakerSettings(), log)
}

func (n *QueueNotifier) NotifyOffline(ctx context.Context, recipientID string, msg *models.Message) error {
	payload, err := json.Marshal(NewJob(recipientID, msg))
	if err != nil {
		return err
	}
	_, err = n.cb.Execute(func() (interface{}, error) {
		return nil, n.pusher.Push(ctx, n.queue, payload)
	})
	return err
}

// State exposes the breaker state for health reporting.
func (n *QueueNotifier) State() string {
	return n.cb.State().String()
}

// Log only records the signal; used when no queue is configured.
type Log struct {
	Logger *zap.Logger
}

func (l Log) NotifyOffline(_ context.Context, recipientID string, msg *models.Message) error {
	l.Logger.Debug("offline notification", zap.String("recipient", recipientID), zap.String("chat_id", msg.ChatID), zap.String("message_id", msg.MessageID))
	return nil
}
