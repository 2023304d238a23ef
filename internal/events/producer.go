// Package events publishes chat domain events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"marketchat/backend/internal/models"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageSent is the payload of the message.sent topic.
type MessageSent struct {
	Event            string `json:"event"`
	MessageID        string `json:"message_id"`
	ChatID           string `json:"chat_id"`
	SenderID         string `json:"sender_id"`
	IsProviderSender bool   `json:"is_provider_sender"`
	Content          string `json:"content"`
	Timestamp        int64  `json:"timestamp"`
}

func NewMessageSent(msg *models.Message) MessageSent {
	return MessageSent{
		Event:            "message.sent",
		MessageID:        msg.MessageID,
		ChatID:           msg.ChatID,
		SenderID:         msg.SenderID,
		IsProviderSender: msg.IsProviderSender,
		Content:          msg.Content,
		Timestamp:        msg.Timestamp,
	}
}

// Writer is the part of kafka-go's Writer the producer uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

const (
	// batchTimeout caps how long a message waits for batch mates before the flush.
	batchTimeout = 10 * time.Millisecond
	// writeTimeout bounds one hand-off to the writer, metadata lookup included.
	writeTimeout = 5 * time.Second
	queueSize    = 4096
)

// ErrQueueFull is returned when events arrive faster than Kafka takes them.
var ErrQueueFull = errors.New("events: publish queue full")

// Producer publishes from a single background goroutine, so callers never
// wait on the broker and one chat's events keep their order.
type Producer struct {
	writer Writer
	log    *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan kafkago.Message
	done   chan struct{}
}

// NewProducer builds an asynchronous kafka-go writer behind the queue;
// delivery failures are logged when a batch completes.
func NewProducer(brokers []string, topic string, log *zap.Logger) *Producer {
	log = log.Named("events")
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		Async:        true,
		BatchTimeout: batchTimeout,
		Completion: func(msgs []kafkago.Message, err error) {
			if err != nil {
				log.Warn("message.sent delivery failed", zap.String("topic", topic), zap.Int("messages", len(msgs)), zap.Error(err))
			}
		},
	}
	return NewProducerWithWriter(w, log)
}

// NewProducerWithWriter starts a producer over an existing writer.
func NewProducerWithWriter(w Writer, log *zap.Logger) *Producer {
	p := &Producer{
		writer: w,
		log:    log,
		queue:  make(chan kafkago.Message, queueSize),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// PublishMessageSent enqueues the event keyed by chat id, so one chat's
// events land in one partition in order. It never blocks.
func (p *Producer) PublishMessageSent(_ context.Context, msg *models.Message) error {
	b, err := json.Marshal(NewMessageSent(msg))
	if err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return io.ErrClosedPipe
	}
	select {
	case p.queue <- kafkago.Message{Key: []byte(msg.ChatID), Value: b, Time: time.UnixMilli(msg.Timestamp)}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Producer) run() {
	defer close(p.done)
	for m := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := p.writer.WriteMessages(ctx, m); err != nil {
			p.log.Warn("message.sent write failed", zap.String("chat_id", string(m.Key)), zap.Error(err))
		}
		cancel()
	}
}

// Close drains the queue, then closes the writer, which flushes pending batches.
func (p *Producer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	return p.writer.Close()
}

// Nop discards events when no brokers are configured.
type Nop struct{}

func (Nop) PublishMessageSent(context.Context, *models.Message) error { return nil }
