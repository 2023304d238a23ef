package presence

import (
	"context"
	"encoding/json"
	"time"

	"marketchat/backend/internal/config"

	"github.com/redis/go-redis/v9"
)

// Fact is an online/offline transition made visible to other services.
type Fact struct {
	Identity   string `json:"identity"`
	IsProvider bool   `json:"is_provider"`
	Status     string `json:"status"` // "online" | "offline"
	At         int64  `json:"at"`
}

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// NewFact stamps a transition with the current time.
func NewFact(identity string, isProvider, online bool) Fact {
	status := StatusOffline
	if online {
		status = StatusOnline
	}
	return Fact{Identity: identity, IsProvider: isProvider, Status: status, At: time.Now().Unix()}
}

// Publisher exports presence facts outside the process.
type Publisher interface {
	Publish(ctx context.Context, fact Fact) error
	// Refresh extends the liveness of identities that are still connected.
	Refresh(ctx context.Context, identities []string) error
}

// RedisPublisher keeps a presence:<identity> key with a TTL and announces
// transitions on a pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	ttl     time.Duration
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client, channel: config.PresenceChannel, ttl: config.PresenceTTL}
}

// Key is the Redis key holding an identity's presence.
func Key(identity string) string { return "presence:" + identity }

func (p *RedisPublisher) Publish(ctx context.Context, fact Fact) error {
	payload, err := json.Marshal(fact)
	if err != nil {
		return err
	}

	pipe := p.client.TxPipeline()
	if fact.Status == StatusOnline {
		pipe.Set(ctx, Key(fact.Identity), payload, p.ttl)
	} else {
		pipe.Del(ctx, Key(fact.Identity))
	}
	pipe.Publish(ctx, p.channel, payload)
	_, err = pipe.Exec(ctx)
	return err
}

func (p *RedisPublisher) Refresh(ctx context.Context, identities []string) error {
	if len(identities) == 0 {
		return nil
	}
	pipe := p.client.Pipeline()
	for _, id := range identities {
		pipe.Expire(ctx, Key(id), p.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Nop drops every fact; used when Redis is not configured.
type Nop struct{}

func (Nop) Publish(context.Context, Fact) error     { return nil }
func (Nop) Refresh(context.Context, []string) error { return nil }
