package querycache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pitabwire/storedesk/internal/querykey"
)

// DefaultInvalidationChannel is the pub/sub channel used when none is set.
const DefaultInvalidationChannel = "storedesk:query-invalidation"

// invalidationMessage is the pub/sub payload.
type invalidationMessage struct {
	Origin    string       `json:"origin"`
	Prefix    querykey.Key `json:"prefix"`
	Timestamp int64        `json:"timestamp"`
}

// RedisBroadcaster shares invalidations between storedesk instances over a
// Redis pub/sub channel. Messages carry the sender's origin id so an
// instance ignores its own invalidations.
type RedisBroadcaster struct {
	client  redis.UniversalClient
	channel string
	origin  string
	logger  *zap.Logger
}

// BroadcasterOption configures a RedisBroadcaster.
type BroadcasterOption func(*RedisBroadcaster)

// WithChannel sets the pub/sub channel name.
func WithChannel(channel string) BroadcasterOption {
	return func(b *RedisBroadcaster) {
		if channel != "" {
			b.channel = channel
		}
	}
}

// WithBroadcasterLogger sets the broadcaster's logger.
func WithBroadcasterLogger(logger *zap.Logger) BroadcasterOption {
	return func(b *RedisBroadcaster) {
		b.logger = logger
	}
}

// NewRedisBroadcaster creates a broadcaster on an existing client. The caller
// keeps ownership of the client.
func NewRedisBroadcaster(client redis.UniversalClient, opts ...BroadcasterOption) *RedisBroadcaster {
	b := &RedisBroadcaster{
		client:  client,
		channel: DefaultInvalidationChannel,
		origin:  uuid.NewString(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish announces an invalidated prefix.
func (b *RedisBroadcaster) Publish(ctx context.Context, prefix querykey.Key) error {
	data, err := json.Marshal(invalidationMessage{
		Origin:    b.origin,
		Prefix:    prefix,
		Timestamp: time.Now().UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("marshal invalidation: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	b.logger.Debug("published query invalidation",
		zap.String("channel", b.channel),
		zap.String("prefix", prefix.String()),
	)
	return nil
}

// Listen applies invalidations published by other instances to c until ctx
// ends. It blocks; run it in its own goroutine. ready, if non-nil, is closed
// once the subscription is confirmed.
func (b *RedisBroadcaster) Listen(ctx context.Context, c *Client, ready chan<- struct{}) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", b.channel, err)
	}
	b.logger.Info("subscribed to query invalidation channel", zap.String("channel", b.channel))
	if ready != nil {
		close(ready)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				b.logger.Warn("query invalidation channel closed")
				return nil
			}
			var m invalidationMessage
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				b.logger.Error("malformed query invalidation",
					zap.String("payload", msg.Payload),
					zap.Error(err),
				)
				continue
			}
			if m.Origin == b.origin || len(m.Prefix) == 0 {
				continue
			}
			c.InvalidateLocal(m.Prefix)
		}
	}
}

// Ping checks the Redis connection. It satisfies the readiness check
// signature.
func (b *RedisBroadcaster) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}
