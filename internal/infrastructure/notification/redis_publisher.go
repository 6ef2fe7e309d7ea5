package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

// RedisConfig holds the queue connection and key names
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	QueueKey string
	Channel  string
	// MaxLen caps the queue; older entries are trimmed
	MaxLen int64
}

// RedisPublisher pushes events to a capped Redis list and announces them on a channel
// for an out-of-process delivery worker
type RedisPublisher struct {
	client   *redis.Client
	queueKey string
	channel  string
	maxLen   int64
	logger   *zap.Logger
}

// NewRedisPublisher creates a publisher. It does not connect until first use.
func NewRedisPublisher(cfg RedisConfig, logger *zap.Logger) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return newRedisPublisher(client, cfg, logger)
}

func newRedisPublisher(client *redis.Client, cfg RedisConfig, logger *zap.Logger) *RedisPublisher {
	queueKey := cfg.QueueKey
	if queueKey == "" {
		queueKey = "expense:notifications"
	}
	channel := cfg.Channel
	if channel == "" {
		channel = "expense:events"
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &RedisPublisher{
		client:   client,
		queueKey: queueKey,
		channel:  channel,
		maxLen:   maxLen,
		logger:   logger,
	}
}

// Publish appends the JSON event to the queue, trims it and publishes it atomically
func (p *RedisPublisher) Publish(ctx context.Context, evt *event.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, p.queueKey, payload)
		pipe.LTrim(ctx, p.queueKey, -p.maxLen, -1)
		pipe.Publish(ctx, p.channel, payload)
		return nil
	})
	if err != nil {
		p.logger.Error("Failed to publish event",
			zap.String("event_id", evt.ID),
			zap.String("request_id", evt.RequestID),
			zap.Error(err))
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Handle lets the publisher subscribe to the dispatcher
func (p *RedisPublisher) Handle(ctx context.Context, evt *event.Event) error {
	return p.Publish(ctx, evt)
}

// Ping verifies Redis connectivity
func (p *RedisPublisher) Ping(ctx context.Context) error {
	if p == nil || p.client == nil {
		return errors.New("redis client not configured")
	}
	return p.client.Ping(ctx).Err()
}

// Close closes the client
func (p *RedisPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

// Verify interface compliance
var _ port.EventPublisher = (*RedisPublisher)(nil)
