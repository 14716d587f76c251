// Package notify carries model update events from the worker to API
// processes over Redis pub/sub.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/jupark12/model-processor/config"
	"github.com/jupark12/model-processor/models"
)

// Publisher announces job and model status changes
type Publisher interface {
	Publish(ctx context.Context, event models.ModelEvent) error
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(ctx context.Context, event models.ModelEvent) error

func (f PublisherFunc) Publish(ctx context.Context, event models.ModelEvent) error {
	return f(ctx, event)
}

// Nop discards every event
var Nop Publisher = PublisherFunc(func(context.Context, models.ModelEvent) error { return nil })

// RedisBus publishes and subscribes to model events on one channel
type RedisBus struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewRedisBus connects to Redis and verifies the connection
func NewRedisBus(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisBus{
		client:  client,
		channel: cfg.Channel,
		logger:  logger.With("component", "notify", "channel", cfg.Channel),
	}, nil
}

func (b *RedisBus) Publish(ctx context.Context, event models.ModelEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Listen delivers events to handle until ctx is cancelled.
// Malformed payloads are logged and skipped.
func (b *RedisBus) Listen(ctx context.Context, handle func(models.ModelEvent)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.logger.Info("listening for model events")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			event, err := Decode([]byte(msg.Payload))
			if err != nil {
				b.logger.Warn("invalid event payload", "error", err)
				continue
			}
			handle(event)
		}
	}
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}

// Decode parses a published event payload
func Decode(payload []byte) (models.ModelEvent, error) {
	var event models.ModelEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return event, fmt.Errorf("unmarshal event: %w", err)
	}
	if event.Type != models.EventModelUpdate || event.ModelID == "" {
		return event, fmt.Errorf("unexpected event %q for model %q", event.Type, event.ModelID)
	}
	return event, nil
}
