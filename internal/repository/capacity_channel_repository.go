package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/foodforall-dc/delivery-api/internal/models"
)

// CapacityChannelRepository carries capacity change notifications between instances over Redis
// Pub/Sub.
type CapacityChannelRepository struct {
	client  redis.UniversalClient
	channel string
	logger  *zap.Logger
}

// NewCapacityChannelRepository constructs the repository.
func NewCapacityChannelRepository(client redis.UniversalClient, channel string, logger *zap.Logger) *CapacityChannelRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CapacityChannelRepository{client: client, channel: channel, logger: logger}
}

// Enabled reports whether a Redis client is configured.
func (r *CapacityChannelRepository) Enabled() bool {
	return r.client != nil
}

// Publish sends a change to every listening instance.
func (r *CapacityChannelRepository) Publish(ctx context.Context, change models.CapacityChange) error {
	if r.client == nil {
		return nil
	}
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal capacity change: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", r.channel, err)
	}
	return nil
}

// Listen blocks until ctx is cancelled, passing every decoded change to fn. Undecodable payloads
// are logged and skipped.
func (r *CapacityChannelRepository) Listen(ctx context.Context, fn func(models.CapacityChange)) error {
	if r.client == nil {
		<-ctx.Done()
		return nil
	}
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", r.channel, err)
	}

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var change models.CapacityChange
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				r.logger.Warn("discarding malformed capacity change", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			fn(change)
		}
	}
}
