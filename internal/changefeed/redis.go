package changefeed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/hholt/choreboard/internal/config"
	"github.com/hholt/choreboard/pkg/logger"
)

const channelPrefix = "changefeed:"

// RedisFeed is the Redis pub/sub implementation of Feed.
type RedisFeed struct {
	client *redis.Client
	log    *logger.Logger
}

// NewRedisFeed connects to Redis and verifies the connection.
func NewRedisFeed(cfg *config.RedisConfig, log *logger.Logger) (*RedisFeed, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Msg("Connected to Redis change-feed")

	return &RedisFeed{client: client, log: log}, nil
}

// NewRedisFeedFromClient wraps an existing client (tests use miniredis).
func NewRedisFeedFromClient(client *redis.Client, log *logger.Logger) *RedisFeed {
	return &RedisFeed{client: client, log: log}
}

// Publish encodes the event and publishes it on the table's channel.
func (f *RedisFeed) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode change event: %w", err)
	}
	if err := f.client.Publish(ctx, channelPrefix+event.Table, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish change event: %w", err)
	}
	return nil
}

// Subscribe listens on the given tables' channels and decodes events
// onto the returned channel. Malformed payloads are logged and skipped.
func (f *RedisFeed) Subscribe(ctx context.Context, tables ...string) (<-chan Event, error) {
	if len(tables) == 0 {
		return nil, fmt.Errorf("at least one table is required")
	}

	channels := make([]string, 0, len(tables))
	for _, table := range tables {
		channels = append(channels, channelPrefix+table)
	}

	sub := f.client.Subscribe(ctx, channels...)
	if _, err := sub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					f.log.Warn().
						Err(err).
						Str("channel", msg.Channel).
						Msg("Dropping malformed change event")
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Health checks if Redis is reachable.
func (f *RedisFeed) Health(ctx context.Context) error {
	return f.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (f *RedisFeed) Close() error {
	return f.client.Close()
}
