package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fuomag9/onlinetracker/internal/models"
)

// Publisher is the subset of the redis client used to fan alerts out
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisProvider publishes alert messages as JSON on a Redis channel. A notification's
// "channel" config value overrides the default channel.
type RedisProvider struct {
	client         Publisher
	defaultChannel string
}

// NewRedisProvider creates a new redis provider
func NewRedisProvider(client Publisher, defaultChannel string) *RedisProvider {
	return &RedisProvider{client: client, defaultChannel: defaultChannel}
}

// ConnectRedis parses url, connects and pings the server
func ConnectRedis(ctx context.Context, url string, logger *zap.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("connected to Redis", zap.String("addr", opts.Addr))
	return client, nil
}

func (r *RedisProvider) Name() string {
	return "redis"
}

func (r *RedisProvider) Send(ctx context.Context, notification *models.Notification, message *Message) error {
	channel, _ := notification.Config["channel"].(string)
	if channel == "" {
		channel = r.defaultChannel
	}
	if channel == "" {
		return fmt.Errorf("no redis channel configured")
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

func (r *RedisProvider) Validate(config map[string]interface{}) error {
	if channel, ok := config["channel"]; ok {
		if s, isString := channel.(string); !isString || s == "" {
			return fmt.Errorf("channel must be a non-empty string")
		}
	}
	return nil
}
