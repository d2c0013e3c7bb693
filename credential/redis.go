package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// redisClient is the subset of the redis client used here, so tests can fake it.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Close() error
}

// Redis reads a shared token from a redis key.
type Redis struct {
	client redisClient
	key    string
}

// NewRedis connects lazily to the redis instance at rawURL
// (redis://[user:password@]host:port/db).
func NewRedis(rawURL, key string) (*Redis, error) {
	if key == "" {
		return nil, fmt.Errorf("redis: %w", ErrEmptyKey)
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Redis{client: redis.NewClient(opts), key: key}, nil
}

func (r *Redis) Token(ctx context.Context) (string, error) {
	token, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("redis key %s: %w", r.key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", r.key, err)
	}
	return token, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
