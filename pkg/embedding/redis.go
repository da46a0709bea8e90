package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string
	// Prefix is prepended to every key. Defaults to "graphrag:embedding:".
	Prefix string
	// TTL expires entries. 0 keeps them forever.
	TTL time.Duration
}

// RedisStore keeps vectors as raw strings in Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.Prefix == "" {
		opts.Prefix = "graphrag:embedding:"
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, prefix: opts.Prefix, ttl: opts.TTL}, nil
}

func (s *RedisStore) key(namespace, key string) string {
	return s.prefix + namespace + ":" + key
}

func (s *RedisStore) Get(ctx context.Context, namespace, key string) ([]float32, bool, error) {
	data, err := s.client.Get(ctx, s.key(namespace, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	vec, err := DecodeVector(data)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

func (s *RedisStore) Put(ctx context.Context, namespace, key string, vec []float32) error {
	return s.client.SetNX(ctx, s.key(namespace, key), EncodeVector(vec), s.ttl).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
