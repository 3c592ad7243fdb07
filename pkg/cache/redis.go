package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings for the fast tier.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
}

// NewRedisClient opens a Redis connection pool and verifies it with a
// ping.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	timeout := cfg.DialTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// RedisCache implements FastCache on a Redis client. The client is
// injected so callers control pooling and lifecycle.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps an existing Redis client as the fast tier.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get retrieves the raw value for a key.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get value from redis: %w", err)
	}
	return data, nil
}

// SetWithTTL stores a value under a key with the given expiry.
func (c *RedisCache) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set value in redis: %w", err)
	}
	return nil
}

// Delete removes the given keys and returns how many existed.
func (c *RedisCache) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	removed, err := c.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to delete keys from redis: %w", err)
	}
	return removed, nil
}

// KeysMatching collects keys matching a glob pattern using SCAN, never
// KEYS, so large keyspaces do not block the server.
func (c *RedisCache) KeysMatching(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan keys in redis: %w", err)
	}
	return keys, nil
}

// Info reports memory use and client count for cache statistics.
func (c *RedisCache) Info(ctx context.Context) (*TierInfo, error) {
	memory, err := c.client.Info(ctx, "memory").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read redis memory info: %w", err)
	}
	clients, err := c.client.Info(ctx, "clients").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read redis client info: %w", err)
	}

	info := &TierInfo{
		UsedMemoryHuman: parseInfoField(memory, "used_memory_human"),
	}
	if v, err := strconv.ParseInt(parseInfoField(clients, "connected_clients"), 10, 64); err == nil {
		info.ConnectedClients = v
	}
	return info, nil
}

// Close releases the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// parseInfoField extracts a single "field:value" line from an INFO
// section payload.
func parseInfoField(section, field string) string {
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, field+":") {
			return strings.TrimPrefix(line, field+":")
		}
	}
	return ""
}
