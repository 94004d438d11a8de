package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// CacheResponse stores a serialized API response under an idempotency key.
// Returns false when the key already held a value, meaning a duplicate
// request raced this one.
func (c *Client) CacheResponse(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("failed to marshal cached response: %w", err)
	}
	return c.rdb.SetNX(ctx, responseKey(key), data, ttl).Result()
}

// GetCachedResponse loads a previously cached API response. Returns false
// when the key is absent.
func (c *Client) GetCachedResponse(ctx context.Context, key string, out interface{}) (bool, error) {
	data, err := c.rdb.Get(ctx, responseKey(key)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached response: %w", err)
	}
	return true, nil
}

// MarkInFlight claims an idempotency key for the duration of a request, so
// a double-submitted click is absorbed before it reaches the orchestrator.
func (c *Client) MarkInFlight(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, inflightKey(key), "1", ttl).Result()
}

// ClearInFlight releases an in-flight claim
func (c *Client) ClearInFlight(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, inflightKey(key)).Err()
}

func responseKey(key string) string {
	return fmt.Sprintf("idempotency:response:%s", key)
}

func inflightKey(key string) string {
	return fmt.Sprintf("idempotency:inflight:%s", key)
}
