package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keySetCachePrefix = "jwks:"

// KeySetCache shares fetched JWKS documents between instances
type KeySetCache struct {
	client *Client
}

// NewKeySetCache creates a new key set cache
func NewKeySetCache(client *Client) *KeySetCache {
	return &KeySetCache{client: client}
}

// Get returns the cached document for url, or nil on a miss
func (c *KeySetCache) Get(ctx context.Context, url string) ([]byte, error) {
	data, err := c.client.rdb.Get(ctx, keySetCachePrefix+url).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil // Cache miss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key set: %w", err)
	}
	return data, nil
}

// Set caches doc for ttl
func (c *KeySetCache) Set(ctx context.Context, url string, doc []byte, ttl time.Duration) error {
	return c.client.rdb.Set(ctx, keySetCachePrefix+url, doc, ttl).Err()
}

// Invalidate removes the cached document for url
func (c *KeySetCache) Invalidate(ctx context.Context, url string) error {
	return c.client.rdb.Del(ctx, keySetCachePrefix+url).Err()
}
