package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultTTL = 24 * time.Hour
	keyPrefix  = "cesfront:"
)

// Durable is a slower store the cache reads through to on a miss.
type Durable interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Cache stores opaque client-state blobs (view-count snapshots, rank maps)
// in Redis, optionally backed by a durable store.
type Cache struct {
	client  *redis.Client
	ttl     time.Duration
	durable Durable
}

// NewCache constructs a Cache with a 24-hour TTL.
func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client, ttl: defaultTTL}
}

// WithDurable returns c with d as its read-through backing store.
func (c *Cache) WithDurable(d Durable) *Cache {
	c.durable = d
	return c
}

// key returns the namespaced Redis key.
func key(k string) string {
	return keyPrefix + strings.TrimSpace(k)
}

// Get returns the blob stored under k.
// Returns nil, nil on a miss (not an error).
func (c *Cache) Get(ctx context.Context, k string) ([]byte, error) {
	val, err := c.client.Get(ctx, key(k)).Bytes()
	if err == nil {
		return val, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("cache get for %s: %w", k, err)
	}

	if c.durable == nil {
		return nil, nil
	}

	val, err = c.durable.Get(ctx, k)
	if err != nil {
		return nil, fmt.Errorf("durable get for %s: %w", k, err)
	}
	if val == nil {
		return nil, nil
	}

	// Refill is best effort; the durable copy already answered.
	_ = c.client.Set(ctx, key(k), val, c.ttl).Err()

	return val, nil
}

// Set writes the blob through to the durable store (if any) and then Redis.
// Whole-value overwrite; the last writer wins.
func (c *Cache) Set(ctx context.Context, k string, value []byte) error {
	if value == nil {
		return nil
	}

	if c.durable != nil {
		if err := c.durable.Set(ctx, k, value); err != nil {
			return fmt.Errorf("durable set for %s: %w", k, err)
		}
	}

	if err := c.client.Set(ctx, key(k), value, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set for %s: %w", k, err)
	}

	return nil
}

// Delete removes the cached entry for k. The durable copy is kept.
func (c *Cache) Delete(ctx context.Context, k string) error {
	if err := c.client.Del(ctx, key(k)).Err(); err != nil {
		return fmt.Errorf("cache delete for %s: %w", k, err)
	}
	return nil
}
