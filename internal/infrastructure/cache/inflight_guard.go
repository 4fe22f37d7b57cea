package cache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// InflightGuard marks work items as in flight so concurrent workers skip
// items someone else is already driving. Marks expire after their TTL in
// case the worker dies mid-flight.
type InflightGuard interface {
	// TryBegin marks the key in flight. Returns false when another worker
	// holds the mark.
	TryBegin(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// End clears the mark
	End(ctx context.Context, key string) error
}

// RedisInflightGuard implements InflightGuard with SETNX marks shared
// across instances
type RedisInflightGuard struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisInflightGuard creates a guard on an existing Redis client
func NewRedisInflightGuard(client *redis.Client, keyPrefix string) *RedisInflightGuard {
	if keyPrefix == "" {
		keyPrefix = "compensation:inflight:"
	}
	return &RedisInflightGuard{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// TryBegin marks the key in flight via SETNX
func (g *RedisInflightGuard) TryBegin(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return g.client.SetNX(ctx, g.keyPrefix+key, "1", ttl).Result()
}

// End clears the mark
func (g *RedisInflightGuard) End(ctx context.Context, key string) error {
	return g.client.Del(ctx, g.keyPrefix+key).Err()
}

// InMemoryInflightGuard implements InflightGuard for single-instance
// deployments and tests
type InMemoryInflightGuard struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// NewInMemoryInflightGuard creates an empty in-memory guard
func NewInMemoryInflightGuard() *InMemoryInflightGuard {
	return &InMemoryInflightGuard{
		entries: make(map[string]time.Time),
	}
}

// TryBegin marks the key in flight
func (g *InMemoryInflightGuard) TryBegin(_ context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if expiry, ok := g.entries[key]; ok && time.Now().Before(expiry) {
		return false, nil
	}
	g.entries[key] = time.Now().Add(ttl)
	return true, nil
}

// End clears the mark
func (g *InMemoryInflightGuard) End(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, key)
	return nil
}

// Ensure implementations satisfy the interface
var (
	_ InflightGuard = (*RedisInflightGuard)(nil)
	_ InflightGuard = (*InMemoryInflightGuard)(nil)
)
