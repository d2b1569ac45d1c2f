package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReservationCache remembers recently used correlation ids so replays are
// rejected before the store is touched. The key format is "correl:{id}".
type ReservationCache interface {
	// Reserve claims the key for ttl. It returns false when the key is
	// already held, true when this caller claimed it.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release frees a reservation early. Unknown keys are no-ops.
	Release(ctx context.Context, key string) error
}

// FormatReservationKey builds the standard correlation reservation key.
func FormatReservationKey(correlationID string) string {
	return fmt.Sprintf("correl:%s", correlationID)
}

// --- MemoryReservationCache ---

// MemoryReservationCache is an in-memory ReservationCache with TTL support.
// Suitable for testing and single-instance deployments.
type MemoryReservationCache struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// NewMemoryReservationCache creates a new in-memory reservation cache.
func NewMemoryReservationCache() *MemoryReservationCache {
	return &MemoryReservationCache{entries: make(map[string]time.Time)}
}

// Reserve claims the key unless a live reservation exists.
func (c *MemoryReservationCache) Reserve(_ context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if expiresAt, exists := c.entries[key]; exists && now.Before(expiresAt) {
		return false, nil
	}
	c.entries[key] = now.Add(ttl)
	return true, nil
}

// Release frees a reservation.
func (c *MemoryReservationCache) Release(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// Len returns the number of entries (including expired ones). For testing.
func (c *MemoryReservationCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// --- RedisReservationCache ---

// RedisReservationCache is a Redis-backed ReservationCache with TTL.
// SET NX makes the claim atomic across instances.
type RedisReservationCache struct {
	client redis.Cmdable
}

// NewRedisReservationCache creates a new Redis-backed reservation cache.
func NewRedisReservationCache(client redis.Cmdable) *RedisReservationCache {
	return &RedisReservationCache{client: client}
}

// Reserve claims the key with SET NX.
func (c *RedisReservationCache) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	claimed, err := c.client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %q: %w", key, err)
	}
	return claimed, nil
}

// Release frees a reservation.
func (c *RedisReservationCache) Release(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}

// HealthCheck reports whether Redis is reachable. Only the concrete type
// carries this; the memory cache needs no probe.
func (c *RedisReservationCache) HealthCheck(ctx context.Context) error {
	type pinger interface {
		Ping(ctx context.Context) *redis.StatusCmd
	}
	p, ok := c.client.(pinger)
	if !ok {
		return nil
	}
	return p.Ping(ctx).Err()
}
