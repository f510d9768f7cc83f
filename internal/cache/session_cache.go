package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionCache maps a raw access token to the subject it was validated for.
// A miss is never authoritative; callers fall back to full validation.
type SessionCache interface {
	Get(ctx context.Context, token string) (subject string, ok bool, err error)
	Put(ctx context.Context, token string, subject string, ttl time.Duration) error
}

const sessionKeyPrefix = "session:"

// sessionKey hashes the token so bearer credentials never appear as cache keys.
func sessionKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return sessionKeyPrefix + hex.EncodeToString(sum[:])
}

type RedisSessionCache struct {
	client *redis.Client
}

func NewRedisSessionCache(client *redis.Client) *RedisSessionCache {
	return &RedisSessionCache{client: client}
}

func (c *RedisSessionCache) Get(ctx context.Context, token string) (string, bool, error) {
	subject, err := c.client.Get(ctx, sessionKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("session cache get: %w", err)
	}
	return subject, true, nil
}

func (c *RedisSessionCache) Put(ctx context.Context, token string, subject string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := c.client.Set(ctx, sessionKey(token), subject, ttl).Err(); err != nil {
		return fmt.Errorf("session cache put: %w", err)
	}
	return nil
}

type memoryEntry struct {
	subject   string
	expiresAt time.Time
}

type MemorySessionCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemorySessionCache() *MemorySessionCache {
	return &MemorySessionCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// WithClock is for tests.
func (c *MemorySessionCache) WithClock(now func() time.Time) *MemorySessionCache {
	c.now = now
	return c
}

func (c *MemorySessionCache) Get(_ context.Context, token string) (string, bool, error) {
	key := sessionKey(token)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return "", false, nil
	}

	if !c.now().Before(entry.expiresAt) {
		c.mu.Lock()
		if current, ok := c.entries[key]; ok && !c.now().Before(current.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return "", false, nil
	}
	return entry.subject, true, nil
}

func (c *MemorySessionCache) Put(_ context.Context, token string, subject string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	c.entries[sessionKey(token)] = memoryEntry{subject: subject, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

// Sweep drops expired entries.
func (c *MemorySessionCache) Sweep() int {
	now := c.now()
	removed := 0

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *MemorySessionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

type NopSessionCache struct{}

func (NopSessionCache) Get(context.Context, string) (string, bool, error) { return "", false, nil }

func (NopSessionCache) Put(context.Context, string, string, time.Duration) error { return nil }
