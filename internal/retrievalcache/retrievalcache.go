// Package retrievalcache caches retrieval query results keyed by
// (domain, release_id, query, filters, top_k), backed by Redis with an
// in-memory fallback, the same shape the document-context cache uses for
// injected-context lookups.
package retrievalcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "retrieval_cache"

// DefaultTTL mirrors the document-context cache's default window.
const DefaultTTL = 5 * time.Minute

// Cache caches a query's retrieval result payload as opaque JSON bytes.
type Cache struct {
	redis *redis.Client
	ttl   time.Duration

	mu      sync.RWMutex
	entries map[string]memEntry
}

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

// New builds a Cache. redisClient may be nil, in which case the cache runs
// purely in-memory for the lifetime of the process.
func New(redisClient *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{redis: redisClient, ttl: ttl, entries: make(map[string]memEntry)}
}

// Key builds the cache key for a query, hashing the filter map in a stable,
// sorted order so equivalent filter sets always collide.
func Key(domain, releaseID, query string, filters map[string]string, topK int) string {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d", domain, releaseID, query, topK)
	for _, k := range keys {
		fmt.Fprintf(h, "|%s=%s", k, filters[k])
	}
	return fmt.Sprintf("%s:%s", keyPrefix, hex.EncodeToString(h.Sum(nil))[:32])
}

// Get fetches a cached value; ok is false on miss.
func (c *Cache) Get(ctx context.Context, key string) (value []byte, ok bool) {
	if c.redis != nil {
		v, err := c.redis.Get(ctx, key).Bytes()
		if err == nil {
			return v, true
		}
		if err != redis.Nil {
			return nil, false
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	e, found := c.entries[key]
	if !found || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// Set stores value under key with the cache's configured TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte) error {
	if c.redis != nil {
		if err := c.redis.Set(ctx, key, value, c.ttl).Err(); err == nil {
			return nil
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memEntry{value: value, expiresAt: time.Now().Add(c.ttl)}
	return nil
}

// GetJSON and SetJSON are convenience wrappers for structured payloads.
func (c *Cache) GetJSON(ctx context.Context, key string, dest any) (ok bool) {
	raw, found := c.Get(ctx, key)
	if !found {
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false
	}
	return true
}

func (c *Cache) SetJSON(ctx context.Context, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, b)
}
