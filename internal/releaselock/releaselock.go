// Package releaselock serializes concurrent writers to the same
// (domain, release_id) vector index, addressing the read-modify-write race in
// the index.jsonl upsert. Backed by Redis SETNX when available (multi-process
// safe), falling back to an in-process mutex map otherwise.
package releaselock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker serializes writers to a (domain, release_id) pair.
type Locker interface {
	Lock(ctx context.Context, domain, releaseID string) (unlock func(), err error)
}

func lockKey(domain, releaseID string) string {
	return fmt.Sprintf("release_lock:%s:%s", domain, releaseID)
}

// InProcessLocker guarantees mutual exclusion within a single process.
type InProcessLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewInProcessLocker() *InProcessLocker {
	return &InProcessLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *InProcessLocker) Lock(_ context.Context, domain, releaseID string) (func(), error) {
	key := lockKey(domain, releaseID)

	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock, nil
}

// RedisLocker serializes writers across processes via a Redis SETNX-based
// advisory lock with a TTL safety net in case a holder crashes.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	// retryDelay controls how long Lock waits between acquisition attempts.
	retryDelay time.Duration
}

func NewRedisLocker(client *redis.Client, ttlSeconds int) *RedisLocker {
	if ttlSeconds <= 0 {
		ttlSeconds = 30
	}
	return &RedisLocker{client: client, ttl: time.Duration(ttlSeconds) * time.Second, retryDelay: 50 * time.Millisecond}
}

// Lock blocks until the advisory lock for (domain, release_id) is acquired or
// ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, domain, releaseID string) (func(), error) {
	key := lockKey(domain, releaseID)
	token := fmt.Sprintf("%d", time.Now().UnixNano())

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("releaselock: redis setnx: %w", err)
		}
		if ok {
			unlock := func() {
				// Best-effort release; TTL is the safety net if this never runs.
				l.client.Del(context.Background(), key)
			}
			return unlock, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryDelay):
		}
	}
}
