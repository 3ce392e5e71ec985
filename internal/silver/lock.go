package silver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// RunLock serializes prediction runs per building. Acquire returns false
// when another run already holds the building.
type RunLock interface {
	Acquire(ctx context.Context, buildingID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, buildingID string) error
}

// MemoryLock is the single-node lock used by tests and memory deployments.
type MemoryLock struct {
	mu    sync.Mutex
	taken map[string]time.Time
}

func NewMemoryLock() *MemoryLock {
	return &MemoryLock{taken: make(map[string]time.Time)}
}

func (l *MemoryLock) Acquire(ctx context.Context, buildingID string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if until, ok := l.taken[buildingID]; ok && time.Now().Before(until) {
		return false, nil
	}
	l.taken[buildingID] = time.Now().Add(ttl)
	return true, nil
}

func (l *MemoryLock) Release(ctx context.Context, buildingID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.taken, buildingID)
	return nil
}

// RedisLock holds the building via SETNX with expiry, so a crashed run
// frees itself when the TTL lapses.
type RedisLock struct {
	client *redis.Client
}

func NewRedisLock(client *redis.Client) *RedisLock {
	return &RedisLock{client: client}
}

func (l *RedisLock) Acquire(ctx context.Context, buildingID string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, lockKey(buildingID), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis SETNX failed: %w", err)
	}
	return ok, nil
}

func (l *RedisLock) Release(ctx context.Context, buildingID string) error {
	if err := l.client.Del(ctx, lockKey(buildingID)).Err(); err != nil {
		return fmt.Errorf("redis DEL failed: %w", err)
	}
	return nil
}

func lockKey(buildingID string) string {
	return "run-lock:" + buildingID
}
