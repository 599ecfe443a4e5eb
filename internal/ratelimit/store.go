package ratelimit

import (
	"context"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/patronage/internal/clock"
)

// CounterStore keeps expiring integer counters.
type CounterStore interface {
	// Incr adds one to key, (re)arms its expiry and returns the new value.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

type RedisCounterStore struct {
	client *redis.Client
}

func NewRedisCounterStore(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

func (s *RedisCounterStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// MemoryCounterStore is a single-process fallback used when redis is not configured.
type MemoryCounterStore struct {
	mu       sync.Mutex
	clock    clock.Clock
	counters map[string]memoryCounter
}

type memoryCounter struct {
	value     int64
	expiresAt time.Time
}

func NewMemoryCounterStore(c clock.Clock) *MemoryCounterStore {
	if c == nil {
		c = clock.SystemClock{}
	}
	return &MemoryCounterStore{clock: c, counters: map[string]memoryCounter{}}
}

func (s *MemoryCounterStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	counter := s.counters[key]
	if !counter.expiresAt.IsZero() && !now.Before(counter.expiresAt) {
		counter = memoryCounter{}
	}
	counter.value++
	counter.expiresAt = now.Add(ttl)
	s.counters[key] = counter
	return counter.value, nil
}
