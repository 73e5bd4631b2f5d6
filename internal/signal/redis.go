// Package signal implements the queue and signal store: per-pool pause
// flags, per-unit status markers, and per-pool work queues.
package signal

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Key layout shared with the crawler fleet. The pause flag is a hash
// field per pool; unit markers are a hash per pool with the unit index
// as field; work queues are sorted sets named <pool>:<crawl>:queue.
const (
	pausedKey     = "scc-queue:paused"
	unitKeyPrefix = "scc-spider:"
)

// RedisStore talks to the Redis instance shared with the crawler fleet.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// SetPause raises the pause flag for a pool.
func (s *RedisStore) SetPause(ctx context.Context, pool string) error {
	if err := s.client.HSet(ctx, pausedKey, pool, 1).Err(); err != nil {
		return fmt.Errorf("set pause flag for %s: %w", pool, err)
	}
	return nil
}

// ClearPause removes the pause flag for a pool. Clearing an absent flag
// is not an error.
func (s *RedisStore) ClearPause(ctx context.Context, pool string) error {
	if err := s.client.HDel(ctx, pausedKey, pool).Err(); err != nil {
		return fmt.Errorf("clear pause flag for %s: %w", pool, err)
	}
	return nil
}

// IsPaused reports whether the pause flag is set for a pool.
func (s *RedisStore) IsPaused(ctx context.Context, pool string) (bool, error) {
	_, err := s.client.HGet(ctx, pausedKey, pool).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("read pause flag for %s: %w", pool, err)
	}
	return true, nil
}

// UnitMarker returns the raw status marker for one unit, or "" if absent.
func (s *RedisStore) UnitMarker(ctx context.Context, pool, index string) (string, error) {
	val, err := s.client.HGet(ctx, unitKeyPrefix+pool, index).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("read unit marker %s/%s: %w", pool, index, err)
	}
	return val, nil
}

// Queues enumerates the work queue keys belonging to a pool.
func (s *RedisStore) Queues(ctx context.Context, pool string) ([]string, error) {
	keys, err := s.client.Keys(ctx, pool+":*:queue").Result()
	if err != nil {
		return nil, fmt.Errorf("list queues for %s: %w", pool, err)
	}
	return keys, nil
}

// QueueDepth returns the number of pending items in one work queue.
func (s *RedisStore) QueueDepth(ctx context.Context, queue string) (int64, error) {
	depth, err := s.client.ZCard(ctx, queue).Result()
	if err != nil {
		return 0, fmt.Errorf("queue depth of %s: %w", queue, err)
	}
	return depth, nil
}

// DeleteQueues removes the given work queues.
func (s *RedisStore) DeleteQueues(ctx context.Context, queues ...string) error {
	if len(queues) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, queues...).Err(); err != nil {
		return fmt.Errorf("delete queues: %w", err)
	}
	return nil
}
