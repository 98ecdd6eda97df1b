package queue

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKey = "shelfbot:jobs"

// RedisOption is a functional option for configuring the Redis queue.
type RedisOption func(*RedisQueue)

// WithKey overrides the Redis list key the queue lives under.
func WithKey(key string) RedisOption {
	return func(q *RedisQueue) {
		if key != "" {
			q.key = key
		}
	}
}

// RedisQueue is a Queue backed by a Redis list. Producers RPUSH decimal job
// ids and the worker BLPOPs them, so the queue survives restarts of both
// processes.
type RedisQueue struct {
	client *redis.Client
	key    string
	closed atomic.Bool
}

// NewRedisQueue connects to the Redis URL (e.g. "redis://localhost:6379/0")
// and verifies connectivity before returning.
func NewRedisQueue(redisURL string, opts ...RedisOption) (*RedisQueue, error) {
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(redisOpts)

	q := &RedisQueue{
		client: client,
		key:    defaultKey,
	}
	for _, opt := range opts {
		opt(q)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return q, nil
}

// Push appends a job id to the tail of the list.
func (q *RedisQueue) Push(ctx context.Context, jobID int64) error {
	if q.closed.Load() {
		return ErrClosed
	}
	if err := q.client.RPush(ctx, q.key, strconv.FormatInt(jobID, 10)).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job %d: %w", jobID, err)
	}
	return nil
}

// Pop blocks on the head of the list up to timeout. A zero timeout blocks
// indefinitely, bounded only by ctx.
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (int64, bool, error) {
	if q.closed.Load() {
		return 0, false, ErrClosed
	}
	vals, err := q.client.BLPop(ctx, timeout, q.key).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to pop job: %w", err)
	}
	// BLPOP returns [key, value].
	if len(vals) != 2 {
		return 0, false, fmt.Errorf("unexpected BLPOP reply of %d elements", len(vals))
	}
	id, err := strconv.ParseInt(vals[1], 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("malformed queue payload %q: %w", vals[1], err)
	}
	return id, true, nil
}

// Len reports the number of queued jobs.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to measure queue: %w", err)
	}
	return n, nil
}

// Ping verifies the Redis connection is alive.
func (q *RedisQueue) Ping(ctx context.Context) error {
	if q.closed.Load() {
		return ErrClosed
	}
	return q.client.Ping(ctx).Err()
}

// Close releases the Redis connection. Safe to call more than once.
func (q *RedisQueue) Close() error {
	if q.closed.Swap(true) {
		return nil
	}
	return q.client.Close()
}
