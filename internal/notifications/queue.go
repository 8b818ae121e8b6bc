package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrQueueEmpty is returned by Dequeue when no job arrived in time.
var ErrQueueEmpty = errors.New("notifications: queue empty")

// Queue carries jobs from the scanner to the dispatcher.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// Dequeue blocks until a job is available, the queue's poll timeout
	// elapses (ErrQueueEmpty) or ctx is done.
	Dequeue(ctx context.Context) (Job, error)
}

// --------------------------------------------------------------------------
// In-process queue
// --------------------------------------------------------------------------

// MemoryQueue is a buffered channel queue for single-process runs.
type MemoryQueue struct {
	ch chan Job
}

// NewMemoryQueue creates a queue holding up to size jobs.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 256
	}
	return &MemoryQueue{ch: make(chan Job, size)}
}

// Enqueue adds a job, blocking while the buffer is full.
func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue removes the next job.
func (q *MemoryQueue) Dequeue(ctx context.Context) (Job, error) {
	select {
	case job := <-q.ch:
		return job, nil
	case <-ctx.Done():
		return Job{}, ctx.Err()
	case <-time.After(dequeueTimeout):
		return Job{}, ErrQueueEmpty
	}
}

// Len returns the number of queued jobs.
func (q *MemoryQueue) Len() int { return len(q.ch) }

// --------------------------------------------------------------------------
// Redis queue
// --------------------------------------------------------------------------

// RedisQueue stores JSON jobs in a Redis list (LPUSH / BRPOP), so queued
// alerts survive a worker restart.
type RedisQueue struct {
	client  *redis.Client
	key     string
	timeout time.Duration
}

// NewRedisQueue creates a queue on the shared client.
func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client, key: queueKey, timeout: dequeueTimeout}
}

// Enqueue pushes a job.
func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	return nil
}

// Dequeue pops the oldest job.
func (q *RedisQueue) Dequeue(ctx context.Context) (Job, error) {
	res, err := q.client.BRPop(ctx, q.timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return Job{}, ErrQueueEmpty
	}
	if err != nil {
		if ctx.Err() != nil {
			return Job{}, ctx.Err()
		}
		return Job{}, fmt.Errorf("dequeue: %w", err)
	}
	// BRPOP returns [key, value].
	if len(res) != 2 {
		return Job{}, fmt.Errorf("dequeue: unexpected reply of %d elements", len(res))
	}

	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	return job, nil
}

// Len returns the number of queued jobs.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}
