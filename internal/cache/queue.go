package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SyncJob asks a worker to re-sync one playlist's catalog.
type SyncJob struct {
	JobID      string    `json:"job_id"`
	PlaylistID int64     `json:"playlist_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewSyncJob returns a job with a fresh id.
func NewSyncJob(playlistID int64) SyncJob {
	return SyncJob{JobID: uuid.NewString(), PlaylistID: playlistID, EnqueuedAt: time.Now().UTC()}
}

// DefaultQueue is the Redis list key used for the sync job queue.
const DefaultQueue = "jobs:sync"

// Enqueue pushes a job onto the left side of a Redis list.
func Enqueue(ctx context.Context, r *Redis, queue string, job SyncJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue marshal: %w", err)
	}
	if err := r.client.LPush(ctx, r.key(queue), data).Err(); err != nil {
		return fmt.Errorf("queue push: %w", err)
	}
	return nil
}

// Dequeue blocks until a job is available on the right side of the list
// or the timeout expires. When the timeout elapses without a job,
// (nil, nil) is returned so the caller can loop and check for shutdown.
func Dequeue(ctx context.Context, r *Redis, queue string, timeout time.Duration) (*SyncJob, error) {
	result, err := r.client.BRPop(ctx, timeout, r.key(queue)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		// Context cancelled on shutdown.
		if ctx.Err() != nil {
			return nil, nil
		}
		return nil, fmt.Errorf("queue dequeue: %w", err)
	}
	// BRPop returns [key, value].
	if len(result) < 2 {
		return nil, nil
	}
	var job SyncJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("queue unmarshal: %w", err)
	}
	return &job, nil
}

// Queue binds a Redis client to one list key.
type Queue struct {
	r    *Redis
	name string
}

// NewQueue returns a Queue on name, or DefaultQueue when name is empty.
func NewQueue(r *Redis, name string) *Queue {
	if name == "" {
		name = DefaultQueue
	}
	return &Queue{r: r, name: name}
}

// Enqueue pushes job.
func (q *Queue) Enqueue(ctx context.Context, job SyncJob) error {
	return Enqueue(ctx, q.r, q.name, job)
}

// Dequeue pops the oldest job, waiting up to timeout.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*SyncJob, error) {
	return Dequeue(ctx, q.r, q.name, timeout)
}

// LocalQueue is an in-process stand-in for Queue when Redis is not configured.
type LocalQueue struct {
	ch chan SyncJob
}

// NewLocalQueue returns a LocalQueue holding up to size pending jobs.
func NewLocalQueue(size int) *LocalQueue {
	if size <= 0 {
		size = 64
	}
	return &LocalQueue{ch: make(chan SyncJob, size)}
}

// ErrQueueFull is returned by LocalQueue.Enqueue when the buffer is full.
var ErrQueueFull = errors.New("queue is full")

// Enqueue adds job without blocking.
func (q *LocalQueue) Enqueue(_ context.Context, job SyncJob) error {
	select {
	case q.ch <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue waits up to timeout for a job. Like Queue.Dequeue it returns
// (nil, nil) on timeout or cancellation.
func (q *LocalQueue) Dequeue(ctx context.Context, timeout time.Duration) (*SyncJob, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case job := <-q.ch:
		return &job, nil
	case <-t.C:
		return nil, nil
	case <-ctx.Done():
		return nil, nil
	}
}
