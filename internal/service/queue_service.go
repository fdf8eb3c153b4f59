package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"document-worker-service/internal/entity"
)

var (
	ErrQueueUnavailable = errors.New("queue unavailable")
	ErrMalformedJob     = errors.New("malformed queue entry")
)

// Queue is the reliable at-least-once FIFO handing documents to workers.
// Dequeue atomically moves an entry from the queued list to the in-flight
// list, so a crash between claim and acknowledgement leaves the job
// recoverable through InFlight/RequeueInFlight rather than lost. Recovering
// stuck in-flight jobs is an administrative action, never automatic.
type Queue interface {
	Enqueue(ctx context.Context, job entity.Job) error
	// Dequeue blocks up to timeout and returns (nil, nil) when no job arrived.
	Dequeue(ctx context.Context, timeout time.Duration) (*entity.Job, error)
	Acknowledge(ctx context.Context, job entity.Job) error
	// MarkFailed removes the job from the in-flight list and appends a
	// timestamped record to the failed-jobs list for manual inspection.
	MarkFailed(ctx context.Context, job entity.Job) error

	InFlight(ctx context.Context) ([]entity.Job, error)
	FailedJobs(ctx context.Context) ([]entity.FailedJob, error)
	DeadLetters(ctx context.Context) ([]string, error)
	// RequeueInFlight moves up to max in-flight entries back to the queue;
	// max <= 0 moves all of them.
	RequeueInFlight(ctx context.Context, max int64) (int64, error)
}

type Keys struct {
	Queue      string
	Processing string
	Failed     string
	DeadLetter string
}

// redisQueue implements Queue on Redis lists.
// Dequeue: BRPOPLPUSH queue -> processing (the atomic claim)
// Acknowledge: LREM from processing
// MarkFailed: LREM from processing + LPUSH to failed
// Entries that claim but fail to parse go to the dead-letter list instead of
// being dropped.
type redisQueue struct {
	rdb  *redis.Client
	keys Keys
}

func NewRedisQueue(rdb *redis.Client, keys Keys) Queue {
	return &redisQueue{rdb: rdb, keys: keys}
}

func (q *redisQueue) Enqueue(ctx context.Context, job entity.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.keys.Queue, payload).Err(); err != nil {
		return fmt.Errorf("enqueue: %w: %w", ErrQueueUnavailable, err)
	}
	return nil
}

func (q *redisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*entity.Job, error) {
	payload, err := q.rdb.BRPopLPush(ctx, q.keys.Queue, q.keys.Processing, timeout).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("dequeue: %w: %w", ErrQueueUnavailable, err)
	}

	var job entity.Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil || !job.Dtype.Valid() {
		// Claimed but unreadable: move to dead-letter so it stays inspectable.
		_ = q.rdb.LRem(ctx, q.keys.Processing, 1, payload).Err()
		_ = q.rdb.LPush(ctx, q.keys.DeadLetter, payload).Err()
		return nil, fmt.Errorf("%w: %q", ErrMalformedJob, payload)
	}
	return &job, nil
}

func (q *redisQueue) Acknowledge(ctx context.Context, job entity.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.rdb.LRem(ctx, q.keys.Processing, 1, payload).Err(); err != nil {
		return fmt.Errorf("acknowledge: %w: %w", ErrQueueUnavailable, err)
	}
	return nil
}

func (q *redisQueue) MarkFailed(ctx context.Context, job entity.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	record, err := json.Marshal(entity.FailedJob{Job: job, FailedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal failed job: %w", err)
	}

	if err := q.rdb.LRem(ctx, q.keys.Processing, 1, payload).Err(); err != nil {
		return fmt.Errorf("mark failed: %w: %w", ErrQueueUnavailable, err)
	}
	if err := q.rdb.LPush(ctx, q.keys.Failed, record).Err(); err != nil {
		return fmt.Errorf("mark failed: %w: %w", ErrQueueUnavailable, err)
	}
	return nil
}

func (q *redisQueue) InFlight(ctx context.Context) ([]entity.Job, error) {
	payloads, err := q.rdb.LRange(ctx, q.keys.Processing, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("in-flight: %w: %w", ErrQueueUnavailable, err)
	}

	jobs := make([]entity.Job, 0, len(payloads))
	for _, p := range payloads {
		var job entity.Job
		if err := json.Unmarshal([]byte(p), &job); err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (q *redisQueue) FailedJobs(ctx context.Context) ([]entity.FailedJob, error) {
	payloads, err := q.rdb.LRange(ctx, q.keys.Failed, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed jobs: %w: %w", ErrQueueUnavailable, err)
	}

	failed := make([]entity.FailedJob, 0, len(payloads))
	for _, p := range payloads {
		var fj entity.FailedJob
		if err := json.Unmarshal([]byte(p), &fj); err != nil {
			continue
		}
		failed = append(failed, fj)
	}
	return failed, nil
}

func (q *redisQueue) DeadLetters(ctx context.Context) ([]string, error) {
	payloads, err := q.rdb.LRange(ctx, q.keys.DeadLetter, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("dead letters: %w: %w", ErrQueueUnavailable, err)
	}
	return payloads, nil
}

// RequeueInFlight moves up to max entries (max <= 0 drains everything) from
// the in-flight list back to the queue. Meant to be triggered by an operator
// after a worker crash.
func (q *redisQueue) RequeueInFlight(ctx context.Context, max int64) (int64, error) {
	if max <= 0 {
		max = math.MaxInt64
	}
	var moved int64
	for i := int64(0); i < max; i++ {
		_, err := q.rdb.RPopLPush(ctx, q.keys.Processing, q.keys.Queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				break
			}
			return moved, fmt.Errorf("requeue: %w: %w", ErrQueueUnavailable, err)
		}
		moved++
	}
	return moved, nil
}
