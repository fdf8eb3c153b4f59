package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"document-worker-service/internal/entity"
)

// MemoryQueue is an in-process Queue with the same observable semantics as
// the Redis implementation: FIFO order, an explicit in-flight set, a
// timestamped failed-jobs list and a dead-letter list. Used by tests and by
// single-process runs that have no Redis at hand.
type MemoryQueue struct {
	mu         sync.Mutex
	queued     []string
	inFlight   []string
	failed     []entity.FailedJob
	deadLetter []string

	notify chan struct{}
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{notify: make(chan struct{}, 1)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job entity.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	q.EnqueueRaw(string(payload))
	return nil
}

// EnqueueRaw appends an arbitrary payload to the queue tail. Lets tests
// exercise the dead-letter path with entries no producer of ours would write.
func (q *MemoryQueue) EnqueueRaw(payload string) {
	q.mu.Lock()
	q.queued = append(q.queued, payload)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (*entity.Job, error) {
	deadline := time.Now().Add(timeout)

	for {
		if payload, ok := q.claim(); ok {
			var job entity.Job
			if err := json.Unmarshal([]byte(payload), &job); err != nil || !job.Dtype.Valid() {
				q.deadLetterPayload(payload)
				return nil, fmt.Errorf("%w: %q", ErrMalformedJob, payload)
			}
			return &job, nil
		}

		remain := time.Until(deadline)
		if remain <= 0 {
			return nil, nil
		}

		timer := time.NewTimer(remain)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-q.notify:
			timer.Stop()
		}
	}
}

// claim atomically moves the head of the queue to the in-flight set.
func (q *MemoryQueue) claim() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.queued) == 0 {
		return "", false
	}
	payload := q.queued[0]
	q.queued = q.queued[1:]
	q.inFlight = append(q.inFlight, payload)
	return payload, true
}

func (q *MemoryQueue) deadLetterPayload(payload string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeInFlight(payload)
	q.deadLetter = append(q.deadLetter, payload)
}

// removeInFlight removes the first in-flight entry equal to payload.
// Caller holds the lock.
func (q *MemoryQueue) removeInFlight(payload string) bool {
	for i, p := range q.inFlight {
		if p == payload {
			q.inFlight = append(q.inFlight[:i], q.inFlight[i+1:]...)
			return true
		}
	}
	return false
}

func (q *MemoryQueue) Acknowledge(ctx context.Context, job entity.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeInFlight(string(payload))
	return nil
}

func (q *MemoryQueue) MarkFailed(ctx context.Context, job entity.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeInFlight(string(payload))
	q.failed = append(q.failed, entity.FailedJob{Job: job, FailedAt: time.Now().UTC()})
	return nil
}

func (q *MemoryQueue) InFlight(ctx context.Context) ([]entity.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs := make([]entity.Job, 0, len(q.inFlight))
	for _, p := range q.inFlight {
		var job entity.Job
		if err := json.Unmarshal([]byte(p), &job); err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (q *MemoryQueue) FailedJobs(ctx context.Context) ([]entity.FailedJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]entity.FailedJob(nil), q.failed...), nil
}

func (q *MemoryQueue) DeadLetters(ctx context.Context) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.deadLetter...), nil
}

func (q *MemoryQueue) RequeueInFlight(ctx context.Context, max int64) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if max <= 0 {
		max = math.MaxInt64
	}
	var moved int64
	for moved < max && len(q.inFlight) > 0 {
		last := q.inFlight[len(q.inFlight)-1]
		q.inFlight = q.inFlight[:len(q.inFlight)-1]
		q.queued = append(q.queued, last)
		moved++
	}

	if moved > 0 {
		select {
		case q.notify <- struct{}{}:
		default:
		}
	}
	return moved, nil
}
