package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"document-worker-service/internal/entity"
	"document-worker-service/internal/service"
)

type PoolConfig struct {
	Workers      int
	ClaimTimeout time.Duration
	IdleDelay    time.Duration
	// JobTimeout bounds one pipeline run; the deadline flows through the
	// whole stage chain via the job context.
	JobTimeout time.Duration
}

// Pool runs a claim loop feeding a fixed set of workers. Each job is owned
// by exactly one worker from claim to acknowledgement. The pool stops when
// its context is cancelled.
type Pool struct {
	queue     service.Queue
	processor *Processor
	cfg       PoolConfig
}

func NewPool(queue service.Queue, processor *Processor, cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.ClaimTimeout <= 0 {
		cfg.ClaimTimeout = 5 * time.Second
	}
	if cfg.IdleDelay <= 0 {
		cfg.IdleDelay = time.Second
	}
	return &Pool{queue: queue, processor: processor, cfg: cfg}
}

func (p *Pool) Run(ctx context.Context) {
	log.Printf("[worker] pool started workers=%d", p.cfg.Workers)

	jobCh := make(chan entity.Job)

	for i := 0; i < p.cfg.Workers; i++ {
		go func(n int) {
			for job := range jobCh {
				p.handle(ctx, n, job)
			}
		}(i + 1)
	}

	for {
		select {
		case <-ctx.Done():
			close(jobCh)
			log.Println("[worker] pool stopped")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx, p.cfg.ClaimTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			// Malformed entries are already dead-lettered; connectivity
			// errors are retried on the next cycle.
			log.Printf("[worker] dequeue error=%v", err)
			if errors.Is(err, service.ErrQueueUnavailable) {
				sleep(ctx, p.cfg.IdleDelay)
			}
			continue
		}
		if job == nil {
			// queue empty, fixed idle delay before the next attempt
			sleep(ctx, p.cfg.IdleDelay)
			continue
		}

		select {
		case jobCh <- *job:
		case <-ctx.Done():
			// The claimed job stays in-flight and is recoverable by an
			// administrative requeue.
			close(jobCh)
			log.Println("[worker] pool stopped")
			return
		}
	}
}

func (p *Pool) handle(ctx context.Context, n int, job entity.Job) {
	jobCtx := ctx
	cancel := func() {}
	if p.cfg.JobTimeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, p.cfg.JobTimeout)
	}
	err := p.processor.Process(jobCtx, job)
	cancel()

	if err != nil {
		log.Printf("[worker-%d] process doc_id=%s error=%v", n, job.DocumentID, err)
		if failErr := p.queue.MarkFailed(ctx, job); failErr != nil {
			log.Printf("[worker-%d] mark failed doc_id=%s error=%v", n, job.DocumentID, failErr)
		}
		return
	}

	if ackErr := p.queue.Acknowledge(ctx, job); ackErr != nil {
		// Job stays in-flight; at-least-once delivery covers the rest.
		log.Printf("[worker-%d] acknowledge doc_id=%s error=%v", n, job.DocumentID, ackErr)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
