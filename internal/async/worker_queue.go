package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/formpilot/fieldmap/internal/common"
	"github.com/formpilot/fieldmap/internal/entity"
	"github.com/formpilot/fieldmap/internal/repository"

	"github.com/google/uuid"
)

// Runner drives one job to a terminal stage; satisfied by the orchestrator.
type Runner interface {
	Run(ctx context.Context, jobID uuid.UUID) (*entity.ProcessingState, error)
}

// Leaser is the lease slice of the checkpoint store.
type Leaser interface {
	AcquireLease(ctx context.Context, jobID uuid.UUID, owner string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, jobID uuid.UUID, owner string) error
}

var _ Leaser = (repository.Store)(nil)

const maxTransientRetries = 3

// WorkerQueue processes jobs on a fixed pool. Workers handle different jobs
// fully in parallel; the lease keeps two workers off the same job.
type WorkerQueue struct {
	runner  Runner
	leases  Leaser
	logger  *slog.Logger
	workers int
	timeout time.Duration
	lease   time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*WorkerQueue)

func WithWorkers(n int) Option {
	return func(q *WorkerQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *WorkerQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithJobTimeout(d time.Duration) Option {
	return func(q *WorkerQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func WithLeaseTTL(d time.Duration) Option {
	return func(q *WorkerQueue) {
		if d > 0 {
			q.lease = d
		}
	}
}

func NewWorkerQueue(runner Runner, leases Leaser, logger *slog.Logger, opts ...Option) *WorkerQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &WorkerQueue{
		runner:  runner,
		leases:  leases,
		logger:  logger,
		workers: 4,
		timeout: 3 * time.Minute,
		lease:   5 * time.Minute,
		ch:      make(chan Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *WorkerQueue) start() {
	q.once.Do(func() {
		host, _ := os.Hostname()
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			owner := fmt.Sprintf("%s-w%d", host, i)
			go func(owner string) {
				defer q.wg.Done()
				q.logger.Info("worker.started", "owner", owner)
				for job := range q.ch {
					q.process(owner, job)
				}
				q.logger.Info("worker.stopped", "owner", owner)
			}(owner)
		}
	})
}

func (q *WorkerQueue) process(owner string, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	ok, err := q.leases.AcquireLease(ctx, job.JobID, owner, q.lease)
	if errors.Is(err, common.ErrLeaseHeld) || (err == nil && !ok) {
		// Another worker holds the lease; it will finish the job.
		q.logger.Debug("worker.lease_busy", "job_id", job.JobID, "owner", owner)
		return
	}
	if err != nil {
		q.retryLater(job, err)
		return
	}
	defer func() {
		relCtx, relCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer relCancel()
		if err := q.leases.ReleaseLease(relCtx, job.JobID, owner); err != nil {
			q.logger.Warn("worker.lease_release_failed", "job_id", job.JobID, "err", err)
		}
	}()

	state, err := q.runner.Run(ctx, job.JobID)
	if err != nil {
		// Transient infrastructure failures are retried with backoff;
		// the pipeline's own stage logic never sees them.
		if errors.Is(err, common.ErrStoreUnavailable) || errors.Is(err, context.DeadlineExceeded) {
			q.retryLater(job, err)
			return
		}
		q.logger.Error("worker.job_failed", "job_id", job.JobID, "err", err)
		return
	}
	q.logger.Info("worker.job_done",
		"job_id", job.JobID, "status", state.Status, "attempt", state.Attempt)
}

// retryLater re-enqueues after exponential backoff, bounded by
// maxTransientRetries.
func (q *WorkerQueue) retryLater(job Job, cause error) {
	if job.Retries >= maxTransientRetries {
		q.logger.Error("worker.retries_exhausted", "job_id", job.JobID, "err", cause)
		return
	}
	job.Retries++
	delay := time.Duration(1<<job.Retries) * time.Second
	q.logger.Warn("worker.retry_scheduled",
		"job_id", job.JobID, "retry", job.Retries, "delay", delay, "err", cause)
	time.AfterFunc(delay, func() {
		if err := q.Enqueue(context.Background(), job); err != nil {
			q.logger.Error("worker.requeue_failed", "job_id", job.JobID, "err", err)
		}
	})
}

// Enqueue adds a job, blocking for backpressure when the buffer is full.
func (q *WorkerQueue) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("queue.enqueue_after_shutdown", "job_id", job.JobID)
		return errors.New("queue is shut down")
	}
	select {
	case q.ch <- job:
	default:
		q.logger.Warn("queue.full", "job_id", job.JobID)
		q.ch <- job
	}
	return nil
}

// Shutdown stops intake and waits for in-flight jobs, bounded by ctx.
func (q *WorkerQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.logger.Info("queue.drained")
	case <-ctx.Done():
		q.logger.Warn("queue.shutdown_timeout")
	}
}
