package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/orrn/printd/internal/config"
	"github.com/orrn/printd/internal/metrics"
)

// JobRunner executes one job to completion.
type JobRunner interface {
	Run(ctx context.Context, jobID string, req PrintRequest)
}

// Queue accepts print jobs and runs them on a fixed set of workers. A full
// buffer is reported to the submitter instead of blocking it.
type Queue struct {
	registry *Registry
	runner   JobRunner
	logger   *slog.Logger
	workers  int
	jobCh    chan string
	stopCh   chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
	stopped  bool
}

func NewQueue(registry *Registry, runner JobRunner, cfg *config.QueueConfig, logger *slog.Logger) *Queue {
	if cfg == nil {
		cfg = &config.QueueConfig{
			WorkerCount: 4,
			QueueSize:   100,
		}
	}
	workers := cfg.WorkerCount
	if workers < 1 {
		workers = 1
	}
	size := cfg.QueueSize
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Queue{
		registry: registry,
		runner:   runner,
		logger:   logger.With("component", "queue"),
		workers:  workers,
		jobCh:    make(chan string, size),
		stopCh:   make(chan struct{}),
	}
}

func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running || q.stopped {
		return
	}
	q.running = true
	q.ctx, q.cancel = context.WithCancel(ctx)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.logger.Info("print queue started", "workers", q.workers, "capacity", cap(q.jobCh))
}

// Stop refuses new submissions, interrupts running jobs and waits for the
// workers. Jobs still buffered are marked failed.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	wasRunning := q.running
	q.running = false
	q.mu.Unlock()

	close(q.stopCh)
	if wasRunning {
		q.cancel()
	}
	q.wg.Wait()

	for {
		select {
		case id := <-q.jobCh:
			q.abandon(id)
		default:
			q.logger.Info("print queue stopped")
			return
		}
	}
}

// Submit records a queued job and hands it to the workers.
func (q *Queue) Submit(req PrintRequest) (Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return Job{}, ErrQueueStopped
	}
	// Only Submit sends, under q.mu, so a free slot here cannot vanish
	// before the send below.
	if len(q.jobCh) >= cap(q.jobCh) {
		metrics.JobsRejected.Inc()
		return Job{}, fmt.Errorf("%w: %d jobs waiting", ErrQueueFull, len(q.jobCh))
	}

	id := q.registry.Create(req)
	q.jobCh <- id
	metrics.JobsSubmitted.Inc()

	job, err := q.registry.Get(id)
	if err != nil {
		return Job{}, err
	}
	q.logger.Info("print job queued", "job_id", id, "path", req.Path, "printer", req.Printer)
	return job, nil
}

// Pending returns the number of jobs waiting for a worker.
func (q *Queue) Pending() int {
	return len(q.jobCh)
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()

	for {
		select {
		case <-q.stopCh:
			return
		case jobID := <-q.jobCh:
			q.processJob(id, jobID)
		}
	}
}

func (q *Queue) processJob(worker int, jobID string) {
	job, err := q.registry.Get(jobID)
	if err != nil {
		q.logger.Error("worker: failed to get job", "worker", worker, "job_id", jobID, "error", err)
		return
	}
	if job.Status != JobStatusQueued {
		return
	}
	// select picks among ready cases at random, so a job can still be
	// received after Stop closed stopCh.
	if q.stopping() {
		q.abandon(jobID)
		return
	}
	q.runner.Run(q.ctx, jobID, job.Request)
}

func (q *Queue) stopping() bool {
	select {
	case <-q.stopCh:
		return true
	default:
		return false
	}
}

func (q *Queue) abandon(jobID string) {
	_, err := q.registry.Update(jobID, func(j *Job) error {
		j.Status = JobStatusFailed
		j.Result = &Result{
			OK:      boolPtr(false),
			Outcome: OutcomeException,
			Error:   "service shutting down before the job started",
		}
		return nil
	})
	if err != nil {
		q.logger.Warn("failed to abandon job", "job_id", jobID, "error", err)
	}
}
