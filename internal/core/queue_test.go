package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/orrn/printd/internal/config"
	"github.com/orrn/printd/internal/logging"
)

type runnerFunc func(ctx context.Context, jobID string, req PrintRequest)

func (f runnerFunc) Run(ctx context.Context, jobID string, req PrintRequest) { f(ctx, jobID, req) }

func finishJob(r *Registry, id string) {
	_, _ = r.Update(id, func(j *Job) error { j.Status = JobStatusRunning; return nil })
	_, _ = r.Update(id, func(j *Job) error {
		j.Status = JobStatusDone
		j.Result = &Result{OK: boolPtr(true), Outcome: OutcomeCompleted}
		return nil
	})
}

func TestQueueSubmitRejectsWhenFull(t *testing.T) {
	reg := NewRegistry()
	q := NewQueue(reg, runnerFunc(func(context.Context, string, PrintRequest) {}), &config.QueueConfig{WorkerCount: 1, QueueSize: 1}, logging.Discard())

	job, err := q.Submit(PrintRequest{Path: "a.pdf"})
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if job.Status != JobStatusQueued {
		t.Fatalf("expected queued, got %s", job.Status)
	}

	if _, err := q.Submit(PrintRequest{Path: "b.pdf"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if stats := reg.Stats(); stats.Total != 1 {
		t.Fatalf("rejected submission must not create a record, got %+v", stats)
	}
}

func TestQueueRunsJobs(t *testing.T) {
	reg := NewRegistry()
	var mu sync.Mutex
	done := make(chan string, 3)
	ran := make(map[string]string)

	q := NewQueue(reg, runnerFunc(func(ctx context.Context, id string, req PrintRequest) {
		mu.Lock()
		ran[id] = req.Path
		mu.Unlock()
		finishJob(reg, id)
		done <- id
	}), &config.QueueConfig{WorkerCount: 2, QueueSize: 10}, logging.Discard())
	q.Start(context.Background())
	defer q.Stop()

	var ids []string
	for _, path := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		job, err := q.Submit(PrintRequest{Path: path})
		if err != nil {
			t.Fatalf("submit %s: %v", path, err)
		}
		ids = append(ids, job.ID)
	}

	for range ids {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for workers")
		}
	}

	for _, id := range ids {
		job, _ := reg.Get(id)
		if job.Status != JobStatusDone {
			t.Fatalf("job %s not done: %s", id, job.Status)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if len(ran) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(ran))
	}
}

func TestQueueStopCancelsAndAbandons(t *testing.T) {
	reg := NewRegistry()
	started := make(chan struct{})
	var once sync.Once
	var runs int32

	q := NewQueue(reg, runnerFunc(func(ctx context.Context, id string, req PrintRequest) {
		atomic.AddInt32(&runs, 1)
		once.Do(func() { close(started) })
		<-ctx.Done()
		_, _ = reg.Update(id, func(j *Job) error { j.Status = JobStatusRunning; return nil })
		_, _ = reg.Update(id, func(j *Job) error {
			j.Status = JobStatusFailed
			j.Result = &Result{OK: boolPtr(false), Outcome: OutcomeException, Error: ctx.Err().Error()}
			return nil
		})
	}), &config.QueueConfig{WorkerCount: 1, QueueSize: 5}, logging.Discard())
	q.Start(context.Background())

	first, err := q.Submit(PrintRequest{Path: "a.pdf"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never started")
	}
	var buffered []string
	for _, path := range []string{"b.pdf", "c.pdf", "d.pdf", "e.pdf"} {
		job, err := q.Submit(PrintRequest{Path: path})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		buffered = append(buffered, job.ID)
	}

	q.Stop()

	if n := atomic.LoadInt32(&runs); n != 1 {
		t.Fatalf("only the running job may reach the runner, got %d runs", n)
	}
	job, _ := reg.Get(first.ID)
	if job.Status != JobStatusFailed {
		t.Fatalf("running job should be failed after stop, got %s", job.Status)
	}
	for _, id := range buffered {
		job, _ := reg.Get(id)
		if job.Status != JobStatusFailed || job.Result.Outcome != OutcomeException {
			t.Fatalf("buffered job %s should be abandoned, got %s %+v", id, job.Status, job.Result)
		}
	}

	if _, err := q.Submit(PrintRequest{Path: "f.pdf"}); !errors.Is(err, ErrQueueStopped) {
		t.Fatalf("expected ErrQueueStopped, got %v", err)
	}
}
