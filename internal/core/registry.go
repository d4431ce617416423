package core

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry holds every job of the process lifetime. Records are replaced
// wholesale under the lock, so readers only ever see complete copies.
type Registry struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	now   func() time.Time
	newID func() string
}

func NewRegistry() *Registry {
	return &Registry{
		jobs:  make(map[string]*Job),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Create stores a queued job for req and returns its id.
func (r *Registry) Create(req PrintRequest) string {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	for r.jobs[id] != nil {
		id = r.newID()
	}

	job := &Job{
		ID:        id,
		Status:    JobStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
		Request:   req,
	}
	job.Request = job.clone().Request
	r.jobs[id] = job
	return id
}

func (r *Registry) Get(id string) (Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job.clone(), nil
}

// Update applies mutate to a copy of the job and commits it only if the
// result is a legal transition. Updates on the same id are serialized.
func (r *Registry) Update(id string, mutate func(*Job) error) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if current.Status.Terminal() {
		return current.clone(), fmt.Errorf("%w: %s is %s", ErrJobTerminal, id, current.Status)
	}

	next := current.clone()
	if err := mutate(&next); err != nil {
		return current.clone(), err
	}

	if err := checkTransition(current, &next); err != nil {
		return current.clone(), err
	}

	next.UpdatedAt = r.now()
	stored := next.clone()
	r.jobs[id] = &stored
	return next.clone(), nil
}

func checkTransition(prev, next *Job) error {
	if next.ID != prev.ID || !next.CreatedAt.Equal(prev.CreatedAt) {
		return fmt.Errorf("%w: identity fields are immutable", ErrInvalidTransition)
	}
	if next.Status.rank() < 0 {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next.Status)
	}
	if next.Status.rank() < prev.Status.rank() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev.Status, next.Status)
	}
	if next.Status.Terminal() != (next.Result != nil) {
		return fmt.Errorf("%w: result must be set exactly when status is done or failed", ErrInvalidTransition)
	}
	return nil
}

// List returns jobs newest first, optionally filtered by status.
func (r *Registry) List(status JobStatus, limit int) []Job {
	r.mu.RLock()
	jobs := make([]Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		if status != "" && job.Status != status {
			continue
		}
		jobs = append(jobs, job.clone())
	}
	r.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs
}

type RegistryStats struct {
	Queued  int `json:"queued"`
	Running int `json:"running"`
	Done    int `json:"done"`
	Failed  int `json:"failed"`
	Total   int `json:"total"`
}

func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats RegistryStats
	for _, job := range r.jobs {
		stats.Total++
		switch job.Status {
		case JobStatusQueued:
			stats.Queued++
		case JobStatusRunning:
			stats.Running++
		case JobStatusDone:
			stats.Done++
		case JobStatusFailed:
			stats.Failed++
		}
	}
	return stats
}
