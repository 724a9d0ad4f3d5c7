// Package jobstore keeps the authoritative table of report jobs.
//
// Access is serialized per job identifier through lock stripes; distinct
// jobs never contend on a global lock. The only cross-job state is the
// index of active jobs per sprint, which enforces one active job per sprint.
package jobstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/timmy/sprintreport/internal/domain"
	"github.com/timmy/sprintreport/internal/logger"
)

const stripeCount = 32

// Persister mirrors job snapshots to durable storage.
type Persister interface {
	Save(ctx context.Context, job *domain.Job) error
	LoadAll(ctx context.Context) ([]*domain.Job, error)
}

// TransitionHook observes a committed status change. It runs under the
// job's lock and must not call back into the store.
type TransitionHook func(prev, next *domain.Job)

type stripe struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
}

// Store is a concurrency-safe job table.
type Store struct {
	stripes [stripeCount]stripe

	// activeMu guards active. Lock order: stripe before activeMu.
	activeMu sync.Mutex
	active   map[string]string // sprintRef -> job ID

	persister Persister
	hooks     []TransitionHook
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithPersister mirrors every committed write to p.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithTransitionHook registers a hook called after each status change.
func WithTransitionHook(h TransitionHook) Option {
	return func(s *Store) { s.hooks = append(s.hooks, h) }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		active: make(map[string]string),
		now:    time.Now,
	}
	for i := range s.stripes {
		s.stripes[i].jobs = make(map[string]*domain.Job)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) stripeFor(id string) *stripe {
	return &s.stripes[xxhash.Sum64String(id)%stripeCount]
}

// Create inserts a new job. It fails with domain.ErrAlreadyExists when the
// ID is taken or another job for the same sprint is still active.
// Parameters:
//   - ctx: context passed to the persister.
//   - job: job in its initial state; the store keeps a copy.
//
// Returns:
//   - error: wraps domain.ErrAlreadyExists on conflict.
func (s *Store) Create(ctx context.Context, job *domain.Job) error {
	s.activeMu.Lock()
	if existing, ok := s.active[job.SprintRef]; ok {
		s.activeMu.Unlock()
		return &ActiveJobError{SprintRef: job.SprintRef, JobID: existing}
	}
	s.active[job.SprintRef] = job.ID
	s.activeMu.Unlock()

	st := s.stripeFor(job.ID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.jobs[job.ID]; ok {
		s.activeMu.Lock()
		if s.active[job.SprintRef] == job.ID {
			delete(s.active, job.SprintRef)
		}
		s.activeMu.Unlock()
		return fmt.Errorf("%w: job %s", domain.ErrAlreadyExists, job.ID)
	}

	stored := job.Clone()
	st.jobs[job.ID] = stored
	s.persist(ctx, stored)
	return nil
}

// Get returns a copy of the job.
func (s *Store) Get(id string) (*domain.Job, error) {
	st := s.stripeFor(id)
	st.mu.RLock()
	defer st.mu.RUnlock()

	job, ok := st.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}
	return job.Clone(), nil
}

// Update applies fn to a copy of the job and commits it when the result is
// a legal successor of the current state.
// Parameters:
//   - ctx: context passed to the persister.
//   - id: job identifier.
//   - fn: mutation; returning an error aborts without writing.
//
// Returns:
//   - *domain.Job: copy of the committed job.
//   - error: domain.ErrNotFound, fn's error, or a wrapped domain.ErrInvalidTransition.
func (s *Store) Update(ctx context.Context, id string, fn func(job *domain.Job) error) (*domain.Job, error) {
	st := s.stripeFor(id)
	st.mu.Lock()
	defer st.mu.Unlock()

	prev, ok := st.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}

	next := prev.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := domain.CheckUpdate(prev, next); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	next.UpdatedAt = now
	if next.Status.IsTerminal() {
		next.FinishedAt = &now
		s.activeMu.Lock()
		if s.active[next.SprintRef] == next.ID {
			delete(s.active, next.SprintRef)
		}
		s.activeMu.Unlock()
	}

	st.jobs[id] = next
	s.persist(ctx, next)
	if next.Status != prev.Status {
		for _, h := range s.hooks {
			h(prev, next)
		}
	}
	return next.Clone(), nil
}

// ListOptions filters List results.
type ListOptions struct {
	Status    domain.JobStatus
	SprintRef string
	Limit     int
}

// List returns copies of matching jobs, newest first.
func (s *Store) List(opts ListOptions) []*domain.Job {
	var out []*domain.Job
	for i := range s.stripes {
		st := &s.stripes[i]
		st.mu.RLock()
		for _, job := range st.jobs {
			if opts.Status != "" && job.Status != opts.Status {
				continue
			}
			if opts.SprintRef != "" && job.SprintRef != opts.SprintRef {
				continue
			}
			out = append(out, job.Clone())
		}
		st.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}

// ActiveJobID returns the ID of the non-terminal job for a sprint.
func (s *Store) ActiveJobID(sprintRef string) (string, bool) {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	id, ok := s.active[sprintRef]
	return id, ok
}

// Restore loads persisted jobs into an empty store and rebuilds the active
// index. It returns copies of the loaded jobs, oldest first.
func (s *Store) Restore(ctx context.Context) ([]*domain.Job, error) {
	if s.persister == nil {
		return nil, nil
	}
	jobs, err := s.persister.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load persisted jobs: %w", err)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.Before(jobs[j].CreatedAt) })

	out := make([]*domain.Job, 0, len(jobs))
	for _, job := range jobs {
		st := s.stripeFor(job.ID)
		st.mu.Lock()
		st.jobs[job.ID] = job.Clone()
		st.mu.Unlock()

		if !job.Status.IsTerminal() {
			s.activeMu.Lock()
			s.active[job.SprintRef] = job.ID
			s.activeMu.Unlock()
		}
		out = append(out, job.Clone())
	}
	logger.Info("Restored %d jobs from persistent storage", len(out))
	return out, nil
}

func (s *Store) persist(ctx context.Context, job *domain.Job) {
	if s.persister == nil {
		return
	}
	if err := s.persister.Save(context.WithoutCancel(ctx), job); err != nil {
		logger.ForJob(job.ID).WithField(logger.FieldStatus, string(job.Status)).Error(ctx, "Failed to persist job: %v", err)
	}
}

// ActiveJobError reports a submission for a sprint that already has an active job.
type ActiveJobError struct {
	SprintRef string
	JobID     string
}

func (e *ActiveJobError) Error() string {
	return fmt.Sprintf("sprint %s already has active job %s", e.SprintRef, e.JobID)
}

// Unwrap makes errors.Is(err, domain.ErrAlreadyExists) hold.
func (e *ActiveJobError) Unwrap() error { return domain.ErrAlreadyExists }
