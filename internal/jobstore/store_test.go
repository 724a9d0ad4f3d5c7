package jobstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/sprintreport/internal/domain"
)

type memPersister struct {
	mu    sync.Mutex
	saved map[string]*domain.Job
	order []string
}

func newMemPersister() *memPersister {
	return &memPersister{saved: make(map[string]*domain.Job)}
}

func (p *memPersister) Save(_ context.Context, job *domain.Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved[job.ID] = job.Clone()
	p.order = append(p.order, fmt.Sprintf("%s:%s", job.ID, job.Status))
	return nil
}

func (p *memPersister) LoadAll(_ context.Context) ([]*domain.Job, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*domain.Job
	for _, j := range p.saved {
		out = append(out, j.Clone())
	}
	return out, nil
}

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func advance(status domain.JobStatus, progress int) func(*domain.Job) error {
	return func(j *domain.Job) error {
		j.Status = status
		j.Progress = progress
		return nil
	}
}

func fail(kind domain.ErrorKind) func(*domain.Job) error {
	return func(j *domain.Job) error {
		j.Status = domain.JobStatusFailed
		j.Error = &domain.JobError{Kind: kind, Message: "boom"}
		return nil
	}
}

func TestCreateAndGet(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, domain.NewJob("job-1", "2239", 38, t0)))

	got, err := s.Get("job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusQueued, got.Status)

	got.Status = domain.JobStatusCompleted
	again, err := s.Get("job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusQueued, again.Status, "Get returns a copy")

	_, err = s.Get("nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateRejectsActiveSprint(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, domain.NewJob("job-1", "2239", 38, t0)))

	err := s.Create(ctx, domain.NewJob("job-2", "2239", 38, t0))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	var active *ActiveJobError
	require.True(t, errors.As(err, &active))
	assert.Equal(t, "job-1", active.JobID)

	_, err = s.Update(ctx, "job-1", fail(domain.KindUpstreamPermanent))
	require.NoError(t, err)

	require.NoError(t, s.Create(ctx, domain.NewJob("job-2", "2239", 38, t0)))
	id, ok := s.ActiveJobID("2239")
	assert.True(t, ok)
	assert.Equal(t, "job-2", id)
}

func TestCreateRejectsDuplicateID(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, domain.NewJob("job-1", "2239", 38, t0)))
	_, err := s.Update(ctx, "job-1", fail(domain.KindInternal))
	require.NoError(t, err)

	err = s.Create(ctx, domain.NewJob("job-1", "2240", 38, t0))
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	_, ok := s.ActiveJobID("2240")
	assert.False(t, ok, "reservation is released on ID collision")
}

func TestUpdateEnforcesStateMachine(t *testing.T) {
	s := New(WithClock(func() time.Time { return t0.Add(time.Minute) }))
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, domain.NewJob("job-1", "2239", 38, t0)))

	_, err := s.Update(ctx, "job-1", advance(domain.JobStatusRendering, 80))
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	job, err := s.Update(ctx, "job-1", advance(domain.JobStatusAggregating, 25))
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Minute), job.UpdatedAt)

	_, err = s.Update(ctx, "job-1", func(j *domain.Job) error { j.Progress = 10; return nil })
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	got, _ := s.Get("job-1")
	assert.Equal(t, 25, got.Progress, "rejected update leaves the job unchanged")

	sentinel := errors.New("abort")
	_, err = s.Update(ctx, "job-1", func(j *domain.Job) error { j.Progress = 40; return sentinel })
	assert.ErrorIs(t, err, sentinel)
	got, _ = s.Get("job-1")
	assert.Equal(t, 25, got.Progress)

	_, err = s.Update(ctx, "missing", advance(domain.JobStatusAggregating, 10))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTerminalJobIsFrozen(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, domain.NewJob("job-1", "2239", 38, t0)))

	job, err := s.Update(ctx, "job-1", fail(domain.KindRender))
	require.NoError(t, err)
	require.NotNil(t, job.FinishedAt)

	_, err = s.Update(ctx, "job-1", func(j *domain.Job) error { return nil })
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestTransitionHookAndPersister(t *testing.T) {
	p := newMemPersister()
	var mu sync.Mutex
	var seen []string
	s := New(WithPersister(p), WithTransitionHook(func(prev, next *domain.Job) {
		mu.Lock()
		seen = append(seen, fmt.Sprintf("%s->%s", prev.Status, next.Status))
		mu.Unlock()
	}))
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, domain.NewJob("job-1", "2239", 38, t0)))
	_, err := s.Update(ctx, "job-1", advance(domain.JobStatusAggregating, 10))
	require.NoError(t, err)
	_, err = s.Update(ctx, "job-1", advance(domain.JobStatusAggregating, 25))
	require.NoError(t, err)

	assert.Equal(t, []string{"queued->aggregating"}, seen)
	assert.Equal(t, []string{"job-1:queued", "job-1:aggregating", "job-1:aggregating"}, p.order)
	assert.Equal(t, 25, p.saved["job-1"].Progress)
}

func TestRestoreRebuildsActiveIndex(t *testing.T) {
	p := newMemPersister()
	ctx := context.Background()

	running := domain.NewJob("job-1", "2239", 38, t0)
	running.Status, running.Progress = domain.JobStatusAwaitingApproval, 90
	done := domain.NewJob("job-2", "2240", 38, t0.Add(time.Minute))
	done.Status, done.Progress = domain.JobStatusCompleted, 100
	require.NoError(t, p.Save(ctx, running))
	require.NoError(t, p.Save(ctx, done))

	s := New(WithPersister(p))
	jobs, err := s.Restore(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job-1", jobs[0].ID)

	assert.ErrorIs(t, s.Create(ctx, domain.NewJob("job-3", "2239", 38, t0)), domain.ErrAlreadyExists)
	assert.NoError(t, s.Create(ctx, domain.NewJob("job-4", "2240", 38, t0)))
}

func TestListFiltersAndOrders(t *testing.T) {
	s := New()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		job := domain.NewJob(fmt.Sprintf("job-%d", i), fmt.Sprintf("%d", 100+i), 38, t0.Add(time.Duration(i)*time.Minute))
		require.NoError(t, s.Create(ctx, job))
	}
	_, err := s.Update(ctx, "job-3", advance(domain.JobStatusAggregating, 10))
	require.NoError(t, err)

	all := s.List(ListOptions{})
	require.Len(t, all, 5)
	assert.Equal(t, "job-4", all[0].ID)

	agg := s.List(ListOptions{Status: domain.JobStatusAggregating})
	require.Len(t, agg, 1)
	assert.Equal(t, "job-3", agg[0].ID)

	assert.Len(t, s.List(ListOptions{Limit: 2}), 2)
	assert.Len(t, s.List(ListOptions{SprintRef: "101"}), 1)
}

func TestConcurrentSubmissionsForOneSprint(t *testing.T) {
	s := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.Create(ctx, domain.NewJob(fmt.Sprintf("job-%d", i), "2239", 38, t0)); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, created)
}

func TestProgressNeverDecreasesUnderConcurrency(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, domain.NewJob("job-1", "2239", 38, t0)))
	_, err := s.Update(ctx, "job-1", advance(domain.JobStatusAggregating, 10))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			_, _ = s.Update(ctx, "job-1", func(j *domain.Job) error { j.Progress = p; return nil })
		}(10 + i)
	}

	last := 0
	for i := 0; i < 200; i++ {
		job, err := s.Get("job-1")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, job.Progress, last)
		last = job.Progress
	}
	wg.Wait()
}
