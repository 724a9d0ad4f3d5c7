package approval

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/sprintreport/internal/domain"
	"github.com/timmy/sprintreport/internal/jobstore"
)

// parkedJob creates a job and walks it to AwaitingApproval with the gate armed.
func parkedJob(t *testing.T, store *jobstore.Store, gate *Gate, id string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, domain.NewJob(id, "sprint-"+id, 38, time.Now())))
	steps := []struct {
		status   domain.JobStatus
		progress int
	}{
		{domain.JobStatusAggregating, domain.ProgressAggregationStart},
		{domain.JobStatusSynthesizing, domain.ProgressSynthesisStart},
		{domain.JobStatusRendering, domain.ProgressRenderingStart},
	}
	for _, st := range steps {
		_, err := store.Update(ctx, id, func(j *domain.Job) error {
			j.Status, j.Progress = st.status, st.progress
			return nil
		})
		require.NoError(t, err)
	}
	gate.Arm(id)
	_, err := store.Update(ctx, id, func(j *domain.Job) error {
		j.Status, j.Progress = domain.JobStatusAwaitingApproval, domain.ProgressAwaitingApproval
		j.ArtifactRef = "reports/" + id + "/r.pdf"
		return nil
	})
	require.NoError(t, err)
}

func TestResumeApproveThenConflict(t *testing.T) {
	store := jobstore.New()
	gate := NewGate(store)
	parkedJob(t, store, gate, "job-1")
	ctx := context.Background()

	done := make(chan domain.JobStatus, 1)
	go func() {
		status, err := gate.Wait(ctx, "job-1", time.Time{})
		assert.NoError(t, err)
		done <- status
	}()

	job, err := gate.Resume(ctx, "job-1", Decision{Approved: true, Approver: "lead@example.com", Comment: "ship it"})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusApproved, job.Status)
	assert.Equal(t, domain.ProgressApproved, job.Progress)
	require.NotNil(t, job.Approval)
	assert.Equal(t, "lead@example.com", job.Approval.DecidedBy)

	select {
	case status := <-done:
		assert.Equal(t, domain.JobStatusApproved, status)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not released")
	}

	_, err = gate.Resume(ctx, "job-1", Decision{Approved: false, Approver: "other"})
	assert.ErrorIs(t, err, domain.ErrApprovalConflict)

	got, err := store.Get("job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusApproved, got.Status)
	assert.Equal(t, "lead@example.com", got.Approval.DecidedBy)
}

func TestResumeReject(t *testing.T) {
	store := jobstore.New()
	gate := NewGate(store)
	parkedJob(t, store, gate, "job-1")

	job, err := gate.Resume(context.Background(), "job-1", Decision{Approved: false, Approver: "lead"})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusRejected, job.Status)
	assert.True(t, job.Status.IsTerminal())

	status, err := gate.Wait(context.Background(), "job-1", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusRejected, status)
	assert.False(t, gate.Armed("job-1"))
}

func TestResumeBeforeWaitIsNotLost(t *testing.T) {
	store := jobstore.New()
	gate := NewGate(store)
	parkedJob(t, store, gate, "job-1")
	ctx := context.Background()

	// Hold the channel reference the way the orchestrator's task does.
	gate.mu.Lock()
	ch := gate.waiters["job-1"]
	gate.mu.Unlock()

	_, err := gate.Resume(ctx, "job-1", Decision{Approved: true, Approver: "lead"})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusApproved, <-ch)
}

func TestResumeUnknownAndNotParked(t *testing.T) {
	store := jobstore.New()
	gate := NewGate(store)
	ctx := context.Background()

	_, err := gate.Resume(ctx, "nope", Decision{Approved: true})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.Create(ctx, domain.NewJob("job-2", "2239", 38, time.Now())))
	_, err = gate.Resume(ctx, "job-2", Decision{Approved: true})
	assert.ErrorIs(t, err, domain.ErrApprovalConflict)

	got, _ := store.Get("job-2")
	assert.Equal(t, domain.JobStatusQueued, got.Status)
	assert.Nil(t, got.Approval)
}

func TestDeadlineTimesOutExactlyOnce(t *testing.T) {
	var mu sync.Mutex
	var timeouts int
	store := jobstore.New(jobstore.WithTransitionHook(func(prev, next *domain.Job) {
		if next.Status == domain.JobStatusTimedOut {
			mu.Lock()
			timeouts++
			mu.Unlock()
		}
	}))
	gate := NewGate(store)
	parkedJob(t, store, gate, "job-1")
	ctx := context.Background()

	status, err := gate.Wait(ctx, "job-1", time.Now().Add(20*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusTimedOut, status)

	job, err := store.Get("job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusTimedOut, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, domain.KindTimeout, job.Error.Kind)
	assert.False(t, gate.Armed("job-1"))

	_, err = gate.Resume(ctx, "job-1", Decision{Approved: true, Approver: "late"})
	assert.ErrorIs(t, err, domain.ErrApprovalConflict)

	after, _ := store.Get("job-1")
	assert.Equal(t, job.UpdatedAt, after.UpdatedAt, "no mutation after timeout")
	assert.Nil(t, after.Approval)

	mu.Lock()
	assert.Equal(t, 1, timeouts)
	mu.Unlock()
}

func TestWaitCancelledLeavesJobParked(t *testing.T) {
	store := jobstore.New()
	gate := NewGate(store)
	parkedJob(t, store, gate, "job-1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := gate.Wait(ctx, "job-1", time.Time{})
	assert.ErrorIs(t, err, context.Canceled)

	job, _ := store.Get("job-1")
	assert.Equal(t, domain.JobStatusAwaitingApproval, job.Status)
}

func TestResumeRacingDeadline(t *testing.T) {
	for i := 0; i < 20; i++ {
		store := jobstore.New()
		gate := NewGate(store)
		parkedJob(t, store, gate, "job-1")
		ctx := context.Background()

		result := make(chan domain.JobStatus, 1)
		go func() {
			status, err := gate.Wait(ctx, "job-1", time.Now().Add(time.Millisecond))
			assert.NoError(t, err)
			result <- status
		}()
		_, resumeErr := gate.Resume(ctx, "job-1", Decision{Approved: true, Approver: "lead"})

		status := <-result
		job, _ := store.Get("job-1")
		assert.Equal(t, job.Status, status, "waiter observes the committed outcome")
		if resumeErr == nil {
			assert.Equal(t, domain.JobStatusApproved, status)
		} else {
			assert.ErrorIs(t, resumeErr, domain.ErrApprovalConflict)
			assert.Equal(t, domain.JobStatusTimedOut, status)
		}
	}
}
