// Package approval implements the suspend point where a rendered report
// waits for a human decision.
package approval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/timmy/sprintreport/internal/domain"
	"github.com/timmy/sprintreport/internal/jobstore"
	"github.com/timmy/sprintreport/internal/logger"
	"github.com/timmy/sprintreport/internal/metrics"
)

// Decision is the external resume signal.
type Decision struct {
	Approved bool
	Approver string
	Comment  string
}

// Gate parks jobs in AwaitingApproval until Resume or the deadline.
// Each armed job owns a one-slot channel; the store's guarded update decides
// which of resume and timeout wins.
type Gate struct {
	store *jobstore.Store
	now   func() time.Time

	mu      sync.Mutex
	waiters map[string]chan domain.JobStatus
}

// NewGate creates a gate bound to the job store.
func NewGate(store *jobstore.Store) *Gate {
	return &Gate{
		store:   store,
		now:     time.Now,
		waiters: make(map[string]chan domain.JobStatus),
	}
}

// Arm registers the suspend point for a job. Call it before the job is
// written as AwaitingApproval so no resume can be missed.
func (g *Gate) Arm(jobID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.waiters[jobID]; !ok {
		g.waiters[jobID] = make(chan domain.JobStatus, 1)
	}
}

// Disarm drops the suspend point without touching the job.
func (g *Gate) Disarm(jobID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.waiters, jobID)
}

// Armed reports whether a suspend point exists for the job.
func (g *Gate) Armed(jobID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.waiters[jobID]
	return ok
}

func (g *Gate) take(jobID string) chan domain.JobStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch := g.waiters[jobID]
	delete(g.waiters, jobID)
	return ch
}

// Resume applies a decision to a job in AwaitingApproval.
// Parameters:
//   - ctx: context passed to the store.
//   - jobID: job identifier.
//   - d: the decision.
//
// Returns:
//   - *domain.Job: the job after the decision.
//   - error: domain.ErrNotFound, or a wrapped domain.ErrApprovalConflict when
//     the job is not awaiting approval.
func (g *Gate) Resume(ctx context.Context, jobID string, d Decision) (*domain.Job, error) {
	decidedAt := g.now().UTC()
	job, err := g.store.Update(ctx, jobID, func(j *domain.Job) error {
		if j.Status != domain.JobStatusAwaitingApproval {
			return fmt.Errorf("%w: job %s is %s", domain.ErrApprovalConflict, j.ID, j.Status)
		}
		j.Approval = &domain.Approval{
			Approved:  d.Approved,
			DecidedBy: d.Approver,
			DecidedAt: decidedAt,
			Comment:   d.Comment,
		}
		if d.Approved {
			j.Status = domain.JobStatusApproved
			j.Progress = domain.ProgressApproved
		} else {
			j.Status = domain.JobStatusRejected
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if ch := g.take(jobID); ch != nil {
		ch <- job.Status
	}
	logger.ForJob(jobID).WithField(logger.FieldStatus, string(job.Status)).Info(ctx, "Approval decision by %q recorded", d.Approver)
	return job, nil
}

// Wait blocks until the job is resumed, the deadline passes, or ctx ends.
// A decision committed before the call is returned at once. A zero deadline
// waits without a timer. On ctx cancellation the job is left
// in AwaitingApproval.
// Parameters:
//   - ctx: cancels the wait only.
//   - jobID: a job in AwaitingApproval.
//   - deadline: absolute time after which the job times out.
//
// Returns:
//   - domain.JobStatus: Approved, Rejected or TimedOut.
//   - error: ctx error, or a store failure.
func (g *Gate) Wait(ctx context.Context, jobID string, deadline time.Time) (domain.JobStatus, error) {
	g.Arm(jobID)
	g.mu.Lock()
	ch := g.waiters[jobID]
	g.mu.Unlock()

	// The decision may have been committed before this call.
	job, err := g.store.Get(jobID)
	if err != nil {
		g.take(jobID)
		return "", err
	}
	switch job.Status {
	case domain.JobStatusAwaitingApproval:
	case domain.JobStatusApproved, domain.JobStatusRejected, domain.JobStatusTimedOut:
		g.take(jobID)
		return job.Status, nil
	default:
		g.take(jobID)
		return "", fmt.Errorf("%w: job %s is %s", domain.ErrApprovalConflict, jobID, job.Status)
	}

	start := g.now()
	var timeout <-chan time.Time
	if !deadline.IsZero() {
		timer := time.NewTimer(deadline.Sub(start))
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case status := <-ch:
		metrics.ObserveApprovalWait(string(status), g.now().Sub(start))
		return status, nil

	case <-timeout:
		_, err := g.store.Update(ctx, jobID, func(j *domain.Job) error {
			if j.Status != domain.JobStatusAwaitingApproval {
				return fmt.Errorf("%w: job %s is %s", domain.ErrApprovalConflict, j.ID, j.Status)
			}
			j.Status = domain.JobStatusTimedOut
			j.Error = &domain.JobError{
				Kind:    domain.KindTimeout,
				Message: fmt.Sprintf("no approval decision by %s", deadline.UTC().Format(time.RFC3339)),
				Stage:   domain.JobStatusAwaitingApproval,
			}
			return nil
		})
		switch {
		case err == nil:
			g.take(jobID)
			metrics.ObserveApprovalWait(string(domain.JobStatusTimedOut), g.now().Sub(start))
			logger.ForJob(jobID).Warn(ctx, "Approval deadline passed")
			return domain.JobStatusTimedOut, nil
		case errors.Is(err, domain.ErrApprovalConflict):
			// A resume committed first; the store holds its outcome.
			g.take(jobID)
			job, gerr := g.store.Get(jobID)
			if gerr != nil {
				return "", gerr
			}
			if job.Status != domain.JobStatusApproved && job.Status != domain.JobStatusRejected {
				return job.Status, err
			}
			metrics.ObserveApprovalWait(string(job.Status), g.now().Sub(start))
			return job.Status, nil
		default:
			return "", err
		}

	case <-ctx.Done():
		g.take(jobID)
		return "", ctx.Err()
	}
}
