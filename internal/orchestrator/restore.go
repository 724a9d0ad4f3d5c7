package orchestrator

import (
	"context"
	"fmt"

	"github.com/timmy/sprintreport/internal/domain"
	"github.com/timmy/sprintreport/internal/logger"
)

// RestoreSummary counts what Restore did with persisted jobs.
type RestoreSummary struct {
	Loaded      int
	Requeued    int
	Reparked    int
	Finalizing  int
	Interrupted int
}

// Restore reloads persisted jobs and resumes what can be resumed:
// queued jobs start again, parked jobs wait for the rest of their deadline,
// approved jobs are finalized, and jobs caught mid-stage fail as interrupted.
// Parameters:
//   - ctx: context for loading.
//
// Returns:
//   - RestoreSummary: what happened to the loaded jobs.
//   - error: non-nil when persisted jobs cannot be loaded.
func (o *Orchestrator) Restore(ctx context.Context) (RestoreSummary, error) {
	var sum RestoreSummary
	jobs, err := o.deps.Store.Restore(ctx)
	if err != nil {
		return sum, err
	}
	sum.Loaded = len(jobs)

	for _, job := range jobs {
		switch job.Status {
		case domain.JobStatusQueued:
			if o.spawn(job.ID, o.run) {
				sum.Requeued++
			}
		case domain.JobStatusAwaitingApproval:
			o.deps.Gate.Arm(job.ID)
			if o.spawn(job.ID, o.park) {
				sum.Reparked++
			} else {
				o.deps.Gate.Disarm(job.ID)
			}
		case domain.JobStatusApproved:
			if o.spawn(job.ID, o.finalize) {
				sum.Finalizing++
			}
		case domain.JobStatusAggregating, domain.JobStatusSynthesizing, domain.JobStatusRendering:
			stage := job.Status
			o.fail(ctx, job.ID, stage, fmt.Errorf("%w: service restarted during %s", domain.ErrInterrupted, stage))
			sum.Interrupted++
		}
	}

	logger.Info("Restored jobs: loaded=%d requeued=%d reparked=%d finalizing=%d interrupted=%d",
		sum.Loaded, sum.Requeued, sum.Reparked, sum.Finalizing, sum.Interrupted)
	return sum, nil
}
