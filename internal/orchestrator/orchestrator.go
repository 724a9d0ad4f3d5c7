// Package orchestrator drives report jobs through their state machine:
// aggregate, synthesize, render, await approval, finalize.
//
// Every job runs on its own goroutine. Stage results become visible only
// through job store writes, so pollers observe whole stages.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/sprintreport/internal/approval"
	"github.com/timmy/sprintreport/internal/domain"
	"github.com/timmy/sprintreport/internal/jobstore"
	"github.com/timmy/sprintreport/internal/logger"
	"github.com/timmy/sprintreport/internal/metrics"
	"github.com/timmy/sprintreport/internal/naming"
	"github.com/timmy/sprintreport/internal/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Aggregator collects the synthesis input.
type Aggregator interface {
	Aggregate(ctx context.Context, req domain.AggregateRequest, progress func(int)) (*domain.AggregatedInput, error)
}

// Synthesizer writes and validates report text.
type Synthesizer interface {
	Synthesize(ctx context.Context, in *domain.AggregatedInput) (*domain.SynthesizedReport, error)
}

// Renderer produces the distributable file.
type Renderer interface {
	Render(ctx context.Context, doc render.Document) ([]byte, error)
}

// ArtifactStore keeps rendered files.
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Finalizer hands an approved report to its audience.
type Finalizer interface {
	Finalize(ctx context.Context, job *domain.Job, filename string, artifact []byte) error
}

// Deps are the collaborators of the orchestrator.
type Deps struct {
	Store       *jobstore.Store
	Gate        *approval.Gate
	Aggregator  Aggregator
	Synthesizer Synthesizer
	Renderer    Renderer
	Artifacts   ArtifactStore
	Finalizer   Finalizer
	Tracer      trace.TracerProvider // nil uses the global provider
}

// Config tunes the orchestrator.
type Config struct {
	ApprovalDeadline time.Duration // 0 waits for a decision indefinitely
	TeamName         string
}

// SubmitRequest starts a new job.
type SubmitRequest struct {
	SprintRef   string
	BoardRef    int
	Window      *domain.TimeWindow
	RequestedBy string
}

// Orchestrator owns job execution.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	tracer trace.Tracer
	now    func() time.Time
	newID  func() string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu orders task registration against Shutdown.
	mu     sync.Mutex
	closed bool
}

// New creates an orchestrator. Jobs run until Shutdown.
func New(deps Deps, cfg Config) *Orchestrator {
	tp := deps.Tracer
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		deps:   deps,
		cfg:    cfg,
		tracer: tp.Tracer("github.com/timmy/sprintreport/internal/orchestrator"),
		now:    time.Now,
		newID:  uuid.NewString,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Submit creates a Queued job and starts it in the background. It returns
// as soon as the job exists.
// Parameters:
//   - ctx: request context, used only for the store write.
//   - req: sprint to report on.
//
// Returns:
//   - *domain.Job: the created job.
//   - error: wraps domain.ErrAlreadyExists when the sprint has an active job,
//     or domain.ErrInterrupted after Shutdown.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*domain.Job, error) {
	if !o.reserve() {
		return nil, fmt.Errorf("%w: orchestrator is shutting down", domain.ErrInterrupted)
	}
	job := domain.NewJob(o.newID(), req.SprintRef, req.BoardRef, o.now().UTC())
	job.RequestedBy = req.RequestedBy
	if req.Window != nil {
		w := *req.Window
		job.Window = &w
	}
	if err := o.deps.Store.Create(ctx, job); err != nil {
		o.wg.Done()
		return nil, err
	}

	o.launch(job.ID, o.run)
	logger.With(logger.Fields{
		logger.FieldJobID:     job.ID,
		logger.FieldSprintRef: job.SprintRef,
	}).Info(ctx, "Job submitted")
	return job.Clone(), nil
}

// Resume applies an approval decision to a parked job.
func (o *Orchestrator) Resume(ctx context.Context, jobID string, d approval.Decision) (*domain.Job, error) {
	return o.deps.Gate.Resume(ctx, jobID, d)
}

// reserve registers one job task unless Shutdown has begun. Every true
// result must be paired with launch or wg.Done.
func (o *Orchestrator) reserve() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	o.wg.Add(1)
	return true
}

// spawn runs fn for a job on its own goroutine. It reports false after Shutdown.
func (o *Orchestrator) spawn(jobID string, fn func(ctx context.Context, jobID string)) bool {
	if !o.reserve() {
		return false
	}
	o.launch(jobID, fn)
	return true
}

// launch starts a task reserved with reserve.
func (o *Orchestrator) launch(jobID string, fn func(ctx context.Context, jobID string)) {
	metrics.JobStarted()
	go func() {
		defer o.wg.Done()
		defer metrics.JobStopped()

		ctx := logger.SetJobID(o.ctx, jobID)
		ctx = logger.SetComponent(ctx, "orchestrator")
		defer func() {
			if r := recover(); r != nil {
				logger.CtxError(ctx, "Job task panicked: %v\n%s", r, debug.Stack())
				o.fail(ctx, jobID, "", fmt.Errorf("internal error: %v", r))
			}
		}()
		fn(ctx, jobID)
	}()
}

// run executes the pipeline up to the approval wait.
func (o *Orchestrator) run(ctx context.Context, jobID string) {
	job, err := o.deps.Store.Get(jobID)
	if err != nil {
		logger.CtxError(ctx, "Job vanished before start: %v", err)
		return
	}

	ctx, span := o.tracer.Start(ctx, "sprint_report.job", trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("sprint.ref", job.SprintRef),
	))
	defer span.End()

	state := &runState{}
	stages := []struct {
		status domain.JobStatus
		run    stageFunc
	}{
		{domain.JobStatusAggregating, o.aggregate},
		{domain.JobStatusSynthesizing, o.synthesize},
		{domain.JobStatusRendering, o.render},
	}
	for _, st := range stages {
		if err := o.runStage(ctx, jobID, st.status, state, st.run); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return
		}
	}

	o.park(ctx, jobID)
}

// runState carries stage outputs that are not part of the job record.
type runState struct {
	input *domain.AggregatedInput
}

type stageFunc func(ctx context.Context, job *domain.Job, state *runState) error

// runStage enters a stage, runs it and records failure on the job.
func (o *Orchestrator) runStage(ctx context.Context, jobID string, status domain.JobStatus, state *runState, fn stageFunc) error {
	if err := ctx.Err(); err != nil {
		o.fail(ctx, jobID, status, err)
		return err
	}

	ctx = logger.SetStage(ctx, string(status))
	ctx, span := o.tracer.Start(ctx, "sprint_report."+string(status))
	defer span.End()

	job, err := o.deps.Store.Get(jobID)
	if err != nil {
		return err
	}

	start := o.now()
	err = o.safeStage(ctx, job, state, fn)
	metrics.ObserveStage(string(status), o.now().Sub(start), err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.fail(ctx, jobID, status, err)
		return err
	}
	return nil
}

// safeStage turns a panic inside a stage into an internal error.
func (o *Orchestrator) safeStage(ctx context.Context, job *domain.Job, state *runState, fn stageFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.CtxError(ctx, "Stage panicked: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	return fn(ctx, job, state)
}

func (o *Orchestrator) aggregate(ctx context.Context, job *domain.Job, state *runState) error {
	if _, err := o.deps.Store.Update(ctx, job.ID, func(j *domain.Job) error {
		j.Status = domain.JobStatusAggregating
		j.Progress = domain.ProgressAggregationStart
		return nil
	}); err != nil {
		return err
	}

	in, err := o.deps.Aggregator.Aggregate(ctx, domain.AggregateRequest{
		SprintRef: job.SprintRef,
		BoardRef:  job.BoardRef,
		Window:    job.Window,
	}, func(p int) { o.progress(ctx, job.ID, p) })
	if err != nil {
		return err
	}

	state.input = in
	_, err = o.deps.Store.Update(ctx, job.ID, func(j *domain.Job) error {
		sprint := in.Sprint.Clone()
		window := in.Window
		prov := in.Provenance
		j.Sprint, j.Window, j.Provenance = &sprint, &window, &prov
		j.Progress = max(j.Progress, domain.ProgressDataCollected)
		return nil
	})
	return err
}

func (o *Orchestrator) synthesize(ctx context.Context, job *domain.Job, state *runState) error {
	in := state.input
	if in == nil {
		return errors.New("aggregated input missing")
	}
	if _, err := o.deps.Store.Update(ctx, job.ID, func(j *domain.Job) error {
		j.Status = domain.JobStatusSynthesizing
		j.Progress = domain.ProgressSynthesisStart
		return nil
	}); err != nil {
		return err
	}

	report, err := o.deps.Synthesizer.Synthesize(ctx, in)
	if err != nil {
		return err
	}

	_, err = o.deps.Store.Update(ctx, job.ID, func(j *domain.Job) error {
		j.Report = &domain.ReportSnapshot{
			Markdown:   report.Text,
			Validation: report.Validation.Clone(),
			Provider:   report.Provider,
			Model:      report.Model,
		}
		j.Progress = domain.ProgressSynthesisDone
		return nil
	})
	return err
}

func (o *Orchestrator) render(ctx context.Context, job *domain.Job, _ *runState) error {
	job, err := o.deps.Store.Update(ctx, job.ID, func(j *domain.Job) error {
		j.Status = domain.JobStatusRendering
		j.Progress = domain.ProgressRenderingStart
		return nil
	})
	if err != nil {
		return err
	}
	if job.Report == nil {
		return &domain.RenderError{Err: errors.New("no synthesized report on job")}
	}

	data, err := o.deps.Renderer.Render(ctx, o.document(job))
	if err != nil {
		var renderErr *domain.RenderError
		if errors.As(err, &renderErr) || errors.Is(err, context.Canceled) {
			return err
		}
		return &domain.RenderError{Err: err}
	}

	key := naming.ArtifactKey(job.ID, job.SprintName(), job.SprintRef)
	if err := o.deps.Artifacts.Put(ctx, key, data, render.ContentType); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return &domain.RenderError{Err: fmt.Errorf("store artifact: %w", err)}
	}

	// Arm before the status write so a fast resume cannot be missed.
	o.deps.Gate.Arm(job.ID)
	_, err = o.deps.Store.Update(ctx, job.ID, func(j *domain.Job) error {
		j.Status = domain.JobStatusAwaitingApproval
		j.Progress = domain.ProgressAwaitingApproval
		j.ArtifactRef = key
		if o.cfg.ApprovalDeadline > 0 {
			deadline := o.now().UTC().Add(o.cfg.ApprovalDeadline)
			j.ApprovalDeadline = &deadline
		}
		return nil
	})
	if err != nil {
		o.deps.Gate.Disarm(job.ID)
		return err
	}
	logger.With(logger.Fields{
		logger.FieldSize: len(data),
	}).Info(ctx, "Report rendered to %s, awaiting approval", key)
	return nil
}

func (o *Orchestrator) document(job *domain.Job) render.Document {
	subtitle := o.cfg.TeamName
	if job.Sprint != nil && job.Sprint.StartDate != nil && job.Sprint.EndDate != nil {
		dates := fmt.Sprintf("%s to %s", job.Sprint.StartDate.Format("Jan 2"), job.Sprint.EndDate.Format("Jan 2, 2006"))
		if subtitle != "" {
			subtitle += " | "
		}
		subtitle += dates
	}
	return render.Document{
		Title:       job.SprintName(),
		Subtitle:    subtitle,
		Markdown:    job.Report.Markdown,
		Author:      o.cfg.TeamName,
		GeneratedAt: o.now(),
	}
}

// park waits for the approval outcome and finalizes approved jobs.
func (o *Orchestrator) park(ctx context.Context, jobID string) {
	job, err := o.deps.Store.Get(jobID)
	if err != nil {
		logger.CtxError(ctx, "Parked job lookup failed: %v", err)
		return
	}
	var deadline time.Time
	if job.ApprovalDeadline != nil {
		deadline = *job.ApprovalDeadline
	}

	status, err := o.deps.Gate.Wait(ctx, jobID, deadline)
	if err != nil {
		if ctx.Err() != nil {
			logger.CtxInfo(ctx, "Stopped waiting for approval; job stays parked")
			return
		}
		logger.CtxError(ctx, "Approval wait failed: %v", err)
		return
	}

	switch status {
	case domain.JobStatusApproved:
		o.finalize(ctx, jobID)
	case domain.JobStatusRejected:
		logger.CtxInfo(ctx, "Report rejected")
	case domain.JobStatusTimedOut:
		logger.CtxWarn(ctx, "Report approval timed out")
	}
}

// finalize delivers an approved report and completes the job.
func (o *Orchestrator) finalize(ctx context.Context, jobID string) {
	ctx = logger.SetStage(ctx, "finalize")
	ctx, span := o.tracer.Start(ctx, "sprint_report.finalize")
	defer span.End()
	start := o.now()

	err := func() error {
		job, err := o.deps.Store.Get(jobID)
		if err != nil {
			return err
		}
		data, err := o.deps.Artifacts.Get(ctx, job.ArtifactRef)
		if err != nil {
			return &domain.FinalizeError{Distributor: "artifact", Err: err}
		}
		if o.deps.Finalizer != nil {
			if err := o.deps.Finalizer.Finalize(ctx, job, naming.FilenameFromKey(job.ArtifactRef), data); err != nil {
				return err
			}
		}
		_, err = o.deps.Store.Update(ctx, jobID, func(j *domain.Job) error {
			j.Status = domain.JobStatusCompleted
			j.Progress = domain.ProgressCompleted
			return nil
		})
		return err
	}()

	metrics.ObserveStage("finalize", o.now().Sub(start), err == nil)
	if err != nil && o.ctx.Err() != nil && errors.Is(err, context.Canceled) {
		// The approval stands; Restore finalizes the job on the next start.
		logger.CtxWarn(ctx, "Finalize stopped by shutdown; job stays approved: %v", err)
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.fail(ctx, jobID, domain.JobStatusApproved, err)
		return
	}
	logger.CtxInfo(ctx, "Job completed")
}

// progress raises the job's progress within its current stage.
func (o *Orchestrator) progress(ctx context.Context, jobID string, p int) {
	_, err := o.deps.Store.Update(ctx, jobID, func(j *domain.Job) error {
		if p > j.Progress {
			j.Progress = p
		}
		return nil
	})
	if err != nil {
		logger.CtxWarn(ctx, "Progress update to %d failed: %v", p, err)
	}
}

// fail records a terminal failure. Cancellation by Shutdown is recorded as
// interrupted.
func (o *Orchestrator) fail(ctx context.Context, jobID string, stage domain.JobStatus, cause error) {
	kind := domain.KindOf(cause)
	if o.ctx.Err() != nil && errors.Is(cause, context.Canceled) {
		kind = domain.KindInterrupted
	}

	_, err := o.deps.Store.Update(context.WithoutCancel(ctx), jobID, func(j *domain.Job) error {
		if stage == "" {
			stage = j.Status
		}
		j.Status = domain.JobStatusFailed
		j.Error = &domain.JobError{Kind: kind, Message: cause.Error(), Stage: stage}
		return nil
	})
	if err != nil {
		logger.CtxError(ctx, "Could not record failure (%v): %v", cause, err)
		return
	}
	logger.With(logger.Fields{
		logger.FieldStage: string(stage),
	}).Error(ctx, "Job failed with %s: %v", kind, cause)
}

// Shutdown stops all job tasks. Jobs in a working stage fail as
// interrupted; parked jobs stay in AwaitingApproval and approved jobs whose
// finalize was cut short stay Approved.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.cancel()
	o.mu.Unlock()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("orchestrator shutdown: %w", ctx.Err())
	}
}
