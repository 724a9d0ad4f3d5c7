package domain

import (
	"fmt"
	"time"
)

// JobStatus represents the lifecycle state of a sprint report job.
type JobStatus string

const (
	JobStatusQueued           JobStatus = "queued"
	JobStatusAggregating      JobStatus = "aggregating"
	JobStatusSynthesizing     JobStatus = "synthesizing"
	JobStatusRendering        JobStatus = "rendering"
	JobStatusAwaitingApproval JobStatus = "awaiting_approval"
	JobStatusApproved         JobStatus = "approved"
	JobStatusRejected         JobStatus = "rejected"
	JobStatusCompleted        JobStatus = "completed"
	JobStatusFailed           JobStatus = "failed"
	JobStatusTimedOut         JobStatus = "timed_out"
)

// forwardTransitions lists the regular edges of the job state machine.
// Failed and TimedOut are reachable from every non-terminal state and are
// handled separately in CanTransition.
var forwardTransitions = map[JobStatus][]JobStatus{
	JobStatusQueued:           {JobStatusAggregating},
	JobStatusAggregating:      {JobStatusSynthesizing},
	JobStatusSynthesizing:     {JobStatusRendering},
	JobStatusRendering:        {JobStatusAwaitingApproval},
	JobStatusAwaitingApproval: {JobStatusApproved, JobStatusRejected},
	JobStatusApproved:         {JobStatusCompleted},
}

// AllStatuses returns every known job status in lifecycle order.
func AllStatuses() []JobStatus {
	return []JobStatus{
		JobStatusQueued,
		JobStatusAggregating,
		JobStatusSynthesizing,
		JobStatusRendering,
		JobStatusAwaitingApproval,
		JobStatusApproved,
		JobStatusRejected,
		JobStatusCompleted,
		JobStatusFailed,
		JobStatusTimedOut,
	}
}

// IsValid reports whether s is a known status.
func (s JobStatus) IsValid() bool {
	for _, known := range AllStatuses() {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition can leave s.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusRejected, JobStatusTimedOut:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is an edge of the state machine.
// Parameters:
//   - from: current status.
//   - to: requested status.
//
// Returns:
//   - bool: true when the transition is allowed.
func CanTransition(from, to JobStatus) bool {
	if from.IsTerminal() || !to.IsValid() {
		return false
	}
	if to == JobStatusFailed || to == JobStatusTimedOut {
		return true
	}
	for _, next := range forwardTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// JobError is the structured failure cause recorded on Failed and TimedOut jobs.
type JobError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Stage   JobStatus `json:"stage,omitempty"`
}

// Approval records the human decision that resumed a parked job.
type Approval struct {
	Approved  bool      `json:"approved"`
	DecidedBy string    `json:"decided_by"`
	DecidedAt time.Time `json:"decided_at"`
	Comment   string    `json:"comment,omitempty"`
}

// ReportSnapshot is the synthesized report kept on the job for preview.
type ReportSnapshot struct {
	Markdown   string           `json:"markdown"`
	Validation ValidationReport `json:"validation"`
	Provider   string           `json:"provider,omitempty"`
	Model      string           `json:"model,omitempty"`
}

// Job represents one run of the sprint report pipeline.
type Job struct {
	ID               string          `json:"id"`
	SprintRef        string          `json:"sprint_ref"`
	BoardRef         int             `json:"board_ref"`
	Status           JobStatus       `json:"status"`
	Progress         int             `json:"progress"`
	ArtifactRef      string          `json:"artifact_ref,omitempty"`
	Error            *JobError       `json:"error,omitempty"`
	Approval         *Approval       `json:"approval,omitempty"`
	Window           *TimeWindow     `json:"meeting_window,omitempty"`
	Sprint           *SprintInfo     `json:"sprint,omitempty"`
	Provenance       *Provenance     `json:"provenance,omitempty"`
	Report           *ReportSnapshot `json:"report,omitempty"`
	RequestedBy      string          `json:"requested_by,omitempty"`
	ApprovalDeadline *time.Time      `json:"approval_deadline,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	FinishedAt       *time.Time      `json:"finished_at,omitempty"`
}

// NewJob builds a job in the Queued state.
func NewJob(id, sprintRef string, boardRef int, now time.Time) *Job {
	return &Job{
		ID:        id,
		SprintRef: sprintRef,
		BoardRef:  boardRef,
		Status:    JobStatusQueued,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SprintName returns the human readable sprint label, falling back to the reference.
func (j *Job) SprintName() string {
	if j.Sprint != nil && j.Sprint.Name != "" {
		return j.Sprint.Name
	}
	return "Sprint " + j.SprintRef
}

// Clone returns a deep copy so callers never share mutable state with the store.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	if j.Error != nil {
		e := *j.Error
		cp.Error = &e
	}
	if j.Approval != nil {
		a := *j.Approval
		cp.Approval = &a
	}
	if j.Window != nil {
		w := *j.Window
		cp.Window = &w
	}
	if j.Sprint != nil {
		s := j.Sprint.Clone()
		cp.Sprint = &s
	}
	if j.Provenance != nil {
		p := *j.Provenance
		cp.Provenance = &p
	}
	if j.Report != nil {
		r := *j.Report
		r.Validation = j.Report.Validation.Clone()
		cp.Report = &r
	}
	if j.ApprovalDeadline != nil {
		d := *j.ApprovalDeadline
		cp.ApprovalDeadline = &d
	}
	if j.FinishedAt != nil {
		f := *j.FinishedAt
		cp.FinishedAt = &f
	}
	return &cp
}

// CheckUpdate validates that next is a legal successor of prev.
// Parameters:
//   - prev: job state before the mutation.
//   - next: job state after the mutation.
//
// Returns:
//   - error: wraps ErrInvalidTransition when an invariant is broken.
func CheckUpdate(prev, next *Job) error {
	if next.ID != prev.ID || next.SprintRef != prev.SprintRef || !next.CreatedAt.Equal(prev.CreatedAt) {
		return fmt.Errorf("%w: identity fields are immutable", ErrInvalidTransition)
	}
	if prev.Status.IsTerminal() {
		return fmt.Errorf("%w: job %s is already %s", ErrInvalidTransition, prev.ID, prev.Status)
	}
	if next.Status != prev.Status && !CanTransition(prev.Status, next.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev.Status, next.Status)
	}
	if next.Progress < prev.Progress {
		return fmt.Errorf("%w: progress %d -> %d", ErrInvalidTransition, prev.Progress, next.Progress)
	}
	if next.Progress > 100 {
		return fmt.Errorf("%w: progress %d out of range", ErrInvalidTransition, next.Progress)
	}
	if prev.ArtifactRef != "" && next.ArtifactRef != prev.ArtifactRef {
		return fmt.Errorf("%w: artifact reference is immutable", ErrInvalidTransition)
	}
	hasErrorState := next.Status == JobStatusFailed || next.Status == JobStatusTimedOut
	if next.Error != nil && !hasErrorState {
		return fmt.Errorf("%w: error set on %s job", ErrInvalidTransition, next.Status)
	}
	if hasErrorState && next.Error == nil {
		return fmt.Errorf("%w: %s job requires an error kind", ErrInvalidTransition, next.Status)
	}
	if prev.Approval != nil && (next.Approval == nil || *next.Approval != *prev.Approval) {
		return fmt.Errorf("%w: approval record is immutable", ErrInvalidTransition)
	}
	return nil
}

// StatusView is the read projection served to pollers.
type StatusView struct {
	JobID       string      `json:"job_id"`
	Status      JobStatus   `json:"status"`
	Progress    int         `json:"progress"`
	Error       *JobError   `json:"error,omitempty"`
	SprintRef   string      `json:"sprint_id"`
	BoardRef    int         `json:"board_id"`
	SprintName  string      `json:"sprint_name,omitempty"`
	Approval    *Approval   `json:"approval,omitempty"`
	Provenance  *Provenance `json:"provenance,omitempty"`
	HasArtifact bool        `json:"has_artifact"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	FinishedAt  *time.Time  `json:"finished_at,omitempty"`
}

// View projects the job into its externally visible status.
func (j *Job) View() StatusView {
	cp := j.Clone()
	v := StatusView{
		JobID:       cp.ID,
		Status:      cp.Status,
		Progress:    cp.Progress,
		Error:       cp.Error,
		SprintRef:   cp.SprintRef,
		BoardRef:    cp.BoardRef,
		Approval:    cp.Approval,
		Provenance:  cp.Provenance,
		HasArtifact: cp.ArtifactRef != "",
		CreatedAt:   cp.CreatedAt,
		UpdatedAt:   cp.UpdatedAt,
		FinishedAt:  cp.FinishedAt,
	}
	if cp.Sprint != nil {
		v.SprintName = cp.Sprint.Name
	}
	return v
}
