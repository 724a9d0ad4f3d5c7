package domain

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors shared by the store, the approval gate and the boundary service.
var (
	ErrNotFound          = errors.New("job not found")
	ErrAlreadyExists     = errors.New("job already exists")
	ErrNotReady          = errors.New("job output not ready")
	ErrApprovalConflict  = errors.New("job is not awaiting approval")
	ErrInvalidTransition = errors.New("invalid job transition")
	ErrApprovalTimeout   = errors.New("approval deadline exceeded")
	ErrInterrupted       = errors.New("job interrupted before completion")
)

// ErrorKind is the machine-readable failure class recorded on a job.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindUpstreamTransient ErrorKind = "upstream_transient"
	KindUpstreamPermanent ErrorKind = "upstream_permanent"
	KindSynthesis         ErrorKind = "synthesis"
	KindRender            ErrorKind = "render"
	KindFinalize          ErrorKind = "finalize"
	KindTimeout           ErrorKind = "timeout"
	KindInterrupted       ErrorKind = "interrupted"
	KindInternal          ErrorKind = "internal"
)

// ValidationError reports a malformed submission.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// UpstreamClass tells the retry policy whether a failure may succeed on retry.
type UpstreamClass int

const (
	Transient UpstreamClass = iota + 1
	Permanent
)

func (c UpstreamClass) String() string {
	switch c {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	}
	return "unknown"
}

// UpstreamError is a classified failure from JIRA, Fathom or a synthesis model.
type UpstreamError struct {
	Class      UpstreamClass
	Source     string
	Op         string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("%s %s: %s upstream failure", e.Source, e.Op, e.Class)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// NewTransientError builds a retryable upstream failure.
func NewTransientError(source, op string, status int, err error) *UpstreamError {
	return &UpstreamError{Class: Transient, Source: source, Op: op, StatusCode: status, Err: err}
}

// NewPermanentError builds a non-retryable upstream failure.
func NewPermanentError(source, op string, status int, err error) *UpstreamError {
	return &UpstreamError{Class: Permanent, Source: source, Op: op, StatusCode: status, Err: err}
}

// IsTransient reports whether err carries a Transient upstream classification.
func IsTransient(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.Class == Transient
}

// SynthesisError reports a generated report that failed its structural contract twice.
type SynthesisError struct {
	Reason     string
	Validation *ValidationReport
}

func (e *SynthesisError) Error() string {
	if e.Validation != nil && len(e.Validation.MissingSections) > 0 {
		return fmt.Sprintf("synthesis failed: %s (missing sections: %v)", e.Reason, e.Validation.MissingSections)
	}
	return "synthesis failed: " + e.Reason
}

// RenderError reports a document generation or artifact storage failure.
type RenderError struct {
	Err error
}

func (e *RenderError) Error() string { return "render failed: " + e.Err.Error() }

func (e *RenderError) Unwrap() error { return e.Err }

// FinalizeError reports a failed post-approval distribution handoff.
type FinalizeError struct {
	Distributor string
	Err         error
}

func (e *FinalizeError) Error() string {
	return fmt.Sprintf("finalize via %s failed: %v", e.Distributor, e.Err)
}

func (e *FinalizeError) Unwrap() error { return e.Err }

// KindOf maps any error onto the stable kind exposed to pollers.
// Parameters:
//   - err: error returned by a pipeline stage.
//
// Returns:
//   - ErrorKind: classified failure kind, KindInternal when unknown.
func KindOf(err error) ErrorKind {
	var (
		ve *ValidationError
		ue *UpstreamError
		se *SynthesisError
		re *RenderError
		fe *FinalizeError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &se):
		return KindSynthesis
	case errors.As(err, &re):
		return KindRender
	case errors.As(err, &fe):
		return KindFinalize
	case errors.As(err, &ue):
		if ue.Class == Transient {
			return KindUpstreamTransient
		}
		return KindUpstreamPermanent
	case errors.Is(err, ErrApprovalTimeout):
		return KindTimeout
	case errors.Is(err, ErrInterrupted), errors.Is(err, context.Canceled):
		return KindInterrupted
	}
	return KindInternal
}

// NotReadyError reports that a job has not yet produced the requested output.
type NotReadyError struct {
	JobID  string
	Status JobStatus
	What   string
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("%s for job %s not ready: job is %s", e.What, e.JobID, e.Status)
}

func (e *NotReadyError) Unwrap() error { return ErrNotReady }
