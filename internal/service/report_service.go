package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/timmy/sprintreport/internal/approval"
	"github.com/timmy/sprintreport/internal/domain"
	"github.com/timmy/sprintreport/internal/jobstore"
	"github.com/timmy/sprintreport/internal/logger"
	"github.com/timmy/sprintreport/internal/naming"
	"github.com/timmy/sprintreport/internal/orchestrator"
	"github.com/timmy/sprintreport/internal/render"
)

// APIPrefix is the route prefix of the report endpoints.
const APIPrefix = "/api/sprint-report"

// ReportServiceConfig holds the boundary defaults.
type ReportServiceConfig struct {
	DefaultBoardID int
	PublicBaseURL  string
}

// ReportService is the boundary facade over the orchestrator and job store.
// Every read returns a copy; only Submit and Resume change jobs.
type ReportService struct {
	orch      *orchestrator.Orchestrator
	store     *jobstore.Store
	artifacts orchestrator.ArtifactStore
	cfg       ReportServiceConfig
}

// NewReportService creates the facade.
func NewReportService(orch *orchestrator.Orchestrator, store *jobstore.Store, artifacts orchestrator.ArtifactStore, cfg ReportServiceConfig) *ReportService {
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	return &ReportService{
		orch:      orch,
		store:     store,
		artifacts: artifacts,
		cfg:       cfg,
	}
}

// SubmitInput is a report request as received at the boundary.
type SubmitInput struct {
	SprintRef   string
	BoardRef    int
	WindowStart *time.Time
	WindowEnd   *time.Time
	RequestedBy string
}

// SubmitResult identifies the created job and where to follow it.
type SubmitResult struct {
	JobID       string           `json:"job_id"`
	Status      domain.JobStatus `json:"status"`
	Message     string           `json:"message"`
	StatusURL   string           `json:"status_url"`
	PreviewURL  string           `json:"preview_url"`
	ApproveURL  string           `json:"approve_url"`
	DownloadURL string           `json:"download_url"`
}

// Submit validates the request and starts a job.
// Parameters:
//   - ctx: request context.
//   - in: sprint reference, optional board and meeting window.
//
// Returns:
//   - *SubmitResult: job identifier and follow-up URLs.
//   - error: *domain.ValidationError for malformed input, or wraps
//     domain.ErrAlreadyExists when the sprint already has an active job.
func (s *ReportService) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	ref := strings.TrimSpace(in.SprintRef)
	if ref == "" {
		return nil, &domain.ValidationError{Field: "sprint_id", Message: "is required"}
	}
	if !isDigits(ref) {
		return nil, &domain.ValidationError{Field: "sprint_id", Message: fmt.Sprintf("%q is not a numeric sprint id", ref)}
	}
	board := in.BoardRef
	if board == 0 {
		board = s.cfg.DefaultBoardID
	}
	if board < 0 {
		return nil, &domain.ValidationError{Field: "board_id", Message: "must be positive"}
	}

	var window *domain.TimeWindow
	switch {
	case in.WindowStart != nil && in.WindowEnd != nil:
		if in.WindowEnd.Before(*in.WindowStart) {
			return nil, &domain.ValidationError{Field: "meeting_window", Message: "end is before start"}
		}
		window = &domain.TimeWindow{Start: in.WindowStart.UTC(), End: in.WindowEnd.UTC()}
	case in.WindowStart != nil || in.WindowEnd != nil:
		return nil, &domain.ValidationError{Field: "meeting_window", Message: "start and end must be given together"}
	}

	job, err := s.orch.Submit(ctx, orchestrator.SubmitRequest{
		SprintRef:   ref,
		BoardRef:    board,
		Window:      window,
		RequestedBy: in.RequestedBy,
	})
	if err != nil {
		return nil, err
	}

	return &SubmitResult{
		JobID:       job.ID,
		Status:      job.Status,
		Message:     fmt.Sprintf("Sprint report generation started for sprint %s", ref),
		StatusURL:   s.jobURL(job.ID, "status"),
		PreviewURL:  s.jobURL(job.ID, "preview"),
		ApproveURL:  s.jobURL(job.ID, "approve"),
		DownloadURL: s.jobURL(job.ID, "download"),
	}, nil
}

// GetStatus returns the read projection of a job.
func (s *ReportService) GetStatus(jobID string) (domain.StatusView, error) {
	job, err := s.store.Get(jobID)
	if err != nil {
		return domain.StatusView{}, err
	}
	return job.View(), nil
}

// ListJobs returns status views, newest first.
func (s *ReportService) ListJobs(opts jobstore.ListOptions) []domain.StatusView {
	jobs := s.store.List(opts)
	views := make([]domain.StatusView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, j.View())
	}
	return views
}

// Artifact is a downloadable report file.
type Artifact struct {
	Filename    string
	ContentType string
	Data        []byte
}

// GetArtifact returns the rendered report of an approved or completed job.
// Parameters:
//   - ctx: request context.
//   - jobID: job identifier.
//
// Returns:
//   - *Artifact: the stored bytes and their download filename.
//   - error: domain.ErrNotFound, or *domain.NotReadyError before approval.
func (s *ReportService) GetArtifact(ctx context.Context, jobID string) (*Artifact, error) {
	job, err := s.store.Get(jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusApproved && job.Status != domain.JobStatusCompleted {
		return nil, &domain.NotReadyError{JobID: jobID, Status: job.Status, What: "report file"}
	}
	if job.ArtifactRef == "" {
		return nil, fmt.Errorf("job %s has no artifact reference", jobID)
	}

	data, err := s.artifacts.Get(ctx, job.ArtifactRef)
	if err != nil {
		return nil, fmt.Errorf("load artifact %s: %w", job.ArtifactRef, err)
	}
	return &Artifact{
		Filename:    naming.ReportFilename(job.SprintName(), job.SprintRef),
		ContentType: render.ContentType,
		Data:        data,
	}, nil
}

// Resume applies an approval decision.
// Returns:
//   - domain.StatusView: the job after the decision.
//   - error: domain.ErrNotFound, or wraps domain.ErrApprovalConflict when the
//     job is not awaiting approval.
func (s *ReportService) Resume(ctx context.Context, jobID string, d approval.Decision) (domain.StatusView, error) {
	if strings.TrimSpace(d.Approver) == "" {
		d.Approver = "anonymous"
	}
	job, err := s.orch.Resume(ctx, jobID, d)
	if err != nil {
		if errors.Is(err, domain.ErrApprovalConflict) {
			logger.ForJob(jobID).Warn(ctx, "Rejected stale approval decision: %v", err)
		}
		return domain.StatusView{}, err
	}
	return job.View(), nil
}

// Preview renders the synthesized report as an HTML page.
func (s *ReportService) Preview(jobID string) ([]byte, error) {
	job, err := s.reportJob(jobID, "report preview")
	if err != nil {
		return nil, err
	}
	body, err := render.MarkdownToHTML(job.Report.Markdown)
	if err != nil {
		return nil, err
	}
	return render.PreviewPage(job.SprintName(), string(job.Status), body)
}

// ApprovalForm renders a page that posts the decision to webhookURL.
// Parameters:
//   - jobID: job identifier; the job must be awaiting approval.
//   - webhookURL: absolute http(s) URL receiving the form post.
//
// Returns:
//   - []byte: the HTML page.
//   - error: domain.ErrNotFound, *domain.NotReadyError, or
//     *domain.ValidationError for a bad webhook URL.
func (s *ReportService) ApprovalForm(jobID, webhookURL string) ([]byte, error) {
	job, err := s.reportJob(jobID, "approval form")
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusAwaitingApproval {
		return nil, &domain.NotReadyError{JobID: jobID, Status: job.Status, What: "approval form"}
	}
	if strings.TrimSpace(webhookURL) == "" {
		webhookURL = s.jobURL(jobID, "approve")
	}
	body, err := render.MarkdownToHTML(job.Report.Markdown)
	if err != nil {
		return nil, err
	}
	page, err := render.ApprovalForm(render.ApprovalFormData{
		JobID:       job.ID,
		SprintName:  job.SprintName(),
		SprintRef:   job.SprintRef,
		ReportHTML:  body,
		WebhookURL:  webhookURL,
		GeneratedAt: job.UpdatedAt,
		Deadline:    job.ApprovalDeadline,
	})
	if err != nil {
		return nil, &domain.ValidationError{Field: "webhook_url", Message: err.Error()}
	}
	return page, nil
}

// reportJob returns a job whose synthesized text is ready for review.
func (s *ReportService) reportJob(jobID, what string) (*domain.Job, error) {
	job, err := s.store.Get(jobID)
	if err != nil {
		return nil, err
	}
	switch job.Status {
	case domain.JobStatusAwaitingApproval, domain.JobStatusApproved, domain.JobStatusCompleted, domain.JobStatusRejected:
	default:
		return nil, &domain.NotReadyError{JobID: jobID, Status: job.Status, What: what}
	}
	if job.Report == nil {
		return nil, &domain.NotReadyError{JobID: jobID, Status: job.Status, What: what}
	}
	return job, nil
}

func (s *ReportService) jobURL(jobID, action string) string {
	return s.cfg.PublicBaseURL + APIPrefix + "/" + jobID + "/" + action
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
