package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/sprintreport/internal/approval"
	"github.com/timmy/sprintreport/internal/domain"
	"github.com/timmy/sprintreport/internal/jobstore"
	"github.com/timmy/sprintreport/internal/logger"
	"github.com/timmy/sprintreport/internal/service"
)

// ReportService is what the report endpoints need from the service layer.
type ReportService interface {
	Submit(ctx context.Context, in service.SubmitInput) (*service.SubmitResult, error)
	GetStatus(jobID string) (domain.StatusView, error)
	ListJobs(opts jobstore.ListOptions) []domain.StatusView
	GetArtifact(ctx context.Context, jobID string) (*service.Artifact, error)
	Resume(ctx context.Context, jobID string, d approval.Decision) (domain.StatusView, error)
	Preview(jobID string) ([]byte, error)
	ApprovalForm(jobID, webhookURL string) ([]byte, error)
}

// ReportHandler serves the sprint report endpoints.
type ReportHandler struct {
	reports ReportService
}

// NewReportHandler creates a new report handler.
// Parameters:
//   - reports: report service.
//
// Returns:
//   - *ReportHandler: initialized handler.
func NewReportHandler(reports ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// SprintRef accepts a sprint id as either a JSON number or a string.
type SprintRef string

// UnmarshalJSON implements json.Unmarshaler.
func (r *SprintRef) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*r = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		unq, err := strconv.Unquote(s)
		if err != nil {
			return fmt.Errorf("sprint_id: %w", err)
		}
		*r = SprintRef(unq)
		return nil
	}
	*r = SprintRef(s)
	return nil
}

// MeetingWindow optionally overrides the meeting date range.
type MeetingWindow struct {
	Start *time.Time `json:"start"`
	End   *time.Time `json:"end"`
}

// GenerateRequest is the body of POST /api/sprint-report/generate.
type GenerateRequest struct {
	SprintID      SprintRef      `json:"sprint_id"`
	BoardID       int            `json:"board_id"`
	MeetingWindow *MeetingWindow `json:"meeting_window"`
	RequestedBy   string         `json:"requested_by"`
}

// Generate handles POST /api/sprint-report/generate.
// Parameters:
//   - c: Gin request context.
//
// Returns: none (writes 202 with the job id and follow-up URLs).
func (h *ReportHandler) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	in := service.SubmitInput{
		SprintRef:   string(req.SprintID),
		BoardRef:    req.BoardID,
		RequestedBy: req.RequestedBy,
	}
	if req.MeetingWindow != nil {
		in.WindowStart, in.WindowEnd = req.MeetingWindow.Start, req.MeetingWindow.End
	}

	res, err := h.reports.Submit(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Location", res.StatusURL)
	c.JSON(http.StatusAccepted, res)
}

// Status handles GET /api/sprint-report/:job_id/status.
func (h *ReportHandler) Status(c *gin.Context) {
	view, err := h.reports.GetStatus(c.Param("job_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// List handles GET /api/sprint-report/jobs.
func (h *ReportHandler) List(c *gin.Context) {
	opts := jobstore.ListOptions{
		Status:    domain.JobStatus(c.Query("status")),
		SprintRef: c.Query("sprint_id"),
	}
	if opts.Status != "" && !opts.Status.IsValid() {
		writeError(c, &domain.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", opts.Status)})
		return
	}
	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			writeError(c, &domain.ValidationError{Field: "limit", Message: "must be a non-negative integer"})
			return
		}
		opts.Limit = n
	}
	jobs := h.reports.ListJobs(opts)
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "total": len(jobs)})
}

// Preview handles GET /api/sprint-report/:job_id/preview.
func (h *ReportHandler) Preview(c *gin.Context) {
	page, err := h.reports.Preview(c.Param("job_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

// ApprovalForm handles GET /api/sprint-report/:job_id/approve-form.
// Without a webhook_url query parameter the form posts back to this service.
func (h *ReportHandler) ApprovalForm(c *gin.Context) {
	jobID := c.Param("job_id")
	webhook := c.Query("webhook_url")
	if webhook == "" {
		webhook = requestBaseURL(c) + service.APIPrefix + "/" + jobID + "/approve"
	}
	page, err := h.reports.ApprovalForm(jobID, webhook)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

// ApproveRequest is the decision body. It binds from JSON or from the
// approval form post.
type ApproveRequest struct {
	Approved        *bool  `json:"approved" form:"approved"`
	Approver        string `json:"approver" form:"approver"`
	Comment         string `json:"comment" form:"comment"`
	RejectionReason string `json:"rejection_reason" form:"rejection_reason"`
}

// Approve handles POST /api/sprint-report/:job_id/approve.
func (h *ReportHandler) Approve(c *gin.Context) {
	var req ApproveRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if req.Approved == nil {
		writeError(c, &domain.ValidationError{Field: "approved", Message: "is required"})
		return
	}
	comment := req.Comment
	if comment == "" {
		comment = req.RejectionReason
	}

	view, err := h.reports.Resume(c.Request.Context(), c.Param("job_id"), approval.Decision{
		Approved: *req.Approved,
		Approver: req.Approver,
		Comment:  comment,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Download handles GET /api/sprint-report/:job_id/download.
func (h *ReportHandler) Download(c *gin.Context) {
	art, err := h.reports.GetArtifact(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, art.Filename))
	c.Data(http.StatusOK, art.ContentType, art.Data)
}

// writeError maps domain errors to HTTP responses.
func writeError(c *gin.Context, err error) {
	var (
		verr     *domain.ValidationError
		notReady *domain.NotReadyError
		active   *jobstore.ActiveJobError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": verr.Field})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &active):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "job_id": active.JobID})
	case errors.Is(err, domain.ErrAlreadyExists), errors.Is(err, domain.ErrApprovalConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &notReady):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "status": notReady.Status})
	case errors.Is(err, domain.ErrInterrupted):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		logger.CtxError(c.Request.Context(), "Request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func requestBaseURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + c.Request.Host
}
