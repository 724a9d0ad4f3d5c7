package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/sprintreport/internal/domain"
	"github.com/timmy/sprintreport/internal/jobstore"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	reports ReportService
	started time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(reports ReportService) *HealthHandler {
	return &HealthHandler{reports: reports, started: time.Now()}
}

// Health returns liveness plus the number of jobs awaiting a decision.
func (h *HealthHandler) Health(c *gin.Context) {
	parked := h.reports.ListJobs(jobstore.ListOptions{Status: domain.JobStatusAwaitingApproval})
	c.JSON(http.StatusOK, gin.H{
		"status":            "ok",
		"service":           "sprint-report",
		"uptime_seconds":    int(time.Since(h.started).Seconds()),
		"awaiting_approval": len(parked),
	})
}
