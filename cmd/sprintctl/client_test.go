package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/sprintreport/internal/domain"
)

func TestClientRoundTrips(t *testing.T) {
	var approveBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/sprint-report/generate":
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"job_id":"job-1","status":"queued"}`))
		case "/api/sprint-report/job-1/status":
			_, _ = w.Write([]byte(`{"job_id":"job-1","status":"awaiting_approval","progress":90}`))
		case "/api/sprint-report/job-1/approve":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&approveBody))
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"job is not awaiting approval"}`))
		case "/api/sprint-report/job-1/download":
			w.Header().Set("Content-Type", "application/pdf")
			w.Header().Set("Content-Disposition", `attachment; filename="BOPS-Sprint-11_2239.pdf"`)
			_, _ = w.Write([]byte("%PDF"))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"job not found"}`))
		}
	}))
	defer srv.Close()

	c := newClient(srv.URL+"/", 5*time.Second)
	ctx := context.Background()

	res, err := c.submit(ctx, "2239", 38, "lead")
	require.NoError(t, err)
	assert.Equal(t, "job-1", res.JobID)

	view, err := c.status(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusAwaitingApproval, view.Status)
	assert.True(t, settled(view.Status))

	_, err = c.approve(ctx, "job-1", false, "lead", "redo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job is not awaiting approval")
	assert.Equal(t, false, approveBody["approved"])
	assert.Equal(t, "redo", approveBody["comment"])

	data, name, err := c.download(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))
	assert.Equal(t, "BOPS-Sprint-11_2239.pdf", name)

	_, err = c.status(ctx, "missing")
	assert.ErrorContains(t, err, "job not found")
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "[..........]", progressBar(0, 10))
	assert.Equal(t, "[#####.....]", progressBar(50, 10))
	assert.Equal(t, "[##########]", progressBar(100, 10))
	assert.Equal(t, "[##########]", progressBar(140, 10))
}
