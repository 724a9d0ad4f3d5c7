package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/sprintreport/internal/domain"
	"github.com/timmy/sprintreport/internal/service"
)

// client talks to the report service over HTTP.
type client struct {
	http *resty.Client
}

func newClient(baseURL string, timeout time.Duration) *client {
	return &client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
	}
}

type apiError struct {
	Error  string           `json:"error"`
	Status domain.JobStatus `json:"status,omitempty"`
	JobID  string           `json:"job_id,omitempty"`
}

func (c *client) submit(ctx context.Context, sprintRef string, boardRef int, requestedBy string) (*service.SubmitResult, error) {
	var out service.SubmitResult
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"sprint_id":    sprintRef,
			"board_id":     boardRef,
			"requested_by": requestedBy,
		}).
		SetResult(&out).
		SetError(&apiErr).
		Post(service.APIPrefix + "/generate")
	if err := check(resp, err, &apiErr); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) status(ctx context.Context, jobID string) (*domain.StatusView, error) {
	var out domain.StatusView
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&apiErr).
		Get(service.APIPrefix + "/" + jobID + "/status")
	if err := check(resp, err, &apiErr); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) approve(ctx context.Context, jobID string, approved bool, approver, comment string) (*domain.StatusView, error) {
	var out domain.StatusView
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"approved": approved,
			"approver": approver,
			"comment":  comment,
		}).
		SetResult(&out).
		SetError(&apiErr).
		Post(service.APIPrefix + "/" + jobID + "/approve")
	if err := check(resp, err, &apiErr); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) download(ctx context.Context, jobID string) ([]byte, string, error) {
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetError(&apiErr).
		Get(service.APIPrefix + "/" + jobID + "/download")
	if err := check(resp, err, &apiErr); err != nil {
		return nil, "", err
	}
	filename := jobID + ".pdf"
	if cd := resp.Header().Get("Content-Disposition"); cd != "" {
		if _, after, ok := strings.Cut(cd, `filename="`); ok {
			filename = strings.TrimSuffix(after, `"`)
		}
	}
	return resp.Body(), filename, nil
}

func check(resp *resty.Response, err error, apiErr *apiError) error {
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if !resp.IsError() {
		return nil
	}
	msg := apiErr.Error
	if msg == "" {
		msg = strings.TrimSpace(resp.String())
	}
	return fmt.Errorf("%s: %s", resp.Status(), msg)
}
