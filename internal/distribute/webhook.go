package distribute

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/sprintreport/internal/domain"
	"github.com/timmy/sprintreport/internal/source"
)

// WebhookDistributor posts a JSON notice with the download link.
type WebhookDistributor struct {
	client *resty.Client
	url    string
}

// NewWebhookDistributor creates a webhook distributor.
func NewWebhookDistributor(url string, timeout time.Duration) *WebhookDistributor {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &WebhookDistributor{client: client, url: url}
}

func (w *WebhookDistributor) Name() string { return "webhook" }

type webhookPayload struct {
	Event       string           `json:"event"`
	JobID       string           `json:"job_id"`
	SprintID    string           `json:"sprint_id"`
	SprintName  string           `json:"sprint_name"`
	Filename    string           `json:"filename"`
	DownloadURL string           `json:"download_url,omitempty"`
	Approval    *domain.Approval `json:"approval,omitempty"`
}

func (w *WebhookDistributor) Distribute(ctx context.Context, d Delivery) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(webhookPayload{
			Event:       "sprint_report.approved",
			JobID:       d.Job.ID,
			SprintID:    d.Job.SprintRef,
			SprintName:  d.Job.SprintName(),
			Filename:    d.Filename,
			DownloadURL: d.DownloadURL,
			Approval:    d.Job.Approval,
		}).
		Post(w.url)
	return source.ClassifyResponse("webhook", "distribute", resp, err)
}
