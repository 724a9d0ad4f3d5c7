// Package distribute hands an approved report to its audience.
package distribute

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/timmy/sprintreport/internal/config"
	"github.com/timmy/sprintreport/internal/domain"
	"github.com/timmy/sprintreport/internal/logger"
	"github.com/timmy/sprintreport/internal/service"
)

// Delivery is everything a distributor may send.
type Delivery struct {
	Job         *domain.Job
	Filename    string
	Artifact    []byte
	DownloadURL string
}

// Distributor delivers one approved report.
type Distributor interface {
	Name() string
	Distribute(ctx context.Context, d Delivery) error
}

// Chain runs distributors in order and stops at the first failure.
type Chain struct {
	distributors  []Distributor
	policy        service.RetryPolicy
	publicBaseURL string
}

// NewChain creates a chain; transient failures of each step are retried
// under policy. publicBaseURL, when set, is used to build download links.
func NewChain(policy service.RetryPolicy, publicBaseURL string, distributors ...Distributor) *Chain {
	return &Chain{
		distributors:  distributors,
		policy:        policy,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// Names lists the configured distributors in order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.distributors))
	for i, d := range c.distributors {
		names[i] = d.Name()
	}
	return names
}

// Finalize runs every distributor for an approved job.
// Parameters:
//   - ctx: context for cancellation.
//   - job: the approved job.
//   - filename: download filename of the artifact.
//   - artifact: rendered report bytes.
//
// Returns:
//   - error: *domain.FinalizeError naming the failed distributor.
func (c *Chain) Finalize(ctx context.Context, job *domain.Job, filename string, artifact []byte) error {
	d := Delivery{Job: job, Filename: filename, Artifact: artifact}
	if c.publicBaseURL != "" {
		d.DownloadURL = fmt.Sprintf("%s/api/sprint-report/%s/download", c.publicBaseURL, job.ID)
	}

	for _, dist := range c.distributors {
		start := time.Now()
		_, err := service.Retry(ctx, c.policy, dist.Name(), "distribute", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, dist.Distribute(ctx, d)
		})
		if err != nil {
			return &domain.FinalizeError{Distributor: dist.Name(), Err: err}
		}
		logger.ForJob(job.ID).Since(start).Info(ctx, "Report delivered via %s", dist.Name())
	}
	return nil
}

// FromConfig builds the configured distributors. An empty target list
// yields the log distributor only.
// Parameters:
//   - cfg: distribution configuration.
//
// Returns:
//   - []Distributor: distributors in configured order.
//   - error: non-nil for unknown targets or incomplete settings.
func FromConfig(cfg *config.DistributionConfig) ([]Distributor, error) {
	targets := cfg.Targets
	if len(targets) == 0 {
		targets = []string{"log"}
	}

	out := make([]Distributor, 0, len(targets))
	for _, target := range targets {
		switch strings.ToLower(strings.TrimSpace(target)) {
		case "log":
			out = append(out, NewLogDistributor())
		case "webhook":
			if cfg.Webhook.URL == "" {
				return nil, fmt.Errorf("distribution target webhook requires distribution.webhook.url")
			}
			out = append(out, NewWebhookDistributor(cfg.Webhook.URL, cfg.Webhook.Timeout))
		case "telegram":
			if cfg.Telegram.BotToken == "" || cfg.Telegram.ChatID == 0 {
				return nil, fmt.Errorf("distribution target telegram requires bot_token and chat_id")
			}
			tg, err := NewTelegramDistributor(cfg.Telegram.BotToken, cfg.Telegram.ChatID, "")
			if err != nil {
				return nil, err
			}
			out = append(out, tg)
		default:
			return nil, fmt.Errorf("unknown distribution target %q", target)
		}
	}
	return out, nil
}

// LogDistributor records the delivery in the service log.
type LogDistributor struct{}

func NewLogDistributor() *LogDistributor { return &LogDistributor{} }

func (*LogDistributor) Name() string { return "log" }

func (*LogDistributor) Distribute(ctx context.Context, d Delivery) error {
	approver := ""
	if d.Job.Approval != nil {
		approver = d.Job.Approval.DecidedBy
	}
	logger.ForJob(d.Job.ID).WithField(logger.FieldSize, len(d.Artifact)).Info(ctx, "Report %s for %s approved by %q is ready", d.Filename, d.Job.SprintName(), approver)
	return nil
}
