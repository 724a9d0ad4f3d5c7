package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/sprintreport/internal/config"
	"github.com/timmy/sprintreport/internal/domain"
	"github.com/timmy/sprintreport/internal/source"
)

const anthropicVersion = "2023-06-01"

// AnthropicModel calls the Anthropic Messages API.
type AnthropicModel struct {
	client   *resty.Client
	model    string
	endpoint string
}

// NewAnthropicModel creates an Anthropic Messages client.
func NewAnthropicModel(cfg *config.SynthesisConfig) *AnthropicModel {
	client := resty.New()
	client.SetHeader("x-api-key", cfg.APIKey)
	client.SetHeader("anthropic-version", anthropicVersion)
	client.SetHeader("Content-Type", "application/json")
	// Set timeout to prevent hanging requests
	client.SetTimeout(5 * time.Minute)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com/v1"
	}

	return &AnthropicModel{
		client:   client,
		model:    cfg.Model,
		endpoint: strings.TrimRight(baseURL, "/") + "/messages",
	}
}

func (m *AnthropicModel) Provider() string { return config.ProviderAnthropic }

func (m *AnthropicModel) Model() string { return m.model }

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate sends one Messages request and joins the returned text blocks.
func (m *AnthropicModel) Generate(ctx context.Context, req ModelRequest) (string, error) {
	body := anthropicRequest{
		Model:       m.model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		System:      req.System,
		Messages:    []anthropicMessage{{Role: "user", Content: req.User}},
	}

	var out anthropicResponse
	resp, err := m.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(m.endpoint)
	if err := source.DecodeJSON(config.ProviderAnthropic, "messages", resp, err, &out); err != nil {
		return "", err
	}
	if out.Error != nil {
		return "", domain.NewPermanentError(config.ProviderAnthropic, "messages", resp.StatusCode(), errors.New(out.Error.Message))
	}

	var b strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", domain.NewTransientError(config.ProviderAnthropic, "messages", resp.StatusCode(), errors.New("empty completion"))
	}
	return b.String(), nil
}
