package service

import (
	"context"
	"errors"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/timmy/sprintreport/internal/config"
	"github.com/timmy/sprintreport/internal/domain"
	"github.com/timmy/sprintreport/internal/source"
)

// OpenAIModel calls any OpenAI-compatible chat completions endpoint.
type OpenAIModel struct {
	client openai.Client
	model  string
}

// NewOpenAIModel creates an OpenAI chat completions client.
func NewOpenAIModel(cfg *config.SynthesisConfig) *OpenAIModel {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIModel{client: openai.NewClient(opts...), model: cfg.Model}
}

func (m *OpenAIModel) Provider() string { return config.ProviderOpenAI }

func (m *OpenAIModel) Model() string { return m.model }

// Generate sends one chat completion with a system and a user message.
func (m *OpenAIModel) Generate(ctx context.Context, req ModelRequest) (string, error) {
	resp, err := m.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(m.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
		MaxCompletionTokens: openai.Int(int64(req.MaxTokens)),
		Temperature:         openai.Float(req.Temperature),
	})
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", domain.NewTransientError(config.ProviderOpenAI, "chat_completions", 0, errors.New("empty completion"))
	}
	return resp.Choices[0].Message.Content, nil
}

func classifyOpenAIError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if source.IsTransientStatus(apiErr.StatusCode) {
			return domain.NewTransientError(config.ProviderOpenAI, "chat_completions", apiErr.StatusCode, err)
		}
		return domain.NewPermanentError(config.ProviderOpenAI, "chat_completions", apiErr.StatusCode, err)
	}
	return domain.NewTransientError(config.ProviderOpenAI, "chat_completions", 0, err)
}
