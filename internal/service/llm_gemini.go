package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/timmy/sprintreport/internal/config"
	"github.com/timmy/sprintreport/internal/domain"
	"github.com/timmy/sprintreport/internal/source"
	"google.golang.org/genai"
)

// GeminiModel calls the Gemini API through the official SDK.
type GeminiModel struct {
	client *genai.Client
	model  string
}

// NewGeminiModel creates a Gemini client.
func NewGeminiModel(ctx context.Context, cfg *config.SynthesisConfig) (*GeminiModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: cfg.BaseURL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &GeminiModel{client: c, model: cfg.Model}, nil
}

func (m *GeminiModel) Provider() string { return config.ProviderGemini }

func (m *GeminiModel) Model() string { return m.model }

// Generate sends the user prompt with the system prompt as system instruction.
func (m *GeminiModel) Generate(ctx context.Context, req ModelRequest) (string, error) {
	temperature := float32(req.Temperature)
	resp, err := m.client.Models.GenerateContent(ctx, m.model, genai.Text(req.User), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
		MaxOutputTokens:   int32(req.MaxTokens),
		Temperature:       &temperature,
	})
	if err != nil {
		return "", classifyGeminiError(err)
	}
	text := resp.Text()
	if text == "" {
		return "", domain.NewTransientError(config.ProviderGemini, "generate_content", 0, errors.New("empty completion"))
	}
	return text, nil
}

func classifyGeminiError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	}
	if code != 0 && !source.IsTransientStatus(code) {
		return domain.NewPermanentError(config.ProviderGemini, "generate_content", code, err)
	}
	return domain.NewTransientError(config.ProviderGemini, "generate_content", code, err)
}
