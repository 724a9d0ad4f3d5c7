package service

import (
	"context"
	"fmt"

	"github.com/timmy/sprintreport/internal/config"
)

// ModelRequest is one synthesis call.
type ModelRequest struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// ReportModel is the AI capability that writes report text.
// Implementations classify failures as *domain.UpstreamError.
type ReportModel interface {
	// Provider returns the provider name used in logs and metrics.
	Provider() string

	// Model returns the model identifier.
	Model() string

	// Generate returns the model's text answer.
	Generate(ctx context.Context, req ModelRequest) (string, error)
}

// NewReportModel builds the client for the configured provider.
// Parameters:
//   - ctx: context used by SDKs that dial on construction.
//   - cfg: synthesis configuration.
//
// Returns:
//   - ReportModel: provider client.
//   - error: non-nil when the provider is unknown or the client cannot be built.
func NewReportModel(ctx context.Context, cfg *config.SynthesisConfig) (ReportModel, error) {
	switch cfg.Provider {
	case config.ProviderAnthropic, "":
		return NewAnthropicModel(cfg), nil
	case config.ProviderOpenAI:
		return NewOpenAIModel(cfg), nil
	case config.ProviderGemini:
		return NewGeminiModel(ctx, cfg)
	}
	return nil, fmt.Errorf("unknown synthesis provider %q", cfg.Provider)
}
