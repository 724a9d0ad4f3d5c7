package config

import (
	"fmt"
	"os"
)

// Synthesis providers understood by the service layer.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
)

// SynthesisConfig configures the model that writes the report.
type SynthesisConfig struct {
	Provider        string  `mapstructure:"provider"`          // anthropic, openai, gemini
	Model           string  `mapstructure:"model"`             // model name/ID
	APIKey          string  `mapstructure:"api_key"`           // set directly or via api_key_env
	APIKeyEnv       string  `mapstructure:"api_key_env"`       // environment variable holding the key
	BaseURL         string  `mapstructure:"base_url"`          // override for compatible gateways
	BaseURLEnv      string  `mapstructure:"base_url_env"`      // environment variable holding the base URL
	MaxTokens       int     `mapstructure:"max_tokens"`        // output token cap
	Temperature     float64 `mapstructure:"temperature"`       // sampling temperature
	MaxPromptTokens int     `mapstructure:"max_prompt_tokens"` // meeting notes are trimmed to fit
}

// ResolveEnvVars loads APIKey and BaseURL from the referenced environment
// variables when they are not set directly.
func (c *SynthesisConfig) ResolveEnvVars() {
	if c.APIKeyEnv != "" && c.APIKey == "" {
		c.APIKey = os.Getenv(c.APIKeyEnv)
	}
	if c.BaseURLEnv != "" && c.BaseURL == "" {
		c.BaseURL = os.Getenv(c.BaseURLEnv)
	}
}

// DefaultAPIKeyEnv returns the conventional key variable for a provider.
func DefaultAPIKeyEnv(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderGemini:
		return "GEMINI_API_KEY"
	default:
		return "ANTHROPIC_API_KEY"
	}
}

// Validate checks that the synthesis configuration can build a client.
func (c *SynthesisConfig) Validate() error {
	switch c.Provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("synthesis: unknown provider %q", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("synthesis %q: model is required", c.Provider)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("synthesis %q: max_tokens must be positive", c.Provider)
	}
	if c.APIKey == "" {
		return fmt.Errorf("synthesis %q: api_key is required (set directly or via %s)", c.Provider, c.APIKeyEnv)
	}
	return nil
}
