package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/timmy/sprintreport/internal/domain"
	"github.com/timmy/sprintreport/internal/logger"
	"github.com/timmy/sprintreport/internal/metrics"
	"github.com/timmy/sprintreport/internal/prompts"
)

// Synthesizer turns aggregated sprint data into validated report text.
type Synthesizer struct {
	model       ReportModel
	contract    *Contract
	policy      RetryPolicy
	tokens      *TokenCounter
	guide       string
	teamName    string
	maxTokens   int
	temperature float64
	promptLimit int
}

// SynthesizerConfig holds synthesis settings.
type SynthesizerConfig struct {
	TeamName        string
	Guide           string
	MaxTokens       int
	Temperature     float64
	MaxPromptTokens int
}

// LoadGuide reads the report guide, returning the built-in guide when the
// file is missing.
func LoadGuide(path string) string {
	if path == "" {
		return prompts.DefaultGuide
	}
	data, err := os.ReadFile(path)
	if err != nil || strings.TrimSpace(string(data)) == "" {
		logger.Warn("Report guide %s unavailable, using built-in guide", path)
		return prompts.DefaultGuide
	}
	return string(data)
}

// NewSynthesizer creates a report synthesizer.
// Parameters:
//   - model: AI capability used to write the report.
//   - contract: structural contract; nil uses DefaultContract.
//   - policy: retry policy for transient model failures.
//   - tokens: prompt token counter; nil estimates from words.
//   - cfg: prompt and sampling settings.
//
// Returns:
//   - *Synthesizer: synthesizer ready for use.
func NewSynthesizer(model ReportModel, contract *Contract, policy RetryPolicy, tokens *TokenCounter, cfg SynthesizerConfig) *Synthesizer {
	if contract == nil {
		contract = DefaultContract()
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 8192
	}
	return &Synthesizer{
		model:       model,
		contract:    contract,
		policy:      policy,
		tokens:      tokens,
		guide:       cfg.Guide,
		teamName:    cfg.TeamName,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		promptLimit: cfg.MaxPromptTokens,
	}
}

// Synthesize writes the report and validates it. A report that fails the
// contract gets exactly one corrective pass; a second failure is a
// *domain.SynthesisError.
func (s *Synthesizer) Synthesize(ctx context.Context, in *domain.AggregatedInput) (*domain.SynthesizedReport, error) {
	system := prompts.BuildSystemPrompt(s.teamName, s.guide)
	user := s.buildUserPrompt(system, in)

	start := time.Now()
	text, err := s.generate(ctx, system, user)
	if err != nil {
		return nil, err
	}
	validation := s.contract.Validate(text)
	metrics.IncSynthesisAttempt(s.model.Provider(), validation.Valid)
	attempts := 1

	if !validation.Valid {
		logger.With(logger.Fields{
			logger.FieldCount: validation.WordCount,
		}).Warn(ctx, "Report failed validation (missing=%v placeholders=%v), requesting correction",
			validation.MissingSections, validation.Placeholders)

		text, err = s.generate(ctx, system, user+prompts.CorrectiveInstruction(validation))
		if err != nil {
			return nil, err
		}
		validation = s.contract.Validate(text)
		metrics.IncSynthesisAttempt(s.model.Provider(), validation.Valid)
		attempts++

		if !validation.Valid {
			v := validation
			return nil, &domain.SynthesisError{Reason: "report failed structural validation after corrective retry", Validation: &v}
		}
	}

	logger.With(logger.Fields{
		logger.FieldCount:   validation.WordCount,
		logger.FieldAttempt: attempts,
	}).Since(start).Info(ctx, "Report synthesized with %s/%s", s.model.Provider(), s.model.Model())

	return &domain.SynthesizedReport{
		Text:       text,
		Validation: validation,
		Provider:   s.model.Provider(),
		Model:      s.model.Model(),
		Attempts:   attempts,
	}, nil
}

func (s *Synthesizer) generate(ctx context.Context, system, user string) (string, error) {
	req := ModelRequest{
		System:      system,
		User:        user,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	}
	text, err := Retry(ctx, s.policy, s.model.Provider(), "synthesize", func(ctx context.Context) (string, error) {
		return s.model.Generate(ctx, req)
	})
	if err != nil {
		return "", fmt.Errorf("synthesize report: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// buildUserPrompt renders the prompt, trimming transcripts evenly when the
// whole prompt would exceed the token limit.
func (s *Synthesizer) buildUserPrompt(system string, in *domain.AggregatedInput) string {
	render := func(transcriptBudget int) string {
		if len(in.Meetings) == 0 {
			return prompts.BuildUserPrompt(in, prompts.NoMeetingsText)
		}
		parts := make([]string, 0, len(in.Meetings))
		for i, m := range in.Meetings {
			transcript := m.Transcript
			if transcriptBudget >= 0 {
				transcript = s.tokens.Truncate(transcript, transcriptBudget)
			}
			parts = append(parts, prompts.FormatMeeting(i+1, m, transcript))
		}
		return prompts.BuildUserPrompt(in, strings.Join(parts, "\n"))
	}

	full := render(-1)
	if s.promptLimit <= 0 {
		return full
	}
	total := s.tokens.Count(system) + s.tokens.Count(full)
	if total <= s.promptLimit {
		return full
	}

	withoutTranscripts := render(0)
	base := s.tokens.Count(system) + s.tokens.Count(withoutTranscripts)
	perMeeting := (s.promptLimit - base) / len(in.Meetings)
	if perMeeting < 0 {
		perMeeting = 0
	}
	logger.Warn("Prompt is %d tokens, limit %d; trimming transcripts to %d tokens each", total, s.promptLimit, perMeeting)
	return render(perMeeting)
}
