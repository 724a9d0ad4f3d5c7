package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/sprintreport/internal/config"
	"github.com/timmy/sprintreport/internal/domain"
	"github.com/timmy/sprintreport/internal/prompts"
)

// scriptedModel returns its replies in order and records every request.
type scriptedModel struct {
	mu       sync.Mutex
	replies  []string
	errs     []error
	requests []ModelRequest
}

func (m *scriptedModel) Provider() string { return "fake" }

func (m *scriptedModel) Model() string { return "fake-1" }

func (m *scriptedModel) Generate(_ context.Context, req ModelRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := len(m.requests)
	m.requests = append(m.requests, req)
	if i < len(m.errs) && m.errs[i] != nil {
		return "", m.errs[i]
	}
	if i < len(m.replies) {
		return m.replies[i], nil
	}
	return m.replies[len(m.replies)-1], nil
}

func sampleInput() *domain.AggregatedInput {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 14)
	return &domain.AggregatedInput{
		Sprint: domain.SprintInfo{ID: "2239", Name: "BOPS: Sprint 11", StartDate: &start, EndDate: &end},
		Metrics: domain.SprintMetrics{
			TotalIssues:     10,
			CompletedIssues: 8,
			CompletionRate:  80,
		},
		Meetings: []domain.Meeting{
			{ID: "m1", Title: "Sprint Planning", StartedAt: start, Summary: "Agreed on onboarding scope.", Transcript: strings.Repeat("talk ", 400)},
			{ID: "m2", Title: "Daily Standup", StartedAt: start.AddDate(0, 0, 1), Degraded: true, DegradedReason: "fathom 503"},
		},
	}
}

func newTestSynthesizer(model ReportModel, promptLimit int) *Synthesizer {
	return NewSynthesizer(model, DefaultContract(), fastPolicy(), &TokenCounter{}, SynthesizerConfig{
		TeamName:        "BOPS",
		Guide:           "## Sprint Overview",
		MaxPromptTokens: promptLimit,
	})
}

func TestSynthesizeValidFirstPass(t *testing.T) {
	model := &scriptedModel{replies: []string{validReport()}}
	s := newTestSynthesizer(model, 0)

	out, err := s.Synthesize(context.Background(), sampleInput())
	require.NoError(t, err)
	assert.Equal(t, 1, out.Attempts)
	assert.True(t, out.Validation.Valid)
	assert.Equal(t, "fake", out.Provider)
	require.Len(t, model.requests, 1)
	assert.Contains(t, model.requests[0].System, "BOPS")
	assert.Contains(t, model.requests[0].User, "BOPS: Sprint 11")
	assert.Contains(t, model.requests[0].User, "[notes unavailable]")
}

func TestSynthesizeCorrectiveRetry(t *testing.T) {
	model := &scriptedModel{replies: []string{"## Sprint Overview\nTBD", validReport()}}
	s := newTestSynthesizer(model, 0)

	out, err := s.Synthesize(context.Background(), sampleInput())
	require.NoError(t, err)
	assert.Equal(t, 2, out.Attempts)
	require.Len(t, model.requests, 2)
	assert.Contains(t, model.requests[1].User, "Correction Required")
	assert.Contains(t, model.requests[1].User, "Completed Work")
}

func TestSynthesizeFailsAfterCorrectiveRetry(t *testing.T) {
	model := &scriptedModel{replies: []string{"## Sprint Overview\nTBD"}}
	s := newTestSynthesizer(model, 0)

	_, err := s.Synthesize(context.Background(), sampleInput())
	require.Error(t, err)

	var synthErr *domain.SynthesisError
	require.True(t, errors.As(err, &synthErr))
	require.NotNil(t, synthErr.Validation)
	assert.Contains(t, synthErr.Validation.MissingSections, "Metrics")
	assert.Equal(t, domain.KindSynthesis, domain.KindOf(err))
	assert.Len(t, model.requests, 2)
}

func TestSynthesizeRetriesTransientModelErrors(t *testing.T) {
	model := &scriptedModel{
		replies: []string{"", validReport()},
		errs:    []error{domain.NewTransientError("fake", "generate", 529, nil)},
	}
	s := newTestSynthesizer(model, 0)

	out, err := s.Synthesize(context.Background(), sampleInput())
	require.NoError(t, err)
	assert.Equal(t, 1, out.Attempts)
	assert.Len(t, model.requests, 2)
}

func TestSynthesizePermanentModelError(t *testing.T) {
	model := &scriptedModel{
		replies: []string{""},
		errs:    []error{domain.NewPermanentError("fake", "generate", 401, nil)},
	}
	s := newTestSynthesizer(model, 0)

	_, err := s.Synthesize(context.Background(), sampleInput())
	require.Error(t, err)
	assert.Equal(t, domain.KindUpstreamPermanent, domain.KindOf(err))
	assert.Len(t, model.requests, 1)
}

func TestSynthesizeTrimsTranscriptsToBudget(t *testing.T) {
	in := sampleInput()
	bare := sampleInput()
	for i := range bare.Meetings {
		bare.Meetings[i].Transcript = ""
	}

	probe := newTestSynthesizer(&scriptedModel{}, 0)
	system := prompts.BuildSystemPrompt("BOPS", "## Sprint Overview")
	base := probe.tokens.Count(system) + probe.tokens.Count(probe.buildUserPrompt(system, bare))

	model := &scriptedModel{replies: []string{validReport()}}
	s := newTestSynthesizer(model, base+100)

	_, err := s.Synthesize(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, model.requests, 1)

	user := model.requests[0].User
	talks := strings.Count(user, "talk")
	assert.Greater(t, talks, 0)
	assert.LessOrEqual(t, talks, 50)
	assert.Contains(t, user, "[...]")
}

func TestAnthropicModelGenerate(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"## Sprint Overview"},{"type":"text","text":"\nDone."}],"stop_reason":"end_turn"}`))
	}))
	defer srv.Close()

	m := NewAnthropicModel(&config.SynthesisConfig{APIKey: "secret", Model: "claude-test", BaseURL: srv.URL + "/v1"})
	text, err := m.Generate(context.Background(), ModelRequest{System: "sys", User: "hello", MaxTokens: 100})
	require.NoError(t, err)
	assert.Equal(t, "## Sprint Overview\nDone.", text)
	assert.Equal(t, "claude-test", got.Model)
	assert.Equal(t, "sys", got.System)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hello", got.Messages[0].Content)
}

func TestAnthropicModelClassifiesOverload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(529)
		_, _ = w.Write([]byte(`{"error":{"type":"overloaded_error","message":"Overloaded"}}`))
	}))
	defer srv.Close()

	m := NewAnthropicModel(&config.SynthesisConfig{APIKey: "k", Model: "m", BaseURL: srv.URL})
	_, err := m.Generate(context.Background(), ModelRequest{User: "hi"})
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
}
