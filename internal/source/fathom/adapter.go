// Package fathom lists recorded meetings and fetches their notes from the Fathom API.
package fathom

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/sprintreport/internal/domain"
	"github.com/timmy/sprintreport/internal/source"
)

const (
	sourceName     = "fathom"
	DefaultBaseURL = "https://api.fathom.ai/external/v1"
)

// Adapter implements source.MeetingSource.
type Adapter struct {
	client      *resty.Client
	searchTerms []string
	maxPages    int
}

// Config holds connection settings for the Fathom adapter.
type Config struct {
	BaseURL     string
	APIKey      string
	SearchTerms []string
	Timeout     time.Duration
}

// NewAdapter creates a Fathom adapter.
func NewAdapter(cfg Config) *Adapter {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(base, "/")).
		SetHeader("X-Api-Key", cfg.APIKey).
		SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	terms := make([]string, 0, len(cfg.SearchTerms))
	for _, t := range cfg.SearchTerms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			terms = append(terms, t)
		}
	}
	return &Adapter{client: client, searchTerms: terms, maxPages: 50}
}

type rawMeeting struct {
	ID           json.RawMessage `json:"id"`
	RecordingID  json.RawMessage `json:"recording_id"`
	Title        string          `json:"title"`
	MeetingTitle string          `json:"meeting_title"`
	URL          string          `json:"url"`
	CreatedAt    time.Time       `json:"created_at"`
	StartTime    *time.Time      `json:"recording_start_time"`
	EndTime      *time.Time      `json:"recording_end_time"`
	Duration     float64         `json:"duration"`
}

type meetingPage struct {
	Items      []rawMeeting `json:"items"`
	Data       []rawMeeting `json:"data"`
	Meetings   []rawMeeting `json:"meetings"`
	NextCursor string       `json:"next_cursor"`
}

func (p meetingPage) entries() []rawMeeting {
	switch {
	case len(p.Items) > 0:
		return p.Items
	case len(p.Data) > 0:
		return p.Data
	}
	return p.Meetings
}

// ListMeetings follows cursor pagination and returns meetings ordered by
// relevance, then by start time.
func (a *Adapter) ListMeetings(ctx context.Context, window domain.TimeWindow) ([]domain.Meeting, error) {
	params := map[string]string{
		"created_after":  window.Start.UTC().Format(time.RFC3339),
		"created_before": window.End.UTC().Format(time.RFC3339),
	}

	var meetings []domain.Meeting
	cursor := ""
	for page := 0; page < a.maxPages; page++ {
		req := a.client.R().SetContext(ctx).SetQueryParams(params)
		if cursor != "" {
			req.SetQueryParam("cursor", cursor)
		}
		var out meetingPage
		resp, err := req.Get("/meetings")
		if err := source.DecodeJSON(sourceName, "list_meetings", resp, err, &out); err != nil {
			return nil, err
		}

		for _, raw := range out.entries() {
			m := toMeeting(raw)
			if m.ID == "" {
				continue
			}
			m.Relevance = a.Relevance(m.Title)
			meetings = append(meetings, m)
		}

		if out.NextCursor == "" || out.NextCursor == cursor {
			break
		}
		cursor = out.NextCursor
	}

	sort.SliceStable(meetings, func(i, j int) bool {
		if meetings[i].Relevance != meetings[j].Relevance {
			return meetings[i].Relevance == domain.RelevanceHigh
		}
		return meetings[i].StartedAt.Before(meetings[j].StartedAt)
	})
	return meetings, nil
}

// Relevance rates a meeting title against the configured search terms.
func (a *Adapter) Relevance(title string) string {
	lower := strings.ToLower(title)
	for _, term := range a.searchTerms {
		if strings.Contains(lower, term) {
			return domain.RelevanceHigh
		}
	}
	return domain.RelevanceLow
}

type transcriptSegment struct {
	Speaker struct {
		DisplayName string `json:"display_name"`
	} `json:"speaker"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

type transcriptEnvelope struct {
	Transcript []transcriptSegment `json:"transcript"`
}

type summaryEnvelope struct {
	Summary  string `json:"summary"`
	Content  string `json:"content"`
	Markdown string `json:"markdown"`
	Default  *struct {
		MarkdownFormatted string `json:"markdown_formatted"`
	} `json:"default_summary"`
}

// EnrichMeeting fetches transcript and summary for a meeting.
func (a *Adapter) EnrichMeeting(ctx context.Context, meeting domain.Meeting) (domain.Meeting, error) {
	transcript, err := a.fetchTranscript(ctx, meeting.ID)
	if err != nil {
		return meeting, err
	}
	summary, err := a.fetchSummary(ctx, meeting.ID)
	if err != nil {
		return meeting, err
	}
	meeting.Transcript = transcript
	meeting.Summary = summary
	return meeting, nil
}

func (a *Adapter) fetchTranscript(ctx context.Context, id string) (string, error) {
	resp, err := a.client.R().
		SetContext(ctx).
		SetPathParam("id", id).
		Get("/recordings/{id}/transcript")
	if err := source.ClassifyResponse(sourceName, "fetch_transcript", resp, err); err != nil {
		return "", err
	}

	body := resp.Body()
	var segments []transcriptSegment
	if err := json.Unmarshal(body, &segments); err != nil {
		var env transcriptEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return "", source.Malformed(sourceName, "fetch_transcript", err)
		}
		segments = env.Transcript
	}

	var b strings.Builder
	for _, seg := range segments {
		if seg.Text == "" {
			continue
		}
		speaker := seg.Speaker.DisplayName
		if speaker == "" {
			speaker = "Unknown"
		}
		if seg.Timestamp != "" {
			fmt.Fprintf(&b, "[%s] ", seg.Timestamp)
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, seg.Text)
	}
	return strings.TrimSpace(b.String()), nil
}

func (a *Adapter) fetchSummary(ctx context.Context, id string) (string, error) {
	var out summaryEnvelope
	resp, err := a.client.R().
		SetContext(ctx).
		SetPathParam("id", id).
		Get("/recordings/{id}/summary")
	if err := source.DecodeJSON(sourceName, "fetch_summary", resp, err, &out); err != nil {
		return "", err
	}

	for _, s := range []string{out.Summary, out.Content, out.Markdown} {
		if s != "" {
			return s, nil
		}
	}
	if out.Default != nil {
		return out.Default.MarkdownFormatted, nil
	}
	return "", nil
}

func toMeeting(raw rawMeeting) domain.Meeting {
	m := domain.Meeting{
		ID:        idString(raw.RecordingID),
		Title:     raw.Title,
		URL:       raw.URL,
		StartedAt: raw.CreatedAt,
	}
	if m.ID == "" {
		m.ID = idString(raw.ID)
	}
	if m.Title == "" {
		m.Title = raw.MeetingTitle
	}
	if m.Title == "" {
		m.Title = "Untitled meeting"
	}
	if raw.StartTime != nil {
		m.StartedAt = *raw.StartTime
	}
	switch {
	case raw.StartTime != nil && raw.EndTime != nil:
		m.DurationMinutes = int(raw.EndTime.Sub(*raw.StartTime).Minutes())
	case raw.Duration > 0:
		m.DurationMinutes = int(raw.Duration / 60)
	}
	return m
}

// idString accepts both numeric and string identifiers.
func idString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
