package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TimeWindow is an inclusive time range used to select meetings.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// SprintInfo describes the sprint a report is generated for.
type SprintInfo struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	State     string     `json:"state,omitempty"`
	Goal      string     `json:"goal,omitempty"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	BoardID   int        `json:"board_id,omitempty"`
}

// Clone returns a copy that shares no pointers with s.
func (s SprintInfo) Clone() SprintInfo {
	cp := s
	if s.StartDate != nil {
		t := *s.StartDate
		cp.StartDate = &t
	}
	if s.EndDate != nil {
		t := *s.EndDate
		cp.EndDate = &t
	}
	return cp
}

// Issue is a single work item in the sprint.
type Issue struct {
	Key            string          `json:"key"`
	Summary        string          `json:"summary"`
	Type           string          `json:"type"`
	Status         string          `json:"status"`
	StatusCategory string          `json:"status_category"`
	Assignee       string          `json:"assignee,omitempty"`
	Priority       string          `json:"priority,omitempty"`
	StoryPoints    decimal.Decimal `json:"story_points"`
}

// SprintMetrics is the mandatory quantitative input of a report.
type SprintMetrics struct {
	TotalIssues              int             `json:"total_issues"`
	CompletedIssues          int             `json:"completed_issues"`
	InProgressIssues         int             `json:"in_progress_issues"`
	TodoIssues               int             `json:"todo_issues"`
	CompletionRate           float64         `json:"completion_rate"`
	TotalStoryPoints         decimal.Decimal `json:"total_story_points"`
	CompletedStoryPoints     decimal.Decimal `json:"completed_story_points"`
	StoryPointCompletionRate float64         `json:"story_point_completion_rate"`
	IssuesByType             map[string]int  `json:"issues_by_type"`
	IssuesByStatus           map[string]int  `json:"issues_by_status"`
	Issues                   []Issue         `json:"issues"`
}

// Meeting relevance levels derived from title matching.
const (
	RelevanceHigh = "high"
	RelevanceLow  = "low"
)

// Meeting is one recorded team meeting, possibly enriched with notes.
type Meeting struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	StartedAt       time.Time `json:"started_at"`
	DurationMinutes int       `json:"duration_minutes,omitempty"`
	URL             string    `json:"url,omitempty"`
	Relevance       string    `json:"relevance,omitempty"`
	Summary         string    `json:"summary,omitempty"`
	Transcript      string    `json:"transcript,omitempty"`
	Degraded        bool      `json:"degraded"`
	DegradedReason  string    `json:"degraded_reason,omitempty"`
}

// Provenance records where the aggregated input came from and how complete it is.
type Provenance struct {
	MeetingsTotal       int       `json:"meetings_total"`
	Succeeded           int       `json:"succeeded"`
	Degraded            int       `json:"degraded"`
	MeetingsUnavailable bool      `json:"meetings_unavailable"`
	Note                string    `json:"note,omitempty"`
	CollectedAt         time.Time `json:"collected_at"`
}

// AggregatedInput is everything the synthesizer needs for one sprint.
type AggregatedInput struct {
	Sprint     SprintInfo    `json:"sprint"`
	Window     TimeWindow    `json:"window"`
	Metrics    SprintMetrics `json:"metrics"`
	Meetings   []Meeting     `json:"meetings"`
	Provenance Provenance    `json:"provenance"`
}

// AggregateRequest identifies the sprint and meeting window to collect.
type AggregateRequest struct {
	SprintRef string
	BoardRef  int
	Window    *TimeWindow
}

// ValidationReport is the result of checking a report against its structural contract.
type ValidationReport struct {
	Valid           bool     `json:"valid"`
	MissingSections []string `json:"missing_sections"`
	FoundSections   []string `json:"found_sections,omitempty"`
	Placeholders    []string `json:"placeholders,omitempty"`
	WordCount       int      `json:"word_count"`
	Warnings        []string `json:"warnings,omitempty"`
}

// Clone returns a copy that shares no slices with v.
func (v ValidationReport) Clone() ValidationReport {
	cp := v
	cp.MissingSections = append([]string(nil), v.MissingSections...)
	cp.FoundSections = append([]string(nil), v.FoundSections...)
	cp.Placeholders = append([]string(nil), v.Placeholders...)
	cp.Warnings = append([]string(nil), v.Warnings...)
	return cp
}

// SynthesizedReport is validated report text plus its validation outcome.
type SynthesizedReport struct {
	Text       string
	Validation ValidationReport
	Provider   string
	Model      string
	Attempts   int
}
