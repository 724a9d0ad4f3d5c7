// Package prompts holds the prompt templates used to synthesize sprint reports.
package prompts

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/timmy/sprintreport/internal/domain"
)

// DefaultGuide is used when no guide file is configured or readable.
const DefaultGuide = `# Sprint Report Guide

Write the report in Markdown with one "##" heading per section, in this order:

## Sprint Overview
Sprint name, dates, goal, and a short summary of the outcome.

## Completed Work
Finished issues grouped by theme, with issue keys.

## In Progress
Carried-over work with its current state.

## Blockers and Risks
Impediments from meetings or JIRA, with owners where known.

## Metrics
Completion rate, story points completed versus committed, counts by type and status.

## Next Sprint Plan
Priorities and decisions for the upcoming sprint.`

const systemTemplate = `You are an expert Sprint Report Generator for %s.

Your task is to create a professional Sprint report following the exact structure and format of the Sprint Report Guide below.

# Sprint Report Guide (Your Template)

%s

# Your Mission

Generate a polished Sprint report that follows the guide's structure, uses the JIRA sprint data with real issue keys and numbers, references decisions and action items from the team meeting notes, and ends with a clear plan for the next sprint.

# Critical Guidelines

- DO NOT invent information. Use only the JIRA data and meeting notes provided.
- DO NOT skip sections. Include every section from the guide as a "##" heading.
- DO NOT leave placeholders such as TODO, TBD or bracketed fill-ins.
- Meetings marked [notes unavailable] had no notes; mention them only by title.
- Keep the tone executive friendly and concise.

# Output Format

Return only the complete Sprint report in Markdown.`

// BuildSystemPrompt embeds the guide in the system instructions.
func BuildSystemPrompt(teamName, guide string) string {
	if strings.TrimSpace(guide) == "" {
		guide = DefaultGuide
	}
	if teamName == "" {
		teamName = "the engineering team"
	}
	return fmt.Sprintf(systemTemplate, teamName, guide)
}

// BuildUserPrompt renders sprint metadata, metrics and meeting notes.
// Parameters:
//   - in: aggregated sprint input.
//   - meetingNotes: meetings rendered with FormatMeeting, already fitted to the token budget.
//
// Returns:
//   - string: the user message.
func BuildUserPrompt(in *domain.AggregatedInput, meetingNotes string) string {
	var b strings.Builder
	b.WriteString("Generate a Sprint Report for the following Sprint:\n\n# Sprint Information\n\n")
	fmt.Fprintf(&b, "- **Sprint ID**: %s\n", orNA(in.Sprint.ID))
	fmt.Fprintf(&b, "- **Sprint Name**: %s\n", orNA(in.Sprint.Name))
	fmt.Fprintf(&b, "- **Date Range**: %s to %s\n", dateOrNA(in.Sprint.StartDate), dateOrNA(in.Sprint.EndDate))
	fmt.Fprintf(&b, "- **Sprint Goal**: %s\n\n", orNA(in.Sprint.Goal))

	b.WriteString("# JIRA Sprint Data\n\n")
	b.WriteString(FormatMetrics(in.Metrics))
	b.WriteString("\n\n# Team Meeting Notes (from Fathom)\n\n")
	b.WriteString(meetingNotes)
	if in.Provenance.Note != "" {
		fmt.Fprintf(&b, "\n\nNote on meeting data: %s", in.Provenance.Note)
	}
	b.WriteString("\n\n---\n\nPlease generate the complete Sprint Report following the Sprint Report Guide structure provided in the system prompt. Include all sections and use the actual data provided above.")
	return b.String()
}

// FormatMetrics renders metrics as a fenced JSON block.
func FormatMetrics(m domain.SprintMetrics) string {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", m)
	}
	return "```json\n" + string(data) + "\n```"
}

// FormatMeeting renders one meeting with an optional transcript excerpt.
func FormatMeeting(i int, m domain.Meeting, transcript string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Meeting %d: %s\n**Date**: %s\n", i, m.Title, m.StartedAt.Format("2006-01-02"))
	if m.Degraded {
		b.WriteString("[notes unavailable]\n")
		return b.String()
	}
	summary := m.Summary
	if summary == "" {
		summary = "No summary available"
	}
	fmt.Fprintf(&b, "\n%s\n", summary)
	if transcript != "" {
		fmt.Fprintf(&b, "\n**Transcript excerpt**:\n%s\n", transcript)
	}
	return b.String()
}

// NoMeetingsText is used when the sprint has no meeting notes.
const NoMeetingsText = "No meeting notes available for this Sprint."

// CorrectiveInstruction is appended to the user prompt after a report fails validation.
func CorrectiveInstruction(v domain.ValidationReport) string {
	var problems []string
	if len(v.MissingSections) > 0 {
		problems = append(problems, fmt.Sprintf("it is missing these required sections: %s", strings.Join(v.MissingSections, ", ")))
	}
	if len(v.Placeholders) > 0 {
		problems = append(problems, fmt.Sprintf("it contains placeholder markers: %s", strings.Join(v.Placeholders, ", ")))
	}
	problems = append(problems, v.Warnings...)
	if len(problems) == 0 {
		problems = append(problems, "it did not follow the required structure")
	}
	return "\n\n# Correction Required\n\nYour previous report was rejected because " +
		strings.Join(problems, "; ") +
		". Regenerate the complete report. Every required section must appear as a \"##\" heading, and no placeholder text may remain."
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func dateOrNA(t *time.Time) string {
	if t == nil {
		return "N/A"
	}
	return t.Format("2006-01-02")
}
