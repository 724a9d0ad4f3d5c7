package jira

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/timmy/sprintreport/internal/domain"
)

var (
	doneNames       = []string{"done", "closed", "resolved"}
	inProgressNames = []string{"in progress", "in development", "in review"}
)

// IsDone reports whether an issue counts as completed.
func IsDone(issue domain.Issue) bool {
	return issue.StatusCategory == "Done" || oneOf(strings.ToLower(issue.Status), doneNames)
}

// IsInProgress reports whether an issue counts as in progress.
func IsInProgress(issue domain.Issue) bool {
	return issue.StatusCategory == "In Progress" || oneOf(strings.ToLower(issue.Status), inProgressNames)
}

// ComputeMetrics aggregates sprint metrics from the issue list.
func ComputeMetrics(issues []domain.Issue) *domain.SprintMetrics {
	m := &domain.SprintMetrics{
		TotalIssues:          len(issues),
		TotalStoryPoints:     decimal.Zero,
		CompletedStoryPoints: decimal.Zero,
		IssuesByType:         map[string]int{},
		IssuesByStatus:       map[string]int{},
		Issues:               issues,
	}

	for _, issue := range issues {
		m.IssuesByStatus[issue.Status]++
		m.IssuesByType[issue.Type]++
		m.TotalStoryPoints = m.TotalStoryPoints.Add(issue.StoryPoints)

		switch {
		case IsDone(issue):
			m.CompletedIssues++
			m.CompletedStoryPoints = m.CompletedStoryPoints.Add(issue.StoryPoints)
		case IsInProgress(issue):
			m.InProgressIssues++
		default:
			m.TodoIssues++
		}
	}

	m.CompletionRate = percent(decimal.NewFromInt(int64(m.CompletedIssues)), decimal.NewFromInt(int64(m.TotalIssues)))
	m.StoryPointCompletionRate = percent(m.CompletedStoryPoints, m.TotalStoryPoints)
	return m
}

func percent(part, whole decimal.Decimal) float64 {
	if whole.IsZero() {
		return 0
	}
	f, _ := part.Mul(decimal.NewFromInt(100)).Div(whole).Round(2).Float64()
	return f
}

func oneOf(s string, options []string) bool {
	for _, o := range options {
		if s == o {
			return true
		}
	}
	return false
}
