// Package jira reads sprint details and issues from the JIRA Agile REST API.
package jira

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/timmy/sprintreport/internal/domain"
	"github.com/timmy/sprintreport/internal/source"
)

const sourceName = "jira"

// Adapter implements source.SprintSource against JIRA Cloud.
type Adapter struct {
	client   *resty.Client
	pageSize int
}

// Config holds connection settings for the JIRA adapter.
type Config struct {
	BaseURL  string
	Email    string
	APIToken string
	PageSize int
	Timeout  time.Duration
}

// NewAdapter creates a JIRA adapter.
// Parameters:
//   - cfg: base URL, basic-auth credentials and paging size.
//
// Returns:
//   - *Adapter: adapter ready for use.
func NewAdapter(cfg Config) *Adapter {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetBasicAuth(cfg.Email, cfg.APIToken).
		SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	return &Adapter{client: client, pageSize: cfg.PageSize}
}

type sprintResponse struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	State         string `json:"state"`
	Goal          string `json:"goal"`
	StartDate     string `json:"startDate"`
	EndDate       string `json:"endDate"`
	OriginBoardID int    `json:"originBoardId"`
}

type issuePage struct {
	StartAt    int        `json:"startAt"`
	MaxResults int        `json:"maxResults"`
	Total      int        `json:"total"`
	Issues     []rawIssue `json:"issues"`
}

type rawIssue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary string `json:"summary"`
		Status  struct {
			Name           string `json:"name"`
			StatusCategory struct {
				Name string `json:"name"`
			} `json:"statusCategory"`
		} `json:"status"`
		IssueType struct {
			Name string `json:"name"`
		} `json:"issuetype"`
		Assignee *struct {
			DisplayName string `json:"displayName"`
		} `json:"assignee"`
		Priority *struct {
			Name string `json:"name"`
		} `json:"priority"`
		StoryPoints      *decimal.Decimal `json:"customfield_10016"`
		StoryPointsAlt   *decimal.Decimal `json:"customfield_10026"`
		StoryPointsClass *decimal.Decimal `json:"customfield_10004"`
	} `json:"fields"`
}

var issueFields = strings.Join([]string{
	"summary", "status", "assignee", "issuetype", "priority",
	"customfield_10016", "customfield_10026", "customfield_10004",
}, ",")

// FetchSprint returns sprint details for a numeric sprint ID.
func (a *Adapter) FetchSprint(ctx context.Context, sprintRef string) (*domain.SprintInfo, error) {
	var out sprintResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetPathParam("id", sprintRef).
		Get("/rest/agile/1.0/sprint/{id}")
	if err := source.DecodeJSON(sourceName, "fetch_sprint", resp, err, &out); err != nil {
		return nil, err
	}

	info := &domain.SprintInfo{
		ID:      sprintRef,
		Name:    out.Name,
		State:   out.State,
		Goal:    out.Goal,
		BoardID: out.OriginBoardID,
	}
	if t, ok := parseTime(out.StartDate); ok {
		info.StartDate = &t
	}
	if t, ok := parseTime(out.EndDate); ok {
		info.EndDate = &t
	}
	return info, nil
}

// FetchSprintMetrics pages through every sprint issue and computes metrics.
func (a *Adapter) FetchSprintMetrics(ctx context.Context, sprintRef string) (*domain.SprintMetrics, error) {
	var issues []domain.Issue
	startAt := 0
	for {
		var page issuePage
		resp, err := a.client.R().
			SetContext(ctx).
			SetPathParam("id", sprintRef).
			SetQueryParams(map[string]string{
				"startAt":    fmt.Sprint(startAt),
				"maxResults": fmt.Sprint(a.pageSize),
				"fields":     issueFields,
			}).
			Get("/rest/agile/1.0/sprint/{id}/issue")
		if err := source.DecodeJSON(sourceName, "fetch_issues", resp, err, &page); err != nil {
			return nil, err
		}

		for _, raw := range page.Issues {
			issues = append(issues, toIssue(raw))
		}

		startAt += len(page.Issues)
		if len(page.Issues) == 0 || startAt >= page.Total {
			break
		}
	}

	return ComputeMetrics(issues), nil
}

func toIssue(raw rawIssue) domain.Issue {
	f := raw.Fields
	issue := domain.Issue{
		Key:            raw.Key,
		Summary:        f.Summary,
		Type:           f.IssueType.Name,
		Status:         f.Status.Name,
		StatusCategory: f.Status.StatusCategory.Name,
	}
	if issue.Status == "" {
		issue.Status = "Unknown"
	}
	if issue.Type == "" {
		issue.Type = "Unknown"
	}
	if f.Assignee != nil {
		issue.Assignee = f.Assignee.DisplayName
	}
	if f.Priority != nil {
		issue.Priority = f.Priority.Name
	}
	for _, sp := range []*decimal.Decimal{f.StoryPoints, f.StoryPointsAlt, f.StoryPointsClass} {
		if sp != nil && !sp.IsZero() {
			issue.StoryPoints = *sp
			break
		}
	}
	return issue
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.000-0700", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
