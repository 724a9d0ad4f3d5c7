package jira

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/sprintreport/internal/domain"
)

func issueJSON(key, status, category, typ string, points interface{}) map[string]interface{} {
	return map[string]interface{}{
		"key": key,
		"fields": map[string]interface{}{
			"summary":           key + " summary",
			"status":            map[string]interface{}{"name": status, "statusCategory": map[string]string{"name": category}},
			"issuetype":         map[string]string{"name": typ},
			"customfield_10016": points,
		},
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	all := []map[string]interface{}{
		issueJSON("BOPS-1", "Done", "Done", "Story", 5),
		issueJSON("BOPS-2", "In Review", "In Progress", "Story", 3),
		issueJSON("BOPS-3", "To Do", "To Do", "Bug", nil),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/rest/agile/1.0/sprint/2239", func(w http.ResponseWriter, r *http.Request) {
		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "bot@example.com", user)
		writeJSON(w, map[string]interface{}{
			"id": 2239, "name": "BOPS: Sprint 11", "state": "closed", "goal": "Ship approvals",
			"startDate": "2026-03-02T09:00:00.000Z", "endDate": "2026-03-16T09:00:00.000Z", "originBoardId": 38,
		})
	})
	mux.HandleFunc("/rest/agile/1.0/sprint/2239/issue", func(w http.ResponseWriter, r *http.Request) {
		startAt, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
		end := startAt + 2
		if end > len(all) {
			end = len(all)
		}
		writeJSON(w, map[string]interface{}{
			"startAt": startAt, "maxResults": 2, "total": len(all), "issues": all[startAt:end],
		})
	})
	mux.HandleFunc("/rest/agile/1.0/sprint/401", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/rest/agile/1.0/sprint/503", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	loginPage := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>Please log in</body></html>"))
	}
	mux.HandleFunc("/rest/agile/1.0/sprint/777", loginPage)
	mux.HandleFunc("/rest/agile/1.0/sprint/777/issue", loginPage)
	return httptest.NewServer(mux)
}

func TestFetchSprint(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	a := NewAdapter(Config{BaseURL: srv.URL, Email: "bot@example.com", APIToken: "token", PageSize: 2})
	info, err := a.FetchSprint(context.Background(), "2239")
	require.NoError(t, err)

	assert.Equal(t, "BOPS: Sprint 11", info.Name)
	assert.Equal(t, 38, info.BoardID)
	require.NotNil(t, info.StartDate)
	require.NotNil(t, info.EndDate)
	assert.Equal(t, 2, info.StartDate.Day())
	assert.Equal(t, 16, info.EndDate.Day())
}

func TestFetchSprintMetricsPaginates(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	a := NewAdapter(Config{BaseURL: srv.URL, Email: "bot@example.com", APIToken: "token", PageSize: 2})
	m, err := a.FetchSprintMetrics(context.Background(), "2239")
	require.NoError(t, err)

	assert.Equal(t, 3, m.TotalIssues)
	assert.Equal(t, 1, m.CompletedIssues)
	assert.Equal(t, 1, m.InProgressIssues)
	assert.Equal(t, 1, m.TodoIssues)
	assert.Equal(t, 33.33, m.CompletionRate)
	assert.True(t, decimal.NewFromInt(8).Equal(m.TotalStoryPoints))
	assert.True(t, decimal.NewFromInt(5).Equal(m.CompletedStoryPoints))
	assert.Equal(t, 62.5, m.StoryPointCompletionRate)
	assert.Equal(t, 2, m.IssuesByType["Story"])
	assert.Len(t, m.Issues, 3)
}

func TestFetchSprintClassifiesFailures(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	a := NewAdapter(Config{BaseURL: srv.URL, Email: "bot@example.com", APIToken: "token"})

	_, err := a.FetchSprint(context.Background(), "401")
	var ue *domain.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, domain.Permanent, ue.Class)
	assert.Equal(t, 401, ue.StatusCode)

	_, err = a.FetchSprint(context.Background(), "503")
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, domain.Transient, ue.Class)
}

func TestUndecodableSuccessIsPermanent(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	a := NewAdapter(Config{BaseURL: srv.URL, Email: "bot@example.com", APIToken: "token"})

	testCases := []struct {
		name string
		call func() error
	}{
		{"sprint", func() error { _, err := a.FetchSprint(context.Background(), "777"); return err }},
		{"metrics", func() error { _, err := a.FetchSprintMetrics(context.Background(), "777"); return err }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call()
			var ue *domain.UpstreamError
			require.ErrorAs(t, err, &ue)
			assert.Equal(t, domain.Permanent, ue.Class)
			assert.Equal(t, "jira", ue.Source)
			assert.Contains(t, err.Error(), "text/html")
		})
	}
}
