package fathom

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/sprintreport/internal/domain"
)

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestListMeetingsFollowsCursor(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/meetings", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-1", r.Header.Get("X-Api-Key"))
		assert.NotEmpty(t, r.URL.Query().Get("created_after"))
		if r.URL.Query().Get("cursor") == "" {
			writeJSON(w, map[string]interface{}{
				"items": []map[string]interface{}{
					{"recording_id": 11, "title": "Design sync", "created_at": "2026-03-03T10:00:00Z"},
				},
				"next_cursor": "page-2",
			})
			return
		}
		writeJSON(w, map[string]interface{}{
			"items": []map[string]interface{}{
				{"recording_id": "22", "title": "Sprint Planning", "created_at": "2026-03-04T10:00:00Z"},
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a := NewAdapter(Config{BaseURL: srv.URL, APIKey: "key-1", SearchTerms: []string{"Planning"}})
	window := domain.TimeWindow{
		Start: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 18, 0, 0, 0, 0, time.UTC),
	}

	meetings, err := a.ListMeetings(context.Background(), window)
	require.NoError(t, err)
	require.Len(t, meetings, 2)
	assert.Equal(t, "22", meetings[0].ID)
	assert.Equal(t, domain.RelevanceHigh, meetings[0].Relevance)
	assert.Equal(t, "11", meetings[1].ID)
	assert.Equal(t, domain.RelevanceLow, meetings[1].Relevance)
}

func TestEnrichMeeting(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/recordings/22/transcript", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"transcript": []map[string]interface{}{
				{"speaker": map[string]string{"display_name": "Ana"}, "text": "We shipped approvals.", "timestamp": "00:01:02"},
			},
		})
	})
	mux.HandleFunc("/recordings/22/summary", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"summary": "Approvals shipped."})
	})
	mux.HandleFunc("/recordings/33/transcript", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a := NewAdapter(Config{BaseURL: srv.URL, APIKey: "key-1"})

	m, err := a.EnrichMeeting(context.Background(), domain.Meeting{ID: "22", Title: "Sprint Planning"})
	require.NoError(t, err)
	assert.Equal(t, "[00:01:02] Ana: We shipped approvals.", m.Transcript)
	assert.Equal(t, "Approvals shipped.", m.Summary)

	_, err = a.EnrichMeeting(context.Background(), domain.Meeting{ID: "33"})
	assert.True(t, domain.IsTransient(err))
}

func TestUndecodableResponsesArePermanent(t *testing.T) {
	loginPage := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>Please log in</html>"))
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/meetings", loginPage)
	mux.HandleFunc("/recordings/44/transcript", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]interface{}{{"speaker": map[string]string{"display_name": "Ana"}, "text": "Hi"}})
	})
	mux.HandleFunc("/recordings/44/summary", loginPage)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a := NewAdapter(Config{BaseURL: srv.URL, APIKey: "key-1"})
	var ue *domain.UpstreamError

	_, err := a.ListMeetings(context.Background(), domain.TimeWindow{Start: time.Now().Add(-time.Hour), End: time.Now()})
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, domain.Permanent, ue.Class)
	assert.Equal(t, "list_meetings", ue.Op)

	_, err = a.EnrichMeeting(context.Background(), domain.Meeting{ID: "44"})
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, domain.Permanent, ue.Class)
	assert.Equal(t, "fetch_summary", ue.Op)
}
