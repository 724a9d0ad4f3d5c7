package distribute

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/sprintreport/internal/config"
	"github.com/timmy/sprintreport/internal/domain"
	"github.com/timmy/sprintreport/internal/service"
)

func fastPolicy() service.RetryPolicy {
	return service.RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, CallTimeout: time.Second}
}

func approvedDelivery() Delivery {
	job := domain.NewJob("job-1", "2239", 38, time.Now())
	job.Sprint = &domain.SprintInfo{Name: "BOPS: Sprint 11"}
	job.Approval = &domain.Approval{Approved: true, DecidedBy: "lead@example.com", Comment: "ship it"}
	return Delivery{Job: job, Filename: "BOPS-Sprint-11_2239.pdf", Artifact: []byte("%PDF-1.4"), DownloadURL: "http://localhost/dl"}
}

func TestWebhookDistributor(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := NewWebhookDistributor(srv.URL, time.Second).Distribute(context.Background(), approvedDelivery())
	require.NoError(t, err)
	assert.Equal(t, "job-1", got.JobID)
	assert.Equal(t, "BOPS: Sprint 11", got.SprintName)
	assert.Equal(t, "lead@example.com", got.Approval.DecidedBy)
}

type countingDistributor struct {
	name  string
	calls int32
	err   error
}

func (c *countingDistributor) Name() string { return c.name }

func (c *countingDistributor) Distribute(context.Context, Delivery) error {
	atomic.AddInt32(&c.calls, 1)
	return c.err
}

func TestChainStopsAtFirstFailure(t *testing.T) {
	first := &countingDistributor{name: "first"}
	broken := &countingDistributor{name: "broken", err: domain.NewPermanentError("broken", "send", 403, nil)}
	never := &countingDistributor{name: "never"}

	d := approvedDelivery()
	err := NewChain(fastPolicy(), "", first, broken, never).Finalize(context.Background(), d.Job, d.Filename, d.Artifact)
	require.Error(t, err)

	var fin *domain.FinalizeError
	require.True(t, errors.As(err, &fin))
	assert.Equal(t, "broken", fin.Distributor)
	assert.Equal(t, domain.KindFinalize, domain.KindOf(err))
	assert.Equal(t, int32(1), first.calls)
	assert.Equal(t, int32(1), broken.calls)
	assert.Equal(t, int32(0), never.calls)
}

func TestChainRetriesTransientDelivery(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	chain := NewChain(fastPolicy(), "https://reports.example.com/", NewLogDistributor(), NewWebhookDistributor(srv.URL, time.Second))
	d := approvedDelivery()
	require.NoError(t, chain.Finalize(context.Background(), d.Job, d.Filename, d.Artifact))
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	assert.Equal(t, []string{"log", "webhook"}, chain.Names())
}

func TestTelegramDistributor(t *testing.T) {
	var sent int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"reports","username":"reports_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendDocument"):
			atomic.AddInt32(&sent, 1)
			assert.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "42", r.FormValue("chat_id"))
			assert.Contains(t, r.FormValue("caption"), "approved by lead@example.com")
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	tg, err := NewTelegramDistributor("token", 42, srv.URL+"/bot%s/%s")
	require.NoError(t, err)
	require.NoError(t, tg.Distribute(context.Background(), approvedDelivery()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&sent))
}

func TestFromConfig(t *testing.T) {
	ds, err := FromConfig(&config.DistributionConfig{})
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, "log", ds[0].Name())

	ds, err = FromConfig(&config.DistributionConfig{
		Targets: []string{"log", "webhook"},
		Webhook: config.WebhookConfig{URL: "http://example.com/hook"},
	})
	require.NoError(t, err)
	assert.Len(t, ds, 2)

	_, err = FromConfig(&config.DistributionConfig{Targets: []string{"webhook"}})
	assert.Error(t, err)
	_, err = FromConfig(&config.DistributionConfig{Targets: []string{"carrier-pigeon"}})
	assert.Error(t, err)
}
