package render

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleReport = `# BOPS Sprint 11 Report

## Sprint Overview
The team delivered **onboarding** ahead of plan. See [board](https://jira.example.com).

## Completed Work
- BOPS-101 onboarding flow
- BOPS-102 ` + "`billing`" + ` fixes

## Metrics
| Metric | Value |
|---|---|
| Completion | 82% |

1. Finish export
2. Start audit log

---
**Next Sprint Plan**
Ship it. Café ñ ü.`

func TestParseBlocks(t *testing.T) {
	blocks := parseBlocks(sampleReport)

	var headings, bullets, numbered []string
	var table string
	for _, b := range blocks {
		switch b.kind {
		case blockHeading:
			headings = append(headings, b.text)
		case blockBullet:
			bullets = append(bullets, b.text)
		case blockNumbered:
			numbered = append(numbered, b.mark+" "+b.text)
		case blockParagraph:
			if strings.Contains(b.text, "Completion") {
				table = b.text
			}
		}
	}
	assert.Equal(t, []string{"BOPS Sprint 11 Report", "Sprint Overview", "Completed Work", "Metrics", "Next Sprint Plan"}, headings)
	assert.Equal(t, []string{"BOPS-101 onboarding flow", "BOPS-102 billing fixes"}, bullets)
	assert.Equal(t, []string{"1. Finish export", "2. Start audit log"}, numbered)
	assert.Equal(t, "Completion  |  82%", table)
	assert.Equal(t, "The team delivered onboarding ahead of plan. See board.", plain("The team delivered **onboarding** ahead of plan. See [board](https://x)."))
}

func TestPDFRender(t *testing.T) {
	r := NewPDFRenderer()
	out, err := r.Render(context.Background(), Document{
		Title:       "BOPS: Sprint 11",
		Subtitle:    "Mar 2 - Mar 16, 2026",
		Markdown:    sampleReport,
		GeneratedAt: time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
	assert.True(t, bytes.Contains(out, []byte("%%EOF")))
}

func TestPDFRenderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewPDFRenderer().Render(ctx, Document{Title: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMarkdownToHTML(t *testing.T) {
	out, err := MarkdownToHTML("## Metrics\n\n| a | b |\n|---|---|\n| 1 | 2 |\n\n<script>alert(1)</script>")
	require.NoError(t, err)
	s := string(out)
	assert.Contains(t, s, "<h2>Metrics</h2>")
	assert.Contains(t, s, "<table>")
	assert.NotContains(t, s, "<script>")
}

func TestApprovalForm(t *testing.T) {
	report, err := MarkdownToHTML("## Sprint Overview\nAll good")
	require.NoError(t, err)

	out, err := ApprovalForm(ApprovalFormData{
		JobID:       "job-1",
		SprintName:  "BOPS: Sprint 11 <beta>",
		SprintRef:   "2239",
		ReportHTML:  report,
		WebhookURL:  "https://n8n.example.com/webhook/approve?x=1",
		GeneratedAt: time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	s := string(out)
	assert.Contains(t, s, `action="https://n8n.example.com/webhook/approve?x=1"`)
	assert.Contains(t, s, "<h2>Sprint Overview</h2>")
	assert.Contains(t, s, "BOPS: Sprint 11 &lt;beta&gt;")
	assert.Contains(t, s, `value="job-1"`)

	_, err = ApprovalForm(ApprovalFormData{WebhookURL: "javascript:alert(1)"})
	assert.Error(t, err)
}
