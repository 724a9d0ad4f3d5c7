package render

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"time"
)

// ApprovalFormData fills the approval page.
type ApprovalFormData struct {
	JobID       string
	SprintName  string
	SprintRef   string
	ReportHTML  template.HTML
	WebhookURL  string
	DownloadURL string
	GeneratedAt time.Time
	Deadline    *time.Time
}

const approvalFormHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Approve {{.SprintName}}</title>
<style>
body { font-family: -apple-system, Helvetica, Arial, sans-serif; max-width: 900px; margin: 2rem auto; color: #1e1e1e; }
header { background: #213861; color: #fff; padding: 1rem 1.5rem; border-radius: 6px; }
.report { border: 1px solid #ddd; border-radius: 6px; padding: 1rem 1.5rem; margin: 1.5rem 0; }
form { background: #f6f7f9; padding: 1rem 1.5rem; border-radius: 6px; }
label { display: block; margin: .5rem 0 .25rem; font-weight: 600; }
textarea, input[type=text] { width: 100%; box-sizing: border-box; padding: .4rem; }
button { margin-top: 1rem; padding: .5rem 1.5rem; border: 0; border-radius: 4px; color: #fff; cursor: pointer; }
.approve { background: #2e7d32; } .reject { background: #c62828; }
.meta { font-size: .85rem; color: #ddd; }
</style>
</head>
<body>
<header>
<h1>{{.SprintName}}</h1>
<div class="meta">Sprint {{.SprintRef}} &middot; job {{.JobID}} &middot; generated {{.GeneratedAt.Format "2006-01-02 15:04"}}{{if .Deadline}} &middot; decide by {{.Deadline.Format "2006-01-02 15:04 MST"}}{{end}}</div>
</header>
{{if .DownloadURL}}<p><a href="{{.DownloadURL}}">Download PDF</a></p>{{end}}
<div class="report">{{.ReportHTML}}</div>
<form method="post" action="{{.WebhookURL}}">
<input type="hidden" name="job_id" value="{{.JobID}}">
<label for="approver">Your name or email</label>
<input type="text" id="approver" name="approver" required>
<label for="comment">Comment</label>
<textarea id="comment" name="comment" rows="3"></textarea>
<button class="approve" type="submit" name="approved" value="true">Approve</button>
<button class="reject" type="submit" name="approved" value="false">Reject</button>
</form>
</body>
</html>`

var approvalForm = template.Must(template.New("approval").Parse(approvalFormHTML))

// ApprovalForm renders the approval page. The webhook URL must be absolute
// http(s).
func ApprovalForm(data ApprovalFormData) ([]byte, error) {
	u, err := url.Parse(data.WebhookURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid webhook url %q", data.WebhookURL)
	}
	var buf bytes.Buffer
	if err := approvalForm.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render approval form: %w", err)
	}
	return buf.Bytes(), nil
}
