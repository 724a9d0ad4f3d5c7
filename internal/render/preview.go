package render

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// MarkdownToHTML converts report Markdown to an HTML fragment. Raw HTML in
// the input is dropped.
func MarkdownToHTML(md string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}

const previewPageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: -apple-system, Helvetica, Arial, sans-serif; max-width: 900px; margin: 2rem auto; color: #1e1e1e; line-height: 1.5; }
h1 { color: #213861; }
table { border-collapse: collapse; } td, th { border: 1px solid #ddd; padding: .25rem .5rem; }
.status { font-size: .85rem; color: #666; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p class="status">Status: {{.Status}}</p>
{{.Body}}
</body>
</html>`

var previewPage = template.Must(template.New("preview").Parse(previewPageHTML))

// PreviewPage wraps a report fragment in a standalone HTML page.
func PreviewPage(title, status string, body template.HTML) ([]byte, error) {
	var buf bytes.Buffer
	err := previewPage.Execute(&buf, struct {
		Title, Status string
		Body          template.HTML
	}{title, status, body})
	if err != nil {
		return nil, fmt.Errorf("render preview page: %w", err)
	}
	return buf.Bytes(), nil
}
