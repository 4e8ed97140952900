package deliver

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/avolkov/paperboy/internal/model"
)

// Subject builds the email subject line for a digest
func Subject(prefix string, digest model.Digest) string {
	if prefix == "" {
		prefix = "Research Digest"
	}
	return fmt.Sprintf("%s - %s (%d papers)", prefix, digest.GeneratedAt.Format("2006-01-02"), digest.Len())
}

var htmlTemplate = template.Must(template.New("digest").Funcs(template.FuncMap{"join": strings.Join}).Parse(`<html>
<body style="font-family:'Segoe UI',Roboto,Arial,sans-serif;color:#1F2937;max-width:720px;margin:0 auto;">
<h1 style="font-size:20px;">Research Digest - {{.GeneratedAt.Format "Monday, January 2, 2006"}}</h1>
<p style="color:#6B7280;">{{.Len}} papers selected from {{.TotalSeen}} fetched.</p>

{{if .Empty}}
<p>No relevant papers today.</p>
{{else}}

{{if .TopPicks}}
<h2 style="font-size:16px;">Top Picks</h2>
{{range .TopPicks}}{{template "paper" .}}{{end}}
{{end}}

{{range .Buckets}}
<h2 style="font-size:16px;">{{.Name}}</h2>
{{range .Papers}}{{template "paper" .}}{{end}}
{{end}}

{{if .Noteworthy}}
<h2 style="font-size:16px;">Also Noteworthy</h2>
{{range .Noteworthy}}{{template "paper" .}}{{end}}
{{end}}

{{end}}
</body>
</html>

{{define "paper"}}
<div style="border:1px solid #E5E7EB;border-radius:8px;padding:12px;margin-bottom:12px;">
  <p style="margin:0;"><strong>{{if .AbstractURL}}<a href="{{.AbstractURL}}">{{.Title}}</a>{{else}}{{.Title}}{{end}}</strong> <span style="color:#6B7280;">({{.FinalScore}}/100)</span></p>
  {{if .Authors}}<p style="margin:4px 0;color:#6B7280;font-size:13px;">{{join .Authors ", "}}</p>{{end}}
  {{if .Summary}}<p style="margin:4px 0;font-size:14px;">{{.Summary}}</p>{{end}}
  {{if .Rationale}}<p style="margin:4px 0;font-size:13px;color:#374151;"><em>{{.Rationale}}</em></p>{{end}}
  {{if .CodeURLs}}<p style="margin:4px 0;font-size:13px;">Code: {{range .CodeURLs}}<a href="{{.}}">{{.}}</a> {{end}}</p>{{end}}
  {{if .DatasetURLs}}<p style="margin:4px 0;font-size:13px;">Data: {{range .DatasetURLs}}<a href="{{.}}">{{.}}</a> {{end}}</p>{{end}}
</div>
{{end}}`))

// RenderHTML renders the digest email body
func RenderHTML(digest model.Digest) (string, error) {
	var b strings.Builder
	if err := htmlTemplate.Execute(&b, digest); err != nil {
		return "", fmt.Errorf("render digest: %w", err)
	}
	return b.String(), nil
}

// RenderText renders a plain-text fallback body
func RenderText(digest model.Digest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Research Digest - %s\n", digest.GeneratedAt.Format("2006-01-02"))
	fmt.Fprintf(&b, "%d papers selected from %d fetched.\n\n", digest.Len(), digest.TotalSeen)

	if digest.Empty() {
		b.WriteString("No relevant papers today.\n")
		return b.String()
	}

	writeSection := func(title string, papers []model.ScoredPaper) {
		if len(papers) == 0 {
			return
		}
		fmt.Fprintf(&b, "== %s ==\n", title)
		for _, p := range papers {
			fmt.Fprintf(&b, "- [%d] %s\n", p.FinalScore, p.Title)
			if p.AbstractURL != "" {
				fmt.Fprintf(&b, "  %s\n", p.AbstractURL)
			}
			if p.Summary != "" {
				fmt.Fprintf(&b, "  %s\n", p.Summary)
			}
		}
		b.WriteString("\n")
	}

	writeSection("Top Picks", digest.TopPicks)
	for _, bucket := range digest.Buckets {
		writeSection(bucket.Name, bucket.Papers)
	}
	writeSection("Also Noteworthy", digest.Noteworthy)

	return b.String()
}
