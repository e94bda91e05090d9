package reporting

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"quill/internal/queue"
	"quill/internal/services"
)

//go:embed templates/report.html.tmpl
var templateFS embed.FS

var reportTemplate = template.Must(template.New("report.html.tmpl").Funcs(template.FuncMap{
	"clip": services.Truncate,
	"ctr":  func(post queue.TrackedPost) string { return fmt.Sprintf("%.1f%%", CTR(post)) },
	"orDash": func(value string) string {
		if strings.TrimSpace(value) == "" {
			return "-"
		}
		return value
	},
	"seconds": func(v float64) string {
		if v <= 0 {
			return "-"
		}
		return time.Duration(v * float64(time.Second)).Round(time.Second).String()
	},
}).ParseFS(templateFS, "templates/report.html.tmpl"))

// FromLabel formats the start of the period in the report time zone.
func (s Summary) FromLabel() string { return s.From.In(s.loc()).Format("Jan 2, 2006") }

// ToLabel formats the end of the period in the report time zone.
func (s Summary) ToLabel() string { return s.To.In(s.loc()).Format("Jan 2, 2006") }

// HTML renders the summary as an email body.
func HTML(s Summary) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, s); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return buf.String(), nil
}

// Text renders the plain-text preview printed by `quill report`.
func Text(s Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Period: %s - %s\n", s.FromLabel(), s.ToLabel())
	fmt.Fprintf(&b, "Published this week: %d\n", len(s.Published))
	fmt.Fprintf(&b, "Staged this week: %d\n", len(s.Staged))
	fmt.Fprintf(&b, "Failed: %d\n", len(s.Failed))
	fmt.Fprintf(&b, "Queue remaining: %d (%d eligible)\n", s.Queued, s.Eligible)
	fmt.Fprintf(&b, "Total published: %d\n", s.TotalPublished)
	fmt.Fprintf(&b, "Total clicks: %d\n", s.TotalClicks)
	fmt.Fprintf(&b, "Total impressions: %d\n", s.TotalImpressions)
	if s.DailyQuota > 0 {
		fmt.Fprintf(&b, "Backlog: %d days at %d/day\n", s.DaysRemaining, s.DailyQuota)
	}
	if len(s.Published) > 0 {
		b.WriteString("\nRecent publishes:\n")
		for _, e := range s.Published {
			fmt.Fprintf(&b, "  - %s (%s)\n", e.Slug, e.Keyword)
		}
	}
	if len(s.Failed) > 0 {
		b.WriteString("\nFailures:\n")
		for _, e := range s.Failed {
			fmt.Fprintf(&b, "  - %s: %s\n", e.Keyword, services.Truncate(e.Error, 60))
		}
	}
	return b.String()
}
