package quality

import (
	"fmt"
	"strings"
)

// Format renders a report for terminals and log attachments.
func Format(r Report, name string) string {
	if name == "" {
		name = "Report"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Quality check: %s\n", name)
	fmt.Fprintf(&b, "Score: %d/100 (%d of %d points)\n\n", r.Score, r.Earned, r.Total)

	b.WriteString("Stats\n")
	fmt.Fprintf(&b, "  Words:          %d\n", r.Stats.WordCount)
	fmt.Fprintf(&b, "  Headings:       %d (%d H2)\n", r.Stats.HeadingCount, r.Stats.H2Count)
	fmt.Fprintf(&b, "  Internal links: %d\n", r.Stats.InternalLinkCount)
	fmt.Fprintf(&b, "  External links: %d (%d authority)\n", r.Stats.ExternalLinkCount, r.Stats.AuthorityLinks)
	fmt.Fprintf(&b, "  Images:         %d\n", r.Stats.ImageCount)

	sections := []struct {
		title    string
		severity Severity
	}{
		{"Errors (must fix)", SeverityError},
		{"Warnings (should fix)", SeverityWarning},
		{"Suggestions", SeverityInfo},
	}
	for _, section := range sections {
		var lines []string
		for _, issue := range r.Issues {
			if issue.Severity == section.severity {
				lines = append(lines, fmt.Sprintf("  - %s (-%d)", issue.Message, issue.Lost))
			}
		}
		if len(lines) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s\n%s\n", section.title, strings.Join(lines, "\n"))
	}
	if len(r.Passed) > 0 {
		b.WriteString("\nPassed\n")
		for _, p := range r.Passed {
			fmt.Fprintf(&b, "  - %s\n", p)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Counts returns the number of issues per severity.
func (r Report) Counts() (errors, warnings, infos int) {
	for _, issue := range r.Issues {
		switch issue.Severity {
		case SeverityError:
			errors++
		case SeverityWarning:
			warnings++
		case SeverityInfo:
			infos++
		}
	}
	return errors, warnings, infos
}
