package main

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"quill/internal/queue"
	"quill/internal/services"
	"quill/internal/workflow"
)

// colorEnabled reports whether w is an interactive terminal that should
// receive ANSI colour. NO_COLOR disables colour everywhere.
func colorEnabled(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type painter struct {
	color bool
}

func newPainter(w io.Writer) painter {
	return painter{color: colorEnabled(w)}
}

func (p painter) paint(value string, colors ...text.Color) string {
	if !p.color || value == "" {
		return value
	}
	return text.Colors(colors).Sprint(value)
}

func (p painter) status(status queue.Status) string {
	switch status {
	case queue.StatusPublished:
		return p.paint(string(status), text.FgGreen)
	case queue.StatusStaged:
		return p.paint(string(status), text.FgCyan)
	case queue.StatusFailed:
		return p.paint(string(status), text.FgRed)
	case queue.StatusGenerating:
		return p.paint(string(status), text.FgYellow)
	case queue.StatusSkipped:
		return p.paint(string(status), text.Faint)
	default:
		return string(status)
	}
}

func (p painter) step(status workflow.StepStatus) string {
	switch status {
	case workflow.StepSucceeded:
		return p.paint("ok", text.FgGreen)
	case workflow.StepFailed:
		return p.paint("failed", text.FgRed)
	default:
		return p.paint("skipped", text.Faint)
	}
}

// printOutcome writes the per-run step trace.
func printOutcome(w io.Writer, outcome *workflow.Outcome) {
	if outcome == nil {
		return
	}
	p := newPainter(w)
	label := outcome.Slug
	if label == "" && outcome.Item != nil {
		label = outcome.Item.Keyword
	}
	fmt.Fprintf(w, "Run %s: %s (%s)\n", shortID(outcome.RequestID), label, p.status(outcome.Status))

	rows := make([][]string, 0, len(outcome.Steps))
	for _, step := range outcome.Steps {
		detail := step.Detail
		if step.Err != nil {
			detail = services.Details(step.Err).Message
		}
		rows = append(rows, []string{
			string(step.Stage),
			p.step(step.Status),
			formatDuration(step.Duration),
			services.Truncate(detail, 80),
		})
	}
	if len(rows) > 0 {
		writeTable(w, []string{"Stage", "Result", "Time", "Detail"}, rows, 2)
	}
	if outcome.HasScore {
		fmt.Fprintf(w, "Score: %d\n", outcome.Score)
	}
	if outcome.Location != "" {
		fmt.Fprintf(w, "Document: %s\n", outcome.Location)
	}
	if outcome.URL != "" {
		fmt.Fprintf(w, "URL: %s\n", outcome.URL)
	}
	if outcome.Err != nil {
		details := services.Details(outcome.Err)
		fmt.Fprintf(w, "Error: %s\n", details.Message)
		if details.Hint != "" {
			fmt.Fprintf(w, "Hint: %s\n", details.Hint)
		}
	}
	fmt.Fprintf(w, "Duration: %s\n", formatDuration(outcome.Duration))
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func shortID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "-"
	}
	return id
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

// freeTextWidth caps Detail and Error cells so a long failure message wraps
// instead of pushing the table past the terminal.
const freeTextWidth = 60

// writeTable renders rows under headers. Columns listed in numeric are right
// aligned; short rows are padded with empty cells.
func writeTable(w io.Writer, headers []string, rows [][]string, numeric ...int) {
	if len(headers) == 0 {
		return
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)
	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range r {
			r[i] = ""
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, len(headers))
	for i, h := range headers {
		configs[i] = table.ColumnConfig{Number: i + 1, AlignHeader: text.AlignLeft}
		if slices.Contains(numeric, i) {
			configs[i].Align = text.AlignRight
		}
		if h == "Detail" || h == "Error" {
			configs[i].WidthMax = freeTextWidth
			configs[i].WidthMaxEnforcer = text.WrapSoft
		}
	}
	tw.SetColumnConfigs(configs)
	fmt.Fprintln(w, tw.Render())
}
