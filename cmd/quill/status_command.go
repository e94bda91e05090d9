package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"quill/internal/config"
	"quill/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var events int
	var posts int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show queue counts, today's activity, recent runs and tracked posts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				out := cmd.OutOrStdout()
				runCtx := cmd.Context()

				health, err := store.Health(runCtx)
				if err != nil {
					return err
				}
				renderQueueSummary(out, health)

				today := store.Day(time.Now())
				counts, err := store.DailyCounts(runCtx, today)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "\nToday (%s, %s): %d published of %d, %d staged, %d failed\n",
					today, cfg.Location(), counts.Published, cfg.Schedule.DailyQuota, counts.Staged, counts.Failed)

				recent, err := store.RecentEvents(runCtx, events)
				if err != nil {
					return err
				}
				renderEvents(out, recent)

				tracked, err := store.ListTracked(runCtx)
				if err != nil {
					return err
				}
				renderTracked(out, tracked, posts)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&events, "events", 10, "Number of recent runs to show")
	cmd.Flags().IntVar(&posts, "posts", 10, "Number of tracked posts to show")
	return cmd
}

func renderQueueSummary(w io.Writer, health queue.HealthSummary) {
	p := newPainter(w)
	rows := [][]string{
		{p.status(queue.StatusQueued), strconv.Itoa(health.Queued)},
		{"  eligible", strconv.Itoa(health.Eligible)},
		{p.status(queue.StatusGenerating), strconv.Itoa(health.Generating)},
		{p.status(queue.StatusStaged), strconv.Itoa(health.Staged)},
		{p.status(queue.StatusPublished), strconv.Itoa(health.Published)},
		{p.status(queue.StatusSkipped), strconv.Itoa(health.Skipped)},
		{p.status(queue.StatusFailed), strconv.Itoa(health.Failed)},
		{"total", strconv.Itoa(health.Total)},
	}
	writeTable(w, []string{"Status", "Count"}, rows, 1)
}

func renderEvents(w io.Writer, events []queue.Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "\nNo runs recorded yet")
		return
	}
	fmt.Fprintln(w, "\nRecent runs")
	p := newPainter(w)
	rows := make([][]string, 0, len(events))
	for _, event := range events {
		rows = append(rows, []string{
			formatTime(event.OccurredAt),
			p.status(queue.Status(event.Type)),
			orDash(event.Slug),
			orDash(event.Keyword),
			formatDuration(time.Duration(event.DurationSeconds * float64(time.Second))),
			orDash(event.Error),
		})
	}
	writeTable(w, []string{"When", "Outcome", "Slug", "Keyword", "Time", "Error"}, rows, 4)
}

func renderTracked(w io.Writer, posts []queue.TrackedPost, limit int) {
	if len(posts) == 0 {
		fmt.Fprintln(w, "\nNo tracked posts")
		return
	}
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}
	fmt.Fprintln(w, "\nTracked posts")
	rows := make([][]string, 0, len(posts))
	for _, post := range posts {
		score := "-"
		if post.Score > 0 {
			score = strconv.Itoa(post.Score)
		}
		rows = append(rows, []string{
			post.Slug,
			orDash(post.Status),
			score,
			strconv.Itoa(post.Clicks),
			strconv.Itoa(post.Impressions),
			formatTime(post.PublishedAt),
		})
	}
	writeTable(w, []string{"Slug", "Status", "Score", "Clicks", "Impressions", "Published"}, rows, 2, 3, 4)
}
