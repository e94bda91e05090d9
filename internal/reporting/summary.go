package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"quill/internal/queue"
)

// Period is the window a report covers.
const Period = 7 * 24 * time.Hour

const topPerformers = 5

// Summary is the data behind one weekly report.
type Summary struct {
	Brand    string
	From     time.Time
	To       time.Time
	Location *time.Location

	Published []queue.Event
	Staged    []queue.Event
	Failed    []queue.Event

	Queued         int
	Eligible       int
	QueuePublished int
	QueueFailed    int

	TotalPublished   int
	TotalClicks      int
	TotalImpressions int
	Top              []queue.TrackedPost

	DailyQuota    int
	DaysRemaining int
}

// Source is the read surface a report needs from the queue store.
type Source interface {
	Events(ctx context.Context, since time.Time) ([]queue.Event, error)
	Health(ctx context.Context) (queue.HealthSummary, error)
	ListTracked(ctx context.Context) ([]queue.TrackedPost, error)
}

// Build gathers the summary for the Period ending at now.
func Build(ctx context.Context, source Source, brand string, quota int, loc *time.Location, now time.Time) (Summary, error) {
	if loc == nil {
		loc = time.UTC
	}
	summary := Summary{
		Brand:      brand,
		From:       now.Add(-Period),
		To:         now,
		Location:   loc,
		DailyQuota: quota,
	}

	events, err := source.Events(ctx, summary.From)
	if err != nil {
		return summary, fmt.Errorf("load events: %w", err)
	}
	for _, event := range events {
		switch event.Type {
		case queue.EventPublished:
			summary.Published = append(summary.Published, event)
		case queue.EventStaged:
			summary.Staged = append(summary.Staged, event)
		case queue.EventFailed:
			summary.Failed = append(summary.Failed, event)
		}
	}

	health, err := source.Health(ctx)
	if err != nil {
		return summary, fmt.Errorf("load queue health: %w", err)
	}
	summary.Queued = health.Queued
	summary.Eligible = health.Eligible
	summary.QueuePublished = health.Published
	summary.QueueFailed = health.Failed
	summary.DaysRemaining = DaysRemaining(health.Queued, quota)

	tracked, err := source.ListTracked(ctx)
	if err != nil {
		return summary, fmt.Errorf("load tracker: %w", err)
	}
	var performers []queue.TrackedPost
	for _, post := range tracked {
		if post.Status != "published" && post.DestinationID == "" {
			continue
		}
		summary.TotalPublished++
		summary.TotalClicks += post.Clicks
		summary.TotalImpressions += post.Impressions
		if post.Clicks > 0 {
			performers = append(performers, post)
		}
	}
	sort.SliceStable(performers, func(i, j int) bool { return performers[i].Clicks > performers[j].Clicks })
	if len(performers) > topPerformers {
		performers = performers[:topPerformers]
	}
	summary.Top = performers
	return summary, nil
}

// DaysRemaining returns ceil(queued / quota). A non-positive quota yields 0.
func DaysRemaining(queued, quota int) int {
	if quota <= 0 || queued <= 0 {
		return 0
	}
	return (queued + quota - 1) / quota
}

// Subject returns the email subject line.
func (s Summary) Subject() string {
	return fmt.Sprintf("Blog Report: %d published, %d queued (%s)", len(s.Published), s.Queued, s.To.In(s.loc()).Format("Jan 2, 2006"))
}

// CTR returns click-through rate as a percentage.
func CTR(post queue.TrackedPost) float64 {
	if post.Impressions == 0 {
		return 0
	}
	return float64(post.Clicks) / float64(post.Impressions) * 100
}

func (s Summary) loc() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}
