package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"quill/internal/config"
)

// ParseWindows parses cron specs with the five-field parser used by config
// validation.
func ParseWindows(specs []string) ([]cron.Schedule, error) {
	schedules := make([]cron.Schedule, 0, len(specs))
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		schedule, err := config.CronParser.Parse(spec)
		if err != nil {
			return nil, fmt.Errorf("parse window %q: %w", spec, err)
		}
		schedules = append(schedules, schedule)
	}
	return schedules, nil
}

// WindowStart returns the start of the window containing now. A window
// opens at each activation of a schedule and stays open for width. now
// should already be in the scheduler's time zone.
func WindowStart(schedules []cron.Schedule, now time.Time, width time.Duration) (time.Time, bool) {
	if width <= 0 {
		return time.Time{}, false
	}
	for _, schedule := range schedules {
		start := schedule.Next(now.Add(-width))
		if start.IsZero() {
			continue
		}
		if !start.After(now) {
			return start, true
		}
	}
	return time.Time{}, false
}

func windowKey(start time.Time) string {
	return start.Format(time.RFC3339)
}
