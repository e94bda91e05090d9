package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"quill/internal/services"
)

// Scheduler state keys.
const (
	StateLastPublishWindow = "last_publish_window"
	StateLastReport        = "last_report"
)

var eventColumns = []string{"id", "type", "item_id", "keyword", "slug", "occurred_at", "duration_seconds", "error"}

var dailyColumns = map[EventType]string{
	EventPublished: "published",
	EventStaged:    "staged",
	EventFailed:    "failed",
}

// AppendEvent records an outcome in the Scheduler Log, trims the log to its
// cap and bumps the per-day counter, all in one transaction.
func (s *Store) AppendEvent(ctx context.Context, event Event) (Event, error) {
	ctx = ensureContext(ctx)
	column, ok := dailyColumns[event.Type]
	if !ok {
		return Event{}, services.Wrap(services.ErrValidation, "queue", "append event", fmt.Sprintf("unknown event type %q", event.Type), nil)
	}
	if event.ID == "" {
		event.ID = NewID()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}
	event.OccurredAt = event.OccurredAt.UTC()
	event.Error = truncateMessage(event.Error)
	day := s.Day(event.OccurredAt)

	insert, insertArgs, err := sq.Insert("events").
		Columns(append(append([]string(nil), eventColumns...), "day")...).
		Values(
			event.ID,
			string(event.Type),
			nullableString(event.ItemID),
			nullableString(event.Keyword),
			nullableString(event.Slug),
			formatTime(event.OccurredAt),
			nullableFloat(event.DurationSeconds),
			nullableString(event.Error),
			day,
		).ToSql()
	if err != nil {
		return Event{}, fmt.Errorf("build event insert: %w", err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, insert, insertArgs...); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO daily_counts (day, `+column+`) VALUES (?, 1)
             ON CONFLICT(day) DO UPDATE SET `+column+` = `+column+` + 1`,
			day,
		); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`DELETE FROM events WHERE seq NOT IN (SELECT seq FROM events ORDER BY seq DESC LIMIT ?)`,
			s.eventLimit,
		)
		return err
	})
	if err != nil {
		return Event{}, fmt.Errorf("append event: %w", err)
	}
	return event, nil
}

// Events returns log entries that occurred at or after since, oldest first.
// A zero since returns the whole retained log.
func (s *Store) Events(ctx context.Context, since time.Time) ([]Event, error) {
	builder := sq.Select(eventColumns...).From("events").OrderBy("seq")
	if !since.IsZero() {
		builder = builder.Where(sq.GtOrEq{"occurred_at": formatTime(since)})
	}
	return s.queryEvents(ensureContext(ctx), builder)
}

// RecentEvents returns up to limit entries, newest first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 10
	}
	builder := sq.Select(eventColumns...).From("events").OrderBy("seq DESC").Limit(uint64(limit))
	return s.queryEvents(ensureContext(ctx), builder)
}

func (s *Store) queryEvents(ctx context.Context, builder sq.SelectBuilder) ([]Event, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build events query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			event      Event
			eventType  string
			itemID     sql.NullString
			keyword    sql.NullString
			slug       sql.NullString
			occurred   string
			duration   sql.NullFloat64
			errMessage sql.NullString
		)
		if err := rows.Scan(&event.ID, &eventType, &itemID, &keyword, &slug, &occurred, &duration, &errMessage); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event.Type = EventType(eventType)
		event.ItemID = itemID.String
		event.Keyword = keyword.String
		event.Slug = slug.String
		event.DurationSeconds = duration.Float64
		event.Error = errMessage.String
		if t, err := parseTimeString(occurred); err == nil {
			event.OccurredAt = t
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// DailyCounts returns the outcome counters for a local day (YYYY-MM-DD).
// Days without activity return zero counts.
func (s *Store) DailyCounts(ctx context.Context, day string) (DayCounts, error) {
	ctx = ensureContext(ctx)
	counts := DayCounts{Day: day}
	err := s.db.QueryRowContext(ctx,
		`SELECT published, staged, failed FROM daily_counts WHERE day = ?`, day,
	).Scan(&counts.Published, &counts.Staged, &counts.Failed)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return counts, fmt.Errorf("daily counts: %w", err)
	}
	return counts, nil
}

// PublishedOn returns how many items were published on a local day.
func (s *Store) PublishedOn(ctx context.Context, day string) (int, error) {
	counts, err := s.DailyCounts(ctx, day)
	if err != nil {
		return 0, err
	}
	return counts.Published, nil
}

// StateValue reads a scheduler state entry. ok is false when the key is unset.
func (s *Store) StateValue(ctx context.Context, key string) (value string, ok bool, err error) {
	ctx = ensureContext(ctx)
	err = s.db.QueryRowContext(ctx, `SELECT value FROM scheduler_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read state %s: %w", key, err)
	}
	return value, true, nil
}

// SetStateValue writes a scheduler state entry.
func (s *Store) SetStateValue(ctx context.Context, key, value string) error {
	if err := s.execWithoutResultRetry(ctx,
		`INSERT INTO scheduler_state (key, value, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, formatTime(s.now()),
	); err != nil {
		return fmt.Errorf("write state %s: %w", key, err)
	}
	return nil
}
