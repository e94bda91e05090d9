package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

var itemColumns = []string{
	"id", "priority", "created_at", "updated_at",
	"keyword", "title", "template", "category",
	"validated", "verdict", "rationale",
	"status", "slug", "started_at", "finished_at", "error_message", "duration_seconds",
	"version",
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func selectItems() sq.SelectBuilder {
	return sq.Select(itemColumns...).From("items")
}

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		item        Item
		createdRaw  string
		updatedRaw  string
		title       sql.NullString
		template    sql.NullString
		category    sql.NullString
		validated   int64
		verdict     sql.NullString
		rationale   sql.NullString
		statusStr   string
		slug        sql.NullString
		startedRaw  sql.NullString
		finishedRaw sql.NullString
		errorMsg    sql.NullString
		duration    sql.NullFloat64
	)
	if err := scanner.Scan(
		&item.ID,
		&item.Priority,
		&createdRaw,
		&updatedRaw,
		&item.Keyword,
		&title,
		&template,
		&category,
		&validated,
		&verdict,
		&rationale,
		&statusStr,
		&slug,
		&startedRaw,
		&finishedRaw,
		&errorMsg,
		&duration,
		&item.Version,
	); err != nil {
		return nil, err
	}

	item.Title = title.String
	item.Template = template.String
	item.Category = category.String
	item.Validated = validated != 0
	item.Verdict = Verdict(verdict.String)
	item.Rationale = rationale.String
	item.Status = Status(statusStr)
	item.Slug = slug.String
	item.ErrorMessage = errorMsg.String
	item.DurationSeconds = duration.Float64

	if created, err := parseTimeString(createdRaw); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		item.UpdatedAt = updated
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			item.StartedAt = started
		}
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			item.FinishedAt = finished
		}
	}
	return &item, nil
}

func queryItems(ctx context.Context, q dbtx, builder sq.SelectBuilder) ([]*Item, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// queryItem returns nil without error when no row matches.
func queryItem(ctx context.Context, q dbtx, builder sq.SelectBuilder) (*Item, error) {
	query, args, err := builder.Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	item, err := scanItem(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return item, err
}

// itemValues returns column values in itemColumns order.
func itemValues(item *Item) []any {
	return []any{
		item.ID,
		item.Priority,
		formatTime(item.CreatedAt),
		formatTime(item.UpdatedAt),
		item.Keyword,
		nullableString(item.Title),
		nullableString(item.Template),
		nullableString(item.Category),
		boolToInt(item.Validated),
		nullableString(string(item.Verdict)),
		nullableString(item.Rationale),
		string(item.Status),
		nullableString(item.Slug),
		nullableTime(item.StartedAt),
		nullableTime(item.FinishedAt),
		nullableString(item.ErrorMessage),
		nullableFloat(item.DurationSeconds),
		item.Version,
	}
}

func insertItem(ctx context.Context, q dbtx, item *Item) error {
	query, args, err := sq.Insert("items").Columns(itemColumns...).Values(itemValues(item)...).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	_, err = q.ExecContext(ctx, query, args...)
	return err
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return formatTime(value)
}

func nullableFloat(value float64) any {
	if value == 0 {
		return nil
	}
	return value
}

// timeLayout keeps a fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func stringsOf[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
