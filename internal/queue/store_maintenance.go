package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"
	"time"
)

// Stats returns a count of items grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates queue state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusQueued:
			health.Queued += count
		case StatusGenerating:
			health.Generating += count
		case StatusStaged:
			health.Staged += count
		case StatusPublished:
			health.Published += count
		case StatusSkipped:
			health.Skipped += count
		case StatusFailed:
			health.Failed += count
		}
	}
	err = s.db.QueryRowContext(ensureContext(ctx),
		`SELECT COUNT(1) FROM items WHERE status = ? AND verdict = ?`,
		string(StatusQueued), string(VerdictApprove),
	).Scan(&health.Eligible)
	if err != nil {
		return health, fmt.Errorf("count eligible: %w", err)
	}
	return health, nil
}

// expectedSchema lists the columns each table must carry.
var expectedSchema = map[string][]string{
	"items":           itemColumns,
	"events":          append([]string{"seq", "day"}, eventColumns...),
	"daily_counts":    {"day", "published", "staged", "failed"},
	"scheduler_state": {"key", "value", "updated_at"},
	"tracked_posts":   trackerColumns,
}

// CheckHealth inspects the database file and schema. Problems found in the
// schema are reported in the result; err is reserved for failures to inspect.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	ctx = ensureContext(ctx)
	health := DatabaseHealth{DBPath: s.path}
	if s.path == "" || s.db == nil {
		return health, errors.New("queue store is not open")
	}
	info, err := os.Stat(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return health, nil
	case err != nil:
		return health, fmt.Errorf("stat queue database: %w", err)
	case info.IsDir():
		return health, fmt.Errorf("queue database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	fail := func(op string, err error) (DatabaseHealth, error) {
		health.Error = err.Error()
		return health, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.db.PingContext(checkCtx); err != nil {
		return fail("ping queue database", err)
	}
	health.DatabaseReadable = true

	if version, ok, err := storedSchemaVersion(checkCtx, s.db); err != nil {
		return fail("read schema version", err)
	} else if ok {
		health.SchemaVersion = version
	}

	tables := make([]string, 0, len(expectedSchema))
	for table := range expectedSchema {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	for _, table := range tables {
		present, err := tableColumns(checkCtx, s.db, table)
		if err != nil {
			return fail("inspect "+table, err)
		}
		if len(present) == 0 {
			health.MissingTables = append(health.MissingTables, table)
			continue
		}
		for _, column := range expectedSchema[table] {
			if _, ok := present[column]; !ok {
				health.MissingColumns = append(health.MissingColumns, table+"."+column)
			}
		}
	}

	if !slices.Contains(health.MissingTables, "items") {
		if err := s.db.QueryRowContext(checkCtx, `SELECT COUNT(1) FROM items`).Scan(&health.TotalItems); err != nil {
			return fail("count queue items", err)
		}
	}

	var integrity string
	if err := s.db.QueryRowContext(checkCtx, `PRAGMA integrity_check`).Scan(&integrity); err != nil {
		return fail("integrity check", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrity, "ok")
	return health, nil
}

// tableColumns returns the column names of table; an absent table yields an
// empty set.
func tableColumns(ctx context.Context, q dbtx, table string) (map[string]struct{}, error) {
	rows, err := q.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	columns := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		columns[name] = struct{}{}
	}
	return columns, rows.Err()
}
