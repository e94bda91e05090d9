package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

var allowedTransitions = map[Status][]Status{
	StatusQueued:     {StatusGenerating, StatusSkipped},
	StatusGenerating: {StatusPublished, StatusStaged, StatusFailed},
	StatusStaged:     {StatusGenerating, StatusPublished, StatusFailed},
	StatusFailed:     {StatusQueued, StatusGenerating},
}

// CanTransition reports whether the lifecycle allows moving from one status
// to another. Staying in the same status is always allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// validateTransition checks a single item change. Returning to queued is
// reserved for RetryFailed.
func validateTransition(before, after *Item) error {
	from, to := before.Status, after.Status
	if _, ok := statusSet[to]; !ok {
		return invalidTransition(before.ID, from, to, "unknown status")
	}
	if from == to {
		return nil
	}
	if !CanTransition(from, to) {
		return invalidTransition(before.ID, from, to, "not an allowed lifecycle edge")
	}
	if to == StatusQueued {
		return invalidTransition(before.ID, from, to, "only a manual retry returns an item to queued")
	}
	if to == StatusGenerating && after.Verdict != VerdictApprove {
		return invalidTransition(before.ID, from, to, fmt.Sprintf("verdict is %q, not approve", after.Verdict))
	}
	return nil
}

// Update loads an item, applies patch, validates the status change and writes
// it back conditionally on the version read. A stale ExpectVersion or a
// concurrent writer yields ErrVersionConflict.
func (s *Store) Update(ctx context.Context, id string, patch Patch) (*Item, error) {
	ctx = ensureContext(ctx)
	var updated *Item
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := queryItem(ctx, tx, selectItems().Where(sq.Eq{"id": id}))
		if err != nil {
			return err
		}
		if current == nil {
			return notFound(id)
		}
		if patch.ExpectVersion != 0 && patch.ExpectVersion != current.Version {
			return versionConflict(id, patch.ExpectVersion, current.Version)
		}
		next := current.Clone()
		patch.apply(next)
		if err := validateTransition(current, next); err != nil {
			return err
		}
		next.UpdatedAt = s.now().UTC()
		if err := writeItem(ctx, tx, current.Version, next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}
	return updated, nil
}

// writeItem persists item when the stored version still equals expected and
// bumps item.Version on success.
func writeItem(ctx context.Context, tx dbtx, expected int64, item *Item) error {
	values := itemValues(item)
	set := make(map[string]any, len(itemColumns))
	for i, column := range itemColumns {
		if column == "id" || column == "version" || column == "created_at" {
			continue
		}
		set[column] = values[i]
	}
	set["version"] = expected + 1
	query, args, err := sq.Update("items").
		SetMap(set).
		Where(sq.Eq{"id": item.ID, "version": expected}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return versionConflict(item.ID, expected, -1)
	}
	item.Version = expected + 1
	return nil
}

// ClaimNext selects the next eligible item and moves it to generating with
// StartedAt set, all in one transaction. It returns nil when nothing is
// eligible. Two callers never receive the same item.
func (s *Store) ClaimNext(ctx context.Context, now time.Time) (*Item, error) {
	ctx = ensureContext(ctx)
	var claimed *Item
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		claimed = nil
		current, err := queryItem(ctx, tx, eligibleQuery())
		if err != nil || current == nil {
			return err
		}
		next := current.Clone()
		next.Status = StatusGenerating
		next.StartedAt = now.UTC()
		next.FinishedAt = time.Time{}
		next.ErrorMessage = ""
		next.DurationSeconds = 0
		next.UpdatedAt = s.now().UTC()
		if err := validateTransition(current, next); err != nil {
			return err
		}
		if err := writeItem(ctx, tx, current.Version, next); err != nil {
			return err
		}
		claimed = next
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim next item: %w", err)
	}
	return claimed, nil
}

// RetryFailed moves failed items back to queued, clearing their outcome. With
// no ids every failed item is reset.
func (s *Store) RetryFailed(ctx context.Context, ids ...string) (int64, error) {
	return s.bulkTransition(ctx, StatusFailed, StatusQueued, ids, map[string]any{
		"error_message":    nil,
		"started_at":       nil,
		"finished_at":      nil,
		"duration_seconds": nil,
	})
}

// Skip moves queued items to the terminal skipped status.
func (s *Store) Skip(ctx context.Context, ids ...string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return s.bulkTransition(ctx, StatusQueued, StatusSkipped, ids, nil)
}

func (s *Store) bulkTransition(ctx context.Context, from, to Status, ids []string, extra map[string]any) (int64, error) {
	ctx = ensureContext(ctx)
	if !CanTransition(from, to) {
		return 0, invalidTransition("*", from, to, "not an allowed lifecycle edge")
	}
	set := map[string]any{
		"status":     string(to),
		"updated_at": formatTime(s.now()),
		"version":    sq.Expr("version + 1"),
	}
	for k, v := range extra {
		set[k] = v
	}
	builder := sq.Update("items").SetMap(set).Where(sq.Eq{"status": string(from)})
	if len(ids) > 0 {
		builder = builder.Where(sq.Eq{"id": ids})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build transition: %w", err)
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s -> %s: %w", from, to, err)
	}
	return res.RowsAffected()
}
