package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"quill/internal/services"
)

// NewID returns a time-ordered identifier for a new item.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Insert adds a new item. Missing identifiers are generated, a zero priority
// becomes DefaultPriority and an empty status becomes queued.
func (s *Store) Insert(ctx context.Context, item *Item) (*Item, error) {
	ctx = ensureContext(ctx)
	if item == nil {
		return nil, errors.New("item is nil")
	}
	record, err := s.prepareRecord(item)
	if err != nil {
		return nil, err
	}
	record.Version = 1
	if err := retryOnBusy(ctx, func() error {
		return insertItem(ctx, s.db, record)
	}); err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}
	return record, nil
}

func (s *Store) prepareRecord(item *Item) (*Item, error) {
	record := item.Clone()
	record.Keyword = strings.TrimSpace(record.Keyword)
	if record.Keyword == "" {
		return nil, services.Wrap(services.ErrValidation, "queue", "insert", "item keyword is empty", nil)
	}
	if record.ID == "" {
		record.ID = NewID()
	}
	if record.Priority == 0 {
		record.Priority = DefaultPriority
	}
	if record.Status == "" {
		record.Status = StatusQueued
	}
	if _, ok := statusSet[record.Status]; !ok {
		return nil, services.Wrap(services.ErrValidation, "queue", "insert", fmt.Sprintf("unknown status %q", record.Status), nil)
	}
	now := s.now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	record.ErrorMessage = truncateMessage(record.ErrorMessage)
	return record, nil
}

// Get fetches an item by identifier. It returns nil when the item is absent.
func (s *Store) Get(ctx context.Context, id string) (*Item, error) {
	ctx = ensureContext(ctx)
	item, err := queryItem(ctx, s.db, selectItems().Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// FindByKeyword returns the first item whose keyword matches case-insensitively.
func (s *Store) FindByKeyword(ctx context.Context, keyword string) (*Item, error) {
	ctx = ensureContext(ctx)
	builder := selectItems().
		Where(sq.Expr("LOWER(keyword) = ?", strings.ToLower(strings.TrimSpace(keyword)))).
		OrderBy("created_at", "id")
	item, err := queryItem(ctx, s.db, builder)
	if err != nil {
		return nil, fmt.Errorf("find by keyword: %w", err)
	}
	return item, nil
}

// FindBySlug returns the most recent item that produced slug.
func (s *Store) FindBySlug(ctx context.Context, slug string) (*Item, error) {
	ctx = ensureContext(ctx)
	builder := selectItems().Where(sq.Eq{"slug": slug}).OrderBy("updated_at DESC", "id")
	item, err := queryItem(ctx, s.db, builder)
	if err != nil {
		return nil, fmt.Errorf("find by slug: %w", err)
	}
	return item, nil
}

// List returns items in selection order, optionally filtered by status.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	ctx = ensureContext(ctx)
	builder := selectItems().OrderBy("priority", "id")
	if len(statuses) > 0 {
		builder = builder.Where(sq.Eq{"status": stringsOf(statuses)})
	}
	items, err := queryItems(ctx, s.db, builder)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// LoadAll reads the whole collection in insertion order.
func (s *Store) LoadAll(ctx context.Context) ([]*Item, error) {
	ctx = ensureContext(ctx)
	items, err := queryItems(ctx, s.db, selectItems().OrderBy("created_at", "id"))
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	return items, nil
}

// SaveAll replaces the whole collection in one transaction. Either every item
// is written or none is. Scheduler Log tables are not touched.
func (s *Store) SaveAll(ctx context.Context, items []*Item) error {
	records := make([]*Item, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		record, err := s.prepareRecord(item)
		if err != nil {
			return err
		}
		if _, dup := seen[record.ID]; dup {
			return services.Wrap(services.ErrValidation, "queue", "save all", "duplicate item id "+record.ID, nil)
		}
		seen[record.ID] = struct{}{}
		record.Version = item.Version + 1
		records = append(records, record)
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM items`); err != nil {
			return err
		}
		for _, record := range records {
			if err := insertItem(ctx, tx, record); err != nil {
				return fmt.Errorf("item %s: %w", record.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save items: %w", err)
	}
	return nil
}

func eligibleQuery() sq.SelectBuilder {
	return selectItems().
		Where(sq.Eq{"status": string(StatusQueued), "verdict": string(VerdictApprove)}).
		OrderBy("priority", "id")
}

// NextEligible returns the queued, approved item with the lowest (priority, id)
// without changing it. It returns nil when nothing is eligible.
func (s *Store) NextEligible(ctx context.Context) (*Item, error) {
	ctx = ensureContext(ctx)
	item, err := queryItem(ctx, s.db, eligibleQuery())
	if err != nil {
		return nil, fmt.Errorf("next eligible: %w", err)
	}
	return item, nil
}

// Remove deletes items by id and returns the number removed.
func (s *Store) Remove(ctx context.Context, ids ...string) (int64, error) {
	ctx = ensureContext(ctx)
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sq.Delete("items").Where(sq.Eq{"id": ids}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("remove items: %w", err)
	}
	return res.RowsAffected()
}
