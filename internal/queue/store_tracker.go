package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

var trackerColumns = []string{
	"slug", "title", "keyword", "status", "score", "destination_id", "url",
	"published_at", "clicks", "impressions", "position", "updated_at",
}

// UpsertTracked applies patch to the tracker row for slug, creating it when
// absent. Unset patch fields keep their stored values.
func (s *Store) UpsertTracked(ctx context.Context, slug string, patch TrackerPatch) (TrackedPost, error) {
	ctx = ensureContext(ctx)
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return TrackedPost{}, errors.New("tracker slug is empty")
	}
	var post TrackedPost
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, found, err := trackedPost(ctx, tx, slug)
		if err != nil {
			return err
		}
		post = existing
		post.Slug = slug
		patch.apply(&post)
		post.UpdatedAt = s.now().UTC()

		values := []any{
			post.Slug,
			nullableString(post.Title),
			nullableString(post.Keyword),
			nullableString(post.Status),
			post.Score,
			nullableString(post.DestinationID),
			nullableString(post.URL),
			nullableTime(post.PublishedAt),
			post.Clicks,
			post.Impressions,
			nullableFloat(post.Position),
			formatTime(post.UpdatedAt),
		}
		var (
			query string
			args  []any
		)
		if found {
			set := make(map[string]any, len(trackerColumns)-1)
			for i, column := range trackerColumns[1:] {
				set[column] = values[i+1]
			}
			query, args, err = sq.Update("tracked_posts").SetMap(set).Where(sq.Eq{"slug": slug}).ToSql()
		} else {
			query, args, err = sq.Insert("tracked_posts").Columns(trackerColumns...).Values(values...).ToSql()
		}
		if err != nil {
			return fmt.Errorf("build tracker write: %w", err)
		}
		_, err = tx.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return TrackedPost{}, fmt.Errorf("upsert tracked %s: %w", slug, err)
	}
	return post, nil
}

func (p TrackerPatch) apply(post *TrackedPost) {
	if p.Title != nil {
		post.Title = *p.Title
	}
	if p.Keyword != nil {
		post.Keyword = *p.Keyword
	}
	if p.Status != nil {
		post.Status = *p.Status
	}
	if p.Score != nil {
		post.Score = *p.Score
	}
	if p.DestinationID != nil {
		post.DestinationID = *p.DestinationID
	}
	if p.URL != nil {
		post.URL = *p.URL
	}
	if p.PublishedAt != nil {
		post.PublishedAt = p.PublishedAt.UTC()
	}
	if p.Clicks != nil {
		post.Clicks = *p.Clicks
	}
	if p.Impressions != nil {
		post.Impressions = *p.Impressions
	}
	if p.Position != nil {
		post.Position = *p.Position
	}
}

// Tracked returns the tracker row for slug. ok is false when none exists.
func (s *Store) Tracked(ctx context.Context, slug string) (post TrackedPost, ok bool, err error) {
	post, ok, err = trackedPost(ensureContext(ctx), s.db, slug)
	if err != nil {
		return TrackedPost{}, false, fmt.Errorf("tracked %s: %w", slug, err)
	}
	return post, ok, nil
}

// ListTracked returns every tracked post, most recently published first.
func (s *Store) ListTracked(ctx context.Context) ([]TrackedPost, error) {
	ctx = ensureContext(ctx)
	query, args, err := sq.Select(trackerColumns...).From("tracked_posts").
		OrderBy("published_at IS NULL", "published_at DESC", "slug").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build tracker query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tracked: %w", err)
	}
	defer rows.Close()

	var posts []TrackedPost
	for rows.Next() {
		post, err := scanTracked(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tracked: %w", err)
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func trackedPost(ctx context.Context, q dbtx, slug string) (TrackedPost, bool, error) {
	query, args, err := sq.Select(trackerColumns...).From("tracked_posts").Where(sq.Eq{"slug": slug}).ToSql()
	if err != nil {
		return TrackedPost{}, false, err
	}
	post, err := scanTracked(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return TrackedPost{}, false, nil
	}
	if err != nil {
		return TrackedPost{}, false, err
	}
	return post, true, nil
}

func scanTracked(scanner interface{ Scan(dest ...any) error }) (TrackedPost, error) {
	var (
		post          TrackedPost
		title         sql.NullString
		keyword       sql.NullString
		status        sql.NullString
		score         sql.NullInt64
		destinationID sql.NullString
		url           sql.NullString
		publishedRaw  sql.NullString
		position      sql.NullFloat64
		updatedRaw    string
	)
	if err := scanner.Scan(
		&post.Slug, &title, &keyword, &status, &score, &destinationID, &url,
		&publishedRaw, &post.Clicks, &post.Impressions, &position, &updatedRaw,
	); err != nil {
		return TrackedPost{}, err
	}
	post.Title = title.String
	post.Keyword = keyword.String
	post.Status = status.String
	post.Score = int(score.Int64)
	post.DestinationID = destinationID.String
	post.URL = url.String
	post.Position = position.Float64
	if publishedRaw.Valid {
		if t, err := parseTimeString(publishedRaw.String); err == nil {
			post.PublishedAt = t
		}
	}
	if t, err := parseTimeString(updatedRaw); err == nil {
		post.UpdatedAt = t
	}
	return post, nil
}
