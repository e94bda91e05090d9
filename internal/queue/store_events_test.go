package queue_test

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"quill/internal/queue"
	"quill/internal/testsupport"
)

func TestAppendEventTrimsLogButKeepsDailyCounts(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithEventLogLimit(3))
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	base := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if _, err := store.AppendEvent(ctx, queue.Event{
			Type:       queue.EventPublished,
			ItemID:     "item",
			Slug:       "post",
			OccurredAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("AppendEvent %d: %v", i, err)
		}
	}
	if _, err := store.AppendEvent(ctx, queue.Event{Type: queue.EventFailed, OccurredAt: base, Error: "boom"}); err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}

	events, err := store.Events(ctx, time.Time{})
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected log capped at 3, got %d", len(events))
	}
	if events[len(events)-1].Type != queue.EventFailed {
		t.Fatalf("expected newest event last, got %#v", events)
	}

	published, err := store.PublishedOn(ctx, "2026-05-04")
	if err != nil {
		t.Fatalf("PublishedOn: %v", err)
	}
	if published != 5 {
		t.Fatalf("expected 5 published today despite the cap, got %d", published)
	}
	counts, err := store.DailyCounts(ctx, "2026-05-04")
	if err != nil {
		t.Fatalf("DailyCounts: %v", err)
	}
	if counts.Failed != 1 || counts.Staged != 0 {
		t.Fatalf("unexpected counts %#v", counts)
	}
	if err := store.SaveAll(ctx, nil); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	if again, _ := store.PublishedOn(ctx, "2026-05-04"); again != 5 {
		t.Fatalf("SaveAll must not touch counters, got %d", again)
	}
}

func TestEventDayUsesSchedulerTimezone(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTimezone("America/New_York"))
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	occurred := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)
	if _, err := store.AppendEvent(ctx, queue.Event{Type: queue.EventStaged, OccurredAt: occurred}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	counts, err := store.DailyCounts(ctx, "2026-03-09")
	if err != nil {
		t.Fatalf("DailyCounts: %v", err)
	}
	if counts.Staged != 1 {
		t.Fatalf("expected event on the local previous day, got %#v", counts)
	}
}

func TestEventsSince(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		if _, err := store.AppendEvent(ctx, queue.Event{Type: queue.EventPublished, OccurredAt: base.AddDate(0, 0, i)}); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}
	events, err := store.Events(ctx, base.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events since day 2, got %d", len(events))
	}
	recent, err := store.RecentEvents(ctx, 1)
	if err != nil || len(recent) != 1 || !recent[0].OccurredAt.Equal(base.AddDate(0, 0, 3)) {
		t.Fatalf("unexpected recent events %#v (err %v)", recent, err)
	}
}

func TestSchedulerState(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, ok, err := store.StateValue(ctx, queue.StateLastPublishWindow); err != nil || ok {
		t.Fatalf("expected unset state, ok=%v err=%v", ok, err)
	}
	for _, value := range []string{"first", "second"} {
		if err := store.SetStateValue(ctx, queue.StateLastPublishWindow, value); err != nil {
			t.Fatalf("SetStateValue: %v", err)
		}
	}
	value, ok, err := store.StateValue(ctx, queue.StateLastPublishWindow)
	if err != nil || !ok || value != "second" {
		t.Fatalf("unexpected state %q ok=%v err=%v", value, ok, err)
	}
}

func TestTrackerUpsertMerges(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, err := store.UpsertTracked(ctx, "post", queue.TrackerPatch{
		Title:   queue.StringPtr("Post"),
		Keyword: queue.StringPtr("kw"),
		Status:  queue.StringPtr("draft"),
		Score:   queue.IntPtr(64),
	}); err != nil {
		t.Fatalf("UpsertTracked: %v", err)
	}
	published := time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC)
	if _, err := store.UpsertTracked(ctx, "post", queue.TrackerPatch{
		Status:      queue.StringPtr("published"),
		URL:         queue.StringPtr("https://example.com/blog/post"),
		PublishedAt: queue.TimePtr(published),
	}); err != nil {
		t.Fatalf("UpsertTracked: %v", err)
	}

	post, ok, err := store.Tracked(ctx, "post")
	if err != nil || !ok {
		t.Fatalf("Tracked: ok=%v err=%v", ok, err)
	}
	if post.Title != "Post" || post.Score != 64 || post.Status != "published" || !post.PublishedAt.Equal(published) {
		t.Fatalf("unexpected tracked post %#v", post)
	}
	if _, err := store.UpsertTracked(ctx, "draft-only", queue.TrackerPatch{Status: queue.StringPtr("draft")}); err != nil {
		t.Fatalf("UpsertTracked: %v", err)
	}
	all, err := store.ListTracked(ctx)
	if err != nil {
		t.Fatalf("ListTracked: %v", err)
	}
	if len(all) != 2 || all[0].Slug != "post" {
		t.Fatalf("expected published post first, got %#v", all)
	}
}
