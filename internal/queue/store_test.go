package queue_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"quill/internal/queue"
	"quill/internal/services"
	"quill/internal/testsupport"
)

func TestNextEligibleOrdersByPriorityThenID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	items := []*queue.Item{
		{ID: "a", Keyword: "alpha", Priority: 2, Status: queue.StatusQueued, Verdict: queue.VerdictApprove},
		{ID: "b", Keyword: "beta", Priority: 1, Status: queue.StatusQueued, Verdict: queue.VerdictReject},
		{ID: "c", Keyword: "gamma", Priority: 1, Status: queue.StatusQueued, Verdict: queue.VerdictApprove},
	}
	if err := store.SaveAll(ctx, items); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}

	first, err := store.NextEligible(ctx)
	if err != nil {
		t.Fatalf("NextEligible: %v", err)
	}
	if first == nil || first.ID != "c" {
		t.Fatalf("expected item c, got %#v", first)
	}

	again, err := store.NextEligible(ctx)
	if err != nil {
		t.Fatalf("NextEligible: %v", err)
	}
	if again == nil || again.ID != "c" || again.Status != queue.StatusQueued {
		t.Fatalf("NextEligible must not change state, got %#v", again)
	}
}

func TestPersistedStateIsReadBack(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	items := []*queue.Item{
		{ID: "a", Keyword: "alpha", Priority: 2, Status: queue.StatusQueued, Verdict: queue.VerdictApprove},
		{ID: "b", Keyword: "beta", Priority: 1, Status: queue.StatusQueued, Verdict: queue.VerdictReject},
	}
	if err := store.SaveAll(ctx, items); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}

	next, err := store.NextEligible(ctx)
	if err != nil || next == nil || next.ID != "a" {
		t.Fatalf("expected a before the update, got %#v (err %v)", next, err)
	}
	if _, err := store.Update(ctx, "a", queue.Patch{Status: queue.StatusPtr(queue.StatusGenerating)}); err != nil {
		t.Fatalf("Update a: %v", err)
	}
	if _, err := store.Update(ctx, "a", queue.Patch{Status: queue.StatusPtr(queue.StatusPublished)}); err != nil {
		t.Fatalf("Update a: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	all, err := reopened.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 items, got %d", len(all))
	}
	next, err = reopened.NextEligible(ctx)
	if err != nil {
		t.Fatalf("NextEligible: %v", err)
	}
	if next != nil {
		t.Fatalf("expected no eligible item, got %#v", next)
	}
	published, err := reopened.Get(ctx, "a")
	if err != nil || published == nil || published.Status != queue.StatusPublished {
		t.Fatalf("expected a published, got %#v (err %v)", published, err)
	}
}

func TestRejectedVerdictNeverGenerates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item, err := store.Insert(ctx, &queue.Item{Keyword: "rejected", Verdict: queue.VerdictReject})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	_, err = store.Update(ctx, item.ID, queue.Patch{Status: queue.StatusPtr(queue.StatusGenerating)})
	if !errors.Is(err, queue.ErrInvalidTransition) || !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected invalid transition validation error, got %v", err)
	}
}

func TestStatusTransitionsAreMonotonic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.NewItem(t, store, "monotonic", 0)
	if item.Priority != queue.DefaultPriority || item.Version != 1 {
		t.Fatalf("unexpected defaults: %#v", item)
	}

	steps := []struct {
		to queue.Status
		ok bool
	}{
		{queue.StatusPublished, false},
		{queue.StatusGenerating, true},
		{queue.StatusQueued, false},
		{queue.StatusFailed, true},
		{queue.StatusQueued, false},
		{queue.StatusGenerating, true},
		{queue.StatusStaged, true},
		{queue.StatusPublished, true},
		{queue.StatusFailed, false},
		{queue.StatusGenerating, false},
	}
	for i, step := range steps {
		_, err := store.Update(ctx, item.ID, queue.Patch{Status: queue.StatusPtr(step.to)})
		if step.ok && err != nil {
			t.Fatalf("step %d to %s: unexpected error %v", i, step.to, err)
		}
		if !step.ok && !errors.Is(err, queue.ErrInvalidTransition) {
			t.Fatalf("step %d to %s: expected invalid transition, got %v", i, step.to, err)
		}
	}

	final, err := store.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if final.Status != queue.StatusPublished {
		t.Fatalf("expected published, got %s", final.Status)
	}
	if final.Version != 6 {
		t.Fatalf("expected version 6 after five writes, got %d", final.Version)
	}
}

func TestRetryFailedIsTheOnlyWayBackToQueued(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.NewItem(t, store, "retry", 0)
	if _, err := store.Update(ctx, item.ID, queue.Patch{Status: queue.StatusPtr(queue.StatusGenerating)}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	failed, err := store.Update(ctx, item.ID, queue.Patch{
		Status:       queue.StatusPtr(queue.StatusFailed),
		ErrorMessage: queue.StringPtr(string(long)),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(failed.ErrorMessage) != queue.ErrorMessageLimit {
		t.Fatalf("expected error truncated to %d, got %d", queue.ErrorMessageLimit, len(failed.ErrorMessage))
	}

	count, err := store.RetryFailed(ctx, item.ID)
	if err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 retried item, got %d", count)
	}
	reset, _ := store.Get(ctx, item.ID)
	if reset.Status != queue.StatusQueued || reset.ErrorMessage != "" {
		t.Fatalf("unexpected item after retry: %#v", reset)
	}
}

func TestVersionConflict(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.NewItem(t, store, "cas", 0)
	if _, err := store.Update(ctx, item.ID, queue.Patch{ExpectVersion: item.Version, Title: queue.StringPtr("first")}); err != nil {
		t.Fatalf("first update: %v", err)
	}
	_, err := store.Update(ctx, item.ID, queue.Patch{ExpectVersion: item.Version, Title: queue.StringPtr("second")})
	if !errors.Is(err, queue.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	current, _ := store.Get(ctx, item.ID)
	if current.Title != "first" {
		t.Fatalf("stale write leaked: %q", current.Title)
	}
}

func TestClaimNextSelectsEachItemOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	const total = 5
	for i := 0; i < total; i++ {
		testsupport.NewItem(t, store, "keyword "+string(rune('a'+i)), i+1)
	}

	var (
		mu      sync.Mutex
		claimed = map[string]int{}
		wg      sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				item, err := store.ClaimNext(ctx, time.Now())
				if err != nil {
					t.Errorf("ClaimNext: %v", err)
					return
				}
				if item == nil {
					return
				}
				mu.Lock()
				claimed[item.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(claimed) != total {
		t.Fatalf("expected %d claimed items, got %d", total, len(claimed))
	}
	for id, n := range claimed {
		if n != 1 {
			t.Fatalf("item %s claimed %d times", id, n)
		}
	}
	generating, err := store.List(ctx, queue.StatusGenerating)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, item := range generating {
		if item.StartedAt.IsZero() {
			t.Fatalf("claimed item %s has no start time", item.ID)
		}
	}
}

func TestSaveAllIsAllOrNothing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewItem(t, store, "existing", 0)
	err := store.SaveAll(ctx, []*queue.Item{
		{ID: "x", Keyword: "one"},
		{ID: "x", Keyword: "two"},
	})
	if err == nil {
		t.Fatal("expected duplicate id error")
	}
	all, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(all) != 1 || all[0].Keyword != "existing" {
		t.Fatalf("collection changed after failed save: %#v", all)
	}
}

func TestSkipAndRemove(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a := testsupport.NewItem(t, store, "skip me", 0)
	b := testsupport.NewItem(t, store, "remove me", 0)

	if n, err := store.Skip(ctx, a.ID); err != nil || n != 1 {
		t.Fatalf("Skip: n=%d err=%v", n, err)
	}
	if n, err := store.Remove(ctx, b.ID); err != nil || n != 1 {
		t.Fatalf("Remove: n=%d err=%v", n, err)
	}
	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[queue.StatusSkipped] != 1 || stats[queue.StatusQueued] != 0 {
		t.Fatalf("unexpected stats %#v", stats)
	}
	if _, err := store.Update(ctx, a.ID, queue.Patch{Status: queue.StatusPtr(queue.StatusGenerating)}); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("skipped must be terminal, got %v", err)
	}
}

func TestUpdateMissingItem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	_, err := store.Update(context.Background(), "nope", queue.Patch{Title: queue.StringPtr("x")})
	if !errors.Is(err, queue.ErrItemNotFound) || !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCheckHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.NewItem(t, store, "healthy", 0)

	health, err := store.CheckHealth(ctx)
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !health.DatabaseExists || !health.SchemaComplete() || !health.IntegrityCheck {
		t.Fatalf("unexpected health %#v", health)
	}
	if health.SchemaVersion != 1 || health.TotalItems != 1 {
		t.Fatalf("unexpected version or totals %#v", health)
	}

	summary, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if summary.Total != 1 || summary.Queued != 1 || summary.Eligible != 1 {
		t.Fatalf("unexpected summary %#v", summary)
	}
}

func TestCheckHealthReportsMissingTable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	raw, err := sql.Open("sqlite", cfg.QueueDBPath())
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	defer raw.Close()
	if _, err := raw.ExecContext(ctx, `DROP TABLE tracked_posts`); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	health, err := store.CheckHealth(ctx)
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if health.SchemaComplete() {
		t.Fatalf("expected incomplete schema, got %#v", health)
	}
	if len(health.MissingTables) != 1 || health.MissingTables[0] != "tracked_posts" {
		t.Fatalf("unexpected missing tables %v", health.MissingTables)
	}
	if len(health.MissingColumns) != 0 {
		t.Fatalf("unexpected missing columns %v", health.MissingColumns)
	}
}
