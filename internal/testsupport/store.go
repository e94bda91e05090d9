package testsupport

import (
	"context"
	"testing"

	"quill/internal/config"
	"quill/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewItem inserts an approved, queued item for keyword with the given
// priority (zero means the default).
func NewItem(t testing.TB, store *queue.Store, keyword string, priority int) *queue.Item {
	t.Helper()

	item, err := store.Insert(context.Background(), &queue.Item{
		Keyword:   keyword,
		Title:     keyword,
		Priority:  priority,
		Validated: true,
		Verdict:   queue.VerdictApprove,
	})
	if err != nil {
		t.Fatalf("store.Insert: %v", err)
	}
	return item
}
