package testsupport

import (
	"context"
	"testing"

	"narrator/internal/config"
	"narrator/internal/queue"
)

// MustOpenStore opens the task store for cfg and closes it when the test ends.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// EnqueueWord inserts a pending word task and fails the test on error.
func EnqueueWord(t testing.TB, store *queue.Store, ownerID, word string, category queue.Category, maxAttempts int) *queue.WordTask {
	t.Helper()
	task, _, err := store.EnqueueWordTask(context.Background(), queue.WordTaskInput{
		OwnerID:     ownerID,
		Word:        word,
		Category:    category,
		MaxAttempts: maxAttempts,
	})
	if err != nil {
		t.Fatalf("EnqueueWordTask(%s, %s): %v", ownerID, word, err)
	}
	return task
}
