package search_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/driftweb/crawlindex/internal/common"
	"github.com/driftweb/crawlindex/internal/store/sqlite"
)

// openTestStore opens a throwaway on-disk index store with migrations
// applied, for exercising the real dynamic-SQL query paths in list.go,
// get.go and federated.go rather than faking the database layer.
func openTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	store, err := sqlite.Open(arbor.NewLogger(), common.StorageConfig{
		Path:        path,
		BusyTimeout: 5 * time.Second,
		CacheSizeKB: 2048,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// seedSource inserts (or resolves) a CrawlSource for origin.
func seedSource(t *testing.T, store *sqlite.Store, origin string) int64 {
	t.Helper()
	cs, err := store.GetOrCreateCrawlSource(context.Background(), origin, 0)
	require.NoError(t, err)
	return cs.ID
}

// seedPost upserts a posts row under sourceID, syncing tags when given.
func seedPost(t *testing.T, store *sqlite.Store, sourceID int64, pathname, body string, crawledAt int64, tags []string) int64 {
	t.Helper()
	id, err := store.UpsertRecord(context.Background(), "posts", sourceID, pathname, crawledAt, map[string]any{
		"body":       body,
		"created_at": crawledAt,
		"updated_at": crawledAt,
	})
	require.NoError(t, err)
	if len(tags) > 0 {
		require.NoError(t, store.SyncTags(context.Background(), "post_tags", "post_id", id, tags))
	}
	return id
}
