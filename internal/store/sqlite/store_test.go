package sqlite_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/driftweb/crawlindex/internal/common"
	"github.com/driftweb/crawlindex/internal/store/sqlite"
)

// newTestStore opens a fresh migrated index store backed by a temp file,
// matching how cmd/crawld opens it in production minus the config file.
func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	cfg := common.StorageConfig{
		Path:        filepath.Join(t.TempDir(), "index.db"),
		BusyTimeout: 5 * time.Second,
		CacheSizeKB: 2000,
	}
	store, err := sqlite.Open(arbor.NewLogger(), cfg)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}
