package ingest_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftweb/crawlindex/internal/archive"
	"github.com/driftweb/crawlindex/internal/events"
	"github.com/driftweb/crawlindex/internal/ingest"
	"github.com/driftweb/crawlindex/internal/models"
)

type fakeCheckpointer struct {
	metas map[string]*models.CrawlSourceMeta
}

func newFakeCheckpointer() *fakeCheckpointer {
	return &fakeCheckpointer{metas: make(map[string]*models.CrawlSourceMeta)}
}

func key(sourceID int64, tag string) string { return tag }

func (f *fakeCheckpointer) GetCrawlSourceMeta(_ context.Context, sourceID int64, datasetTag string) (*models.CrawlSourceMeta, error) {
	return f.metas[key(sourceID, datasetTag)], nil
}

func (f *fakeCheckpointer) PutCrawlSourceMeta(_ context.Context, sourceID int64, datasetTag string, sourceVersion int64, datasetVersion int) error {
	f.metas[key(sourceID, datasetTag)] = &models.CrawlSourceMeta{
		SourceID:            sourceID,
		DatasetTag:          datasetTag,
		CrawlSourceVersion:  sourceVersion,
		CrawlDatasetVersion: datasetVersion,
	}
	return nil
}

func TestDoCrawl_FirstRunProcessesEverySinceGenesis(t *testing.T) {
	ah := archive.NewMemory("hyper://origin/", true)
	require.NoError(t, ah.WriteFile(context.Background(), "/data/posts/a.json", []byte(`{}`)))
	require.NoError(t, ah.WriteFile(context.Background(), "/data/posts/b.json", []byte(`{}`)))

	store := newFakeCheckpointer()
	bus := events.NewBus(nil)
	cs := &models.CrawlSource{ID: 1, Origin: "hyper://origin/"}

	var seen []archive.DiffEntry
	err := ingest.DoCrawl(context.Background(), bus, store, ah, cs, "posts", 1,
		func(_ context.Context, changes []archive.DiffEntry, win ingest.Window) error {
			seen = ingest.GetMatchingChangesInOrder(changes, regexp.MustCompile(`^/data/posts/`))
			assert.False(t, win.ResetRequired)
			return nil
		})
	require.NoError(t, err)
	assert.Len(t, seen, 2)

	meta, err := store.GetCrawlSourceMeta(context.Background(), 1, "posts")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.EqualValues(t, 2, meta.CrawlSourceVersion)
	assert.Equal(t, 1, meta.CrawlDatasetVersion)
}

func TestDoCrawl_NoNewVersionsSkipsDiffStream(t *testing.T) {
	ah := archive.NewMemory("hyper://origin/", true)
	require.NoError(t, ah.WriteFile(context.Background(), "/data/posts/a.json", []byte(`{}`)))

	store := newFakeCheckpointer()
	require.NoError(t, store.PutCrawlSourceMeta(context.Background(), 1, "posts", 1, 1))

	bus := events.NewBus(nil)
	cs := &models.CrawlSource{ID: 1, Origin: "hyper://origin/"}

	called := false
	err := ingest.DoCrawl(context.Background(), bus, store, ah, cs, "posts", 1,
		func(_ context.Context, changes []archive.DiffEntry, _ ingest.Window) error {
			called = true
			assert.Empty(t, changes)
			return nil
		})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestDoCrawl_SchemaVersionBumpForcesReset(t *testing.T) {
	ah := archive.NewMemory("hyper://origin/", true)
	require.NoError(t, ah.WriteFile(context.Background(), "/data/posts/a.json", []byte(`{}`)))

	store := newFakeCheckpointer()
	require.NoError(t, store.PutCrawlSourceMeta(context.Background(), 1, "posts", 1, 1))

	bus := events.NewBus(nil)
	cs := &models.CrawlSource{ID: 1, Origin: "hyper://origin/"}

	err := ingest.DoCrawl(context.Background(), bus, store, ah, cs, "posts", 2,
		func(_ context.Context, _ []archive.DiffEntry, win ingest.Window) error {
			assert.True(t, win.ResetRequired)
			assert.EqualValues(t, 1, win.Start)
			return nil
		})
	require.NoError(t, err)
}

func TestNormalizeTimestamp(t *testing.T) {
	assert.Equal(t, int64(0), ingest.NormalizeTimestamp(""))
	assert.Equal(t, int64(0), ingest.NormalizeTimestamp("not-a-date"))
	assert.Greater(t, ingest.NormalizeTimestamp("2024-01-02T03:04:05Z"), int64(0))
}
