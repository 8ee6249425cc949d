package coordinator_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftweb/crawlindex/internal/archive"
	"github.com/driftweb/crawlindex/internal/coordinator"
	"github.com/driftweb/crawlindex/internal/datasets"
	"github.com/driftweb/crawlindex/internal/dnsstore"
	"github.com/driftweb/crawlindex/internal/events"
	"github.com/driftweb/crawlindex/internal/models"
)

type fakeSourceStore struct {
	mu       sync.Mutex
	byOrigin map[string]*models.CrawlSource
	metas    map[int64]map[string]models.CrawlSourceMeta
	titles   map[string]string
	nextID   int64
}

func newFakeSourceStore() *fakeSourceStore {
	return &fakeSourceStore{
		byOrigin: make(map[string]*models.CrawlSource),
		metas:    make(map[int64]map[string]models.CrawlSourceMeta),
		titles:   make(map[string]string),
	}
}

func (f *fakeSourceStore) GetBestSiteDescription(_ context.Context, subjectURL string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.titles[subjectURL], "", nil
}

func (f *fakeSourceStore) GetOrCreateCrawlSource(_ context.Context, origin string, dnsBindingID int64) (*models.CrawlSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if cs, ok := f.byOrigin[origin]; ok {
		return cs, nil
	}
	f.nextID++
	cs := &models.CrawlSource{ID: f.nextID, Origin: origin, DNSBindingID: dnsBindingID}
	f.byOrigin[origin] = cs
	return cs, nil
}

func (f *fakeSourceStore) UpdateDNSBinding(_ context.Context, sourceID, dnsBindingID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, cs := range f.byOrigin {
		if cs.ID == sourceID {
			cs.DNSBindingID = dnsBindingID
		}
	}
	return nil
}

func (f *fakeSourceStore) DeleteCrawlSource(_ context.Context, origin string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byOrigin, origin)
	return nil
}

func (f *fakeSourceStore) ListCrawlSources(_ context.Context) ([]models.CrawlSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.CrawlSource, 0, len(f.byOrigin))
	for _, cs := range f.byOrigin {
		out = append(out, *cs)
	}
	return out, nil
}

func (f *fakeSourceStore) ListCrawlSourceMeta(_ context.Context, sourceID int64) ([]models.CrawlSourceMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.CrawlSourceMeta, 0, len(f.metas[sourceID]))
	for _, m := range f.metas[sourceID] {
		out = append(out, m)
	}
	return out, nil
}

type fakeLocker struct {
	mu sync.Mutex
}

func (f *fakeLocker) Lock(_ context.Context, _ string) (func(), error) {
	f.mu.Lock()
	return f.mu.Unlock, nil
}

type nopDNSStore struct{}

func (nopDNSStore) GetCurrentByKey(_ context.Context, _ string) (*models.DNSBinding, error) {
	return nil, nil
}
func (nopDNSStore) Update(_ context.Context, _, _ string) error { return nil }
func (nopDNSStore) Unset(_ context.Context, _ string) error     { return nil }

var _ dnsstore.Store = nopDNSStore{}

type countingIngester struct {
	tag   string
	mu    sync.Mutex
	calls int
}

func (c *countingIngester) Tag() string { return c.tag }

func (c *countingIngester) Crawl(_ context.Context, _ archive.Handle, _ *models.CrawlSource) error {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return nil
}

func (c *countingIngester) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func newTestCoordinator(t *testing.T, ing *countingIngester, debounce time.Duration) (*coordinator.Coordinator, *fakeSourceStore) {
	t.Helper()
	store := newFakeSourceStore()
	registry := datasets.NewRegistry()
	require.NoError(t, registry.Register(ing))
	bus := events.NewBus(nil)
	c := coordinator.New(store, nopDNSStore{}, &fakeLocker{}, bus, registry, nil, debounce, nil)
	return c, store
}

func TestWatch_IsIdempotent(t *testing.T) {
	ing := &countingIngester{tag: "posts"}
	c, _ := newTestCoordinator(t, ing, time.Millisecond)

	ah := archive.NewMemory("hyper://origin/", true)

	require.NoError(t, c.Watch(context.Background(), ah))
	require.NoError(t, c.Watch(context.Background(), ah))

	// give the fire-and-forget initial crawl goroutine(s) a chance to run
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, ing.count(), "second Watch on an already-watched origin must be a no-op")
}

func TestCrawl_FansOutToEveryRegisteredIngester(t *testing.T) {
	a := &countingIngester{tag: "posts"}
	b := &countingIngester{tag: "bookmarks"}

	store := newFakeSourceStore()
	registry := datasets.NewRegistry()
	require.NoError(t, registry.Register(a))
	require.NoError(t, registry.Register(b))
	bus := events.NewBus(nil)
	c := coordinator.New(store, nopDNSStore{}, &fakeLocker{}, bus, registry, nil, time.Second, nil)

	ch, unsubscribe := c.Events()
	defer unsubscribe()

	ah := archive.NewMemory("hyper://origin/", true)
	require.NoError(t, c.Crawl(context.Background(), ah))

	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())

	var kinds []events.Kind
	for i := 0; i < 2; i++ {
		select {
		case ev := <-ch:
			kinds = append(kinds, ev.Kind)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for crawl-start/crawl-finish events")
		}
	}
	assert.Contains(t, kinds, events.KindCrawlStart)
	assert.Contains(t, kinds, events.KindCrawlFinish)
}

func TestUnwatch_StopsFurtherDebouncedCrawls(t *testing.T) {
	ing := &countingIngester{tag: "posts"}
	c, _ := newTestCoordinator(t, ing, 10*time.Millisecond)

	ah := archive.NewMemory("hyper://origin/", true)
	require.NoError(t, c.Watch(context.Background(), ah))
	time.Sleep(20 * time.Millisecond) // let the initial crawl settle

	before := ing.count()
	c.Unwatch("hyper://origin")

	require.NoError(t, ah.WriteFile(context.Background(), "/data/posts/a.json", []byte(`{}`)))
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, before, ing.count(), "unwatch must stop debounced crawls from firing")
}

func TestResetSite_DeletesCrawlSource(t *testing.T) {
	ing := &countingIngester{tag: "posts"}
	c, store := newTestCoordinator(t, ing, time.Second)

	ah := archive.NewMemory("hyper://origin/", true)
	require.NoError(t, c.Crawl(context.Background(), ah))

	_, ok := store.byOrigin["hyper://origin"]
	require.True(t, ok)

	require.NoError(t, c.ResetSite(context.Background(), "hyper://origin"))
	_, ok = store.byOrigin["hyper://origin"]
	assert.False(t, ok)
}

func TestResetSite_OnUnknownOriginIsNotAnError(t *testing.T) {
	ing := &countingIngester{tag: "posts"}
	c, _ := newTestCoordinator(t, ing, time.Second)
	assert.NoError(t, c.ResetSite(context.Background(), "hyper://never-seen"))
}

func TestListCrawlStates_ReflectsCheckpoints(t *testing.T) {
	ing := &countingIngester{tag: "posts"}
	c, store := newTestCoordinator(t, ing, time.Second)

	ah := archive.NewMemory("hyper://origin/", true)
	require.NoError(t, c.Crawl(context.Background(), ah))

	cs := store.byOrigin["hyper://origin"]
	require.NotNil(t, cs)
	store.mu.Lock()
	store.metas[cs.ID] = map[string]models.CrawlSourceMeta{
		"posts": {SourceID: cs.ID, DatasetTag: "posts", CrawlDatasetVersion: 3, UpdatedAt: 1700000000000},
	}
	store.titles["hyper://origin"] = "My Site"
	store.mu.Unlock()

	states, err := c.ListCrawlStates(context.Background())
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, "hyper://origin", states[0].Origin)
	assert.Equal(t, "My Site", states[0].Title)
	assert.Equal(t, 3, states[0].DatasetVersions["posts"])
	assert.Equal(t, int64(1700000000000), states[0].UpdatedAt)
}
