package datasets_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftweb/crawlindex/internal/archive"
	"github.com/driftweb/crawlindex/internal/datasets"
	"github.com/driftweb/crawlindex/internal/events"
	"github.com/driftweb/crawlindex/internal/models"
)

type fakeSiteDescriptionStore struct {
	*fakeStore
	descriptions map[string]models.SiteDescription // subjectURL -> description
}

func newFakeSiteDescriptionStore() *fakeSiteDescriptionStore {
	return &fakeSiteDescriptionStore{fakeStore: newFakeStore(), descriptions: make(map[string]models.SiteDescription)}
}

func (f *fakeSiteDescriptionStore) UpsertSiteDescription(_ context.Context, _ int64, _, subjectURL, title, description, typeLabel string, createdAt, _ int64) error {
	f.descriptions[subjectURL] = models.SiteDescription{Title: title, Description: description, Type: typeLabel}
	return nil
}

func (f *fakeSiteDescriptionStore) DeleteSiteDescription(_ context.Context, _ int64, subjectURL string) error {
	delete(f.descriptions, subjectURL)
	return nil
}

func TestSiteDescriptionsIngester_CrawlsOwnAndKnownSites(t *testing.T) {
	ah := archive.NewMemory("hyper://origin/", true)
	require.NoError(t, ah.WriteFile(context.Background(), "/dat.json",
		[]byte(`{"title":"My Site","description":"about me","type":"person"}`)))
	require.NoError(t, ah.WriteFile(context.Background(), "/data/known_sites/bob.example/dat.json",
		[]byte(`{"title":"Bob","description":"about bob","type":"person"}`)))

	store := newFakeSiteDescriptionStore()
	bus := events.NewBus(nil)
	ing := datasets.NewSiteDescriptionsIngester(bus, store, nil)

	cs := &models.CrawlSource{ID: 1, Origin: "hyper://origin/"}
	require.NoError(t, ing.Crawl(context.Background(), ah, cs))

	assert.Equal(t, "My Site", store.descriptions["hyper://origin/"].Title)
	assert.Equal(t, "Bob", store.descriptions["hyper://bob.example"].Title)

	require.NoError(t, ah.Unlink(context.Background(), "/data/known_sites/bob.example/dat.json"))
	require.NoError(t, ing.Crawl(context.Background(), ah, cs))
	_, stillKnown := store.descriptions["hyper://bob.example"]
	assert.False(t, stillKnown)
}
