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
	"github.com/driftweb/crawlindex/internal/store/sqlite"
)

type reactionEntry struct {
	sourceID int64
	topic    string
	emojis   string
}

type fakeReactionStore struct {
	*fakeStore
	byPath map[string]reactionEntry // pathname -> entry
}

func newFakeReactionStore() *fakeReactionStore {
	return &fakeReactionStore{fakeStore: newFakeStore(), byPath: make(map[string]reactionEntry)}
}

func (f *fakeReactionStore) UpsertReaction(_ context.Context, sourceID int64, pathname, topic, emojis string, _ int64) error {
	f.byPath[pathname] = reactionEntry{sourceID: sourceID, topic: topic, emojis: emojis}
	return nil
}

func (f *fakeReactionStore) DeleteRecord(_ context.Context, _ string, _ int64, pathname string) (bool, error) {
	_, existed := f.byPath[pathname]
	delete(f.byPath, pathname)
	return existed, nil
}

func (f *fakeReactionStore) ListReactionsByTopic(_ context.Context, topic string) ([]sqlite.ReactionRow, error) {
	var out []sqlite.ReactionRow
	for _, e := range f.byPath {
		if e.topic == topic {
			out = append(out, sqlite.ReactionRow{SourceID: e.sourceID, Origin: "hyper://origin/", Emojis: e.emojis})
		}
	}
	return out, nil
}

func TestReactionsIngester_UpsertsNormalizedTopic(t *testing.T) {
	ah := archive.NewMemory("hyper://origin/", true)
	require.NoError(t, ah.WriteFile(context.Background(), "/data/reactions/example.json",
		[]byte(`{"type":"unwalled.garden/reactions","topic":"HTTPS://Example.com/Post/","emojis":["👍","🎉"]}`)))

	store := newFakeReactionStore()
	bus := events.NewBus(nil)
	ing := datasets.NewReactionsIngester(bus, store, nil)

	cs := &models.CrawlSource{ID: 1, Origin: "hyper://origin/"}
	require.NoError(t, ing.Crawl(context.Background(), ah, cs))

	groups, err := datasets.ListReactions(context.Background(), store, "https://example.com/Post")
	require.NoError(t, err)
	var emojis []string
	for _, g := range groups {
		emojis = append(emojis, g.Emoji)
	}
	assert.ElementsMatch(t, []string{"👍", "🎉"}, emojis)
}

func TestReactionsIngester_DeleteRemovesRow(t *testing.T) {
	ah := archive.NewMemory("hyper://origin/", true)
	require.NoError(t, ah.WriteFile(context.Background(), "/data/reactions/example.json",
		[]byte(`{"type":"unwalled.garden/reactions","topic":"https://example.com/post","emojis":["👍"]}`)))

	store := newFakeReactionStore()
	bus := events.NewBus(nil)
	ing := datasets.NewReactionsIngester(bus, store, nil)

	cs := &models.CrawlSource{ID: 1, Origin: "hyper://origin/"}
	require.NoError(t, ing.Crawl(context.Background(), ah, cs))

	require.NoError(t, ah.Unlink(context.Background(), "/data/reactions/example.json"))
	require.NoError(t, ing.Crawl(context.Background(), ah, cs))

	groups, err := datasets.ListReactions(context.Background(), store, "https://example.com/post")
	require.NoError(t, err)
	assert.Empty(t, groups)
}
