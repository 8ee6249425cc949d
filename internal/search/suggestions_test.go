package search_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftweb/crawlindex/internal/search"
)

type fakeAddressBook struct{ follows []string }

func (f fakeAddressBook) ListFollows(_ context.Context, _ string) ([]string, error) {
	return f.follows, nil
}

type fakeBookmarksStore struct{ marks []search.Bookmark }

func (f fakeBookmarksStore) ListBookmarks(_ context.Context, _ string) ([]search.Bookmark, error) {
	return f.marks, nil
}

type fakeHistoryStore struct{ entries []search.HistoryEntry }

func (f fakeHistoryStore) SearchHistory(_ context.Context, _, _ string) ([]search.HistoryEntry, error) {
	return f.entries, nil
}

type fakeArchiveLibrary struct{ sites []search.SiteRecord }

func (f fakeArchiveLibrary) ListKnownSites(_ context.Context) ([]search.SiteRecord, error) {
	return f.sites, nil
}

func TestListSuggestions_EmptyQueryReturnsEverythingUnfiltered(t *testing.T) {
	pages := []search.BuiltinPage{{URL: "hyper://app/settings", Title: "Settings"}}
	book := fakeAddressBook{follows: []string{"hyper://friend"}}
	marks := fakeBookmarksStore{marks: []search.Bookmark{{URL: "hyper://docs", Title: "Docs"}}}
	lib := fakeArchiveLibrary{sites: []search.SiteRecord{{URL: "hyper://cached", Title: "Cached Site"}}}

	out, err := search.ListSuggestions(context.Background(), pages, book, marks, nil, lib, search.SuggestionsInput{})
	require.NoError(t, err)
	assert.Len(t, out, 4) // page, address-book, bookmark, site; history is skipped when query is empty
}

func TestListSuggestions_FiltersByQuerySubstring(t *testing.T) {
	pages := []search.BuiltinPage{{URL: "hyper://app/settings", Title: "Settings"}, {URL: "hyper://app/feed", Title: "Feed"}}

	out, err := search.ListSuggestions(context.Background(), pages, nil, nil, nil, nil, search.SuggestionsInput{Query: "feed"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "hyper://app/feed", out[0].URL)
}

func TestListSuggestions_FilterPinsExcludesPinnedBookmarks(t *testing.T) {
	marks := fakeBookmarksStore{marks: []search.Bookmark{
		{URL: "hyper://a", Title: "A", Pinned: true},
		{URL: "hyper://b", Title: "B", Pinned: false},
	}}

	out, err := search.ListSuggestions(context.Background(), nil, nil, marks, nil, nil, search.SuggestionsInput{FilterPins: true})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "hyper://b", out[0].URL)
}

func TestListSuggestions_HistoryOnlyQueriedWhenQueryPresent(t *testing.T) {
	history := fakeHistoryStore{entries: []search.HistoryEntry{{URL: "hyper://history/1", Title: "H1"}}}

	out, err := search.ListSuggestions(context.Background(), nil, nil, nil, history, nil, search.SuggestionsInput{})
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = search.ListSuggestions(context.Background(), nil, nil, nil, history, nil, search.SuggestionsInput{Query: "h1"})
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestListSuggestions_HistoryCappedAtTwelve(t *testing.T) {
	entries := make([]search.HistoryEntry, 0, 20)
	for i := 0; i < 20; i++ {
		entries = append(entries, search.HistoryEntry{URL: "hyper://match/" + padded(i), Title: "match"})
	}
	history := fakeHistoryStore{entries: entries}

	out, err := search.ListSuggestions(context.Background(), nil, nil, nil, history, nil, search.SuggestionsInput{Query: "match"})
	require.NoError(t, err)
	assert.Len(t, out, 12)
}

func padded(i int) string {
	if i < 10 {
		return "0" + string(rune('0'+i))
	}
	return string(rune('0'+i/10)) + string(rune('0'+i%10))
}
