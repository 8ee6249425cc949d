package search

import (
	"context"
	"sort"
	"strings"
)

// Suggestion is one entry in a listSuggestions response: a URL/title pair
// tagged with the collaborator it came from, per spec.md §4.6.4.
type Suggestion struct {
	Source string // "page", "address-book", "bookmark", "site", "history"
	URL    string
	Title  string
}

// BuiltinPage is a statically registered application page (e.g. settings,
// the feed view) eligible for suggestion.
type BuiltinPage struct {
	URL   string
	Title string
}

// AddressBook is a thin wrapper over the follows ingester's materialized
// rows, giving the acting user's own follow list as suggestions.
type AddressBook interface {
	ListFollows(ctx context.Context, userOrigin string) ([]string, error)
}

// Bookmark is one row surfaced by BookmarksStore.
type Bookmark struct {
	URL    string
	Title  string
	Pinned bool
}

// BookmarksStore is the read-only bookmarks sub-store collaborator
// (spec.md §6.1).
type BookmarksStore interface {
	ListBookmarks(ctx context.Context, userOrigin string) ([]Bookmark, error)
}

// HistoryEntry is one browsing-history row surfaced by HistoryStore.
type HistoryEntry struct {
	URL   string
	Title string
}

// HistoryStore is the read-only history sub-store collaborator
// (spec.md §6.1), queried only when a query string is present.
type HistoryStore interface {
	SearchHistory(ctx context.Context, userOrigin, query string) ([]HistoryEntry, error)
}

// SiteRecord is one locally cached archive the ArchiveLibrary knows about.
type SiteRecord struct {
	URL   string
	Title string
}

// ArchiveLibrary is the read-only locally-cached-sites collaborator
// (spec.md §6.1).
type ArchiveLibrary interface {
	ListKnownSites(ctx context.Context) ([]SiteRecord, error)
}

// SuggestionsInput is the listSuggestions request (spec.md §4.6.4).
type SuggestionsInput struct {
	UserOrigin string
	Query      string
	FilterPins bool // exclude pinned bookmarks
}

// historyMatchCap bounds the history contribution to the top-12 shortest
// matching URLs, per spec.md §4.6.4.
const historyMatchCap = 12

// ListSuggestions implements spec.md §4.6.4: a shallow composition of
// built-in pages, the address book, bookmarks, cached site records, and
// (when query is non-empty) the top history matches, every source
// filtered by substring match on URL or title.
func ListSuggestions(ctx context.Context, pages []BuiltinPage, addressBook AddressBook, bookmarks BookmarksStore, history HistoryStore, library ArchiveLibrary, in SuggestionsInput) ([]Suggestion, error) {
	q := strings.ToLower(strings.TrimSpace(in.Query))

	var out []Suggestion

	for _, p := range pages {
		if matches(q, p.URL, p.Title) {
			out = append(out, Suggestion{Source: "page", URL: p.URL, Title: p.Title})
		}
	}

	if addressBook != nil {
		follows, err := addressBook.ListFollows(ctx, in.UserOrigin)
		if err != nil {
			return nil, err
		}
		for _, origin := range follows {
			if matches(q, origin, "") {
				out = append(out, Suggestion{Source: "address-book", URL: origin})
			}
		}
	}

	if bookmarks != nil {
		marks, err := bookmarks.ListBookmarks(ctx, in.UserOrigin)
		if err != nil {
			return nil, err
		}
		for _, b := range marks {
			if in.FilterPins && b.Pinned {
				continue
			}
			if matches(q, b.URL, b.Title) {
				out = append(out, Suggestion{Source: "bookmark", URL: b.URL, Title: b.Title})
			}
		}
	}

	if library != nil {
		sites, err := library.ListKnownSites(ctx)
		if err != nil {
			return nil, err
		}
		for _, s := range sites {
			if matches(q, s.URL, s.Title) {
				out = append(out, Suggestion{Source: "site", URL: s.URL, Title: s.Title})
			}
		}
	}

	if q != "" && history != nil {
		entries, err := history.SearchHistory(ctx, in.UserOrigin, q)
		if err != nil {
			return nil, err
		}
		sort.Slice(entries, func(i, j int) bool { return len(entries[i].URL) < len(entries[j].URL) })
		if len(entries) > historyMatchCap {
			entries = entries[:historyMatchCap]
		}
		for _, h := range entries {
			out = append(out, Suggestion{Source: "history", URL: h.URL, Title: h.Title})
		}
	}

	return out, nil
}

// matches reports whether q is empty or a substring of url/title
// (case-insensitive), per spec.md §4.6.4's "filtered by substring match".
func matches(q, url, title string) bool {
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(url), q) || strings.Contains(strings.ToLower(title), q)
}
