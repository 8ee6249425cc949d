package datasets

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/driftweb/crawlindex/internal/events"
	"github.com/driftweb/crawlindex/internal/models"
)

var bookmarksPathRegex = regexp.MustCompile(`^/data/bookmarks/[^/]+\.json$`)

const bookmarksSchemaVersion = 1

// NewBookmarksIngester constructs the `unwalled.garden/bookmark` dataset ingester.
func NewBookmarksIngester(bus *events.Bus, store Store, logger arbor.ILogger) *CollectionIngester[models.Bookmark] {
	return NewCollectionIngester(CollectionSpec[models.Bookmark]{
		Tag:           "bookmarks",
		SchemaVersion: bookmarksSchemaVersion,
		PathRegex:     bookmarksPathRegex,
		Table:         "bookmarks",
		TagJoinTable:  "bookmark_tags",
		TagFKColumn:   "bookmark_id",
		CreatedAtOf:   func(b models.Bookmark) string { return b.CreatedAt },
		UpdatedAtOf:   func(b models.Bookmark) string { return b.UpdatedAt },
		TagsOf:        func(b models.Bookmark) []string { return b.Tags },
		ColumnsOf: func(b models.Bookmark, createdAt, updatedAt int64) map[string]any {
			pinned := 0
			if b.Pinned {
				pinned = 1
			}
			return map[string]any{
				"href":       b.Href,
				"title":      b.Title,
				"pinned":     pinned,
				"created_at": createdAt,
				"updated_at": updatedAt,
			}
		},
	}, bus, store, logger)
}

// bookmarkFilePath derives the canonical per-href bookmark path (spec.md
// §6.3: "/data/bookmarks/<slug>.json"), slug-keyed on the bookmarked URL
// rather than a timestamp.
func bookmarkFilePath(href string) string {
	return fmt.Sprintf("/data/bookmarks/%s.json", Slugify(href))
}

// AddBookmark writes (or overwrites) the bookmark file for bookmark.Href
// and enqueues a re-crawl.
func AddBookmark(ctx context.Context, locker NamedLocker, requests CrawlRequests, ah ArchiveWriter, archiveURL string, bookmark models.Bookmark) (string, error) {
	bookmark.Type = "unwalled.garden/bookmark"
	if bookmark.CreatedAt == "" {
		bookmark.CreatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if err := models.Validator().Struct(bookmark); err != nil {
		return "", err
	}
	cols, err := structToMap(bookmark)
	if err != nil {
		return "", err
	}
	return AddRecordAt(ctx, locker, requests, ah, "bookmarks", archiveURL, bookmarkFilePath(bookmark.Href), cols)
}

// EditBookmark patches the bookmark at pathname and enqueues a re-crawl.
func EditBookmark(ctx context.Context, locker NamedLocker, requests CrawlRequests, ah ArchiveWriter, archiveURL, pathname string, patch map[string]any) error {
	patch["updatedAt"] = time.Now().UTC().Format(time.RFC3339Nano)
	return EditRecord(ctx, locker, requests, ah, "bookmarks", archiveURL, pathname, patch)
}

// RemoveBookmark deletes the bookmark at pathname and enqueues a re-crawl.
func RemoveBookmark(ctx context.Context, locker NamedLocker, requests CrawlRequests, ah ArchiveWriter, archiveURL, pathname string) error {
	return RemoveRecord(ctx, locker, requests, ah, "bookmarks", archiveURL, pathname)
}
