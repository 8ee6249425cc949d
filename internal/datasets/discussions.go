package datasets

import (
	"context"
	"regexp"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/driftweb/crawlindex/internal/events"
	"github.com/driftweb/crawlindex/internal/models"
)

var discussionsPathRegex = regexp.MustCompile(`^/data/discussions/[^/]+\.json$`)

const discussionsSchemaVersion = 1

// NewDiscussionsIngester constructs the `unwalled.garden/discussion` dataset ingester.
func NewDiscussionsIngester(bus *events.Bus, store Store, logger arbor.ILogger) *CollectionIngester[models.Discussion] {
	return NewCollectionIngester(CollectionSpec[models.Discussion]{
		Tag:           "discussions",
		SchemaVersion: discussionsSchemaVersion,
		PathRegex:     discussionsPathRegex,
		Table:         "discussions",
		TagJoinTable:  "discussion_tags",
		TagFKColumn:   "discussion_id",
		CreatedAtOf:   func(d models.Discussion) string { return d.CreatedAt },
		UpdatedAtOf:   func(d models.Discussion) string { return d.UpdatedAt },
		TagsOf:        func(d models.Discussion) []string { return d.Tags },
		ColumnsOf: func(d models.Discussion, createdAt, updatedAt int64) map[string]any {
			return map[string]any{
				"title":      d.Title,
				"body":       d.Body,
				"href":       d.Href,
				"created_at": createdAt,
				"updated_at": updatedAt,
			}
		},
	}, bus, store, logger)
}

// AddDiscussion writes a new discussion file and enqueues a re-crawl.
func AddDiscussion(ctx context.Context, locker NamedLocker, requests CrawlRequests, ah ArchiveWriter, archiveURL string, discussion models.Discussion) (string, error) {
	discussion.Type = "unwalled.garden/discussion"
	if discussion.CreatedAt == "" {
		discussion.CreatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if err := models.Validator().Struct(discussion); err != nil {
		return "", err
	}
	cols, err := structToMap(discussion)
	if err != nil {
		return "", err
	}
	return AddRecord(ctx, locker, requests, ah, "discussions", archiveURL, "discussions", cols)
}

// EditDiscussion patches the discussion at pathname and enqueues a re-crawl.
func EditDiscussion(ctx context.Context, locker NamedLocker, requests CrawlRequests, ah ArchiveWriter, archiveURL, pathname string, patch map[string]any) error {
	patch["updatedAt"] = time.Now().UTC().Format(time.RFC3339Nano)
	return EditRecord(ctx, locker, requests, ah, "discussions", archiveURL, pathname, patch)
}

// RemoveDiscussion deletes the discussion at pathname and enqueues a re-crawl.
func RemoveDiscussion(ctx context.Context, locker NamedLocker, requests CrawlRequests, ah ArchiveWriter, archiveURL, pathname string) error {
	return RemoveRecord(ctx, locker, requests, ah, "discussions", archiveURL, pathname)
}
