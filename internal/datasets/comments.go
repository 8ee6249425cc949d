package datasets

import (
	"context"
	"regexp"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/driftweb/crawlindex/internal/events"
	"github.com/driftweb/crawlindex/internal/models"
)

var commentsPathRegex = regexp.MustCompile(`^/data/comments/[^/]+\.json$`)

const commentsSchemaVersion = 1

// NewCommentsIngester constructs the `unwalled.garden/comment` dataset
// ingester. Comments carry no tags.
func NewCommentsIngester(bus *events.Bus, store Store, logger arbor.ILogger) *CollectionIngester[models.Comment] {
	return NewCollectionIngester(CollectionSpec[models.Comment]{
		Tag:           "comments",
		SchemaVersion: commentsSchemaVersion,
		PathRegex:     commentsPathRegex,
		Table:         "comments",
		CreatedAtOf:   func(c models.Comment) string { return c.CreatedAt },
		UpdatedAtOf:   func(c models.Comment) string { return c.UpdatedAt },
		ColumnsOf: func(c models.Comment, createdAt, updatedAt int64) map[string]any {
			return map[string]any{
				"href":        c.Href,
				"body":        c.Body,
				"parent_href": c.ParentHref,
				"created_at":  createdAt,
				"updated_at":  updatedAt,
			}
		},
	}, bus, store, logger)
}

// AddComment writes a new comment file and enqueues a re-crawl.
func AddComment(ctx context.Context, locker NamedLocker, requests CrawlRequests, ah ArchiveWriter, archiveURL string, comment models.Comment) (string, error) {
	comment.Type = "unwalled.garden/comment"
	if comment.CreatedAt == "" {
		comment.CreatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if err := models.Validator().Struct(comment); err != nil {
		return "", err
	}
	cols, err := structToMap(comment)
	if err != nil {
		return "", err
	}
	return AddRecord(ctx, locker, requests, ah, "comments", archiveURL, "comments", cols)
}

// EditComment patches the comment at pathname and enqueues a re-crawl.
func EditComment(ctx context.Context, locker NamedLocker, requests CrawlRequests, ah ArchiveWriter, archiveURL, pathname string, patch map[string]any) error {
	patch["updatedAt"] = time.Now().UTC().Format(time.RFC3339Nano)
	return EditRecord(ctx, locker, requests, ah, "comments", archiveURL, pathname, patch)
}

// RemoveComment deletes the comment at pathname and enqueues a re-crawl.
func RemoveComment(ctx context.Context, locker NamedLocker, requests CrawlRequests, ah ArchiveWriter, archiveURL, pathname string) error {
	return RemoveRecord(ctx, locker, requests, ah, "comments", archiveURL, pathname)
}
