package datasets

import (
	"context"
	"regexp"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/driftweb/crawlindex/internal/events"
	"github.com/driftweb/crawlindex/internal/models"
)

// postsPathRegex matches one post file per entry under /data/posts/.
var postsPathRegex = regexp.MustCompile(`^/data/posts/[^/]+\.json$`)

// postsSchemaVersion is bumped whenever the posts column set changes
// shape, forcing a full rebuild for every source on next crawl.
const postsSchemaVersion = 1

// NewPostsIngester constructs the `unwalled.garden/post` dataset ingester.
func NewPostsIngester(bus *events.Bus, store Store, logger arbor.ILogger) *CollectionIngester[models.Post] {
	return NewCollectionIngester(CollectionSpec[models.Post]{
		Tag:           "posts",
		SchemaVersion: postsSchemaVersion,
		PathRegex:     postsPathRegex,
		Table:         "posts",
		TagJoinTable:  "post_tags",
		TagFKColumn:   "post_id",
		CreatedAtOf:   func(p models.Post) string { return p.CreatedAt },
		UpdatedAtOf:   func(p models.Post) string { return p.UpdatedAt },
		TagsOf:        func(p models.Post) []string { return p.Tags },
		ColumnsOf: func(p models.Post, createdAt, updatedAt int64) map[string]any {
			return map[string]any{
				"body":       p.Body,
				"created_at": createdAt,
				"updated_at": updatedAt,
			}
		},
	}, bus, store, logger)
}

// AddPost writes a new post file and enqueues a re-crawl of archiveURL so
// the Index Store picks it up (spec.md §6.4's `add(archive, payload)`).
func AddPost(ctx context.Context, locker NamedLocker, requests CrawlRequests, ah ArchiveWriter, archiveURL string, post models.Post) (string, error) {
	post.Type = "unwalled.garden/post"
	if post.CreatedAt == "" {
		post.CreatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if err := models.Validator().Struct(post); err != nil {
		return "", err
	}
	cols, err := structToMap(post)
	if err != nil {
		return "", err
	}
	return AddRecord(ctx, locker, requests, ah, "posts", archiveURL, "posts", cols)
}

// EditPost patches the post at pathname and enqueues a re-crawl.
func EditPost(ctx context.Context, locker NamedLocker, requests CrawlRequests, ah ArchiveWriter, archiveURL, pathname string, patch map[string]any) error {
	patch["updatedAt"] = time.Now().UTC().Format(time.RFC3339Nano)
	return EditRecord(ctx, locker, requests, ah, "posts", archiveURL, pathname, patch)
}

// RemovePost deletes the post at pathname and enqueues a re-crawl.
func RemovePost(ctx context.Context, locker NamedLocker, requests CrawlRequests, ah ArchiveWriter, archiveURL, pathname string) error {
	return RemoveRecord(ctx, locker, requests, ah, "posts", archiveURL, pathname)
}
