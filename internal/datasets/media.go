package datasets

import (
	"context"
	"regexp"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/driftweb/crawlindex/internal/events"
	"github.com/driftweb/crawlindex/internal/models"
)

var mediaPathRegex = regexp.MustCompile(`^/data/media/[^/]+\.json$`)

const mediaSchemaVersion = 1

// NewMediaIngester constructs the `unwalled.garden/media` dataset ingester.
func NewMediaIngester(bus *events.Bus, store Store, logger arbor.ILogger) *CollectionIngester[models.Media] {
	return NewCollectionIngester(CollectionSpec[models.Media]{
		Tag:           "media",
		SchemaVersion: mediaSchemaVersion,
		PathRegex:     mediaPathRegex,
		Table:         "media",
		TagJoinTable:  "media_tags",
		TagFKColumn:   "media_id",
		CreatedAtOf:   func(m models.Media) string { return m.CreatedAt },
		UpdatedAtOf:   func(m models.Media) string { return m.UpdatedAt },
		TagsOf:        func(m models.Media) []string { return m.Tags },
		ColumnsOf: func(m models.Media, createdAt, updatedAt int64) map[string]any {
			return map[string]any{
				"caption":    m.Caption,
				"mime_type":  m.MimeType,
				"blob_name":  m.BlobName,
				"created_at": createdAt,
				"updated_at": updatedAt,
			}
		},
	}, bus, store, logger)
}

// AddMedia writes a new media file and enqueues a re-crawl.
func AddMedia(ctx context.Context, locker NamedLocker, requests CrawlRequests, ah ArchiveWriter, archiveURL string, media models.Media) (string, error) {
	media.Type = "unwalled.garden/media"
	if media.CreatedAt == "" {
		media.CreatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if err := models.Validator().Struct(media); err != nil {
		return "", err
	}
	cols, err := structToMap(media)
	if err != nil {
		return "", err
	}
	return AddRecord(ctx, locker, requests, ah, "media", archiveURL, "media", cols)
}

// EditMedia patches the media record at pathname and enqueues a re-crawl.
func EditMedia(ctx context.Context, locker NamedLocker, requests CrawlRequests, ah ArchiveWriter, archiveURL, pathname string, patch map[string]any) error {
	patch["updatedAt"] = time.Now().UTC().Format(time.RFC3339Nano)
	return EditRecord(ctx, locker, requests, ah, "media", archiveURL, pathname, patch)
}

// RemoveMedia deletes the media record at pathname and enqueues a re-crawl.
func RemoveMedia(ctx context.Context, locker NamedLocker, requests CrawlRequests, ah ArchiveWriter, archiveURL, pathname string) error {
	return RemoveRecord(ctx, locker, requests, ah, "media", archiveURL, pathname)
}
