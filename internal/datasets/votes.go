package datasets

import (
	"context"
	"regexp"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/driftweb/crawlindex/internal/events"
	"github.com/driftweb/crawlindex/internal/models"
)

var votesPathRegex = regexp.MustCompile(`^/data/votes/[^/]+\.json$`)

const votesSchemaVersion = 1

// NewVotesIngester constructs the `unwalled.garden/vote` dataset ingester.
func NewVotesIngester(bus *events.Bus, store Store, logger arbor.ILogger) *CollectionIngester[models.Vote] {
	return NewCollectionIngester(CollectionSpec[models.Vote]{
		Tag:           "votes",
		SchemaVersion: votesSchemaVersion,
		PathRegex:     votesPathRegex,
		Table:         "votes",
		CreatedAtOf:   func(v models.Vote) string { return v.CreatedAt },
		UpdatedAtOf:   func(v models.Vote) string { return v.UpdatedAt },
		ColumnsOf: func(v models.Vote, createdAt, updatedAt int64) map[string]any {
			return map[string]any{
				"href":       v.Href,
				"vote":       v.Vote,
				"created_at": createdAt,
				"updated_at": updatedAt,
			}
		},
	}, bus, store, logger)
}

// AddVote writes a new vote file and enqueues a re-crawl.
func AddVote(ctx context.Context, locker NamedLocker, requests CrawlRequests, ah ArchiveWriter, archiveURL string, vote models.Vote) (string, error) {
	vote.Type = "unwalled.garden/vote"
	if vote.CreatedAt == "" {
		vote.CreatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if err := models.Validator().Struct(vote); err != nil {
		return "", err
	}
	cols, err := structToMap(vote)
	if err != nil {
		return "", err
	}
	return AddRecord(ctx, locker, requests, ah, "votes", archiveURL, "votes", cols)
}

// EditVote patches the vote at pathname and enqueues a re-crawl.
func EditVote(ctx context.Context, locker NamedLocker, requests CrawlRequests, ah ArchiveWriter, archiveURL, pathname string, patch map[string]any) error {
	patch["updatedAt"] = time.Now().UTC().Format(time.RFC3339Nano)
	return EditRecord(ctx, locker, requests, ah, "votes", archiveURL, pathname, patch)
}

// RemoveVote deletes the vote at pathname and enqueues a re-crawl.
func RemoveVote(ctx context.Context, locker NamedLocker, requests CrawlRequests, ah ArchiveWriter, archiveURL, pathname string) error {
	return RemoveRecord(ctx, locker, requests, ah, "votes", archiveURL, pathname)
}
