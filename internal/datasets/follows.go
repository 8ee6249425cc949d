package datasets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/ternarybob/arbor"

	"github.com/driftweb/crawlindex/internal/crawlerr"
	"github.com/driftweb/crawlindex/internal/events"
	"github.com/driftweb/crawlindex/internal/ingest"
	"github.com/driftweb/crawlindex/internal/models"
)

const followsSchemaVersion = 1

const followsCanonicalPath = "/data/follows.json"

// NewFollowsIngester constructs the single-file `/data/follows.json`
// dataset ingester, materializing into follow_edges.
func NewFollowsIngester(bus *events.Bus, ckpt ingest.Checkpointer, edges EdgeStore, logger arbor.ILogger) *SingleFileSetIngester {
	return NewSingleFileSetIngester(SingleFileSetSpec{
		Tag:           "follows",
		SchemaVersion: followsSchemaVersion,
		CanonicalPath: followsCanonicalPath,
		EdgeTable:     "follow_edges",
	}, bus, ckpt, edges, logger)
}

func followsLockName(archiveURL string) string {
	return datasetLockName("follows", archiveURL)
}

// Follow adds target to the canonical follows list, under the per-archive
// follows lock, and enqueues a re-crawl (spec.md §6.4's `follow(archive,
// target)`).
func Follow(ctx context.Context, locker NamedLocker, requests CrawlRequests, ah ArchiveWriter, archiveURL, target string) error {
	release, err := locker.Lock(ctx, followsLockName(archiveURL))
	if err != nil {
		return err
	}
	defer release()

	urls, err := readFollowsList(ctx, ah)
	if err != nil {
		return err
	}
	if !contains(urls, target) {
		urls = append(urls, target)
	}
	if err := writeFollowsList(ctx, ah, urls); err != nil {
		return err
	}
	return enqueueCrawl(ctx, requests, archiveURL)
}

// Unfollow mirrors Follow, removing target from the canonical list.
func Unfollow(ctx context.Context, locker NamedLocker, requests CrawlRequests, ah ArchiveWriter, archiveURL, target string) error {
	release, err := locker.Lock(ctx, followsLockName(archiveURL))
	if err != nil {
		return err
	}
	defer release()

	urls, err := readFollowsList(ctx, ah)
	if err != nil {
		return err
	}
	urls = remove(urls, target)
	if err := writeFollowsList(ctx, ah, urls); err != nil {
		return err
	}
	return enqueueCrawl(ctx, requests, archiveURL)
}

func readFollowsList(ctx context.Context, ah ArchiveWriter) ([]string, error) {
	data, err := ah.ReadFile(ctx, followsCanonicalPath)
	if err != nil {
		if errors.Is(err, crawlerr.NotFound) || errors.Is(err, crawlerr.ArchiveUnreadable) {
			return nil, nil
		}
		return nil, err
	}
	var list models.FollowsList
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&list); err != nil {
		return nil, nil
	}
	return list.URLs, nil
}

func writeFollowsList(ctx context.Context, ah ArchiveWriter, urls []string) error {
	list := models.FollowsList{Type: "unwalled.garden/follows", URLs: urls}
	return writeJSON(ctx, ah, followsCanonicalPath, list)
}
