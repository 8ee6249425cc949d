package datasets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/driftweb/crawlindex/internal/archive"
	"github.com/driftweb/crawlindex/internal/crawlerr"
)

// ArchiveWriter is the write-capable subset of archive.Handle every
// mutation operation needs: read/write/delete plus Stat for collision
// detection on generated filenames.
type ArchiveWriter interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data []byte) error
	Unlink(ctx context.Context, path string) error
	Stat(ctx context.Context, path string) (archive.Stat, error)
}

// NamedLocker is the Index Store's named-lock surface, used to serialize
// concurrent mutations to one archive's dataset.
type NamedLocker interface {
	Lock(ctx context.Context, name string) (func(), error)
}

// CrawlRequests is the write->crawl mailbox consumed interface
// (queue.CrawlRequests), kept narrow here per this package's decoupling
// convention rather than importing internal/queue directly.
type CrawlRequests interface {
	Enqueue(ctx context.Context, origin string) error
}

// datasetLockName names the per-archive per-dataset write lock spec.md
// §4.4 describes, distinct from the per-archive crawl lock the Coordinator
// holds during ingestion.
func datasetLockName(dataset, archiveURL string) string {
	return fmt.Sprintf("crawler:%s:%s", dataset, archiveURL)
}

// nextTimestampPath generates the next strictly-increasing ISO-8601
// millisecond-precision filename under dir, bumping by 1ms on collision
// per spec.md §6.3's filename generator for time-keyed paths.
func nextTimestampPath(ctx context.Context, ah ArchiveWriter, dir string) (string, error) {
	t := time.Now().UTC()
	for {
		path := fmt.Sprintf("/data/%s/%s.json", dir, t.Format("2006-01-02T15:04:05.000Z"))
		if _, err := ah.Stat(ctx, path); err != nil {
			if errors.Is(err, crawlerr.NotFound) || errors.Is(err, crawlerr.ArchiveUnreadable) {
				return path, nil
			}
			return "", err
		}
		t = t.Add(time.Millisecond)
	}
}

// enqueueCrawl asks the write->crawl mailbox to re-index origin, per
// Design Notes §9: every mutation notifies the Coordinator by message
// rather than recursively calling back into it.
func enqueueCrawl(ctx context.Context, requests CrawlRequests, origin string) error {
	if requests == nil {
		return nil
	}
	return requests.Enqueue(ctx, origin)
}

func writeJSON(ctx context.Context, ah ArchiveWriter, path string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return ah.WriteFile(ctx, path, data)
}

// structToMap round-trips v through JSON to get a patchable field map,
// used so EditRecord can shallow-merge a patch without a typed field list
// per dataset.
func structToMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// AddRecord writes a new per-file collection record under dir, locked per
// (dataset, archiveURL), and enqueues a crawl request so the Index Store
// picks the change up. payload must already carry its `type` discriminator.
func AddRecord(ctx context.Context, locker NamedLocker, requests CrawlRequests, ah ArchiveWriter, dataset, archiveURL, dir string, payload map[string]any) (string, error) {
	release, err := locker.Lock(ctx, datasetLockName(dataset, archiveURL))
	if err != nil {
		return "", err
	}
	defer release()

	path, err := nextTimestampPath(ctx, ah, dir)
	if err != nil {
		return "", err
	}
	if err := writeJSON(ctx, ah, path, payload); err != nil {
		return "", err
	}
	if err := enqueueCrawl(ctx, requests, archiveURL); err != nil {
		return "", err
	}
	return archiveURL + path, nil
}

// AddRecordAt is AddRecord for datasets whose path is derived from the
// payload itself (a slug or a fixed key) rather than generated from the
// current time, e.g. bookmarks (slugified href) and published-sites
// (hostname). It still locks, writes, and enqueues.
func AddRecordAt(ctx context.Context, locker NamedLocker, requests CrawlRequests, ah ArchiveWriter, dataset, archiveURL, path string, payload map[string]any) (string, error) {
	release, err := locker.Lock(ctx, datasetLockName(dataset, archiveURL))
	if err != nil {
		return "", err
	}
	defer release()

	if err := writeJSON(ctx, ah, path, payload); err != nil {
		return "", err
	}
	if err := enqueueCrawl(ctx, requests, archiveURL); err != nil {
		return "", err
	}
	return archiveURL + path, nil
}

// EditRecord reads the existing file at pathname, shallow-merges patch
// over its decoded fields, writes it back under the same path, and
// enqueues a crawl request (spec.md §6.4's `edit(archive, pathname, patch)`).
func EditRecord(ctx context.Context, locker NamedLocker, requests CrawlRequests, ah ArchiveWriter, dataset, archiveURL, pathname string, patch map[string]any) error {
	release, err := locker.Lock(ctx, datasetLockName(dataset, archiveURL))
	if err != nil {
		return err
	}
	defer release()

	data, err := ah.ReadFile(ctx, pathname)
	if err != nil {
		return crawlerr.Wrap(crawlerr.KindArchiveUnreadable, err, "read %s", pathname)
	}

	var existing map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&existing); err != nil {
		return crawlerr.Wrap(crawlerr.KindValidationFailed, err, "decode %s", pathname)
	}
	for k, v := range patch {
		existing[k] = v
	}

	if err := writeJSON(ctx, ah, pathname, existing); err != nil {
		return err
	}
	return enqueueCrawl(ctx, requests, archiveURL)
}

// RemoveRecord deletes pathname, tolerating an already-absent file, and
// enqueues a crawl request (spec.md §6.4's `remove(archive, pathname)`).
func RemoveRecord(ctx context.Context, locker NamedLocker, requests CrawlRequests, ah ArchiveWriter, dataset, archiveURL, pathname string) error {
	release, err := locker.Lock(ctx, datasetLockName(dataset, archiveURL))
	if err != nil {
		return err
	}
	defer release()

	if err := ah.Unlink(ctx, pathname); err != nil {
		if errors.Is(err, crawlerr.NotFound) {
			return nil
		}
		return err
	}
	return enqueueCrawl(ctx, requests, archiveURL)
}
