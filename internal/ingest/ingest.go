// Package ingest implements the shared crawl scaffold every dataset
// ingester runs on top of (spec.md §4.2): compute the version window since
// the last checkpoint, fetch the diff stream, hand matching changes to a
// dataset-specific handler, then checkpoint. Grounded on the teacher's
// jobs.Runner step-scaffold shape (load state -> do work -> persist state),
// generalized from a single job run to a per-dataset-per-source crawl.
package ingest

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/driftweb/crawlindex/internal/archive"
	"github.com/driftweb/crawlindex/internal/events"
	"github.com/driftweb/crawlindex/internal/models"
)

// Checkpointer is the Index Store surface doCrawl needs, kept narrow so
// tests can supply an in-memory fake instead of a real sqlite.Store.
type Checkpointer interface {
	GetCrawlSourceMeta(ctx context.Context, sourceID int64, datasetTag string) (*models.CrawlSourceMeta, error)
	PutCrawlSourceMeta(ctx context.Context, sourceID int64, datasetTag string, sourceVersion int64, datasetVersion int) error
}

// Window is the half-open version range [Start, End) a crawl should
// process, plus whether prior rows for this dataset/source must be treated
// as stale (schema bump or global reset).
type Window struct {
	Start         int64
	End           int64
	ResetRequired bool
}

// Handler is the dataset-specific unit of work invoked once per crawl, with
// the ordered raw diff stream and whether a full rebuild is required.
type Handler func(ctx context.Context, changes []archive.DiffEntry, win Window) error

// DoCrawl runs the shared ingestion scaffold for one dataset against one
// archive, per spec.md §4.2 steps 1-6. Exceptions from handler propagate
// to the caller (the Coordinator), which aborts the crawl session but
// leaves any previously-applied checkpoint in place.
func DoCrawl(
	ctx context.Context,
	bus *events.Bus,
	store Checkpointer,
	ah archive.Handle,
	crawlSource *models.CrawlSource,
	datasetTag string,
	datasetSchemaVersion int,
	handler Handler,
) error {
	meta, err := store.GetCrawlSourceMeta(ctx, crawlSource.ID, datasetTag)
	if err != nil {
		return fmt.Errorf("load checkpoint for %s/%s: %w", crawlSource.Origin, datasetTag, err)
	}

	var storedSourceVersion int64
	resetRequired := crawlSource.GlobalResetRequired
	if meta != nil {
		if meta.CrawlDatasetVersion != datasetSchemaVersion {
			resetRequired = true
		}
		if !resetRequired {
			storedSourceVersion = meta.CrawlSourceVersion
		}
	}

	info, err := ah.Info(ctx)
	if err != nil {
		return fmt.Errorf("read archive info for %s: %w", crawlSource.Origin, err)
	}

	win := Window{
		Start:         storedSourceVersion + 1,
		End:           info.Version + 1,
		ResetRequired: resetRequired,
	}

	var changes []archive.DiffEntry
	if win.Start < win.End {
		changes, err = ah.DiffStream(ctx, win.Start-1, "/")
		if err != nil {
			return fmt.Errorf("diff stream for %s: %w", crawlSource.Origin, err)
		}
	}

	bus.Publish(events.Event{
		Kind:      events.KindCrawlDatasetStart,
		SourceURL: crawlSource.Origin,
		Dataset:   datasetTag,
		Range:     [2]int64{win.Start, win.End},
	})

	if err := handler(ctx, changes, win); err != nil {
		return fmt.Errorf("%s handler for %s: %w", datasetTag, crawlSource.Origin, err)
	}

	if err := DoCheckpoint(ctx, store, crawlSource.ID, datasetTag, datasetSchemaVersion, info.Version); err != nil {
		return fmt.Errorf("checkpoint %s/%s: %w", crawlSource.Origin, datasetTag, err)
	}

	bus.Publish(events.Event{
		Kind:      events.KindCrawlDatasetFinish,
		SourceURL: crawlSource.Origin,
		Dataset:   datasetTag,
	})
	return nil
}

// GetMatchingChangesInOrder filters changes to those whose Name matches
// pathRegex and returns them sorted ascending by Version (stable, so
// same-version entries keep their original relative order).
func GetMatchingChangesInOrder(changes []archive.DiffEntry, pathRegex *regexp.Regexp) []archive.DiffEntry {
	matched := make([]archive.DiffEntry, 0, len(changes))
	for _, c := range changes {
		if pathRegex.MatchString(c.Name) {
			matched = append(matched, c)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Version < matched[j].Version })
	return matched
}

// DoCheckpoint is an idempotent replace of the one-row-per-key checkpoint,
// used both for the final per-dataset checkpoint in DoCrawl and for the
// fine-grained per-entry checkpoint in per-file-collection ingesters.
func DoCheckpoint(ctx context.Context, store Checkpointer, sourceID int64, datasetTag string, datasetSchemaVersion int, sourceVersion int64) error {
	return store.PutCrawlSourceMeta(ctx, sourceID, datasetTag, sourceVersion, datasetSchemaVersion)
}

// EmitProgressEvent publishes a crawl-dataset-progress event.
func EmitProgressEvent(bus *events.Bus, sourceURL, dataset string, progress, total int) {
	bus.Publish(events.Event{
		Kind:      events.KindCrawlDatasetProgress,
		SourceURL: sourceURL,
		Dataset:   dataset,
		Progress:  progress,
		Total:     total,
	})
}

// VersionOrFallback tags a diff entry missing version metadata with the
// archive's end-of-window version (coarse but monotonic), per spec.md
// §4.2 step 4.
func VersionOrFallback(entry archive.DiffEntry, fallback int64) int64 {
	if entry.Version == 0 {
		return fallback
	}
	return entry.Version
}

// NormalizeTimestamp coerces an ISO-8601 timestamp string to epoch
// milliseconds, returning 0 when raw is empty or unparsable (spec.md
// §4.3.1's "set updatedAt = 0 when absent/invalid").
func NormalizeTimestamp(raw string) int64 {
	if raw == "" {
		return 0
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UnixMilli()
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UnixMilli()
	}
	return 0
}
