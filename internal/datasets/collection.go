// Package datasets implements the ten per-schema ingesters (spec.md §4.3)
// on top of the shared internal/ingest scaffold: posts, bookmarks,
// discussions, comments, media and votes as per-file collections; follows
// as a single-file set; reactions, published-sites and site descriptions
// with their own bespoke shapes (each needing more than a plain record
// upsert — an edge row, a read-modify-write file, or a subject-derived
// key). Grounded on the teacher's per-job-type handler registration
// (internal/jobs), generalized from one handler per job name to one
// Ingester per dataset tag.
package datasets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/driftweb/crawlindex/internal/archive"
	"github.com/driftweb/crawlindex/internal/crawlerr"
	"github.com/driftweb/crawlindex/internal/events"
	"github.com/driftweb/crawlindex/internal/ingest"
	"github.com/driftweb/crawlindex/internal/models"
)

// Store is the Index Store surface the dataset package depends on, kept
// narrow for test fakes.
type Store interface {
	ingest.Checkpointer
	UpsertRecord(ctx context.Context, table string, sourceID int64, pathname string, crawledAt int64, cols map[string]any) (int64, error)
	DeleteRecord(ctx context.Context, table string, sourceID int64, pathname string) (bool, error)
	SyncTags(ctx context.Context, joinTable, fkColumn string, recordID int64, tags []string) error
	ResetDataset(ctx context.Context, table string, sourceID int64) error
	RecordExists(ctx context.Context, table string, sourceID int64, pathname string) (bool, error)
}

// Ingester is the uniform surface the Coordinator fans out to.
type Ingester interface {
	Tag() string
	Crawl(ctx context.Context, ah archive.Handle, cs *models.CrawlSource) error
}

// CollectionSpec describes one per-file-collection dataset: how to parse,
// validate, and flatten its payload type T into index columns.
type CollectionSpec[T any] struct {
	Tag           string
	SchemaVersion int
	PathRegex     *regexp.Regexp
	Table         string
	TagJoinTable  string // "" when this dataset carries no tags
	TagFKColumn   string
	CreatedAtOf   func(T) string
	UpdatedAtOf   func(T) string
	TagsOf        func(T) []string
	ColumnsOf     func(payload T, createdAt, updatedAt int64) map[string]any
}

// CollectionIngester runs the per-file-collection shape from spec.md
// §4.3.1: for each matching diff entry in ascending version order, delete
// on 'del', or decode-validate-upsert on 'put', checkpointing after every
// entry so a crash mid-loop resumes without replay.
type CollectionIngester[T any] struct {
	spec   CollectionSpec[T]
	bus    *events.Bus
	store  Store
	logger arbor.ILogger
}

// NewCollectionIngester constructs a per-file-collection ingester.
func NewCollectionIngester[T any](spec CollectionSpec[T], bus *events.Bus, store Store, logger arbor.ILogger) *CollectionIngester[T] {
	return &CollectionIngester[T]{spec: spec, bus: bus, store: store, logger: logger}
}

func (c *CollectionIngester[T]) Tag() string { return c.spec.Tag }

func (c *CollectionIngester[T]) Crawl(ctx context.Context, ah archive.Handle, cs *models.CrawlSource) error {
	return ingest.DoCrawl(ctx, c.bus, c.store, ah, cs, c.spec.Tag, c.spec.SchemaVersion,
		func(ctx context.Context, changes []archive.DiffEntry, win ingest.Window) error {
			return c.handle(ctx, ah, cs, changes, win)
		})
}

func (c *CollectionIngester[T]) handle(ctx context.Context, ah archive.Handle, cs *models.CrawlSource, changes []archive.DiffEntry, win ingest.Window) error {
	if win.ResetRequired {
		if err := c.store.ResetDataset(ctx, c.spec.Table, cs.ID); err != nil {
			return err
		}
	}

	matching := ingest.GetMatchingChangesInOrder(changes, c.spec.PathRegex)
	for i, change := range matching {
		version := ingest.VersionOrFallback(change, win.End-1)

		if change.Type == archive.DiffDel {
			existed, err := c.store.DeleteRecord(ctx, c.spec.Table, cs.ID, change.Name)
			if err != nil {
				return err
			}
			if existed {
				c.bus.Publish(events.Event{Kind: events.KindRecordRemoved, SourceURL: cs.Origin, Dataset: c.spec.Tag, Pathname: change.Name})
			}
		} else {
			if err := c.applyPut(ctx, ah, cs, change.Name); err != nil {
				if errors.Is(err, crawlerr.ArchiveUnreadable) {
					return err // abort the dataset for this crawl; resumes at the last fine-grained checkpoint
				}
				// parse/validation failure: skip this file, continue (spec.md §4.3.1)
				c.logger.Warn().Err(err).Str("path", change.Name).Str("dataset", c.spec.Tag).Msg("skipping invalid record")
			}
		}

		if err := ingest.DoCheckpoint(ctx, c.store, cs.ID, c.spec.Tag, c.spec.SchemaVersion, version); err != nil {
			return err
		}
		ingest.EmitProgressEvent(c.bus, cs.Origin, c.spec.Tag, i+1, len(matching))
	}
	return nil
}

func (c *CollectionIngester[T]) applyPut(ctx context.Context, ah archive.Handle, cs *models.CrawlSource, pathname string) error {
	data, err := ah.ReadFile(ctx, pathname)
	if err != nil {
		return crawlerr.Wrap(crawlerr.KindArchiveUnreadable, err, "read %s", pathname)
	}

	var payload T
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return crawlerr.Wrap(crawlerr.KindValidationFailed, err, "decode %s", pathname)
	}
	if err := models.Validator().Struct(payload); err != nil {
		return crawlerr.Wrap(crawlerr.KindValidationFailed, err, "validate %s", pathname)
	}

	createdAt := ingest.NormalizeTimestamp(c.spec.CreatedAtOf(payload))
	updatedAt := ingest.NormalizeTimestamp(c.spec.UpdatedAtOf(payload))
	cols := c.spec.ColumnsOf(payload, createdAt, updatedAt)

	existed, err := c.store.RecordExists(ctx, c.spec.Table, cs.ID, pathname)
	if err != nil {
		return err
	}

	id, err := c.store.UpsertRecord(ctx, c.spec.Table, cs.ID, pathname, time.Now().UnixMilli(), cols)
	if err != nil {
		return err
	}

	if c.spec.TagJoinTable != "" {
		if err := c.store.SyncTags(ctx, c.spec.TagJoinTable, c.spec.TagFKColumn, id, c.spec.TagsOf(payload)); err != nil {
			return err
		}
	}

	kind := events.KindRecordAdded
	if existed {
		kind = events.KindRecordUpdated
	}
	c.bus.Publish(events.Event{Kind: kind, SourceURL: cs.Origin, Dataset: c.spec.Tag, Pathname: pathname})
	return nil
}

var _ Ingester = (*CollectionIngester[models.Post])(nil)
