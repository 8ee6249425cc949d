package datasets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/driftweb/crawlindex/internal/archive"
	"github.com/driftweb/crawlindex/internal/crawlerr"
	"github.com/driftweb/crawlindex/internal/events"
	"github.com/driftweb/crawlindex/internal/ingest"
	"github.com/driftweb/crawlindex/internal/models"
)

const publishedSitesSchemaVersion = 1

const publishedSitesPathPrefix = "/data/published-sites/"

var publishedSitesPathRegex = regexp.MustCompile(`^/data/published-sites/[^/]+\.json$`)

// PublishedSitesStore is the narrow store surface the published-sites
// ingester needs: per-file record CRUD against `published_sites` plus the
// `published_site_edges` destination table the Scheduler's candidate list
// (spec.md §4.5's "self -> follows -> published") reads directly.
type PublishedSitesStore interface {
	ingest.Checkpointer
	UpsertRecord(ctx context.Context, table string, sourceID int64, pathname string, crawledAt int64, cols map[string]any) (int64, error)
	DeleteRecord(ctx context.Context, table string, sourceID int64, pathname string) (bool, error)
	ResetDataset(ctx context.Context, table string, sourceID int64) error
	RecordExists(ctx context.Context, table string, sourceID int64, pathname string) (bool, error)
	InsertEdge(ctx context.Context, table string, sourceID int64, dest string, crawledAt int64) error
	DeleteEdge(ctx context.Context, table string, sourceID int64, dest string) error
}

// PublishedSitesIngester implements spec.md §4.3's directory-of-files
// `unwalled.garden/published-site` dataset: one file per published
// hostname under /data/published-sites/<hostname>.json. Each put/del also
// inserts/removes the corresponding `published_site_edges` row, because
// the hostname a file names IS the published destination the Scheduler's
// candidate list reads — a published_sites row alone would leave that
// edge unreachable.
type PublishedSitesIngester struct {
	bus    *events.Bus
	store  PublishedSitesStore
	logger arbor.ILogger
}

// NewPublishedSitesIngester constructs the published-sites dataset ingester.
func NewPublishedSitesIngester(bus *events.Bus, store PublishedSitesStore, logger arbor.ILogger) *PublishedSitesIngester {
	return &PublishedSitesIngester{bus: bus, store: store, logger: logger}
}

func (p *PublishedSitesIngester) Tag() string { return "published-sites" }

func (p *PublishedSitesIngester) Crawl(ctx context.Context, ah archive.Handle, cs *models.CrawlSource) error {
	return ingest.DoCrawl(ctx, p.bus, p.store, ah, cs, p.Tag(), publishedSitesSchemaVersion,
		func(ctx context.Context, changes []archive.DiffEntry, win ingest.Window) error {
			return p.handle(ctx, ah, cs, changes, win)
		})
}

func (p *PublishedSitesIngester) handle(ctx context.Context, ah archive.Handle, cs *models.CrawlSource, changes []archive.DiffEntry, win ingest.Window) error {
	if win.ResetRequired {
		if err := p.store.ResetDataset(ctx, "published_sites", cs.ID); err != nil {
			return err
		}
		if err := p.store.ResetDataset(ctx, "published_site_edges", cs.ID); err != nil {
			return err
		}
	}

	matching := ingest.GetMatchingChangesInOrder(changes, publishedSitesPathRegex)
	for i, change := range matching {
		version := ingest.VersionOrFallback(change, win.End-1)

		if change.Type == archive.DiffDel {
			if err := p.applyDelete(ctx, cs, change.Name); err != nil {
				return err
			}
		} else {
			if err := p.applyPut(ctx, ah, cs, change.Name); err != nil {
				if errors.Is(err, crawlerr.ArchiveUnreadable) {
					return err // abort the dataset for this crawl; resumes at the last fine-grained checkpoint
				}
				p.logger.Warn().Err(err).Str("path", change.Name).Msg("skipping invalid published-site record")
			}
		}

		if err := ingest.DoCheckpoint(ctx, p.store, cs.ID, p.Tag(), publishedSitesSchemaVersion, version); err != nil {
			return err
		}
		ingest.EmitProgressEvent(p.bus, cs.Origin, p.Tag(), i+1, len(matching))
	}
	return nil
}

func (p *PublishedSitesIngester) applyPut(ctx context.Context, ah archive.Handle, cs *models.CrawlSource, pathname string) error {
	data, err := ah.ReadFile(ctx, pathname)
	if err != nil {
		return crawlerr.Wrap(crawlerr.KindArchiveUnreadable, err, "read %s", pathname)
	}

	var payload models.PublishedSite
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return crawlerr.Wrap(crawlerr.KindValidationFailed, err, "decode %s", pathname)
	}
	if err := models.Validator().Struct(payload); err != nil {
		return crawlerr.Wrap(crawlerr.KindValidationFailed, err, "validate %s", pathname)
	}

	createdAt := ingest.NormalizeTimestamp(payload.CreatedAt)
	existed, err := p.store.RecordExists(ctx, "published_sites", cs.ID, pathname)
	if err != nil {
		return err
	}

	if _, err := p.store.UpsertRecord(ctx, "published_sites", cs.ID, pathname, time.Now().UnixMilli(), map[string]any{
		"hostname":   payload.Hostname,
		"created_at": createdAt,
	}); err != nil {
		return err
	}

	dest := publishedSiteOrigin(payload.Hostname)
	if err := p.store.InsertEdge(ctx, "published_site_edges", cs.ID, dest, time.Now().UnixMilli()); err != nil {
		if !errors.Is(err, crawlerr.UniqueConstraint) {
			return err
		}
	}

	kind := events.KindRecordAdded
	if existed {
		kind = events.KindRecordUpdated
	}
	p.bus.Publish(events.Event{Kind: kind, SourceURL: cs.Origin, Dataset: p.Tag(), Pathname: pathname})
	return nil
}

func (p *PublishedSitesIngester) applyDelete(ctx context.Context, cs *models.CrawlSource, pathname string) error {
	existed, err := p.store.DeleteRecord(ctx, "published_sites", cs.ID, pathname)
	if err != nil {
		return err
	}

	if hostname := hostnameFromPublishedSitePath(pathname); hostname != "" {
		if err := p.store.DeleteEdge(ctx, "published_site_edges", cs.ID, publishedSiteOrigin(hostname)); err != nil {
			return err
		}
	}

	if existed {
		p.bus.Publish(events.Event{Kind: events.KindRecordRemoved, SourceURL: cs.Origin, Dataset: p.Tag(), Pathname: pathname})
	}
	return nil
}

// hostnameFromPublishedSitePath extracts <hostname> from
// /data/published-sites/<hostname>.json.
func hostnameFromPublishedSitePath(pathname string) string {
	if !strings.HasPrefix(pathname, publishedSitesPathPrefix) || !strings.HasSuffix(pathname, ".json") {
		return ""
	}
	host := strings.TrimSuffix(strings.TrimPrefix(pathname, publishedSitesPathPrefix), ".json")
	return strings.ToLower(host)
}

// publishedSiteOrigin mirrors sitedescriptions.go's known_sites hostname
// convention: a bare hostname addresses the same origin as `hyper://<hostname>`.
func publishedSiteOrigin(hostname string) string {
	return "hyper://" + strings.ToLower(hostname)
}

// publishedSiteFilePath derives the canonical per-hostname path (spec.md
// §6.3: "/data/published-sites/<hostname>.json").
func publishedSiteFilePath(hostname string) string {
	return fmt.Sprintf("%s%s.json", publishedSitesPathPrefix, strings.ToLower(hostname))
}

// PublishSite writes (or overwrites) the published-site file for hostname
// and enqueues a re-crawl.
func PublishSite(ctx context.Context, locker NamedLocker, requests CrawlRequests, ah ArchiveWriter, archiveURL, hostname string) (string, error) {
	site := models.PublishedSite{
		Type:      "unwalled.garden/published-site",
		Hostname:  strings.ToLower(hostname),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := models.Validator().Struct(site); err != nil {
		return "", err
	}
	cols, err := structToMap(site)
	if err != nil {
		return "", err
	}
	return AddRecordAt(ctx, locker, requests, ah, "published-sites", archiveURL, publishedSiteFilePath(hostname), cols)
}

// UnpublishSite deletes the published-site file for hostname and enqueues
// a re-crawl.
func UnpublishSite(ctx context.Context, locker NamedLocker, requests CrawlRequests, ah ArchiveWriter, archiveURL, hostname string) error {
	return RemoveRecord(ctx, locker, requests, ah, "published-sites", archiveURL, publishedSiteFilePath(hostname))
}

var _ Ingester = (*PublishedSitesIngester)(nil)
